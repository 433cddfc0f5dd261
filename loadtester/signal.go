//go:build linux || darwin || freebsd

package main

import (
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/amoeba/acload/session"
)

var signalCounters atomic.Value // *session.Counters

func setSignalCounters(c *session.Counters) {
	signalCounters.Store(c)
}

func init() {
	go sigHandler()
}

func sigHandler() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	signal.Ignore(syscall.SIGPIPE)

	for {
		switch <-ch {
		case syscall.SIGUSR1:
			if c, ok := signalCounters.Load().(*session.Counters); ok {
				log.Printf("counters: %+v", c.Copy())
			}
		}
	}
}
