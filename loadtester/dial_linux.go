//go:build linux

package main

import (
	"context"
	"fmt"
	"net"

	"github.com/pkg/errors"
	"github.com/xtaci/tcpraw"

	"github.com/amoeba/acload/session"
)

// tcpDial emulates the UDP flow over a raw TCP packet conn. The emulated
// flow rides one remote port, so the world handoff shares the login port's
// conn; servers behind TCP-only middleboxes accept this.
func tcpDial(host string, port uint16) (session.DialFunc, error) {
	raddr := fmt.Sprintf("%s:%d", host, port)
	return func(ctx context.Context) (net.PacketConn, error) {
		conn, err := tcpraw.Dial("tcp", raddr)
		if err != nil {
			return nil, errors.Wrap(err, "tcpraw.Dial()")
		}
		return conn, nil
	}, nil
}
