// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"github.com/amoeba/acload/runner"
	"github.com/amoeba/acload/session"
	"github.com/amoeba/acload/std"
)

// VERSION is injected by buildflags
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		// add more log flags for debugging
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	// logs go to stdout; an optional file sink next to it is controlled by
	// one env var
	log.SetOutput(os.Stdout)
	if path := os.Getenv("ACLOAD_LOG_FILE"); path != "" {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		checkError(err)
		defer f.Close()
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	myApp := cli.NewApp()
	myApp.Name = "acload"
	myApp.Usage = "headless game-client load tester"
	myApp.Version = VERSION
	myApp.Flags = runFlags
	myApp.Action = runAction
	myApp.Commands = []cli.Command{
		{
			Name:      "naming",
			Usage:     "print the deterministic names for a client id",
			ArgsUsage: "<client_id>",
			Action:    namingAction,
		},
		{
			Name:   "run",
			Usage:  "launch the multi-client load test",
			Flags:  runFlags,
			Action: runAction,
		},
	}
	myApp.Run(os.Args)
}

var runFlags = []cli.Flag{
	cli.IntFlag{
		Name:  "clients, n",
		Value: 5,
		Usage: "number of client sessions to spawn",
	},
	cli.StringFlag{
		Name:  "host",
		Value: "localhost",
		Usage: "game server host",
	},
	cli.IntFlag{
		Name:  "port, p",
		Value: 9000,
		Usage: "login server port; world traffic uses the next port up",
	},
	cli.IntFlag{
		Name:  "rate-limit, r",
		Value: 1000,
		Usage: "milliseconds between session starts, must be non-zero",
	},
	cli.BoolFlag{
		Name:  "verbose, v",
		Usage: "per-client event logging",
	},
	cli.IntFlag{
		Name:  "stats-interval",
		Value: 5,
		Usage: "seconds between progress reports, 0 to disable",
	},
	cli.BoolFlag{
		Name:  "reconnect",
		Usage: "reconnect with exponential backoff after a disconnect",
	},
	cli.IntFlag{
		Name:  "bus-capacity",
		Value: 1024,
		Usage: "event bus buffer per observer",
	},
	cli.StringFlag{
		Name:  "log",
		Value: "",
		Usage: "specify a log file to output, default goes to stdout",
	},
	cli.StringFlag{
		Name:  "stats-log",
		Value: "",
		Usage: "collect counters to a CSV file, aware of timeformat in golang, like: ./stats-20060102.log",
	},
	cli.IntFlag{
		Name:  "stats-log-period",
		Value: 60,
		Usage: "CSV collect period, in seconds",
	},
	cli.StringFlag{
		Name:  "trace",
		Value: "",
		Usage: "capture every datagram to a snappy-framed file",
	},
	cli.BoolFlag{
		Name:  "tcp",
		Usage: "to emulate a TCP connection(linux)",
	},
	cli.StringFlag{
		Name:  "c",
		Value: "",
		Usage: "config from json file, which will override the command from shell",
	},
}

func namingAction(c *cli.Context) error {
	arg := c.Args().First()
	if arg == "" {
		return cli.NewExitError("naming: missing <client_id>", 1)
	}
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("naming: bad client id %q", arg), 1)
	}
	naming := runner.NewNaming(uint32(id))
	fmt.Println("Client ID:", id)
	fmt.Println("Account:", naming.AccountName())
	fmt.Println("Password:", naming.Password())
	fmt.Println("Character:", naming.CharacterName())
	return nil
}

func runAction(c *cli.Context) error {
	config := Config{}
	config.Clients = c.Int("clients")
	config.Host = c.String("host")
	config.Port = c.Int("port")
	config.RateLimit = c.Int("rate-limit")
	config.Verbose = c.Bool("verbose")
	config.StatsInterval = c.Int("stats-interval")
	config.Reconnect = c.Bool("reconnect")
	config.BusCapacity = c.Int("bus-capacity")
	config.Log = c.String("log")
	config.StatsLog = c.String("stats-log")
	config.StatsLogPeriod = c.Int("stats-log-period")
	config.Trace = c.String("trace")
	config.TCP = c.Bool("tcp")

	if c.String("c") != "" {
		err := parseJSONConfig(&config, c.String("c"))
		checkError(err)
	}

	// log redirect
	if config.Log != "" {
		f, err := os.OpenFile(config.Log, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		checkError(err)
		defer f.Close()
		log.SetOutput(f)
	}

	if config.RateLimit <= 0 {
		color.Red("rate-limit must be a non-zero number of milliseconds")
		return cli.NewExitError("configuration error", 1)
	}
	if config.Clients <= 0 {
		color.Red("clients must be a positive number")
		return cli.NewExitError("configuration error", 1)
	}
	if config.Port <= 0 || config.Port > 65535 {
		color.Red("port must be in 1..65535")
		return cli.NewExitError("configuration error", 1)
	}
	if config.Port == 65535 {
		color.Yellow("WARNING: port 65535 saturates the world port to the same value")
	}

	log.Println("version:", VERSION)
	log.Println("host:", config.Host)
	log.Println("port:", config.Port)
	log.Println("clients:", config.Clients)
	log.Println("rate limit:", config.RateLimit, "ms")
	log.Println("stats interval:", config.StatsInterval, "s")
	log.Println("reconnect:", config.Reconnect)
	log.Println("bus capacity:", config.BusCapacity)
	log.Println("trace:", config.Trace)
	log.Println("tcp:", config.TCP)

	rc := runner.RunConfig{
		Host:          config.Host,
		Port:          uint16(config.Port),
		Clients:       uint32(config.Clients),
		RateLimit:     time.Duration(config.RateLimit) * time.Millisecond,
		StatsInterval: time.Duration(config.StatsInterval) * time.Second,
		Verbose:       config.Verbose,
		BusCapacity:   config.BusCapacity,
	}
	if config.Reconnect {
		reconnect := session.DefaultReconnectConfig()
		reconnect.Enabled = true
		rc.Reconnect = reconnect
	}
	if config.Trace != "" {
		tracer, err := std.NewTracer(config.Trace)
		checkError(err)
		defer tracer.Close()
		rc.Tracer = tracer
	}
	if config.TCP {
		dial, err := tcpDial(config.Host, uint16(config.Port))
		if err != nil {
			color.Red("%v", err)
		} else {
			rc.Dial = dial
		}
	}

	counters := &session.Counters{}
	rc.Counters = counters
	setSignalCounters(counters)

	stopCSV := make(chan struct{})
	defer close(stopCSV)
	if config.StatsLog != "" {
		go std.CSVLogger(config.StatsLog, config.StatsLogPeriod, counters, stopCSV)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := runner.Run(ctx, rc, nil, nil)
	if err != nil {
		color.Red("%+v", err)
		return cli.NewExitError("configuration error", 1)
	}
	res.Stats.PrintFinal(res.Elapsed)
	return nil
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(-1)
	}
}
