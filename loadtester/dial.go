//go:build !linux

package main

import (
	"github.com/pkg/errors"

	"github.com/amoeba/acload/session"
)

func tcpDial(host string, port uint16) (session.DialFunc, error) {
	return nil, errors.New("tcp emulation is only available on linux")
}
