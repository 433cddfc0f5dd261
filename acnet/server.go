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

package acnet

import (
	"context"
	"log"
	"net"
	"strconv"

	"github.com/pkg/errors"
)

// ServerInfo names the two server endpoints a session talks to: the login
// port takes LoginRequest and most traffic, ConnectResponse and world data go
// to the next port up.
type ServerInfo struct {
	Host      string
	LoginPort uint16
	WorldPort uint16
}

// NewServerInfo derives the world port from the login port, saturating at
// the top of the range.
func NewServerInfo(host string, loginPort uint16) ServerInfo {
	worldPort := loginPort + 1
	if loginPort == 65535 {
		worldPort = 65535
		log.Printf("login port is %d, world port saturates to the same value", loginPort)
	}
	return ServerInfo{Host: host, LoginPort: loginPort, WorldPort: worldPort}
}

// IsFrom reports whether a datagram's source address belongs to this server.
// Loopback is always accepted so local test servers work regardless of the
// configured host literal. TCP addresses appear when the transport is the
// raw-TCP emulation.
func (s ServerInfo) IsFrom(peer net.Addr) bool {
	var ip net.IP
	switch a := peer.(type) {
	case *net.UDPAddr:
		ip = a.IP
	case *net.TCPAddr:
		ip = a.IP
	default:
		return false
	}
	return ip.String() == s.Host || ip.IsLoopback()
}

// LoginAddr resolves the login endpoint, preferring IPv4 and accepting IPv6
// when nothing else resolves.
func (s ServerInfo) LoginAddr(ctx context.Context) (*net.UDPAddr, error) {
	return s.resolve(ctx, s.LoginPort)
}

// WorldAddr resolves the world endpoint for the ConnectResponse handoff.
func (s ServerInfo) WorldAddr(ctx context.Context) (*net.UDPAddr, error) {
	return s.resolve(ctx, s.WorldPort)
}

func (s ServerInfo) resolve(ctx context.Context, port uint16) (*net.UDPAddr, error) {
	ips, err := net.DefaultResolver.LookupIPAddr(ctx, s.Host)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", s.Host)
	}
	if len(ips) == 0 {
		return nil, errors.Errorf("no address for %s", s.Host)
	}
	pick := ips[0]
	for _, ip := range ips {
		if ip.IP.To4() != nil {
			pick = ip
			break
		}
	}
	return &net.UDPAddr{IP: pick.IP, Zone: pick.Zone, Port: int(port)}, nil
}

func (s ServerInfo) String() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(int(s.LoginPort)))
}
