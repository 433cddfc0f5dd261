package acnet

import (
	"context"
	"net"
	"testing"
)

func TestServerInfoWorldPort(t *testing.T) {
	s := NewServerInfo("play.example.com", 9000)
	if s.WorldPort != 9001 {
		t.Fatalf("world port %d", s.WorldPort)
	}
}

func TestServerInfoWorldPortSaturates(t *testing.T) {
	s := NewServerInfo("play.example.com", 65535)
	if s.WorldPort != 65535 {
		t.Fatalf("world port must saturate, got %d", s.WorldPort)
	}
}

func TestServerInfoIsFrom(t *testing.T) {
	s := NewServerInfo("10.1.2.3", 9000)

	match := &net.UDPAddr{IP: net.ParseIP("10.1.2.3"), Port: 9000}
	if !s.IsFrom(match) {
		t.Fatal("host literal must match")
	}

	loop4 := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9001}
	loop6 := &net.UDPAddr{IP: net.ParseIP("::1"), Port: 9001}
	if !s.IsFrom(loop4) || !s.IsFrom(loop6) {
		t.Fatal("loopback must always match")
	}

	other := &net.UDPAddr{IP: net.ParseIP("10.9.9.9"), Port: 9000}
	if s.IsFrom(other) {
		t.Fatal("foreign peer must not match")
	}

	tcp := &net.TCPAddr{IP: net.ParseIP("10.1.2.3"), Port: 9000}
	if !s.IsFrom(tcp) {
		t.Fatal("raw-TCP emulation peers must match")
	}

	unix := &net.UnixAddr{Name: "/tmp/x"}
	if s.IsFrom(unix) {
		t.Fatal("unknown address families are rejected")
	}
}

func TestServerInfoResolveLoopback(t *testing.T) {
	s := NewServerInfo("localhost", 9000)
	login, err := s.LoginAddr(context.Background())
	if err != nil {
		t.Skipf("resolver unavailable: %v", err)
	}
	if login.Port != 9000 {
		t.Fatalf("login port %d", login.Port)
	}
	world, err := s.WorldAddr(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if world.Port != 9001 {
		t.Fatalf("world port %d", world.Port)
	}
	// IPv4 preferred when both families resolve
	if ip4 := login.IP.To4(); ip4 == nil && world.IP.To4() != nil {
		t.Fatalf("inconsistent family preference: %v vs %v", login.IP, world.IP)
	}
}
