//go:build !linux && !darwin && !freebsd

package main

import "github.com/amoeba/acload/session"

func setSignalCounters(*session.Counters) {}
