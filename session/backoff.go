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

package session

import (
	"math"
	"time"
)

// ReconnectConfig drives reconnection after an authoritative disconnect.
type ReconnectConfig struct {
	Enabled      bool
	MaxAttempts  uint32 // 0 means unlimited
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultReconnectConfig matches the documented defaults: disabled, 10 s
// initial delay doubling up to 10 minutes, unlimited attempts.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		Enabled:      false,
		MaxAttempts:  0,
		InitialDelay: 10 * time.Second,
		MaxDelay:     600 * time.Second,
		Multiplier:   2.0,
	}
}

// DelayForAttempt computes the backoff for a 0-indexed attempt, capped at
// MaxDelay. The sequence is monotonically non-decreasing.
func (c ReconnectConfig) DelayForAttempt(attempt uint32) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if max := float64(c.MaxDelay); d > max || math.IsInf(d, 1) || math.IsNaN(d) {
		d = max
	}
	return time.Duration(d)
}

// ShouldAttempt reports whether another reconnect is allowed.
func (c ReconnectConfig) ShouldAttempt(attempt uint32) bool {
	return c.MaxAttempts == 0 || attempt < c.MaxAttempts
}
