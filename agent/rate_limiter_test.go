package main

import (
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("127.0.0.1") || !rl.Allow("127.0.0.1") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("127.0.0.1") {
		t.Fatal("third request should be limited")
	}
	if !rl.Allow("10.0.0.2") {
		t.Fatal("other clients have their own budget")
	}

	now = now.Add(time.Minute + time.Second)
	if !rl.Allow("127.0.0.1") {
		t.Fatal("budget should reset after the window")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		if !rl.Allow("k") {
			t.Fatal("zero limit must not block")
		}
	}
}
