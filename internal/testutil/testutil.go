// Package testutil holds deterministic collaborators shared by package tests.
package testutil

import (
	"encoding/binary"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Epoch is the default start of a ManualClock.
var Epoch = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// ManualClock only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *ManualClock {
	return &ManualClock{now: Epoch}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SeqRandom returns distinct, reproducible byte strings: each call fills the
// buffer from an incrementing counter.
type SeqRandom struct {
	mu  sync.Mutex
	seq uint64
}

func (r *SeqRandom) RandomBytes(n int) ([]byte, error) {
	r.mu.Lock()
	r.seq++
	seq := r.seq
	r.mu.Unlock()

	buf := make([]byte, n)
	var block [8]byte
	for i := 0; i < n; i += 8 {
		binary.BigEndian.PutUint64(block[:], seq*0x9E3779B97F4A7C15+uint64(i))
		copy(buf[i:], block[:])
	}
	return buf, nil
}

// DiscardLogger drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
