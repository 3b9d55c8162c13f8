package timex

import (
	"sync/atomic"
	"time"
)

// Source is the core's millisecond tick counter (RTOS tick at 1 kHz).
// It wraps after ~49.7 days; callers compare ticks with subtraction.
type Source interface {
	Now() uint32
}

// Boot counts milliseconds since it was created.
type Boot struct{ t0 time.Time }

func NewBoot() *Boot { return &Boot{t0: time.Now()} }

func (b *Boot) Now() uint32 { return uint32(time.Since(b.t0).Milliseconds()) }

// Manual is a Source advanced explicitly; used by tests and simulations.
type Manual struct{ ms atomic.Uint32 }

func (m *Manual) Now() uint32             { return m.ms.Load() }
func (m *Manual) Set(ms uint32)           { m.ms.Store(ms) }
func (m *Manual) Advance(d time.Duration) { m.ms.Add(uint32(d.Milliseconds())) }

// Since returns the elapsed ticks between start and now, wrap-safe.
func Since(s Source, start uint32) time.Duration {
	return time.Duration(s.Now()-start) * time.Millisecond
}
