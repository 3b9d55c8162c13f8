// Package clock rebuilds wall time on the A-core from the last NTP_TIME
// epoch and the local tick counter.
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"dualcore-go/ipc"
	"dualcore-go/x/timex"
)

const (
	DefaultOffset   = 7 * time.Hour
	DefaultInterval = 60 * time.Second
	Layout          = "Mon 2 Jan 15:04"
)

// Sink receives each rendered line.
type Sink func(text string)

type Config struct {
	Offset   time.Duration // added to UTC before rendering
	Interval time.Duration
}

func DefaultConfig() Config {
	return Config{Offset: DefaultOffset, Interval: DefaultInterval}
}

type Clock struct {
	cfg   Config
	ticks timex.Source

	mu        sync.Mutex
	baseEpoch uint32
	baseTick  uint32
	set       bool
}

// New builds a clock. A zero Offset means UTC; Interval defaults to 60 s.
func New(ticks timex.Source, cfg Config) *Clock {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if ticks == nil {
		ticks = timex.NewBoot()
	}
	return &Clock{cfg: cfg, ticks: ticks}
}

// SetTime anchors the clock at epoch as of the current tick.
func (c *Clock) SetTime(epoch uint32) {
	c.mu.Lock()
	c.baseEpoch, c.baseTick, c.set = epoch, c.ticks.Now(), true
	c.mu.Unlock()
}

// Handle consumes NTP_TIME; other commands are left alone.
func (c *Clock) Handle(m ipc.Message) bool {
	if m.Cmd != ipc.CmdNTPTime {
		return false
	}
	c.SetTime(m.Value)
	glog.Infof("clock: synced to epoch %d", m.Value)
	return true
}

// Now returns the current Unix epoch; ok is false until SetTime.
func (c *Clock) Now() (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.set {
		return 0, false
	}
	return c.baseEpoch + uint32(timex.Since(c.ticks, c.baseTick)/time.Second), true
}

// Calendar returns the local time fields for the current epoch.
func (c *Clock) Calendar() (time.Time, bool) {
	epoch, ok := c.Now()
	if !ok {
		return time.Time{}, false
	}
	return Local(epoch, c.cfg.Offset), true
}

// Render formats the current local time as "Mon 14 Aug 18:07".
func (c *Clock) Render() (string, bool) {
	t, ok := c.Calendar()
	if !ok {
		return "", false
	}
	return t.Format(Layout), true
}

// Local decomposes epoch shifted by offset; the result is labelled UTC.
func Local(epoch uint32, offset time.Duration) time.Time {
	return time.Unix(int64(epoch), 0).UTC().Add(offset)
}

// Run renders immediately and then every Interval while the clock is set.
func (c *Clock) Run(ctx context.Context, sink Sink) error {
	emit := func() {
		if s, ok := c.Render(); ok {
			sink(s)
		}
	}
	emit()
	t := time.NewTicker(c.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			emit()
		}
	}
}
