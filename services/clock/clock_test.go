package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dualcore-go/ipc"
	"dualcore-go/x/timex"
)

func TestUnsetClock(t *testing.T) {
	c := New(&timex.Manual{}, DefaultConfig())
	_, ok := c.Now()
	require.False(t, ok)
	_, ok = c.Render()
	require.False(t, ok)
}

func TestRenderAfterSync(t *testing.T) {
	ticks := &timex.Manual{}
	ticks.Set(5000)
	c := New(ticks, DefaultConfig())
	require.True(t, c.Handle(ipc.NewMessage(ipc.CmdNTPTime, 1692011200)))

	ticks.Advance(60 * time.Second)
	epoch, ok := c.Now()
	require.True(t, ok)
	require.Equal(t, uint32(1692011260), epoch)

	s, ok := c.Render()
	require.True(t, ok)
	require.Equal(t, "Mon 14 Aug 18:07", s)
}

func TestHandleIgnoresOtherCommands(t *testing.T) {
	c := New(&timex.Manual{}, DefaultConfig())
	require.False(t, c.Handle(ipc.NewMessage(ipc.CmdNTPError, 5)))
	_, ok := c.Now()
	require.False(t, ok)
}

func TestTickWrap(t *testing.T) {
	ticks := &timex.Manual{}
	ticks.Set(0xFFFF_FC18) // 1 s before wrap
	c := New(ticks, Config{})
	c.SetTime(1700000000)
	ticks.Advance(3 * time.Second)
	epoch, _ := c.Now()
	require.Equal(t, uint32(1700000003), epoch)
}

func TestLocalCalendar(t *testing.T) {
	cases := []struct {
		epoch  uint32
		offset time.Duration
		want   string
	}{
		{0, 0, "Thu 1 Jan 00:00"},
		{951782400, 0, "Tue 29 Feb 00:00"},  // 2000 is a leap year
		{4107456000, 0, "Sun 28 Feb 00:00"}, // 2100 is not
		{4107542400, 0, "Mon 1 Mar 00:00"},
		{1704067199, DefaultOffset, "Mon 1 Jan 06:59"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Local(c.epoch, c.offset).Format(Layout), "epoch %d", c.epoch)
	}
}

func TestRunEmitsPeriodically(t *testing.T) {
	c := New(&timex.Manual{}, Config{Offset: DefaultOffset, Interval: 10 * time.Millisecond})
	c.SetTime(1692011260)

	got := make(chan string, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx, func(s string) { got <- s }) }()

	for i := 0; i < 2; i++ {
		select {
		case s := <-got:
			require.Equal(t, "Mon 14 Aug 18:07", s)
		case <-time.After(time.Second):
			t.Fatal("no render")
		}
	}
}
