package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recv waits briefly for one message on s.
func recv(t *testing.T, s *Subscription) *Message {
	t.Helper()
	select {
	case m := <-s.Channel():
		return m
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("nothing on %v", s.Topic())
		return nil
	}
}

func quiet(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case m := <-s.Channel():
		t.Fatalf("unexpected %v on %v", m.Topic, s.Topic())
	case <-time.After(30 * time.Millisecond):
	}
}

// pending drains whatever is already queued on s.
func pending(s *Subscription) []any {
	var out []any
	for {
		select {
		case m := <-s.Channel():
			out = append(out, m.Payload)
		default:
			return out
		}
	}
}

func TestPatternMatching(t *testing.T) {
	cases := []struct {
		pattern Topic
		topic   Topic
		match   bool
	}{
		{T("wifi", "state"), T("wifi", "state"), true},
		{T("wifi", "state"), T("wifi", "scan"), false},
		{T("wifi", "+"), T("wifi", "scan"), true},
		{T("wifi", "+"), T("wifi"), false},
		{T("wifi", "+"), T("wifi", "cmd", "scan"), false},
		{T("wifi", "cmd", "+"), T("wifi", "cmd", "ntp"), true},
		{T("+", "display"), T("clock", "display"), true},
		{T("board", "#"), T("board"), true},
		{T("board", "#"), T("board", "imu"), true},
		{T("board", "#"), T("board", "imu", 3), true},
		{T("board", "#"), T("touch", "state"), false},
		{T("#"), T("link", "state"), true},
		{T("board", "+", "#"), T("board"), false},
		{T("board", "+", "#"), T("board", "touch"), true},
		{T("config", 1), T("config", 1), true},
		{T("config", 1), T("config", "1"), false},
	}
	for _, tc := range cases {
		t.Run(tc.pattern.String()+"~"+tc.topic.String(), func(t *testing.T) {
			c := NewBus(4).NewConnection("t")
			s := c.Subscribe(tc.pattern)
			c.Publish(c.NewMessage(tc.topic, "x", false))
			if tc.match {
				assert.Equal(t, "x", recv(t, s).Payload)
			} else {
				quiet(t, s)
			}
		})
	}
}

func TestRetainedReplayOnSubscribe(t *testing.T) {
	c := NewBus(8).NewConnection("t")
	c.Publish(c.NewMessage(T("wifi", "state"), "connected", true))
	c.Publish(c.NewMessage(T("wifi", "ntp"), "synced", true))
	c.Publish(c.NewMessage(T("wifi", "error"), "transient", false))
	c.Publish(c.NewMessage(T("link", "state"), "up", true))

	s := c.Subscribe(T("wifi", "#"))
	assert.ElementsMatch(t, []any{"connected", "synced"}, pending(s))

	exact := c.Subscribe(T("link", "state"))
	assert.Equal(t, []any{"up"}, pending(exact))
}

func TestRetainedOverwriteAndClear(t *testing.T) {
	c := NewBus(8).NewConnection("t")
	c.Publish(c.NewMessage(T("clock", "display"), "Mon 14 Aug 18:07", true))
	c.Publish(c.NewMessage(T("clock", "display"), "Mon 14 Aug 18:08", true))
	c.Publish(c.NewMessage(T("touch", "state"), "idle", true))

	s := c.Subscribe(T("+", "+"))
	assert.ElementsMatch(t, []any{"Mon 14 Aug 18:08", "idle"}, pending(s))

	c.Publish(c.NewMessage(T("clock", "display"), nil, true))
	late := c.Subscribe(T("+", "+"))
	assert.Equal(t, []any{"idle"}, pending(late))
}

func TestFullQueueDropsOldest(t *testing.T) {
	c := NewBus(2).NewConnection("t")
	s := c.Subscribe(T("imu", "frame"))
	for i := 1; i <= 5; i++ {
		c.Publish(c.NewMessage(T("imu", "frame"), i, false))
	}
	assert.Equal(t, []any{4, 5}, pending(s))
}

func TestRequestWaitReply(t *testing.T) {
	b := NewBus(4)
	asker := b.NewConnection("cli")
	server := b.NewConnection("view")
	cmds := server.Subscribe(T("wifi", "cmd", "+"))

	go func() {
		m := <-cmds.Channel()
		server.Reply(m, m.Topic.At(2), false)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	req := asker.NewMessage(T("wifi", "cmd", "scan"), nil, false)
	reply, err := asker.RequestWait(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "scan", reply.Payload)
	assert.True(t, req.CanReply())
	assert.True(t, reply.Topic.Equal(req.ReplyTo))
}

func TestRequestWaitHonoursContext(t *testing.T) {
	c := NewBus(4).NewConnection("cli")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.RequestWait(ctx, c.NewMessage(T("wifi", "cmd", "scan"), nil, false))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReplyWithoutReplyToIsIgnored(t *testing.T) {
	c := NewBus(4).NewConnection("t")
	s := c.Subscribe(T("#"))
	c.Reply(c.NewMessage(T("link", "ping"), nil, false), "pong", false)
	quiet(t, s)
}

func TestUnsubscribeAndDisconnect(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("t")
	a := c.Subscribe(T("clock", "display"))
	z := c.Subscribe(T("touch", "+"))

	a.Unsubscribe()
	_, open := <-a.Channel()
	assert.False(t, open)
	assert.NotPanics(t, func() { c.Unsubscribe(a) })

	c.Disconnect()
	_, open = <-z.Channel()
	assert.False(t, open)

	other := b.NewConnection("o")
	assert.NotPanics(t, func() { other.Publish(other.NewMessage(T("touch", "state"), 1, false)) })
}

func TestTopicHelpers(t *testing.T) {
	base := T("wifi", "scan")
	next := base.Append(3)
	assert.Equal(t, "wifi/scan/3", next.String())
	assert.Equal(t, 2, base.Len())
	assert.Equal(t, 3, next.At(2))
	assert.False(t, base.Equal(next))
	assert.Panics(t, func() { T([]byte{1}) })
}
