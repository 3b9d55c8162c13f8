package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dualcore-go/console"
	"dualcore-go/errcode"
	"dualcore-go/ipc"
	"dualcore-go/mailbox"
	"dualcore-go/queue"
)

// fakeTransport records sends and can report Busy for a number of attempts.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []ipc.Message
	busy     int // remaining busy replies; negative means forever
	attempts int
	handler  func(ipc.Message)
}

func (f *fakeTransport) Send(m ipc.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.busy != 0 {
		if f.busy > 0 {
			f.busy--
		}
		return errcode.Busy
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeTransport) OnReceive(h func(ipc.Message)) { f.handler = h }

func (f *fakeTransport) deliver(m ipc.Message) { f.handler(m) }

func (f *fakeTransport) last() ipc.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newRouter(t *testing.T, role Role, opts ...Option) (*Router, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	r := New(tr, DefaultConfig(role), opts...)
	r.sleep = func(time.Duration) {}
	require.NoError(t, r.Init())
	return r, tr
}

func TestSendBeforeInitIsNotReady(t *testing.T) {
	r := New(&fakeTransport{}, DefaultConfig(ACore))
	require.ErrorIs(t, r.SendCmd(ipc.CmdPing, 1), errcode.NotReady)
}

func TestPingAnsweredWithPong(t *testing.T) {
	r, tr := newRouter(t, PCore)
	for _, v := range []uint32{0, 42, 0xFFFFFFFF} {
		tr.deliver(ipc.NewMessage(ipc.CmdPing, v))
		require.True(t, r.Process())
		got := tr.last()
		require.Equal(t, ipc.CmdPong, got.Cmd)
		require.Equal(t, v, got.Value)
	}
	require.Equal(t, uint32(3), r.Stats().Rx)
	require.Equal(t, uint32(3), r.Stats().Tx)
}

func TestProcessDrainsAtMostOne(t *testing.T) {
	r, _ := newRouter(t, ACore)
	require.False(t, r.Process())
}

func TestNoneDiscardedWithoutCallback(t *testing.T) {
	r, tr := newRouter(t, ACore)
	called := false
	r.Register(func(*ipc.Message, any) { called = true }, nil)

	tr.deliver(ipc.Message{})
	require.True(t, r.Process())
	require.False(t, called)
	s := r.Stats()
	require.Equal(t, uint32(1), s.Discarded)
	require.Equal(t, uint32(1), s.ByKind[errcode.KindProtocol])
	require.Zero(t, s.Errors)
}

func TestCallbackRunsFirstAndCanShadow(t *testing.T) {
	r, tr := newRouter(t, PCore)
	var order []string
	r.Register(func(m *ipc.Message, user any) {
		order = append(order, user.(string))
		m.Cmd = ipc.CmdNone
	}, "app")

	tr.deliver(ipc.NewMessage(ipc.CmdPing, 7))
	r.Process()
	require.Equal(t, []string{"app"}, order)
	require.Zero(t, tr.count(), "shadowed ping must not be answered")
}

func TestPeerLogsGoToConsole(t *testing.T) {
	var lines []string
	sink := console.Func(func(origin, level, text string) {
		lines = append(lines, "["+origin+"/"+level+"] "+text)
	})
	r, tr := newRouter(t, PCore, WithConsole(sink))

	tr.deliver(ipc.NewText(ipc.CmdLogWarn, "low battery"))
	r.Process()
	tr.deliver(ipc.NewText(ipc.CmdLog, "plain"))
	r.Process()
	require.Equal(t, []string{"[A-core/WARN] low battery", "[A-core/LOG] plain"}, lines)
}

type recordQueue struct{ got []ipc.Message }

func (q *recordQueue) Enqueue(m ipc.Message, _ time.Duration) error {
	q.got = append(q.got, m)
	return nil
}

type capsStub struct{ calls int }

func (c *capsStub) SendCurrent() error { c.calls++; return nil }

func TestPCoreRoutesWifiAndCapsense(t *testing.T) {
	q := &recordQueue{}
	caps := &capsStub{}
	r, tr := newRouter(t, PCore, WithWifiQueue(q), WithCapsense(caps))

	for _, c := range []ipc.Cmd{ipc.CmdWifiScanStart, ipc.CmdWifiConnect, ipc.CmdNTPSync, ipc.CmdCapsenseReq} {
		tr.deliver(ipc.NewMessage(c, 0))
		r.Process()
	}
	require.Len(t, q.got, 3)
	require.Equal(t, ipc.CmdNTPSync, q.got[2].Cmd)
	require.Equal(t, 1, caps.calls)
	require.Zero(t, r.Stats().Ignored)
}

func TestAttachBindsRoutesLate(t *testing.T) {
	r, tr := newRouter(t, PCore)
	q := &recordQueue{}
	r.Attach(WithWifiQueue(q))
	tr.deliver(ipc.NewMessage(ipc.CmdWifiStatus, 0))
	r.Process()
	require.Len(t, q.got, 1)
}

func TestACoreDoesNotRouteWifi(t *testing.T) {
	q := &recordQueue{}
	r, tr := newRouter(t, ACore, WithWifiQueue(q))
	tr.deliver(ipc.NewMessage(ipc.CmdWifiScanComplete, 3))
	r.Process()
	require.Empty(t, q.got)
	require.Equal(t, uint32(1), r.Stats().Ignored)
}

func TestUnknownTagIgnoredNotError(t *testing.T) {
	r, tr := newRouter(t, PCore)
	r.Register(func(*ipc.Message, any) {}, nil)
	tr.deliver(ipc.NewMessage(ipc.Cmd(0x7E), 0))
	r.Process()
	s := r.Stats()
	require.Equal(t, uint32(1), s.Ignored)
	require.Zero(t, s.Errors)
}

func TestPermanentlyBusyGivesUpAfterExactLimit(t *testing.T) {
	r, tr := newRouter(t, ACore)
	tr.busy = -1
	sleeps := 0
	r.sleep = func(d time.Duration) {
		require.Equal(t, time.Millisecond, d)
		sleeps++
	}

	err := r.SendRetry(ipc.NewMessage(ipc.CmdPing, 1), 0)
	require.ErrorIs(t, err, errcode.GaveUp)
	require.Equal(t, 10, tr.attempts)
	require.Equal(t, 9, sleeps)
	s := r.Stats()
	require.Equal(t, uint32(1), s.Errors)
	require.Equal(t, uint32(1), s.ByKind[errcode.KindTransient])
	require.Zero(t, s.Tx)

	tr.attempts = 0
	require.ErrorIs(t, r.SendRetry(ipc.NewMessage(ipc.CmdPing, 1), 3), errcode.GaveUp)
	require.Equal(t, 3, tr.attempts)
}

func TestBusyThenSuccess(t *testing.T) {
	r, tr := newRouter(t, ACore)
	tr.busy = 2
	require.NoError(t, r.SendCmd(ipc.CmdNTPSync, 0))
	require.Equal(t, 3, tr.attempts)
	require.Zero(t, r.Stats().Errors)
}

func TestWifiQueueOverflowCountsOneError(t *testing.T) {
	q := queue.New("wifi", queue.DefaultCapacity)
	r, tr := newRouter(t, PCore, WithWifiQueue(q))

	for i := 0; i < 8; i++ {
		tr.deliver(ipc.NewMessage(ipc.CmdWifiStatus, uint32(i)))
		r.Process()
	}
	require.Equal(t, 8, q.Len())
	require.Zero(t, r.Stats().Errors)

	start := time.Now()
	tr.deliver(ipc.NewMessage(ipc.CmdWifiStatus, 8))
	r.Process()
	require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	s := r.Stats()
	require.Equal(t, uint32(1), s.Errors)
	require.Equal(t, uint32(1), s.ByKind[errcode.KindTransient])
	warn := tr.last()
	require.Equal(t, ipc.CmdLogWarn, warn.Cmd)
	require.Contains(t, warn.Text(), "WIFI_STATUS dropped")
}

func TestOverrunCounted(t *testing.T) {
	r, tr := newRouter(t, ACore)
	tr.deliver(ipc.NewMessage(ipc.CmdAck, 1))
	tr.deliver(ipc.NewMessage(ipc.CmdAck, 2))
	require.Equal(t, uint32(1), r.Stats().Overruns)

	var got []uint32
	r.Register(func(m *ipc.Message, _ any) { got = append(got, m.Value) }, nil)
	for r.Process() {
	}
	require.Equal(t, []uint32{2}, got)
}

func TestFailReportsToPeer(t *testing.T) {
	r, tr := newRouter(t, PCore)
	r.Fail(&errcode.E{C: errcode.SensorRead, Op: "imu.read"})
	s := r.Stats()
	require.Equal(t, uint32(1), s.Errors)
	require.Equal(t, uint32(1), s.ByKind[errcode.KindHardware])
	logged := tr.last()
	require.Equal(t, ipc.CmdLogError, logged.Cmd)
	require.Equal(t, "imu.read: sensor_read", logged.Text())

	r.ResetStats()
	require.Equal(t, Stats{}, r.Stats())
}

func TestTypedHelpers(t *testing.T) {
	r, tr := newRouter(t, PCore)
	require.NoError(t, r.SendButtonEvent(2, true, 99))
	var b ipc.ButtonData
	btn := tr.last()
	require.NoError(t, b.UnmarshalBinary(btn.Data[:]))
	require.Equal(t, ipc.ButtonData{ID: 2, Pressed: true, Timestamp: 99}, b)

	require.NoError(t, r.SendLED(1, true))
	led := tr.last()
	require.Equal(t, []byte{1, 1, 100, 0}, led.Data[:4])

	require.NoError(t, r.SendIMU(ipc.IMUData{Accel: [3]int16{1, -1, 16384}}))
	require.Equal(t, ipc.CmdIMUData, tr.last().Cmd)
}

func TestPingRoundTripOverMailbox(t *testing.T) {
	p, a, err := mailbox.NewPair(mailbox.DefaultConfig())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	a.Start(ctx)

	pr := New(p, DefaultConfig(PCore))
	ar := New(a, DefaultConfig(ACore))
	go pr.Run(ctx)
	go ar.Run(ctx)
	require.Eventually(t, func() bool { return pr.ready.Load() && ar.ready.Load() }, time.Second, time.Millisecond)

	pong := make(chan uint32, 1)
	ar.Register(func(m *ipc.Message, _ any) {
		if m.Cmd == ipc.CmdPong {
			pong <- m.Value
		}
	}, nil)

	rxBefore := ar.Stats().Rx
	require.NoError(t, ar.SendCmd(ipc.CmdPing, 42))
	select {
	case v := <-pong:
		require.Equal(t, uint32(42), v)
	case <-time.After(50 * time.Millisecond):
		t.Fatal("no PONG within 50ms")
	}
	require.Equal(t, rxBefore+1, ar.Stats().Rx)
}
