package capsense

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"dualcore-go/blackboard"
	"dualcore-go/drivers/capsense"
	"dualcore-go/errcode"
	"dualcore-go/ipc"
	"dualcore-go/sim"
	"dualcore-go/x/shmem"
	"dualcore-go/x/timex"
)

type sink struct{ msgs []ipc.Message }

func (s *sink) SendMsg(m ipc.Message) error { s.msgs = append(s.msgs, m); return nil }

type buttonLog struct{ ids []uint8 }

func (b *buttonLog) SendButtonEvent(id uint8, pressed bool, tick uint32) error {
	b.ids = append(b.ids, id)
	return nil
}

func newRig(t *testing.T, opts ...Option) (*Poller, *sim.Touch, *sink) {
	t.Helper()
	bus := sim.NewI2CBus()
	touch := sim.NewTouch()
	bus.Attach(capsense.Address, touch)
	tx := &sink{}
	return New(capsense.New(bus), tx, opts...), touch, tx
}

func TestDecode(t *testing.T) {
	cases := []struct {
		frame [3]byte
		want  ipc.CapsenseData
	}{
		{[3]byte{'0', '1', 0}, ipc.CapsenseData{}},
		{[3]byte{0x30, 0x32, 0x40}, ipc.CapsenseData{Btn1: true, Slider: 64, Active: true}},
		{[3]byte{'1', '0', 100}, ipc.CapsenseData{Btn0: true, Btn1: true, Slider: 100, Active: true}},
		{[3]byte{'0', '1', 1}, ipc.CapsenseData{Slider: 1, Active: true}},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Decode(c.frame), "frame %v", c.frame)
	}
}

func TestEmitsOnlyOnChange(t *testing.T) {
	p, touch, tx := newRig(t)
	touch.SetFrame(0x30, 0x32, 0x40)

	require.NoError(t, p.Poll())
	require.Len(t, tx.msgs, 1)
	m := tx.msgs[0]
	require.Equal(t, ipc.CmdCapsenseData, m.Cmd)
	require.Equal(t, []byte{0, 1, 64, 1}, m.Data[:4])
	require.Zero(t, m.Data[4])

	require.NoError(t, p.Poll())
	require.Len(t, tx.msgs, 1, "identical read is silent")

	touch.Press(false, true, 65)
	require.NoError(t, p.Poll())
	require.Len(t, tx.msgs, 2)
}

func TestIdleFirstReadIsSilent(t *testing.T) {
	p, _, tx := newRig(t)
	require.NoError(t, p.Poll())
	require.Empty(t, tx.msgs)
}

func TestSendCurrentLeavesEdgeHistory(t *testing.T) {
	p, touch, tx := newRig(t)
	touch.Press(true, false, 0)
	require.NoError(t, p.Poll())
	require.NoError(t, p.SendCurrent())
	require.Len(t, tx.msgs, 2)
	require.Equal(t, tx.msgs[0].Data, tx.msgs[1].Data)

	require.NoError(t, p.Poll())
	require.Len(t, tx.msgs, 2, "forced send does not create an edge")
}

func TestReadFailureCountsOnBoard(t *testing.T) {
	a := shmem.NewArena(blackboard.ArenaBytes)
	w, err := blackboard.NewCapsenseWriter(a)
	require.NoError(t, err)
	r, err := blackboard.NewCapsenseReader(a)
	require.NoError(t, err)

	ticks := &timex.Manual{}
	p, touch, tx := newRig(t, WithBoard(w), WithTicks(ticks))
	touch.Fail(true)
	err = p.Poll()
	require.True(t, errors.Is(err, errcode.SensorRead))
	require.Equal(t, uint32(1), r.Errors())
	require.Empty(t, tx.msgs)

	touch.Fail(false)
	touch.Press(false, false, 30)
	ticks.Set(500)
	require.NoError(t, p.Poll())
	rec, st := r.Read()
	require.Equal(t, blackboard.Fresh, st)
	require.Equal(t, uint32(500), rec.Tick)
	require.Equal(t, uint8(30), rec.Slider)
	require.True(t, rec.Active)

	sent, readErrs := p.Counts()
	require.Equal(t, uint32(1), sent)
	require.Equal(t, uint32(1), readErrs)
}

func TestButtonEdges(t *testing.T) {
	btn := &buttonLog{}
	p, touch, _ := newRig(t, WithButtonEvents(btn))
	touch.Press(true, false, 0)
	require.NoError(t, p.Poll())
	touch.Press(true, true, 10)
	require.NoError(t, p.Poll())
	touch.Press(true, true, 20)
	require.NoError(t, p.Poll())
	require.Equal(t, []uint8{0, 1}, btn.ids)
}
