// Package capsense polls the touch co-processor on the P-core. It is driven
// from the IMU task after each sample so both share the I²C bus serially.
package capsense

import (
	"sync"

	"github.com/golang/glog"

	"dualcore-go/blackboard"
	"dualcore-go/drivers/capsense"
	"dualcore-go/errcode"
	"dualcore-go/ipc"
	"dualcore-go/x/timex"
)

// FrameReader is the controller read the poller needs.
type FrameReader interface {
	ReadFrame() ([capsense.FrameSize]byte, error)
}

// ButtonSink receives per-button edges.
type ButtonSink interface {
	SendButtonEvent(id uint8, pressed bool, tick uint32) error
}

type Option func(*Poller)

// WithBoard mirrors every decoded read onto the capsense blackboard.
func WithBoard(w *blackboard.CapsenseWriter) Option { return func(p *Poller) { p.board = w } }

// WithButtonEvents additionally reports button edges as BUTTON_EVENT.
func WithButtonEvents(s ButtonSink) Option { return func(p *Poller) { p.buttons = s } }

func WithTicks(s timex.Source) Option { return func(p *Poller) { p.ticks = s } }

// Decode applies the controller's frame encoding. Button bytes are ASCII
// digits; button 1 reads '1' when released.
func Decode(f [capsense.FrameSize]byte) ipc.CapsenseData {
	b0, b1 := f[0]-0x30, f[1]-0x30
	return ipc.CapsenseData{
		Btn0:   b0 != 0,
		Btn1:   b1 != 1,
		Slider: f[2],
		Active: f[2] != 0,
	}
}

type Poller struct {
	dev FrameReader
	tx  ipc.Sender

	board   *blackboard.CapsenseWriter
	buttons ButtonSink
	ticks   timex.Source

	mu      sync.Mutex
	cur     ipc.CapsenseData
	prev    ipc.CapsenseData
	sent    uint32
	readErr uint32
}

func New(dev FrameReader, tx ipc.Sender, opts ...Option) *Poller {
	p := &Poller{dev: dev, tx: tx}
	for _, o := range opts {
		o(p)
	}
	if p.ticks == nil {
		p.ticks = timex.NewBoot()
	}
	if p.board != nil {
		p.board.Install()
	}
	return p
}

// Poll reads one frame and emits CAPSENSE_DATA when the tuple changed.
func (p *Poller) Poll() error {
	f, err := p.dev.ReadFrame()
	if err != nil {
		p.mu.Lock()
		p.readErr++
		p.mu.Unlock()
		if p.board != nil {
			p.board.Error()
		}
		if glog.V(2) {
			glog.Infof("capsense: read: %v", err)
		}
		return errcode.Wrap(errcode.SensorRead, "capsense.poll", err)
	}
	d := Decode(f)
	tick := p.ticks.Now()
	if p.board != nil {
		_ = p.board.Publish(blackboard.CapsenseRecord{Tick: tick, CapsenseData: d})
	}

	p.mu.Lock()
	p.cur = d
	old := p.prev
	changed := d != old
	if changed {
		p.prev = d
	}
	p.mu.Unlock()

	if !changed {
		return nil
	}
	if p.buttons != nil {
		if d.Btn0 != old.Btn0 {
			_ = p.buttons.SendButtonEvent(0, d.Btn0, tick)
		}
		if d.Btn1 != old.Btn1 {
			_ = p.buttons.SendButtonEvent(1, d.Btn1, tick)
		}
	}
	return p.send(d)
}

// SendCurrent emits the last decoded tuple; edge history is not touched.
func (p *Poller) SendCurrent() error {
	p.mu.Lock()
	d := p.cur
	p.mu.Unlock()
	return p.send(d)
}

// Current returns the last decoded tuple.
func (p *Poller) Current() ipc.CapsenseData {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur
}

func (p *Poller) send(d ipc.CapsenseData) error {
	m, err := ipc.NewPayload(ipc.CmdCapsenseData, 0, d)
	if err != nil {
		return err
	}
	if err := p.tx.SendMsg(m); err != nil {
		return err
	}
	p.mu.Lock()
	p.sent++
	p.mu.Unlock()
	return nil
}

// Counts returns emitted messages and failed reads.
func (p *Poller) Counts() (sent, readErrors uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent, p.readErr
}
