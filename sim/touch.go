package sim

import (
	"sync"

	"dualcore-go/errcode"
)

// Touch models the touch co-processor's 3-byte status frame.
type Touch struct {
	mu    sync.Mutex
	frame [3]byte
	fail  bool
	reads int
}

// NewTouch starts idle: button 0 released ('0'), button 1 released ('1').
func NewTouch() *Touch { return &Touch{frame: [3]byte{'0', '1', 0}} }

// SetFrame sets the raw bytes returned by the next reads.
func (t *Touch) SetFrame(b0, b1, slider byte) {
	t.mu.Lock()
	t.frame = [3]byte{b0, b1, slider}
	t.mu.Unlock()
}

// Press encodes logical button states the way the controller does.
func (t *Touch) Press(btn0, btn1 bool, slider uint8) {
	b0, b1 := byte('0'), byte('1')
	if btn0 {
		b0 = '1'
	}
	if btn1 {
		b1 = '0'
	}
	t.SetFrame(b0, b1, slider)
}

func (t *Touch) Fail(on bool) {
	t.mu.Lock()
	t.fail = on
	t.mu.Unlock()
}

func (t *Touch) Reads() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reads
}

func (t *Touch) Tx(w, r []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reads++
	if t.fail {
		return &errcode.E{C: errcode.BusNAK, Op: "touch.tx"}
	}
	copy(r, t.frame[:])
	return nil
}
