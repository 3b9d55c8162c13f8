// Package mailbox is the single-slot inter-core transport. Each direction
// owns one envelope-sized slot in shared memory plus a doorbell standing in
// for the notifier interrupt. A slot stays owned by the sender until the
// receiver's handler has returned and released it.
package mailbox

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	"dualcore-go/errcode"
	"dualcore-go/ipc"
	"dualcore-go/x/shmem"
)

const (
	slotFree  = 0
	slotOwned = 1

	// owner word plus the envelope, rounded to whole words
	slotSize = 4 + (ipc.EnvelopeSize+3)/4*4
)

// Config places the two slots in the arena and carries the pipe identities.
type Config struct {
	Arena  *shmem.Arena
	Offset int // byte offset of the P→A slot; A→P follows it

	PClientID    uint16
	AClientID    uint16
	PReleaseMask uint16
	AReleaseMask uint16
}

// DefaultConfig matches the board's pipe setup: client 3 on the P-core
// endpoint (interrupt 4), client 5 on the A-core endpoint (interrupt 5).
func DefaultConfig() Config {
	return Config{
		Offset:       0x100,
		PClientID:    3,
		AClientID:    5,
		PReleaseMask: 1 << 4,
		AReleaseMask: 1 << 5,
	}
}

// SlotBytes is the arena space NewPair needs past Config.Offset.
const SlotBytes = 2 * slotSize

type slot struct {
	reg  *shmem.Region
	bell *shmem.Doorbell
}

func newSlot(a *shmem.Arena, name string, off int) (*slot, error) {
	r, err := a.Region(name, off, slotSize)
	if err != nil {
		return nil, err
	}
	return &slot{reg: r, bell: shmem.NewDoorbell()}, nil
}

// Endpoint is one core's side of the pipe.
type Endpoint struct {
	name        string
	tx, rx      *slot
	peerID      uint16
	releaseMask uint16

	startOnce sync.Once
	started   atomic.Bool
	handler   atomic.Pointer[func(ipc.Message)]
	faults    atomic.Uint32
	delivered atomic.Uint32
}

// NewPair builds the P-core and A-core endpoints over two slots.
func NewPair(cfg Config) (p, a *Endpoint, err error) {
	if cfg.Arena == nil {
		cfg.Arena = shmem.NewArena(cfg.Offset + SlotBytes)
	}
	p2a, err := newSlot(cfg.Arena, "mailbox.p2a", cfg.Offset)
	if err != nil {
		return nil, nil, err
	}
	a2p, err := newSlot(cfg.Arena, "mailbox.a2p", cfg.Offset+slotSize)
	if err != nil {
		return nil, nil, err
	}
	p = &Endpoint{name: "p", tx: p2a, rx: a2p, peerID: cfg.AClientID, releaseMask: cfg.PReleaseMask}
	a = &Endpoint{name: "a", tx: a2p, rx: p2a, peerID: cfg.PClientID, releaseMask: cfg.AReleaseMask}
	return p, a, nil
}

func (e *Endpoint) Name() string { return e.name }

// OnReceive registers the single receive handler. It runs on the endpoint's
// notifier goroutine and must only copy the message out.
func (e *Endpoint) OnReceive(h func(ipc.Message)) {
	if h == nil {
		e.handler.Store(nil)
		return
	}
	e.handler.Store(&h)
}

// Start brings the endpoint up and runs its notifier until ctx ends.
// Calling it again is a no-op.
func (e *Endpoint) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		e.started.Store(true)
		go e.notifier(ctx)
	})
}

func (e *Endpoint) Ready() bool { return e.started.Load() }

// Send copies m into the outbound slot and rings the far side.
func (e *Endpoint) Send(m ipc.Message) error {
	if !e.started.Load() {
		return errcode.NotReady
	}
	if m.Cmd == ipc.CmdNone {
		return &errcode.E{C: errcode.InvalidCommand, Op: "mailbox.send", Msg: "NONE is never sent"}
	}
	if !e.tx.reg.CompareAndSwap(0, slotFree, slotOwned) {
		return errcode.Busy
	}
	m.ClientID = e.peerID
	m.ReleaseMask = e.releaseMask
	var buf [ipc.EnvelopeSize]byte
	m.PutBinary(buf[:])
	e.tx.reg.WriteBytes(1, buf[:])
	e.tx.bell.Ring()
	return nil
}

// Busy reports whether the outbound slot is still owned by the far side.
func (e *Endpoint) Busy() bool { return e.tx.reg.Load(0) != slotFree }

// Faults counts envelopes that could not be decoded.
func (e *Endpoint) Faults() uint32 { return e.faults.Load() }

// Delivered counts envelopes handed to the handler.
func (e *Endpoint) Delivered() uint32 { return e.delivered.Load() }

func (e *Endpoint) notifier(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.rx.bell.C():
			e.service()
		}
	}
}

// service is the interrupt body: copy out, hand off, release.
func (e *Endpoint) service() {
	if e.rx.reg.Load(0) != slotOwned {
		return
	}
	var buf [ipc.EnvelopeSize]byte
	e.rx.reg.ReadBytes(1, buf[:])

	var m ipc.Message
	if err := m.UnmarshalBinary(buf[:]); err != nil {
		e.faults.Add(1)
		glog.Warningf("mailbox[%s]: dropping envelope: %v", e.name, err)
	} else if h := e.handler.Load(); h != nil {
		e.delivered.Add(1)
		if glog.V(2) {
			glog.Infof("mailbox[%s]: rx %s value=%d", e.name, m.Cmd, m.Value)
		}
		(*h)(m)
	}
	e.rx.reg.Store(0, slotFree)
}
