// Package blackboard publishes fixed-layout records through shared memory
// with a sequence counter: one writer core, any number of reader cores,
// readers never block the writer and never accept a torn record.
//
// Word layout of every board (little-endian):
//
//	0 magic | 1 version | 2 valid | 3 update_count | 4 error_count | 5.. payload
package blackboard

import (
	"dualcore-go/errcode"
	"dualcore-go/x/shmem"
)

const (
	wMagic = iota
	wVersion
	wValid
	wSeq
	wErrors
	wPayload

	headerBytes = wPayload * 4
)

// Layout names a board's place in the arena.
type Layout struct {
	Name    string
	Magic   uint32
	Version uint32
	Offset  int
	Size    int
}

func (l Layout) PayloadMax() int { return l.Size - headerBytes }

var (
	CapsenseLayout = Layout{Name: "capsense", Magic: 0xCA95E00D, Version: 1, Offset: 0x00, Size: 64}
	IMULayout      = Layout{Name: "imu", Magic: 0x1AACC00D, Version: 1, Offset: 0x40, Size: 96}
)

// ArenaBytes is the space both default boards need.
const ArenaBytes = 0x40 + 96

// Status is the outcome of a read.
type Status uint8

const (
	NoData Status = iota // nothing valid observed yet
	Fresh                // consistent snapshot taken now
	Cached               // snapshot rejected; last good value returned
)

func (s Status) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Cached:
		return "cached"
	default:
		return "no-data"
	}
}

// Ok reports whether dst was filled.
func (s Status) Ok() bool { return s != NoData }

// -----------------------------------------------------------------------------
// Writer
// -----------------------------------------------------------------------------

// Writer is owned by exactly one core.
type Writer struct {
	reg       *shmem.Region
	l         Layout
	installed bool
}

func NewWriter(a *shmem.Arena, l Layout) (*Writer, error) {
	reg, err := a.Region("blackboard."+l.Name, l.Offset, l.Size)
	if err != nil {
		return nil, err
	}
	return &Writer{reg: reg, l: l}, nil
}

// Install clears the board and writes its identity. Magic goes last so
// readers never see a matching magic over stale header words.
func (w *Writer) Install() {
	w.reg.Store(wMagic, 0)
	for i := 1; i < w.reg.Words(); i++ {
		w.reg.Store(i, 0)
	}
	w.reg.Store(wVersion, w.l.Version)
	w.reg.Store(wMagic, w.l.Magic)
	w.installed = true
}

// Publish runs one odd→payload→even update.
func (w *Writer) Publish(p []byte) error {
	if !w.installed {
		return &errcode.E{C: errcode.NotReady, Op: "blackboard.publish", Msg: w.l.Name}
	}
	if len(p) > w.l.PayloadMax() {
		return &errcode.E{C: errcode.InvalidPayload, Op: "blackboard.publish", Msg: w.l.Name + " payload too large"}
	}
	w.reg.Add(wSeq, 1)
	w.reg.WriteBytes(wPayload, p)
	w.reg.Store(wValid, 1)
	w.reg.Add(wSeq, 1)
	return nil
}

// Error bumps the error counter without touching the data counter.
func (w *Writer) Error() { w.reg.Add(wErrors, 1) }

func (w *Writer) Seq() uint32    { return w.reg.Load(wSeq) }
func (w *Writer) Errors() uint32 { return w.reg.Load(wErrors) }

// -----------------------------------------------------------------------------
// Reader
// -----------------------------------------------------------------------------

// Reader keeps its own last-good copy; it is not safe for concurrent use.
type Reader struct {
	reg   *shmem.Region
	l     Layout
	tmp   []byte
	cache []byte
	have  bool

	rejected uint32
}

func NewReader(a *shmem.Arena, l Layout) (*Reader, error) {
	reg, err := a.Region("blackboard."+l.Name, l.Offset, l.Size)
	if err != nil {
		return nil, err
	}
	n := l.PayloadMax()
	return &Reader{reg: reg, l: l, tmp: make([]byte, n), cache: make([]byte, n)}, nil
}

// Read copies the payload into dst (up to len(dst) bytes).
func (r *Reader) Read(dst []byte) Status {
	if r.snapshot() {
		copy(r.cache, r.tmp)
		r.have = true
		copy(dst, r.tmp)
		return Fresh
	}
	r.rejected++
	if !r.have {
		return NoData
	}
	copy(dst, r.cache)
	return Cached
}

func (r *Reader) snapshot() bool {
	s1 := r.reg.Load(wSeq)
	if s1&1 != 0 || r.reg.Load(wMagic) != r.l.Magic || r.reg.Load(wValid) == 0 {
		return false
	}
	r.reg.ReadBytes(wPayload, r.tmp)
	return r.reg.Load(wSeq) == s1
}

// Ready reports whether the writer has installed the board.
func (r *Reader) Ready() bool { return r.reg.Load(wMagic) == r.l.Magic }

func (r *Reader) Seq() uint32    { return r.reg.Load(wSeq) }
func (r *Reader) Errors() uint32 { return r.reg.Load(wErrors) }

// Rejected counts reads that fell back to the cache or to NoData.
func (r *Reader) Rejected() uint32 { return r.rejected }
