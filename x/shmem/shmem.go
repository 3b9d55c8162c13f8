// Package shmem models the memory both cores can see: a word-addressed arena
// carved into named regions, plus coalescing doorbells that stand in for the
// inter-core interrupt lines.
package shmem

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"dualcore-go/errcode"
)

// Arena is a block of 32-bit words shared by both cores.
type Arena struct {
	words []uint32

	mu      sync.Mutex
	regions map[string]*Region
}

// NewArena allocates size bytes; size is rounded up to a whole word.
func NewArena(size int) *Arena {
	if size <= 0 {
		panic("shmem: arena size must be positive")
	}
	return &Arena{
		words:   make([]uint32, (size+3)/4),
		regions: map[string]*Region{},
	}
}

func (a *Arena) Size() int { return len(a.words) * 4 }

// Region reserves [off, off+size) under name. Offsets and sizes must be word
// aligned and must not overlap an existing region. Asking again for the same
// name with the same geometry returns the existing region, which is how the
// second core attaches.
func (a *Arena) Region(name string, off, size int) (*Region, error) {
	if off%4 != 0 || size%4 != 0 || size <= 0 || off < 0 || off+size > a.Size() {
		return nil, &errcode.E{C: errcode.InvalidPayload, Op: "shmem.region", Msg: name}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if r, ok := a.regions[name]; ok {
		if r.off == off && r.size == size {
			return r, nil
		}
		return nil, &errcode.E{C: errcode.InvalidPayload, Op: "shmem.region", Msg: name + " geometry mismatch"}
	}
	for _, r := range a.regions {
		if off < r.off+r.size && r.off < off+size {
			return nil, &errcode.E{C: errcode.InvalidPayload, Op: "shmem.region", Msg: name + " overlaps " + r.name}
		}
	}
	r := &Region{name: name, off: off, size: size, w: a.words[off/4 : (off+size)/4]}
	a.regions[name] = r
	return r, nil
}

// Region is a word-aligned window of an Arena. Word accessors are atomic;
// byte accessors are not and must be fenced by the caller's protocol
// (seqlock counter or slot ownership flag).
type Region struct {
	name string
	off  int
	size int
	w    []uint32
}

func (r *Region) Name() string { return r.name }
func (r *Region) Offset() int  { return r.off }
func (r *Region) Len() int     { return r.size }
func (r *Region) Words() int   { return len(r.w) }

func (r *Region) Load(i int) uint32          { return atomic.LoadUint32(&r.w[i]) }
func (r *Region) Store(i int, v uint32)      { atomic.StoreUint32(&r.w[i], v) }
func (r *Region) Add(i int, d uint32) uint32 { return atomic.AddUint32(&r.w[i], d) }
func (r *Region) CompareAndSwap(i int, old, v uint32) bool {
	return atomic.CompareAndSwapUint32(&r.w[i], old, v)
}

// WriteBytes stores src little-endian starting at word index wi. A trailing
// partial word is zero padded.
func (r *Region) WriteBytes(wi int, src []byte) {
	var tmp [4]byte
	for len(src) > 0 {
		n := copy(tmp[:], src)
		for i := n; i < 4; i++ {
			tmp[i] = 0
		}
		atomic.StoreUint32(&r.w[wi], binary.LittleEndian.Uint32(tmp[:]))
		src = src[n:]
		wi++
	}
}

// ReadBytes fills dst from word index wi.
func (r *Region) ReadBytes(wi int, dst []byte) {
	var tmp [4]byte
	for len(dst) > 0 {
		binary.LittleEndian.PutUint32(tmp[:], atomic.LoadUint32(&r.w[wi]))
		n := copy(dst, tmp[:])
		dst = dst[n:]
		wi++
	}
}

// Zero clears the whole region.
func (r *Region) Zero() {
	for i := range r.w {
		atomic.StoreUint32(&r.w[i], 0)
	}
}

// Doorbell is a level-coalescing notification line: any number of Ring calls
// before the receiver wakes collapse into one edge.
type Doorbell struct{ ch chan struct{} }

func NewDoorbell() *Doorbell { return &Doorbell{ch: make(chan struct{}, 1)} }

func (d *Doorbell) Ring() {
	select {
	case d.ch <- struct{}{}:
	default:
	}
}

func (d *Doorbell) C() <-chan struct{} { return d.ch }
