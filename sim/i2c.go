// Package sim provides host stand-ins for the hardware behind the P-core:
// an I²C bus with attachable devices and a Wi-Fi connection manager.
package sim

import (
	"sync"

	"tinygo.org/x/drivers"

	"dualcore-go/errcode"
)

// Device is a target on the simulated bus.
type Device interface {
	Tx(w, r []byte) error
}

var _ drivers.I2C = (*I2CBus)(nil)

// I2CBus routes transactions by 7-bit address.
type I2CBus struct {
	mu   sync.Mutex
	devs map[uint16]Device
	txs  int
}

func NewI2CBus() *I2CBus { return &I2CBus{devs: map[uint16]Device{}} }

func (b *I2CBus) Attach(addr uint16, d Device) {
	b.mu.Lock()
	b.devs[addr] = d
	b.mu.Unlock()
}

func (b *I2CBus) Detach(addr uint16) {
	b.mu.Lock()
	delete(b.devs, addr)
	b.mu.Unlock()
}

// Tx fails with BusNAK when nothing answers at addr.
func (b *I2CBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	d := b.devs[addr]
	b.txs++
	b.mu.Unlock()
	if d == nil {
		return &errcode.E{C: errcode.BusNAK, Op: "i2c.tx"}
	}
	return d.Tx(w, r)
}

// Transactions counts Tx calls, answered or not.
func (b *I2CBus) Transactions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.txs
}
