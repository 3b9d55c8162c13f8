// Package capsense reads the touch co-processor that reports two buttons and
// a slider as a fixed 3-byte frame: two ASCII digits then a raw position.
package capsense

import "tinygo.org/x/drivers"

// Address is the controller's 7-bit I²C address.
const Address = 0x08

// FrameSize is the length of one status frame.
const FrameSize = 3

type Device struct {
	bus     drivers.I2C
	Address uint16
}

func New(bus drivers.I2C) *Device {
	return &Device{bus: bus, Address: Address}
}

// ReadFrame performs a plain read with no register pointer.
func (d *Device) ReadFrame() (f [FrameSize]byte, err error) {
	err = d.bus.Tx(d.Address, nil, f[:])
	return f, err
}
