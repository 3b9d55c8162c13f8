// Package bmi270 drives a Bosch BMI270 6-axis IMU over I²C.
//
// The driver stays in raw sensor units; callers convert with the configured
// ranges. Configure optionally uploads the vendor feature blob; without it the
// sensor still streams accel/gyro data in its default performance mode.
//
// NOTE: I2C.Tx MUST perform a write followed by a repeated-start read when both
// w and r are provided, without releasing the bus.
package bmi270

import (
	"encoding/binary"
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

// I2C addresses (SDO low / high).
const (
	Address    = 0x68
	AddressAlt = 0x69
)

// ChipID is the value of regChipID.
const ChipID = 0x24

// Resolution is the output width in bits for both accel and gyro.
const Resolution = 16

const (
	regChipID         = 0x00
	regData           = 0x0C // ACC_X_LSB .. GYR_Z_MSB, 12 bytes
	regInternalStatus = 0x21
	regAccConf        = 0x40
	regAccRange       = 0x41
	regGyrConf        = 0x42
	regGyrRange       = 0x43
	regInitCtrl       = 0x59
	regInitAddr0      = 0x5B
	regInitAddr1      = 0x5C
	regInitData       = 0x5E
	regPwrConf        = 0x7C
	regPwrCtrl        = 0x7D
	regCmd            = 0x7E

	cmdSoftReset = 0xB6

	pwrCtrlAccGyrTemp = 0x0E
	accConf100Hz      = 0xA8 // ODR 100 Hz, normal filter, performance mode
	gyrConf100Hz      = 0xA9

	statusInitOK   = 0x01
	statusInitMask = 0x0F

	blobChunk = 32
)

// AccelRange is the ACC_RANGE register value.
type AccelRange uint8

const (
	Accel2G  AccelRange = 0x00
	Accel4G  AccelRange = 0x01
	Accel8G  AccelRange = 0x02
	Accel16G AccelRange = 0x03
)

// G returns the full-scale range in g.
func (r AccelRange) G() float32 { return float32(uint(2) << (r & 0x03)) }

// GyroRange is the GYR_RANGE register value.
type GyroRange uint8

const (
	Gyro2000DPS GyroRange = 0x00
	Gyro1000DPS GyroRange = 0x01
	Gyro500DPS  GyroRange = 0x02
	Gyro250DPS  GyroRange = 0x03
	Gyro125DPS  GyroRange = 0x04
)

// DPS returns the full-scale range in degrees per second.
func (r GyroRange) DPS() float32 {
	if r > Gyro125DPS {
		r = Gyro2000DPS
	}
	return float32(uint(2000) >> r)
}

var (
	ErrWrongChip  = errors.New("bmi270: unexpected chip id")
	ErrInitFailed = errors.New("bmi270: feature blob not accepted")
)

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Address defaults to 0x68 if zero.
	Address    uint16
	AccelRange AccelRange
	GyroRange  GyroRange
	// InitBlob is the vendor configuration file; empty skips the upload.
	InitBlob []byte
	// InitTimeout bounds the wait for the blob to be accepted. Default 20 ms.
	InitTimeout time.Duration
}

type Device struct {
	bus     drivers.I2C
	Address uint16

	cfg Config
	buf [12]byte
}

// New creates a Device; it does not touch the bus.
func New(bus drivers.I2C) *Device {
	return &Device{bus: bus, Address: Address}
}

// Connected reports whether the chip id matches.
func (d *Device) Connected() bool {
	id, err := d.readReg(regChipID)
	return err == nil && id == ChipID
}

// Configure resets the sensor and applies the default profile:
// 100 Hz accel and gyro, ranges from cfg (±2 g and ±2000 dps when zero).
func (d *Device) Configure(cfgs ...Config) error {
	if len(cfgs) > 0 {
		d.cfg = cfgs[0]
	}
	if d.cfg.Address != 0 {
		d.Address = d.cfg.Address
	}
	if d.cfg.InitTimeout <= 0 {
		d.cfg.InitTimeout = 20 * time.Millisecond
	}

	if !d.Connected() {
		return ErrWrongChip
	}
	if err := d.writeReg(regCmd, cmdSoftReset); err != nil {
		return err
	}
	time.Sleep(2 * time.Millisecond)
	// advanced power save off so burst writes are accepted
	if err := d.writeReg(regPwrConf, 0x00); err != nil {
		return err
	}
	time.Sleep(time.Millisecond)

	if len(d.cfg.InitBlob) > 0 {
		if err := d.upload(d.cfg.InitBlob); err != nil {
			return err
		}
	}

	for _, rv := range [][2]byte{
		{regAccConf, accConf100Hz},
		{regAccRange, byte(d.cfg.AccelRange)},
		{regGyrConf, gyrConf100Hz},
		{regGyrRange, byte(d.cfg.GyroRange)},
		{regPwrCtrl, pwrCtrlAccGyrTemp},
	} {
		if err := d.writeReg(rv[0], rv[1]); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) upload(blob []byte) error {
	if err := d.writeReg(regInitCtrl, 0x00); err != nil {
		return err
	}
	w := make([]byte, 1+blobChunk)
	for off := 0; off < len(blob); off += blobChunk {
		end := min(off+blobChunk, len(blob))
		// address registers count 16-bit words
		word := off / 2
		if err := d.bus.Tx(d.Address, []byte{regInitAddr0, byte(word & 0x0F), byte(word >> 4)}, nil); err != nil {
			return err
		}
		w[0] = regInitData
		n := copy(w[1:], blob[off:end])
		if err := d.bus.Tx(d.Address, w[:1+n], nil); err != nil {
			return err
		}
	}
	if err := d.writeReg(regInitCtrl, 0x01); err != nil {
		return err
	}
	deadline := time.Now().Add(d.cfg.InitTimeout)
	for {
		st, err := d.readReg(regInternalStatus)
		if err == nil && st&statusInitMask == statusInitOK {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrInitFailed
		}
		time.Sleep(time.Millisecond)
	}
}

// ReadRaw burst-reads accel then gyro, each x/y/z in LSB.
func (d *Device) ReadRaw() (accel, gyro [3]int16, err error) {
	if err = d.bus.Tx(d.Address, []byte{regData}, d.buf[:]); err != nil {
		return
	}
	for i := 0; i < 3; i++ {
		accel[i] = int16(binary.LittleEndian.Uint16(d.buf[2*i:]))
		gyro[i] = int16(binary.LittleEndian.Uint16(d.buf[6+2*i:]))
	}
	return
}

// Ranges reports the configured full-scale ranges.
func (d *Device) Ranges() (g, dps float32) {
	return d.cfg.AccelRange.G(), d.cfg.GyroRange.DPS()
}

func (d *Device) readReg(reg byte) (byte, error) {
	var b [1]byte
	err := d.bus.Tx(d.Address, []byte{reg}, b[:])
	return b[0], err
}

func (d *Device) writeReg(reg, v byte) error {
	return d.bus.Tx(d.Address, []byte{reg, v}, nil)
}
