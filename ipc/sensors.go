package ipc

import "encoding/binary"

// CapsenseSize is the meaningful length of a CAPSENSE_DATA payload; the rest
// of the opaque area is zero.
const CapsenseSize = 4

// CapsenseData is the decoded touch tuple.
type CapsenseData struct {
	Btn0   bool
	Btn1   bool
	Slider uint8 // 0..100
	Active bool
}

func (c CapsenseData) MarshalBinary() ([]byte, error) {
	return []byte{b2u(c.Btn0), b2u(c.Btn1), c.Slider, b2u(c.Active)}, nil
}

func (c *CapsenseData) UnmarshalBinary(b []byte) error {
	if len(b) < CapsenseSize {
		return short("ipc.capsense", CapsenseSize, len(b))
	}
	c.Btn0, c.Btn1, c.Slider, c.Active = b[0] != 0, b[1] != 0, b[2], b[3] != 0
	return nil
}

// IMUSize covers six raw int16 axes and a tick timestamp.
const IMUSize = 16

type IMUData struct {
	Accel     [3]int16
	Gyro      [3]int16
	Timestamp uint32
}

func (d IMUData) MarshalBinary() ([]byte, error) {
	b := make([]byte, IMUSize)
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(d.Accel[i]))
		binary.LittleEndian.PutUint16(b[6+2*i:], uint16(d.Gyro[i]))
	}
	binary.LittleEndian.PutUint32(b[12:], d.Timestamp)
	return b, nil
}

func (d *IMUData) UnmarshalBinary(b []byte) error {
	if len(b) < IMUSize {
		return short("ipc.imu", IMUSize, len(b))
	}
	for i := 0; i < 3; i++ {
		d.Accel[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
		d.Gyro[i] = int16(binary.LittleEndian.Uint16(b[6+2*i:]))
	}
	d.Timestamp = binary.LittleEndian.Uint32(b[12:])
	return nil
}

const ButtonSize = 8

type ButtonData struct {
	ID        uint8
	Pressed   bool
	LongPress bool
	Timestamp uint32
}

func (d ButtonData) MarshalBinary() ([]byte, error) {
	b := make([]byte, ButtonSize)
	b[0], b[1], b[2] = d.ID, b2u(d.Pressed), b2u(d.LongPress)
	binary.LittleEndian.PutUint32(b[4:], d.Timestamp)
	return b, nil
}

func (d *ButtonData) UnmarshalBinary(b []byte) error {
	if len(b) < ButtonSize {
		return short("ipc.button", ButtonSize, len(b))
	}
	d.ID, d.Pressed, d.LongPress = b[0], b[1] != 0, b[2] != 0
	d.Timestamp = binary.LittleEndian.Uint32(b[4:])
	return nil
}

const LEDSize = 4

type LEDData struct {
	ID         uint8
	On         bool
	Brightness uint8 // percent
}

func (d LEDData) MarshalBinary() ([]byte, error) {
	br := d.Brightness
	if br > 100 {
		br = 100
	}
	return []byte{d.ID, b2u(d.On), br, 0}, nil
}

func (d *LEDData) UnmarshalBinary(b []byte) error {
	if len(b) < LEDSize {
		return short("ipc.led", LEDSize, len(b))
	}
	d.ID, d.On, d.Brightness = b[0], b[1] != 0, b[2]
	return nil
}

func b2u(v bool) byte {
	if v {
		return 1
	}
	return 0
}
