package sim

import (
	"encoding/binary"
	"sync"

	"dualcore-go/errcode"
)

// BMI270 models the register file the driver touches.
type BMI270 struct {
	mu    sync.Mutex
	regs  [128]byte
	accel [3]int16
	gyro  [3]int16
	fail  bool

	blob int // bytes received on INIT_DATA
}

func NewBMI270() *BMI270 {
	s := &BMI270{}
	s.regs[0x00] = 0x24
	return s
}

// SetRaw sets the next sample in sensor LSB.
func (s *BMI270) SetRaw(accel, gyro [3]int16) {
	s.mu.Lock()
	s.accel, s.gyro = accel, gyro
	s.mu.Unlock()
}

// Fail makes every transaction NAK until cleared.
func (s *BMI270) Fail(on bool) {
	s.mu.Lock()
	s.fail = on
	s.mu.Unlock()
}

// Reg returns a register's current value.
func (s *BMI270) Reg(r byte) byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[r&0x7F]
}

// BlobBytes reports how much of a feature blob was uploaded.
func (s *BMI270) BlobBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blob
}

func (s *BMI270) Tx(w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return &errcode.E{C: errcode.BusNAK, Op: "bmi270.tx"}
	}
	if len(w) == 0 {
		return &errcode.E{C: errcode.BusNAK, Op: "bmi270.tx", Msg: "no register pointer"}
	}
	reg := w[0] & 0x7F
	if data := w[1:]; len(data) > 0 {
		s.write(reg, data)
	}
	if len(r) > 0 {
		s.read(reg, r)
	}
	return nil
}

func (s *BMI270) write(reg byte, data []byte) {
	switch reg {
	case 0x5E:
		s.blob += len(data)
		return
	case 0x7E:
		if data[0] == 0xB6 {
			id := s.regs[0x00]
			s.regs = [128]byte{}
			s.regs[0x00] = id
		}
		return
	case 0x59:
		if data[0] == 0x01 && s.blob > 0 {
			s.regs[0x21] = 0x01
		}
	}
	for i, v := range data {
		s.regs[(int(reg)+i)&0x7F] = v
	}
}

func (s *BMI270) read(reg byte, r []byte) {
	if reg == 0x0C {
		var frame [12]byte
		for i := 0; i < 3; i++ {
			binary.LittleEndian.PutUint16(frame[2*i:], uint16(s.accel[i]))
			binary.LittleEndian.PutUint16(frame[6+2*i:], uint16(s.gyro[i]))
		}
		copy(r, frame[:])
		return
	}
	for i := range r {
		r[i] = s.regs[(int(reg)+i)&0x7F]
	}
}
