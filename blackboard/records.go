package blackboard

import (
	"encoding/binary"
	"math"

	"dualcore-go/ipc"
	"dualcore-go/x/shmem"
)

// IMURecord is one SI-unit sample.
type IMURecord struct {
	Tick  uint32
	Accel [3]float32 // m/s²
	Gyro  [3]float32 // rad/s
	Raw   [6]int16   // accel xyz, gyro xyz in sensor LSB
}

const imuRecordBytes = 4 + 6*4 + 6*2

func (rec *IMURecord) put(b []byte) {
	binary.LittleEndian.PutUint32(b[0:], rec.Tick)
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(b[4+4*i:], math.Float32bits(rec.Accel[i]))
		binary.LittleEndian.PutUint32(b[16+4*i:], math.Float32bits(rec.Gyro[i]))
	}
	for i := 0; i < 6; i++ {
		binary.LittleEndian.PutUint16(b[28+2*i:], uint16(rec.Raw[i]))
	}
}

func (rec *IMURecord) get(b []byte) {
	rec.Tick = binary.LittleEndian.Uint32(b[0:])
	for i := 0; i < 3; i++ {
		rec.Accel[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4+4*i:]))
		rec.Gyro[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[16+4*i:]))
	}
	for i := 0; i < 6; i++ {
		rec.Raw[i] = int16(binary.LittleEndian.Uint16(b[28+2*i:]))
	}
}

type IMUWriter struct {
	*Writer
	buf [imuRecordBytes]byte
}

func NewIMUWriter(a *shmem.Arena) (*IMUWriter, error) {
	w, err := NewWriter(a, IMULayout)
	if err != nil {
		return nil, err
	}
	return &IMUWriter{Writer: w}, nil
}

func (w *IMUWriter) Publish(rec IMURecord) error {
	rec.put(w.buf[:])
	return w.Writer.Publish(w.buf[:])
}

type IMUReader struct {
	*Reader
	buf [imuRecordBytes]byte
}

func NewIMUReader(a *shmem.Arena) (*IMUReader, error) {
	r, err := NewReader(a, IMULayout)
	if err != nil {
		return nil, err
	}
	return &IMUReader{Reader: r}, nil
}

func (r *IMUReader) Read() (IMURecord, Status) {
	var rec IMURecord
	st := r.Reader.Read(r.buf[:])
	if st.Ok() {
		rec.get(r.buf[:])
	}
	return rec, st
}

// CapsenseRecord is the touch tuple with the tick it was sampled at.
type CapsenseRecord struct {
	Tick uint32
	ipc.CapsenseData
}

const capsenseRecordBytes = 4 + ipc.CapsenseSize

type CapsenseWriter struct {
	*Writer
}

func NewCapsenseWriter(a *shmem.Arena) (*CapsenseWriter, error) {
	w, err := NewWriter(a, CapsenseLayout)
	if err != nil {
		return nil, err
	}
	return &CapsenseWriter{Writer: w}, nil
}

func (w *CapsenseWriter) Publish(rec CapsenseRecord) error {
	var b [capsenseRecordBytes]byte
	binary.LittleEndian.PutUint32(b[0:], rec.Tick)
	p, _ := rec.CapsenseData.MarshalBinary()
	copy(b[4:], p)
	return w.Writer.Publish(b[:])
}

type CapsenseReader struct {
	*Reader
}

func NewCapsenseReader(a *shmem.Arena) (*CapsenseReader, error) {
	r, err := NewReader(a, CapsenseLayout)
	if err != nil {
		return nil, err
	}
	return &CapsenseReader{Reader: r}, nil
}

func (r *CapsenseReader) Read() (CapsenseRecord, Status) {
	var b [capsenseRecordBytes]byte
	var rec CapsenseRecord
	st := r.Reader.Read(b[:])
	if st.Ok() {
		rec.Tick = binary.LittleEndian.Uint32(b[0:])
		_ = rec.CapsenseData.UnmarshalBinary(b[4:])
	}
	return rec, st
}
