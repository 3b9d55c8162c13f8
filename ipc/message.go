package ipc

import (
	"encoding/binary"
	"strconv"

	"dualcore-go/errcode"
)

const (
	DataMax      = 128
	EnvelopeSize = 2 + 2 + 4 + 4 + DataMax // 140
)

// Message is the envelope copied into a mailbox slot. ClientID and
// ReleaseMask belong to the transport and are stamped on send.
type Message struct {
	ClientID    uint16
	ReleaseMask uint16
	Cmd         Cmd
	Value       uint32
	Data        [DataMax]byte
}

// Sender is what services need from a router.
type Sender interface {
	SendMsg(Message) error
}

func NewMessage(cmd Cmd, value uint32) Message {
	return Message{Cmd: cmd, Value: value}
}

// NewText builds a message whose opaque area holds NUL-terminated text,
// truncated to DataMax-1 bytes.
func NewText(cmd Cmd, text string) Message {
	m := Message{Cmd: cmd}
	m.SetText(text)
	return m
}

// NewPayload marshals p into the opaque area.
func NewPayload(cmd Cmd, value uint32, p interface{ MarshalBinary() ([]byte, error) }) (Message, error) {
	m := Message{Cmd: cmd, Value: value}
	b, err := p.MarshalBinary()
	if err != nil {
		return m, err
	}
	return m, m.SetPayload(b)
}

func (m Message) Valid() bool { return m.Cmd != CmdNone }

func (m *Message) Clear() {
	m.Cmd = CmdNone
	m.Value = 0
	m.Data[0] = 0
}

func (m *Message) SetText(s string) {
	putCString(m.Data[:], s)
}

func (m *Message) Text() string { return cString(m.Data[:]) }

// SetPayload copies p into the opaque area and zeroes the remainder.
func (m *Message) SetPayload(p []byte) error {
	if len(p) > DataMax {
		return &errcode.E{C: errcode.InvalidPayload, Op: "ipc.payload", Msg: "exceeds 128 bytes"}
	}
	n := copy(m.Data[:], p)
	clear(m.Data[n:])
	return nil
}

// PutBinary writes the little-endian wire image into dst, which must hold
// EnvelopeSize bytes.
func (m *Message) PutBinary(dst []byte) {
	_ = dst[EnvelopeSize-1]
	binary.LittleEndian.PutUint16(dst[0:], m.ClientID)
	binary.LittleEndian.PutUint16(dst[2:], m.ReleaseMask)
	binary.LittleEndian.PutUint32(dst[4:], uint32(m.Cmd))
	binary.LittleEndian.PutUint32(dst[8:], m.Value)
	copy(dst[12:], m.Data[:])
}

func (m Message) MarshalBinary() ([]byte, error) {
	b := make([]byte, EnvelopeSize)
	m.PutBinary(b)
	return b, nil
}

func (m *Message) UnmarshalBinary(b []byte) error {
	if len(b) < EnvelopeSize {
		return &errcode.E{C: errcode.InvalidPayload, Op: "ipc.envelope", Msg: "short envelope"}
	}
	cmd := binary.LittleEndian.Uint32(b[4:])
	if cmd > 0xFF {
		return &errcode.E{C: errcode.UnknownCommand, Op: "ipc.envelope"}
	}
	m.ClientID = binary.LittleEndian.Uint16(b[0:])
	m.ReleaseMask = binary.LittleEndian.Uint16(b[2:])
	m.Cmd = Cmd(cmd)
	m.Value = binary.LittleEndian.Uint32(b[8:])
	copy(m.Data[:], b[12:EnvelopeSize])
	return nil
}

// putCString writes s NUL-terminated into dst, truncating, and zeroes the rest.
func putCString(dst []byte, s string) {
	if len(dst) == 0 {
		return
	}
	n := copy(dst[:len(dst)-1], s)
	clear(dst[n:])
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func short(op string, want, got int) error {
	return &errcode.E{C: errcode.InvalidPayload, Op: op, Msg: "need " + strconv.Itoa(want) + " bytes, got " + strconv.Itoa(got)}
}
