// Package ntp performs a single SNTP exchange over UDP and returns Unix
// seconds. It carries no clock state; callers keep their own base.
package ntp

import (
	"context"
	"encoding/binary"
	"net"
	"strconv"
	"time"

	"dualcore-go/errcode"
	"dualcore-go/ipc"
)

const (
	PacketSize = 48

	DefaultServer  = "216.239.35.0" // time.google.com
	DefaultPort    = 123
	DefaultTimeout = 5 * time.Second
	DefaultFloor   = 1577836800 // 2020-01-01T00:00:00Z

	unixOffset = 2208988800 // 1900-01-01 to 1970-01-01
	maxEpoch   = 1<<31 - 1
	modeClient = 0x1B // LI 0, VN 3, mode 3
)

// Error carries the NTP_ERROR reason code.
type Error struct {
	Reason ipc.NTPFailure
	Err    error
}

func (e *Error) Error() string {
	s := "ntp: " + e.Reason.String()
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Code classifies the failure for error accounting.
func (e *Error) Code() errcode.Code {
	switch e.Reason {
	case ipc.NTPNoWifi:
		return errcode.NotReady
	case ipc.NTPReceive:
		return errcode.Timeout
	case ipc.NTPInvalid:
		return errcode.InvalidPayload
	default:
		return errcode.Error
	}
}

// Fail builds an *Error for reason.
func Fail(reason ipc.NTPFailure, err error) *Error { return &Error{Reason: reason, Err: err} }

// Dialer opens the datagram socket; net.Dialer.DialContext fits.
type Dialer func(ctx context.Context, network, address string) (net.Conn, error)

type Client struct {
	Server  string
	Port    int
	Timeout time.Duration
	Floor   uint32
	Dial    Dialer
}

func NewClient() *Client {
	return &Client{
		Server:  DefaultServer,
		Port:    DefaultPort,
		Timeout: DefaultTimeout,
		Floor:   DefaultFloor,
	}
}

// Request returns a client-mode request packet.
func Request() [PacketSize]byte {
	var p [PacketSize]byte
	p[0] = modeClient
	return p
}

// Parse extracts the transmit timestamp seconds as Unix time and checks it
// against [floor, 2^31-1]. Timestamps before 1970, including the zero an
// unsynchronised server sends, are invalid.
func Parse(pkt []byte, floor uint32) (uint32, error) {
	if len(pkt) < PacketSize {
		return 0, Fail(ipc.NTPReceive, errcode.Wrap(errcode.InvalidPayload, "ntp.parse", nil))
	}
	secs := binary.BigEndian.Uint32(pkt[40:44])
	if secs < unixOffset {
		return 0, Fail(ipc.NTPInvalid, nil)
	}
	epoch := secs - unixOffset
	if epoch < floor || epoch > maxEpoch {
		return 0, Fail(ipc.NTPInvalid, nil)
	}
	return epoch, nil
}

// Query sends one request and waits for one reply within Timeout.
func (c *Client) Query(ctx context.Context) (uint32, error) {
	dial := c.Dial
	if dial == nil {
		var d net.Dialer
		dial = d.DialContext
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}

	conn, err := dial(ctx, "udp4", net.JoinHostPort(c.Server, strconv.Itoa(port)))
	if err != nil {
		return 0, Fail(ipc.NTPSocket, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	req := Request()
	if _, err := conn.Write(req[:]); err != nil {
		return 0, Fail(ipc.NTPSend, err)
	}
	var buf [PacketSize]byte
	n, err := conn.Read(buf[:])
	if err != nil {
		return 0, Fail(ipc.NTPReceive, err)
	}
	if n < PacketSize {
		return 0, Fail(ipc.NTPReceive, nil)
	}
	return Parse(buf[:n], c.Floor)
}
