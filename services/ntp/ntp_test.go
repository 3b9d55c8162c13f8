package ntp

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dualcore-go/errcode"
	"dualcore-go/ipc"
)

// serve answers every request on a loopback socket with reply(req).
func serve(t *testing.T, reply func(req []byte) []byte) *Client {
	t.Helper()
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	go func() {
		buf := make([]byte, 512)
		for {
			n, addr, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}
			if out := reply(buf[:n]); out != nil {
				_, _ = pc.WriteTo(out, addr)
			}
		}
	}()

	host, port, err := net.SplitHostPort(pc.LocalAddr().String())
	require.NoError(t, err)
	p, _ := strconv.Atoi(port)
	c := NewClient()
	c.Server, c.Port, c.Timeout = host, p, 300*time.Millisecond
	return c
}

func packet(ntpSeconds uint32) []byte {
	b := make([]byte, PacketSize)
	b[0] = 0x1C
	binary.BigEndian.PutUint32(b[40:], ntpSeconds)
	return b
}

func reason(t *testing.T, err error) ipc.NTPFailure {
	t.Helper()
	var ne *Error
	require.True(t, errors.As(err, &ne), "want *ntp.Error, got %v", err)
	return ne.Reason
}

func TestRequestShape(t *testing.T) {
	req := Request()
	require.Equal(t, byte(0x1B), req[0])
	for _, b := range req[1:] {
		require.Zero(t, b)
	}
}

func TestQuery(t *testing.T) {
	reqs := make(chan []byte, 1)
	c := serve(t, func(req []byte) []byte {
		reqs <- append([]byte(nil), req...)
		return packet(0xE88A_0000)
	})
	epoch, err := c.Query(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint32(0xE88A_0000-unixOffset), epoch)
	got := <-reqs
	require.Len(t, got, PacketSize)
	require.Equal(t, byte(0x1B), got[0])
}

func TestQueryRejectsEarlyEpoch(t *testing.T) {
	c := serve(t, func([]byte) []byte { return packet(DefaultFloor - 1 + unixOffset) })
	_, err := c.Query(context.Background())
	require.Equal(t, ipc.NTPInvalid, reason(t, err))
	require.Equal(t, errcode.KindProtocol, errcode.KindOf(err))
}

func TestQueryAcceptsFloor(t *testing.T) {
	c := serve(t, func([]byte) []byte { return packet(DefaultFloor + unixOffset) })
	epoch, err := c.Query(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint32(DefaultFloor), epoch)
}

func TestQueryShortReply(t *testing.T) {
	c := serve(t, func([]byte) []byte { return make([]byte, 20) })
	_, err := c.Query(context.Background())
	require.Equal(t, ipc.NTPReceive, reason(t, err))
}

func TestQueryTimeout(t *testing.T) {
	c := serve(t, func([]byte) []byte { return nil })
	start := time.Now()
	_, err := c.Query(context.Background())
	require.Equal(t, ipc.NTPReceive, reason(t, err))
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestQueryDialFailure(t *testing.T) {
	c := NewClient()
	c.Dial = func(context.Context, string, string) (net.Conn, error) {
		return nil, errors.New("no route")
	}
	_, err := c.Query(context.Background())
	require.Equal(t, ipc.NTPSocket, reason(t, err))
}

func TestParseRejectsPre1970Seconds(t *testing.T) {
	// 0 is what a server without a reference clock transmits; none of these
	// may wrap into a plausible post-2020 epoch.
	const wrapped = (unixOffset + maxEpoch + 1) % (1 << 32)
	for _, secs := range []uint32{0, 1, wrapped, unixOffset - 1} {
		_, err := Parse(packet(secs), DefaultFloor)
		require.Equal(t, ipc.NTPInvalid, reason(t, err), "secs=%d", secs)
	}
}

func TestParseLastSecondOfEra(t *testing.T) {
	epoch, err := Parse(packet(math.MaxUint32), DefaultFloor)
	require.NoError(t, err)
	require.Equal(t, uint32(math.MaxUint32-unixOffset), epoch)
	require.LessOrEqual(t, epoch, uint32(maxEpoch))
}
