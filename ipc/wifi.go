package ipc

import (
	"encoding/binary"
	"strconv"

	"dualcore-go/errcode"
)

const (
	SSIDMax         = 33 // 32 chars + NUL
	PasswordMax     = 65 // 64 chars + NUL
	ScanMaxNetworks = 16
)

type Security uint8

const (
	SecurityOpen       Security = 0
	SecurityWEP        Security = 1
	SecurityWPA        Security = 2
	SecurityWPA2       Security = 3
	SecurityWPA3       Security = 4
	SecurityWPAWPA2    Security = 5
	SecurityWPA2WPA3   Security = 6
	SecurityEnterprise Security = 7
	SecurityUnknown    Security = 0xFF
)

func (s Security) String() string {
	switch s {
	case SecurityOpen:
		return "Open"
	case SecurityWEP:
		return "WEP"
	case SecurityWPA:
		return "WPA"
	case SecurityWPA2:
		return "WPA2"
	case SecurityWPA3:
		return "WPA3"
	case SecurityWPAWPA2:
		return "WPA/WPA2"
	case SecurityWPA2WPA3:
		return "WPA2/WPA3"
	case SecurityEnterprise:
		return "Enterprise"
	default:
		return "Unknown"
	}
}

type Band uint8

const (
	Band2G4     Band = 0
	Band5G      Band = 1
	Band6G      Band = 2
	BandUnknown Band = 0xFF
)

func (b Band) String() string {
	switch b {
	case Band2G4:
		return "2.4 GHz"
	case Band5G:
		return "5 GHz"
	case Band6G:
		return "6 GHz"
	default:
		return "Unknown"
	}
}

// BandForChannel infers the band from a channel number.
func BandForChannel(ch uint8) Band {
	switch {
	case ch >= 1 && ch <= 14:
		return Band2G4
	case ch >= 36 && ch <= 177:
		return Band5G
	default:
		return BandUnknown
	}
}

type WifiState uint8

const (
	WifiDisconnected  WifiState = 0
	WifiConnecting    WifiState = 1
	WifiConnected     WifiState = 2
	WifiDisconnecting WifiState = 3
	WifiScanning      WifiState = 4
	WifiStateError    WifiState = 5
)

func (s WifiState) String() string {
	switch s {
	case WifiDisconnected:
		return "Disconnected"
	case WifiConnecting:
		return "Connecting..."
	case WifiConnected:
		return "Connected"
	case WifiDisconnecting:
		return "Disconnecting..."
	case WifiScanning:
		return "Scanning..."
	case WifiStateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// WifiError travels in the numeric field of WIFI_ERROR.
type WifiError uint8

const (
	WifiErrNone           WifiError = 0
	WifiErrTimeout        WifiError = 1
	WifiErrAuthFailed     WifiError = 2
	WifiErrNoAP           WifiError = 3
	WifiErrConnectionLost WifiError = 4
	WifiErrDriver         WifiError = 5
	WifiErrScanFailed     WifiError = 6
	WifiErrDHCPFailed     WifiError = 7
	WifiErrUnknown        WifiError = 0xFF
)

func (e WifiError) String() string {
	switch e {
	case WifiErrNone:
		return "none"
	case WifiErrTimeout:
		return "timeout"
	case WifiErrAuthFailed:
		return "auth failed"
	case WifiErrNoAP:
		return "no AP"
	case WifiErrConnectionLost:
		return "connection lost"
	case WifiErrDriver:
		return "driver"
	case WifiErrScanFailed:
		return "scan failed"
	case WifiErrDHCPFailed:
		return "DHCP failed"
	default:
		return "unknown"
	}
}

// NTPFailure travels in the numeric field of NTP_ERROR.
type NTPFailure uint8

const (
	NTPNoWifi  NTPFailure = 1
	NTPSocket  NTPFailure = 2
	NTPSend    NTPFailure = 3
	NTPReceive NTPFailure = 4
	NTPInvalid NTPFailure = 5
)

func (f NTPFailure) String() string {
	switch f {
	case NTPNoWifi:
		return "no wifi"
	case NTPSocket:
		return "socket"
	case NTPSend:
		return "send"
	case NTPReceive:
		return "receive"
	case NTPInvalid:
		return "invalid time"
	default:
		return "ntp failure " + strconv.Itoa(int(f))
	}
}

// RSSIBars maps dBm onto a 0..4 signal indicator.
func RSSIBars(rssi int8) int {
	switch {
	case rssi >= -50:
		return 4
	case rssi >= -60:
		return 3
	case rssi >= -70:
		return 2
	case rssi >= -80:
		return 1
	default:
		return 0
	}
}

// FormatIPv4 renders dotted-quad text.
func FormatIPv4(ip [4]byte) string {
	b := make([]byte, 0, 15)
	for i, v := range ip {
		if i > 0 {
			b = append(b, '.')
		}
		b = strconv.AppendUint(b, uint64(v), 10)
	}
	return string(b)
}

// FormatMAC renders colon-separated upper-case hex.
func FormatMAC(mac [6]byte) string {
	const hex = "0123456789ABCDEF"
	b := make([]byte, 0, 17)
	for i, v := range mac {
		if i > 0 {
			b = append(b, ':')
		}
		b = append(b, hex[v>>4], hex[v&0x0F])
	}
	return string(b)
}

// -----------------------------------------------------------------------------
// Network (scan entry), 40 bytes
// -----------------------------------------------------------------------------

const (
	NetworkSize = 40

	NetFlagConnected uint8 = 1 << 0
	NetFlagSaved     uint8 = 1 << 1
)

type WifiNetwork struct {
	SSID     string
	RSSI     int8
	Security Security
	Channel  uint8
	Band     Band
	Flags    uint8
}

func (n WifiNetwork) Connected() bool { return n.Flags&NetFlagConnected != 0 }

func (n WifiNetwork) MarshalBinary() ([]byte, error) {
	b := make([]byte, NetworkSize)
	putCString(b[0:SSIDMax], n.SSID)
	b[33] = byte(n.RSSI)
	b[34] = byte(n.Security)
	b[35] = n.Channel
	b[36] = byte(n.Band)
	b[37] = n.Flags
	return b, nil
}

func (n *WifiNetwork) UnmarshalBinary(b []byte) error {
	if len(b) < NetworkSize {
		return short("ipc.wifi_network", NetworkSize, len(b))
	}
	n.SSID = cString(b[0:SSIDMax])
	n.RSSI = int8(b[33])
	n.Security = Security(b[34])
	n.Channel = b[35]
	n.Band = Band(b[36])
	n.Flags = b[37]
	return nil
}

// -----------------------------------------------------------------------------
// Connect request, 104 bytes
// -----------------------------------------------------------------------------

const ConnectSize = 104

type WifiConnect struct {
	SSID     string
	Password string
	Security Security
}

func (c WifiConnect) MarshalBinary() ([]byte, error) {
	if len(c.SSID) == 0 || len(c.SSID) > SSIDMax-1 {
		return nil, &errcode.E{C: errcode.InvalidPayload, Op: "ipc.wifi_connect", Msg: "ssid must be 1..32 bytes"}
	}
	if len(c.Password) > PasswordMax-1 {
		return nil, &errcode.E{C: errcode.InvalidPayload, Op: "ipc.wifi_connect", Msg: "password exceeds 64 bytes"}
	}
	b := make([]byte, ConnectSize)
	putCString(b[0:33], c.SSID)
	putCString(b[33:98], c.Password)
	b[98] = byte(c.Security)
	return b, nil
}

func (c *WifiConnect) UnmarshalBinary(b []byte) error {
	if len(b) < ConnectSize {
		return short("ipc.wifi_connect", ConnectSize, len(b))
	}
	c.SSID = cString(b[0:33])
	c.Password = cString(b[33:98])
	c.Security = Security(b[98])
	return nil
}

// -----------------------------------------------------------------------------
// TCP/IP info, 28 bytes
// -----------------------------------------------------------------------------

const TCPIPSize = 28

type WifiTCPIP struct {
	DHCP      bool
	IP        [4]byte
	Subnet    [4]byte
	Gateway   [4]byte
	DNS1      [4]byte
	DNS2      [4]byte
	LeaseTime uint32 // seconds
}

func (t WifiTCPIP) MarshalBinary() ([]byte, error) {
	b := make([]byte, TCPIPSize)
	if t.DHCP {
		b[0] = 1
	}
	copy(b[4:8], t.IP[:])
	copy(b[8:12], t.Subnet[:])
	copy(b[12:16], t.Gateway[:])
	copy(b[16:20], t.DNS1[:])
	copy(b[20:24], t.DNS2[:])
	binary.LittleEndian.PutUint32(b[24:], t.LeaseTime)
	return b, nil
}

func (t *WifiTCPIP) UnmarshalBinary(b []byte) error {
	if len(b) < TCPIPSize {
		return short("ipc.wifi_tcpip", TCPIPSize, len(b))
	}
	t.DHCP = b[0] != 0
	copy(t.IP[:], b[4:8])
	copy(t.Subnet[:], b[8:12])
	copy(t.Gateway[:], b[12:16])
	copy(t.DNS1[:], b[16:20])
	copy(t.DNS2[:], b[20:24])
	t.LeaseTime = binary.LittleEndian.Uint32(b[24:])
	return nil
}

// -----------------------------------------------------------------------------
// Hardware info, 32 bytes
// -----------------------------------------------------------------------------

const HardwareSize = 32

type WifiHardware struct {
	MAC       [6]byte
	Band      Band
	Channel   uint8
	RSSI      int8
	TxPower   int8 // dBm
	MTU       uint16
	LinkSpeed uint32 // Mbps
	Firmware  string // at most 15 bytes survive
}

func (h WifiHardware) MarshalBinary() ([]byte, error) {
	b := make([]byte, HardwareSize)
	copy(b[0:6], h.MAC[:])
	b[6] = byte(h.Band)
	b[7] = h.Channel
	b[8] = byte(h.RSSI)
	b[9] = byte(h.TxPower)
	binary.LittleEndian.PutUint16(b[10:], h.MTU)
	binary.LittleEndian.PutUint32(b[12:], h.LinkSpeed)
	putCString(b[16:32], h.Firmware)
	return b, nil
}

func (h *WifiHardware) UnmarshalBinary(b []byte) error {
	if len(b) < HardwareSize {
		return short("ipc.wifi_hardware", HardwareSize, len(b))
	}
	copy(h.MAC[:], b[0:6])
	h.Band = Band(b[6])
	h.Channel = b[7]
	h.RSSI = int8(b[8])
	h.TxPower = int8(b[9])
	h.MTU = binary.LittleEndian.Uint16(b[10:])
	h.LinkSpeed = binary.LittleEndian.Uint32(b[12:])
	h.Firmware = cString(b[16:32])
	return nil
}

// -----------------------------------------------------------------------------
// Status, 48 bytes (45 packed plus trailing pad)
// -----------------------------------------------------------------------------

const StatusSize = 48

type WifiStatus struct {
	State    WifiState
	RSSI     int8
	Security Security
	SSID     string
	IP       [4]byte
	Uptime   uint32 // seconds
}

func (s WifiStatus) MarshalBinary() ([]byte, error) {
	b := make([]byte, StatusSize)
	b[0] = byte(s.State)
	b[1] = byte(s.RSSI)
	b[2] = byte(s.Security)
	putCString(b[4:37], s.SSID)
	copy(b[37:41], s.IP[:])
	binary.LittleEndian.PutUint32(b[41:], s.Uptime)
	return b, nil
}

func (s *WifiStatus) UnmarshalBinary(b []byte) error {
	if len(b) < StatusSize {
		return short("ipc.wifi_status", StatusSize, len(b))
	}
	s.State = WifiState(b[0])
	s.RSSI = int8(b[1])
	s.Security = Security(b[2])
	s.SSID = cString(b[4:37])
	copy(s.IP[:], b[37:41])
	s.Uptime = binary.LittleEndian.Uint32(b[41:])
	return nil
}
