// Package ipc defines what crosses the mailbox: the fixed 140-byte envelope,
// the closed command taxonomy and the packed payload layouts carried in the
// envelope's opaque area.
package ipc

import "strconv"

// Cmd is the envelope's command tag. On the wire it occupies a u32 but only
// the low byte is ever used.
type Cmd uint8

const (
	CmdNone Cmd = 0x00

	// System (0x40-0x4F)
	CmdStatus Cmd = 0x41
	CmdPing   Cmd = 0x42
	CmdPong   Cmd = 0x43
	CmdAck    Cmd = 0x44
	CmdNack   Cmd = 0x45

	// Lifecycle (0x80-0x8F)
	CmdInit  Cmd = 0x81
	CmdStart Cmd = 0x82
	CmdStop  Cmd = 0x83
	CmdReset Cmd = 0x84

	// Logging (0x90-0x9F); opaque payload is UTF-8 text
	CmdLog      Cmd = 0x90
	CmdLogLevel Cmd = 0x91
	CmdLogError Cmd = 0x92
	CmdLogWarn  Cmd = 0x93
	CmdLogInfo  Cmd = 0x94
	CmdLogDebug Cmd = 0x95

	// Sensors (0xA0-0xAF)
	CmdSensorReq  Cmd = 0xA0
	CmdSensorData Cmd = 0xA1
	CmdIMUData    Cmd = 0xA2
	CmdADCData    Cmd = 0xA3

	// GPIO / UI feedback (0xB0-0xBF)
	CmdLEDSet        Cmd = 0xB2
	CmdLEDBrightness Cmd = 0xB3
	CmdButtonEvent   Cmd = 0xB5
	CmdCapsenseData  Cmd = 0xB6
	CmdCapsenseReq   Cmd = 0xB7

	// Wi-Fi (0xD0-0xDF)
	CmdWifiScanStart    Cmd = 0xD0
	CmdWifiScanResult   Cmd = 0xD1
	CmdWifiScanComplete Cmd = 0xD2
	CmdWifiConnect      Cmd = 0xD3
	CmdWifiDisconnect   Cmd = 0xD4
	CmdWifiStatus       Cmd = 0xD5
	CmdWifiGetTCPIP     Cmd = 0xD6
	CmdWifiTCPIPInfo    Cmd = 0xD7
	CmdWifiGetHardware  Cmd = 0xD8
	CmdWifiHardwareInfo Cmd = 0xD9
	CmdWifiConnected    Cmd = 0xDA
	CmdWifiDisconnected Cmd = 0xDB
	CmdWifiError        Cmd = 0xDC

	// Time (0xF0-0xF3)
	CmdNTPSync  Cmd = 0xF0
	CmdNTPTime  Cmd = 0xF1
	CmdNTPError Cmd = 0xF2
)

var cmdNames = map[Cmd]string{
	CmdNone:             "NONE",
	CmdStatus:           "STATUS",
	CmdPing:             "PING",
	CmdPong:             "PONG",
	CmdAck:              "ACK",
	CmdNack:             "NACK",
	CmdInit:             "INIT",
	CmdStart:            "START",
	CmdStop:             "STOP",
	CmdReset:            "RESET",
	CmdLog:              "LOG",
	CmdLogLevel:         "LOG_LEVEL",
	CmdLogError:         "LOG_ERROR",
	CmdLogWarn:          "LOG_WARN",
	CmdLogInfo:          "LOG_INFO",
	CmdLogDebug:         "LOG_DEBUG",
	CmdSensorReq:        "SENSOR_REQ",
	CmdSensorData:       "SENSOR_DATA",
	CmdIMUData:          "IMU_DATA",
	CmdADCData:          "ADC_DATA",
	CmdLEDSet:           "LED_SET",
	CmdLEDBrightness:    "LED_BRIGHTNESS",
	CmdButtonEvent:      "BUTTON_EVENT",
	CmdCapsenseData:     "CAPSENSE_DATA",
	CmdCapsenseReq:      "CAPSENSE_REQ",
	CmdWifiScanStart:    "WIFI_SCAN_START",
	CmdWifiScanResult:   "WIFI_SCAN_RESULT",
	CmdWifiScanComplete: "WIFI_SCAN_COMPLETE",
	CmdWifiConnect:      "WIFI_CONNECT",
	CmdWifiDisconnect:   "WIFI_DISCONNECT",
	CmdWifiStatus:       "WIFI_STATUS",
	CmdWifiGetTCPIP:     "WIFI_GET_TCPIP",
	CmdWifiTCPIPInfo:    "WIFI_TCPIP_INFO",
	CmdWifiGetHardware:  "WIFI_GET_HARDWARE",
	CmdWifiHardwareInfo: "WIFI_HARDWARE_INFO",
	CmdWifiConnected:    "WIFI_CONNECTED",
	CmdWifiDisconnected: "WIFI_DISCONNECTED",
	CmdWifiError:        "WIFI_ERROR",
	CmdNTPSync:          "NTP_SYNC",
	CmdNTPTime:          "NTP_TIME",
	CmdNTPError:         "NTP_ERROR",
}

func (c Cmd) String() string {
	if s, ok := cmdNames[c]; ok {
		return s
	}
	return "CMD_0x" + strconv.FormatUint(uint64(c), 16)
}

// Known reports whether c is part of the taxonomy.
func (c Cmd) Known() bool {
	_, ok := cmdNames[c]
	return ok && c != CmdNone
}

// IsLog covers LOG and the per-level variants; LOG_LEVEL is a control tag.
func (c Cmd) IsLog() bool {
	return c == CmdLog || (c >= CmdLogError && c <= CmdLogDebug)
}

func (c Cmd) IsWifi() bool { return c >= 0xD0 && c <= 0xDF }
func (c Cmd) IsNTP() bool  { return c >= 0xF0 && c <= 0xF3 }

// Level maps a log tag to its level name.
func (c Cmd) Level() string {
	switch c {
	case CmdLogInfo:
		return "INFO"
	case CmdLogError:
		return "ERROR"
	case CmdLogWarn:
		return "WARN"
	case CmdLogDebug:
		return "DEBUG"
	default:
		return "LOG"
	}
}
