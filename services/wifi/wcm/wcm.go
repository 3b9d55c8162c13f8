// Package wcm is the contract between the Wi-Fi service and the vendor
// connection manager: bring-up, scanning, association and link queries.
package wcm

import (
	"context"
	"errors"
)

// Security is the vendor security word: a cipher bitset combined with the
// protocol family.
type Security uint32

const (
	wepEnabled    = 0x0001
	tkipEnabled   = 0x0002
	aesEnabled    = 0x0004
	sharedEnabled = 0x8000
	wpaSecurity   = 0x00200000
	wpa2Security  = 0x00400000
	wpa3Security  = 0x01000000
	enterprise    = 0x02000000
	fbtEnabled    = 0x80000000
)

const (
	SecurityOpen            Security = 0
	SecurityWEPPSK          Security = wepEnabled
	SecurityWEPShared       Security = wepEnabled | sharedEnabled
	SecurityWPATKIPPSK      Security = wpaSecurity | tkipEnabled
	SecurityWPAAESPSK       Security = wpaSecurity | aesEnabled
	SecurityWPAMixedPSK     Security = wpaSecurity | aesEnabled | tkipEnabled
	SecurityWPA2AESPSK      Security = wpa2Security | aesEnabled
	SecurityWPA2TKIPPSK     Security = wpa2Security | tkipEnabled
	SecurityWPA2MixedPSK    Security = wpa2Security | aesEnabled | tkipEnabled
	SecurityWPA2FBTPSK      Security = wpa2Security | aesEnabled | fbtEnabled
	SecurityWPA3SAE         Security = wpa3Security | aesEnabled
	SecurityWPA3WPA2PSK     Security = wpa3Security | wpa2Security | aesEnabled
	SecurityWPA2WPAAESPSK   Security = wpa2Security | wpaSecurity | aesEnabled
	SecurityWPA2WPAMixedPSK Security = wpa2Security | wpaSecurity | aesEnabled | tkipEnabled
	SecurityWPATKIPEnt      Security = enterprise | wpaSecurity | tkipEnabled
	SecurityWPAAESEnt       Security = enterprise | wpaSecurity | aesEnabled
	SecurityWPAMixedEnt     Security = enterprise | wpaSecurity | aesEnabled | tkipEnabled
	SecurityWPA2TKIPEnt     Security = enterprise | wpa2Security | tkipEnabled
	SecurityWPA2AESEnt      Security = enterprise | wpa2Security | aesEnabled
	SecurityWPA2MixedEnt    Security = enterprise | wpa2Security | aesEnabled | tkipEnabled
	SecurityWPA2FBTEnt      Security = enterprise | wpa2Security | aesEnabled | fbtEnabled
	SecurityUnknown         Security = 0xFFFFFFFF
)

// Vendor failures the service distinguishes; anything else is reported as
// an unknown error.
var (
	ErrSecurityNotFound = errors.New("wcm: security type not found")
	ErrWaitTimeout      = errors.New("wcm: wait timeout")
	ErrAPNotUp          = errors.New("wcm: ap not up")
	ErrNotConnected     = errors.New("wcm: not connected")
	ErrScanInProgress   = errors.New("wcm: scan in progress")
)

type ScanStatus uint8

const (
	ScanIncomplete ScanStatus = iota
	ScanComplete
)

// ScanResult is one access point as reported by the manager.
type ScanResult struct {
	SSID     string
	BSSID    [6]byte
	RSSI     int16 // dBm
	Channel  uint16
	Security Security
}

// ScanFunc receives results on the manager's own goroutine. The final call
// has status ScanComplete and a nil result.
type ScanFunc func(r *ScanResult, status ScanStatus)

type ConnectParams struct {
	SSID     string
	Password string
	Security Security
}

type IPInfo struct {
	IP      [4]byte
	Netmask [4]byte
	Gateway [4]byte
	DNS     [4]byte
}

// Link describes the current association.
type Link struct {
	SSID     string
	RSSI     int16
	Channel  uint16
	Security Security
}

// Stack is the connection manager. Connect blocks until associated with an
// address or failed.
type Stack interface {
	Init() error
	StartScan(fn ScanFunc) error
	StopScan() error
	Connect(ctx context.Context, p ConnectParams) ([4]byte, error)
	Disconnect() error
	Connected() bool
	IP() (IPInfo, error)
	MAC() ([6]byte, error)
	Link() (Link, error)
}
