package sim

import (
	"context"
	"sync"

	"dualcore-go/services/wifi/wcm"
)

var _ wcm.Stack = (*WifiStack)(nil)

// AP is a simulated access point.
type AP struct {
	SSID     string
	Password string
	Security wcm.Security
	RSSI     int16
	Channel  uint16
	BSSID    [6]byte
}

// WifiStack is an in-memory connection manager over a fixed AP list.
type WifiStack struct {
	mu sync.Mutex

	aps      []AP
	initErr  error
	scanErr  error
	discErr  error
	hangScan bool

	scanning bool
	stop     chan struct{}
	link     *AP

	IPInfo wcm.IPInfo
	Addr   [6]byte
}

func NewWifiStack(aps ...AP) *WifiStack {
	return &WifiStack{
		aps: aps,
		IPInfo: wcm.IPInfo{
			IP:      [4]byte{192, 168, 1, 50},
			Netmask: [4]byte{255, 255, 255, 0},
			Gateway: [4]byte{192, 168, 1, 1},
			DNS:     [4]byte{8, 8, 8, 8},
		},
		Addr: [6]byte{0x02, 0x00, 0x5E, 0x10, 0x20, 0x30},
	}
}

// FailInit makes Init return err.
func (w *WifiStack) FailInit(err error) { w.mu.Lock(); w.initErr = err; w.mu.Unlock() }

// FailScan makes StartScan return err.
func (w *WifiStack) FailScan(err error) { w.mu.Lock(); w.scanErr = err; w.mu.Unlock() }

// FailDisconnect makes Disconnect return err.
func (w *WifiStack) FailDisconnect(err error) { w.mu.Lock(); w.discErr = err; w.mu.Unlock() }

// HangScan suppresses the completion callback.
func (w *WifiStack) HangScan(on bool) { w.mu.Lock(); w.hangScan = on; w.mu.Unlock() }

func (w *WifiStack) SetAPs(aps ...AP) { w.mu.Lock(); w.aps = aps; w.mu.Unlock() }

// DropLink simulates the AP going away.
func (w *WifiStack) DropLink() { w.mu.Lock(); w.link = nil; w.mu.Unlock() }

func (w *WifiStack) Init() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.initErr
}

func (w *WifiStack) StartScan(fn wcm.ScanFunc) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.scanErr != nil {
		return w.scanErr
	}
	if w.scanning {
		return wcm.ErrScanInProgress
	}
	w.scanning = true
	w.stop = make(chan struct{})
	aps := append([]AP(nil), w.aps...)
	stop, hang := w.stop, w.hangScan

	go func() {
		defer func() {
			w.mu.Lock()
			w.scanning = false
			w.mu.Unlock()
		}()
		for _, ap := range aps {
			select {
			case <-stop:
				return
			default:
			}
			fn(&wcm.ScanResult{
				SSID:     ap.SSID,
				BSSID:    ap.BSSID,
				RSSI:     ap.RSSI,
				Channel:  ap.Channel,
				Security: ap.Security,
			}, wcm.ScanIncomplete)
		}
		if hang {
			<-stop
			return
		}
		fn(nil, wcm.ScanComplete)
	}()
	return nil
}

func (w *WifiStack) StopScan() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stop != nil {
		close(w.stop)
		w.stop = nil
	}
	return nil
}

// Connect fails with ErrAPNotUp for an unknown SSID, ErrSecurityNotFound
// when open and protected disagree and ErrWaitTimeout for a wrong key.
func (w *WifiStack) Connect(ctx context.Context, p wcm.ConnectParams) ([4]byte, error) {
	if err := ctx.Err(); err != nil {
		return [4]byte{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.aps {
		ap := &w.aps[i]
		if ap.SSID != p.SSID {
			continue
		}
		if (ap.Security == wcm.SecurityOpen) != (p.Security == wcm.SecurityOpen) {
			return [4]byte{}, wcm.ErrSecurityNotFound
		}
		if ap.Security != wcm.SecurityOpen && ap.Password != p.Password {
			return [4]byte{}, wcm.ErrWaitTimeout
		}
		cp := *ap
		w.link = &cp
		return w.IPInfo.IP, nil
	}
	return [4]byte{}, wcm.ErrAPNotUp
}

func (w *WifiStack) Disconnect() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.discErr != nil {
		return w.discErr
	}
	w.link = nil
	return nil
}

func (w *WifiStack) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.link != nil
}

func (w *WifiStack) IP() (wcm.IPInfo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.link == nil {
		return wcm.IPInfo{}, wcm.ErrNotConnected
	}
	return w.IPInfo, nil
}

func (w *WifiStack) MAC() ([6]byte, error) { return w.Addr, nil }

func (w *WifiStack) Link() (wcm.Link, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.link == nil {
		return wcm.Link{}, wcm.ErrNotConnected
	}
	return wcm.Link{SSID: w.link.SSID, RSSI: w.link.RSSI, Channel: w.link.Channel, Security: w.link.Security}, nil
}
