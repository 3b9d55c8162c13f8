// Package wifiview is the A-core side of the Wi-Fi service. It issues
// commands to the P-core, assembles the streamed replies and publishes the
// result as retained bus state for displays and tools.
package wifiview

import (
	"context"
	"sort"
	"sync"

	"github.com/golang/glog"

	"dualcore-go/bus"
	"dualcore-go/errcode"
	"dualcore-go/ipc"
)

var (
	TopicState    = bus.T("wifi", "state")
	TopicScan     = bus.T("wifi", "scan")
	TopicStatus   = bus.T("wifi", "status")
	TopicTCPIP    = bus.T("wifi", "tcpip")
	TopicHardware = bus.T("wifi", "hardware")
	TopicError    = bus.T("wifi", "error")
	TopicTime     = bus.T("wifi", "ntp")

	// TopicCommand accepts requests: wifi/cmd/<scan|connect|disconnect|status|tcpip|hardware|ntp>.
	TopicCommand = bus.T("wifi", "cmd", "+")
)

// ScanList is a completed scan sorted by signal, strongest first.
type ScanList struct {
	Networks  []ipc.WifiNetwork
	Connected int // index into Networks, -1 when none
}

// NTPResult is published on wifi/ntp for every NTP_TIME or NTP_ERROR.
type NTPResult struct {
	Epoch  uint32
	Reason ipc.NTPFailure
}

type View struct {
	tx   ipc.Sender
	conn *bus.Connection

	mu       sync.Mutex
	state    ipc.WifiState
	pending  [ipc.ScanMaxNetworks]ipc.WifiNetwork
	received uint16 // bit i set when result i arrived
	scan     ScanList
	status   ipc.WifiStatus
}

func New(tx ipc.Sender, conn *bus.Connection) *View {
	v := &View{tx: tx, conn: conn, scan: ScanList{Connected: -1}}
	v.publish(TopicState, v.state)
	return v
}

// -----------------------------------------------------------------------------
// Commands
// -----------------------------------------------------------------------------

func (v *View) Scan() error {
	v.mu.Lock()
	v.received = 0
	v.mu.Unlock()
	v.setState(ipc.WifiScanning)
	return v.tx.SendMsg(ipc.NewMessage(ipc.CmdWifiScanStart, 0))
}

func (v *View) Connect(req ipc.WifiConnect) error {
	m, err := ipc.NewPayload(ipc.CmdWifiConnect, 0, req)
	if err != nil {
		return err
	}
	v.setState(ipc.WifiConnecting)
	return v.tx.SendMsg(m)
}

func (v *View) Disconnect() error {
	v.setState(ipc.WifiDisconnecting)
	return v.tx.SendMsg(ipc.NewMessage(ipc.CmdWifiDisconnect, 0))
}

func (v *View) RequestStatus() error   { return v.tx.SendMsg(ipc.NewMessage(ipc.CmdWifiStatus, 0)) }
func (v *View) RequestTCPIP() error    { return v.tx.SendMsg(ipc.NewMessage(ipc.CmdWifiGetTCPIP, 0)) }
func (v *View) RequestHardware() error { return v.tx.SendMsg(ipc.NewMessage(ipc.CmdWifiGetHardware, 0)) }
func (v *View) SyncTime() error        { return v.tx.SendMsg(ipc.NewMessage(ipc.CmdNTPSync, 0)) }

// -----------------------------------------------------------------------------
// Replies
// -----------------------------------------------------------------------------

// Handle consumes Wi-Fi and NTP replies and reports whether m was one.
func (v *View) Handle(m ipc.Message) bool {
	switch m.Cmd {
	case ipc.CmdWifiScanResult:
		var n ipc.WifiNetwork
		if err := n.UnmarshalBinary(m.Data[:]); err != nil || m.Value >= ipc.ScanMaxNetworks {
			glog.Warningf("wifiview: dropping scan result %d", m.Value)
			return true
		}
		v.mu.Lock()
		v.pending[m.Value] = n
		v.received |= 1 << m.Value
		v.mu.Unlock()
	case ipc.CmdWifiScanComplete:
		v.completeScan(int(m.Value))
	case ipc.CmdWifiConnected:
		var st ipc.WifiStatus
		_ = st.UnmarshalBinary(m.Data[:])
		v.mu.Lock()
		v.status = st
		v.markConnected(st.SSID)
		scan := v.scan
		v.mu.Unlock()
		v.setState(ipc.WifiConnected)
		v.publish(TopicStatus, st)
		v.publish(TopicScan, scan)
	case ipc.CmdWifiDisconnected:
		v.mu.Lock()
		v.status = ipc.WifiStatus{State: ipc.WifiDisconnected}
		v.markConnected("")
		scan, st := v.scan, v.status
		v.mu.Unlock()
		v.setState(ipc.WifiDisconnected)
		v.publish(TopicStatus, st)
		v.publish(TopicScan, scan)
		v.publish(TopicTCPIP, nil)
		v.publish(TopicHardware, nil)
	case ipc.CmdWifiStatus:
		var st ipc.WifiStatus
		_ = st.UnmarshalBinary(m.Data[:])
		v.mu.Lock()
		v.status = st
		v.mu.Unlock()
		v.setState(st.State)
		v.publish(TopicStatus, st)
	case ipc.CmdWifiTCPIPInfo:
		var t ipc.WifiTCPIP
		_ = t.UnmarshalBinary(m.Data[:])
		v.publish(TopicTCPIP, t)
	case ipc.CmdWifiHardwareInfo:
		var hw ipc.WifiHardware
		_ = hw.UnmarshalBinary(m.Data[:])
		v.publish(TopicHardware, hw)
	case ipc.CmdWifiError:
		code := ipc.WifiError(m.Value)
		glog.Warningf("wifiview: %s", code)
		v.mu.Lock()
		prev, last := v.state, v.status.State
		v.mu.Unlock()
		switch prev {
		case ipc.WifiConnecting:
			v.setState(ipc.WifiStateError)
		case ipc.WifiScanning, ipc.WifiDisconnecting:
			v.setState(last)
		}
		v.conn.Publish(v.conn.NewMessage(TopicError, code, false))
	case ipc.CmdNTPTime:
		v.conn.Publish(v.conn.NewMessage(TopicTime, NTPResult{Epoch: m.Value}, true))
		return false // the clock also wants it
	case ipc.CmdNTPError:
		v.conn.Publish(v.conn.NewMessage(TopicTime, NTPResult{Reason: ipc.NTPFailure(m.Value)}, false))
	default:
		return false
	}
	return true
}

func (v *View) completeScan(count int) {
	if count > ipc.ScanMaxNetworks {
		count = ipc.ScanMaxNetworks
	}
	v.mu.Lock()
	nets := make([]ipc.WifiNetwork, 0, count)
	for i := 0; i < count; i++ {
		if v.received&(1<<i) != 0 {
			nets = append(nets, v.pending[i])
		}
	}
	if len(nets) < count {
		glog.Warningf("wifiview: scan reported %d networks, received %d", count, len(nets))
	}
	v.received = 0
	sort.SliceStable(nets, func(i, j int) bool { return nets[i].RSSI > nets[j].RSSI })
	v.scan = ScanList{Networks: nets, Connected: -1}
	for i, n := range nets {
		if n.Connected() {
			v.scan.Connected = i
			break
		}
	}
	scan, st := v.scan, v.status.State
	v.mu.Unlock()

	v.setState(st)
	v.publish(TopicScan, scan)
}

// markConnected re-flags the scan list for ssid; caller holds mu.
func (v *View) markConnected(ssid string) {
	nets := append([]ipc.WifiNetwork(nil), v.scan.Networks...)
	v.scan = ScanList{Networks: nets, Connected: -1}
	for i := range nets {
		nets[i].Flags &^= ipc.NetFlagConnected
		if ssid != "" && nets[i].SSID == ssid && v.scan.Connected < 0 {
			nets[i].Flags |= ipc.NetFlagConnected
			v.scan.Connected = i
		}
	}
}

func (v *View) setState(st ipc.WifiState) {
	v.mu.Lock()
	changed := v.state != st
	v.state = st
	v.mu.Unlock()
	if changed {
		v.publish(TopicState, st)
	}
}

func (v *View) publish(t bus.Topic, payload any) {
	v.conn.Publish(v.conn.NewMessage(t, payload, true))
}

// State returns the last known service state.
func (v *View) State() ipc.WifiState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Networks returns the last completed scan.
func (v *View) Networks() ScanList {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.scan
}

// -----------------------------------------------------------------------------
// Bus commands
// -----------------------------------------------------------------------------

// Run serves wifi/cmd/<verb> requests. Each request is answered with nil
// once the command is sent to the P-core, or with the send error.
func (v *View) Run(ctx context.Context) error {
	sub := v.conn.Subscribe(TopicCommand)
	defer v.conn.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-sub.Channel():
			if !ok {
				return nil
			}
			v.conn.Reply(m, v.command(m), false)
		}
	}
}

func (v *View) command(m *bus.Message) error {
	verb, _ := m.Topic.At(2).(string)
	switch verb {
	case "scan":
		return v.Scan()
	case "connect":
		req, ok := m.Payload.(ipc.WifiConnect)
		if !ok {
			return &errcode.E{C: errcode.InvalidPayload, Op: "wifiview.connect", Msg: "want ipc.WifiConnect"}
		}
		return v.Connect(req)
	case "disconnect":
		return v.Disconnect()
	case "status":
		return v.RequestStatus()
	case "tcpip":
		return v.RequestTCPIP()
	case "hardware":
		return v.RequestHardware()
	case "ntp":
		return v.SyncTime()
	default:
		return &errcode.E{C: errcode.UnknownCommand, Op: "wifiview", Msg: verb}
	}
}
