// Package wifi is the P-core Wi-Fi service. Commands arrive through a
// bounded queue fed by the router and are executed one at a time on the
// service goroutine; every command produces at least one reply.
package wifi

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"dualcore-go/ipc"
	"dualcore-go/queue"
	"dualcore-go/services/ntp"
	"dualcore-go/services/wifi/wcm"
	"dualcore-go/x/timex"
)

// TimeSource performs one network time query.
type TimeSource interface {
	Query(ctx context.Context) (uint32, error)
}

type Config struct {
	QueueCap       int
	EnqueueTimeout time.Duration
	PollTimeout    time.Duration // queue wait before housekeeping runs
	ScanTimeout    time.Duration
	ScanCapacity   int
	ResultSpacing  time.Duration // gap between WIFI_SCAN_RESULT sends
	ResyncInterval time.Duration
	Firmware       string
}

func DefaultConfig() Config {
	return Config{
		QueueCap:       queue.DefaultCapacity,
		EnqueueTimeout: queue.DefaultEnqueueTimeout,
		PollTimeout:    queue.DefaultDequeueTimeout,
		ScanTimeout:    10 * time.Second,
		ScanCapacity:   ipc.ScanMaxNetworks,
		ResultSpacing:  20 * time.Millisecond,
		ResyncInterval: 30 * time.Minute,
		Firmware:       "CYW55513",
	}
}

type Option func(*Service)

func WithTimeSource(ts TimeSource) Option { return func(s *Service) { s.ntp = ts } }
func WithTicks(src timex.Source) Option   { return func(s *Service) { s.ticks = src } }

type Service struct {
	cfg   Config
	stack wcm.Stack
	tx    ipc.Sender
	q     *queue.Queue
	ntp   TimeSource
	ticks timex.Source
	sleep func(time.Duration)

	state atomic.Uint32
	ready atomic.Bool

	connectedSSID string
	connectedAt   uint32

	ntpSynced bool
	lastSync  uint32

	mu         sync.Mutex
	collecting bool
	results    []ipc.WifiNetwork
}

func New(stack wcm.Stack, tx ipc.Sender, cfg Config, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.QueueCap <= 0 {
		cfg.QueueCap = def.QueueCap
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = def.EnqueueTimeout
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = def.PollTimeout
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = def.ScanTimeout
	}
	if cfg.ScanCapacity <= 0 || cfg.ScanCapacity > ipc.ScanMaxNetworks {
		cfg.ScanCapacity = def.ScanCapacity
	}
	if cfg.ResultSpacing <= 0 {
		cfg.ResultSpacing = def.ResultSpacing
	}
	if cfg.ResyncInterval <= 0 {
		cfg.ResyncInterval = def.ResyncInterval
	}
	if cfg.Firmware == "" {
		cfg.Firmware = def.Firmware
	}
	s := &Service{
		cfg:   cfg,
		stack: stack,
		tx:    tx,
		q:     queue.New("wifi", cfg.QueueCap),
		sleep: time.Sleep,
	}
	for _, o := range opts {
		o(s)
	}
	if s.ntp == nil {
		s.ntp = ntp.NewClient()
	}
	if s.ticks == nil {
		s.ticks = timex.NewBoot()
	}
	return s
}

// Enqueue hands a command to the service task.
func (s *Service) Enqueue(m ipc.Message, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.cfg.EnqueueTimeout
	}
	return s.q.Enqueue(m, timeout)
}

func (s *Service) State() ipc.WifiState { return ipc.WifiState(s.state.Load()) }

// Ready reports whether the stack came up.
func (s *Service) Ready() bool { return s.ready.Load() }

func (s *Service) setState(st ipc.WifiState) { s.state.Store(uint32(st)) }

// settle returns to Connected or Disconnected depending on the association.
func (s *Service) settle() {
	if s.stack.Connected() {
		s.setState(ipc.WifiConnected)
		return
	}
	s.setState(ipc.WifiDisconnected)
}

// Run brings the stack up and serves commands until ctx ends. When bring-up
// fails the service stays parked and answers every command with
// WIFI_ERROR(DRIVER).
func (s *Service) Run(ctx context.Context) error {
	if err := s.stack.Init(); err != nil {
		glog.Errorf("wifi: stack init failed, parked: %v", err)
		s.setState(ipc.WifiStateError)
		return s.parked(ctx)
	}
	s.ready.Store(true)
	s.setState(ipc.WifiDisconnected)
	glog.Infof("wifi: connection manager up")

	for {
		m, ok := s.q.Dequeue(ctx, s.cfg.PollTimeout)
		if ctx.Err() != nil {
			return nil
		}
		if !ok {
			s.housekeeping(ctx)
			continue
		}
		s.dispatch(ctx, m)
	}
}

func (s *Service) parked(ctx context.Context) error {
	for {
		m, ok := s.q.Dequeue(ctx, s.cfg.PollTimeout)
		if ctx.Err() != nil {
			return nil
		}
		if ok {
			glog.Warningf("wifi: %s rejected, driver not initialised", m.Cmd)
			s.reply(ipc.NewMessage(ipc.CmdWifiError, uint32(ipc.WifiErrDriver)))
		}
	}
}

func (s *Service) dispatch(ctx context.Context, m ipc.Message) {
	switch m.Cmd {
	case ipc.CmdWifiScanStart:
		s.scan(ctx)
	case ipc.CmdWifiConnect:
		s.connect(ctx, m)
	case ipc.CmdWifiDisconnect:
		s.disconnect()
	case ipc.CmdWifiStatus:
		s.status()
	case ipc.CmdWifiGetTCPIP:
		s.tcpip()
	case ipc.CmdWifiGetHardware:
		s.hardware()
	case ipc.CmdNTPSync:
		s.syncTime(ctx)
	default:
		glog.Warningf("wifi: unknown command %s", m.Cmd)
	}
}

func (s *Service) reply(m ipc.Message) {
	if err := s.tx.SendMsg(m); err != nil {
		glog.Warningf("wifi: reply %s lost: %v", m.Cmd, err)
	}
}

func (s *Service) replyPayload(cmd ipc.Cmd, value uint32, p interface{ MarshalBinary() ([]byte, error) }) {
	m, err := ipc.NewPayload(cmd, value, p)
	if err != nil {
		glog.Errorf("wifi: encode %s: %v", cmd, err)
		return
	}
	s.reply(m)
}

// -----------------------------------------------------------------------------
// Scan
// -----------------------------------------------------------------------------

func (s *Service) scan(ctx context.Context) {
	s.setState(ipc.WifiScanning)
	s.mu.Lock()
	s.results = s.results[:0]
	s.collecting = true
	s.mu.Unlock()

	done := make(chan struct{}, 1)
	err := s.stack.StartScan(func(r *wcm.ScanResult, st wcm.ScanStatus) {
		if r != nil && st == wcm.ScanIncomplete {
			s.collect(r)
		}
		if st == wcm.ScanComplete {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})
	if err != nil {
		s.stopCollecting()
		glog.Warningf("wifi: scan start failed: %v", err)
		s.settle()
		s.reply(ipc.NewMessage(ipc.CmdWifiError, uint32(ipc.WifiErrScanFailed)))
		return
	}

	t := time.NewTimer(s.cfg.ScanTimeout)
	select {
	case <-done:
	case <-t.C:
		glog.Warningf("wifi: scan timed out after %v", s.cfg.ScanTimeout)
		_ = s.stack.StopScan()
	case <-ctx.Done():
		_ = s.stack.StopScan()
	}
	t.Stop()

	nets := s.stopCollecting()
	if s.connectedSSID != "" && s.stack.Connected() {
		for i := range nets {
			if nets[i].SSID == s.connectedSSID {
				nets[i].Flags |= ipc.NetFlagConnected
				break
			}
		}
	}
	for i, n := range nets {
		s.replyPayload(ipc.CmdWifiScanResult, uint32(i), n)
		s.sleep(s.cfg.ResultSpacing)
	}
	s.reply(ipc.NewMessage(ipc.CmdWifiScanComplete, uint32(len(nets))))
	glog.Infof("wifi: scan complete, %d networks", len(nets))
	s.settle()
}

func (s *Service) collect(r *wcm.ScanResult) {
	if r.SSID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.collecting || len(s.results) >= s.cfg.ScanCapacity {
		return
	}
	ssid := r.SSID
	if len(ssid) > ipc.SSIDMax-1 {
		ssid = ssid[:ipc.SSIDMax-1]
	}
	ch := uint8(r.Channel)
	s.results = append(s.results, ipc.WifiNetwork{
		SSID:     ssid,
		RSSI:     rssi8(r.RSSI),
		Security: fromVendor(r.Security),
		Channel:  ch,
		Band:     ipc.BandForChannel(ch),
	})
}

// stopCollecting closes the result buffer and returns a copy.
func (s *Service) stopCollecting() []ipc.WifiNetwork {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collecting = false
	return append([]ipc.WifiNetwork(nil), s.results...)
}

// -----------------------------------------------------------------------------
// Association
// -----------------------------------------------------------------------------

func (s *Service) connect(ctx context.Context, m ipc.Message) {
	var req ipc.WifiConnect
	if err := req.UnmarshalBinary(m.Data[:]); err != nil || req.SSID == "" {
		glog.Warningf("wifi: connect request without ssid")
		s.reply(ipc.NewMessage(ipc.CmdWifiError, uint32(ipc.WifiErrUnknown)))
		return
	}
	glog.Infof("wifi: connecting to %q", req.SSID)
	s.setState(ipc.WifiConnecting)

	ip, err := s.stack.Connect(ctx, wcm.ConnectParams{
		SSID:     req.SSID,
		Password: req.Password,
		Security: toVendor(req.Security),
	})
	if err != nil {
		code := connectError(err)
		glog.Warningf("wifi: connect %q failed (%s): %v", req.SSID, code, err)
		s.settle()
		s.reply(ipc.NewMessage(ipc.CmdWifiError, uint32(code)))
		return
	}

	s.connectedSSID = req.SSID
	s.connectedAt = s.ticks.Now()
	s.setState(ipc.WifiConnected)
	glog.Infof("wifi: connected to %q, ip %s", req.SSID, ipc.FormatIPv4(ip))

	st := ipc.WifiStatus{State: ipc.WifiConnected, Security: req.Security, SSID: req.SSID, IP: ip}
	if l, err := s.stack.Link(); err == nil {
		st.RSSI = rssi8(l.RSSI)
	}
	s.replyPayload(ipc.CmdWifiConnected, 0, st)
}

func (s *Service) disconnect() {
	s.setState(ipc.WifiDisconnecting)
	if err := s.stack.Disconnect(); err != nil {
		glog.Warningf("wifi: disconnect failed: %v", err)
		s.settle()
		s.reply(ipc.NewMessage(ipc.CmdWifiError, uint32(ipc.WifiErrDriver)))
		return
	}
	s.connectedSSID = ""
	s.setState(ipc.WifiDisconnected)
	s.reply(ipc.NewMessage(ipc.CmdWifiDisconnected, 0))
}

// -----------------------------------------------------------------------------
// Queries
// -----------------------------------------------------------------------------

func (s *Service) status() {
	st := ipc.WifiStatus{State: s.State()}
	if s.stack.Connected() {
		if info, err := s.stack.IP(); err == nil {
			st.IP = info.IP
		}
		if l, err := s.stack.Link(); err == nil {
			st.SSID = l.SSID
			st.RSSI = rssi8(l.RSSI)
			st.Security = fromVendor(l.Security)
		}
		st.Uptime = uint32(timex.Since(s.ticks, s.connectedAt) / time.Second)
	}
	s.replyPayload(ipc.CmdWifiStatus, 0, st)
}

func (s *Service) tcpip() {
	t := ipc.WifiTCPIP{DHCP: true}
	if s.stack.Connected() {
		if info, err := s.stack.IP(); err == nil {
			t.IP, t.Subnet, t.Gateway, t.DNS1 = info.IP, info.Netmask, info.Gateway, info.DNS
		}
	}
	s.replyPayload(ipc.CmdWifiTCPIPInfo, 0, t)
}

func (s *Service) hardware() {
	hw := ipc.WifiHardware{Firmware: s.cfg.Firmware, Band: ipc.BandUnknown}
	if mac, err := s.stack.MAC(); err == nil {
		hw.MAC = mac
	}
	if s.stack.Connected() {
		if l, err := s.stack.Link(); err == nil {
			hw.Channel = uint8(l.Channel)
			hw.Band = ipc.BandForChannel(hw.Channel)
			hw.RSSI = rssi8(l.RSSI)
		}
	}
	s.replyPayload(ipc.CmdWifiHardwareInfo, 0, hw)
}

// -----------------------------------------------------------------------------
// Time
// -----------------------------------------------------------------------------

func (s *Service) syncTime(ctx context.Context) {
	if !s.stack.Connected() {
		s.reply(ipc.NewMessage(ipc.CmdNTPError, uint32(ipc.NTPNoWifi)))
		return
	}
	epoch, err := s.ntp.Query(ctx)
	if err != nil {
		reason := ipc.NTPReceive
		var ne *ntp.Error
		if errors.As(err, &ne) {
			reason = ne.Reason
		}
		glog.Warningf("wifi: ntp sync failed: %v", err)
		s.reply(ipc.NewMessage(ipc.CmdNTPError, uint32(reason)))
		return
	}
	glog.Infof("wifi: ntp epoch %d", epoch)
	s.reply(ipc.NewMessage(ipc.CmdNTPTime, epoch))
	s.ntpSynced = true
	s.lastSync = s.ticks.Now()
}

// housekeeping runs when the queue stays empty for a poll period.
func (s *Service) housekeeping(ctx context.Context) {
	if !s.ntpSynced || !s.stack.Connected() {
		return
	}
	if timex.Since(s.ticks, s.lastSync) < s.cfg.ResyncInterval {
		return
	}
	glog.Infof("wifi: periodic ntp re-sync")
	s.syncTime(ctx)
}
