// Package router owns one core's side of the pipe: it stages what the
// transport delivers, dispatches it in task context and offers bounded-retry
// sends. One Router exists per core.
package router

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"dualcore-go/console"
	"dualcore-go/errcode"
	"dualcore-go/ipc"
)

// Role selects the per-core routing table.
type Role uint8

const (
	PCore Role = iota // peripheral core: owns Wi-Fi, IMU, touch
	ACore             // application core: UI and clock
)

func (r Role) String() string {
	if r == PCore {
		return "P-core"
	}
	return "A-core"
}

func (r Role) Peer() Role {
	if r == PCore {
		return ACore
	}
	return PCore
}

// Transport is the mailbox endpoint the router drives.
type Transport interface {
	Send(ipc.Message) error
	OnReceive(func(ipc.Message))
}

// Handler is the application callback. It runs before the built-ins and may
// suppress them by setting m.Cmd to ipc.CmdNone.
type Handler func(m *ipc.Message, user any)

// Enqueuer accepts commands for a service task.
type Enqueuer interface {
	Enqueue(m ipc.Message, timeout time.Duration) error
}

// CurrentSender emits the current touch state on request.
type CurrentSender interface {
	SendCurrent() error
}

type Config struct {
	Role           Role
	RetryLimit     int           // attempts per SendRetry; 0 selects 10
	RetryDelay     time.Duration // pause after a busy attempt
	PollInterval   time.Duration // Run's fallback poll
	EnqueueTimeout time.Duration // soft wait on a full service queue
}

func DefaultConfig(role Role) Config {
	return Config{
		Role:           role,
		RetryLimit:     10,
		RetryDelay:     time.Millisecond,
		PollInterval:   10 * time.Millisecond,
		EnqueueTimeout: 100 * time.Millisecond,
	}
}

type Option func(*Router)

// WithWifiQueue routes the Wi-Fi range and NTP_SYNC to q (P-core only).
func WithWifiQueue(q Enqueuer) Option { return func(r *Router) { r.wifi = q } }

// WithCapsense answers CAPSENSE_REQ from c (P-core only).
func WithCapsense(c CurrentSender) Option { return func(r *Router) { r.caps = c } }

// WithConsole prints peer LOG lines to s.
func WithConsole(s console.Sink) Option { return func(r *Router) { r.console = s } }

// Stats is a snapshot of the router's counters.
type Stats struct {
	Tx        uint32
	Rx        uint32
	Errors    uint32
	Ignored   uint32 // tags with no handler
	Discarded uint32 // NONE envelopes
	Overruns  uint32 // staged message replaced before it was processed
	ByKind    [errcode.NumKinds]uint32
}

type Router struct {
	tr  Transport
	cfg Config

	wifi    Enqueuer
	caps    CurrentSender
	console console.Sink

	// staging area shared with the transport's receive context
	mu      sync.Mutex
	staged  ipc.Message
	pending bool
	wake    chan struct{}

	cbMu sync.RWMutex
	cb   Handler
	user any

	ready atomic.Bool

	tx, rx, errs, ignored, discarded, overruns atomic.Uint32
	byKind                                     [errcode.NumKinds]atomic.Uint32

	sleep func(time.Duration)
}

func New(tr Transport, cfg Config, opts ...Option) *Router {
	def := DefaultConfig(cfg.Role)
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = def.RetryLimit
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = def.EnqueueTimeout
	}
	r := &Router{
		tr:    tr,
		cfg:   cfg,
		wake:  make(chan struct{}, 1),
		sleep: time.Sleep,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Attach applies options after construction, for services that need the
// router as their sender. It must be called before Run.
func (r *Router) Attach(opts ...Option) {
	for _, o := range opts {
		o(r)
	}
}

func (r *Router) Role() Role { return r.cfg.Role }

// Init registers the receive handler. It is idempotent.
func (r *Router) Init() error {
	if r.ready.Load() {
		return nil
	}
	if r.tr == nil {
		return &errcode.E{C: errcode.NotReady, Op: "router.init", Msg: "no transport"}
	}
	r.tr.OnReceive(r.receive)
	r.ready.Store(true)
	return nil
}

// Register installs the application callback; a later call replaces it.
func (r *Router) Register(h Handler, user any) {
	r.cbMu.Lock()
	r.cb, r.user = h, user
	r.cbMu.Unlock()
}

// receive runs in the transport's interrupt context: copy, flag, wake.
func (r *Router) receive(m ipc.Message) {
	r.mu.Lock()
	if r.pending {
		r.overruns.Add(1)
	}
	r.staged = m
	r.pending = true
	r.mu.Unlock()
	r.rx.Add(1)
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Pending reports whether a staged message awaits Process.
func (r *Router) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

func (r *Router) take() (ipc.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.pending {
		return ipc.Message{}, false
	}
	r.pending = false
	return r.staged, true
}

// Process handles at most one staged message and reports whether it did.
func (r *Router) Process() bool {
	m, ok := r.take()
	if !ok {
		return false
	}
	if m.Cmd == ipc.CmdNone {
		r.discarded.Add(1)
		r.byKind[errcode.KindProtocol].Add(1)
		return true
	}

	r.cbMu.RLock()
	cb, user := r.cb, r.user
	r.cbMu.RUnlock()
	if cb != nil {
		cb(&m, user)
		if m.Cmd == ipc.CmdNone {
			return true
		}
	}
	r.builtin(m, cb != nil)
	return true
}

func (r *Router) builtin(m ipc.Message, hasApp bool) {
	switch {
	case m.Cmd == ipc.CmdPing:
		if err := r.SendRetry(ipc.NewMessage(ipc.CmdPong, m.Value), 0); err != nil {
			glog.Warningf("router[%s]: pong %d: %v", r.cfg.Role, m.Value, err)
		}
		return
	case m.Cmd.IsLog():
		r.printPeer(m.Cmd.Level(), m.Text())
		return
	}

	if r.cfg.Role == PCore {
		switch {
		case (m.Cmd.IsWifi() || m.Cmd == ipc.CmdNTPSync) && r.wifi != nil:
			if err := r.wifi.Enqueue(m, r.cfg.EnqueueTimeout); err != nil {
				r.Fail(&errcode.E{C: errcode.Of(err), Op: "router.route", Msg: m.Cmd.String() + " dropped", Err: err})
			}
			return
		case m.Cmd == ipc.CmdCapsenseReq && r.caps != nil:
			if err := r.caps.SendCurrent(); err != nil {
				r.Fail(&errcode.E{C: errcode.Of(err), Op: "router.capsense", Err: err})
			}
			return
		}
	}

	if !m.Cmd.Known() || !hasApp {
		r.ignored.Add(1)
		if glog.V(2) {
			glog.Infof("router[%s]: ignored %s", r.cfg.Role, m.Cmd)
		}
	}
}

func (r *Router) printPeer(level, text string) {
	origin := r.cfg.Role.Peer().String()
	if r.console != nil {
		r.console.Log(origin, level, text)
		return
	}
	glog.Infof("[%s/%s] %s", origin, level, text)
}

// Run drives Process from notifications, with a periodic poll as fallback.
func (r *Router) Run(ctx context.Context) error {
	if err := r.Init(); err != nil {
		return err
	}
	t := time.NewTicker(r.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.wake:
		case <-t.C:
		}
		for r.Process() {
		}
	}
}

// -----------------------------------------------------------------------------
// Sending
// -----------------------------------------------------------------------------

// Send makes a single attempt. Busy is returned uncounted so SendRetry can
// decide; other failures count as errors.
func (r *Router) Send(m ipc.Message) error {
	if !r.ready.Load() {
		return errcode.NotReady
	}
	err := r.tr.Send(m)
	switch {
	case err == nil:
		r.tx.Add(1)
		if glog.V(2) {
			glog.Infof("router[%s]: tx %s value=%d", r.cfg.Role, m.Cmd, m.Value)
		}
		return nil
	case errcode.Of(err) == errcode.Busy:
		return err
	default:
		r.count(err)
		return err
	}
}

// SendRetry retries Send on Busy with the configured delay. limit <= 0
// selects the configured limit. Exactly limit attempts are made before GaveUp.
func (r *Router) SendRetry(m ipc.Message, limit int) error {
	if limit <= 0 {
		limit = r.cfg.RetryLimit
	}
	for attempt := 1; ; attempt++ {
		err := r.Send(m)
		if errcode.Of(err) != errcode.Busy {
			return err
		}
		if attempt >= limit {
			gerr := &errcode.E{C: errcode.GaveUp, Op: "router.send", Msg: m.Cmd.String(), Err: err}
			r.count(gerr)
			glog.Warningf("router[%s]: %v after %d attempts", r.cfg.Role, gerr, attempt)
			return gerr
		}
		r.sleep(r.cfg.RetryDelay)
	}
}

// SendMsg implements ipc.Sender with the default retry policy.
func (r *Router) SendMsg(m ipc.Message) error { return r.SendRetry(m, 0) }

func (r *Router) SendCmd(cmd ipc.Cmd, value uint32) error {
	return r.SendRetry(ipc.NewMessage(cmd, value), 0)
}

func (r *Router) SendData(cmd ipc.Cmd, text string) error {
	return r.SendRetry(ipc.NewText(cmd, text), 0)
}

// Logf sends a LOG_* line to the peer; level must be a log tag.
func (r *Router) Logf(level ipc.Cmd, format string, args ...any) error {
	if !level.IsLog() {
		level = ipc.CmdLog
	}
	return r.SendData(level, fmt.Sprintf(format, args...))
}

// Fail records err under its kind and reports it to the peer.
func (r *Router) Fail(err error) {
	if err == nil {
		return
	}
	r.count(err)
	kind := errcode.KindOf(err)
	glog.Errorf("router[%s]: %s error: %v", r.cfg.Role, kind, err)
	level := ipc.CmdLogError
	if kind == errcode.KindTransient || kind == errcode.KindTimeout {
		level = ipc.CmdLogWarn
	}
	if serr := r.SendData(level, err.Error()); serr != nil {
		glog.Warningf("router[%s]: peer log lost: %v", r.cfg.Role, serr)
	}
}

func (r *Router) count(err error) {
	r.errs.Add(1)
	r.byKind[errcode.KindOf(err)].Add(1)
}

// -----------------------------------------------------------------------------
// Stats
// -----------------------------------------------------------------------------

func (r *Router) Stats() Stats {
	s := Stats{
		Tx:        r.tx.Load(),
		Rx:        r.rx.Load(),
		Errors:    r.errs.Load(),
		Ignored:   r.ignored.Load(),
		Discarded: r.discarded.Load(),
		Overruns:  r.overruns.Load(),
	}
	for i := range r.byKind {
		s.ByKind[i] = r.byKind[i].Load()
	}
	return s
}

func (r *Router) ResetStats() {
	for _, c := range []*atomic.Uint32{&r.tx, &r.rx, &r.errs, &r.ignored, &r.discarded, &r.overruns} {
		c.Store(0)
	}
	for i := range r.byKind {
		r.byKind[i].Store(0)
	}
}
