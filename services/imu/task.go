// Package imu runs the periodic inertial sampling task on the P-core. Each
// period it reads the sensor, applies the plausibility filter, publishes the
// IMU blackboard and then gives the touch poller its turn.
package imu

import (
	"context"
	"time"

	"github.com/golang/glog"

	"dualcore-go/blackboard"
	"dualcore-go/ipc"
	"dualcore-go/x/timex"
)

// Poller is the piggy-backed touch poll.
type Poller interface {
	Poll() error
}

// Forwarder sends raw IMU frames to the peer.
type Forwarder interface {
	SendIMU(d ipc.IMUData) error
}

// Reporter receives hardware faults for peer logging.
type Reporter interface {
	Fail(err error)
}

type Config struct {
	Period       time.Duration
	AccelRangeG  float32
	GyroRangeDPS float32
	MaxAbs       float32 // m/s² per axis
	MaxDelta     float32 // m/s² per axis between accepted samples
	ForwardEvery int     // 0 disables IMU_DATA forwarding
}

func DefaultConfig() Config {
	return Config{
		Period:       100 * time.Millisecond,
		AccelRangeG:  2,
		GyroRangeDPS: 2000,
		MaxAbs:       20,
		MaxDelta:     15,
	}
}

type Option func(*Task)

func WithPoller(p Poller) Option       { return func(t *Task) { t.touch = p } }
func WithForwarder(f Forwarder) Option { return func(t *Task) { t.fwd = f } }
func WithReporter(r Reporter) Option   { return func(t *Task) { t.rep = r } }

// Stats counts task outcomes since start.
type Stats struct {
	Steps      uint32
	Accepted   uint32
	Rejected   uint32
	ReadErrors uint32
}

type Task struct {
	cfg    Config
	sensor Sensor
	board  *blackboard.IMUWriter
	ticks  timex.Source
	filter Filter

	touch Poller
	fwd   Forwarder
	rep   Reporter

	sensorOK bool
	failing  bool
	stats    Stats
}

func New(sensor Sensor, board *blackboard.IMUWriter, ticks timex.Source, cfg Config, opts ...Option) *Task {
	def := DefaultConfig()
	if cfg.Period <= 0 {
		cfg.Period = def.Period
	}
	if cfg.MaxAbs <= 0 {
		cfg.MaxAbs = def.MaxAbs
	}
	if cfg.MaxDelta <= 0 {
		cfg.MaxDelta = def.MaxDelta
	}
	if ticks == nil {
		ticks = timex.NewBoot()
	}
	t := &Task{
		cfg:    cfg,
		sensor: sensor,
		board:  board,
		ticks:  ticks,
		filter: Filter{MaxAbs: cfg.MaxAbs, MaxDelta: cfg.MaxDelta},
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Init installs the board and configures the sensor. A sensor failure is
// recorded on the board and returned; Step keeps polling touch regardless.
func (t *Task) Init() error {
	t.board.Install()
	if t.sensor == nil {
		return nil
	}
	if err := t.sensor.Configure(); err != nil {
		t.board.Error()
		t.report(err)
		return err
	}
	t.sensorOK = true
	return nil
}

// Step runs one period: sample, filter, publish, then poll touch.
func (t *Task) Step() {
	t.stats.Steps++
	if t.sensorOK {
		t.sample()
	}
	if t.touch != nil {
		_ = t.touch.Poll()
	}
}

func (t *Task) sample() {
	s, err := t.sensor.Read()
	if err != nil {
		t.stats.ReadErrors++
		t.board.Error()
		t.report(err)
		return
	}
	t.failing = false

	out, accepted, valid := t.filter.Apply(s)
	if !accepted {
		t.stats.Rejected++
		t.board.Error()
		if glog.V(2) {
			glog.Infof("imu: rejected accel %v", s.Accel)
		}
	} else {
		t.stats.Accepted++
	}
	if !valid {
		return
	}
	_ = t.board.Publish(blackboard.IMURecord{
		Tick:  t.ticks.Now(),
		Accel: out.Accel,
		Gyro:  out.Gyro,
		Raw:   out.Raw,
	})
	if accepted && t.fwd != nil && t.cfg.ForwardEvery > 0 && t.stats.Accepted%uint32(t.cfg.ForwardEvery) == 0 {
		d := ipc.IMUData{Timestamp: t.ticks.Now()}
		copy(d.Accel[:], out.Raw[:3])
		copy(d.Gyro[:], out.Raw[3:])
		if err := t.fwd.SendIMU(d); err != nil && glog.V(2) {
			glog.Infof("imu: forward: %v", err)
		}
	}
}

// report passes the first failure of a run of failures to the reporter.
func (t *Task) report(err error) {
	if t.failing {
		return
	}
	t.failing = true
	glog.Warningf("imu: %v", err)
	if t.rep != nil {
		t.rep.Fail(err)
	}
}

func (t *Task) Stats() Stats { return t.stats }

// Run calls Init and then Step every period until ctx ends.
func (t *Task) Run(ctx context.Context) error {
	if err := t.Init(); err != nil {
		glog.Errorf("imu: sensor init failed, touch polling only: %v", err)
	}
	tick := time.NewTicker(t.cfg.Period)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			t.Step()
		}
	}
}
