package imu

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"dualcore-go/blackboard"
	"dualcore-go/drivers/bmi270"
	"dualcore-go/errcode"
	"dualcore-go/ipc"
	"dualcore-go/sim"
	"dualcore-go/x/shmem"
	"dualcore-go/x/timex"
)

type scripted struct {
	samples []Sample
	errs    []error
	i       int
	cfgErr  error
}

func (s *scripted) Configure() error { return s.cfgErr }

func (s *scripted) Read() (Sample, error) {
	i := s.i
	s.i++
	if i < len(s.errs) && s.errs[i] != nil {
		return Sample{}, s.errs[i]
	}
	if i < len(s.samples) {
		return s.samples[i], nil
	}
	return s.samples[len(s.samples)-1], nil
}

type countPoller struct{ n int }

func (p *countPoller) Poll() error { p.n++; return nil }

type failLog struct{ errs []error }

func (f *failLog) Fail(err error) { f.errs = append(f.errs, err) }

type fwdLog struct{ frames []ipc.IMUData }

func (f *fwdLog) SendIMU(d ipc.IMUData) error { f.frames = append(f.frames, d); return nil }

func accel(x, y, z float32) Sample { return Sample{Accel: [3]float32{x, y, z}} }

func newBoards(t *testing.T) (*blackboard.IMUWriter, *blackboard.IMUReader) {
	t.Helper()
	a := shmem.NewArena(blackboard.ArenaBytes)
	w, err := blackboard.NewIMUWriter(a)
	require.NoError(t, err)
	r, err := blackboard.NewIMUReader(a)
	require.NoError(t, err)
	return w, r
}

func TestConversion(t *testing.T) {
	require.InDelta(t, 9.80665, AccelToMS2(16384, 2, 16), 1e-4)
	require.InDelta(t, -9.80665, AccelToMS2(-16384, 2, 16), 1e-4)
	require.InDelta(t, 17.45, GyroToRadS(16384, 2000, 16), 1e-3)
	require.Zero(t, AccelToMS2(0, 16, 16))
}

func TestFilterPlausibility(t *testing.T) {
	f := Filter{MaxAbs: 20, MaxDelta: 15}

	_, accepted, valid := f.Apply(accel(0, 0, 25))
	require.False(t, accepted)
	require.False(t, valid, "nothing accepted yet")

	out, accepted, _ := f.Apply(accel(0, 0, 9.8))
	require.True(t, accepted)
	require.Equal(t, accel(0, 0, 9.8), out)

	out, accepted, valid = f.Apply(accel(0, 0, 30))
	require.False(t, accepted)
	require.True(t, valid)
	require.Equal(t, accel(0, 0, 9.8), out)

	_, accepted, _ = f.Apply(accel(0, 16, 9.8))
	require.False(t, accepted, "delta above limit")

	_, accepted, _ = f.Apply(accel(0, 14, 9.8))
	require.True(t, accepted)
}

func TestStepRepublishesLastGoodOnRejection(t *testing.T) {
	w, r := newBoards(t)
	sensor := &scripted{samples: []Sample{accel(0, 0, 9.8), accel(0, 0, 30)}}
	ticks := &timex.Manual{}
	task := New(sensor, w, ticks, DefaultConfig())
	require.NoError(t, task.Init())

	task.Step()
	ticks.Set(100)
	task.Step()

	rec, st := r.Read()
	require.Equal(t, blackboard.Fresh, st)
	require.Equal(t, [3]float32{0, 0, 9.8}, rec.Accel)
	require.Equal(t, uint32(100), rec.Tick)
	require.Equal(t, uint32(1), r.Errors())
	require.Equal(t, Stats{Steps: 2, Accepted: 1, Rejected: 1}, task.Stats())
}

func TestReadFailureRecordedAndTouchStillPolled(t *testing.T) {
	w, r := newBoards(t)
	nak := &errcode.E{C: errcode.SensorRead, Op: "test"}
	sensor := &scripted{
		samples: []Sample{accel(0, 0, 9.8)},
		errs:    []error{nak, nak, nil},
	}
	poll := &countPoller{}
	rep := &failLog{}
	task := New(sensor, w, &timex.Manual{}, DefaultConfig(), WithPoller(poll), WithReporter(rep))
	require.NoError(t, task.Init())

	task.Step()
	task.Step()
	_, st := r.Read()
	require.Equal(t, blackboard.NoData, st)
	require.Equal(t, uint32(2), r.Errors())
	require.Equal(t, 2, poll.n)
	require.Len(t, rep.errs, 1, "one report per run of failures")

	task.Step()
	_, st = r.Read()
	require.Equal(t, blackboard.Fresh, st)
	require.Equal(t, 3, poll.n)
}

func TestSensorInitFailureKeepsPolling(t *testing.T) {
	w, r := newBoards(t)
	sensor := &scripted{cfgErr: errors.New("no chip")}
	poll := &countPoller{}
	task := New(sensor, w, nil, DefaultConfig(), WithPoller(poll))

	require.Error(t, task.Init())
	require.True(t, r.Ready(), "board installed even without a sensor")
	require.Equal(t, uint32(1), r.Errors())

	task.Step()
	require.Equal(t, 1, poll.n)
	require.Zero(t, sensor.i, "sensor not read after init failure")
}

func TestForwardEvery(t *testing.T) {
	w, _ := newBoards(t)
	s := accel(0, 0, 9.8)
	s.Raw = [6]int16{1, 2, 3, 4, 5, 6}
	fwd := &fwdLog{}
	cfg := DefaultConfig()
	cfg.ForwardEvery = 2
	task := New(&scripted{samples: []Sample{s}}, w, &timex.Manual{}, cfg, WithForwarder(fwd))
	require.NoError(t, task.Init())

	for i := 0; i < 4; i++ {
		task.Step()
	}
	require.Len(t, fwd.frames, 2)
	require.Equal(t, [3]int16{1, 2, 3}, fwd.frames[0].Accel)
	require.Equal(t, [3]int16{4, 5, 6}, fwd.frames[0].Gyro)
}

func TestBMI270SensorOverSimulatedBus(t *testing.T) {
	bus := sim.NewI2CBus()
	chip := sim.NewBMI270()
	bus.Attach(bmi270.Address, chip)
	chip.SetRaw([3]int16{0, 0, 16384}, [3]int16{0, 0, -16384})

	ar, gr := BMI270Ranges(DefaultConfig())
	s := NewBMI270(bus, bmi270.Config{AccelRange: ar, GyroRange: gr})
	require.NoError(t, s.Configure())

	got, err := s.Read()
	require.NoError(t, err)
	require.InDelta(t, 9.80665, got.Accel[2], 1e-4)
	require.InDelta(t, -17.45, got.Gyro[2], 1e-3)
	require.Equal(t, int16(16384), got.Raw[2])

	chip.Fail(true)
	_, err = s.Read()
	require.True(t, errors.Is(err, errcode.SensorRead))
}

func TestBMI270Ranges(t *testing.T) {
	ar, gr := BMI270Ranges(Config{AccelRangeG: 8, GyroRangeDPS: 500})
	require.Equal(t, bmi270.Accel8G, ar)
	require.Equal(t, bmi270.Gyro500DPS, gr)

	ar, gr = BMI270Ranges(Config{AccelRangeG: 3, GyroRangeDPS: 7})
	require.Equal(t, bmi270.Accel2G, ar)
	require.Equal(t, bmi270.Gyro2000DPS, gr)
}
