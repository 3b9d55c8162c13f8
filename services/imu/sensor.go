package imu

import (
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/lsm6ds3tr"

	"dualcore-go/drivers/bmi270"
	"dualcore-go/errcode"
)

const (
	standardGravity = 9.80665 // m/s² per g
	degToRad        = 0.01745
)

// Sample is one reading in SI units.
type Sample struct {
	Accel [3]float32 // m/s²
	Gyro  [3]float32 // rad/s
	Raw   [6]int16   // sensor LSB when the sensor exposes it
}

// Sensor is an inertial device the task can sample.
type Sensor interface {
	Configure() error
	Read() (Sample, error)
}

// AccelToMS2 converts a raw reading for a ±rangeG sensor of the given width.
func AccelToMS2(raw int16, rangeG float32, bits uint) float32 {
	half := float32(int32(1) << (bits - 1))
	return standardGravity * float32(raw) * rangeG / half
}

// GyroToRadS converts a raw reading for a ±rangeDPS sensor of the given width.
func GyroToRadS(raw int16, rangeDPS float32, bits uint) float32 {
	half := float32(int32(1) << (bits - 1))
	return degToRad * rangeDPS / half * float32(raw)
}

// -----------------------------------------------------------------------------
// BMI270
// -----------------------------------------------------------------------------

type bmiSensor struct {
	dev *bmi270.Device
	cfg bmi270.Config
}

// NewBMI270 samples a BMI270; zero ranges select ±2 g and ±2000 dps.
func NewBMI270(bus drivers.I2C, cfg bmi270.Config) Sensor {
	return &bmiSensor{dev: bmi270.New(bus), cfg: cfg}
}

func (s *bmiSensor) Configure() error {
	if err := s.dev.Configure(s.cfg); err != nil {
		return &errcode.E{C: errcode.DriverInit, Op: "imu.bmi270", Err: err}
	}
	return nil
}

func (s *bmiSensor) Read() (Sample, error) {
	a, g, err := s.dev.ReadRaw()
	if err != nil {
		return Sample{}, &errcode.E{C: errcode.SensorRead, Op: "imu.bmi270", Err: err}
	}
	rg, rd := s.dev.Ranges()
	var out Sample
	for i := 0; i < 3; i++ {
		out.Accel[i] = AccelToMS2(a[i], rg, bmi270.Resolution)
		out.Gyro[i] = GyroToRadS(g[i], rd, bmi270.Resolution)
		out.Raw[i], out.Raw[3+i] = a[i], g[i]
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// LSM6DS3TR
// -----------------------------------------------------------------------------

type lsmSensor struct {
	dev *lsm6ds3tr.Device
}

// NewLSM6DS3TR samples an LSM6DS3TR-C at ±2 g / ±2000 dps, 104 Hz.
func NewLSM6DS3TR(bus drivers.I2C) Sensor {
	return &lsmSensor{dev: lsm6ds3tr.New(bus)}
}

func (s *lsmSensor) Configure() error {
	err := s.dev.Configure(lsm6ds3tr.Configuration{
		AccelRange:      lsm6ds3tr.ACCEL_2G,
		AccelSampleRate: lsm6ds3tr.ACCEL_SR_104,
		GyroRange:       lsm6ds3tr.GYRO_2000DPS,
		GyroSampleRate:  lsm6ds3tr.GYRO_SR_104,
	})
	if err != nil {
		return &errcode.E{C: errcode.DriverInit, Op: "imu.lsm6ds3tr", Err: err}
	}
	if !s.dev.Connected() {
		return &errcode.E{C: errcode.DriverInit, Op: "imu.lsm6ds3tr", Msg: "not connected"}
	}
	return nil
}

// Read converts the driver's micro-g and micro-dps into SI units.
func (s *lsmSensor) Read() (Sample, error) {
	ax, ay, az, err := s.dev.ReadAcceleration()
	if err != nil {
		return Sample{}, &errcode.E{C: errcode.SensorRead, Op: "imu.lsm6ds3tr", Err: err}
	}
	gx, gy, gz, err := s.dev.ReadRotation()
	if err != nil {
		return Sample{}, &errcode.E{C: errcode.SensorRead, Op: "imu.lsm6ds3tr", Err: err}
	}
	var out Sample
	for i, v := range [3]int32{ax, ay, az} {
		out.Accel[i] = float32(v) / 1e6 * standardGravity
	}
	for i, v := range [3]int32{gx, gy, gz} {
		out.Gyro[i] = float32(v) / 1e6 * degToRad
	}
	return out, nil
}

// BMI270Ranges picks the driver ranges for the task's full-scale settings,
// falling back to ±2 g and ±2000 dps for values the part does not offer.
func BMI270Ranges(cfg Config) (bmi270.AccelRange, bmi270.GyroRange) {
	ar := bmi270.Accel2G
	for _, r := range []bmi270.AccelRange{bmi270.Accel2G, bmi270.Accel4G, bmi270.Accel8G, bmi270.Accel16G} {
		if r.G() == cfg.AccelRangeG {
			ar = r
		}
	}
	gr := bmi270.Gyro2000DPS
	for _, r := range []bmi270.GyroRange{bmi270.Gyro2000DPS, bmi270.Gyro1000DPS, bmi270.Gyro500DPS, bmi270.Gyro250DPS, bmi270.Gyro125DPS} {
		if r.DPS() == cfg.GyroRangeDPS {
			gr = r
		}
	}
	return ar, gr
}
