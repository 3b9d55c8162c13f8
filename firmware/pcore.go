package firmware

import (
	"context"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"dualcore-go/blackboard"
	"dualcore-go/drivers/bmi270"
	capsensedrv "dualcore-go/drivers/capsense"
	"dualcore-go/errcode"
	"dualcore-go/ipc"
	"dualcore-go/mailbox"
	"dualcore-go/router"
	"dualcore-go/services/capsense"
	"dualcore-go/services/config"
	"dualcore-go/services/imu"
	"dualcore-go/services/ntp"
	"dualcore-go/services/wifi"
	"dualcore-go/x/timex"
)

// PCore is the peripheral core: router, IMU task with the touch poller
// riding on it, and the Wi-Fi service.
type PCore struct {
	Router *router.Router
	IMU    *imu.Task
	Touch  *capsense.Poller
	Wifi   *wifi.Service

	ep *mailbox.Endpoint
}

func NewPCore(b *Board, hw Hardware, cfg config.Config) (*PCore, error) {
	if hw.I2C == nil || hw.Wifi == nil {
		return nil, &errcode.E{C: errcode.NotReady, Op: "firmware.pcore", Msg: "i2c bus and wifi stack are required"}
	}
	ticks := hw.Ticks
	if ticks == nil {
		ticks = timex.NewBoot()
	}

	r := router.New(b.P, routerConfig(router.PCore, cfg), router.WithConsole(hw.Console))

	capsBoard, err := blackboard.NewCapsenseWriter(b.Arena)
	if err != nil {
		return nil, err
	}
	touch := capsense.New(capsensedrv.New(hw.I2C), r,
		capsense.WithBoard(capsBoard),
		capsense.WithButtonEvents(r),
		capsense.WithTicks(ticks),
	)

	imuBoard, err := blackboard.NewIMUWriter(b.Arena)
	if err != nil {
		return nil, err
	}
	icfg := imuConfig(cfg.IMU)
	task := imu.New(newSensor(hw, cfg.IMU, icfg), imuBoard, ticks, icfg,
		imu.WithPoller(touch),
		imu.WithForwarder(r),
		imu.WithReporter(r),
	)

	client := ntpClient(cfg.NTP, hw.Dial)
	svc := wifi.New(hw.Wifi, r, wifiConfig(cfg), wifi.WithTimeSource(client), wifi.WithTicks(ticks))

	r.Attach(router.WithWifiQueue(svc), router.WithCapsense(touch))
	return &PCore{Router: r, IMU: task, Touch: touch, Wifi: svc, ep: b.P}, nil
}

// Run starts the endpoint and the core's tasks and blocks until ctx ends or
// a task fails.
func (p *PCore) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if err := p.Router.Init(); err != nil {
		return err
	}
	p.ep.Start(ctx)
	g.Go(func() error { return p.Router.Run(ctx) })
	g.Go(func() error { return p.IMU.Run(ctx) })
	g.Go(func() error { return p.Wifi.Run(ctx) })

	if err := p.Router.Logf(ipc.CmdLogInfo, "P-core up"); err != nil {
		glog.Warningf("pcore: boot log: %v", err)
	}
	return g.Wait()
}

func newSensor(hw Hardware, c config.IMU, icfg imu.Config) imu.Sensor {
	if c.Sensor == "lsm6ds3tr" {
		return imu.NewLSM6DS3TR(hw.I2C)
	}
	ar, gr := imu.BMI270Ranges(icfg)
	return imu.NewBMI270(hw.I2C, bmi270.Config{AccelRange: ar, GyroRange: gr})
}

func routerConfig(role router.Role, cfg config.Config) router.Config {
	rc := router.DefaultConfig(role)
	rc.RetryLimit = cfg.Mailbox.RetryLimit
	rc.RetryDelay = cfg.Mailbox.RetryDelay
	return rc
}

func imuConfig(c config.IMU) imu.Config {
	ic := imu.DefaultConfig()
	ic.Period = c.Period
	ic.AccelRangeG = c.AccelRangeG
	ic.GyroRangeDPS = c.GyroRangeDPS
	ic.MaxAbs = c.MaxAbs
	ic.MaxDelta = c.MaxDelta
	ic.ForwardEvery = c.ForwardEvery
	return ic
}

func wifiConfig(cfg config.Config) wifi.Config {
	wc := wifi.DefaultConfig()
	wc.QueueCap = cfg.Wifi.QueueLen
	wc.ScanCapacity = cfg.Wifi.ScanCapacity
	wc.ScanTimeout = cfg.Wifi.ScanTimeout
	wc.ResultSpacing = cfg.Wifi.ResultSpacing
	wc.ResyncInterval = cfg.NTP.ResyncInterval
	return wc
}

func ntpClient(c config.NTP, dial ntp.Dialer) *ntp.Client {
	cl := ntp.NewClient()
	cl.Server = c.Server
	cl.Port = c.Port
	cl.Timeout = c.Timeout
	cl.Floor = c.EpochFloor
	cl.Dial = dial
	return cl
}
