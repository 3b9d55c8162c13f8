package firmware

import (
	"context"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"dualcore-go/blackboard"
	"dualcore-go/bus"
	"dualcore-go/console"
	"dualcore-go/ipc"
	"dualcore-go/mailbox"
	"dualcore-go/router"
	"dualcore-go/services/clock"
	"dualcore-go/services/config"
	"dualcore-go/services/heartbeat"
	"dualcore-go/services/wifiview"
)

var (
	TopicDisplay = bus.T("clock", "display")
	TopicTouch   = bus.T("touch", "state")
	TopicButton  = bus.T("touch", "button")
	TopicIMU     = bus.T("imu", "frame")

	// Board snapshots read straight from shared memory.
	TopicBoardIMU   = bus.T("board", "imu")
	TopicBoardTouch = bus.T("board", "touch")
)

// IMUSnapshot is a read of the IMU blackboard.
type IMUSnapshot struct {
	blackboard.IMURecord
	Status blackboard.Status
	Seq    uint32
	Errors uint32
}

// TouchSnapshot is a read of the capsense blackboard.
type TouchSnapshot struct {
	blackboard.CapsenseRecord
	Status blackboard.Status
	Seq    uint32
	Errors uint32
}

// ACore is the application core. Everything it learns is republished on
// its bus; the router's application handler fans peer messages out to the
// services.
type ACore struct {
	Bus       *bus.Bus
	Router    *router.Router
	View      *wifiview.View
	Clock     *clock.Clock
	Heartbeat *heartbeat.Service
	Config    *config.ConfigService

	ep         *mailbox.Endpoint
	conn       *bus.Connection
	imuBoard   *blackboard.IMUReader
	touchBoard *blackboard.CapsenseReader
	watchEvery time.Duration
}

func NewACore(b *Board, cfg config.Config, sink console.Sink) (*ACore, error) {
	imuBoard, err := blackboard.NewIMUReader(b.Arena)
	if err != nil {
		return nil, err
	}
	touchBoard, err := blackboard.NewCapsenseReader(b.Arena)
	if err != nil {
		return nil, err
	}

	bs := bus.NewBus(16)
	r := router.New(b.A, routerConfig(router.ACore, cfg), router.WithConsole(sink))
	a := &ACore{
		Bus:        bs,
		Router:     r,
		View:       wifiview.New(r, bs.NewConnection("wifiview")),
		Clock:      clock.New(nil, clock.Config{Offset: cfg.Clock.Offset, Interval: cfg.Clock.Interval}),
		Heartbeat:  heartbeat.New(r, cfg.Heartbeat),
		Config:     config.NewConfigService(cfg),
		ep:         b.A,
		conn:       bs.NewConnection("acore"),
		imuBoard:   imuBoard,
		touchBoard: touchBoard,
		watchEvery: cfg.IMU.Period,
	}
	r.Register(a.handle, nil)
	return a, nil
}

// Run starts the endpoint and the core's tasks and blocks until ctx ends or
// a task fails.
func (a *ACore) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if err := a.Router.Init(); err != nil {
		return err
	}
	a.ep.Start(ctx)
	a.Config.Start(ctx, a.Bus.NewConnection("config"))
	if err := a.Heartbeat.Start(ctx, a.Bus.NewConnection("heartbeat")); err != nil {
		return err
	}
	g.Go(func() error { return a.Router.Run(ctx) })
	g.Go(func() error { return a.View.Run(ctx) })
	g.Go(func() error { return a.Clock.Run(ctx, a.display) })
	g.Go(func() error { return a.watchBoards(ctx) })
	return g.Wait()
}

// RequestTouch asks the P-core for the current touch state.
func (a *ACore) RequestTouch() error { return a.Router.SendCmd(ipc.CmdCapsenseReq, 0) }

func (a *ACore) handle(m *ipc.Message, _ any) {
	switch {
	case a.Heartbeat.Handle(*m), a.View.Handle(*m):
	case a.Clock.Handle(*m):
		if s, ok := a.Clock.Render(); ok {
			a.display(s)
		}
	default:
		a.sensor(*m)
	}
}

func (a *ACore) sensor(m ipc.Message) {
	switch m.Cmd {
	case ipc.CmdCapsenseData:
		var d ipc.CapsenseData
		if err := d.UnmarshalBinary(m.Data[:]); err == nil {
			a.conn.Publish(a.conn.NewMessage(TopicTouch, d, true))
		}
	case ipc.CmdButtonEvent:
		var d ipc.ButtonData
		if err := d.UnmarshalBinary(m.Data[:]); err == nil {
			a.conn.Publish(a.conn.NewMessage(TopicButton, d, false))
		}
	case ipc.CmdIMUData:
		var d ipc.IMUData
		if err := d.UnmarshalBinary(m.Data[:]); err == nil {
			a.conn.Publish(a.conn.NewMessage(TopicIMU, d, true))
		}
	}
}

func (a *ACore) display(s string) {
	a.conn.Publish(a.conn.NewMessage(TopicDisplay, s, true))
}

// watchBoards polls both blackboards at the sampling period and republishes
// every new snapshot. The readers are owned by this goroutine.
func (a *ACore) watchBoards(ctx context.Context) error {
	every := a.watchEvery
	if every <= 0 {
		every = 100 * time.Millisecond
	}
	t := time.NewTicker(every)
	defer t.Stop()
	var imuSeq, touchSeq uint32
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		if rec, st := a.imuBoard.Read(); st == blackboard.Fresh {
			if seq := a.imuBoard.Seq(); seq != imuSeq {
				imuSeq = seq
				a.conn.Publish(a.conn.NewMessage(TopicBoardIMU, IMUSnapshot{IMURecord: rec, Status: st, Seq: seq, Errors: a.imuBoard.Errors()}, true))
			}
		}
		if rec, st := a.touchBoard.Read(); st == blackboard.Fresh {
			if seq := a.touchBoard.Seq(); seq != touchSeq {
				touchSeq = seq
				a.conn.Publish(a.conn.NewMessage(TopicBoardTouch, TouchSnapshot{CapsenseRecord: rec, Status: st, Seq: seq, Errors: a.touchBoard.Errors()}, true))
			}
		}
		if glog.V(3) {
			glog.Infof("acore: boards imu=%d touch=%d", imuSeq, touchSeq)
		}
	}
}
