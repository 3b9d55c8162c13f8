package commands

import (
	"context"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"dualcore-go/bus"
	"dualcore-go/console"
	"dualcore-go/drivers/bmi270"
	capsensedrv "dualcore-go/drivers/capsense"
	"dualcore-go/errcode"
	"dualcore-go/firmware"
	"dualcore-go/services/config"
	"dualcore-go/services/wifi/wcm"
	"dualcore-go/sim"
)

// defaultAPs is what the simulated radio sees unless --ap is given.
var defaultAPs = []sim.AP{
	{SSID: "workshop", Password: "solder123", Security: wcm.SecurityWPA2AESPSK, RSSI: -48, Channel: 6},
	{SSID: "guest", Security: wcm.SecurityOpen, RSSI: -67, Channel: 11},
	{SSID: "lab-5g", Password: "fastlane", Security: wcm.SecurityWPA3SAE, RSSI: -72, Channel: 36},
}

// parseAP reads "ssid[:password]"; a password selects WPA2.
func parseAP(s string, rssi int16) (sim.AP, error) {
	ssid, pass, _ := strings.Cut(s, ":")
	if ssid == "" {
		return sim.AP{}, &errcode.E{C: errcode.InvalidPayload, Op: "cli.ap", Msg: "empty ssid in " + s}
	}
	ap := sim.AP{SSID: ssid, Password: pass, RSSI: rssi, Channel: 1}
	if pass != "" {
		ap.Security = wcm.SecurityWPA2AESPSK
	}
	return ap, nil
}

func loadConfig() (config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.ForDevice(device)
}

// session is a running simulated system.
type session struct {
	sys   *firmware.System
	imu   *sim.BMI270
	touch *sim.Touch
	radio *sim.WifiStack
	conn  *bus.Connection
	done  chan error
}

func start(ctx context.Context, cmd *cobra.Command, aps []string) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	list := defaultAPs
	if len(aps) > 0 {
		list = nil
		for i, s := range aps {
			ap, err := parseAP(s, int16(-40-8*i))
			if err != nil {
				return nil, err
			}
			list = append(list, ap)
		}
	}

	i2c := sim.NewI2CBus()
	chip := sim.NewBMI270()
	chip.SetRaw([3]int16{0, 0, 16384}, [3]int16{})
	touch := sim.NewTouch()
	i2c.Attach(bmi270.Address, chip)
	i2c.Attach(capsensedrv.Address, touch)
	radio := sim.NewWifiStack(list...)

	sys, err := firmware.New(firmware.Hardware{
		I2C:     i2c,
		Wifi:    radio,
		Console: console.New(cmd.OutOrStdout()),
	}, cfg)
	if err != nil {
		return nil, err
	}
	s := &session{
		sys:   sys,
		imu:   chip,
		touch: touch,
		radio: radio,
		conn:  sys.A.Bus.NewConnection("cli"),
		done:  make(chan error, 1),
	}
	go func() { s.done <- sys.Run(ctx) }()
	glog.V(1).Infof("cli: system started with %d access points", len(list))
	return s, nil
}

// command sends wifi/cmd/<verb> and waits for the A-core to accept it.
// The first attempts may race the view's subscription, so it retries.
func (s *session) command(ctx context.Context, verb string, payload any) error {
	var err error
	for i := 0; i < 20; i++ {
		rctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		var reply *bus.Message
		reply, err = s.conn.RequestWait(rctx, s.conn.NewMessage(bus.T("wifi", "cmd", verb), payload, false))
		cancel()
		if err == nil {
			if e, ok := reply.Payload.(error); ok {
				return e
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

// await returns the first payload on topic accepted by match.
func (s *session) await(ctx context.Context, topic bus.Topic, match func(any) bool) (any, error) {
	sub := s.conn.Subscribe(topic)
	defer s.conn.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return nil, errcode.Wrap(errcode.Timeout, "cli.await "+topic.String(), ctx.Err())
		case m, ok := <-sub.Channel():
			if !ok {
				return nil, errcode.NotReady
			}
			if match(m.Payload) {
				return m.Payload, nil
			}
		}
	}
}
