package config

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"dualcore-go/bus"
	"dualcore-go/errcode"
)

func TestConfig_PublishRetainedPerSection(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("test-config")
	svc := NewConfigService(Default())
	svc.Start(context.Background(), conn)

	// Subscribe after publishing; retained messages should arrive immediately.
	sub := conn.Subscribe(bus.T(configPrefix, "#"))

	got := map[string]any{}
	deadline := time.Now().Add(600 * time.Millisecond)
	for len(got) < 6 && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			if m.Topic.Len() != 2 {
				t.Fatalf("unexpected topic: %v", m.Topic)
			}
			key, ok := m.Topic.At(1).(string)
			if !ok {
				t.Fatalf("topic[1] type %T, want string", m.Topic.At(1))
			}
			got[key] = m.Payload
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(got) != 6 {
		t.Fatalf("expected 6 retained sections, got %d (%v)", len(got), got)
	}
	hb, ok := got["heartbeat"].(Heartbeat)
	if !ok {
		t.Fatalf("heartbeat payload type = %T", got["heartbeat"])
	}
	if hb.Interval != 2*time.Second {
		t.Fatalf("heartbeat interval = %v", hb.Interval)
	}
	if n, ok := got["ntp"].(NTP); !ok || n.Server != "216.239.35.0" {
		t.Fatalf("ntp payload = %#v", got["ntp"])
	}
}

func TestConfig_LoadOverlaysDefaults(t *testing.T) {
	cfg, err := Load(strings.NewReader(`
imu:
  period: 50ms
ntp:
  server: pool.example
clock:
  offset: -5h
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IMU.Period != 50*time.Millisecond {
		t.Fatalf("imu.period = %v", cfg.IMU.Period)
	}
	if cfg.IMU.MaxAbs != 20 {
		t.Fatalf("imu.max_abs default lost: %v", cfg.IMU.MaxAbs)
	}
	if cfg.NTP.Server != "pool.example" || cfg.NTP.Port != 123 {
		t.Fatalf("ntp = %+v", cfg.NTP)
	}
	if cfg.Clock.Offset != -5*time.Hour {
		t.Fatalf("clock.offset = %v", cfg.Clock.Offset)
	}
}

func TestConfig_LoadEmpty(t *testing.T) {
	cfg, err := Load(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatal("empty document should yield defaults")
	}
}

func TestConfig_LoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(strings.NewReader("imu:\n  perod: 10ms\n"))
	if !errors.Is(err, errcode.InvalidPayload) {
		t.Fatalf("expected invalid_payload, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := map[string]func(*Config){
		"sensor":   func(c *Config) { c.IMU.Sensor = "mpu6050" },
		"capacity": func(c *Config) { c.Wifi.ScanCapacity = 17 },
		"port":     func(c *Config) { c.NTP.Port = 0 },
		"offset":   func(c *Config) { c.Clock.Offset = 15 * time.Hour },
		"retries":  func(c *Config) { c.Mailbox.RetryLimit = 0 },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestConfig_EmbeddedDevices(t *testing.T) {
	cfg, err := ForDevice("wingfc")
	if err != nil {
		t.Fatalf("ForDevice: %v", err)
	}
	if cfg.IMU.Sensor != "lsm6ds3tr" || cfg.IMU.Period != 10*time.Millisecond {
		t.Fatalf("imu = %+v", cfg.IMU)
	}
	if _, err := ForDevice("sim"); err != nil {
		t.Fatalf("sim profile: %v", err)
	}
}

func TestConfig_NoConfigFound(t *testing.T) {
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) ([]byte, bool) { return nil, false }
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	if _, err := ForDevice("unknown-device"); err == nil {
		t.Fatal("expected error for missing embedded config, got nil")
	}
}

func TestConfig_MarshalRoundTrip(t *testing.T) {
	raw, err := Default().Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	cfg, err := Load(strings.NewReader(string(raw)))
	if err != nil {
		t.Fatalf("Load: %v\n%s", err, raw)
	}
	if cfg != Default() {
		t.Fatalf("round trip changed config:\n%s", raw)
	}
}

func TestConfig_UpdateHeartbeat(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test-update")
	svc := NewConfigService(Default())
	sub := conn.Subscribe(Topic("heartbeat"))

	if err := svc.UpdateHeartbeat(conn, Heartbeat{Interval: 0, MissLimit: 3}); err == nil {
		t.Fatal("expected rejection of zero interval")
	}
	if err := svc.UpdateHeartbeat(conn, Heartbeat{Interval: time.Second, MissLimit: 5}); err != nil {
		t.Fatalf("UpdateHeartbeat: %v", err)
	}
	select {
	case m := <-sub.Channel():
		if hb := m.Payload.(Heartbeat); hb.MissLimit != 5 {
			t.Fatalf("published %+v", hb)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no heartbeat update published")
	}
}
