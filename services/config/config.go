package config

import (
	"bytes"
	"context"
	"io"
	"os"
	"time"

	"github.com/golang/glog"
	"gopkg.in/yaml.v3"

	"dualcore-go/bus"
	"dualcore-go/errcode"
)

const (
	serviceName  = "config"
	configPrefix = "config"
)

// -----------------------------------------------------------------------------
// Schema
// -----------------------------------------------------------------------------

type Config struct {
	IMU       IMU       `yaml:"imu"`
	Wifi      Wifi      `yaml:"wifi"`
	NTP       NTP       `yaml:"ntp"`
	Clock     Clock     `yaml:"clock"`
	Mailbox   Mailbox   `yaml:"mailbox"`
	Heartbeat Heartbeat `yaml:"heartbeat"`
}

type IMU struct {
	Sensor       string        `yaml:"sensor"` // bmi270 or lsm6ds3tr
	Period       time.Duration `yaml:"period"`
	AccelRangeG  float32       `yaml:"accel_range_g"`
	GyroRangeDPS float32       `yaml:"gyro_range_dps"`
	MaxAbs       float32       `yaml:"max_abs"`
	MaxDelta     float32       `yaml:"max_delta"`
	ForwardEvery int           `yaml:"forward_every"`
}

type Wifi struct {
	QueueLen      int           `yaml:"queue_len"`
	ScanCapacity  int           `yaml:"scan_capacity"`
	ScanTimeout   time.Duration `yaml:"scan_timeout"`
	ResultSpacing time.Duration `yaml:"result_spacing"`
}

type NTP struct {
	Server         string        `yaml:"server"`
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	ResyncInterval time.Duration `yaml:"resync_interval"`
	EpochFloor     uint32        `yaml:"epoch_floor"`
}

type Clock struct {
	Offset   time.Duration `yaml:"offset"`
	Interval time.Duration `yaml:"interval"`
}

type Mailbox struct {
	RetryLimit int           `yaml:"retry_limit"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type Heartbeat struct {
	Interval  time.Duration `yaml:"interval"`
	MissLimit int           `yaml:"miss_limit"`
}

func Default() Config {
	return Config{
		IMU: IMU{
			Sensor:       "bmi270",
			Period:       100 * time.Millisecond,
			AccelRangeG:  2,
			GyroRangeDPS: 2000,
			MaxAbs:       20,
			MaxDelta:     15,
		},
		Wifi: Wifi{
			QueueLen:      8,
			ScanCapacity:  16,
			ScanTimeout:   10 * time.Second,
			ResultSpacing: 20 * time.Millisecond,
		},
		NTP: NTP{
			Server:         "216.239.35.0",
			Port:           123,
			Timeout:        5 * time.Second,
			ResyncInterval: 30 * time.Minute,
			EpochFloor:     1577836800,
		},
		Clock: Clock{
			Offset:   7 * time.Hour,
			Interval: 60 * time.Second,
		},
		Mailbox: Mailbox{
			RetryLimit: 10,
			RetryDelay: time.Millisecond,
		},
		Heartbeat: Heartbeat{
			Interval:  2 * time.Second,
			MissLimit: 3,
		},
	}
}

func invalid(msg string) error {
	return &errcode.E{C: errcode.InvalidPayload, Op: "config.validate", Msg: msg}
}

// Validate checks ranges the services cannot repair themselves.
func (c Config) Validate() error {
	switch c.IMU.Sensor {
	case "bmi270", "lsm6ds3tr":
	default:
		return invalid("imu.sensor must be bmi270 or lsm6ds3tr")
	}
	if c.IMU.Period <= 0 {
		return invalid("imu.period must be positive")
	}
	if c.IMU.MaxAbs <= 0 || c.IMU.MaxDelta <= 0 {
		return invalid("imu plausibility limits must be positive")
	}
	if c.Wifi.QueueLen < 1 {
		return invalid("wifi.queue_len must be at least 1")
	}
	if c.Wifi.ScanCapacity < 1 || c.Wifi.ScanCapacity > 16 {
		return invalid("wifi.scan_capacity must be 1..16")
	}
	if c.Wifi.ScanTimeout <= 0 {
		return invalid("wifi.scan_timeout must be positive")
	}
	if c.NTP.Server == "" {
		return invalid("ntp.server is required")
	}
	if c.NTP.Port < 1 || c.NTP.Port > 65535 {
		return invalid("ntp.port out of range")
	}
	if c.NTP.Timeout <= 0 || c.NTP.ResyncInterval <= 0 {
		return invalid("ntp timeouts must be positive")
	}
	if c.Clock.Offset < -12*time.Hour || c.Clock.Offset > 14*time.Hour {
		return invalid("clock.offset must be within -12h..+14h")
	}
	if c.Mailbox.RetryLimit < 1 {
		return invalid("mailbox.retry_limit must be at least 1")
	}
	if c.Heartbeat.Interval <= 0 || c.Heartbeat.MissLimit < 1 {
		return invalid("heartbeat interval and miss_limit must be positive")
	}
	return nil
}

// Load overlays YAML from r onto the defaults. Unknown keys are rejected.
func Load(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, &errcode.E{C: errcode.InvalidPayload, Op: "config.load", Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return Load(f)
}

// ForDevice loads the embedded profile for device.
func ForDevice(device string) (Config, error) {
	raw, ok := EmbeddedConfigLookup(device)
	if !ok {
		return Config{}, &errcode.E{C: errcode.NotReady, Op: "config.device", Msg: "no embedded config for device: " + device}
	}
	return Load(bytes.NewReader(raw))
}

// Marshal renders cfg as YAML.
func (c Config) Marshal() ([]byte, error) { return yaml.Marshal(c) }

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

// ConfigService publishes each section as a retained message under
// config/<section> so late subscribers pick it up.
type ConfigService struct {
	Name string
	cfg  Config
}

func NewConfigService(cfg Config) *ConfigService {
	return &ConfigService{Name: serviceName, cfg: cfg}
}

func (s *ConfigService) Config() Config { return s.cfg }

// Topic returns the retained topic for a section.
func Topic(section string) bus.Topic { return bus.T(configPrefix, section) }

// Sections maps each section name to its value.
func (c Config) Sections() map[string]any {
	return map[string]any{
		"imu":       c.IMU,
		"wifi":      c.Wifi,
		"ntp":       c.NTP,
		"clock":     c.Clock,
		"mailbox":   c.Mailbox,
		"heartbeat": c.Heartbeat,
	}
}

func (s *ConfigService) publishConfig(conn *bus.Connection) int {
	sections := s.cfg.Sections()
	for name, v := range sections {
		conn.Publish(conn.NewMessage(Topic(name), v, true))
	}
	return len(sections)
}

// UpdateHeartbeat replaces the heartbeat section at runtime and republishes it.
func (s *ConfigService) UpdateHeartbeat(conn *bus.Connection, hb Heartbeat) error {
	next := s.cfg
	next.Heartbeat = hb
	if err := next.Validate(); err != nil {
		return err
	}
	s.cfg = next
	conn.Publish(conn.NewMessage(Topic("heartbeat"), hb, true))
	return nil
}

// Start publishes the configuration; retained delivery makes ordering with
// subscribers irrelevant.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	n := s.publishConfig(conn)
	glog.V(1).Infof("%s: published %d sections", s.Name, n)
}
