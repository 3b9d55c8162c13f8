package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device name passed to ForDevice.
// Val: YAML overlaid on Default().
// -----------------------------------------------------------------------------

const cfgSim = `
imu:
  sensor: bmi270
  period: 100ms
wifi:
  result_spacing: 2ms
heartbeat:
  interval: 500ms
`

const cfgPSE84 = `
imu:
  sensor: bmi270
  period: 100ms
wifi:
  queue_len: 8
  scan_timeout: 10s
ntp:
  server: 216.239.35.0
  resync_interval: 30m
clock:
  offset: 7h
`

const cfgWingFC = `
imu:
  sensor: lsm6ds3tr
  period: 10ms
heartbeat:
  interval: 1s
`

var embeddedConfigs = map[string][]byte{
	"sim":    []byte(cfgSim),
	"pse84":  []byte(cfgPSE84),
	"wingfc": []byte(cfgWingFC),
}

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}
