package errcode

// Code is a stable, wire-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK             Code = "ok"
	Busy           Code = "busy"
	NotReady       Code = "not_ready"
	GaveUp         Code = "gave_up"
	QueueFull      Code = "queue_full"
	ScanInProgress Code = "scan_in_progress"

	Timeout Code = "timeout"

	InvalidCommand Code = "invalid_command"
	InvalidPayload Code = "invalid_payload"
	UnknownCommand Code = "unknown_command"
	BadMagic       Code = "bad_magic"

	SensorRead  Code = "sensor_read"
	BusNAK      Code = "bus_nak"
	DriverInit  Code = "driver_init"
	Unsupported Code = "unsupported"

	SchedulerStart Code = "scheduler_start"

	Error Code = "error" // generic fallback
)

// Kind groups codes by how callers recover from them.
type Kind uint8

const (
	KindTransient Kind = iota // retried locally with bounded back-off
	KindTimeout               // surfaced as a typed reply
	KindProtocol              // logged, counted, message dropped
	KindHardware              // recorded on a blackboard or replied as DRIVER
	KindFatal                 // firmware halts
	NumKinds
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindTimeout:
		return "timeout"
	case KindProtocol:
		return "protocol"
	case KindHardware:
		return "hardware"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Kind classifies a code.
func (c Code) Kind() Kind {
	switch c {
	case OK, Busy, NotReady, GaveUp, QueueFull, ScanInProgress:
		return KindTransient
	case Timeout:
		return KindTimeout
	case InvalidCommand, InvalidPayload, UnknownCommand, BadMagic:
		return KindProtocol
	case SensorRead, BusNAK, DriverInit, Unsupported:
		return KindHardware
	case SchedulerStart:
		return KindFatal
	default:
		return KindHardware
	}
}

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, errcode.Busy) match a wrapped code.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Wrap builds an *E for op with an optional cause.
func Wrap(c Code, op string, cause error) *E {
	return &E{C: c, Op: op, Err: cause}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}

// KindOf classifies any error; nil is reported as transient.
func KindOf(err error) Kind { return Of(err).Kind() }
