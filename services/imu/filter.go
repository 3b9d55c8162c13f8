package imu

import "dualcore-go/x/mathx"

// Filter enforces the plausibility law on accelerometer triples: every
// accepted axis is within ±MaxAbs, and after the first accepted sample no
// axis moves by more than MaxDelta between accepted samples.
type Filter struct {
	MaxAbs   float32
	MaxDelta float32

	last Sample
	have bool
}

// Apply returns the sample to publish and whether s was accepted. On
// rejection the previous accepted sample is returned; valid is false only
// when nothing has been accepted yet.
func (f *Filter) Apply(s Sample) (out Sample, accepted, valid bool) {
	for _, v := range s.Accel {
		if !mathx.Within(v, f.MaxAbs) {
			return f.last, false, f.have
		}
	}
	if f.have {
		for i, v := range s.Accel {
			if !mathx.Near(v, f.last.Accel[i], f.MaxDelta) {
				return f.last, false, true
			}
		}
	}
	f.last, f.have = s, true
	return s, true, true
}

// Last returns the most recent accepted sample.
func (f *Filter) Last() (Sample, bool) { return f.last, f.have }

func (f *Filter) Reset() { f.last, f.have = Sample{}, false }
