package sampler

import (
	"time"

	"github.com/ericogr/ads1115-sampler/pkg/sensor"
)

// Entry is the reading of one channel in a round. Missing entries keep their
// slot; Raw and Value are meaningless for them.
type Entry struct {
	Channel Channel
	Raw     sensor.RawCode
	Value   float64
	Missing bool
	Err     error
}

// Frame is the product of one round: one entry per configured channel, in
// configured order. A frame is never modified after it is emitted.
type Frame struct {
	Seq       uint64
	Stamp     time.Duration
	Reference TimestampReference
	// Duration is the time spent sampling the round, before emission.
	Duration time.Duration
	Entries  []Entry
}

// Missing counts the entries without a reading.
func (f Frame) Missing() int {
	n := 0
	for _, e := range f.Entries {
		if e.Missing {
			n++
		}
	}
	return n
}

// assemble turns the raw entries of a round into physical values, applying
// the per-channel calibration.
func assemble(conv sensor.Converter, entries []Entry) {
	for i := range entries {
		e := &entries[i]
		if e.Missing {
			continue
		}
		e.Value = conv.RawToPhysical(e.Raw)*e.Channel.Scale + e.Channel.Offset
	}
}
