package sampler

import (
	"fmt"
	"time"

	"github.com/ericogr/ads1115-sampler/pkg/sensor"
)

// Channel is one logical input of a round. Index is its ordinal in the
// configured order and Input the multiplexer selection it maps to.
type Channel struct {
	Index  int
	Input  sensor.Channel
	Name   string
	Scale  float64
	Offset float64
}

// Budget holds the timing of a round.
type Budget struct {
	// ConvWait is the minimum time between selecting a channel and trusting
	// its reading.
	ConvWait time.Duration
	// Period is the target spacing between the starts of consecutive rounds.
	Period time.Duration
}

// Sustainable reports whether n channels fit in one period.
func (b Budget) Sustainable(n int) bool {
	return b.Period >= time.Duration(n)*b.ConvWait
}

// TimestampReference selects the origin of Frame.Stamp.
type TimestampReference int

const (
	// RoundStart stamps a frame with the time elapsed since its round started.
	RoundStart TimestampReference = iota
	// ProcessStart stamps a frame with the time elapsed since the clock origin.
	ProcessStart
)

func (r TimestampReference) String() string {
	switch r {
	case RoundStart:
		return "round"
	case ProcessStart:
		return "process"
	}
	return fmt.Sprintf("TimestampReference(%d)", int(r))
}

// ParseTimestampReference accepts "round" or "process".
func ParseTimestampReference(s string) (TimestampReference, error) {
	switch s {
	case "round", "":
		return RoundStart, nil
	case "process":
		return ProcessStart, nil
	}
	return 0, &ConfigError{Field: "timestamp_reference", Reason: fmt.Sprintf("unknown value %q (want round or process)", s)}
}

func validate(channels []Channel, budget Budget) error {
	if len(channels) == 0 {
		return &ConfigError{Field: "channels", Reason: "at least one channel is required"}
	}
	seen := make(map[sensor.Channel]bool, len(channels))
	for i, ch := range channels {
		if ch.Index != i {
			return &ConfigError{Field: "channels", Reason: fmt.Sprintf("channel at position %d has index %d", i, ch.Index)}
		}
		if seen[ch.Input] {
			return &ConfigError{Field: "channels", Reason: fmt.Sprintf("input %d listed twice", ch.Input)}
		}
		seen[ch.Input] = true
	}
	if budget.ConvWait < 0 {
		return &ConfigError{Field: "conv_wait", Reason: "must not be negative"}
	}
	if budget.Period <= 0 {
		return &ConfigError{Field: "period", Reason: "must be positive"}
	}
	if budget.Period < budget.ConvWait {
		return &ConfigError{Field: "period", Reason: fmt.Sprintf("%v is shorter than one conversion wait %v", budget.Period, budget.ConvWait)}
	}
	return nil
}
