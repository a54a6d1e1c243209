package sampler

import (
	"fmt"
	"time"
)

// ChannelFailure reports a channel whose reading could not be taken in a
// round, even after the immediate retry. The round still completes.
type ChannelFailure struct {
	Channel Channel
	Err     error
}

func (e *ChannelFailure) Error() string {
	return fmt.Sprintf("channel %d (%s): %v", e.Channel.Index, e.Channel.Name, e.Err)
}

func (e *ChannelFailure) Unwrap() error { return e.Err }

// EmissionError reports that the sink failed to take a frame.
type EmissionError struct {
	Seq uint64
	Err error
}

func (e *EmissionError) Error() string { return fmt.Sprintf("emit frame %d: %v", e.Seq, e.Err) }

func (e *EmissionError) Unwrap() error { return e.Err }

// ConfigError rejects a channel list or timing budget before the loop starts.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason) }

// CadenceMiss describes a round that used up the whole period, so the next
// round starts without idling.
type CadenceMiss struct {
	Seq     uint64
	Elapsed time.Duration
	Period  time.Duration
}

func (m CadenceMiss) String() string {
	return fmt.Sprintf("round %d took %v, period %v (over by %v)", m.Seq, m.Elapsed, m.Period, m.Elapsed-m.Period)
}
