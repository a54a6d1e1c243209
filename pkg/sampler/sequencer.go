package sampler

import (
	"fmt"
	"log"
	"time"

	"github.com/ericogr/ads1115-sampler/pkg/sensor"
)

// Sequencer owns the converter configuration and samples the channels of a
// round one after another on the shared conversion pipeline.
type Sequencer struct {
	conv       sensor.Converter
	clock      Clock
	channels   []Channel
	convWait   time.Duration
	gain       sensor.Gain
	rate       sensor.DataRate
	configured bool
}

func NewSequencer(conv sensor.Converter, clock Clock, channels []Channel, convWait time.Duration, gain sensor.Gain, rate sensor.DataRate) *Sequencer {
	return &Sequencer{
		conv:     conv,
		clock:    clock,
		channels: append([]Channel(nil), channels...),
		convWait: convWait,
		gain:     gain,
		rate:     rate,
	}
}

// RunRound samples every channel once, in order, and returns one entry per
// channel with raw codes only. A channel that cannot be read is marked
// missing and the round goes on; only a failure to configure the converter
// aborts the round.
func (s *Sequencer) RunRound() ([]Entry, error) {
	if !s.configured {
		if err := s.conv.Configure(s.gain, s.rate); err != nil {
			return nil, fmt.Errorf("configure converter: %w", err)
		}
		s.configured = true
	}
	out := make([]Entry, len(s.channels))
	for i, ch := range s.channels {
		out[i] = s.sample(ch)
	}
	return out, nil
}

func (s *Sequencer) sample(ch Channel) Entry {
	selectedAt := s.clock.Now()
	selErr := s.conv.SelectChannel(ch.Input)
	// keep the wait even when the select failed so that channel skew
	// within the round stays constant
	s.waitSince(selectedAt)
	if selErr != nil {
		return s.missing(ch, fmt.Errorf("select: %w", selErr))
	}
	raw, err := s.conv.Read()
	if err != nil {
		raw, err = s.conv.Read()
	}
	if err != nil {
		return s.missing(ch, fmt.Errorf("read: %w", err))
	}
	return Entry{Channel: ch, Raw: raw}
}

func (s *Sequencer) missing(ch Channel, err error) Entry {
	f := &ChannelFailure{Channel: ch, Err: err}
	log.Printf("sampler: %v", f)
	return Entry{Channel: ch, Missing: true, Err: f}
}

// waitSince suspends until convWait has passed since t.
func (s *Sequencer) waitSince(t time.Duration) {
	if d := s.convWait - (s.clock.Now() - t); d > 0 {
		s.clock.Sleep(d)
	}
}
