package sampler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ericogr/ads1115-sampler/pkg/sensor"
)

// Sink takes the frames produced by the scheduler.
type Sink interface {
	Publish(Frame) error
}

// Options configures a Scheduler.
type Options struct {
	Budget    Budget
	Gain      sensor.Gain
	Rate      sensor.DataRate
	Reference TimestampReference

	// OnEmitError is asked whether to keep running after the sink rejected a
	// frame. When nil, Run stops and returns the error.
	OnEmitError func(*EmissionError) bool
	// OnCadenceMiss observes every round that overran its period.
	OnCadenceMiss func(CadenceMiss)
	// SlowEmit logs a warning when a single Publish takes longer. Zero
	// disables the warning.
	SlowEmit time.Duration
}

// Stats counts what happened since the scheduler was created.
type Stats struct {
	Rounds           uint64
	CadenceMisses    uint64
	ChannelFailures  uint64
	EmissionFailures uint64
	LastRound        time.Duration
}

// Scheduler runs rounds back to back at a fixed period. Rounds are strictly
// sequential: a round is sampled, emitted and idled out before the next one
// starts.
type Scheduler struct {
	seq      *Sequencer
	conv     sensor.Converter
	clock    Clock
	opts     Options
	degraded bool
	next     uint64

	mu    sync.Mutex
	stats Stats
}

// New validates the channel list and budget and returns a scheduler. A
// budget that cannot fit all channels in one period is accepted but makes
// every round a cadence miss; Degraded reports it.
func New(conv sensor.Converter, clock Clock, channels []Channel, opts Options) (*Scheduler, error) {
	if err := validate(channels, opts.Budget); err != nil {
		return nil, err
	}
	s := &Scheduler{
		seq:   NewSequencer(conv, clock, channels, opts.Budget.ConvWait, opts.Gain, opts.Rate),
		conv:  conv,
		clock: clock,
		opts:  opts,
	}
	if !opts.Budget.Sustainable(len(channels)) {
		s.degraded = true
		log.Printf("sampler: period %v is shorter than %d x conv wait %v, running without idle time",
			opts.Budget.Period, len(channels), opts.Budget.ConvWait)
	}
	return s, nil
}

// Degraded reports whether the budget cannot hold the configured cadence.
func (s *Scheduler) Degraded() bool { return s.degraded }

// Stats returns a snapshot of the counters. It is safe to call while Run is
// executing.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Run samples rounds until ctx is done. ctx is only checked at round
// boundaries, after the idle time of the previous round, so a round is never
// cut short. Run returns nil when stopped through ctx, the error of a failed
// converter configuration, or an *EmissionError the OnEmitError policy
// declined to absorb.
func (s *Scheduler) Run(ctx context.Context, sink Sink) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		roundStart := s.clock.Now()
		frame, err := s.round(roundStart)
		if err != nil {
			return err
		}
		if err := s.emit(sink, frame); err != nil {
			if s.opts.OnEmitError == nil || !s.opts.OnEmitError(err) {
				return err
			}
		}
		s.idle(roundStart, frame.Seq)
	}
}

func (s *Scheduler) round(roundStart time.Duration) (Frame, error) {
	entries, err := s.seq.RunRound()
	if err != nil {
		return Frame{}, err
	}
	assemble(s.conv, entries)
	now := s.clock.Now()
	f := Frame{
		Seq:       s.next,
		Reference: s.opts.Reference,
		Duration:  now - roundStart,
		Entries:   entries,
	}
	s.next++
	switch s.opts.Reference {
	case ProcessStart:
		f.Stamp = now
	default:
		f.Stamp = now - roundStart
	}

	s.mu.Lock()
	s.stats.Rounds++
	s.stats.ChannelFailures += uint64(f.Missing())
	s.stats.LastRound = f.Duration
	s.mu.Unlock()
	return f, nil
}

func (s *Scheduler) emit(sink Sink, f Frame) *EmissionError {
	start := s.clock.Now()
	err := sink.Publish(f)
	if took := s.clock.Now() - start; s.opts.SlowEmit > 0 && took > s.opts.SlowEmit {
		log.Printf("sampler: publishing frame %d took %v (limit %v)", f.Seq, took, s.opts.SlowEmit)
	}
	if err == nil {
		return nil
	}
	s.mu.Lock()
	s.stats.EmissionFailures++
	s.mu.Unlock()
	e := &EmissionError{Seq: f.Seq, Err: err}
	log.Printf("sampler: %v", e)
	return e
}

// idle sleeps out what is left of the period that began at roundStart.
func (s *Scheduler) idle(roundStart time.Duration, seq uint64) {
	elapsed := s.clock.Now() - roundStart
	remaining := s.opts.Budget.Period - elapsed
	if remaining > 0 {
		s.clock.Sleep(remaining)
		return
	}
	miss := CadenceMiss{Seq: seq, Elapsed: elapsed, Period: s.opts.Budget.Period}
	s.mu.Lock()
	s.stats.CadenceMisses++
	s.mu.Unlock()
	// a degraded budget was announced once in New; every round misses
	if !s.degraded {
		log.Printf("sampler: cadence miss: %v", miss)
	}
	if s.opts.OnCadenceMiss != nil {
		s.opts.OnCadenceMiss(miss)
	}
}
