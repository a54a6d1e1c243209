package sensor

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// FakeSensor simulates a four input converter. Each input produces a slow
// sine around a per-channel level plus a little noise, so plots of
// simulated runs look like real signals.
type FakeSensor struct {
	mu       sync.Mutex
	gain     Gain
	set      bool
	selected Channel
	start    time.Time
	rnd      *rand.Rand
}

func NewFakeSensor() *FakeSensor {
	return &FakeSensor{gain: Gain4V096, selected: -1, start: time.Now(), rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (f *FakeSensor) Configure(gain Gain, rate DataRate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := pgaBits(gain); !ok {
		return fmt.Errorf("invalid gain %s", gain)
	}
	if _, ok := rateBits(rate); !ok {
		return fmt.Errorf("invalid data rate %s", rate)
	}
	f.gain, f.set = gain, true
	return nil
}

func (f *FakeSensor) SelectChannel(ch Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.set {
		return fmt.Errorf("select channel %d: converter not configured", ch)
	}
	if ch < 0 || ch > 3 {
		return fmt.Errorf("invalid channel %d", ch)
	}
	f.selected = ch
	return nil
}

func (f *FakeSensor) Read() (RawCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selected < 0 {
		return 0, ErrNotReady
	}
	level := 0.2 + 0.2*float64(f.selected)
	phase := time.Since(f.start).Seconds() * (0.5 + 0.25*float64(f.selected))
	frac := level + 0.05*math.Sin(2*math.Pi*phase) + 0.002*f.rnd.NormFloat64()
	frac = math.Max(-1, math.Min(frac, float64(math.MaxInt16)/codeRange))
	return RawCode(frac * codeRange), nil
}

func (f *FakeSensor) RawToPhysical(raw RawCode) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return RawToVolts(raw, f.gain)
}

func (f *FakeSensor) Close() error { return nil }
