package sampler

import (
	"errors"
	"time"

	"github.com/ericogr/ads1115-sampler/pkg/sensor"
)

// manualClock only moves when something sleeps or advances it.
type manualClock struct {
	now    time.Duration
	sleeps []time.Duration
}

func (c *manualClock) Now() time.Duration { return c.now }

func (c *manualClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.now += d
}

func (c *manualClock) advance(d time.Duration) { c.now += d }

// call is one converter operation as seen by scriptedConverter.
type call struct {
	op string
	ch sensor.Channel
	at time.Duration
}

// scriptedConverter returns codes from a table keyed by input and fails reads
// as many times as configured per input.
type scriptedConverter struct {
	clock       *manualClock
	codes       map[sensor.Channel]sensor.RawCode
	readFails   map[sensor.Channel]int
	selectFails map[sensor.Channel]bool
	readLatency time.Duration
	configErr   error
	gain        sensor.Gain

	selected sensor.Channel
	calls    []call
}

func newScripted(clock *manualClock) *scriptedConverter {
	return &scriptedConverter{
		clock:       clock,
		codes:       map[sensor.Channel]sensor.RawCode{},
		readFails:   map[sensor.Channel]int{},
		selectFails: map[sensor.Channel]bool{},
		selected:    -1,
	}
}

func (c *scriptedConverter) record(op string, ch sensor.Channel) {
	c.calls = append(c.calls, call{op: op, ch: ch, at: c.clock.Now()})
}

func (c *scriptedConverter) Configure(gain sensor.Gain, rate sensor.DataRate) error {
	c.record("configure", -1)
	if c.configErr != nil {
		return c.configErr
	}
	c.gain = gain
	return nil
}

func (c *scriptedConverter) SelectChannel(ch sensor.Channel) error {
	c.record("select", ch)
	if c.selectFails[ch] {
		return errors.New("bus nack")
	}
	c.selected = ch
	return nil
}

func (c *scriptedConverter) Read() (sensor.RawCode, error) {
	c.record("read", c.selected)
	c.clock.advance(c.readLatency)
	if c.readFails[c.selected] > 0 {
		c.readFails[c.selected]--
		return 0, sensor.ErrNotReady
	}
	return c.codes[c.selected], nil
}

func (c *scriptedConverter) RawToPhysical(raw sensor.RawCode) float64 {
	return sensor.RawToVolts(raw, c.gain)
}

func (c *scriptedConverter) Close() error { return nil }

func (c *scriptedConverter) count(op string) int {
	n := 0
	for _, cl := range c.calls {
		if cl.op == op {
			n++
		}
	}
	return n
}

func fourChannels() []Channel {
	names := []string{"vref", "a301", "a401", "vs"}
	out := make([]Channel, len(names))
	for i, n := range names {
		out[i] = Channel{Index: i, Input: sensor.Channel(i), Name: n, Scale: 1}
	}
	return out
}

// frameRecorder is a sink that keeps frames and can stop the loop after a
// number of them.
type frameRecorder struct {
	frames []Frame
	stopAt int
	cancel func()
	err    func(Frame) error
	clock  *manualClock
	cost   time.Duration
}

func (r *frameRecorder) Publish(f Frame) error {
	r.frames = append(r.frames, f)
	if r.clock != nil {
		r.clock.advance(r.cost)
	}
	if r.stopAt > 0 && len(r.frames) >= r.stopAt && r.cancel != nil {
		r.cancel()
	}
	if r.err != nil {
		return r.err(f)
	}
	return nil
}
