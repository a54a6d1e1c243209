package sensor

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"
)

// ErrNotReady is returned by Read when the converter has not finished the
// conversion started by SelectChannel. Callers treat it as transient.
var ErrNotReady = errors.New("conversion not ready")

// Channel selects one physical input of the converter multiplexer.
type Channel int

// RawCode is the signed output code of one conversion.
type RawCode int16

// Gain is the programmable amplifier setting, expressed by its full-scale range.
type Gain physic.ElectricPotential

const (
	Gain6V144 = Gain(6144 * physic.MilliVolt)
	Gain4V096 = Gain(4096 * physic.MilliVolt)
	Gain2V048 = Gain(2048 * physic.MilliVolt)
	Gain1V024 = Gain(1024 * physic.MilliVolt)
	Gain0V512 = Gain(512 * physic.MilliVolt)
	Gain0V256 = Gain(256 * physic.MilliVolt)
)

// FullScale returns the positive full-scale input voltage.
func (g Gain) FullScale() physic.ElectricPotential { return physic.ElectricPotential(g) }

func (g Gain) String() string { return "±" + physic.ElectricPotential(g).String() }

// GainFromVolts maps a full-scale range in volts (e.g. 4.096) to a Gain.
func GainFromVolts(v float64) (Gain, error) {
	for _, g := range []Gain{Gain6V144, Gain4V096, Gain2V048, Gain1V024, Gain0V512, Gain0V256} {
		if int64(v*1000+0.5) == int64(physic.ElectricPotential(g)/physic.MilliVolt) {
			return g, nil
		}
	}
	return 0, fmt.Errorf("unsupported full-scale range %gV", v)
}

// DataRate is the conversion rate of the converter.
type DataRate physic.Frequency

// SPS returns a DataRate of n samples per second.
func SPS(n int) DataRate { return DataRate(physic.Frequency(n) * physic.Hertz) }

// ConversionTime is the duration of a single conversion at this rate.
func (r DataRate) ConversionTime() time.Duration { return physic.Frequency(r).Period() }

func (r DataRate) String() string { return physic.Frequency(r).String() }

// Converter is one analog-to-digital conversion pipeline shared by several
// multiplexed inputs. Implementations are not safe for concurrent use.
type Converter interface {
	Configure(gain Gain, rate DataRate) error
	SelectChannel(ch Channel) error
	Read() (RawCode, error)
	RawToPhysical(raw RawCode) float64
	Close() error
}

// codeRange is the number of positive codes of a 16-bit signed result.
const codeRange = 32768.0

// RawToVolts converts a raw code to volts for the given gain.
func RawToVolts(raw RawCode, gain Gain) float64 {
	fs := float64(gain.FullScale()) / float64(physic.Volt)
	return float64(raw) * (fs / codeRange)
}
