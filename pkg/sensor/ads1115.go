package sensor

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	pointerConv   = 0x00
	pointerConfig = 0x01

	// DefaultAddress is the ADS1115 address with ADDR tied to GND.
	DefaultAddress = 0x48

	configOS         uint16 = 0x8000 // write: start single conversion; read: 1 when idle
	configModeSingle uint16 = 0x0100
	configCompQueue  uint16 = 0x0003 // comparator disabled
)

// Data rates supported by the ADS1115, indexed by their DR bits.
var ads1115Rates = []int{8, 16, 32, 64, 128, 250, 475, 860}

// ValidRate reports whether sps is one of the ADS1115 data rates.
func ValidRate(sps int) bool {
	_, ok := rateBits(SPS(sps))
	return ok
}

// tx is the part of an I²C device the driver talks to.
type tx interface {
	Tx(w, r []byte) error
}

// ADS1115 drives a TI ADS1115 in single-shot mode. SelectChannel writes the
// config register, which starts a conversion on the selected input; Read
// fetches the result once the device reports it idle.
type ADS1115 struct {
	dev  tx
	bus  i2c.BusCloser
	gain Gain
	pga  uint16
	dr   uint16
	set  bool
}

// NewADS1115 opens the named I²C bus and binds the device at addr.
func NewADS1115(busName string, addr uint16) (*ADS1115, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	dev := &i2c.Dev{Addr: addr, Bus: bus}
	return &ADS1115{dev: dev, bus: bus}, nil
}

func (s *ADS1115) Close() error {
	if s.bus != nil {
		return s.bus.Close()
	}
	return nil
}

func (s *ADS1115) Configure(gain Gain, rate DataRate) error {
	pga, ok := pgaBits(gain)
	if !ok {
		return fmt.Errorf("invalid gain %s", gain)
	}
	dr, ok := rateBits(rate)
	if !ok {
		return fmt.Errorf("invalid data rate %s", rate)
	}
	s.gain, s.pga, s.dr, s.set = gain, pga, dr, true
	return nil
}

func (s *ADS1115) SelectChannel(ch Channel) error {
	if !s.set {
		return fmt.Errorf("select channel %d: converter not configured", ch)
	}
	msb, lsb, err := s.configWord(ch)
	if err != nil {
		return err
	}
	if err := s.dev.Tx([]byte{pointerConfig, msb, lsb}, nil); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (s *ADS1115) Read() (RawCode, error) {
	status := make([]byte, 2)
	if err := s.dev.Tx([]byte{pointerConfig}, status); err != nil {
		return 0, fmt.Errorf("read status: %w", err)
	}
	if uint16(status[0])<<8&configOS == 0 {
		return 0, ErrNotReady
	}
	readBuf := make([]byte, 2)
	if err := s.dev.Tx([]byte{pointerConv}, readBuf); err != nil {
		return 0, fmt.Errorf("read conv: %w", err)
	}
	return RawCode(int16(readBuf[0])<<8 | int16(readBuf[1])), nil
}

func (s *ADS1115) RawToPhysical(raw RawCode) float64 {
	return RawToVolts(raw, s.gain)
}

// configWord builds the config register for a single-ended conversion of ch
// with the active gain and data rate.
func (s *ADS1115) configWord(ch Channel) (byte, byte, error) {
	if ch < 0 || ch > 3 {
		return 0, 0, fmt.Errorf("invalid channel %d", ch)
	}
	// single-ended AINx vs GND: mux 100..111
	mux := uint16(0x4 + ch)
	config := configOS
	config |= mux << 12
	config |= s.pga << 9
	config |= configModeSingle
	config |= s.dr << 5
	config |= configCompQueue
	return byte(config >> 8), byte(config & 0xFF), nil
}

func pgaBits(g Gain) (uint16, bool) {
	switch g {
	case Gain6V144:
		return 0x0, true
	case Gain4V096:
		return 0x1, true
	case Gain2V048:
		return 0x2, true
	case Gain1V024:
		return 0x3, true
	case Gain0V512:
		return 0x4, true
	case Gain0V256:
		return 0x5, true
	}
	return 0, false
}

func rateBits(r DataRate) (uint16, bool) {
	for i, sps := range ads1115Rates {
		if physic.Frequency(r) == physic.Frequency(sps)*physic.Hertz {
			return uint16(i), true
		}
	}
	return 0, false
}
