package serialport

import (
	"fmt"
	"io"

	"go.bug.st/serial"

	"github.com/ericogr/ads1115-sampler/pkg/config"
	"github.com/ericogr/ads1115-sampler/pkg/output"
	"github.com/ericogr/ads1115-sampler/pkg/output/console"
	"github.com/ericogr/ads1115-sampler/pkg/sampler"
)

// DefaultBaudRate matches the usual USB CDC console setting.
const DefaultBaudRate = 115200

// SerialOutput writes console lines to a serial port.
type SerialOutput struct {
	port   io.WriteCloser
	header bool
}

func NewSerial(cfg config.SerialConfig) (output.Output, error) {
	baud := cfg.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Port, err)
	}
	return newSerialOutput(port), nil
}

func newSerialOutput(port io.WriteCloser) *SerialOutput {
	return &SerialOutput{port: port}
}

func (s *SerialOutput) Publish(f sampler.Frame) error {
	if !s.header {
		if _, err := io.WriteString(s.port, console.Header(f)+"\r\n"); err != nil {
			return fmt.Errorf("write serial: %w", err)
		}
		s.header = true
	}
	if _, err := io.WriteString(s.port, console.FormatLine(f)+"\r\n"); err != nil {
		return fmt.Errorf("write serial: %w", err)
	}
	return nil
}

func (s *SerialOutput) Close() error { return s.port.Close() }
