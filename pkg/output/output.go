package output

import (
	"go.uber.org/multierr"

	"github.com/ericogr/ads1115-sampler/pkg/sampler"
)

// Output records or displays frames. Publish is called once per frame, in
// frame order; it must not retry on its own.
type Output interface {
	Publish(sampler.Frame) error
	Close() error
}

// helper constructors are in subpackages

// Multi publishes every frame to all of its outputs.
type Multi struct {
	outputs []Output
}

func NewMulti(outputs ...Output) *Multi { return &Multi{outputs: outputs} }

// Publish hands the frame to every output even if an earlier one fails, and
// reports all failures together.
func (m *Multi) Publish(f sampler.Frame) error {
	var err error
	for _, o := range m.outputs {
		err = multierr.Append(err, o.Publish(f))
	}
	return err
}

func (m *Multi) Close() error {
	var err error
	for _, o := range m.outputs {
		err = multierr.Append(err, o.Close())
	}
	return err
}

// Len returns the number of outputs.
func (m *Multi) Len() int { return len(m.outputs) }
