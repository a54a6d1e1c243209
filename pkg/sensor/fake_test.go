package sensor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeSensorSequence(t *testing.T) {
	f := NewFakeSensor()

	require.Error(t, f.SelectChannel(0), "select before configure")
	require.NoError(t, f.Configure(Gain4V096, SPS(860)))

	_, err := f.Read()
	assert.True(t, errors.Is(err, ErrNotReady))

	for ch := Channel(0); ch < 4; ch++ {
		require.NoError(t, f.SelectChannel(ch))
		raw, err := f.Read()
		require.NoError(t, err)
		v := f.RawToPhysical(raw)
		assert.InDelta(t, 4.096*(0.2+0.2*float64(ch)), v, 0.3, "channel %d", ch)
	}

	assert.Error(t, f.SelectChannel(4))
	assert.NoError(t, f.Close())
}
