package csvfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ericogr/ads1115-sampler/pkg/sampler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(seq uint64, stamp time.Duration, values ...float64) sampler.Frame {
	names := []string{"vref", "a301", "a401", "vs"}
	f := sampler.Frame{Seq: seq, Stamp: stamp}
	for i, v := range values {
		e := sampler.Entry{Channel: sampler.Channel{Index: i, Name: names[i]}, Value: v}
		if v < 0 {
			e.Missing = true
		}
		f.Entries = append(f.Entries, e)
	}
	return f
}

func TestCSVAppendsWithSingleHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forcedata.csv")

	out, err := NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, out.Publish(frame(0, 5200*time.Microsecond, 2.048, 1.5)))
	require.NoError(t, out.Publish(frame(1, 5300*time.Microsecond, 2.047, -1)))
	require.NoError(t, out.Close())

	out, err = NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, out.Publish(frame(2, 5100*time.Microsecond, 2.049, 1.25)))
	require.NoError(t, out.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "time_us,vref,a301\n" +
		"5200,2.048000,1.500000\n" +
		"5300,2.047000,\n" +
		"5100,2.049000,1.250000\n"
	assert.Equal(t, want, string(b))
}

func TestCSVOpenFailure(t *testing.T) {
	_, err := NewCSV(filepath.Join(t.TempDir(), "missing-dir", "x.csv"))
	assert.Error(t, err)
}
