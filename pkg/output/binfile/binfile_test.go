package binfile

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ericogr/ads1115-sampler/pkg/sampler"
	"github.com/ericogr/ads1115-sampler/pkg/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var names = []string{"vref", "a301", "a401", "vs"}

// frame builds a frame from raw codes; nil marks a missing channel.
func frame(seq uint64, raws ...*int16) sampler.Frame {
	f := sampler.Frame{Seq: seq, Stamp: time.Duration(seq)*20*time.Millisecond + 5200*time.Microsecond}
	for i, r := range raws {
		e := sampler.Entry{Channel: sampler.Channel{Index: i, Name: names[i]}}
		if r == nil {
			e.Missing = true
		} else {
			e.Raw = sensor.RawCode(*r)
		}
		f.Entries = append(f.Entries, e)
	}
	return f
}

func code(v int16) *int16 { return &v }

func TestAppendAndDecodeRecord(t *testing.T) {
	f := frame(9, code(16384), nil, code(-12), code(32767))
	p := AppendRecord(nil, f)
	require.Len(t, p, RecordSize(4))

	r, err := DecodeRecord(p, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), r.Seq)
	assert.Equal(t, uint64(185200), r.StampUs)
	assert.Equal(t, uint32(0b0010), r.Missing)
	assert.Equal(t, []int16{16384, 0, -12, 32767}, r.Raw)

	_, err = DecodeRecord(p[:10], 4)
	assert.Error(t, err)
}

func TestBinaryFileLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forcedata.dat")

	out, err := NewBinary(path)
	require.NoError(t, err)
	require.NoError(t, out.Publish(frame(0, code(1), code(2))))
	require.NoError(t, out.Close())

	out, err = NewBinary(path)
	require.NoError(t, err)
	require.NoError(t, out.Publish(frame(1, nil, code(4))))
	require.NoError(t, out.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	header := "vref,a301\n"
	require.True(t, bytes.HasPrefix(b, []byte(header)))
	body := b[len(header):]
	require.Len(t, body, 2*RecordSize(2), "header written once")

	r0, err := DecodeRecord(body, 2)
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2}, r0.Raw)
	r1, err := DecodeRecord(body[RecordSize(2):], 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r1.Seq)
	assert.Equal(t, uint32(1), r1.Missing)
	assert.Equal(t, []int16{0, 4}, r1.Raw)
}
