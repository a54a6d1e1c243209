package binfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ericogr/ads1115-sampler/pkg/output"
	"github.com/ericogr/ads1115-sampler/pkg/sampler"
)

// Record layout, little endian:
//
//	uint64 seq
//	uint64 stamp in microseconds
//	uint32 missing bitmask, bit i set when channel i has no reading
//	int16  raw code, one per channel
//
// A new file starts with one text line naming the channels.
const fixedSize = 8 + 8 + 4

// maxChannels is bounded by the missing bitmask.
const maxChannels = 32

// BinaryOutput appends packed raw records to a file.
type BinaryOutput struct {
	file   *os.File
	header bool
	buf    []byte
}

func NewBinary(path string) (output.Output, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open binary log: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat binary log: %w", err)
	}
	return &BinaryOutput{file: f, header: st.Size() > 0}, nil
}

func (b *BinaryOutput) Publish(f sampler.Frame) error {
	if len(f.Entries) > maxChannels {
		return fmt.Errorf("binary log holds at most %d channels, frame has %d", maxChannels, len(f.Entries))
	}
	if !b.header {
		names := make([]string, 0, len(f.Entries))
		for _, e := range f.Entries {
			names = append(names, e.Channel.Name)
		}
		if _, err := io.WriteString(b.file, strings.Join(names, ",")+"\n"); err != nil {
			return fmt.Errorf("write binary header: %w", err)
		}
		b.header = true
	}
	b.buf = AppendRecord(b.buf[:0], f)
	if _, err := b.file.Write(b.buf); err != nil {
		return fmt.Errorf("write binary record: %w", err)
	}
	return nil
}

func (b *BinaryOutput) Close() error { return b.file.Close() }

// AppendRecord appends the packed record of f to dst.
func AppendRecord(dst []byte, f sampler.Frame) []byte {
	var mask uint32
	for i, e := range f.Entries {
		if e.Missing {
			mask |= 1 << uint(i)
		}
	}
	dst = binary.LittleEndian.AppendUint64(dst, f.Seq)
	dst = binary.LittleEndian.AppendUint64(dst, uint64(f.Stamp.Microseconds()))
	dst = binary.LittleEndian.AppendUint32(dst, mask)
	for _, e := range f.Entries {
		raw := e.Raw
		if e.Missing {
			raw = 0
		}
		dst = binary.LittleEndian.AppendUint16(dst, uint16(raw))
	}
	return dst
}

// Record is one decoded frame of the binary log.
type Record struct {
	Seq     uint64
	StampUs uint64
	Missing uint32
	Raw     []int16
}

// DecodeRecord reads one record for n channels from p.
func DecodeRecord(p []byte, n int) (Record, error) {
	if len(p) < fixedSize+2*n {
		return Record{}, errors.New("short record")
	}
	r := Record{
		Seq:     binary.LittleEndian.Uint64(p[0:]),
		StampUs: binary.LittleEndian.Uint64(p[8:]),
		Missing: binary.LittleEndian.Uint32(p[16:]),
		Raw:     make([]int16, n),
	}
	for i := 0; i < n; i++ {
		r.Raw[i] = int16(binary.LittleEndian.Uint16(p[fixedSize+2*i:]))
	}
	return r, nil
}

// RecordSize is the size of a record for n channels.
func RecordSize(n int) int { return fixedSize + 2*n }
