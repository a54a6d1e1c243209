package csvfile

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/ericogr/ads1115-sampler/pkg/output"
	"github.com/ericogr/ads1115-sampler/pkg/sampler"
)

// CSVOutput appends one row per frame to a CSV file. The header is written
// only when the file starts empty.
type CSVOutput struct {
	file   *os.File
	w      *csv.Writer
	header bool
}

func NewCSV(path string) (output.Output, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat csv: %w", err)
	}
	return &CSVOutput{file: f, w: csv.NewWriter(f), header: st.Size() > 0}, nil
}

func (c *CSVOutput) Publish(f sampler.Frame) error {
	if !c.header {
		row := make([]string, 0, len(f.Entries)+1)
		row = append(row, "time_us")
		for _, e := range f.Entries {
			row = append(row, e.Channel.Name)
		}
		if err := c.w.Write(row); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		c.header = true
	}
	row := make([]string, 0, len(f.Entries)+1)
	row = append(row, strconv.FormatInt(f.Stamp.Microseconds(), 10))
	for _, e := range f.Entries {
		if e.Missing {
			row = append(row, "")
			continue
		}
		row = append(row, strconv.FormatFloat(e.Value, 'f', 6, 64))
	}
	if err := c.w.Write(row); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func (c *CSVOutput) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		_ = c.file.Close()
		return err
	}
	return c.file.Close()
}
