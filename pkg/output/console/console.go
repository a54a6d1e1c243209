package console

import (
	"fmt"
	"log"
	"strings"

	"github.com/ericogr/ads1115-sampler/pkg/output"
	"github.com/ericogr/ads1115-sampler/pkg/sampler"
)

// FormatLine renders a frame as "stamp_us  |  v0  |  v1 ..." with volts to
// three decimals and "---" for missing channels.
func FormatLine(f sampler.Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d", f.Stamp.Microseconds())
	for _, e := range f.Entries {
		if e.Missing {
			b.WriteString("  |  ---")
			continue
		}
		fmt.Fprintf(&b, "  |  %1.3f", e.Value)
	}
	return b.String()
}

// Header names the columns of FormatLine.
func Header(f sampler.Frame) string {
	names := make([]string, 0, len(f.Entries)+1)
	names = append(names, "t_us")
	for _, e := range f.Entries {
		names = append(names, e.Channel.Name)
	}
	return strings.Join(names, "  |  ")
}

type ConsoleOutput struct {
	header bool
}

func NewConsole() output.Output { return &ConsoleOutput{} }

func (c *ConsoleOutput) Publish(f sampler.Frame) error {
	if !c.header {
		fmt.Println(Header(f))
		c.header = true
	}
	fmt.Println(FormatLine(f))
	return nil
}

func (c *ConsoleOutput) Close() error { return nil }

// LogOutput writes frames to a log stream.
type LogOutput struct {
	logger *log.Logger
}

func NewLog(logger *log.Logger) output.Output {
	if logger == nil {
		logger = log.Default()
	}
	return &LogOutput{logger: logger}
}

func (l *LogOutput) Publish(f sampler.Frame) error {
	l.logger.Printf("frame %d missing=%d %s", f.Seq, f.Missing(), FormatLine(f))
	return nil
}

func (l *LogOutput) Close() error { return nil }
