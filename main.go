package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ericogr/ads1115-sampler/pkg/config"
	"github.com/ericogr/ads1115-sampler/pkg/control"
	"github.com/ericogr/ads1115-sampler/pkg/output"
	"github.com/ericogr/ads1115-sampler/pkg/output/binfile"
	"github.com/ericogr/ads1115-sampler/pkg/output/console"
	"github.com/ericogr/ads1115-sampler/pkg/output/csvfile"
	"github.com/ericogr/ads1115-sampler/pkg/output/mqtt"
	"github.com/ericogr/ads1115-sampler/pkg/output/serialport"
	"github.com/ericogr/ads1115-sampler/pkg/sampler"
	"github.com/ericogr/ads1115-sampler/pkg/sensor"
)

// openConverter is replaced in tests.
var openConverter = newConverter

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}
}

// run returns the first fatal error after releasing what it opened.
func run(args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	conv, err := openConverter(cfg)
	if err != nil {
		return fmt.Errorf("sensor: %w", err)
	}
	defer conv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := sampler.NewSystemClock()
	if !cfg.Control.Enabled {
		if err := runSession(ctx, cfg, conv, clock, "", nil); err != nil {
			return fmt.Errorf("sampler: %w", err)
		}
		return nil
	}

	var rec *control.Recorder
	rec = control.NewRecorder(func(ctx context.Context, filename string) error {
		return runSession(ctx, cfg, conv, clock, filename, func(s *sampler.Scheduler) { rec.Attach(s) })
	})
	client, err := control.Connect(cfg.Control, rec)
	if err != nil {
		return err
	}
	defer client.Close()
	if cfg.Control.Autostart {
		if err := rec.Start(""); err != nil {
			log.Printf("autostart: %v", err)
		}
	}
	<-ctx.Done()
	log.Printf("shutting down")
	_ = rec.Stop()
	if err := rec.Wait(); err != nil {
		log.Printf("sampler: %v", err)
	}
	return nil
}

func newConverter(cfg config.Config) (sensor.Converter, error) {
	if cfg.SensorType == "simulation" {
		log.Printf("using simulated converter")
		return sensor.NewFakeSensor(), nil
	}
	ads, err := sensor.NewADS1115(cfg.I2C.Bus, uint16(cfg.I2C.Address))
	if err != nil {
		return nil, err
	}
	return ads, nil
}

// runSession samples until ctx is done, publishing to the configured outputs.
// started, when set, receives the scheduler before the first round.
func runSession(ctx context.Context, cfg config.Config, conv sensor.Converter, clock sampler.Clock, filename string, started func(*sampler.Scheduler)) error {
	outputs, err := initOutputs(cfg, filename)
	if err != nil {
		return err
	}
	defer func() {
		if err := outputs.Close(); err != nil {
			log.Printf("closing outputs: %v", err)
		}
	}()

	opts, err := buildOptions(cfg)
	if err != nil {
		return err
	}
	s, err := sampler.New(conv, clock, buildChannels(cfg), opts)
	if err != nil {
		return err
	}
	if started != nil {
		started(s)
	}
	log.Printf("sampling %d channels every %v (conv wait %v, %d outputs)",
		len(cfg.EnabledChannels()), opts.Budget.Period, opts.Budget.ConvWait, outputs.Len())
	err = s.Run(ctx, outputs)
	st := s.Stats()
	log.Printf("session done: %d rounds, %d cadence misses, %d channel failures, %d emission failures",
		st.Rounds, st.CadenceMisses, st.ChannelFailures, st.EmissionFailures)
	return err
}

// buildChannels maps the enabled channels to scheduler channels, keeping the
// configured order.
func buildChannels(cfg config.Config) []sampler.Channel {
	enabled := cfg.EnabledChannels()
	out := make([]sampler.Channel, 0, len(enabled))
	for i, ch := range enabled {
		name := ch.Name
		if name == "" {
			name = fmt.Sprintf("ch%d", ch.Channel)
		}
		out = append(out, sampler.Channel{
			Index:  i,
			Input:  sensor.Channel(ch.Channel),
			Name:   name,
			Scale:  ch.Scale(),
			Offset: ch.CalibrationOffset,
		})
	}
	return out
}

func buildOptions(cfg config.Config) (sampler.Options, error) {
	gain, err := sensor.GainFromVolts(cfg.PGA)
	if err != nil {
		return sampler.Options{}, err
	}
	ref, err := sampler.ParseTimestampReference(cfg.TimestampReference)
	if err != nil {
		return sampler.Options{}, err
	}
	opts := sampler.Options{
		Budget:    sampler.Budget{ConvWait: cfg.ConvWait(), Period: cfg.Period()},
		Gain:      gain,
		Rate:      sensor.SPS(cfg.SampleRate),
		Reference: ref,
		SlowEmit:  cfg.SlowEmit(),
	}
	if cfg.OnEmitError == "continue" {
		opts.OnEmitError = func(*sampler.EmissionError) bool { return true }
	}
	return opts, nil
}

// initOutputs opens every configured output. A non-empty filename replaces
// the file name of the csv and binary outputs, keeping their directory.
func initOutputs(cfg config.Config, filename string) (*output.Multi, error) {
	var outs []output.Output
	fail := func(err error) (*output.Multi, error) {
		_ = output.NewMulti(outs...).Close()
		return nil, err
	}
	for _, o := range cfg.Outputs {
		var (
			out output.Output
			err error
		)
		switch o.Type {
		case "console":
			out = console.NewConsole()
		case "log":
			out = console.NewLog(log.Default())
		case "csv":
			out, err = csvfile.NewCSV(sessionPath(o.Path, filename, ".csv"))
		case "binary":
			out, err = binfile.NewBinary(sessionPath(o.Path, filename, ".dat"))
		case "serial":
			if o.Serial == nil {
				return fail(fmt.Errorf("output serial: missing serial settings"))
			}
			out, err = serialport.NewSerial(*o.Serial)
		case "mqtt":
			if o.MQTT == nil {
				return fail(fmt.Errorf("output mqtt: missing mqtt settings"))
			}
			out, err = mqtt.NewMQTT(*o.MQTT, cfg.EnabledChannels())
		default:
			return fail(fmt.Errorf("unknown output type %q", o.Type))
		}
		if err != nil {
			return fail(fmt.Errorf("output %s: %w", o.Type, err))
		}
		outs = append(outs, out)
	}
	return output.NewMulti(outs...), nil
}

func sessionPath(configured, filename, ext string) string {
	if filename == "" {
		return configured
	}
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base)) + ext
	return filepath.Join(filepath.Dir(configured), base)
}
