package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ericogr/ads1115-sampler/pkg/sensor"
	"gopkg.in/yaml.v3"
)

type MQTTConfig struct {
	Server            string `json:"server" yaml:"server"`
	Username          string `json:"username" yaml:"username"`
	Password          string `json:"password" yaml:"password"`
	ClientID          string `json:"client_id" yaml:"client_id"`
	StateTopic        string `json:"state_topic" yaml:"state_topic"`
	DiscoveryTopic    string `json:"discovery_topic,omitempty" yaml:"discovery_topic,omitempty"`
	DiscoveryName     string `json:"discovery_name,omitempty" yaml:"discovery_name,omitempty"`
	DiscoveryUniqueID string `json:"discovery_unique_id,omitempty" yaml:"discovery_unique_id,omitempty"`
}

type SerialConfig struct {
	Port     string `json:"port" yaml:"port"`
	BaudRate int    `json:"baud_rate" yaml:"baud_rate"`
}

type OutputConfig struct {
	Type   string        `json:"type" yaml:"type"`
	Path   string        `json:"path,omitempty" yaml:"path,omitempty"`
	Serial *SerialConfig `json:"serial,omitempty" yaml:"serial,omitempty"`
	MQTT   *MQTTConfig   `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
}

type ChannelConfig struct {
	Channel           int     `json:"channel" yaml:"channel"`
	Name              string  `json:"name,omitempty" yaml:"name,omitempty"`
	Enabled           bool    `json:"enabled" yaml:"enabled"`
	CalibrationScale  *float64 `json:"calibration_scale,omitempty" yaml:"calibration_scale,omitempty"`
	CalibrationOffset float64  `json:"calibration_offset" yaml:"calibration_offset"`
}

// Scale is the calibration scale, 1 when none is configured. An explicit 0
// is kept.
func (c ChannelConfig) Scale() float64 {
	if c.CalibrationScale == nil {
		return 1
	}
	return *c.CalibrationScale
}

type I2CConfig struct {
	Bus     string `json:"bus" yaml:"bus"`
	Address int    `json:"address" yaml:"address"`
}

// ControlConfig enables the MQTT remote control of recording sessions.
type ControlConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	DeviceID     string `json:"device_id" yaml:"device_id"`
	CommandTopic string `json:"command_topic" yaml:"command_topic"`
	StatusTopic  string `json:"status_topic,omitempty" yaml:"status_topic,omitempty"`
	Autostart    bool   `json:"autostart" yaml:"autostart"`

	// StatusIntervalMs is the period of the status heartbeat; 0 disables it.
	StatusIntervalMs int        `json:"status_interval_ms" yaml:"status_interval_ms"`
	MQTT             MQTTConfig `json:"mqtt" yaml:"mqtt"`
}

func (c ControlConfig) StatusInterval() time.Duration {
	return time.Duration(c.StatusIntervalMs) * time.Millisecond
}

type Config struct {
	I2C                I2CConfig       `json:"i2c" yaml:"i2c"`
	PGA                float64         `json:"pga" yaml:"pga"`
	SampleRate         int             `json:"sample_rate" yaml:"sample_rate"`
	ConvWaitUs         int             `json:"conv_wait_us" yaml:"conv_wait_us"`
	PeriodUs           int             `json:"period_us" yaml:"period_us"`
	TimestampReference string          `json:"timestamp_reference" yaml:"timestamp_reference"`
	OnEmitError        string          `json:"on_emit_error" yaml:"on_emit_error"`
	SlowEmitMs         int             `json:"slow_emit_ms" yaml:"slow_emit_ms"`
	SensorType         string          `json:"sensor_type" yaml:"sensor_type"`
	Channels           []ChannelConfig `json:"channels" yaml:"channels"`
	Outputs            []OutputConfig  `json:"outputs" yaml:"outputs"`
	Control            ControlConfig   `json:"control" yaml:"control"`
}

func DefaultConfig() Config {
	return Config{
		I2C:                I2CConfig{Bus: "1", Address: sensor.DefaultAddress},
		PGA:                4.096,
		SampleRate:         860,
		PeriodUs:           20000,
		TimestampReference: "round",
		OnEmitError:        "halt",
		SlowEmitMs:         8,
		SensorType:         "real",
		Channels: []ChannelConfig{
			{Channel: 0, Name: "ch0", Enabled: true},
			{Channel: 1, Name: "ch1", Enabled: true},
			{Channel: 2, Name: "ch2", Enabled: true},
			{Channel: 3, Name: "ch3", Enabled: true},
		},
		Outputs: []OutputConfig{{Type: "console"}},
		Control: ControlConfig{
			DeviceID:         "pico1",
			CommandTopic:     "pico/all/cmd",
			StatusIntervalMs: 1000,
		},
	}
}

// ConvWait is the configured conversion wait, or one conversion period of
// the sample rate plus an eighth when none is set.
func (c Config) ConvWait() time.Duration {
	if c.ConvWaitUs > 0 {
		return time.Duration(c.ConvWaitUs) * time.Microsecond
	}
	t := sensor.SPS(c.SampleRate).ConversionTime()
	return t + t/8
}

func (c Config) Period() time.Duration { return time.Duration(c.PeriodUs) * time.Microsecond }

func (c Config) SlowEmit() time.Duration { return time.Duration(c.SlowEmitMs) * time.Millisecond }

// EnabledChannels returns the enabled channels in sampling order.
func (c Config) EnabledChannels() []ChannelConfig {
	out := make([]ChannelConfig, 0, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.Enabled {
			out = append(out, ch)
		}
	}
	return out
}

// StatusTopicOrDefault is the control status topic, derived from the device id when
// not set explicitly.
func (c ControlConfig) StatusTopicOrDefault() string {
	if c.StatusTopic != "" {
		return c.StatusTopic
	}
	return "pico/" + c.DeviceID + "/status"
}

// Load loads configuration from a JSON or YAML file (optional, -config) and
// flags. Flags override values present in the file.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("ads1115-sampler", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to JSON or YAML config file")
	flagI2CBus := fs.String("i2c-bus", "", "I2C bus (e.g., '1' -> /dev/i2c-1)")
	flagI2CAddStr := fs.String("i2c-address", "", "I2C address (decimal or 0x hex)")
	flagPGA := fs.Float64("pga", math.NaN(), "Full-scale range in volts (6.144, 4.096, 2.048, 1.024, 0.512, 0.256)")
	flagSampleRate := fs.Int("sample-rate", -1, "ADS1115 sample rate (SPS)")
	flagConvWait := fs.Int("conv-wait-us", -1, "Wait after selecting a channel before reading it, in microseconds (0 = from sample rate)")
	flagPeriod := fs.Int("period-us", -1, "Target period between rounds, in microseconds")
	flagTSRef := fs.String("timestamp-reference", "", "Frame timestamp origin: round|process")
	flagOnEmitError := fs.String("on-emit-error", "", "What to do when an output fails: halt|continue")
	flagSlowEmit := fs.Int("slow-emit-ms", -1, "Warn when publishing a frame takes longer (0 disables)")
	flagSensorType := fs.String("sensor-type", "", "sensor type: real|simulation")
	flagChannels := fs.String("channels", "", "Comma-separated channels in sampling order e.g. 0,1,2,3")
	flagNames := fs.String("channel-names", "", "Per-channel names e.g. 0=vref,1=a301")
	flagScales := fs.String("channel-scales", "", "Per-channel calibration scale e.g. 0=1.0,1=0.98")
	flagOffsets := fs.String("channel-offsets", "", "Per-channel calibration offset e.g. 0=0.01")
	flagEnabled := fs.String("channel-enabled", "", "Per-channel enable e.g. 0=true,3=false")
	flagOutputs := fs.String("outputs", "", "Comma-separated outputs (console,log,csv,binary,serial,mqtt)")
	flagOutputPaths := fs.String("output-paths", "", "Comma-separated file paths e.g. csv=data.csv,binary=data.dat")
	flagSerialPort := fs.String("serial-port", "", "Serial port for the serial output")
	flagSerialBaud := fs.Int("serial-baud", -1, "Serial baud rate")
	flagMQTTServer := fs.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	flagMQTTUser := fs.String("mqtt-user", "", "MQTT username")
	flagMQTTPass := fs.String("mqtt-pass", "", "MQTT password")
	flagClientID := fs.String("mqtt-client-id", "", "MQTT client id")
	flagTopic := fs.String("mqtt-topic", "", "MQTT state topic")
	flagControl := fs.Bool("control", false, "Enable MQTT remote control")
	flagDeviceID := fs.String("device-id", "", "Device id used in the control status topic")
	flagStatusInterval := fs.Int("status-interval-ms", -1, "Control status heartbeat period in milliseconds (0 disables)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()

	if *cfgPath != "" {
		if err := readFile(*cfgPath, &cfg); err != nil {
			return cfg, err
		}
	}

	if *flagI2CBus != "" {
		cfg.I2C.Bus = *flagI2CBus
	}
	if *flagI2CAddStr != "" {
		v, err := parseIntOrHex(*flagI2CAddStr)
		if err != nil {
			return cfg, fmt.Errorf("i2c-address: %w", err)
		}
		cfg.I2C.Address = v
	}
	if !math.IsNaN(*flagPGA) {
		cfg.PGA = *flagPGA
	}
	if *flagSampleRate != -1 {
		cfg.SampleRate = *flagSampleRate
	}
	if *flagConvWait != -1 {
		cfg.ConvWaitUs = *flagConvWait
	}
	if *flagPeriod != -1 {
		cfg.PeriodUs = *flagPeriod
	}
	if *flagTSRef != "" {
		cfg.TimestampReference = *flagTSRef
	}
	if *flagOnEmitError != "" {
		cfg.OnEmitError = *flagOnEmitError
	}
	if *flagSlowEmit != -1 {
		cfg.SlowEmitMs = *flagSlowEmit
	}
	if *flagSensorType != "" {
		cfg.SensorType = *flagSensorType
	}
	if *flagChannels != "" {
		chs, err := parseChannels(*flagChannels)
		if err != nil {
			return cfg, err
		}
		cfg.Channels = reorderChannels(cfg.Channels, chs)
	}
	if err := applyChannelMaps(&cfg, *flagNames, *flagScales, *flagOffsets, *flagEnabled); err != nil {
		return cfg, err
	}
	if *flagOutputs != "" {
		// convert simple CSV of types into structured OutputConfig entries
		parts := parseCSV(*flagOutputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: strings.ToLower(p)})
		}
		cfg.Outputs = outs
	}
	if *flagOutputPaths != "" {
		paths, err := parseKeyStringMap(*flagOutputPaths)
		if err != nil {
			return cfg, fmt.Errorf("output-paths: %w", err)
		}
		for i := range cfg.Outputs {
			if p, ok := paths[cfg.Outputs[i].Type]; ok {
				cfg.Outputs[i].Path = p
			}
		}
	}
	if *flagSerialPort != "" || *flagSerialBaud != -1 {
		for i := range cfg.Outputs {
			if cfg.Outputs[i].Type != "serial" {
				continue
			}
			if cfg.Outputs[i].Serial == nil {
				cfg.Outputs[i].Serial = &SerialConfig{}
			}
			if *flagSerialPort != "" {
				cfg.Outputs[i].Serial.Port = *flagSerialPort
			}
			if *flagSerialBaud != -1 {
				cfg.Outputs[i].Serial.BaudRate = *flagSerialBaud
			}
		}
	}
	// map mqtt flags into every mqtt output and the control connection
	if *flagMQTTServer != "" || *flagMQTTUser != "" || *flagMQTTPass != "" || *flagClientID != "" || *flagTopic != "" {
		apply := func(m *MQTTConfig) {
			if *flagMQTTServer != "" {
				m.Server = *flagMQTTServer
			}
			if *flagMQTTUser != "" {
				m.Username = *flagMQTTUser
			}
			if *flagMQTTPass != "" {
				m.Password = *flagMQTTPass
			}
			if *flagClientID != "" {
				m.ClientID = *flagClientID
			}
			if *flagTopic != "" {
				m.StateTopic = *flagTopic
			}
		}
		for i := range cfg.Outputs {
			if cfg.Outputs[i].Type == "mqtt" {
				if cfg.Outputs[i].MQTT == nil {
					cfg.Outputs[i].MQTT = &MQTTConfig{}
				}
				apply(cfg.Outputs[i].MQTT)
			}
		}
		apply(&cfg.Control.MQTT)
	}
	if *flagControl {
		cfg.Control.Enabled = true
	}
	if *flagDeviceID != "" {
		cfg.Control.DeviceID = *flagDeviceID
	}
	if *flagStatusInterval != -1 {
		cfg.Control.StatusIntervalMs = *flagStatusInterval
	}

	cfg.ensureDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	// lists in the file replace the defaults instead of merging into them
	defChannels, defOutputs := cfg.Channels, cfg.Outputs
	cfg.Channels, cfg.Outputs = nil, nil
	defer func() {
		if cfg.Channels == nil {
			cfg.Channels = defChannels
		}
		if cfg.Outputs == nil {
			cfg.Outputs = defOutputs
		}
	}()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, cfg)
	default:
		err = json.Unmarshal(b, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// ensureDefaults fills values a config file may leave zero.
func (c *Config) ensureDefaults() {
	def := DefaultConfig()
	if c.I2C.Bus == "" {
		c.I2C.Bus = def.I2C.Bus
	}
	if c.I2C.Address == 0 {
		c.I2C.Address = def.I2C.Address
	}
	if c.TimestampReference == "" {
		c.TimestampReference = def.TimestampReference
	}
	if c.OnEmitError == "" {
		c.OnEmitError = def.OnEmitError
	}
	if c.SensorType == "" {
		c.SensorType = def.SensorType
	}
	for i := range c.Channels {
		if c.Channels[i].Name == "" {
			c.Channels[i].Name = fmt.Sprintf("ch%d", c.Channels[i].Channel)
		}
	}
	for i := range c.Outputs {
		c.Outputs[i].Type = strings.ToLower(c.Outputs[i].Type)
		if c.Outputs[i].Type == "serial" && c.Outputs[i].Serial != nil && c.Outputs[i].Serial.BaudRate == 0 {
			c.Outputs[i].Serial.BaudRate = 115200
		}
	}
	if c.Control.DeviceID == "" {
		c.Control.DeviceID = def.Control.DeviceID
	}
	if c.Control.CommandTopic == "" {
		c.Control.CommandTopic = def.Control.CommandTopic
	}
}

// Validate reports settings the sampler cannot start with.
func (c Config) Validate() error {
	if _, err := sensor.GainFromVolts(c.PGA); err != nil {
		return fmt.Errorf("pga: %w", err)
	}
	if !sensor.ValidRate(c.SampleRate) {
		return fmt.Errorf("sample-rate %d is not supported", c.SampleRate)
	}
	if c.ConvWaitUs < 0 {
		return errors.New("conv-wait-us must be >= 0")
	}
	if c.PeriodUs <= 0 {
		return errors.New("period-us must be > 0")
	}
	if c.Period() < c.ConvWait() {
		return fmt.Errorf("period %v is shorter than the conversion wait %v", c.Period(), c.ConvWait())
	}
	switch c.TimestampReference {
	case "round", "process":
	default:
		return fmt.Errorf("timestamp-reference %q: want round or process", c.TimestampReference)
	}
	switch c.OnEmitError {
	case "halt", "continue":
	default:
		return fmt.Errorf("on-emit-error %q: want halt or continue", c.OnEmitError)
	}
	switch c.SensorType {
	case "real", "simulation":
	default:
		return fmt.Errorf("sensor-type %q: want real or simulation", c.SensorType)
	}
	seen := map[int]bool{}
	for _, ch := range c.Channels {
		if ch.Channel < 0 || ch.Channel > 3 {
			return fmt.Errorf("invalid channel %d", ch.Channel)
		}
		if seen[ch.Channel] {
			return fmt.Errorf("channel %d configured twice", ch.Channel)
		}
		seen[ch.Channel] = true
	}
	if len(c.EnabledChannels()) == 0 {
		return errors.New("no channel enabled")
	}
	for _, o := range c.Outputs {
		switch o.Type {
		case "console", "log":
		case "csv", "binary":
			if o.Path == "" {
				return fmt.Errorf("output %s: path is required", o.Type)
			}
		case "serial":
			if o.Serial == nil || o.Serial.Port == "" {
				return errors.New("output serial: port is required")
			}
		case "mqtt":
			if o.MQTT == nil || o.MQTT.Server == "" {
				return errors.New("output mqtt: server is required")
			}
		default:
			return fmt.Errorf("unknown output type %q", o.Type)
		}
	}
	if c.Control.StatusIntervalMs < 0 {
		return errors.New("control: status-interval-ms must be >= 0")
	}
	if c.Control.Enabled && c.Control.MQTT.Server == "" {
		return errors.New("control: mqtt server is required")
	}
	return nil
}

func parseIntOrHex(s string) (int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	v, err := strconv.Atoi(s)
	return v, err
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func parseChannels(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t == "" {
			continue
		}
		v, err := strconv.Atoi(t)
		if err != nil {
			return nil, fmt.Errorf("invalid channel '%s': %w", t, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// reorderChannels keeps the settings of the listed channels, enables them in
// the listed order and drops the rest.
func reorderChannels(existing []ChannelConfig, order []int) []ChannelConfig {
	byChannel := make(map[int]ChannelConfig, len(existing))
	for _, c := range existing {
		byChannel[c.Channel] = c
	}
	out := make([]ChannelConfig, 0, len(order))
	for _, ch := range order {
		c, ok := byChannel[ch]
		if !ok {
			c = ChannelConfig{Channel: ch}
		}
		c.Enabled = true
		out = append(out, c)
	}
	return out
}

func applyChannelMaps(cfg *Config, names, scales, offsets, enabled string) error {
	nameMap, err := parseKeyStringMap(names)
	if err != nil {
		return fmt.Errorf("channel-names: %w", err)
	}
	scaleMap, err := parseKeyFloatMap(scales)
	if err != nil {
		return fmt.Errorf("channel-scales: %w", err)
	}
	offsetMap, err := parseKeyFloatMap(offsets)
	if err != nil {
		return fmt.Errorf("channel-offsets: %w", err)
	}
	enabledMap, err := parseKeyBoolMap(enabled)
	if err != nil {
		return fmt.Errorf("channel-enabled: %w", err)
	}
	for i := range cfg.Channels {
		c := &cfg.Channels[i]
		key := strconv.Itoa(c.Channel)
		if v, ok := nameMap[key]; ok {
			c.Name = v
		}
		if v, ok := scaleMap[c.Channel]; ok {
			c.CalibrationScale = &v
		}
		if v, ok := offsetMap[c.Channel]; ok {
			c.CalibrationOffset = v
		}
		if v, ok := enabledMap[c.Channel]; ok {
			c.Enabled = v
		}
	}
	return nil
}

func splitPairs(s string) ([][2]string, error) {
	out := [][2]string{}
	for _, p := range parseCSV(s) {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid pair '%s' (want key=value)", p)
		}
		out = append(out, [2]string{strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])})
	}
	return out, nil
}

func parseKeyStringMap(s string) (map[string]string, error) {
	pairs, err := splitPairs(s)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		out[kv[0]] = kv[1]
	}
	return out, nil
}

func parseKeyFloatMap(s string) (map[int]float64, error) {
	pairs, err := splitPairs(s)
	if err != nil {
		return nil, err
	}
	out := make(map[int]float64, len(pairs))
	for _, kv := range pairs {
		k, err := strconv.Atoi(kv[0])
		if err != nil {
			return nil, fmt.Errorf("invalid channel '%s': %w", kv[0], err)
		}
		v, err := strconv.ParseFloat(kv[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value '%s': %w", kv[1], err)
		}
		out[k] = v
	}
	return out, nil
}

func parseKeyBoolMap(s string) (map[int]bool, error) {
	pairs, err := splitPairs(s)
	if err != nil {
		return nil, err
	}
	out := make(map[int]bool, len(pairs))
	for _, kv := range pairs {
		k, err := strconv.Atoi(kv[0])
		if err != nil {
			return nil, fmt.Errorf("invalid channel '%s': %w", kv[0], err)
		}
		v, err := strconv.ParseBool(kv[1])
		if err != nil {
			return nil, fmt.Errorf("invalid value '%s': %w", kv[1], err)
		}
		out[k] = v
	}
	return out, nil
}
