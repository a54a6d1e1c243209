package mqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/ads1115-sampler/pkg/config"
	"github.com/ericogr/ads1115-sampler/pkg/output"
	"github.com/ericogr/ads1115-sampler/pkg/sampler"
)

const (
	// defaults
	DefaultServer      = "tcp://localhost:1883"
	DefaultClientID    = "ads1115-sampler"
	perChannelTopicFmt = "ads1115/channel/%d"
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	unitVolts              = "V"
	deviceClassVoltage     = "voltage"
	stateClassMeasurement  = "measurement"
	valueTemplateVoltage   = "{{ value_json.voltage }}"
	valueTemplateFrameFmt  = "{{ value_json.channels.%s.voltage }}"
)

// publisher is the part of the paho client the output needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type MQTTOutput struct {
	client     mqtt.Client
	pub        publisher
	stateTopic string
}

// NewMQTT connects to the broker and publishes Home Assistant discovery
// entries for the enabled channels when a discovery topic is configured.
func NewMQTT(cfg config.MQTTConfig, channels []config.ChannelConfig) (output.Output, error) {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	m := &MQTTOutput{client: client, pub: client, stateTopic: cfg.StateTopic}
	m.publishDiscovery(cfg, channels)
	return m, nil
}

func (m *MQTTOutput) publishDiscovery(cfg config.MQTTConfig, channels []config.ChannelConfig) {
	if cfg.DiscoveryTopic == "" {
		return
	}
	var enabled []config.ChannelConfig
	for _, ch := range channels {
		if ch.Enabled {
			enabled = append(enabled, ch)
		}
	}
	if len(enabled) == 0 {
		return
	}
	// per-channel discovery when the discovery topic contains a formatter
	if strings.Contains(cfg.DiscoveryTopic, "%d") {
		for _, ch := range enabled {
			dTopic := fmt.Sprintf(cfg.DiscoveryTopic, ch.Channel)
			payload := baseDiscoveryPayload(discoveryName(cfg, &ch), formatStateTopic(cfg.StateTopic, ch.Channel),
				discoveryUniqueID(cfg, &ch), valueTemplate(cfg.StateTopic, ch))
			if err := publishJSON(m.pub, dTopic, true, payload); err != nil {
				log.Printf("mqtt discovery publish error: %v", err)
			}
		}
		return
	}
	// a fixed topic holds a single retained entry; it tracks the first
	// channel and carries the rest as attributes
	first := enabled[0]
	payload := baseDiscoveryPayload(discoveryName(cfg, nil), formatStateTopic(cfg.StateTopic, first.Channel),
		discoveryUniqueID(cfg, nil), valueTemplate(cfg.StateTopic, first))
	if err := publishJSON(m.pub, cfg.DiscoveryTopic, true, payload); err != nil {
		log.Printf("mqtt discovery publish error: %v", err)
	}
}

// helper: value template matching the payload published on stateTopic
func valueTemplate(stateTopic string, ch config.ChannelConfig) string {
	if perChannel(stateTopic) {
		return valueTemplateVoltage
	}
	return fmt.Sprintf(valueTemplateFrameFmt, ch.Name)
}

// Publish sends the frame as one JSON document to the state topic, or one
// document per channel when the state topic has a %d formatter or is empty.
func (m *MQTTOutput) Publish(f sampler.Frame) error {
	if !perChannel(m.stateTopic) {
		return publishJSON(m.pub, m.stateTopic, false, framePayload(f))
	}
	for _, e := range f.Entries {
		topic := formatStateTopic(m.stateTopic, int(e.Channel.Input))
		if err := publishJSON(m.pub, topic, false, channelPayload(f, e)); err != nil {
			return err
		}
	}
	return nil
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}

func perChannel(stateTopic string) bool {
	return stateTopic == "" || strings.Contains(stateTopic, "%d")
}

// helper: format a state topic for a channel using an optional formatter
func formatStateTopic(base string, ch int) string {
	if base != "" {
		if strings.Contains(base, "%d") {
			return fmt.Sprintf(base, ch)
		}
		return base
	}
	return fmt.Sprintf(perChannelTopicFmt, ch)
}

// helper: payload for a single channel; missing readings carry no voltage
func channelPayload(f sampler.Frame, e sampler.Entry) map[string]interface{} {
	p := map[string]interface{}{
		"seq":      f.Seq,
		"stamp_us": f.Stamp.Microseconds(),
		"name":     e.Channel.Name,
		"missing":  e.Missing,
	}
	if !e.Missing {
		p["voltage"] = e.Value
		p["raw"] = e.Raw
	}
	return p
}

// helper: payload for a whole frame, channels keyed by name
func framePayload(f sampler.Frame) map[string]interface{} {
	chans := make(map[string]interface{}, len(f.Entries))
	for _, e := range f.Entries {
		c := map[string]interface{}{"channel": e.Channel.Index, "missing": e.Missing}
		if !e.Missing {
			c["voltage"] = e.Value
			c["raw"] = e.Raw
		}
		chans[e.Channel.Name] = c
	}
	return map[string]interface{}{
		"seq":       f.Seq,
		"stamp_us":  f.Stamp.Microseconds(),
		"reference": f.Reference.String(),
		"channels":  chans,
	}
}

// helper: build a human-friendly discovery name; if ch != nil append channel
func discoveryName(cfg config.MQTTConfig, ch *config.ChannelConfig) string {
	name := cfg.DiscoveryName
	if name == "" {
		name = fmt.Sprintf("ADS1115 %s", cfg.ClientID)
	}
	if ch != nil {
		name = fmt.Sprintf("%s %s", name, ch.Name)
	}
	return name
}

// helper: build a unique id for discovery; if ch != nil append channel
func discoveryUniqueID(cfg config.MQTTConfig, ch *config.ChannelConfig) string {
	uid := cfg.DiscoveryUniqueID
	if uid == "" {
		uid = cfg.ClientID
	}
	if uid != "" && ch != nil {
		uid = fmt.Sprintf("%s_%d", uid, ch.Channel)
	}
	return uid
}

// helper: base discovery payload map common to all entries
func baseDiscoveryPayload(name, stateTopic, uniqueID, valueTemplate string) map[string]interface{} {
	payload := map[string]interface{}{
		keyName:                name,
		keyStateTopic:          stateTopic,
		keyUnitOfMeasurement:   unitVolts,
		keyDeviceClass:         deviceClassVoltage,
		keyStateClass:          stateClassMeasurement,
		keyValueTemplate:       valueTemplate,
		keyJSONAttributesTopic: stateTopic,
	}
	if uniqueID != "" {
		payload[keyUniqueID] = uniqueID
	}
	return payload
}

// helper: marshal and publish JSON payload
func publishJSON(client publisher, topic string, retained bool, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	token := client.Publish(topic, 0, retained, b)
	token.Wait()
	return token.Error()
}
