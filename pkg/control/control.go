package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/ads1115-sampler/pkg/config"
)

// status strings published on the status topic
const (
	StatusBootedUp          = "booted_up"
	StatusConnected         = "connected"
	StatusStarted           = "recording_started"
	StatusAlreadyActive     = "recording_already_active"
	StatusStopping          = "recording_stopping_signal"
	StatusNotActive         = "no_recording_active"
	StatusStopped           = "recording_stopped"
	StatusError             = "recording_error"
	StatusMissingCommand    = "error_missing_command"
	StatusUnknownCommand    = "error_unknown_json_command"
	StatusNonJSONCommand    = "error_non_json_command"
	StatusRecordingActive   = "recording_active"
	StatusIdle              = "idle"
	commandStartRecording   = "start_recording"
	commandStopRecording    = "stop_recording"
	commandCheckConnection  = "check_pico_connection"
	defaultControlClientID  = "ads1115-sampler-control"
	disconnectQuiesceMillis = 250
)

type command struct {
	Command  string `json:"command"`
	Filename string `json:"filename"`
}

// Controller turns command payloads into Recorder calls and reports the
// outcome through publish.
type Controller struct {
	rec     *Recorder
	publish func(status string)
}

func NewController(rec *Recorder, publish func(status string)) *Controller {
	c := &Controller{rec: rec, publish: publish}
	rec.OnExit(func(err error) {
		if err != nil {
			log.Printf("control: recording ended with error: %v", err)
			c.publish(StatusError)
			return
		}
		c.publish(StatusStopped)
	})
	return c
}

// Handle processes one command payload.
func (c *Controller) Handle(payload []byte) {
	var cmd command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		log.Printf("control: non-JSON command %q", payload)
		c.publish(StatusNonJSONCommand)
		return
	}
	switch cmd.Command {
	case "":
		c.publish(StatusMissingCommand)
	case commandStartRecording:
		switch err := c.rec.Start(cmd.Filename); {
		case errors.Is(err, ErrAlreadyActive):
			c.publish(StatusAlreadyActive)
		case err != nil:
			log.Printf("control: start recording: %v", err)
			c.publish(StatusError)
		default:
			log.Printf("control: recording started (file %q)", cmd.Filename)
			c.publish(StatusStarted)
		}
	case commandStopRecording:
		if err := c.rec.Stop(); err != nil {
			c.publish(StatusNotActive)
			return
		}
		c.publish(StatusStopping)
	case commandCheckConnection:
		c.publish(StatusConnected)
	default:
		log.Printf("control: unknown command %q", cmd.Command)
		c.publish(StatusUnknownCommand)
	}
}

// Heartbeat is the periodic status document. Session is set while a
// recording runs and its scheduler is attached.
type Heartbeat struct {
	Status  string         `json:"status"`
	Session *SessionStatus `json:"session,omitempty"`
}

type SessionStatus struct {
	Rounds           uint64 `json:"rounds"`
	CadenceMisses    uint64 `json:"cadence_misses"`
	ChannelFailures  uint64 `json:"channel_failures"`
	EmissionFailures uint64 `json:"emission_failures"`
	LastRoundUs      int64  `json:"last_round_us"`
	Degraded         bool   `json:"degraded"`
}

// Status reports whether a recording is active, with the live counters of
// its scheduler.
func (c *Controller) Status() Heartbeat {
	if !c.rec.Active() {
		return Heartbeat{Status: StatusIdle}
	}
	hb := Heartbeat{Status: StatusRecordingActive}
	if src := c.rec.Source(); src != nil {
		st := src.Stats()
		hb.Session = &SessionStatus{
			Rounds:           st.Rounds,
			CadenceMisses:    st.CadenceMisses,
			ChannelFailures:  st.ChannelFailures,
			EmissionFailures: st.EmissionFailures,
			LastRoundUs:      st.LastRound.Microseconds(),
			Degraded:         src.Degraded(),
		}
	}
	return hb
}

// PublishStatus publishes the current Heartbeat as JSON.
func (c *Controller) PublishStatus() {
	b, err := json.Marshal(c.Status())
	if err != nil {
		log.Printf("control: encode status: %v", err)
		return
	}
	c.publish(string(b))
}

// RunHeartbeat publishes the status every interval until ctx is done.
func (c *Controller) RunHeartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.PublishStatus()
		}
	}
}

// Client is a Controller attached to an MQTT broker.
type Client struct {
	client mqtt.Client
	ctrl   *Controller
	stop   context.CancelFunc
}

// Connect subscribes to the command topic and publishes booted_up on the
// status topic. The subscription is renewed on every reconnect.
func Connect(cfg config.ControlConfig, rec *Recorder) (*Client, error) {
	m := cfg.MQTT
	if m.ClientID == "" {
		m.ClientID = defaultControlClientID
	}
	statusTopic := cfg.StatusTopicOrDefault()
	c := &Client{}
	publish := func(status string) {
		token := c.client.Publish(statusTopic, 0, false, status)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("control: publish status %s: %v", status, err)
		}
	}
	c.ctrl = NewController(rec, publish)

	opts := mqtt.NewClientOptions().AddBroker(m.Server).SetClientID(m.ClientID).SetAutoReconnect(true)
	if m.Username != "" {
		opts.SetUsername(m.Username)
	}
	if m.Password != "" {
		opts.SetPassword(m.Password)
	}
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		token := client.Subscribe(cfg.CommandTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			c.ctrl.Handle(msg.Payload())
		})
		if token.Wait() && token.Error() != nil {
			log.Printf("control: subscribe %s: %v", cfg.CommandTopic, token.Error())
			return
		}
		log.Printf("control: listening on %s, status on %s", cfg.CommandTopic, statusTopic)
	})
	c.client = mqtt.NewClient(opts)
	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("control connect: %w", token.Error())
	}
	publish(StatusBootedUp)

	ctx, stop := context.WithCancel(context.Background())
	c.stop = stop
	if d := cfg.StatusInterval(); d > 0 {
		go c.ctrl.RunHeartbeat(ctx, d)
	}
	return c, nil
}

func (c *Client) Close() {
	c.stop()
	c.client.Disconnect(disconnectQuiesceMillis)
}
