// Package mqtt publishes the alert output level and alert notices to an MQTT
// broker, where the buzzer relay and sibling displays subscribe.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/muezzin/internal/alert"
)

const (
	DefaultTopic   = "muezzin/{device}/buzzer"
	publishTimeout = 2 * time.Second
	qos            = 1
)

// Publisher is the slice of paho.Client the sink uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

type Config struct {
	BrokerURL string
	ClientID  string
	// Topic may contain {device}, replaced by DeviceID.
	Topic    string
	DeviceID string
}

// SignalSink maps alert output to retained "on"/"off" messages on the
// buzzer topic and notices to JSON on {topic}/notice.
type SignalSink struct {
	pub    Publisher
	client paho.Client
	topic  string
}

var (
	_ alert.Sink     = (*SignalSink)(nil)
	_ alert.Notifier = (*SignalSink)(nil)
)

// ExpandTopic substitutes the device id into a topic template.
func ExpandTopic(tmpl, deviceID string) string {
	if tmpl == "" {
		tmpl = DefaultTopic
	}
	if deviceID == "" {
		deviceID = "default"
	}
	return strings.ReplaceAll(tmpl, "{device}", deviceID)
}

func NewSignalSink(pub Publisher, topic string) *SignalSink {
	return &SignalSink{pub: pub, topic: topic}
}

// Connect dials the broker and returns a sink bound to it. The client
// reconnects on its own after a lost connection.
func Connect(cfg Config) (*SignalSink, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("mqtt broker url is required")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "muezzin-" + uuid.NewString()[:8]
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetOrderMatters(true)
	opts.OnConnect = func(paho.Client) {
		log.Info().Str("broker", cfg.BrokerURL).Str("client_id", clientID).Msg("connected to mqtt broker")
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Warn().Err(err).Str("broker", cfg.BrokerURL).Msg("mqtt connection lost")
	}

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker: %w", token.Error())
	}

	s := NewSignalSink(client, ExpandTopic(cfg.Topic, cfg.DeviceID))
	s.client = client
	return s, nil
}

func (s *SignalSink) Topic() string {
	return s.topic
}

func (s *SignalSink) Set(on bool) error {
	payload := "off"
	if on {
		payload = "on"
	}
	return s.publish(s.topic, true, []byte(payload))
}

func (s *SignalSink) Notify(n alert.Notice) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notice: %w", err)
	}
	return s.publish(s.topic+"/notice", false, body)
}

func (s *SignalSink) publish(topic string, retained bool, payload []byte) error {
	token := s.pub.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Close drives the output low and disconnects.
func (s *SignalSink) Close() {
	if err := s.Set(false); err != nil {
		log.Warn().Err(err).Msg("could not clear buzzer on shutdown")
	}
	if s.client != nil {
		s.client.Disconnect(250)
		log.Info().Msg("mqtt client disconnected")
	}
}
