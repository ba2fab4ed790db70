// Package events publishes session transitions for external consumers.
package events

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/sidescan/internal/monitoring"
)

// Session event types.
const (
	TypeArmed       = "armed"
	TypeRecording   = "recording"
	TypeIdle        = "idle"
	TypeStartFailed = "start-failed"
)

// SessionEvent is one published session transition.
type SessionEvent struct {
	Type     string    `json:"type"`
	Project  string    `json:"project,omitempty"`
	Track    string    `json:"track,omitempty"`
	Sequence int       `json:"sequence,omitempty"`
	Error    string    `json:"error,omitempty"`
	Time     time.Time `json:"time"`
}

// Publisher delivers session events. Implementations must not block the
// caller on network I/O.
type Publisher interface {
	Publish(ev SessionEvent) error
	Close()
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(SessionEvent) error { return nil }
func (Nop) Close()                     {}

// MQTTConfig configures the MQTT publisher.
type MQTTConfig struct {
	Broker      string
	TopicPrefix string
	QoS         byte
	Retain      bool
	Username    string
	Password    string
}

// MQTTPublisher publishes JSON events on <prefix>/session.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	qos    byte
	retain bool
}

func generateClientID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "sidescan_" + hex.EncodeToString(b)
}

// NewMQTTPublisher connects to the broker. A failed initial connection is
// logged and retried in the background; events published meanwhile are
// dropped with an error.
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker address is empty")
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(generateClientID())
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		monitoring.Opsf("[events] connected to %s", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		monitoring.Opsf("[events] connection lost: %v (will auto-reconnect)", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.WaitTimeout(5 * time.Second) {
		if err := token.Error(); err != nil {
			monitoring.Opsf("[events] initial connection failed: %v (will retry in background)", err)
		}
	} else {
		monitoring.Opsf("[events] connection timeout (will retry in background)")
	}
	return NewMQTTPublisherWithClient(client, cfg), nil
}

// NewMQTTPublisherWithClient wraps an existing client.
func NewMQTTPublisherWithClient(client mqtt.Client, cfg MQTTConfig) *MQTTPublisher {
	prefix := strings.TrimSuffix(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = "sidescan"
	}
	return &MQTTPublisher{client: client, topic: prefix + "/session", qos: cfg.QoS, retain: cfg.Retain}
}

// Topic returns the topic events are published on.
func (p *MQTTPublisher) Topic() string { return p.topic }

// Publish sends ev without waiting for the broker acknowledgement.
func (p *MQTTPublisher) Publish(ev SessionEvent) error {
	if p == nil || !p.client.IsConnected() {
		return fmt.Errorf("mqtt not connected")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	token := p.client.Publish(p.topic, p.qos, p.retain, data)
	go func() {
		if token.Wait() && token.Error() != nil {
			monitoring.Opsf("[events] failed to publish to %s: %v", p.topic, token.Error())
		}
	}()
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	if p != nil && p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
