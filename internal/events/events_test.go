package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

// fakeClient implements the parts of mqtt.Client the publisher uses.
type fakeClient struct {
	mqtt.Client
	mu           sync.Mutex
	connected    bool
	disconnected bool
	msgs         []published
}

func (c *fakeClient) IsConnected() bool { return c.connected }
func (c *fakeClient) Disconnect(uint)   { c.disconnected = true }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, published{topic, qos, retained, payload.([]byte)})
	return doneToken{}
}

func TestMQTTPublish(t *testing.T) {
	client := &fakeClient{connected: true}
	p := NewMQTTPublisherWithClient(client, MQTTConfig{TopicPrefix: "vessel/ss/", QoS: 1})
	assert.Equal(t, "vessel/ss/session", p.Topic())

	at := time.Date(2024, 7, 3, 10, 0, 0, 0, time.UTC)
	require.NoError(t, p.Publish(SessionEvent{Type: TypeRecording, Track: "SS8", Sequence: 8, Time: at}))

	require.Len(t, client.msgs, 1)
	msg := client.msgs[0]
	assert.Equal(t, "vessel/ss/session", msg.topic)
	assert.Equal(t, byte(1), msg.qos)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	assert.Equal(t, "recording", got["type"])
	assert.Equal(t, "SS8", got["track"])
	assert.NotContains(t, got, "error")

	p.Close()
	assert.True(t, client.disconnected)
}

func TestMQTTPublishDisconnected(t *testing.T) {
	p := NewMQTTPublisherWithClient(&fakeClient{}, MQTTConfig{})
	assert.Equal(t, "sidescan/session", p.Topic())
	assert.Error(t, p.Publish(SessionEvent{Type: TypeIdle}))

	var nilPub *MQTTPublisher
	assert.Error(t, nilPub.Publish(SessionEvent{}))
	nilPub.Close()
}

func TestNewMQTTPublisherRequiresBroker(t *testing.T) {
	_, err := NewMQTTPublisher(MQTTConfig{})
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(SessionEvent{Type: TypeArmed}))
	p.Close()
}
