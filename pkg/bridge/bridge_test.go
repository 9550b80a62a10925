package bridge

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"inverter/pkg/drivers/simulator"
	"inverter/pkg/inverter"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type publication struct {
	topic   string
	payload []byte
}

// fakeClient records publications and subscriptions.
type fakeClient struct {
	mu           sync.Mutex
	connected    bool
	published    []publication
	subscribed   []string
	unsubscribed []string
}

func (c *fakeClient) IsConnected() bool       { return c.connected }
func (c *fakeClient) IsConnectionOpen() bool  { return c.connected }
func (c *fakeClient) Connect() mqtt.Token     { return &fakeToken{} }
func (c *fakeClient) Disconnect(quiesce uint) {}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, publication{topic: topic, payload: payload.([]byte)})
	return &fakeToken{}
}

func (c *fakeClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, topic)
	return &fakeToken{}
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return &fakeToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = append(c.unsubscribed, topics...)
	return &fakeToken{}
}

func (c *fakeClient) AddRoute(topic string, callback mqtt.MessageHandler) {}

func (c *fakeClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

func (c *fakeClient) last(t *testing.T) publication {
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.published)
	return c.published[len(c.published)-1]
}

func testLogger() log.FieldLogger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newBridge(t *testing.T, ready bool) (*Bridge, *fakeClient) {
	sim, err := simulator.New(simulator.DefaultPlant, nil, testLogger())
	require.NoError(t, err)

	session := inverter.NewSession(sim, inverter.Options{}, testLogger())
	t.Cleanup(session.Close)

	if ready {
		require.NoError(t, session.Initialize("yasdi.ini"))
		require.NoError(t, session.DetectDevices(1))
	}

	client := &fakeClient{connected: true}
	return New(client, session, "solar/", time.Hour, testLogger()), client
}

func TestPublishTelemetry(t *testing.T) {
	b, client := newBridge(t, true)

	b.publishTelemetry()

	pub := client.last(t)
	assert.Equal(t, "solar/1001/telemetry", pub.topic)

	var msg telemetryMsg
	require.NoError(t, json.Unmarshal(pub.payload, &msg))
	assert.Equal(t, "SB_3000", msg.Device)
	assert.NotEmpty(t, msg.Timestamp)
	assert.Equal(t, inverter.Reading{Value: "1500", Unit: "W", NumericValue: 1500}, msg.Channels["Pac"])
}

func TestPublishTelemetryNotInitialized(t *testing.T) {
	b, client := newBridge(t, false)

	b.publishTelemetry()
	assert.Empty(t, client.published)
}

func TestSetHandler(t *testing.T) {
	b, client := newBridge(t, true)

	tests := []struct {
		name    string
		topic   string
		payload string
		result  string
		outcome inverter.WriteOutcome
	}{
		{
			name:    "Valid write",
			topic:   "solar/1001/set/Pac",
			payload: "2000",
			result:  "solar/1001/result/Pac",
			outcome: inverter.WriteOutcome{Success: true, Code: inverter.KindOK},
		},
		{
			name:    "Out of range",
			topic:   "solar/1001/set/Pac",
			payload: " 5000\n",
			result:  "solar/1001/result/Pac",
			outcome: inverter.WriteOutcome{
				Code:       inverter.KindValueNotValid,
				Message:    "Value out of range",
				ValidRange: &inverter.Range{Min: 0, Max: 3000},
			},
		},
		{
			name:    "Invalid payload",
			topic:   "solar/1001/set/Pac",
			payload: "full",
			result:  "solar/1001/result/Pac",
			outcome: inverter.WriteOutcome{Code: inverter.KindValueNotValid, Message: `invalid value "full"`},
		},
		{
			name:    "NaN payload",
			topic:   "solar/1001/set/Betriebsart",
			payload: "NaN",
			result:  "solar/1001/result/Betriebsart",
			outcome: inverter.WriteOutcome{Code: inverter.KindValueNotValid, Message: `invalid value "NaN"`},
		},
		{
			name:    "Unknown channel",
			topic:   "solar/1001/set/Qac",
			payload: "1",
			result:  "solar/1001/result/Qac",
			outcome: inverter.WriteOutcome{Code: inverter.KindUnknown, Message: inverter.ErrChannelNotFound.Error()},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b.setHandler(client, &fakeMessage{topic: tc.topic, payload: []byte(tc.payload)})

			pub := client.last(t)
			assert.Equal(t, tc.result, pub.topic)

			var outcome inverter.WriteOutcome
			require.NoError(t, json.Unmarshal(pub.payload, &outcome))
			assert.Equal(t, tc.outcome, outcome)
		})
	}
}

func TestSetHandlerIgnoresBadTopics(t *testing.T) {
	b, client := newBridge(t, true)

	for _, topic := range []string{"other/1001/set/Pac", "solar/abc/set/Pac", "solar/1001/get/Pac", "solar/1001/set/"} {
		b.setHandler(client, &fakeMessage{topic: topic, payload: []byte("1")})
	}
	assert.Empty(t, client.published)
}

func TestRun(t *testing.T) {
	b, client := newBridge(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- b.Run(ctx) }()

	assert.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return len(client.published) > 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{"solar/+/set/+"}, client.subscribed)
	assert.Equal(t, []string{"solar/+/set/+"}, client.unsubscribed)
}

func TestRunNotConnected(t *testing.T) {
	b, client := newBridge(t, true)
	client.connected = false

	assert.ErrorIs(t, b.Run(context.Background()), ErrNotConnected)
}
