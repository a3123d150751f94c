package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monorkin/greenhouse-monitor/internal/models"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	token := &fakeToken{done: make(chan struct{}), err: err}
	close(token.done)
	return token
}

func (token *fakeToken) Wait() bool                       { <-token.done; return true }
func (token *fakeToken) WaitTimeout(d time.Duration) bool { return true }
func (token *fakeToken) Done() <-chan struct{}            { return token.done }
func (token *fakeToken) Error() error                     { return token.err }

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient implements only what the publisher calls; anything else panics.
type fakeClient struct {
	paho.Client

	connected bool
	token     paho.Token
	messages  []message
}

func (client *fakeClient) IsConnected() bool {
	return client.connected
}

func (client *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	client.messages = append(client.messages, message{topic, qos, retained, payload.([]byte)})
	if client.token != nil {
		return client.token
	}
	return completedToken(nil)
}

func TestPublishReading(t *testing.T) {
	client := &fakeClient{connected: true}
	publisher := NewPublisher(client, "greenhouse", nil)

	reading := models.Reading{
		ID:          7,
		Humidity:    55,
		Temperature: 24.5,
		Soil:        50,
		Light:       1200,
		CreatedAt:   time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, publisher.PublishReading(context.Background(), reading))

	require.Len(t, client.messages, 1)
	published := client.messages[0]
	assert.Equal(t, "greenhouse/readings", published.topic)
	assert.Equal(t, byte(QOS), published.qos)
	assert.False(t, published.retained)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(published.payload, &payload))
	assert.Equal(t, "reading", payload["event"])
	assert.Equal(t, 7.0, payload["id"])
	assert.Equal(t, 1200.0, payload["light"])
	assert.NotContains(t, payload, "DedupBucket")
}

func TestPublishActuation(t *testing.T) {
	client := &fakeClient{connected: true}
	publisher := NewPublisher(client, "greenhouse", nil)

	err := publisher.PublishActuation(context.Background(), models.ActuationLogEntry{
		Relay:    3,
		State:    "on",
		Response: "Relay 3 turned ON",
	})
	require.NoError(t, err)

	require.Len(t, client.messages, 1)
	assert.Equal(t, "greenhouse/actuations/fan", client.messages[0].topic)

	var payload actuationEvent
	require.NoError(t, json.Unmarshal(client.messages[0].payload, &payload))
	assert.Equal(t, "fan", payload.RelayName)
	assert.Equal(t, "Relay 3 turned ON", payload.Response)
}

func TestPublishWithoutPrefix(t *testing.T) {
	publisher := NewPublisher(&fakeClient{connected: true}, "", nil)

	assert.Equal(t, "readings", publisher.ReadingsTopic())
}

func TestPublishWhileDisconnected(t *testing.T) {
	client := &fakeClient{}
	publisher := NewPublisher(client, "greenhouse", nil)

	err := publisher.PublishReading(context.Background(), models.Reading{})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, client.messages)
}

func TestPublishReportsBrokerErrors(t *testing.T) {
	brokerErr := errors.New("not authorized")
	client := &fakeClient{connected: true, token: completedToken(brokerErr)}
	publisher := NewPublisher(client, "greenhouse", nil)

	err := publisher.PublishReading(context.Background(), models.Reading{})
	assert.ErrorIs(t, err, brokerErr)
}

func TestPublishHonoursContext(t *testing.T) {
	client := &fakeClient{connected: true, token: &fakeToken{done: make(chan struct{})}}
	publisher := NewPublisher(client, "greenhouse", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := publisher.PublishReading(ctx, models.Reading{})
	assert.ErrorIs(t, err, context.Canceled)
}
