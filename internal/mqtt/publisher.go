// Package mqtt publishes stored readings and relay actuations to an MQTT
// broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/monorkin/greenhouse-monitor/esp32/api"
	"github.com/monorkin/greenhouse-monitor/internal/models"
)

const (
	QOS                = 1
	CLIENT_ID_PREFIX   = "greenhouse-monitor-"
	CONNECT_TIMEOUT    = 10 * time.Second
	DISCONNECT_QUIESCE = 250
)

var ErrNotConnected = errors.New("mqtt client not connected")

type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// TopicPrefix is prepended to every topic, e.g. greenhouse/readings.
	TopicPrefix string
	Logger      *slog.Logger
}

type Publisher struct {
	client      paho.Client
	topicPrefix string
	logger      *slog.Logger
}

type readingEvent struct {
	Event string `json:"event"`
	models.Reading
}

type actuationEvent struct {
	Event     string    `json:"event"`
	Relay     int       `json:"relay"`
	RelayName string    `json:"relay_name"`
	State     string    `json:"state"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// Connect dials the broker and returns a publisher once the connection is
// established.
func Connect(config ClientConfig) (*Publisher, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	clientID := config.ClientID
	if clientID == "" {
		clientID = CLIENT_ID_PREFIX + uuid.NewString()[:8]
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(clientID)
	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(CONNECT_TIMEOUT)
	opts.SetOnConnectHandler(func(client paho.Client) {
		logger.Info("MQTT connection established", "broker", config.Broker)
	})
	opts.SetConnectionLostHandler(func(client paho.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
	})

	client := paho.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(CONNECT_TIMEOUT) {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: timed out", config.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", config.Broker, err)
	}

	return NewPublisher(client, config.TopicPrefix, logger), nil
}

func NewPublisher(client paho.Client, topicPrefix string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Publisher{
		client:      client,
		topicPrefix: topicPrefix,
		logger:      logger,
	}
}

func (publisher *Publisher) ReadingsTopic() string {
	return publisher.topic("readings")
}

func (publisher *Publisher) ActuationTopic(relay api.Relay) string {
	return publisher.topic("actuations/" + relay.String())
}

func (publisher *Publisher) topic(suffix string) string {
	if publisher.topicPrefix == "" {
		return suffix
	}

	return publisher.topicPrefix + "/" + suffix
}

func (publisher *Publisher) PublishReading(ctx context.Context, reading models.Reading) error {
	return publisher.publish(ctx, publisher.ReadingsTopic(), readingEvent{Event: "reading", Reading: reading})
}

func (publisher *Publisher) PublishActuation(ctx context.Context, entry models.ActuationLogEntry) error {
	relay := api.Relay(entry.Relay)

	return publisher.publish(ctx, publisher.ActuationTopic(relay), actuationEvent{
		Event:     "actuation",
		Relay:     entry.Relay,
		RelayName: relay.String(),
		State:     entry.State,
		Response:  entry.Response,
		Timestamp: entry.Timestamp,
	})
}

func (publisher *Publisher) publish(ctx context.Context, topic string, event any) error {
	if !publisher.client.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	token := publisher.client.Publish(topic, QOS, false, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("failed to publish to %s: %w", topic, ctx.Err())
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	publisher.logger.Debug("Published event", "topic", topic)

	return nil
}

func (publisher *Publisher) Close() {
	publisher.client.Disconnect(DISCONNECT_QUIESCE)
	publisher.logger.Debug("MQTT client disconnected")
}
