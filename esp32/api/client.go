package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/monorkin/greenhouse-monitor/internal/version"
)

const (
	DEFAULT_READ_TIMEOUT    = 3 * time.Second
	DEFAULT_CONTROL_TIMEOUT = 5 * time.Second
)

// ErrUnreachable is returned, wrapped, by every device call that fails for
// any reason: transport error, timeout, unexpected status or a body that
// cannot be parsed.
var ErrUnreachable = errors.New("device unreachable")

type Channel string

const (
	ChannelHumidity    Channel = "humidity"
	ChannelTemperature Channel = "temperature"
	ChannelSoil        Channel = "soil"
	ChannelLight       Channel = "light"
)

type Relay int

const (
	RelayPump  Relay = 1
	RelayLight Relay = 2
	RelayFan   Relay = 3
)

func (relay Relay) Valid() bool {
	return relay >= RelayPump && relay <= RelayFan
}

func (relay Relay) String() string {
	switch relay {
	case RelayPump:
		return "pump"
	case RelayLight:
		return "light"
	case RelayFan:
		return "fan"
	default:
		return fmt.Sprintf("relay_%d", int(relay))
	}
}

type RelayState string

const (
	RelayOn  RelayState = "on"
	RelayOff RelayState = "off"
)

func (state RelayState) Valid() bool {
	return state == RelayOn || state == RelayOff
}

type ClientConfig struct {
	// Host is the device address, optionally with a port.
	Host           string
	ReadTimeout    time.Duration
	ControlTimeout time.Duration
	Logger         *slog.Logger
}

type Client struct {
	httpClient     http.Client
	baseURL        string
	readTimeout    time.Duration
	controlTimeout time.Duration
	logger         *slog.Logger
}

func NewClient(config ClientConfig) *Client {
	readTimeout := config.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = DEFAULT_READ_TIMEOUT
	}

	controlTimeout := config.ControlTimeout
	if controlTimeout <= 0 {
		controlTimeout = DEFAULT_CONTROL_TIMEOUT
	}

	baseURL := strings.TrimSuffix(config.Host, "/")
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}

	return &Client{
		httpClient:     http.Client{},
		baseURL:        baseURL,
		readTimeout:    readTimeout,
		controlTimeout: controlTimeout,
		logger:         config.Logger,
	}
}

func (client *Client) log(level slog.Level, msg string, args ...any) {
	if client.logger != nil {
		client.logger.Log(context.Background(), level, msg, args...)
	}
}

// ReadChannel fetches the raw, whitespace-trimmed value of one sensor channel.
func (client *Client) ReadChannel(ctx context.Context, channel Channel) (string, error) {
	body, err := client.get(ctx, "/"+string(channel), client.readTimeout)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", channel, err)
	}

	return strings.TrimSpace(body), nil
}

// SendCommand switches a relay and returns the device's acknowledgement
// exactly as sent.
func (client *Client) SendCommand(ctx context.Context, relay Relay, state RelayState) (string, error) {
	query := url.Values{}
	query.Set("relay", fmt.Sprintf("%d", int(relay)))
	query.Set("state", string(state))

	body, err := client.get(ctx, "/control?"+query.Encode(), client.controlTimeout)
	if err != nil {
		return "", fmt.Errorf("failed to send %s %s command: %w", relay, state, err)
	}

	client.log(slog.LevelDebug, "Control command acknowledged", "relay", relay.String(), "state", state, "response", body)

	return body, nil
}

// Ping reports whether the device answers on its root endpoint.
func (client *Client) Ping(ctx context.Context) bool {
	_, err := client.get(ctx, "/", client.readTimeout)
	if err != nil {
		client.log(slog.LevelDebug, "Device ping failed", "error", err)
		return false
	}

	return true
}

func (client *Client) get(ctx context.Context, path string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, client.baseURL+path, nil)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %w", ErrUnreachable, err)
	}

	request.Header.Set("User-Agent", version.UserAgent())

	response, err := client.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status %s", ErrUnreachable, response.Status)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response body: %w", ErrUnreachable, err)
	}

	return string(body), nil
}
