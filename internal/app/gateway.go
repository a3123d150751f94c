package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/monorkin/greenhouse-monitor/esp32/api"
	"github.com/monorkin/greenhouse-monitor/internal/config"
)

// DISCOVERY_COOLDOWN is how long a failed lookup is remembered. Calls made
// during the cooldown fail immediately instead of browsing again.
const DISCOVERY_COOLDOWN = 30 * time.Second

type discoverFunc func(ctx context.Context, prefix string, logger *slog.Logger) (*api.DiscoveredDevice, error)

// Gateway is the device client for the configured host. Without a configured
// host the device is looked up over mDNS on first use, and looked up again
// after a discovered device stops answering.
//
// Every call, lookup included, is bounded by the read or control timeout.
type Gateway struct {
	settings *config.Settings
	logger   *slog.Logger
	discover discoverFunc
	now      func() time.Time
	cooldown time.Duration

	lookups singleflight.Group

	mu         sync.Mutex
	client     *api.Client
	host       string
	discovered bool
	failedAt   time.Time
	failure    error
}

func NewGateway(settings *config.Settings, logger *slog.Logger) *Gateway {
	return &Gateway{
		settings: settings,
		logger:   logger,
		discover: api.Discover,
		now:      time.Now,
		cooldown: DISCOVERY_COOLDOWN,
	}
}

func (gateway *Gateway) readTimeout() time.Duration {
	if timeout := gateway.settings.ReadTimeout(); timeout > 0 {
		return timeout
	}
	return api.DEFAULT_READ_TIMEOUT
}

func (gateway *Gateway) controlTimeout() time.Duration {
	if timeout := gateway.settings.ControlTimeout(); timeout > 0 {
		return timeout
	}
	return api.DEFAULT_CONTROL_TIMEOUT
}

func (gateway *Gateway) newClient(host string) *api.Client {
	return api.NewClient(api.ClientConfig{
		Host:           host,
		ReadTimeout:    gateway.readTimeout(),
		ControlTimeout: gateway.controlTimeout(),
		Logger:         gateway.logger,
	})
}

// resolve returns the client for the device. The lookup itself runs at most
// once at a time and never holds the mutex while browsing the network.
func (gateway *Gateway) resolve(ctx context.Context, timeout time.Duration) (*api.Client, error) {
	gateway.mu.Lock()
	if gateway.client != nil {
		client := gateway.client
		gateway.mu.Unlock()
		return client, nil
	}

	if host := gateway.settings.DeviceHost; host != "" {
		gateway.host = host
		gateway.client = gateway.newClient(host)
		client := gateway.client
		gateway.mu.Unlock()
		return client, nil
	}

	if gateway.failure != nil && gateway.now().Sub(gateway.failedAt) < gateway.cooldown {
		err := gateway.failure
		gateway.mu.Unlock()
		return nil, err
	}
	gateway.mu.Unlock()

	results := gateway.lookups.DoChan("discover", func() (any, error) {
		// The lookup is shared, so it must outlive the caller that started it.
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		gateway.logger.Info("No device host configured, starting discovery", "prefix", gateway.settings.DiscoveryPrefix)

		device, err := gateway.discover(lookupCtx, gateway.settings.DiscoveryPrefix, gateway.logger)
		if err != nil {
			return nil, gateway.recordFailure(err)
		}

		return gateway.recordDevice(device.Host()), nil
	})

	select {
	case result := <-results:
		if result.Err != nil {
			return nil, result.Err
		}
		return result.Val.(*api.Client), nil
	case <-ctx.Done():
		return nil, gateway.recordFailure(ctx.Err())
	}
}

func (gateway *Gateway) recordFailure(err error) error {
	err = fmt.Errorf("%w: %w", api.ErrUnreachable, err)

	gateway.mu.Lock()
	defer gateway.mu.Unlock()

	if gateway.client == nil {
		gateway.failure = err
		gateway.failedAt = gateway.now()
	}

	return err
}

func (gateway *Gateway) recordDevice(host string) *api.Client {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()

	gateway.host = host
	gateway.client = gateway.newClient(host)
	gateway.discovered = true
	gateway.failure = nil

	return gateway.client
}

// forget drops a discovered client that stopped answering so the next call
// looks the device up again. Configured hosts are kept.
func (gateway *Gateway) forget(client *api.Client, err error) {
	if !errors.Is(err, api.ErrUnreachable) {
		return
	}

	gateway.mu.Lock()
	defer gateway.mu.Unlock()

	if gateway.discovered && gateway.client == client {
		gateway.logger.Info("Discovered device stopped answering, will look it up again", "host", gateway.host)
		gateway.client = nil
		gateway.host = ""
		gateway.discovered = false
	}
}

// Host is the device address in use, empty until the device was resolved.
func (gateway *Gateway) Host() string {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()

	return gateway.host
}

func (gateway *Gateway) FetchSnapshot(ctx context.Context) (*api.Snapshot, error) {
	timeout := gateway.readTimeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := gateway.resolve(ctx, timeout)
	if err != nil {
		return nil, err
	}

	snapshot, err := client.FetchSnapshot(ctx)
	if err != nil {
		gateway.forget(client, err)
		return nil, err
	}

	return snapshot, nil
}

func (gateway *Gateway) SendCommand(ctx context.Context, relay api.Relay, state api.RelayState) (string, error) {
	timeout := gateway.controlTimeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := gateway.resolve(ctx, timeout)
	if err != nil {
		return "", err
	}

	ack, err := client.SendCommand(ctx, relay, state)
	if err != nil {
		gateway.forget(client, err)
		return "", err
	}

	return ack, nil
}

func (gateway *Gateway) Ping(ctx context.Context) bool {
	timeout := gateway.readTimeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := gateway.resolve(ctx, timeout)
	if err != nil {
		return false
	}

	return client.Ping(ctx)
}
