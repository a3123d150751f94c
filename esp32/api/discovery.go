package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	DEFAULT_HOSTNAME_PREFIX = "esp32-"
	DISCOVERY_TIMEOUT       = 5 * time.Second
)

var ErrDeviceNotFound = errors.New("no device found on the local network")

// DiscoveredDevice is an HTTP service advertised over mDNS whose hostname
// matches the configured prefix.
type DiscoveredDevice struct {
	Hostname string
	IP       string
	Port     int
}

// Host is the address to configure a Client with.
func (device DiscoveredDevice) Host() string {
	if device.Port == 0 || device.Port == 80 {
		return device.IP
	}

	return net.JoinHostPort(device.IP, fmt.Sprintf("%d", device.Port))
}

// Discover browses _http._tcp services on the local network and returns the
// first one whose hostname starts with hostnamePrefix.
func Discover(ctx context.Context, hostnamePrefix string, logger *slog.Logger) (*DiscoveredDevice, error) {
	if hostnamePrefix == "" {
		hostnamePrefix = DEFAULT_HOSTNAME_PREFIX
	}
	if logger == nil {
		logger = slog.Default()
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, DISCOVERY_TIMEOUT)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		if err := resolver.Browse(ctx, "_http._tcp", "local.", entries); err != nil {
			logger.Error("Failed to browse for devices", "error", err)
		}
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return nil, ErrDeviceNotFound
			}
			if entry == nil || len(entry.AddrIPv4) == 0 {
				continue
			}

			if !strings.HasPrefix(strings.ToLower(entry.HostName), strings.ToLower(hostnamePrefix)) {
				logger.Debug("Ignoring mDNS service", "hostname", entry.HostName)
				continue
			}

			device := &DiscoveredDevice{
				Hostname: entry.HostName,
				IP:       entry.AddrIPv4[0].String(),
				Port:     entry.Port,
			}

			logger.Info("Device discovered", "hostname", device.Hostname, "ip", device.IP, "port", device.Port)

			return device, nil
		case <-ctx.Done():
			return nil, ErrDeviceNotFound
		}
	}
}
