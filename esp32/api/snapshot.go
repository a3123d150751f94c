package api

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const SOIL_LABEL_SEPARATOR = "|"

// SoilReading is the parsed form of the soil channel's "value|label" body.
// HasLabel is false when the device sent no (or an empty) label.
type SoilReading struct {
	Value    int
	Label    string
	HasLabel bool
}

// Snapshot holds one value per channel, all read in the same attempt.
type Snapshot struct {
	Humidity    float64
	Temperature float64
	Soil        SoilReading
	Light       int
	FetchedAt   time.Time
}

func ParseSoil(raw string) (SoilReading, error) {
	valuePart, label, _ := strings.Cut(strings.TrimSpace(raw), SOIL_LABEL_SEPARATOR)

	value, err := parseInt(valuePart)
	if err != nil {
		return SoilReading{}, fmt.Errorf("invalid soil value %q: %w", raw, err)
	}

	label = strings.TrimSpace(label)

	return SoilReading{
		Value:    value,
		Label:    label,
		HasLabel: label != "",
	}, nil
}

func parseFloat(raw string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(raw), 64)
}

// parseInt accepts decimal bodies such as "45.0" and truncates them.
func parseInt(raw string) (int, error) {
	value, err := parseFloat(raw)
	if err != nil {
		return 0, err
	}

	return int(value), nil
}

// FetchSnapshot reads all four channels concurrently. The attempt is all or
// nothing: if any channel fails, no values are returned and the error wraps
// ErrUnreachable.
func (client *Client) FetchSnapshot(ctx context.Context) (*Snapshot, error) {
	group, ctx := errgroup.WithContext(ctx)
	snapshot := &Snapshot{}

	group.Go(func() error {
		raw, err := client.ReadChannel(ctx, ChannelHumidity)
		if err != nil {
			return err
		}
		snapshot.Humidity, err = parseFloat(raw)
		return channelParseError(ChannelHumidity, raw, err)
	})

	group.Go(func() error {
		raw, err := client.ReadChannel(ctx, ChannelTemperature)
		if err != nil {
			return err
		}
		snapshot.Temperature, err = parseFloat(raw)
		return channelParseError(ChannelTemperature, raw, err)
	})

	group.Go(func() error {
		raw, err := client.ReadChannel(ctx, ChannelSoil)
		if err != nil {
			return err
		}
		snapshot.Soil, err = ParseSoil(raw)
		return channelParseError(ChannelSoil, raw, err)
	})

	group.Go(func() error {
		raw, err := client.ReadChannel(ctx, ChannelLight)
		if err != nil {
			return err
		}
		snapshot.Light, err = parseInt(raw)
		return channelParseError(ChannelLight, raw, err)
	})

	if err := group.Wait(); err != nil {
		client.log(slog.LevelWarn, "Snapshot attempt failed", "error", err)
		return nil, err
	}

	snapshot.FetchedAt = time.Now().UTC()

	client.log(slog.LevelDebug, "Snapshot fetched",
		"humidity", snapshot.Humidity,
		"temperature", snapshot.Temperature,
		"soil", snapshot.Soil.Value,
		"light", snapshot.Light,
	)

	return snapshot, nil
}

func channelParseError(channel Channel, raw string, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%w: unparsable %s value %q: %w", ErrUnreachable, channel, raw, err)
}
