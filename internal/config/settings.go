package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const ENV_PREFIX = "GREENHOUSE"

type Settings struct {
	// DeviceHost is empty until configured or discovered over mDNS.
	DeviceHost            string `json:"device_host" mapstructure:"device_host"`
	DiscoveryPrefix       string `json:"discovery_prefix" mapstructure:"discovery_prefix"`
	ReadTimeoutSeconds    int    `json:"read_timeout_seconds" mapstructure:"read_timeout_seconds"`
	ControlTimeoutSeconds int    `json:"control_timeout_seconds" mapstructure:"control_timeout_seconds"`
	PollIntervalSeconds   int    `json:"poll_interval_seconds" mapstructure:"poll_interval_seconds"`

	HTTPAddr string `json:"http_addr" mapstructure:"http_addr"`
	// CORSOrigins are the browser origins allowed to call the HTTP API.
	CORSOrigins []string `json:"cors_origins" mapstructure:"cors_origins"`

	// An empty MQTTBroker disables event publishing.
	MQTTBroker      string `json:"mqtt_broker" mapstructure:"mqtt_broker"`
	MQTTUsername    string `json:"mqtt_username" mapstructure:"mqtt_username"`
	MQTTPassword    string `json:"mqtt_password" mapstructure:"mqtt_password"`
	MQTTTopicPrefix string `json:"mqtt_topic_prefix" mapstructure:"mqtt_topic_prefix"`
}

func (s *Settings) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

func (s *Settings) ControlTimeout() time.Duration {
	return time.Duration(s.ControlTimeoutSeconds) * time.Second
}

func (s *Settings) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

func setDefaults(v *viper.Viper) {
	defaults := DefaultSettings()

	v.SetDefault("device_host", defaults.DeviceHost)
	v.SetDefault("discovery_prefix", defaults.DiscoveryPrefix)
	v.SetDefault("read_timeout_seconds", defaults.ReadTimeoutSeconds)
	v.SetDefault("control_timeout_seconds", defaults.ControlTimeoutSeconds)
	v.SetDefault("poll_interval_seconds", defaults.PollIntervalSeconds)
	v.SetDefault("http_addr", defaults.HTTPAddr)
	v.SetDefault("cors_origins", defaults.CORSOrigins)
	v.SetDefault("mqtt_broker", defaults.MQTTBroker)
	v.SetDefault("mqtt_username", defaults.MQTTUsername)
	v.SetDefault("mqtt_password", defaults.MQTTPassword)
	v.SetDefault("mqtt_topic_prefix", defaults.MQTTTopicPrefix)
}

// newViper layers GREENHOUSE_* environment variables over the defaults and,
// when path is set, over the JSON settings file.
func newViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
	}

	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func decode(v *viper.Viper) (*Settings, error) {
	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}

	return &settings, nil
}

// LoadDotEnv loads .env from the working directory and from ConfigDir.
// Variables already set in the environment win.
func LoadDotEnv() error {
	candidates := []string{".env", filepath.Join(ConfigDir(), ".env")}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}

		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	return nil
}

func DefaultSettingsPath() string {
	return filepath.Join(ConfigDir(), "settings.json")
}

func LoadOrInitializeSettingsFromDefaultLocation() (bool, *Settings) {
	return LoadOrInitializeSettings(DefaultSettingsPath())
}

// LoadOrInitializeSettings reports true when no settings file could be read
// and defaults were used instead.
func LoadOrInitializeSettings(path string) (bool, *Settings) {
	if settings, err := LoadSettings(path); err == nil {
		return false, settings
	}

	settings, err := decode(newViper(""))
	if err != nil {
		return true, DefaultSettings()
	}

	return true, settings
}

func DefaultSettings() *Settings {
	return &Settings{
		DiscoveryPrefix:       "esp32-",
		ReadTimeoutSeconds:    3,
		ControlTimeoutSeconds: 5,
		PollIntervalSeconds:   60,
		HTTPAddr:              ":8080",
		CORSOrigins:           []string{},
		MQTTTopicPrefix:       "greenhouse",
	}
}

func LoadSettings(path string) (*Settings, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	return decode(v)
}

func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

func (s *Settings) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
