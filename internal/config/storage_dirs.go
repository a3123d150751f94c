package config

import (
	"os"
	"path/filepath"
)

const (
	APP_DIR_NAME = "greenhouse-monitor"
)

// DataDir holds the reading database.
func DataDir() string {
	return appDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// ConfigDir holds settings.json and an optional .env file.
func ConfigDir() string {
	return appDir("XDG_CONFIG_HOME", ".config")
}

// appDir resolves the application directory below an XDG base directory.
// When neither the variable nor the conventional base under the home
// directory exists, a dot directory in home is used instead.
func appDir(xdgVariable string, homeBase string) string {
	if base := os.Getenv(xdgVariable); base != "" {
		return filepath.Join(base, APP_DIR_NAME)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		if cwd, err := os.Getwd(); err == nil {
			return cwd
		}
		return "."
	}

	if info, err := os.Stat(filepath.Join(home, homeBase)); err == nil && info.IsDir() {
		return filepath.Join(home, homeBase, APP_DIR_NAME)
	}

	return filepath.Join(home, "."+APP_DIR_NAME)
}
