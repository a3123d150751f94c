package config

import (
	"os"
	"path/filepath"
)

const (
	DB_PATH_ENV = "GREENHOUSE_MONITOR_DB_PATH"
	DB_NAME     = "greenhouse.sqlite"
)

// DBPath is the reading database location, overridable through DB_PATH_ENV.
func DBPath() string {
	if dbPath := os.Getenv(DB_PATH_ENV); dbPath != "" {
		return dbPath
	}

	return filepath.Join(DataDir(), DB_NAME)
}
