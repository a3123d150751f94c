package version

import "runtime"

// Set at build time: -ldflags "-X github.com/monorkin/greenhouse-monitor/internal/version.Version=v1.2.0"
var Version = "dev"

func GetVersion() string {
	return Version
}

// UserAgent identifies the monitor in requests it sends to the device.
func UserAgent() string {
	return "Greenhouse Monitor/" + Version + " (" + runtime.GOOS + ")"
}
