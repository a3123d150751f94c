package main

import (
	"os"

	"github.com/monorkin/greenhouse-monitor/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
