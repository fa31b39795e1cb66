// Command absentctl manages absence records against an absencetracker authority.
package main

import (
	"errors"
	"fmt"
	"os"

	"absencetracker/internal/config"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "absentctl"
)

func main() {
	cmd, shutdown := rootCmd(config.Load())
	err := cmd.Execute()
	if err := errors.Join(err, shutdown()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
