package config

import (
	"flag"
	"fmt"
)

const HelpMessage = `
  nxtbus tracking core

  Usage:
    nxtbus -mode <hub-service|vehicle-service> [-config-path config.yaml]

  Modes:
    hub-service       authenticates connections, ingests fixes, multicasts updates
    vehicle-service   acquires positions (sensor or simulator) and transmits them
`

func PrintHelp() {
	if HelpMessage != "" {
		fmt.Printf("%s", HelpMessage)
	} else {
		flag.Usage()
	}
}

// PrintConfig prints the effective non-secret configuration.
func PrintConfig(cfg *Config) {
	fmt.Printf("mode: %s\n", cfg.Mode)
	fmt.Printf("log level: %s\n", cfg.LogLevel)
	fmt.Printf("hub port: %s, vehicle port: %s\n", cfg.Services.HubService, cfg.Services.VehicleService)
}
