package config_test

import (
	"fmt"

	"github.com/wonny/ibbridge/pkg/config"
)

// Example demonstrates how to use the config package
func Example() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		return
	}

	fmt.Printf("API port: %s\n", cfg.Port)
	fmt.Printf("Gateway: %s\n", cfg.Gateway.BaseURL())
	fmt.Printf("Leg delay: %s\n", cfg.Bridge.LegDelay)
}
