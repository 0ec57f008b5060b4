package main

import (
	"os"

	"github.com/wonny/ibbridge/cmd/ibbridge/commands"
)

// main is the entry point for the ibbridge CLI
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
