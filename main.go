package main

import (
	"fmt"
	"os"

	"anchor-rebalancer/internal/cli"
	"anchor-rebalancer/internal/config"
	"anchor-rebalancer/internal/logging"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger()

	if err := cli.NewRootCmd(cfg, logger).Execute(); err != nil {
		os.Exit(1)
	}
}
