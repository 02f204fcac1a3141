package main

import (
	"fmt"
	"os"

	"github.com/danmuck/ircctl/internal/engine"
	"github.com/danmuck/ircctl/internal/logging"
)

func main() {
	logging.ConfigureRuntime()

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "ircctl: %v\n", err)
		os.Exit(2)
	}
	cfg, err := loadServiceConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ircctl: %v\n", err)
		os.Exit(1)
	}

	svc := engine.NewService(cfg)
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "ircctl: %v\n", err)
		os.Exit(1)
	}
}
