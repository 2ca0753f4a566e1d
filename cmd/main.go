package main

import (
	"flag"
	"fmt"
	"os"

	"ssw-access-monitor/internal/app"
	"ssw-access-monitor/internal/config"
)

func main() {
	var (
		configFile string
		inputPath  string
		follow     bool
	)
	flag.StringVar(&configFile, "config", "", "Path to configuration file")
	flag.StringVar(&inputPath, "input", "", `CSV access log to read, "-" for stdin`)
	flag.BoolVar(&follow, "follow", false, "Keep reading lines appended to the input file")
	flag.Parse()

	// Variável de ambiente quando a flag não foi informada
	if configFile == "" {
		configFile = os.Getenv("SSW_CONFIG_FILE")
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Flags têm precedência sobre arquivo e ambiente
	if inputPath != "" {
		cfg.Input.Path = inputPath
	}
	if follow {
		cfg.Input.Follow = true
	}
	if flag.NArg() > 0 && inputPath == "" {
		cfg.Input.Path = flag.Arg(0)
	}

	application, err := app.NewWithConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create application: %v\n", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}
