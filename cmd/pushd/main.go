// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/pushd/internal/config"
	xglog "github.com/ManuGH/pushd/internal/log"
	"github.com/ManuGH/pushd/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	path := strings.TrimSpace(*configPath)
	if path == "" {
		path = strings.TrimSpace(config.ParseString(config.EnvPrefix+"CONFIG", ""))
	}

	// Configure once with the env level; the loaded level is applied below.
	xglog.Configure(xglog.Config{Service: "pushd"})
	logger := xglog.WithComponent("daemon")

	cfg, err := config.Load(path)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "config.load_failed").
			Str("config_path", path).
			Msg("failed to load configuration")
	}
	if err := xglog.SetLevel(cfg.Log.Level); err != nil {
		logger.Warn().Err(err).Str("level", cfg.Log.Level).Msg("ignoring invalid log level")
	}

	source := "env+defaults"
	if path != "" {
		source = "file"
	}
	logger.Info().
		Str(xglog.FieldEvent, "config.loaded").
		Str("source", source).
		Str("path", path).
		Str("version", version.Version).
		Msg("loaded configuration")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var holder *config.Holder
	if path != "" {
		holder = config.NewHolder(cfg, path)
	}

	app, err := buildApp(ctx, cfg, holder, nil)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "startup.failed").
			Msg("failed to build daemon")
	}

	if err := app.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("daemon stopped with error")
	}
	logger.Info().Msg("daemon stopped")
}
