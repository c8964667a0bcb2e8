package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"duochat/internal/app"
	"duochat/pkg/config"
	"duochat/pkg/logger"
	"duochat/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load(".env")

	flags := config.ParseConfigFlags()

	fileCfg, fileExists, err := config.ParseConfigFile(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config file: %v\n", err)
		os.Exit(1)
	}
	envCfg, envRes := config.ParseConfigEnvs()

	eff, err := config.LoadEffectiveConfig(flags, fileCfg, fileExists, envCfg, envRes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to resolve configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(eff.Config.Logging.Level)
	logger.Info("starting", "version", version, "addr", eff.Addr, "db", eff.DBPath, "config_source", eff.Source)

	a, err := app.New(eff, version, commit, buildDate)
	if err != nil {
		shutdown.Abort("startup failed", err, eff.DBPath)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		shutdown.Abort("server terminated", err, eff.DBPath)
	}
	logger.Info("stopped")
}
