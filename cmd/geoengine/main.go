package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/BlowhardChen/diyue-geoengine/config"
	"github.com/BlowhardChen/diyue-geoengine/internal/app"
	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
)

var (
	helpFlag   = flag.Bool("help", false, "Show help message")
	configPath = flag.String("config-path", "config.yaml", "Path to the config yaml file")
)

func main() {
	flag.Parse()
	if *helpFlag {
		config.PrintHelp()
		return
	}

	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		config.PrintHelp()
		return fmt.Errorf("load config %s: %w", *configPath, err)
	}
	config.PrintConfig(cfg)

	log := logger.InitLogger(cfg.App.Name, cfg.App.LogLevel)

	engine, err := app.NewApplication(ctx, *cfg, log)
	if err != nil {
		log.Error(ctx, "failed to init geoengine", err)
		return err
	}

	if err := engine.Run(ctx); err != nil {
		log.Error(ctx, "geoengine stopped with error", err)
		return err
	}
	log.Info(ctx, "geoengine stopped")
	return nil
}
