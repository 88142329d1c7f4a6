// ====================================
// File: cmd/router/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/dex-router/internal/app"
	"github.com/rovshanmuradov/dex-router/internal/config"
	"github.com/rovshanmuradov/dex-router/internal/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	os.Exit(run(*configPath))
}

// run keeps deferred logger syncs ahead of os.Exit.
func run(configPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	log := logger.New(cfg.Log)
	defer func() {
		if err := logger.Sync(log); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()
	log.Info("Starting DEX order router", zap.String("config", configPath))

	router, err := app.New(cfg, log)
	if err != nil {
		log.Error("Failed to initialize router", zap.Error(err))
		return 1
	}

	if err := router.Run(context.Background()); err != nil {
		log.Error("Router stopped with error", zap.Error(err))
		return 1
	}
	log.Info("Router stopped")
	return 0
}
