package cli

import (
	"fmt"
	"os"

	"photostore/internal/config"
	"photostore/internal/logging"
	"photostore/internal/photos"
	"photostore/internal/state"
	"photostore/internal/storage"
)

func openService(configPath, envPath string) (*photos.Service, error) {
	if err := state.LoadEnvFile(envPath); err != nil {
		return nil, err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}

	localDir, err := state.LocalStoreDir()
	if err != nil {
		return nil, err
	}
	backend, err := storage.NewFromConfig(*cfg, localDir)
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}

	opts := append(photos.ConfigOptions(cfg), photos.WithLogger(logger))
	return photos.NewService(backend, opts...), nil
}
