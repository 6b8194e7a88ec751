package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"photostore/internal/config"
	"photostore/internal/daemon"
	"photostore/internal/logging"
	"photostore/internal/metrics"
	"photostore/internal/photos"
	"photostore/internal/state"
	"photostore/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "photostored: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("photostored", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	defaultConfigPath, err := state.ConfigPath()
	if err != nil {
		return fmt.Errorf("state path error: %w", err)
	}
	defaultEnvPath, err := state.EnvPath()
	if err != nil {
		return fmt.Errorf("state path error: %w", err)
	}

	configPath := fs.String("config", defaultConfigPath, "path to config file")
	envPath := fs.String("env", defaultEnvPath, "path to dotenv file with store secrets")
	addr := fs.String("addr", "", "listen address, overrides server.addr")
	allowRemote := fs.Bool("allow-remote", false, "permit listening on non-loopback addresses")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := state.LoadEnvFile(*envPath); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	listenAddr := cfg.Server.Addr
	if *addr != "" {
		listenAddr = *addr
	}
	listenAddr, err = daemon.ValidateListenAddress(listenAddr, *allowRemote)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}

	localDir, err := state.LocalStoreDir()
	if err != nil {
		return err
	}
	backend, err := storage.NewFromConfig(*cfg, localDir)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}

	m := metrics.New()
	opts := append(photos.ConfigOptions(cfg), photos.WithLogger(logger), photos.WithObserver(m))
	d := daemon.New(photos.NewService(backend, opts...), m, logger)
	d.SetAddress(listenAddr)
	d.SetAuthToken(os.Getenv(daemon.EnvAuthToken))
	return d.Run(ctx)
}
