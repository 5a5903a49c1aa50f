package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"partysync/internal/config"
	"partysync/internal/logging"
	"partysync/internal/server"
	"syscall"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flagSet := pflag.NewFlagSet("partysync", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.Profile, "profile", cfg.Profile, "game profile YAML")
	flagSet.StringVar(&cfg.Roster, "roster", cfg.Roster, "client roster written by the launcher")
	flagSet.StringVarP(&cfg.Port, "port", "p", cfg.Port, "control server port")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Run(ctx, cfg, logger)
}
