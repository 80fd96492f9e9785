package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/artforge/internal/buildinfo"
	"github.com/dmitrijs2005/artforge/internal/client/cli"
	"github.com/dmitrijs2005/artforge/internal/client/config"
	"github.com/dmitrijs2005/artforge/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	cfg := config.LoadConfig()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app, err := cli.Build(ctx, cfg, logger, os.Stdin, os.Stdout)
	if err != nil {
		log.Fatalf("%v", err)
	}

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error(ctx, "application stopped with error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		// a pending read on stdin cannot be interrupted
		app.Close()
	}
}
