package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coderxlab/featurestream"
	"github.com/coderxlab/featurestream/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("FEATURESTREAM_CONFIG"), "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	l, flush, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app, err := featurestream.Build(ctx, cfg, l)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		l.Info("Received termination signal, shutting down...")
		app.Close()
	}()

	l.Info(
		"Starting featurestream",
		"version", featurestream.Version,
		"topic", cfg.Kafka.Topic,
		"group", cfg.Kafka.GroupID,
		"sink", cfg.Sink.Kind,
		"target", cfg.Sink.Target,
	)
	return app.Run(ctx)
}
