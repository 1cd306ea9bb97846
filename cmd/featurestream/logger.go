package main

import (
	"os"
	"time"

	"github.com/coderxlab/featurestream/config"
	"github.com/coderxlab/featurestream/logger"
	"github.com/coderxlab/featurestream/plugins/zaplogger"
	"github.com/coderxlab/featurestream/plugins/zerologlogger"
	"github.com/rs/zerolog"
	"go.uber.org/zap"
)

// newLogger builds the configured backend. The returned func flushes it.
func newLogger(cfg config.LogConfig) (logger.Logger, func(), error) {
	if cfg.Backend == "zerolog" {
		level, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, err
		}

		var zl zerolog.Logger
		if cfg.Format == "console" {
			zl = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		} else {
			zl = zerolog.New(os.Stderr)
		}
		zl = zl.Level(level).With().Timestamp().Logger()
		return zerologlogger.New(zl), func() {}, nil
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level

	zl, err := zc.Build()
	if err != nil {
		return nil, nil, err
	}
	zap.ReplaceGlobals(zl)
	return zaplogger.New(zl), func() { _ = zl.Sync() }, nil
}
