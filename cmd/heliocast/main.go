package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/heliocast/heliocast/pkg/estimator"
	"github.com/heliocast/heliocast/pkg/log"
	"github.com/heliocast/heliocast/pkg/openmeteo"
	"github.com/heliocast/heliocast/pkg/types"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
)

func main() {
	// init packages
	client := openmeteo.Configured()
	forecaster := estimator.Configured(client)

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	log.SetDefaultLogLevel(level)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := client.Validate(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid api configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if err := forecaster.Validate(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid forecast configuration", slog.Any("error", err))
		os.Exit(1)
	}

	est, stats, err := forecaster.Estimate(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "forecast cycle failed", slog.Any("error", err))
		os.Exit(1)
	}

	out := struct {
		Estimate *types.Estimate       `json:"estimate"`
		Stats    types.AdjustmentStats `json:"stats"`
	}{est, stats}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to encode output", slog.Any("error", err))
		os.Exit(1)
	}
}
