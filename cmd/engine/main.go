package main

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tapereader/internal/config"
	"tapereader/internal/display"
	"tapereader/internal/engine"
	"tapereader/internal/feed"
	"tapereader/internal/metrics"
	"tapereader/internal/siglog"
	"tapereader/internal/util"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	_ = godotenv.Load()

	path := defaultConfigPath
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	cfg, err := config.Load(path)
	if err != nil {
		cfg = config.Default()
	}
	log := util.NewLogger(cfg.App.LogLevel)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("config not loaded, using defaults")
	}
	if cfg.ActiveProfile != "" {
		log.Info().Str("profile", cfg.ActiveProfile).Msg("trading profile active")
	}

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider, err := feed.New(cfg.Feed, cfg.Market, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build feed")
	}
	provider.Start(ctx)

	audit, err := siglog.NewLogger(cfg.Logging, log, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("open signal log")
	}
	defer func() {
		if err := audit.Flush(); err != nil {
			log.Error().Err(err).Msg("flush signal log")
		}
	}()

	eng := engine.New(cfg, provider, audit, log, util.SystemClock())
	renderer := display.New(cfg.Behavior.DisplayMinStrength)

	go renderLoop(ctx, eng, renderer)

	log.Info().
		Str("leg_a", cfg.Market.LegA).
		Str("leg_b", cfg.Market.LegB).
		Str("feed", cfg.Feed.Provider).
		Msg("engine started")
	if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("engine stopped")
	}
	log.Info().Msg("shutting down")
}

func renderLoop(ctx context.Context, eng *engine.Engine, renderer *display.Renderer) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Print("\033[H\033[2J")
			fmt.Println(renderer.Render(eng.State()))
		}
	}
}
