package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"audio-event-pipeline/internal/app"
	"audio-event-pipeline/internal/config"
	apihttp "audio-event-pipeline/internal/http"
	"audio-event-pipeline/internal/observability"
)

func main() {
	cfg := config.Load()

	application := app.New(cfg)
	defer application.Shutdown()

	startCtx, cancel := context.WithTimeout(context.Background(), cfg.Orchestration.RequestTimeout)
	if err := application.Start(startCtx); err != nil {
		cancel()
		log.Fatal().Err(err).Msg("Application start failed")
	}
	cancel()

	obsServer := observability.NewServer(cfg.Observability.MetricsAddr, application.Ready)
	obsServer.Start()

	server := &http.Server{
		Addr:              ":" + cfg.Service.Port,
		Handler:           apihttp.NewRouter(application),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Service.Port).Msg("Audio event handler listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Observability server shutdown failed")
	}
}
