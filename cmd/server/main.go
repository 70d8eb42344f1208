package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arung-agamani/turntable/config"
	"github.com/arung-agamani/turntable/internal/audio/pipeline"
	"github.com/arung-agamani/turntable/internal/collab"
	"github.com/arung-agamani/turntable/internal/httpapi"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Load()

	slog.Info("starting turntable",
		"port", cfg.Port,
		"station_name", cfg.StationName,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
	)

	pl := pipeline.New(cfg)
	defer pl.Shutdown()

	go logEvents(pl)

	resolver := collab.URLInputResolver{}
	rooms := collab.NewMemoryRoomStore()
	users := collab.NewMemoryUserStore()
	sessions := collab.NewMemorySessionStore()
	tokens := collab.NewTokenIssuer(cfg.JWTSecret, 24*time.Hour)
	handlers := httpapi.NewHandlers(pl, resolver, rooms, users, sessions, tokens)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handlers.Register(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		slog.Info("shutdown signal received")
		cancel()
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}

// logEvents drains the pipeline's event bus and logs sink, player and
// advance transitions at debug level and queue activation results at
// info/warn level (time updates are not logged), giving an operator something to grep without wiring a
// dedicated metrics sink (out of scope per the non-goals).
func logEvents(pl *pipeline.Pipeline) {
	for e := range pl.Bus().Events() {
		switch {
		case e.SinkLoadStateUpdate != nil:
			slog.Debug("sink load state", "sink", e.SinkLoadStateUpdate.Sink, "state", e.SinkLoadStateUpdate.State)
		case e.PlayerStateUpdate != nil:
			slog.Debug("player state", "player", e.PlayerStateUpdate.Player, "state", e.PlayerStateUpdate.State)
		case e.PlayerAdvanced != nil:
			slog.Debug("player advanced", "player", e.PlayerAdvanced.Player, "sink", e.PlayerAdvanced.NewSink)
		case e.QueueItemActivated != nil:
			slog.Info("queue item activated", "queue", e.QueueItemActivated.Queue, "item", e.QueueItemActivated.ItemId, "title", e.QueueItemActivated.Title)
		case e.QueueItemActivationError != nil:
			slog.Warn("queue item activation failed", "queue", e.QueueItemActivationError.Queue, "item", e.QueueItemActivationError.ItemId, "error", e.QueueItemActivationError.Error)
		}
	}
}
