package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"chatview-server/internal/archive"
	"chatview-server/internal/cache"
	"chatview-server/internal/config"
	"chatview-server/internal/feed"
	"chatview-server/internal/platform"
	"chatview-server/internal/transcript"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	v := viper.New()
	if err := config.Load(v); err != nil {
		return err
	}
	if err := config.CheckConfigValidity(v); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	cfg := config.FromViper(v)
	log := InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := cache.New(cache.Options{
		Backend:    cfg.CacheBackend,
		RedisURL:   cfg.RedisURL,
		MaxEntries: cfg.MaxEntries,
	})
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer backend.Close()

	ttls := cache.DefaultTTLs()
	ttls.Message = cfg.ReferenceTTL
	client := platform.NewClient(platform.Config{
		APIBase:           cfg.APIBase,
		Token:             cfg.Token,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		TTLs:              ttls,
	}, backend, log)

	windows := cache.NewWindows(cfg.WindowSize)

	var (
		store       *archive.Store
		svcArchive  transcript.Archive
		feedArchive feed.Archive
	)
	if cfg.ArchivePath != "" {
		store, err = archive.Open(cfg.ArchivePath, log)
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		defer store.Close()
		svcArchive, feedArchive = store, store
	}

	svc := transcript.NewService(client, windows, svcArchive, transcript.ServiceConfig{
		WindowSize:       cfg.WindowSize,
		ReferenceWorkers: cfg.ReferenceWorkers,
		ForwardPreview:   cfg.ForwardPreviewChars,
		DefaultTimezone:  cfg.DefaultTimezone,
	}, log)

	if cfg.GatewayURL != "" {
		gw := feed.New(feed.Config{URL: cfg.GatewayURL, Token: cfg.Token}, windows, feedArchive, log)
		go func() {
			if err := gw.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("gateway feed stopped", "error", err)
			}
		}()
	} else {
		log.Info("no gateway configured, channel windows refresh only on cold reads")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newServer(svc, cfg.BaseURL, cfg.DefaultTimezone).routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", cfg.HTTPAddr, "cache", cfg.CacheBackend, "archive", cfg.ArchivePath != "")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
