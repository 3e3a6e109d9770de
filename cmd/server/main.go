package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/killerdox/buildsync/internal/broker"
	"github.com/killerdox/buildsync/internal/catalog"
	"github.com/killerdox/buildsync/internal/config"
	"github.com/killerdox/buildsync/internal/httpapi"
	"github.com/killerdox/buildsync/internal/snapshot"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(cfg.Dev)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := broker.New(logger.Named("broker"), broker.Options{
		DedupWindow: cfg.DedupWindow,
		SweepEvery:  cfg.DedupSweep,
	})
	b.Start(ctx)
	defer b.Stop()

	handler := httpapi.SetupRoutes(httpapi.Deps{
		Broker:    b,
		Snapshot:  snapshot.New(),
		Catalog:   catalog.New(cfg.AssetRoot, logger.Named("catalog")),
		Log:       logger.Named("http"),
		Heartbeat: cfg.HeartbeatInterval,
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: handler}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
