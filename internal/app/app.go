// Package app wires the store, services, HTTP server and publication sweep
// into one process and runs them until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"newsdesk/internal/auth"
	"newsdesk/internal/blob"
	"newsdesk/internal/clock"
	"newsdesk/internal/config"
	web "newsdesk/internal/server"
	"newsdesk/internal/services"
	"newsdesk/internal/store"
	"newsdesk/internal/sweep"

	"go.uber.org/zap"
)

type App struct {
	config    *config.Config
	logger    *zap.Logger
	store     store.Store
	server    *web.Server
	scheduler *sweep.Scheduler
}

// OpenStore connects the configured backend. With contentless set the hybrid
// store skips Badger, which leaves the data directory to a running server.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger, contentless bool) (store.Store, error) {
	switch cfg.Store {
	case config.StoreHybrid:
		path := cfg.BadgerPath
		if contentless {
			path = ""
		}
		return store.NewHybridStore(cfg.RedisAddr, path,
			store.WithLogger(logger),
			store.WithGCInterval(cfg.BadgerGCInterval))
	case config.StoreMongo:
		st, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func openBlobs(ctx context.Context, cfg *config.Config, logger *zap.Logger) (blob.Storage, string, error) {
	switch cfg.Blob {
	case config.BlobDisk:
		d, err := blob.NewDiskStorage(cfg.UploadDir, cfg.UploadURLPrefix, logger)
		if err != nil {
			return nil, "", err
		}
		return d, d.Dir(), nil
	case config.BlobS3:
		s, err := blob.NewS3Storage(ctx, blob.S3Config{
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			BaseEndpoint: cfg.S3BaseEndpoint,
			Bucket:       cfg.S3Bucket,
			PublicURL:    cfg.S3PublicURL,
		}, logger)
		return s, "", err
	default:
		return nil, "", fmt.Errorf("unknown blob storage %q", cfg.Blob)
	}
}

func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	st, err := OpenStore(ctx, cfg, logger, false)
	if err != nil {
		return nil, fmt.Errorf("store init error: %w", err)
	}

	blobs, uploadDir, err := openBlobs(ctx, cfg, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("blob storage init error: %w", err)
	}

	clk := clock.Real{}
	loc := cfg.Location()

	articles := services.NewArticleService(st, blobs, clk, logger)
	accounts := services.NewAccountService(st,
		auth.NewHasher(cfg.BcryptCost),
		auth.NewTokens(cfg.SecretKey, cfg.TokenValidity, clk),
		services.EmailNormalization(cfg.EmailNormalization),
		clk, logger)

	srv := web.NewServer(articles, accounts, web.Options{
		APIPrefix:       cfg.APIPrefix,
		CORSOrigins:     cfg.CORSOrigins,
		UploadDir:       uploadDir,
		UploadURLPrefix: cfg.UploadURLPrefix,
		Location:        loc,
	}, logger)

	sched, err := sweep.NewScheduler(sweep.NewSweeper(st, clk, logger), cfg.SweepSchedule, loc, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &App{config: cfg, logger: logger, store: st, server: srv, scheduler: sched}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigs
		app.logger.Info("Shutting down...")
		cancelFunc()
	}()
}

// Run serves HTTP and runs the sweep until ctx is cancelled, a signal
// arrives or the server fails. The store is closed on return.
func (app *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app.initSignalHandler(cancel)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.scheduler.Start(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		if err := app.server.Start(app.config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		if runErr != nil {
			app.logger.Error("Web server failed", zap.Error(runErr))
		}
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), app.config.ShutdownTimeout)
	defer stop()
	if err := app.server.Stop(shutdownCtx); err != nil {
		app.logger.Warn("Web server shutdown", zap.Error(err))
	}

	wg.Wait()

	if err := app.store.Close(); err != nil {
		app.logger.Warn("Closing store", zap.Error(err))
	}
	app.logger.Info("Goodbye!")
	return runErr
}
