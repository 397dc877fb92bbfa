package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rmax-ai/readgraph/pkg/api"
	"github.com/rmax-ai/readgraph/pkg/blob"
	"github.com/rmax-ai/readgraph/pkg/engine"
	"github.com/rmax-ai/readgraph/pkg/logging"
	"github.com/rmax-ai/readgraph/pkg/store"
	"github.com/rmax-ai/readgraph/pkg/store/redis"
	"github.com/rmax-ai/readgraph/pkg/suggest"
	"go.uber.org/zap"
)

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "readgraphd: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		Development: cfg.Development,
		FilePath:    cfg.LogFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "readgraphd: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg Config, logger *zap.Logger) error {
	logger.Info("system_started", zap.String("component", "readgraphd"), zap.String("addr", cfg.Addr))

	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("failed_to_close_store", zap.Error(err))
		} else {
			logger.Info("store_closed")
		}
	}()
	logger.Info("store_initialized", zap.String("path", cfg.DBPath))

	var canvases store.CanvasStore = st
	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		canvases = redis.NewRedisCanvasStore(rdb, logger)
		logger.Info("redis_canvas_store_enabled", zap.String("addr", cfg.RedisAddr))
	}

	blobs := blob.NewLocalBlobStore(cfg.BlobDir)
	persister := engine.NewPersister(st, canvases, logger, 0)

	ws := engine.NewWorkspace(st, blobs, persister, logger)
	ws.SetCanvasStore(canvases)
	ws.SetSampleInterval(cfg.SampleInterval)
	if cfg.OpenAIAPIKey != "" {
		ws.SetSuggester(suggest.NewOpenAISuggester(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL))
		logger.Info("suggestions_enabled", zap.String("model", cfg.OpenAIModel))
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		persister.Run(workerCtx)
	}()
	go func() {
		defer wg.Done()
		engine.NewSnapshotWorker(ws, canvases, cfg.SnapshotInterval, logger).Run(workerCtx)
	}()
	go func() {
		defer wg.Done()
		engine.NewPruneWorker(blobs, cfg.ExportRetention, 0, logger).Run(workerCtx)
	}()

	srv := api.NewServer(ws, st, cfg.Addr, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-sigs:
		logger.Info("shutdown_initiated", zap.String("signal", sig.String()))
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("server_failed", zap.Error(serveErr))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("failed_to_stop_server", zap.Error(err))
	}
	// Saves the canvas and flushes pending writes while the persister still runs.
	if err := ws.Close(shutdownCtx); err != nil {
		logger.Error("failed_to_close_workspace", zap.Error(err))
	}
	stopWorkers()
	wg.Wait()

	logger.Info("shutdown_complete")
	return serveErr
}
