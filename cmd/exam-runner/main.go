package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sjawhar/exam-runner/internal/audio"
	"github.com/sjawhar/exam-runner/internal/backend"
	"github.com/sjawhar/exam-runner/internal/clock"
	"github.com/sjawhar/exam-runner/internal/config"
	"github.com/sjawhar/exam-runner/internal/exam"
	"github.com/sjawhar/exam-runner/internal/logging"
	"github.com/sjawhar/exam-runner/internal/server"
	"github.com/sjawhar/exam-runner/internal/session"
	"github.com/sjawhar/exam-runner/internal/storage"
	"github.com/sjawhar/exam-runner/internal/submission"
)

const (
	fetchAttempts   = 5
	shutdownTimeout = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "exam-runner: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	envPath := flag.String("env", ".env", "path to a .env file")
	testID := flag.Int("test", 0, "test to take (overrides test_id)")
	flag.Parse()

	if err := config.LoadEnvFile(*envPath); err != nil {
		return err
	}
	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *testID > 0 {
		cfg.TestID = *testID
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	for _, w := range warnings {
		logger.Warn(w)
	}
	if cfg.TestID <= 0 {
		return errors.New("no test selected: pass -test or set test_id")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	consumeRedirect(ctx, store, logger)

	credential := backend.NewCredential(cfg.APIToken, cfg.APITokenExpiry)
	client := backend.NewClient(cfg.APIBaseURL, cfg.ParsedAPITimeout(), credential, logger)

	test, err := fetchTestWithRetry(ctx, client, cfg.TestID, sleepCtx, logger)
	if err != nil {
		return err
	}
	logger.Info("test loaded",
		zap.Int("test_id", test.ID),
		zap.String("kind", string(test.Kind)),
		zap.Int("tasks", len(test.Tasks)),
	)

	loop := clock.NewLoop()
	mic := audio.NewMic(cfg.SampleRateCandidates(), 0)
	speaker := audio.NewSpeaker(0)
	recorder := audio.NewRecorder(loop, mic, speaker, logger)
	pipeline := submission.NewPipeline(client, store, logger)
	hub := server.NewHub(logger)

	engine := session.NewEngine(loop, *test, recorder, store, pipeline, hub, logger, session.Options{
		AutosaveInterval: cfg.ParsedAutosaveInterval(),
		RecoveryWindow:   cfg.ParsedRecoveryWindow(),
		ReturnPath:       fmt.Sprintf("/tests/%d/take", test.ID),
	})

	handler := server.Handler(staticFS(cfg.StaticDir), hub, loop, engine, credential, logger)
	httpServer := server.NewHTTPServer(cfg.ListenAddr, handler)

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := loop.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown failed", zap.Error(err))
		}
		if err := loop.Call(func() error {
			engine.Close()
			return nil
		}); err != nil {
			logger.Warn("close session", zap.Error(err))
		}
		if err := mic.Close(); err != nil {
			logger.Warn("release audio device", zap.Error(err))
		}
		stopLoop()
		return nil
	})

	if err := loop.Call(func() error { return engine.Start(gctx) }); err != nil {
		stop()
		_ = g.Wait()
		return fmt.Errorf("start session: %w", err)
	}

	g.Go(func() error {
		logger.Info("control API listening", zap.String("addr", "http://"+cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Store, error) {
	switch cfg.ProgressBackend {
	case config.BackendMemory:
		return storage.NewMemoryStore(), nil
	case config.BackendRedis:
		client, err := storage.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return storage.NewRedisStore(client, cfg.ParsedRecoveryWindow(), logger), nil
	case config.BackendSQLite, "":
		return storage.NewSQLiteStore(cfg.DBPath)
	}
	return nil, fmt.Errorf("unknown progress backend %q", cfg.ProgressBackend)
}

// consumeRedirect logs and drops the login bookmark left by a previous run.
func consumeRedirect(ctx context.Context, store storage.Store, logger *zap.Logger) {
	redirect, err := store.Redirect(ctx)
	if err != nil {
		logger.Warn("read login redirect", zap.Error(err))
		return
	}
	if redirect == "" {
		return
	}
	logger.Info("resuming after re-authentication", zap.String("return_path", redirect))
	if err := store.ClearRedirect(ctx); err != nil {
		logger.Warn("clear login redirect", zap.Error(err))
	}
}

func staticFS(dir string) fs.FS {
	if dir == "" {
		return nil
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil
	}
	return os.DirFS(dir)
}

type testFetcher interface {
	FetchTest(ctx context.Context, testID int) (*exam.Test, error)
}

// fetchTestWithRetry retries while the backend is unreachable. Auth and
// validation failures are returned immediately.
func fetchTestWithRetry(
	ctx context.Context,
	fetcher testFetcher,
	testID int,
	wait func(context.Context, time.Duration) error,
	logger *zap.Logger,
) (*exam.Test, error) {
	delay := 500 * time.Millisecond
	for attempt := 1; ; attempt++ {
		test, err := fetcher.FetchTest(ctx, testID)
		if err == nil {
			return test, nil
		}
		if !errors.Is(err, backend.ErrUnavailable) || attempt == fetchAttempts {
			return nil, fmt.Errorf("load test %d: %w", testID, err)
		}

		logger.Warn("backend unavailable, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := wait(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
