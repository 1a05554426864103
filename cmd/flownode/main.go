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

	"gocloud.dev/blob"

	app "github.com/kode4food/flownode"
	"github.com/kode4food/flownode/internal/archive"
	"github.com/kode4food/flownode/internal/config"
	"github.com/kode4food/flownode/internal/definition"
	"github.com/kode4food/flownode/internal/engine"
	"github.com/kode4food/flownode/internal/events"
	"github.com/kode4food/flownode/internal/expr"
	"github.com/kode4food/flownode/internal/server"
	"github.com/kode4food/flownode/internal/store"
	"github.com/kode4food/flownode/internal/store/boltstore"
	"github.com/kode4food/flownode/internal/store/redisstore"
	"github.com/kode4food/flownode/internal/store/timeboxstore"
	"github.com/kode4food/flownode/pkg/log"
)

type flownode struct {
	cfg        *config.Config
	store      store.Store
	defs       *definition.Registry
	hub        *events.Hub
	engine     *engine.Engine
	bucket     *blob.Bucket
	archiver   *archive.Archiver
	apiServer  *server.Server
	httpServer *http.Server
	quit       chan os.Signal
}

var (
	ErrCreateStore     = errors.New("failed to create store")
	ErrLoadDefinitions = errors.New("failed to load definitions")
	ErrCreateArchiver  = errors.New("failed to create archiver")
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func main() {
	cfg := config.NewDefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}

	s := &flownode{
		cfg:  cfg,
		quit: make(chan os.Signal, 1),
	}
	s.setupLogging()

	if err := s.run(); err != nil {
		slog.Error("Failed to start application", log.Error(err))
		os.Exit(1)
	}
}

func (s *flownode) run() error {
	if err := s.initializeStore(); err != nil {
		return err
	}
	if err := s.loadDefinitions(); err != nil {
		s.closeStore()
		return err
	}
	if err := s.initializeEngine(); err != nil {
		s.closeStore()
		return err
	}
	if err := s.initializeArchiver(); err != nil {
		s.closeStore()
		return err
	}
	if err := s.engine.Start(); err != nil {
		s.stopArchiver()
		s.closeStore()
		return err
	}
	s.startServer()

	signal.Notify(s.quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(s.quit)
	<-s.quit

	s.shutdown()
	return nil
}

func (s *flownode) setupLogging() {
	level, ok := logLevels[s.cfg.LogLevel]
	if !ok {
		level = slog.LevelInfo
	}

	env := os.Getenv("ENV")
	logger := log.NewWithLevel(app.Name, env, app.Version, level)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level)

	slog.Info("Flow-node engine starting",
		slog.String("log_level", s.cfg.LogLevel))

	slog.Info("Configuration loaded",
		slog.String("store_driver", s.cfg.Store.Driver),
		slog.String("ledger_redis_addr", s.cfg.Store.Ledger.Addr),
		slog.String("redis_addr", s.cfg.Store.Redis.Addr),
		slog.Int("redis_db", s.cfg.Store.Redis.DB),
		slog.String("bolt_path", s.cfg.Store.BoltPath),
		slog.String("archive_bucket", s.cfg.Archive.BucketURL),
		slog.String("definitions_dir", s.cfg.DefinitionsDir),
		slog.Int("workers", s.cfg.Workers),
		slog.String("api_host", s.cfg.APIHost),
		slog.Int("api_port", s.cfg.APIPort))
}

func (s *flownode) initializeStore() error {
	var err error
	switch s.cfg.Store.Driver {
	case config.StoreRedis:
		s.store, err = redisstore.New(context.Background(), s.cfg.Store.Redis)
	case config.StoreBolt:
		s.store, err = boltstore.Open(s.cfg.Store.BoltPath)
	default:
		s.store, err = timeboxstore.Open(timeboxstore.Config{
			Store:     s.cfg.Store.Ledger,
			CacheSize: s.cfg.Store.CacheSize,
		})
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreateStore, err)
	}
	return nil
}

func (s *flownode) loadDefinitions() error {
	s.defs = definition.NewRegistry()
	if s.cfg.DefinitionsDir == "" {
		return nil
	}
	ids, err := s.defs.LoadDir(s.cfg.DefinitionsDir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoadDefinitions, err)
	}
	slog.Info("Definitions loaded",
		slog.String("dir", s.cfg.DefinitionsDir),
		slog.Int("count", len(ids)))
	return nil
}

func (s *flownode) initializeEngine() error {
	s.hub = events.NewHub()
	eng, err := engine.New(s.cfg, engine.Dependencies{
		Store:       s.store,
		Definitions: s.defs,
		Evaluator:   expr.NewRegistry(),
		Hub:         s.hub,
	})
	if err != nil {
		return err
	}
	s.engine = eng
	return nil
}

func (s *flownode) initializeArchiver() error {
	if s.cfg.Archive.BucketURL == "" {
		return nil
	}

	var err error
	s.bucket, err = archive.OpenBucket(
		context.Background(), s.cfg.Archive.BucketURL,
	)
	if err != nil {
		return err
	}

	w, err := archive.NewWriter(s.bucket, s.cfg.Archive.Prefix)
	if err == nil {
		s.archiver, err = archive.NewArchiver(s.engine, s.hub, w)
	}
	if err != nil {
		_ = s.bucket.Close()
		return fmt.Errorf("%w: %w", ErrCreateArchiver, err)
	}
	s.archiver.Start()
	return nil
}

func (s *flownode) startServer() {
	s.apiServer = server.NewServer(s.engine, s.defs, s.archiver)
	mux := s.apiServer.SetupRoutes()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.APIHost, s.cfg.APIPort),
		Handler: mux,
	}

	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", s.httpServer.Addr))
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", log.Error(err))
		}
	}()
}

func (s *flownode) shutdown() {
	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(
		context.Background(), s.cfg.ShutdownTimeout,
	)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("Shutdown failed", log.Error(err))
	}

	s.apiServer.CloseWebSockets()

	if err := s.engine.Stop(); err != nil {
		slog.Error("Engine shutdown failed", log.Error(err))
	}

	s.stopArchiver()
	s.hub.Close()
	s.closeStore()

	slog.Info("Server exited")
}

func (s *flownode) stopArchiver() {
	if s.archiver != nil {
		s.archiver.Stop()
		_ = s.bucket.Close()
	}
}

func (s *flownode) closeStore() {
	if err := s.store.Close(); err != nil {
		slog.Error("Store close failed", log.Error(err))
	}
}
