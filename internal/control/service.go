// Package control wires the hot store together: database, schema registry,
// reorg handling, notifications and the health endpoint.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vietddude/hotstore/internal/core/config"
	"github.com/vietddude/hotstore/internal/core/domain"
	"github.com/vietddude/hotstore/internal/core/worker"
	"github.com/vietddude/hotstore/internal/hot/rollback"
	"github.com/vietddude/hotstore/internal/hot/schema"
	"github.com/vietddude/hotstore/internal/indexing/emitter"
	"github.com/vietddude/hotstore/internal/indexing/health"
	"github.com/vietddude/hotstore/internal/indexing/reorg"
	"github.com/vietddude/hotstore/internal/indexing/session"
	redisclient "github.com/vietddude/hotstore/internal/infra/redis"
	"github.com/vietddude/hotstore/internal/infra/storage/sqlstore"
)

// Service is the main application struct that owns every component.
type Service struct {
	cfg          *config.AppConfig
	db           *sqlstore.DB
	reg          *schema.Registry
	detector     *reorg.Detector
	handler      *reorg.Handler
	emitter      emitter.Emitter
	stats        *worker.StatsCollector
	healthMon    *health.Monitor
	healthServer *health.Server
	redisClient  *redisclient.Client
	log          *slog.Logger
}

// Options carries the pieces that cannot come from configuration.
type Options struct {
	// HashFetcher lets the reorg detector compare against the canonical chain.
	HashFetcher reorg.HashFetcher
}

// NewService creates a new Service with all dependencies initialized.
func NewService(ctx context.Context, cfg *config.AppConfig, opts Options) (*Service, error) {
	reg, err := cfg.Registry()
	if err != nil {
		return nil, fmt.Errorf("invalid entities: %w", err)
	}

	db, err := sqlstore.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to init db: %w", err)
	}

	s := &Service{
		cfg:      cfg,
		db:       db,
		reg:      reg,
		detector: reorg.NewDetector(cfg.Reorg, db.HotBlocks(), opts.HashFetcher),
		handler:  reorg.NewHandler(db, rollback.NewEngine(db.Tables, reg)),
		log:      slog.Default(),
	}

	emitters := emitter.Multi{emitter.NewLogEmitter(nil)}
	var failures health.FailureCounter
	if cfg.RedisEnabled() {
		s.redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		repo := redisclient.NewFailedRollbackRepo(s.redisClient)
		emitters = append(emitters, s.redisClient)
		s.handler.SetLocker(s.redisClient, cfg.Reorg.LockTTL)
		s.handler.SetFailureRecorder(repo)
		failures = repo
		slog.Info("Redis notifications enabled", "url", cfg.Redis.URL)
	}
	s.emitter = emitters
	s.handler.SetEmitter(emitters)

	s.stats = worker.NewStatsCollector(cfg.Stats.Interval, db.HotBlocks())
	s.healthMon = health.NewMonitor(db, db.HotBlocks(), failures, health.Thresholds{
		DegradedHotBlocks: cfg.Reorg.MaxDepth * 2,
		CriticalHotBlocks: cfg.Reorg.MaxDepth * 10,
	})
	s.healthServer = health.NewServer(s.healthMon, cfg.Server.Port)

	slog.Info("Hot store ready",
		"driver", cfg.Database.Driver,
		"dialect", db.Dialect.Name(),
		"entities", len(reg.Entities()),
	)
	return s, nil
}

// DB returns the database handle.
func (s *Service) DB() *sqlstore.DB { return s.db }

// Registry returns the schema registry.
func (s *Service) Registry() *schema.Registry { return s.reg }

// Handler returns the reorg handler.
func (s *Service) Handler() *reorg.Handler { return s.handler }

// ReorgError is returned by ApplyBlock when the block did not extend the hot
// chain. The store has been rewound; the caller resumes from SafeHeight+1.
type ReorgError struct {
	Height     int64
	SafeHeight int64
}

func (e *ReorgError) Error() string {
	return fmt.Sprintf("block %d does not extend the hot chain; rewound to %d", e.Height, e.SafeHeight)
}

// ApplyBlock checks block against the hot chain and applies it through fn. A
// parent mismatch rewinds the orphaned heights and returns *ReorgError
// without applying block.
func (s *Service) ApplyBlock(ctx context.Context, block domain.HotBlock, fn func(*session.Session) error) error {
	info, err := s.detector.CheckParentHash(ctx, block.Height, block.ParentHash)
	if err != nil {
		return fmt.Errorf("reorg check of %d: %w", block.Height, err)
	}
	if info.Detected {
		s.log.Warn("Reorg detected",
			"height", block.Height,
			"safe_height", info.SafeHeight,
			"depth", info.Depth,
		)
		if _, err := s.handler.Rollback(ctx, info.SafeHeight, reorg.ReasonParentMismatch); err != nil {
			return err
		}
		return &ReorgError{Height: block.Height, SafeHeight: info.SafeHeight}
	}

	// A replacement for a hot height: drop it and everything above first.
	existing, err := s.db.HotBlocks().Get(ctx, block.Height)
	if err != nil {
		return fmt.Errorf("lookup of %d: %w", block.Height, err)
	}
	if existing != nil {
		s.log.Info("Replacing hot block",
			"height", block.Height,
			"old_hash", existing.Hash,
			"new_hash", block.Hash,
		)
		if _, err := s.handler.Rollback(ctx, block.Height-1, reorg.ReasonReplaced); err != nil {
			return err
		}
	}
	return session.Apply(ctx, s.db, s.reg, block, fn)
}

// Start starts the background components.
func (s *Service) Start(ctx context.Context) error {
	// Start Health Server
	go func() {
		if err := s.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Health server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	s.db.StartMetricsCollector(ctx)

	// Start Stats Collector
	go s.stats.Start(ctx)

	s.log.Info("Service started", "port", s.cfg.Server.Port)
	return nil
}

// Stop stops the service.
func (s *Service) Stop(ctx context.Context) error {
	s.log.Info("Stopping hot store...")

	err := s.healthServer.Stop(ctx)

	if err := s.emitter.Close(); err != nil {
		s.log.Warn("Failed to close emitter", "error", err)
	}
	if err := s.db.Close(); err != nil {
		s.log.Warn("Failed to close database", "error", err)
	}
	return err
}
