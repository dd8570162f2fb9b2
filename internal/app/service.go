// Package service wires configuration, the scoring pipeline and the result
// store into the process that backs the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/intentrank/internal/adapters/ingest"
	"github.com/okian/intentrank/internal/adapters/repository"
	"github.com/okian/intentrank/internal/config"
	"github.com/okian/intentrank/internal/domain/explain"
	"github.com/okian/intentrank/internal/domain/model"
	"github.com/okian/intentrank/internal/domain/scoring"
	"github.com/okian/intentrank/internal/domain/session"
	"github.com/okian/intentrank/internal/pipeline"
	"github.com/okian/intentrank/pkg/logger"
	"github.com/okian/intentrank/pkg/metrics"
)

// ErrNoEventsPath is returned by RunOnce when no events file is configured.
var ErrNoEventsPath = errors.New("no events path configured")

// Service runs the pipeline and publishes each result as a snapshot.
type Service struct {
	mu sync.RWMutex

	// Core components
	pipeline *pipeline.Pipeline
	store    repository.Store
	scorer   scoring.Scorer

	// Configuration
	eventsPath string
	sessions   session.Config
	topK       int
	topN       int

	// State
	started   bool
	runs      int
	failures  int
	lastRunID string
	lastRunAt time.Time
	lastErr   error

	logger logger.Logger
	now    func() time.Time
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithPipeline sets the pipeline used for runs.
func WithPipeline(p *pipeline.Pipeline) Option {
	return func(s *Service) {
		if p != nil {
			s.pipeline = p
		}
	}
}

// WithStore sets the store runs are published to.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithScorer sets the scoring strategy.
func WithScorer(sc scoring.Scorer) Option {
	return func(s *Service) {
		s.scorer = sc
	}
}

// WithEventsPath sets the events file read by RunOnce.
func WithEventsPath(path string) Option {
	return func(s *Service) {
		s.eventsPath = path
	}
}

// WithSessions sets the session aggregation parameters.
func WithSessions(cfg session.Config) Option {
	return func(s *Service) {
		s.sessions = cfg
	}
}

// WithTopK sets how many contributions each explanation keeps.
func WithTopK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithTopN sets the shortlist length of each run.
func WithTopN(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.topN = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service. Without WithScorer every run fails with a
// *model.ConfigError.
func New(opts ...Option) *Service {
	s := &Service{
		sessions: session.DefaultConfig(),
		topK:     explain.DefaultTopK,
		topN:     50,
		logger:   logger.Current().Named("service"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pipeline == nil {
		s.pipeline = pipeline.New(pipeline.WithLogger(s.logger))
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	return s
}

// FromConfig builds a Service from process configuration.
func FromConfig(cfg *config.Config, opts ...Option) (*Service, error) {
	sc, err := cfg.NewScorer()
	if err != nil {
		return nil, err
	}
	l := logger.Current().Named("service")
	base := []Option{
		WithLogger(l),
		WithScorer(sc),
		WithEventsPath(cfg.EventsPath),
		WithSessions(cfg.Sessions()),
		WithTopK(cfg.Scoring.TopK),
		WithTopN(cfg.TopN),
		WithPipeline(pipeline.New(
			pipeline.WithWorkers(cfg.WorkerCount),
			pipeline.WithQueueSize(cfg.QueueSize),
			pipeline.WithLogger(l.Named("pipeline")),
		)),
	}
	return New(append(base, opts...)...), nil
}

// Store returns the store runs are published to.
func (s *Service) Store() repository.Store { return s.store }

// Start marks the service started and, when an events file is configured,
// scores it once. A failed initial run is returned but leaves the service
// started, serving nothing until a later run succeeds.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	path := s.eventsPath
	s.mu.Unlock()

	s.logger.Info(ctx, "intent service started", logger.String("events_path", path))
	if path == "" {
		return nil
	}
	_, err := s.RunOnce(ctx)
	return err
}

// Stop marks the service stopped.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	s.logger.Info(context.Background(), "intent service stopped")
}

// RunOnce scores the configured events file and publishes the result.
func (s *Service) RunOnce(ctx context.Context) (*repository.Snapshot, error) {
	s.mu.RLock()
	path := s.eventsPath
	s.mu.RUnlock()
	if path == "" {
		return nil, ErrNoEventsPath
	}
	return s.RunFile(ctx, path)
}

// RunFile reads events from path, scores them and publishes the result.
func (s *Service) RunFile(ctx context.Context, path string) (*repository.Snapshot, error) {
	events, diag, err := ingest.ReadEventsFile(path)
	if err != nil {
		metrics.RecordErrorByComponent("service", "load_events")
		s.finish("", err)
		return nil, fmt.Errorf("load events: %w", err)
	}
	return s.RunEvents(ctx, events, diag)
}

// RunEvents scores an in-memory batch and publishes the result. loaded may
// carry diagnostics from reading the batch.
func (s *Service) RunEvents(ctx context.Context, events []model.Event, loaded *model.Diagnostics) (*repository.Snapshot, error) {
	runID := uuid.New().String()
	res, err := s.pipeline.Run(ctx, events, loaded, pipeline.RunConfig{
		Sessions: s.sessions,
		Scorer:   s.scorer,
		TopK:     s.topK,
		TopN:     s.topN,
	})
	if err != nil {
		s.finish(runID, err)
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	snap := &repository.Snapshot{
		RunID:       runID,
		Scorer:      res.Scorer,
		PublishedAt: s.now(),
		Reference:   res.Reference,
		Ranked:      res.Ranked,
		Global:      res.Global,
		Diagnostics: *res.Diagnostics,
		TopK:        s.topK,
	}
	if err := s.store.Publish(ctx, snap); err != nil {
		metrics.RecordErrorByComponent("service", "publish")
		s.finish(runID, err)
		return nil, fmt.Errorf("publish %s: %w", runID, err)
	}
	s.finish(runID, nil)
	s.logger.Info(ctx, "snapshot published",
		logger.String("run_id", runID),
		logger.Int("users", len(snap.Ranked)),
		logger.Int("skipped", snap.Diagnostics.Skipped),
	)
	return snap, nil
}

func (s *Service) finish(runID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	s.lastRunAt = s.now()
	s.lastErr = err
	if err != nil {
		s.failures++
		return
	}
	s.lastRunID = runID
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":    s.started,
		"runs":       s.runs,
		"failures":   s.failures,
		"eventsPath": s.eventsPath,
		"topN":       s.topN,
		"topK":       s.topK,
		"users":      s.store.Count(context.Background()),
	}
	if s.scorer != nil {
		stats["scorer"] = s.scorer.Name()
	}
	if s.lastRunID != "" {
		stats["lastRunID"] = s.lastRunID
	}
	if !s.lastRunAt.IsZero() {
		stats["lastRunAt"] = s.lastRunAt.UTC().Format(time.RFC3339)
	}
	if s.lastErr != nil {
		stats["lastError"] = s.lastErr.Error()
	}
	return stats
}
