// Package pipeline runs the batch flow events -> sessions -> features ->
// scores -> explanations and ranking, fanning per-user work out to a worker
// pool.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/intentrank/internal/domain/dedupe"
	"github.com/okian/intentrank/internal/domain/explain"
	"github.com/okian/intentrank/internal/domain/features"
	"github.com/okian/intentrank/internal/domain/model"
	"github.com/okian/intentrank/internal/domain/ranking"
	"github.com/okian/intentrank/internal/domain/scoring"
	"github.com/okian/intentrank/internal/domain/session"
	"github.com/okian/intentrank/pkg/logger"
	"github.com/okian/intentrank/pkg/metrics"
)

// InstrumentationName identifies the pipeline tracer.
const InstrumentationName = "intentrank/pipeline"

// Span names.
const (
	SpanBuildFeatures = "pipeline.build_features"
	SpanScoreUsers    = "pipeline.score_users"
	SpanRankUsers     = "pipeline.rank_users"
	SpanRun           = "pipeline.run"
)

// Stage names used in metrics and logs.
const (
	stageFeatures = "build_features"
	stageScore    = "score_users"
	stageRank     = "rank_users"
	stageExplain  = "explain"
)

const defaultQueueSize = 1024

// Pipeline holds execution settings only; all domain configuration is passed
// per call so one Pipeline can serve concurrent runs under different configs.
type Pipeline struct {
	workers   int
	queueSize int
	logger    logger.Logger
}

// New creates a Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		queueSize: defaultQueueSize,
		logger:    logger.Current().Named("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunConfig is the per-run configuration.
type RunConfig struct {
	Sessions session.Config
	Scorer   scoring.Scorer
	// TopK is the number of contributions kept in each explanation.
	TopK int
	// TopN truncates Result.Top. Values below one keep no rows.
	TopN int
}

// Result is the output of Run.
type Result struct {
	Scorer string
	// Reference is the batch reference timestamp.
	Reference   time.Time
	Features    []model.UserFeatures
	Scored      []model.ScoredUser
	Ranked      []model.ScoredUser
	Top         []model.ScoredUser
	Global      explain.Global
	Diagnostics *model.Diagnostics
}

func tracer() trace.Tracer { return otel.Tracer(InstrumentationName) }

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// BuildUserFeatures derives one UserFeatures record per distinct user id,
// ordered by user id. Duplicate events and events without a user id or
// timestamp are excluded and reported in the returned diagnostics. known adds
// users whose records were rejected before this stage (see
// model.Diagnostics.UserIDs); each still gets a zero-activity record.
func (p *Pipeline) BuildUserFeatures(ctx context.Context, events []model.Event, cfg session.Config, known ...string) ([]model.UserFeatures, *model.Diagnostics, error) {
	ctx, span := tracer().Start(ctx, SpanBuildFeatures, trace.WithAttributes(attribute.Int("pipeline.events", len(events))))
	defer span.End()
	start := time.Now()

	if err := cfg.Validate(); err != nil {
		return nil, nil, fail(span, err)
	}

	diag := model.NewDiagnostics()
	diag.TotalRecords = len(events)

	kept, dups := dedupe.Filter(ctx, dedupe.NewInMemoryDeduper(), numbered(events))
	batch := session.Partition(kept, known...)
	for _, w := range append(dups, batch.Warnings...) {
		diag.Warn(w)
		metrics.RecordRecordSkipped(string(w.Reason))
	}
	diag.Accepted = diag.TotalRecords - diag.Skipped
	metrics.RecordEventsIngested(diag.Accepted)

	ref, extent := batch.Reference, batch.Span()
	out, done, err := fanOut(ctx, p, stageFeatures, batch.Users, func(_ context.Context, userID string) (model.UserFeatures, error) {
		return features.Build(userID, batch.Events[userID], cfg, ref, extent), nil
	})
	if err != nil {
		return compact(out, done), diag, fail(span, fmt.Errorf("build features: %w", err))
	}

	var normal, bounce, spam int
	for _, f := range out {
		bounce += f.BounceSessions
		spam += f.SpamSessions
		normal += f.TotalSessions - f.BounceSessions - f.SpamSessions
	}
	metrics.RecordSessions("normal", normal)
	metrics.RecordSessions("bounce", bounce)
	metrics.RecordSessions("spam", spam)

	elapsed := time.Since(start)
	metrics.RecordStageDuration(stageFeatures, elapsed.Seconds())
	span.SetAttributes(
		attribute.Int("pipeline.users", len(out)),
		attribute.Int("pipeline.skipped", diag.Skipped),
	)
	p.logger.Info(ctx, "features built",
		logger.Int("events", diag.TotalRecords),
		logger.Int("accepted", diag.Accepted),
		logger.Int("skipped", diag.Skipped),
		logger.Int("users", len(out)),
		logger.Int("sessions", normal+bounce+spam),
		logger.Duration("duration", elapsed),
	)
	return out, diag, nil
}

// ScoreUsers scores every feature record with s and attaches a top-k local
// explanation. Output order follows the input. When ctx is cancelled the users
// scored so far are returned with the context error.
func (p *Pipeline) ScoreUsers(ctx context.Context, fs []model.UserFeatures, s scoring.Scorer, topK int) ([]model.ScoredUser, error) {
	ctx, span := tracer().Start(ctx, SpanScoreUsers, trace.WithAttributes(
		attribute.Int("pipeline.users", len(fs)),
		attribute.String("pipeline.scorer", s.Name()),
	))
	defer span.End()
	start := time.Now()

	out, done, err := fanOut(ctx, p, stageScore, fs, func(ctx context.Context, f model.UserFeatures) (model.ScoredUser, error) {
		u, err := s.Score(ctx, f)
		if err != nil {
			return u, err
		}
		explain.Annotate(&u, topK)
		metrics.RecordUserScored(string(u.Label), u.Score)
		return u, nil
	})
	if err != nil {
		return compact(out, done), fail(span, fmt.Errorf("score users: %w", err))
	}

	elapsed := time.Since(start)
	metrics.RecordStageDuration(stageScore, elapsed.Seconds())
	p.logger.Info(ctx, "users scored",
		logger.String("scorer", s.Name()),
		logger.Int("users", len(out)),
		logger.Duration("duration", elapsed),
	)
	return out, nil
}

// RankUsers returns the top n users in rank order. It is the join point of
// the run and runs on the calling goroutine.
func (p *Pipeline) RankUsers(ctx context.Context, scored []model.ScoredUser, n int) []model.ScoredUser {
	_, span := tracer().Start(ctx, SpanRankUsers, trace.WithAttributes(
		attribute.Int("pipeline.users", len(scored)),
		attribute.Int("pipeline.n", n),
	))
	defer span.End()
	start := time.Now()

	top := ranking.Top(scored, n)
	metrics.RecordStageDuration(stageRank, time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("pipeline.ranked", len(top)))
	return top
}

// Run executes the whole batch. loaded carries diagnostics from the load
// boundary, if any, and is chained with the pipeline's own.
func (p *Pipeline) Run(ctx context.Context, events []model.Event, loaded *model.Diagnostics, cfg RunConfig) (*Result, error) {
	ctx, span := tracer().Start(ctx, SpanRun)
	defer span.End()
	start := time.Now()

	if cfg.Scorer == nil {
		metrics.RecordPipelineRun("failed")
		return nil, fail(span, &model.ConfigError{Field: "scorer", Reason: "is required"})
	}
	p.logger.Info(ctx, "pipeline run started",
		logger.Int("events", len(events)),
		logger.String("scorer", cfg.Scorer.Name()),
	)

	fs, diag, err := p.BuildUserFeatures(ctx, events, cfg.Sessions, loaded.UserIDs()...)
	if err != nil {
		metrics.RecordPipelineRun("failed")
		return nil, fail(span, err)
	}
	if loaded != nil {
		merged := loaded.Clone()
		merged.Then(diag)
		diag = merged
	}
	p.warnSkipped(ctx, diag)

	scored, err := p.ScoreUsers(ctx, fs, cfg.Scorer, cfg.TopK)
	if err != nil {
		metrics.RecordPipelineRun("failed")
		return nil, fail(span, err)
	}

	ranked := ranking.Sort(scored)
	top := p.RankUsers(ctx, ranked, cfg.TopN)

	explainStart := time.Now()
	global := explain.NewGlobal(scored, cfg.TopK)
	metrics.RecordStageDuration(stageExplain, time.Since(explainStart).Seconds())

	res := &Result{
		Scorer:      cfg.Scorer.Name(),
		Reference:   reference(fs),
		Features:    fs,
		Scored:      scored,
		Ranked:      ranked,
		Top:         top,
		Global:      global,
		Diagnostics: diag,
	}

	metrics.RecordPipelineRun("success")
	span.SetAttributes(
		attribute.Int("pipeline.users", len(scored)),
		attribute.Int("pipeline.skipped", diag.Skipped),
	)
	p.logger.Info(ctx, "pipeline run finished",
		logger.Int("users", len(scored)),
		logger.Int("top", len(top)),
		logger.Float64("conversion_rate", global.ConversionRate),
		logger.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (p *Pipeline) warnSkipped(ctx context.Context, d *model.Diagnostics) {
	if d.Skipped == 0 {
		return
	}
	reasons := make([]string, 0, len(d.ByReason))
	for r := range d.ByReason {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	fields := []logger.Field{logger.Int("skipped", d.Skipped)}
	for _, r := range reasons {
		fields = append(fields, logger.Int(r, d.ByReason[model.WarningReason(r)]))
	}
	p.logger.Warn(ctx, "records skipped", fields...)
}

// numbered returns events with every missing Line set to the input position,
// so warnings raised after dedupe still point at the right record.
func numbered(events []model.Event) []model.Event {
	for i := range events {
		if events[i].Line == 0 {
			out := make([]model.Event, len(events))
			for j, ev := range events {
				if ev.Line == 0 {
					ev.Line = j + 1
				}
				out[j] = ev
			}
			return out
		}
	}
	return events
}

// reference is the latest event timestamp across users.
func reference(fs []model.UserFeatures) time.Time {
	var ref time.Time
	for _, f := range fs {
		if f.LastEventTS.After(ref) {
			ref = f.LastEventTS
		}
	}
	return ref
}

func compact[T any](xs []T, done []bool) []T {
	out := make([]T, 0, len(xs))
	for i, x := range xs {
		if done[i] {
			out = append(out, x)
		}
	}
	return out
}
