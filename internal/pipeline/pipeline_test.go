package pipeline_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/okian/intentrank/internal/adapters/ingest"
	"github.com/okian/intentrank/internal/domain/model"
	"github.com/okian/intentrank/internal/domain/scoring"
	"github.com/okian/intentrank/internal/domain/session"
	"github.com/okian/intentrank/internal/pipeline"
	"github.com/okian/intentrank/pkg/logger"
)

var t0 = time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

func ev(id, user string, typ model.EventType, offset time.Duration) model.Event {
	return model.Event{EventID: id, UserID: user, Type: typ, Timestamp: t0.Add(offset), Page: "/" + string(typ)}
}

// batch covers a converting user, a browsing user, a user whose only event
// lacks a timestamp, a duplicate and an event without a user id.
func batch() []model.Event {
	return []model.Event{
		ev("e1", "carol", model.EventPageView, 0),
		ev("e2", "alice", model.EventPageView, 10*24*time.Hour),
		ev("e3", "alice", model.EventSignup, 10*24*time.Hour+time.Minute),
		ev("e4", "alice", model.EventCalendarBooking, 10*24*time.Hour+3*time.Minute),
		ev("e3", "alice", model.EventSignup, 10*24*time.Hour+time.Minute),
		ev("e5", "bob", model.EventPageView, 2*24*time.Hour),
		ev("e6", "bob", model.EventPricingView, 2*24*time.Hour+2*time.Minute),
		{EventID: "e7", UserID: "dave", Type: model.EventPageView},
		ev("e8", "", model.EventPageView, time.Hour),
	}
}

func newScorer() scoring.Scorer {
	s, err := scoring.NewRuleScorer(scoring.DefaultConfig())
	if err != nil {
		panic(err)
	}
	return s
}

func runConfig(n int) pipeline.RunConfig {
	return pipeline.RunConfig{Sessions: session.DefaultConfig(), Scorer: newScorer(), TopK: 3, TopN: n}
}

func TestBuildUserFeatures(t *testing.T) {
	Convey("Given a pipeline with a few workers", t, func() {
		p := pipeline.New(pipeline.WithWorkers(3), pipeline.WithQueueSize(2), pipeline.WithLogger(logger.Nop()))
		ctx := context.Background()

		Convey("When the batch is empty", func() {
			fs, diag, err := p.BuildUserFeatures(ctx, nil, session.DefaultConfig())

			Convey("Then no records are produced and nothing fails", func() {
				So(err, ShouldBeNil)
				So(fs, ShouldBeEmpty)
				So(diag.TotalRecords, ShouldEqual, 0)
			})
		})

		Convey("When the batch has good and bad records", func() {
			fs, diag, err := p.BuildUserFeatures(ctx, batch(), session.DefaultConfig())
			So(err, ShouldBeNil)

			Convey("Then every user id gets exactly one record, ordered by id", func() {
				ids := make([]string, len(fs))
				for i, f := range fs {
					ids[i] = f.UserID
				}
				So(ids, ShouldResemble, []string{"alice", "bob", "carol", "dave"})
			})

			Convey("Then bad records are counted, not fatal", func() {
				So(diag.TotalRecords, ShouldEqual, 9)
				So(diag.Skipped, ShouldEqual, 3)
				So(diag.Accepted, ShouldEqual, 6)
				So(diag.ByReason[model.ReasonDuplicateEvent], ShouldEqual, 1)
				So(diag.ByReason[model.ReasonMissingTimestamp], ShouldEqual, 1)
				So(diag.ByReason[model.ReasonMissingUserID], ShouldEqual, 1)
			})

			Convey("Then features are measured against the batch reference", func() {
				alice, bob, carol, dave := fs[0], fs[1], fs[2], fs[3]
				So(alice.Signups, ShouldEqual, 1)
				So(alice.CalendarBookings, ShouldEqual, 1)
				So(alice.Converted, ShouldEqual, 1)
				So(alice.DaysSinceLastEvent, ShouldEqual, 0)
				So(bob.DaysSinceLastEvent, ShouldEqual, 8)
				So(carol.DaysSinceLastEvent, ShouldEqual, 10)
				So(dave.TotalEvents, ShouldEqual, 0)
				So(dave.DaysSinceLastEvent, ShouldEqual, 10)
			})
		})

		Convey("When the session config is invalid", func() {
			_, _, err := p.BuildUserFeatures(ctx, batch(), session.Config{})

			Convey("Then a ConfigError is returned", func() {
				So(errors.Is(err, model.ErrConfig), ShouldBeTrue)
			})
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a traced, observed pipeline", t, func() {
		recorder := tracetest.NewSpanRecorder()
		provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
		otel.SetTracerProvider(provider)
		defer otel.SetTracerProvider(sdktrace.NewTracerProvider())

		log, logs := logger.NewObserved()
		p := pipeline.New(pipeline.WithWorkers(2), pipeline.WithLogger(log))
		ctx := context.Background()

		Convey("When the batch runs end to end", func() {
			res, err := p.Run(ctx, batch(), nil, runConfig(2))
			So(err, ShouldBeNil)

			Convey("Then the converting user ranks first with a high label", func() {
				So(len(res.Top), ShouldEqual, 2)
				So(res.Top[0].UserID, ShouldEqual, "alice")
				So(res.Top[0].Label, ShouldEqual, model.LabelHigh)
				So(res.Top[0].Explanation, ShouldNotBeEmpty)
				So(len(res.Ranked), ShouldEqual, 4)
			})

			Convey("Then the user with no accepted events ranks last with nothing to score", func() {
				last := res.Ranked[len(res.Ranked)-1]
				So(last.UserID, ShouldEqual, "dave")
				So(last.Score, ShouldEqual, 0)
				So(last.Label, ShouldEqual, model.LabelLow)
				So(last.Converted, ShouldEqual, 0)
			})

			Convey("Then every score is bounded", func() {
				for _, u := range res.Scored {
					So(u.Score, ShouldBeBetweenOrEqual, 0.0, 100.0)
				}
			})

			Convey("Then the global explanation covers the population", func() {
				So(res.Global.Users, ShouldEqual, 4)
				So(res.Global.Converted, ShouldEqual, 1)
				So(res.Scorer, ShouldEqual, scoring.NameRules)
				So(res.Reference.Equal(t0.Add(10*24*time.Hour+3*time.Minute)), ShouldBeTrue)
			})

			Convey("Then one span per stage is recorded", func() {
				names := map[string]bool{}
				for _, s := range recorder.Ended() {
					names[s.Name()] = true
				}
				So(names[pipeline.SpanRun], ShouldBeTrue)
				So(names[pipeline.SpanBuildFeatures], ShouldBeTrue)
				So(names[pipeline.SpanScoreUsers], ShouldBeTrue)
				So(names[pipeline.SpanRankUsers], ShouldBeTrue)
			})

			Convey("Then start, finish and skipped records are logged", func() {
				So(logs.FilterMessage("pipeline run started").Len(), ShouldEqual, 1)
				So(logs.FilterMessage("pipeline run finished").Len(), ShouldEqual, 1)
				So(logs.FilterMessage("records skipped").Len(), ShouldEqual, 1)
			})
		})

		Convey("When the same batch runs twice", func() {
			a, errA := p.Run(ctx, batch(), nil, runConfig(10))
			b, errB := p.Run(ctx, batch(), nil, runConfig(10))

			Convey("Then the output is identical", func() {
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				So(b.Scored, ShouldResemble, a.Scored)
				So(b.Ranked, ShouldResemble, a.Ranked)
				So(b.Global, ShouldResemble, a.Global)
			})
		})

		Convey("When N exceeds the population", func() {
			res, err := p.Run(ctx, batch(), nil, runConfig(50))

			Convey("Then everyone is returned", func() {
				So(err, ShouldBeNil)
				So(len(res.Top), ShouldEqual, 4)
			})
		})

		Convey("When load diagnostics are supplied", func() {
			loaded := model.NewDiagnostics()
			loaded.TotalRecords = 12
			loaded.Accepted = 9
			loaded.Warn(model.RecordWarning{Line: 3, Reason: model.ReasonBadTimestamp})
			loaded.Warn(model.RecordWarning{Line: 4, Reason: model.ReasonUnknownEventType})
			loaded.Warn(model.RecordWarning{Line: 5, Reason: model.ReasonBadTimestamp})
			res, err := p.Run(ctx, batch(), loaded, runConfig(3))

			Convey("Then they are chained with the pipeline's own", func() {
				So(err, ShouldBeNil)
				So(res.Diagnostics.TotalRecords, ShouldEqual, 12)
				So(res.Diagnostics.Accepted, ShouldEqual, 6)
				So(res.Diagnostics.Skipped, ShouldEqual, 6)
				So(res.Diagnostics.ByReason[model.ReasonBadTimestamp], ShouldEqual, 2)
				So(loaded.Skipped, ShouldEqual, 3)
			})
		})

		Convey("When the events are empty", func() {
			res, err := p.Run(ctx, nil, nil, runConfig(5))

			Convey("Then the result is empty, not an error", func() {
				So(err, ShouldBeNil)
				So(res.Features, ShouldBeEmpty)
				So(res.Top, ShouldBeEmpty)
			})
		})

		Convey("When no scorer is configured", func() {
			cfg := runConfig(5)
			cfg.Scorer = nil
			_, err := p.Run(ctx, batch(), nil, cfg)

			Convey("Then the run fails with a ConfigError", func() {
				So(errors.Is(err, model.ErrConfig), ShouldBeTrue)
			})
		})
	})
}

func TestScoreUsers(t *testing.T) {
	Convey("Given features for a batch", t, func() {
		p := pipeline.New(pipeline.WithWorkers(4), pipeline.WithLogger(logger.Nop()))
		fs, _, err := p.BuildUserFeatures(context.Background(), batch(), session.DefaultConfig())
		So(err, ShouldBeNil)

		Convey("When the context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := p.ScoreUsers(ctx, fs, newScorer(), 3)

			Convey("Then the cancellation is reported", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})

		Convey("When two configurations score the same features concurrently", func() {
			boosted := scoring.DefaultConfig()
			boosted.Weights[scoring.FeaturePageViews] = 15
			boosted.TierCaps[scoring.TierEngagement] = 15
			alt, err := scoring.NewRuleScorer(boosted)
			So(err, ShouldBeNil)
			base := newScorer()

			wantBase, _ := p.ScoreUsers(context.Background(), fs, base, 3)
			wantAlt, _ := p.ScoreUsers(context.Background(), fs, alt, 3)

			var wg sync.WaitGroup
			got := make([][]model.ScoredUser, 8)
			for i := range got {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					s := scoring.Scorer(base)
					if i%2 == 1 {
						s = alt
					}
					got[i], _ = p.ScoreUsers(context.Background(), fs, s, 3)
				}(i)
			}
			wg.Wait()

			Convey("Then neither run sees the other's configuration", func() {
				for i, g := range got {
					if i%2 == 1 {
						So(g, ShouldResemble, wantAlt)
					} else {
						So(g, ShouldResemble, wantBase)
					}
				}
				So(wantAlt[1].Score, ShouldBeGreaterThan, wantBase[1].Score)
			})
		})
	})
}

// rejectedCSV has a duplicate on line 3, then one user per rejection kind:
// bad timestamp (u3), empty timestamp (u4), unknown type (u5), NaN balance
// (u6), plus a row without a user id on line 9.
const rejectedCSV = `event_id,user_id,timestamp,event_type,account_balance_usd
e1,u1,2024-01-01T00:00:00Z,signup,100
e1,u1,2024-01-01T00:00:00Z,signup,100
e2,u2,2024-01-01T01:00:00Z,page_view,
e3,u3,not-a-time,signup,
e4,u4,,signup,
e5,u5,2024-01-01T00:00:00Z,teleport,
e6,u6,2024-01-01T00:00:00Z,signup,NaN
e7,,2024-01-01T00:00:00Z,page_view,
`

func TestLoadBoundary(t *testing.T) {
	Convey("Given events read from a file with rejected rows", t, func() {
		ctx := context.Background()
		p := pipeline.New(pipeline.WithWorkers(2), pipeline.WithLogger(logger.Nop()))
		events, loaded, err := ingest.ReadEvents(strings.NewReader(rejectedCSV), ingest.FormatCSV, "events.csv")
		So(err, ShouldBeNil)
		So(loaded.UserIDs(), ShouldResemble, []string{"u3", "u5", "u6"})

		Convey("When the whole batch runs", func() {
			res, err := p.Run(ctx, events, loaded, runConfig(10))
			So(err, ShouldBeNil)

			Convey("Then every user id gets exactly one record", func() {
				ids := make([]string, len(res.Features))
				for i, f := range res.Features {
					ids[i] = f.UserID
				}
				So(ids, ShouldResemble, []string{"u1", "u2", "u3", "u4", "u5", "u6"})
				for _, f := range res.Features[2:] {
					So(f.TotalEvents, ShouldEqual, 0)
					So(f.Signups, ShouldEqual, 0)
				}
			})

			Convey("Then every score is finite and u1 ranks first", func() {
				for _, u := range res.Scored {
					So(math.IsNaN(u.Score), ShouldBeFalse)
					So(u.Score, ShouldBeBetweenOrEqual, 0.0, 100.0)
				}
				So(res.Ranked[0].UserID, ShouldEqual, "u1")
			})

			Convey("Then each rejection is counted with its file line", func() {
				d := res.Diagnostics
				So(d.ByReason[model.ReasonBadTimestamp], ShouldEqual, 1)
				So(d.ByReason[model.ReasonUnknownEventType], ShouldEqual, 1)
				So(d.ByReason[model.ReasonMalformedRecord], ShouldEqual, 1)
				So(d.ByReason[model.ReasonMissingTimestamp], ShouldEqual, 1)
				So(d.ByReason[model.ReasonDuplicateEvent], ShouldEqual, 1)
				So(d.ByReason[model.ReasonMissingUserID], ShouldEqual, 1)

				lines := make(map[model.WarningReason]int)
				for _, w := range d.Warnings {
					lines[w.Reason] = w.Line
				}
				So(lines[model.ReasonDuplicateEvent], ShouldEqual, 3)
				So(lines[model.ReasonBadTimestamp], ShouldEqual, 5)
				So(lines[model.ReasonMissingTimestamp], ShouldEqual, 6)
				So(lines[model.ReasonUnknownEventType], ShouldEqual, 7)
				So(lines[model.ReasonMalformedRecord], ShouldEqual, 8)
				So(lines[model.ReasonMissingUserID], ShouldEqual, 9)
			})
		})

		Convey("When only features are built", func() {
			fs, _, err := p.BuildUserFeatures(ctx, events, session.DefaultConfig(), loaded.UserIDs()...)

			Convey("Then rejected users are still present", func() {
				So(err, ShouldBeNil)
				So(fs, ShouldHaveLength, 6)
			})
		})
	})

	Convey("Given in-memory events with a duplicate before a bad record", t, func() {
		p := pipeline.New(pipeline.WithLogger(logger.Nop()))
		events := []model.Event{
			ev("e1", "a", model.EventPageView, 0),
			ev("e1", "a", model.EventPageView, 0),
			{EventID: "e2", UserID: "b", Type: model.EventPageView},
		}

		Convey("Then warnings use input positions, not positions after dedupe", func() {
			_, diag, err := p.BuildUserFeatures(context.Background(), events, session.DefaultConfig())
			So(err, ShouldBeNil)
			So(diag.Warnings, ShouldHaveLength, 2)
			So(diag.Warnings[1].Reason, ShouldEqual, model.ReasonMissingTimestamp)
			So(diag.Warnings[1].Line, ShouldEqual, 3)
			So(events[2].Line, ShouldEqual, 0)
		})
	})
}
