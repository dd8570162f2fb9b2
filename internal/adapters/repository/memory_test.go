package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/intentrank/internal/domain/explain"
	"github.com/okian/intentrank/internal/domain/model"
	"github.com/okian/intentrank/internal/domain/ranking"
)

func scored(id string, score float64, days int, contribs map[string]float64) model.ScoredUser {
	u := model.ScoredUser{
		UserFeatures:  model.UserFeatures{UserID: id, DaysSinceLastEvent: days},
		Score:         score,
		Contributions: contribs,
		Label:         model.LabelLow,
	}
	if score >= 70 {
		u.Label = model.LabelHigh
	}
	explain.Annotate(&u, 2)
	return u
}

func fixture() *Snapshot {
	users := []model.ScoredUser{
		scored("carol", 12, 40, map[string]float64{"page_views": 2}),
		scored("alice", 88, 0, map[string]float64{"signups": 40, "calendar_bookings": 40, "page_views": 3}),
		scored("bob", 12, 40, nil),
	}
	users[1].Converted = 1
	ranked := ranking.Sort(users)
	return &Snapshot{
		RunID:       "run-1",
		Scorer:      "rules",
		Ranked:      ranked,
		Global:      explain.NewGlobal(ranked, 2),
		Diagnostics: model.Diagnostics{TotalRecords: 10, Accepted: 8, Skipped: 2},
		TopK:        2,
	}
}

func TestMemoryStore_BeforePublish(t *testing.T) {
	Convey("Given a store with nothing published", t, func() {
		ctx := context.Background()
		s := NewMemoryStore()

		So(s.Count(ctx), ShouldEqual, 0)
		_, err := s.TopN(ctx, 5)
		So(errors.Is(err, ErrNoSnapshot), ShouldBeTrue)
		_, err = s.User(ctx, "alice")
		So(errors.Is(err, ErrNoSnapshot), ShouldBeTrue)
		_, err = s.Summary(ctx)
		So(errors.Is(err, ErrNoSnapshot), ShouldBeTrue)
		So(errors.Is(s.Publish(ctx, nil), ErrNilSnapshot), ShouldBeTrue)
	})
}

func TestMemoryStore_TopN(t *testing.T) {
	Convey("Given a published run", t, func() {
		ctx := context.Background()
		s := NewMemoryStore()
		So(s.Publish(ctx, fixture()), ShouldBeNil)

		Convey("When the top two are read", func() {
			entries, err := s.TopN(ctx, 2)
			So(err, ShouldBeNil)
			So(entries, ShouldHaveLength, 2)
			So(entries[0].Rank, ShouldEqual, 1)
			So(entries[0].UserID, ShouldEqual, "alice")
			So(entries[0].Explanation, ShouldEqual, "calendar_bookings (+40.0 pts) + signups (+40.0 pts)")

			Convey("Then equal score and recency fall back to user id", func() {
				So(entries[1].UserID, ShouldEqual, "bob")
			})
		})

		Convey("When the limit exceeds the population", func() {
			all, err := s.TopN(ctx, 100)
			So(err, ShouldBeNil)
			So(all, ShouldHaveLength, 3)
			So(all[1].Explanation, ShouldEqual, "No strong signals")
		})

		Convey("When the limit is not positive", func() {
			_, err := s.TopN(ctx, 0)
			So(errors.Is(err, ErrInvalidLimit), ShouldBeTrue)
		})
	})
}

func TestMemoryStore_User(t *testing.T) {
	Convey("Given a published run", t, func() {
		ctx := context.Background()
		s := NewMemoryStore()
		So(s.Publish(ctx, fixture()), ShouldBeNil)

		d, err := s.User(ctx, "carol")
		So(err, ShouldBeNil)
		So(d.Rank, ShouldEqual, 3)
		So(d.Total, ShouldEqual, 3)
		So(d.Top, ShouldHaveLength, 1)
		So(d.Top[0].Feature, ShouldEqual, "page_views")
		So(d.Top[0].Direction, ShouldEqual, model.DirectionUp)

		_, err = s.User(ctx, "mallory")
		So(errors.Is(err, ErrNotFound), ShouldBeTrue)
	})
}

func TestMemoryStore_SummaryAndDiagnostics(t *testing.T) {
	Convey("Given a published run", t, func() {
		ctx := context.Background()
		s := NewMemoryStore()
		So(s.Publish(ctx, fixture()), ShouldBeNil)

		sum, err := s.Summary(ctx)
		So(err, ShouldBeNil)
		So(sum.RunID, ShouldEqual, "run-1")
		So(sum.TotalUsers, ShouldEqual, 3)
		So(sum.Converted, ShouldEqual, 1)
		So(sum.ConversionRate, ShouldAlmostEqual, 1.0/3, 1e-9)
		So(sum.AverageScore, ShouldAlmostEqual, (88.0+12+12)/3, 1e-9)
		So(sum.Skipped, ShouldEqual, 2)
		So(sum.Labels[model.LabelHigh], ShouldEqual, 1)

		diag, err := s.Diagnostics(ctx)
		So(err, ShouldBeNil)
		So(diag.Accepted, ShouldEqual, 8)

		g, err := s.Global(ctx)
		So(err, ShouldBeNil)
		So(g.Users, ShouldEqual, 3)
	})
}

func TestMemoryStore_PublishIsolation(t *testing.T) {
	Convey("Given a snapshot mutated after publish", t, func() {
		ctx := context.Background()
		fixed := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		s := NewMemoryStore(WithClock(func() time.Time { return fixed }))

		snap := fixture()
		So(s.Publish(ctx, snap), ShouldBeNil)
		snap.Ranked[0].UserID = "changed"

		entries, err := s.TopN(ctx, 1)
		So(err, ShouldBeNil)
		So(entries[0].UserID, ShouldEqual, "alice")

		cur, err := s.Current()
		So(err, ShouldBeNil)
		So(fixed.Equal(cur.PublishedAt), ShouldBeTrue)
	})
}

func TestMemoryStore_RejectsDuplicateUsers(t *testing.T) {
	Convey("Given a snapshot listing a user twice", t, func() {
		snap := fixture()
		snap.Ranked = append(snap.Ranked, snap.Ranked[0])
		So(NewMemoryStore().Publish(context.Background(), snap), ShouldNotBeNil)
	})
}

func TestMemoryStore_ConcurrentReadersSeeWholeRuns(t *testing.T) {
	Convey("Given writers republishing while readers page", t, func() {
		ctx := context.Background()
		s := NewMemoryStore()
		So(s.Publish(ctx, fixture()), ShouldBeNil)

		var torn atomic.Int64
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					snap := fixture()
					snap.RunID = fmt.Sprintf("run-%d-%d", w, i)
					_ = s.Publish(ctx, snap)
				}
			}(w)
		}
		for r := 0; r < 4; r++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 200; i++ {
					entries, err := s.TopN(ctx, 10)
					if err != nil || len(entries) != 3 {
						torn.Add(1)
					}
				}
			}()
		}
		wg.Wait()

		So(torn.Load(), ShouldEqual, 0)
	})
}
