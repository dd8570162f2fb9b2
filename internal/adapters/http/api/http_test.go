package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/intentrank/internal/adapters/repository"
	"github.com/okian/intentrank/internal/domain/explain"
	"github.com/okian/intentrank/internal/domain/model"
	"github.com/okian/intentrank/internal/domain/ranking"
	"github.com/okian/intentrank/internal/domain/types"
	"github.com/okian/intentrank/pkg/logger"
)

type staticStats map[string]any

func (s staticStats) GetStats() map[string]any { return s }

func publishedStore() *repository.MemoryStore {
	users := []model.ScoredUser{
		{UserFeatures: model.UserFeatures{UserID: "u2", DaysSinceLastEvent: 3}, Score: 45, Label: model.LabelMedium,
			Contributions: map[string]float64{"demo_clicks": 12, "page_views": 2}},
		{UserFeatures: model.UserFeatures{UserID: "u1", Converted: 1}, Score: 91, Label: model.LabelHigh,
			Contributions: map[string]float64{"signups": 41, "calendar_bookings": 41}},
		{UserFeatures: model.UserFeatures{UserID: "u3", DaysSinceLastEvent: 30}, Score: 0, Label: model.LabelLow},
	}
	for i := range users {
		explain.Annotate(&users[i], 3)
	}
	ranked := ranking.Sort(users)
	s := repository.NewMemoryStore()
	err := s.Publish(context.Background(), &repository.Snapshot{
		RunID:       "run-42",
		Scorer:      "rules",
		Ranked:      ranked,
		Global:      explain.NewGlobal(ranked, 3),
		Diagnostics: model.Diagnostics{TotalRecords: 5, Accepted: 4, Skipped: 1, ByReason: map[model.WarningReason]int{model.ReasonBadTimestamp: 1}},
		TopK:        3,
	})
	So(err, ShouldBeNil)
	return s
}

func do(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode[T any](rec *httptest.ResponseRecorder) T {
	var v T
	So(json.Unmarshal(rec.Body.Bytes(), &v), ShouldBeNil)
	return v
}

func TestHealth(t *testing.T) {
	Convey("Given a server with no published run", t, func() {
		h := NewServer(repository.NewMemoryStore(), WithLogger(logger.Nop())).Handler()
		rec := do(h, http.MethodGet, "/healthz")
		So(rec.Code, ShouldEqual, http.StatusOK)
		So(decode[healthResponse](rec).Status, ShouldEqual, "starting")
	})

	Convey("Given a server with a published run", t, func() {
		h := NewServer(publishedStore(), WithLogger(logger.Nop())).Handler()
		body := decode[healthResponse](do(h, http.MethodGet, "/healthz"))
		So(body.Status, ShouldEqual, "ok")
		So(body.Users, ShouldEqual, 3)
	})
}

func TestLeaderboard(t *testing.T) {
	Convey("Given a published leaderboard", t, func() {
		h := NewServer(publishedStore(), WithMaxLimit(50), WithLogger(logger.Nop())).Handler()

		Convey("When a limit is given", func() {
			rec := do(h, http.MethodGet, "/api/v1/leaderboard?limit=2")
			So(rec.Code, ShouldEqual, http.StatusOK)
			entries := decode[[]types.Entry](rec)
			So(entries, ShouldHaveLength, 2)
			So(entries[0].UserID, ShouldEqual, "u1")
			So(entries[0].Rank, ShouldEqual, 1)
			So(entries[1].UserID, ShouldEqual, "u2")
		})

		Convey("When no limit is given the default applies", func() {
			rec := do(h, http.MethodGet, "/api/v1/leaderboard")
			So(decode[[]types.Entry](rec), ShouldHaveLength, 3)
		})

		Convey("When the limit is invalid", func() {
			for _, q := range []string{"limit=0", "limit=abc", "limit=-3"} {
				rec := do(h, http.MethodGet, "/api/v1/leaderboard?"+q)
				So(rec.Code, ShouldEqual, http.StatusBadRequest)
				So(decode[errorResponse](rec).Code, ShouldEqual, "bad_request")
			}
		})

		Convey("When the limit exceeds the maximum", func() {
			rec := do(h, http.MethodGet, "/api/v1/leaderboard?limit=51")
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(decode[errorResponse](rec).Code, ShouldEqual, "limit_exceeded")
		})
	})
}

func TestLeaderboardBeforeFirstRun(t *testing.T) {
	Convey("Given a server before its first run", t, func() {
		h := NewServer(repository.NewMemoryStore(), WithLogger(logger.Nop())).Handler()
		rec := do(h, http.MethodGet, "/api/v1/leaderboard?limit=5")
		So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
		So(decode[errorResponse](rec).Code, ShouldEqual, "not_ready")
	})
}

func TestUser(t *testing.T) {
	Convey("Given a published run", t, func() {
		h := NewServer(publishedStore(), WithLogger(logger.Nop())).Handler()

		Convey("When a ranked user is requested", func() {
			rec := do(h, http.MethodGet, "/api/v1/users/u2")
			So(rec.Code, ShouldEqual, http.StatusOK)
			d := decode[types.UserDetail](rec)
			So(d.Rank, ShouldEqual, 2)
			So(d.Total, ShouldEqual, 3)
			So(d.Top, ShouldHaveLength, 2)
			So(d.Top[0].Feature, ShouldEqual, "demo_clicks")
			So(d.User.Explanation, ShouldResemble, []string{"demo_clicks (+12.0 pts)", "page_views (+2.0 pts)"})
		})

		Convey("When an unknown user is requested", func() {
			rec := do(h, http.MethodGet, "/api/v1/users/nobody")
			So(rec.Code, ShouldEqual, http.StatusNotFound)
			So(decode[errorResponse](rec).Code, ShouldEqual, "not_found")
		})
	})
}

func TestSummaryDistributionExplain(t *testing.T) {
	Convey("Given a published run", t, func() {
		h := NewServer(publishedStore(), WithLogger(logger.Nop())).Handler()

		Convey("Then the summary reflects it", func() {
			rec := do(h, http.MethodGet, "/api/v1/summary")
			So(rec.Code, ShouldEqual, http.StatusOK)
			sum := decode[types.Summary](rec)
			So(sum.RunID, ShouldEqual, "run-42")
			So(sum.TotalUsers, ShouldEqual, 3)
			So(sum.Converted, ShouldEqual, 1)
			So(sum.Skipped, ShouldEqual, 1)
		})

		Convey("Then the distribution has five buckets", func() {
			rec := do(h, http.MethodGet, "/api/v1/distribution")
			So(rec.Code, ShouldEqual, http.StatusOK)
			dist := decode[distributionResponse](rec)
			So(dist.Histogram, ShouldHaveLength, 5)
			So(dist.Histogram[0].Range, ShouldEqual, "0-20")
			So(dist.Histogram[0].Count, ShouldEqual, 1)
			So(dist.Scores.Max, ShouldEqual, 91.0)
		})

		Convey("Then the global explanation covers every user", func() {
			rec := do(h, http.MethodGet, "/api/v1/explain")
			So(rec.Code, ShouldEqual, http.StatusOK)
			g := decode[explain.Global](rec)
			So(g.Users, ShouldEqual, 3)
			So(g.Features, ShouldNotBeEmpty)
		})
	})
}

func TestStats(t *testing.T) {
	Convey("Given a server with a stats source", t, func() {
		h := NewServer(publishedStore(), WithStats(staticStats{"runs": 2}), WithLogger(logger.Nop())).Handler()
		rec := do(h, http.MethodGet, "/api/v1/stats")
		So(rec.Code, ShouldEqual, http.StatusOK)
		body := decode[map[string]any](rec)
		So(body["runs"], ShouldEqual, 2.0)
		So(body, ShouldContainKey, "diagnostics")
	})
}

func TestMetricsEndpoint(t *testing.T) {
	Convey("Given a server that has served a request", t, func() {
		h := NewServer(publishedStore(), WithLogger(logger.Nop())).Handler()
		_ = do(h, http.MethodGet, "/api/v1/summary")

		rec := do(h, http.MethodGet, "/metrics")
		So(rec.Code, ShouldEqual, http.StatusOK)
		So(rec.Body.String(), ShouldContainSubstring, "intentrank_")
	})
}

func TestUnknownRouteAndMethod(t *testing.T) {
	Convey("Given a published run", t, func() {
		h := NewServer(publishedStore(), WithLogger(logger.Nop())).Handler()
		So(do(h, http.MethodGet, "/api/v1/nope").Code, ShouldEqual, http.StatusNotFound)

		rec := do(h, http.MethodPost, "/api/v1/summary")
		So(rec.Code, ShouldEqual, http.StatusMethodNotAllowed)
		So(decode[errorResponse](rec).Code, ShouldEqual, "method_not_allowed")
	})
}

func TestDocsRoutes(t *testing.T) {
	Convey("Given a server", t, func() {
		h := NewServer(repository.NewMemoryStore(), WithLogger(logger.Nop())).Handler()
		rec := do(h, http.MethodGet, "/openapi.yaml")
		So(rec.Code, ShouldEqual, http.StatusOK)
		So(rec.Body.String(), ShouldContainSubstring, "/api/v1/users/{id}")

		So(do(h, http.MethodGet, "/api-docs").Code, ShouldEqual, http.StatusOK)
	})
}
