package explain_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/intentrank/internal/domain/explain"
	"github.com/okian/intentrank/internal/domain/model"
)

func TestLocal(t *testing.T) {
	Convey("Given a contribution breakdown", t, func() {
		contribs := map[string]float64{
			"signups":        41.5,
			"page_views":     -3.25,
			"demo_clicks":    3.25,
			"pricing_views":  9,
			"browsing_depth": 0,
		}

		Convey("The top entries are ordered by magnitude then name", func() {
			top := explain.Local(contribs, 4)
			So(len(top), ShouldEqual, 4)
			So(top[0].Feature, ShouldEqual, "signups")
			So(top[1].Feature, ShouldEqual, "pricing_views")
			So(top[2].Feature, ShouldEqual, "demo_clicks")
			So(top[3].Feature, ShouldEqual, "page_views")
			So(top[3].Direction, ShouldEqual, model.DirectionDown)
			So(top[0].Direction, ShouldEqual, model.DirectionUp)
		})

		Convey("Zero contributions are never listed", func() {
			top := explain.Local(contribs, 10)
			So(len(top), ShouldEqual, 4)
		})

		Convey("A non-positive k falls back to the default", func() {
			So(len(explain.Local(contribs, 0)), ShouldEqual, explain.DefaultTopK)
		})

		Convey("Rendering uses signed points", func() {
			top := explain.Local(contribs, 2)
			So(explain.Summary(top), ShouldEqual, "signups (+41.5 pts) + pricing_views (+9.0 pts)")
			So(explain.Render(model.Contribution{Feature: "page_views", Points: -3.26}), ShouldEqual, "page_views (-3.3 pts)")
		})
	})

	Convey("An empty breakdown has no strong signals", t, func() {
		So(explain.Summary(explain.Local(map[string]float64{"signups": 0}, 3)), ShouldEqual, explain.NoSignals)
	})

	Convey("Annotate fills the explanation lines", t, func() {
		u := model.ScoredUser{Contributions: map[string]float64{"signups": 10, "page_views": 1}}
		explain.Annotate(&u, 3)
		So(u.Explanation, ShouldResemble, []string{"signups (+10.0 pts)", "page_views (+1.0 pts)"})
	})
}

func scored(id string, score float64, label model.Label, converted int, contribs map[string]float64) model.ScoredUser {
	return model.ScoredUser{
		UserFeatures:  model.UserFeatures{UserID: id, Converted: converted},
		Score:         score,
		Label:         label,
		Contributions: contribs,
	}
}

func TestGlobal(t *testing.T) {
	Convey("Given a scored population", t, func() {
		users := []model.ScoredUser{
			scored("a", 90, model.LabelHigh, 1, map[string]float64{"signups": 40, "page_views": 2}),
			scored("b", 20, model.LabelLow, 0, map[string]float64{"signups": 0, "page_views": 4}),
			scored("c", 50, model.LabelMedium, 1, map[string]float64{"signups": 40, "page_views": 0}),
			scored("d", 20.5, model.LabelLow, 0, map[string]float64{"signups": 0, "page_views": 0}),
		}
		g := explain.NewGlobal(users, 1)

		Convey("Population counts are reported", func() {
			So(g.Users, ShouldEqual, 4)
			So(g.Converted, ShouldEqual, 2)
			So(g.ConversionRate, ShouldEqual, 0.5)
			So(g.Labels[model.LabelLow], ShouldEqual, 2)
			So(g.Labels[model.LabelHigh], ShouldEqual, 1)
		})

		Convey("Feature statistics are computed per feature in name order", func() {
			So(len(g.Features), ShouldEqual, 2)
			pv, su := g.Features[0], g.Features[1]
			So(pv.Feature, ShouldEqual, "page_views")
			So(su.Feature, ShouldEqual, "signups")
			So(su.Mean, ShouldEqual, 20)
			So(su.Variance, ShouldEqual, 400)
			So(su.TotalPoints, ShouldEqual, 80)
			So(su.Correlation, ShouldAlmostEqual, 1, 1e-12)
			So(su.CoOccurrence, ShouldEqual, 1)
			So(pv.CoOccurrence, ShouldEqual, 0.5)
			So(pv.Correlation, ShouldBeLessThan, 0)
		})

		Convey("The most frequent top feature is reported", func() {
			So(g.MostFrequent, ShouldEqual, "signups")
			So(g.Features[1].TopKCount, ShouldEqual, 2)
			So(g.Features[0].TopKCount, ShouldEqual, 1)
		})

		Convey("The score distribution and histogram are filled", func() {
			So(g.Scores.Min, ShouldEqual, 20)
			So(g.Scores.Max, ShouldEqual, 90)
			So(g.Scores.Median, ShouldEqual, 35.25)
			So(g.Scores.Mean, ShouldEqual, 45.125)
			So(g.Histogram, ShouldResemble, []explain.Bin{
				{Range: "0-20", Count: 1}, {Range: "21-40", Count: 1}, {Range: "41-60", Count: 1},
				{Range: "61-80", Count: 0}, {Range: "81-100", Count: 1},
			})
		})
	})

	Convey("An empty population is not an error", t, func() {
		g := explain.NewGlobal(nil, 3)
		So(g.Users, ShouldEqual, 0)
		So(g.Features, ShouldBeEmpty)
		So(len(g.Histogram), ShouldEqual, 5)
		So(g.MostFrequent, ShouldEqual, "")
	})

	Convey("Correlation is zero when nobody converted", t, func() {
		g := explain.NewGlobal([]model.ScoredUser{
			scored("a", 10, model.LabelLow, 0, map[string]float64{"signups": 1}),
			scored("b", 12, model.LabelLow, 0, map[string]float64{"signups": 3}),
		}, 3)
		So(g.Features[0].Correlation, ShouldEqual, 0)
	})
}
