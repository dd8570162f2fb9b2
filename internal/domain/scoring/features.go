package scoring

import "github.com/okian/intentrank/internal/domain/model"

// Feature names as they appear in contribution breakdowns.
const (
	FeatureSignups           = "signups"
	FeatureCalendarBookings  = "calendar_bookings"
	FeatureDemoClicks        = "demo_clicks"
	FeaturePricingViews      = "pricing_views"
	FeaturePageViews         = "page_views"
	FeatureRepeatSessionRate = "repeat_session_rate"
	FeatureAccountBalance    = "account_balance"
	FeatureBrowsingDepth     = "browsing_depth"

	// FeatureRecency and FeatureIntercept only appear in model breakdowns.
	FeatureRecency   = "recency"
	FeatureIntercept = "intercept"
)

// Tier is a dominance band of contribution points.
type Tier string

// Tiers, highest first.
const (
	TierHighIntent Tier = "high_intent"
	TierMidFunnel  Tier = "mid_funnel"
	TierEngagement Tier = "engagement"
)

// Kind selects the normalisation applied to a feature.
type Kind int

// Feature kinds.
const (
	KindCount      Kind = iota // saturating transform with a scale
	KindContinuous             // min-max against a range
)

// Definition describes one scored feature.
type Definition struct {
	Name    string
	Tier    Tier
	Kind    Kind
	Extract func(model.UserFeatures) float64
}

// definitions is the fixed evaluation order. Summing in this order keeps
// totals bit-identical across runs.
var definitions = []Definition{
	{FeatureSignups, TierHighIntent, KindCount, func(f model.UserFeatures) float64 { return float64(f.Signups) }},
	{FeatureCalendarBookings, TierHighIntent, KindCount, func(f model.UserFeatures) float64 { return float64(f.CalendarBookings) }},
	{FeatureDemoClicks, TierMidFunnel, KindCount, func(f model.UserFeatures) float64 { return float64(f.DemoClicks) }},
	{FeaturePricingViews, TierMidFunnel, KindCount, func(f model.UserFeatures) float64 { return float64(f.PricingViews) }},
	{FeaturePageViews, TierEngagement, KindCount, func(f model.UserFeatures) float64 { return float64(f.PageViews) }},
	{FeatureRepeatSessionRate, TierEngagement, KindContinuous, func(f model.UserFeatures) float64 { return f.RepeatSessionRate }},
	{FeatureAccountBalance, TierEngagement, KindContinuous, func(f model.UserFeatures) float64 { return f.AccountBalance }},
	{FeatureBrowsingDepth, TierEngagement, KindCount, func(f model.UserFeatures) float64 { return float64(f.BrowsingDepth) }},
}

// Definitions returns the scored features in evaluation order.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// FeatureNames returns the scored feature names in evaluation order.
func FeatureNames() []string {
	out := make([]string, len(definitions))
	for i, d := range definitions {
		out[i] = d.Name
	}
	return out
}

func lookup(name string) (Definition, bool) {
	for _, d := range definitions {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}
