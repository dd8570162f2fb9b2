// Package generator produces deterministic synthetic event batches for demos
// and load tests. The same Config always yields the same events.
package generator

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/okian/intentrank/internal/domain/model"
	"github.com/okian/intentrank/internal/domain/validation"
	"github.com/okian/intentrank/pkg/logger"
)

// Defaults.
const (
	DefaultUsers       = 100
	DefaultSeed        = 42
	DefaultDaysBack    = 30
	DefaultMinSessions = 1
	DefaultMaxSessions = 5
	DefaultMinEvents   = 1
	DefaultMaxEvents   = 8
)

// Sessions above this intent draw from the high-intent mix.
const highIntent = 0.85

// Gaps between events of one session.
const (
	minEventGap = 10 * time.Second
	maxEventGap = 3 * time.Minute
)

// Balance distribution: many small wallets, some large.
const (
	balanceMean   = 200.0
	balanceStdDev = 350.0
)

const maxPages = 15

var (
	eventTypes = []model.EventType{
		model.EventPageView,
		model.EventPricingView,
		model.EventSearch,
		model.EventChatMessage,
		model.EventDocDownload,
		model.EventDemoClick,
		model.EventSignup,
		model.EventCalendarBooking,
	}
	highIntentWeights = []float64{2, 4, 1, 2, 2, 3, 2, 2}
	lowIntentWeights  = []float64{7, 1, 3, 1, 1, 0.2, 0.1, 0.05}

	cities    = []string{"San Francisco", "New York", "Toronto", "London", "Bangalore"}
	devices   = []string{"desktop", "mobile"}
	usernames = []string{
		"alex_chen", "sarah_k", "jordan_m", "mike_t", "priya_p",
		"daniel_r", "emma_w", "liam_h", "noah_b", "olivia_s",
		"ethan_c", "maya_g", "nina_d", "chris_j", "guest",
	}

	namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/okian/intentrank/generator"))
)

// Config controls a generated batch.
type Config struct {
	Users int   `json:"users" validate:"gte=0"`
	Seed  int64 `json:"seed"`
	// Now anchors the batch; events fall within DaysBack days before it.
	Now         time.Time `json:"now" validate:"required"`
	DaysBack    int       `json:"days_back" validate:"gte=0"`
	MinSessions int       `json:"min_sessions" validate:"gte=1"`
	MaxSessions int       `json:"max_sessions" validate:"gtefield=MinSessions"`
	MinEvents   int       `json:"min_events" validate:"gte=1"`
	MaxEvents   int       `json:"max_events" validate:"gtefield=MinEvents"`
}

// DefaultConfig returns the default batch shape anchored at now.
func DefaultConfig(now time.Time) Config {
	return Config{
		Users:       DefaultUsers,
		Seed:        DefaultSeed,
		Now:         now.UTC().Truncate(time.Second),
		DaysBack:    DefaultDaysBack,
		MinSessions: DefaultMinSessions,
		MaxSessions: DefaultMaxSessions,
		MinEvents:   DefaultMinEvents,
		MaxEvents:   DefaultMaxEvents,
	}
}

// Validate reports an invalid configuration as a *model.ConfigError.
func (c Config) Validate() error {
	return validation.Struct("generator", c)
}

type profile struct {
	id       string
	username string
	city     string
	balance  float64
}

// Generate builds the batch described by cfg. Events are grouped by user and
// ordered by time within each session.
func Generate(ctx context.Context, cfg Config) ([]model.Event, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)^0x9e3779b97f4a7c15))

	var events []model.Event
	counter := 0
	for i := 0; i < cfg.Users; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("generate: %w", err)
		}
		p := newProfile(rng, i)
		sessions := between(rng, cfg.MinSessions, cfg.MaxSessions)
		for s := 0; s < sessions; s++ {
			sessionID := fmt.Sprintf("%s-s%d", p.id, s+1)
			intent := rng.Float64()
			weights := lowIntentWeights
			if intent > highIntent {
				weights = highIntentWeights
			}
			ts := start(rng, cfg.Now, cfg.DaysBack)
			n := between(rng, cfg.MinEvents, cfg.MaxEvents)
			for e := 0; e < n; e++ {
				typ := eventTypes[pick(rng, weights)]
				balance := p.balance
				events = append(events, model.Event{
					EventID:        eventID(cfg.Seed, counter),
					UserID:         p.id,
					Username:       p.username,
					SessionID:      sessionID,
					Type:           typ,
					Timestamp:      ts,
					Device:         devices[rng.IntN(len(devices))],
					LocationCity:   p.city,
					Page:           page(rng, typ),
					AccountBalance: &balance,
				})
				counter++
				ts = ts.Add(minEventGap + time.Duration(rng.Int64N(int64(maxEventGap-minEventGap))))
			}
		}
	}
	logger.Current().Named("generator").Debug(ctx, "generated events",
		logger.Int("users", cfg.Users),
		logger.Int("events", len(events)),
	)
	return events, nil
}

func newProfile(rng *rand.Rand, i int) profile {
	return profile{
		id:       fmt.Sprintf("u%04d", i),
		username: fmt.Sprintf("%s_%02d", usernames[rng.IntN(len(usernames))], i),
		city:     cities[rng.IntN(len(cities))],
		balance:  math.Round(math.Max(0, rng.NormFloat64()*balanceStdDev+balanceMean)*100) / 100,
	}
}

// eventID derives a stable id from the seed and the event's position.
func eventID(seed int64, n int) string {
	return uuid.NewSHA1(namespace, fmt.Appendf(nil, "%d/%d", seed, n)).String()
}

// start returns a session start within daysBack days before now, whole seconds.
func start(rng *rand.Rand, now time.Time, daysBack int) time.Time {
	days := rng.IntN(daysBack + 1)
	secs := rng.IntN(24 * 60 * 60)
	return now.AddDate(0, 0, -days).Add(-time.Duration(secs) * time.Second)
}

func page(rng *rand.Rand, t model.EventType) string {
	switch t {
	case model.EventPageView:
		return fmt.Sprintf("/page/%d", rng.IntN(maxPages)+1)
	case model.EventPricingView:
		return "/pricing"
	default:
		return "/" + string(t)
	}
}

// between returns a uniform int in [lo, hi].
func between(rng *rand.Rand, lo, hi int) int {
	return lo + rng.IntN(hi-lo+1)
}

// pick returns an index drawn with the given relative weights.
func pick(rng *rand.Rand, weights []float64) int {
	var total float64
	for _, w := range weights {
		total += w
	}
	r := rng.Float64() * total
	for i, w := range weights {
		if r < w {
			return i
		}
		r -= w
	}
	return len(weights) - 1
}
