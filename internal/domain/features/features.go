// Package features derives one UserFeatures record from a user's events.
package features

import (
	"sort"
	"time"

	"github.com/okian/intentrank/internal/domain/model"
	"github.com/okian/intentrank/internal/domain/session"
)

const day = 24 * time.Hour

// Build aggregates events into sessions and derives the user's features.
//
// ref is the batch reference timestamp and span the batch extent; a user with
// no accepted events is reported as inactive for the whole span.
func Build(userID string, events []model.Event, cfg session.Config, ref time.Time, span time.Duration) model.UserFeatures {
	return FromSessions(userID, session.Aggregate(userID, events, cfg), ref, span)
}

// FromSessions derives features from already aggregated sessions.
func FromSessions(userID string, sessions []model.Session, ref time.Time, span time.Duration) model.UserFeatures {
	f := model.UserFeatures{UserID: userID, TotalSessions: len(sessions)}
	if len(sessions) == 0 {
		f.DaysSinceLastEvent = wholeDays(span)
		return f
	}

	var (
		qualifying int // non-bounce, non-spam
		multi      int
		pages      = make(map[string]struct{})
		devices    = make(map[string]int)
		latest     time.Time
	)
	for _, s := range sessions {
		f.TotalEvents += s.EventCount()
		if s.End.After(latest) {
			latest = s.End
		}
		if s.IsBounce {
			f.BounceSessions++
		}
		if s.IsSpam {
			f.SpamSessions++
		}
		if !s.IsBounce && !s.IsSpam {
			qualifying++
			if s.EventCount() > 1 {
				multi++
			}
		}

		sessionPageViews := 0
		for _, ev := range s.Events {
			if ev.Device != "" {
				devices[ev.Device]++
			}
			// Sessions and their events are chronological, so the last value wins.
			if ev.AccountBalance != nil {
				f.AccountBalance = *ev.AccountBalance
			}
			if ev.LocationCity != "" {
				f.LocationCity = ev.LocationCity
			}
			if ev.Username != "" {
				f.Username = ev.Username
			}
			if s.IsSpam {
				if ev.Type == model.EventPageView {
					sessionPageViews++
				}
				continue
			}
			if ev.Page != "" {
				pages[ev.Page] = struct{}{}
			}
			switch ev.Type {
			case model.EventSignup:
				f.Signups++
			case model.EventCalendarBooking:
				f.CalendarBookings++
			case model.EventDemoClick:
				f.DemoClicks++
			case model.EventPricingView:
				f.PricingViews++
			case model.EventPageView:
				sessionPageViews++
			}
		}
		// Noisy sessions contribute at most one page view.
		if (s.IsBounce || s.IsSpam) && sessionPageViews > 1 {
			sessionPageViews = 1
		}
		f.PageViews += sessionPageViews
	}

	if qualifying > 0 {
		f.RepeatSessionRate = float64(multi) / float64(qualifying)
	}
	f.BounceRate = float64(f.BounceSessions) / float64(f.TotalSessions)
	f.SpamRate = float64(f.SpamSessions) / float64(f.TotalSessions)
	f.BrowsingDepth = len(pages)
	f.PrimaryDevice = mode(devices)
	f.LastEventTS = latest
	if d := wholeDays(ref.Sub(latest)); d > 0 {
		f.DaysSinceLastEvent = d
	}
	if f.Signups > 0 && f.CalendarBookings > 0 {
		f.Converted = 1
	}
	return f
}

func wholeDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / day)
}

// mode returns the most frequent key, breaking ties lexicographically.
func mode(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best, bestN := "", 0
	for _, k := range keys {
		if counts[k] > bestN {
			best, bestN = k, counts[k]
		}
	}
	return best
}
