package api

import "github.com/okian/intentrank/pkg/logger"

// Option configures a Server.
type Option func(*Server)

// WithMaxLimit caps the leaderboard limit parameter.
func WithMaxLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithStats sets the provider behind /api/v1/stats.
func WithStats(p StatsProvider) Option {
	return func(s *Server) {
		s.stats = p
	}
}

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
