package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("user not found")
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
	ErrNoSnapshot   = errors.New("no run published yet")
	ErrNilSnapshot  = errors.New("snapshot is nil")
)
