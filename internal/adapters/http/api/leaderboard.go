package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

const defaultLimit = 10

// handleLeaderboard handles GET /api/v1/leaderboard?limit=N.
func (s *Server) handleLeaderboard(c echo.Context) error {
	n := defaultLimit
	if raw := c.QueryParam("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest)
		}
		n = v
	}
	if n > s.maxLimit {
		return fmt.Errorf("%w: %d > %d", ErrLimitExceeded, n, s.maxLimit)
	}
	entries, err := s.store.TopN(c.Request().Context(), n)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}
