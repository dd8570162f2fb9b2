package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// handleStats handles GET /api/v1/stats: run diagnostics plus whatever the
// stats provider reports.
func (s *Server) handleStats(c echo.Context) error {
	out := map[string]any{}
	if s.stats != nil {
		for k, v := range s.stats.GetStats() {
			out[k] = v
		}
	}
	if d, err := s.store.Diagnostics(c.Request().Context()); err == nil {
		out["diagnostics"] = d
	}
	return c.JSON(http.StatusOK, out)
}
