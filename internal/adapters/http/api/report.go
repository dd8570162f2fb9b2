package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/okian/intentrank/internal/domain/explain"
	"github.com/okian/intentrank/internal/domain/model"
)

// distributionResponse is the score distribution of the current run.
type distributionResponse struct {
	Scores    explain.Distribution `json:"score_distribution"`
	Histogram []explain.Bin        `json:"histogram"`
	Labels    map[model.Label]int  `json:"label_counts"`
}

// handleSummary handles GET /api/v1/summary.
func (s *Server) handleSummary(c echo.Context) error {
	sum, err := s.store.Summary(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sum)
}

// handleDistribution handles GET /api/v1/distribution.
func (s *Server) handleDistribution(c echo.Context) error {
	g, err := s.store.Global(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, distributionResponse{Scores: g.Scores, Histogram: g.Histogram, Labels: g.Labels})
}

// handleExplain handles GET /api/v1/explain.
func (s *Server) handleExplain(c echo.Context) error {
	g, err := s.store.Global(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, g)
}
