package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/okian/intentrank/internal/adapters/repository"
)

type healthResponse struct {
	Status string `json:"status"`
	Users  int    `json:"users"`
}

// handleHealth handles GET /healthz. Status is "starting" until the first run
// is published.
func (s *Server) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()
	status := "ok"
	if _, err := s.store.Summary(ctx); errors.Is(err, repository.ErrNoSnapshot) {
		status = "starting"
	}
	return c.JSON(http.StatusOK, healthResponse{Status: status, Users: s.store.Count(ctx)})
}
