package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// handleUser handles GET /api/v1/users/:id.
func (s *Server) handleUser(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return fmt.Errorf("%w: missing user id", ErrBadRequest)
	}
	d, err := s.store.User(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}
