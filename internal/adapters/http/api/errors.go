package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/okian/intentrank/internal/adapters/repository"
	"github.com/okian/intentrank/pkg/logger"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrLimitExceeded = errors.New("limit exceeds maximum")
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps domain errors to a status and a stable error code.
func statusFor(err error) (int, string) {
	var he *echo.HTTPError
	switch {
	case errors.Is(err, ErrLimitExceeded):
		return http.StatusBadRequest, "limit_exceeded"
	case errors.Is(err, ErrBadRequest), errors.Is(err, repository.ErrInvalidLimit):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, repository.ErrNoSnapshot):
		return http.StatusServiceUnavailable, "not_ready"
	case errors.As(err, &he):
		switch he.Code {
		case http.StatusNotFound:
			return he.Code, "not_found"
		case http.StatusMethodNotAllowed:
			return he.Code, "method_not_allowed"
		}
		return he.Code, "http_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, code := statusFor(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error(c.Request().Context(), "request failed", logger.Error(err), logger.String("path", c.Path()))
		msg = http.StatusText(status)
	}
	if werr := c.JSON(status, errorResponse{Code: code, Message: msg}); werr != nil {
		s.logger.Error(c.Request().Context(), "write error response", logger.Error(werr))
	}
}
