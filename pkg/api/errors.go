package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agentlightning/promptctl/pkg/store"
)

// httpErrorHandler renders every error as {"error": text}, per spec.md §6,
// overriding echo's default {"message": text} envelope.
func httpErrorHandler(err error, c *echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := "internal server error"

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		switch m := he.Message.(type) {
		case string:
			msg = m
		default:
			msg = fmt.Sprintf("%v", m)
		}
	} else {
		slog.Error("unhandled error", "error", err)
	}

	if jsonErr := c.JSON(code, &ErrorResponse{Error: msg}); jsonErr != nil {
		slog.Error("failed to write error response", "error", jsonErr)
	}
}

// mapServiceError maps the abstract error taxonomy of spec.md §7 to an HTTP
// error response.
func mapServiceError(err error) *echo.HTTPError {
	var validErr *store.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}
	var conflictErr *store.ConflictError
	if errors.As(err, &conflictErr) {
		return echo.NewHTTPError(http.StatusConflict, conflictErr.Reason)
	}
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	if errors.Is(err, store.ErrPermissionDenied) {
		return echo.NewHTTPError(http.StatusForbidden, "PermissionDenied")
	}
	if errors.Is(err, store.ErrExpired) {
		return echo.NewHTTPError(http.StatusConflict, "expired")
	}
	if errors.Is(err, store.ErrInvalidInput) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	slog.Error("unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
