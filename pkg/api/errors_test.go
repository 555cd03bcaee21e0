package api

import (
	"fmt"
	"net/http"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"

	"github.com/agentlightning/promptctl/pkg/store"
)

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		expectCode int
		expectMsg  string
	}{
		{
			name:       "validation error maps to 400",
			err:        store.NewValidationError("requiredApprovals", "must be >= 1"),
			expectCode: http.StatusBadRequest,
			expectMsg:  "must be >= 1",
		},
		{
			name:       "state conflict maps to 409",
			err:        store.NewConflict("AlreadyPending"),
			expectCode: http.StatusConflict,
			expectMsg:  "AlreadyPending",
		},
		{
			name:       "not found maps to 404",
			err:        fmt.Errorf("wrapped: %w", store.ErrNotFound),
			expectCode: http.StatusNotFound,
			expectMsg:  "resource not found",
		},
		{
			name:       "permission denied maps to 403",
			err:        store.ErrPermissionDenied,
			expectCode: http.StatusForbidden,
			expectMsg:  "PermissionDenied",
		},
		{
			name:       "expired maps to 409",
			err:        store.ErrExpired,
			expectCode: http.StatusConflict,
			expectMsg:  "expired",
		},
		{
			name:       "unknown error maps to 500",
			err:        fmt.Errorf("something unexpected happened"),
			expectCode: http.StatusInternalServerError,
			expectMsg:  "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he := mapServiceError(tt.err)
			assert.IsType(t, &echo.HTTPError{}, he)
			assert.Equal(t, tt.expectCode, he.Code)
			assert.Contains(t, he.Error(), tt.expectMsg)
		})
	}
}
