package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentlightning/promptctl/pkg/store"
)

// fakeStore embeds a nil store.Store so tests only need to override the
// methods a given handler actually exercises; any unoverridden method panics
// if called, surfacing an incomplete test double instead of a silent no-op.
type fakeStore struct {
	store.Store
	pingErr error
}

func (f *fakeStore) Ping(ctx context.Context) error {
	return f.pingErr
}

func newTestServer(st store.Store) *Server {
	return &Server{echo: echo.New(), store: st}
}

func TestHealthHandler(t *testing.T) {
	t.Run("healthy when store ping succeeds", func(t *testing.T) {
		s := newTestServer(&fakeStore{})

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		c := s.echo.NewContext(req, rec)

		require.NoError(t, s.healthHandler(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, "connected", resp.Database)
	})

	t.Run("unhealthy when store ping fails", func(t *testing.T) {
		s := newTestServer(&fakeStore{pingErr: errors.New("connection refused")})

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		c := s.echo.NewContext(req, rec)

		require.NoError(t, s.healthHandler(c))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "unhealthy", resp.Status)
		assert.Equal(t, "unreachable", resp.Database)
	})
}
