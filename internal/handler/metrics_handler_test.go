package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/auth-api/internal/service"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func newOpsRouter(db Pinger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterOpsRoutes(router, NewMetricsHandler(service.NewMetricsService(), db))
	return router
}

func TestHealthAndReady(t *testing.T) {
	router := newOpsRouter(pingerFunc(func(context.Context) error { return nil }))

	rec := doRequest(router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(router, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestReadyFailsWhenDatabaseIsDown(t *testing.T) {
	router := newOpsRouter(pingerFunc(func(context.Context) error { return errors.New("down") }))

	rec := doRequest(router, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router := newOpsRouter(nil)

	rec := doRequest(router, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "goroutines_total")
}
