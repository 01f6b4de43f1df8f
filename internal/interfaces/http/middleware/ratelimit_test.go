package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimitedRouter(t *testing.T, limit int) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	router := gin.New()
	router.Use(NewRateLimiter(client, limit, time.Hour).Limit())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router, mr
}

func get(router *gin.Engine) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiter_BlocksAboveLimit(t *testing.T) {
	router, _ := newLimitedRouter(t, 2)

	assert.Equal(t, http.StatusOK, get(router))
	assert.Equal(t, http.StatusOK, get(router))
	assert.Equal(t, http.StatusTooManyRequests, get(router))
}

func TestRateLimiter_FailsOpenWithoutRedis(t *testing.T) {
	router, mr := newLimitedRouter(t, 1)
	mr.Close()

	// With the counter store gone every request is let through.
	assert.Equal(t, http.StatusOK, get(router))
	assert.Equal(t, http.StatusOK, get(router))
}
