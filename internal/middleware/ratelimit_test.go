package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_PerClientBurst(t *testing.T) {
	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "other clients have their own bucket")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("10.0.0.1"), "one token refills per second")
}

func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }

	rl.Allow("10.0.0.1")
	now = now.Add(limiterIdleTTL + time.Minute)
	rl.Allow("10.0.0.2")

	assert.Len(t, rl.clients, 1)
	assert.Contains(t, rl.clients, "10.0.0.2")
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name      string
		perSecond float64
		burst     int
		want      []int
	}{
		{"limited", 1, 1, []int{http.StatusOK, http.StatusTooManyRequests}},
		{"disabled", 0, 0, []int{http.StatusOK, http.StatusOK, http.StatusOK}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(RateLimit(tt.perSecond, tt.burst))
			r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

			for i, want := range tt.want {
				rec := httptest.NewRecorder()
				r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
				assert.Equal(t, want, rec.Code, "request %d", i)
			}
		})
	}
}
