package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(1, time.Hour, 2, testLogger())
	router := setupTestRouter()
	router.POST("/pay", limiter.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/pay", nil)
		req.Header.Set("X-Real-IP", "203.0.113.7")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimiter_KeysByUser(t *testing.T) {
	limiter := NewRateLimiter(1, time.Hour, 1, testLogger())
	users := []uuid.UUID{uuid.New(), uuid.New()}
	router := setupTestRouter()
	router.POST("/pay/:n", func(c *gin.Context) {
		n := c.Param("n")
		if n == "0" {
			c.Set(UserContextKey, UserContext{UserID: users[0]})
		} else {
			c.Set(UserContextKey, UserContext{UserID: users[1]})
		}
		c.Next()
	}, limiter.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	send := func(path string) int {
		req := httptest.NewRequest("POST", path, nil)
		req.Header.Set("X-Real-IP", "203.0.113.7")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("/pay/0"))
	assert.Equal(t, http.StatusOK, send("/pay/1"))
	assert.Equal(t, http.StatusTooManyRequests, send("/pay/0"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	limiter := NewRateLimiter(10, time.Minute, 1, testLogger())
	limiter.getLimiter("ip:1")
	limiter.getLimiter("ip:2")

	assert.Equal(t, 0, limiter.Cleanup(time.Hour))
	assert.Equal(t, 2, limiter.Cleanup(-time.Second))
	assert.Empty(t, limiter.limiters)
}
