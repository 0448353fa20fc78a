package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newLimitedRouter(rps float64, burst int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	rl := NewRateLimiter(rps, burst)
	r.POST("/login", rl.Middleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func doPost(router *gin.Engine, ip string) int {
	req := httptest.NewRequest("POST", "/login", nil)
	req.RemoteAddr = ip + ":12345"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiter_BurstThenReject(t *testing.T) {
	router := newLimitedRouter(1, 2)

	for i := 0; i < 2; i++ {
		if code := doPost(router, "10.0.0.1"); code != http.StatusOK {
			t.Fatalf("request %d: status = %d, expected 200", i+1, code)
		}
	}
	if code := doPost(router, "10.0.0.1"); code != http.StatusTooManyRequests {
		t.Errorf("over-burst request: status = %d, expected 429", code)
	}
}

func TestRateLimiter_PerIPIsolation(t *testing.T) {
	router := newLimitedRouter(1, 1)

	if code := doPost(router, "10.0.0.1"); code != http.StatusOK {
		t.Fatalf("first IP initial request: status = %d", code)
	}
	if code := doPost(router, "10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("first IP second request: status = %d, expected 429", code)
	}
	// A different IP has its own limiter
	if code := doPost(router, "10.0.0.2"); code != http.StatusOK {
		t.Errorf("second IP: status = %d, expected 200", code)
	}
}
