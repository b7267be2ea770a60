package web

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/deemkeen/mangafedi/domain"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestGetLimiter(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(10), 20)

	first := rl.getLimiter("192.168.1.1")
	if first != rl.getLimiter("192.168.1.1") {
		t.Error("getLimiter should return the same limiter for the same IP")
	}
	if first == rl.getLimiter("192.168.1.2") {
		t.Error("getLimiter should return different limiters for different IPs")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		requestCount   int
		rateLimit      rate.Limit
		burst          int
		expectedStatus int
	}{
		{
			name:           "under limit",
			requestCount:   5,
			rateLimit:      rate.Limit(10),
			burst:          10,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "at burst limit",
			requestCount:   10,
			rateLimit:      rate.Limit(1),
			burst:          10,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "over limit",
			requestCount:   15,
			rateLimit:      rate.Limit(1),
			burst:          10,
			expectedStatus: http.StatusTooManyRequests,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := NewRateLimiter(tt.rateLimit, tt.burst)
			router := gin.New()
			router.Use(RateLimitMiddleware(rl))
			router.GET("/test", func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			var lastStatus int
			for i := 0; i < tt.requestCount; i++ {
				w := httptest.NewRecorder()
				req, _ := http.NewRequest("GET", "/test", nil)
				req.RemoteAddr = "192.168.1.100:12345"
				router.ServeHTTP(w, req)
				lastStatus = w.Code
			}

			if lastStatus != tt.expectedStatus {
				t.Errorf("Expected final status %d, got %d", tt.expectedStatus, lastStatus)
			}
		})
	}
}

func TestRateLimitMiddlewareDifferentIPs(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := NewRateLimiter(rate.Limit(1), 1)
	router := gin.New()
	router.Use(RateLimitMiddleware(rl))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for _, ip := range []string{"10.0.0.1:1", "10.0.0.2:1", "10.0.0.3:1"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		req.RemoteAddr = ip
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200 for %s, got %d", ip, w.Code)
		}
	}
}

func TestMaxBytesMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		maxBytes       int64
		bodySize       int
		expectedStatus int
	}{
		{
			name:           "under limit",
			maxBytes:       1024,
			bodySize:       512,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "at limit",
			maxBytes:       1024,
			bodySize:       1024,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "over limit by content-length",
			maxBytes:       1024,
			bodySize:       2048,
			expectedStatus: http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(MaxBytesMiddleware(tt.maxBytes))
			router.POST("/test", func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			w := httptest.NewRecorder()
			req, _ := http.NewRequest("POST", "/test", strings.NewReader(strings.Repeat("x", tt.bodySize)))
			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestPruneLimiters(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(10), 20)

	for i := 0; i < 100; i++ {
		rl.getLimiter(fmt.Sprintf("10.0.%d.%d", i/256, i%256))
	}
	rl.prune()
	if len(rl.limiters) != 100 {
		t.Errorf("Expected 100 limiters below the threshold, got %d", len(rl.limiters))
	}

	for i := 0; i < maxTrackedClients+1; i++ {
		rl.getLimiter(fmt.Sprintf("10.%d.%d.%d", i/65536, (i/256)%256, i%256))
	}
	rl.prune()
	if len(rl.limiters) != 0 {
		t.Errorf("Expected 0 limiters after cleanup, got %d", len(rl.limiters))
	}
}

func TestRunCleanupStopsOnCancel(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(10), 20)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		rl.RunCleanup(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunCleanup did not return after cancel")
	}
}

func TestAdminTokenMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		token          string
		header         string
		expectedStatus int
	}{
		{"disabled", "", "Bearer anything", http.StatusNotFound},
		{"missing header", "s3cret", "", http.StatusUnauthorized},
		{"wrong scheme", "s3cret", "Basic s3cret", http.StatusUnauthorized},
		{"wrong token", "s3cret", "Bearer nope", http.StatusUnauthorized},
		{"valid", "s3cret", "Bearer s3cret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(AdminTokenMiddleware(tt.token))
			router.GET("/admin", func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

type stubAuthenticator struct {
	password string
	err      error
}

func (s stubAuthenticator) Authenticate(_ context.Context, username, password string) (*domain.Account, error) {
	if s.err != nil {
		return nil, s.err
	}
	if password != s.password {
		return nil, domain.ForbiddenError("invalid credentials")
	}
	return &domain.Account{Username: username}, nil
}

func TestBasicAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		auth           stubAuthenticator
		password       string
		withAuth       bool
		expectedStatus int
	}{
		{"no credentials", stubAuthenticator{password: "pw"}, "", false, http.StatusUnauthorized},
		{"wrong password", stubAuthenticator{password: "pw"}, "nope", true, http.StatusUnauthorized},
		{"storage failure", stubAuthenticator{err: domain.InternalError(fmt.Errorf("disk"))}, "pw", true, http.StatusInternalServerError},
		{"valid", stubAuthenticator{password: "pw"}, "pw", true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(BasicAuthMiddleware(tt.auth))
			router.GET("/me", func(c *gin.Context) {
				c.String(http.StatusOK, currentAccount(c).Username)
			})

			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/me", nil)
			if tt.withAuth {
				req.SetBasicAuth("alice", tt.password)
			}
			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.expectedStatus == http.StatusOK && w.Body.String() != "alice" {
				t.Errorf("Expected account alice in context, got %q", w.Body.String())
			}
		})
	}
}
