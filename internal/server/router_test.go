package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/convrelay/convrelay/internal/handlers"
)

type stubPublisher struct{}

func (stubPublisher) Publish(ctx context.Context, subject string, data []byte) error { return nil }
func (stubPublisher) Close() error                                                   { return nil }

type stubLimiter struct{}

func (stubLimiter) Allow(ctx context.Context, key string) (bool, error) { return true, nil }
func (stubLimiter) Close() error                                        { return nil }

func TestRouter_HealthAndReadiness(t *testing.T) {
	h := handlers.NewEventHandler(stubPublisher{}, stubLimiter{}, "", nil)
	router := NewRouter(h)

	for _, path := range []string{"/api/health", "/healthz", "/readyz"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != http.StatusOK {
				t.Errorf("GET %s status = %d, want 200", path, w.Code)
			}
			if w.Header().Get("X-Request-ID") == "" {
				t.Errorf("GET %s missing X-Request-ID header", path)
			}
		})
	}
}
