package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kbcanvas/kbcanvas/pkg/healthcheck"
)

func TestAcceptable(t *testing.T) {
	tests := []struct {
		status healthcheck.Status
		expect string
		want   bool
	}{
		{healthcheck.StatusHealthy, "healthy", true},
		{healthcheck.StatusDegraded, "healthy", false},
		{healthcheck.StatusDegraded, "degraded", true},
		{healthcheck.StatusUnhealthy, "degraded", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status)+"/"+tt.expect, func(t *testing.T) {
			assert.Equal(t, tt.want, acceptable(tt.status, tt.expect))
		})
	}
}

func TestRun(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
		want int
	}{
		{name: "healthy", body: `{"status":"healthy","checks":[]}`, code: http.StatusOK, want: exitCodeSuccess},
		{name: "degraded", body: `{"status":"degraded","checks":[{"name":"recommender","status":"degraded"}]}`, code: http.StatusOK, want: exitCodeSuccess},
		{name: "unhealthy", body: `{"status":"unhealthy"}`, code: http.StatusServiceUnavailable, want: exitCodeFailure},
		{name: "not json", body: `oops`, code: http.StatusOK, want: exitCodeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			got := run(Options{URL: srv.URL, Timeout: time.Second, Expect: "degraded", Format: "json"})
			assert.Equal(t, tt.want, got)
		})
	}
}
