package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMetricsPathFormatter(t *testing.T) {
	tests := []struct {
		scenario   string
		statusCode int
		path       string
		expected   string
	}{
		{
			scenario:   "ok",
			statusCode: http.StatusOK,
			path:       "/stats",
			expected:   "/stats",
		},
		{
			scenario:   "not found",
			statusCode: http.StatusNotFound,
			path:       "/random",
		},
		{
			scenario:   "bad request",
			statusCode: http.StatusBadRequest,
			path:       "/select",
		},
		{
			scenario:   "preflight",
			statusCode: http.StatusNoContent,
			path:       "/select",
			expected:   "preflight",
		},
		{
			scenario:   "pprof",
			statusCode: http.StatusOK,
			path:       "/debug/pprof/heap",
			expected:   "/debug/pprof/",
		},
	}

	for _, test := range tests {
		t.Run(test.scenario, func(t *testing.T) {
			require.Equal(t, test.expected, MetricsPathFormatter(test.statusCode, test.path))
		})
	}
}

func TestListenAndServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		ListenAndServe(ctx,
			&http.Server{Addr: "127.0.0.1:0"},
			&http.Server{Addr: "127.0.0.1:0"},
		)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second * 5):
		t.Fatal("servers did not stop")
	}
}
