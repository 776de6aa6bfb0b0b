package smoketest

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	tests := []struct {
		scenario string
		req      Request
	}{
		{
			scenario: "with rotations",
			req:      Request{Leaves: 200, Operations: 1000, Queries: 20, Seed: 42},
		},
		{
			scenario: "without rotations",
			req:      Request{Leaves: 200, Operations: 1000, Queries: 20, Seed: 42, DisableRotation: true},
		},
		{
			scenario: "single leaf",
			req:      Request{Leaves: 1, Operations: 1, Queries: 1, Seed: 7},
		},
	}

	for _, test := range tests {
		t.Run(test.scenario, func(t *testing.T) {
			res := Run(context.Background(), "test", test.req)
			require.True(t, res.Success, res.Errors)
			require.Empty(t, res.Errors)
			require.Equal(t, "test", res.RunID)
			require.Equal(t, test.req.Leaves, res.Leaves)
			require.NotZero(t, res.Duration)
		})
	}
}

func TestRunDefaults(t *testing.T) {
	res := Run(context.Background(), "test", Request{Seed: 1})
	require.True(t, res.Success, res.Errors)
	require.Equal(t, defaultLeaves, res.Leaves)
	require.Equal(t, defaultOperations, res.Operations)
	require.Equal(t, defaultQueries, res.Queries)
	require.Greater(t, res.Depth, 0)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := Run(ctx, "test", Request{Leaves: 10, Operations: 10, Seed: 1})
	require.False(t, res.Success)
	require.NotEmpty(t, res.Errors)
}

func TestSmokeTest(t *testing.T) {
	t.Run("smoke test success", func(t *testing.T) {
		// prepare
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		ctx = context.WithValue(ctx, testCtxKeyValue, testContext{
			Context: ctx,
			Cancel:  cancel,
		})

		// test
		var gotResult Results
		smokeTest := HandleSmokeTest(ctx, Options{
			SendResult: func(_ context.Context, res Results) error {
				gotResult = res
				return nil
			},
		})

		body, err := json.Marshal(Request{Leaves: 50, Operations: 100, Seed: 3})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "http://localcrowdnav/smoke-test", bytes.NewReader(body))

		smokeTest.ServeHTTP(rec, req)
		require.Equal(t, http.StatusAccepted, rec.Code)

		var res struct {
			RunID string `json:"run_id"`
		}
		err = json.Unmarshal(rec.Body.Bytes(), &res)
		require.NoError(t, err)
		require.NotEmpty(t, res.RunID)

		<-ctx.Done()

		require.True(t, gotResult.Success, gotResult.Errors)
		require.Equal(t, res.RunID, gotResult.RunID)
		require.Equal(t, 50, gotResult.Leaves)
	})

	t.Run("bad requests", func(t *testing.T) {
		smokeTest := HandleSmokeTest(context.Background(), Options{
			SendResult: func(context.Context, Results) error {
				t.Error("no run should start")
				return nil
			},
		})

		tests := []struct {
			scenario string
			method   string
			body     string
			code     int
		}{
			{
				scenario: "wrong method",
				method:   http.MethodGet,
				code:     http.StatusMethodNotAllowed,
			},
			{
				scenario: "invalid json",
				method:   http.MethodPost,
				body:     "{",
				code:     http.StatusBadRequest,
			},
			{
				scenario: "too many leaves",
				method:   http.MethodPost,
				body:     `{"leaves":100000000}`,
				code:     http.StatusBadRequest,
			},
			{
				scenario: "negative operations",
				method:   http.MethodPost,
				body:     `{"operations":-1}`,
				code:     http.StatusBadRequest,
			},
		}

		for _, test := range tests {
			t.Run(test.scenario, func(t *testing.T) {
				rec := httptest.NewRecorder()
				req := httptest.NewRequest(test.method, "http://localcrowdnav/smoke-test", bytes.NewBufferString(test.body))

				smokeTest.ServeHTTP(rec, req)
				require.Equal(t, test.code, rec.Code)
			})
		}
	})
}
