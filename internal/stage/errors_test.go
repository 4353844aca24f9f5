package stage

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/datacrew-cli/internal/ai"
)

// statusProvider serves an OpenRouter-shaped endpoint that always fails with
// status and returns its base URL.
func statusProvider(t *testing.T, status int) string {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
			t.Skipf("skipping test: cannot open local listener (%v)", err)
		}
		t.Fatalf("listen tcp4: %v", err)
	}
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": http.StatusText(status)}})
	})}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return "http://" + ln.Addr().String()
}

func runtimeError(t *testing.T, baseURL string) error {
	t.Helper()
	c := ai.NewClientWithBaseURL("key", time.Second, 2, time.Millisecond, 5*time.Millisecond, baseURL)
	_, err := c.Generate(context.Background(), ai.GenerateRequest{
		Model:    "m",
		Messages: Messages(Validate, Request{Schema: schema}),
	})
	require.Error(t, err)
	return err
}

func TestClassifyRuntimeFailures(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusUnauthorized} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			err := Classify(Validate, runtimeError(t, statusProvider(t, status)))
			var pe *ProviderError
			require.ErrorAs(t, err, &pe)
			require.Equal(t, status, pe.StatusCode)
			require.Equal(t, Validate, pe.Stage)
			require.Equal(t, KindProvider, KindOf(err))
			require.False(t, retryable(err), "backoff for provider answers happens inside the runtime")
		})
	}

	t.Run("rate limit keeps the runtime error", func(t *testing.T) {
		err := Classify(Relate, runtimeError(t, statusProvider(t, http.StatusTooManyRequests)))
		var rl *ai.RateLimitError
		require.ErrorAs(t, err, &rl)
	})

	t.Run("unreachable", func(t *testing.T) {
		ln, err := net.Listen("tcp4", "127.0.0.1:0")
		if err != nil {
			t.Skipf("skipping test: cannot open local listener (%v)", err)
		}
		addr := ln.Addr().String()
		_ = ln.Close()

		cerr := Classify(Insight, runtimeError(t, "http://"+addr))
		var ne *NetworkError
		require.ErrorAs(t, cerr, &ne)
		require.Equal(t, KindNetwork, KindOf(cerr))
		require.True(t, retryable(cerr))
		var ue *ai.UnreachableError
		require.ErrorAs(t, cerr, &ue)
	})

	t.Run("deadline", func(t *testing.T) {
		cerr := Classify(Codegen, context.DeadlineExceeded)
		require.Equal(t, KindNetwork, KindOf(cerr))
		require.True(t, retryable(cerr))
	})
}
