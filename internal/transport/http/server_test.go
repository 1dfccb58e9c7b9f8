package httptransport

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })

	rr := httptest.NewRecorder()
	CORS("http://localhost:5173")(next).ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/v1/measurements", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))

	rr = httptest.NewRecorder()
	CORS("")(next).ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/", nil))
	require.Equal(t, http.StatusTeapot, rr.Code)
	require.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRunStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, DefaultServerConfig(addr), http.NotFoundHandler(), zaptest.NewLogger(t))
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusNotFound
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
