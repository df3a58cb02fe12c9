package hub

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubStreamsBroadcasts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New(zap.NewNop())
	go h.Run(ctx)

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	h.Broadcast(map[string]string{"type": "pass_completed"})

	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}
	assert.JSONEq(t, `{"type":"pass_completed"}`, strings.TrimPrefix(strings.TrimSpace(line), "data: "))
}

func TestHubClosesClientsOnStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	h := New(zap.NewNop())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	<-stopped

	assert.Zero(t, h.ClientCount())

	late, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer late.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, late.StatusCode)
}
