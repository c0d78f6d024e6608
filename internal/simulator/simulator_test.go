package simulator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentUserAgent(t *testing.T) {
	t.Parallel()

	assert.Contains(t, AgentGooglebot.UserAgent(), "Googlebot")
	assert.Contains(t, AgentGPTBot.UserAgent(), "GPTBot")
	assert.Contains(t, AgentBingbot.UserAgent(), "bingbot")
	assert.Contains(t, AgentMobile.UserAgent(), "iPhone")

	// Unknown agents fall back to Googlebot.
	assert.Contains(t, Agent("made-up").UserAgent(), "Googlebot")
	assert.False(t, Agent("made-up").Valid())
	assert.True(t, AgentGPTBot.Valid())
}

// TestProbeReportsStatusAndUserAgent runs the probe against a local server
// and checks the impersonated agent arrives on the wire.
func TestProbeReportsStatusAndUserAgent(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotUA = r.UserAgent()
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	sim := New(Config{RequestTimeout: 5 * time.Second})
	defer sim.Close()

	result, err := sim.Run(context.Background(), srv.URL, AgentGPTBot, ModeProbe)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, http.StatusOK, result.Status)
	assert.Equal(t, 1, result.ResourceCount)
	assert.Equal(t, string(AgentGPTBot), result.SimulatedAgent)
	assert.Equal(t, string(ModeProbe), result.Mode)
	assert.Empty(t, result.Error)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, gotUA, "GPTBot")
}

// TestProbeServerError records the failure inside the result rather than as
// a simulator error.
func TestProbeServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sim := New(Config{RequestTimeout: 5 * time.Second})
	defer sim.Close()

	result, err := sim.Run(context.Background(), srv.URL, AgentGooglebot, "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, http.StatusInternalServerError, result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestRunValidation(t *testing.T) {
	t.Parallel()

	sim := New(Config{})
	defer sim.Close()

	_, err := sim.Run(context.Background(), "", AgentGooglebot, ModeProbe)
	require.Error(t, err)

	_, err = sim.Run(context.Background(), "http://example.invalid", AgentGooglebot, Mode("teleport"))
	require.Error(t, err)
}

// TestAcquireRespectsContext verifies a full limiter fails fast once the
// caller's context expires.
func TestAcquireRespectsContext(t *testing.T) {
	t.Parallel()

	sim := New(Config{MaxParallel: 1})
	defer sim.Close()

	require.NoError(t, sim.acquire(context.Background()))
	defer sim.release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := sim.acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
