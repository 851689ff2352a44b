package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/personad/internal/processor"
)

func TestNewStatsClient(t *testing.T) {
	client := NewStatsClient("http://localhost:8420")
	assert.NotNil(t, client)
	assert.Equal(t, "http://localhost:8420", client.baseURL)
	assert.NotNil(t, client.client)
}

func TestNewStatsClient_TrimsTrailingSlash(t *testing.T) {
	client := NewStatsClient("http://localhost:8420/")
	assert.Equal(t, "http://localhost:8420", client.baseURL)
}

func TestStatsClient_FetchStats_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/stats", r.URL.Path)

		stats := processor.Stats{
			RunsTotal:      42,
			RunsFailed:     3,
			ActiveRuns:     1,
			SuccessRatio:   0.928,
			MeanConfidence: 0.74,
			P95DurationMS:  21,
			RunsPerMinute:  6.0,
			Recent: []processor.RunSummary{
				{RunID: "run-1", SessionID: "support", Success: true, Confidence: 0.8},
			},
		}
		json.NewEncoder(w).Encode(stats)
	}))
	defer server.Close()

	client := NewStatsClient(server.URL)

	stats, err := client.FetchStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), stats.RunsTotal)
	assert.Equal(t, int64(3), stats.RunsFailed)
	assert.InDelta(t, 0.928, stats.SuccessRatio, 0.001)
	assert.Len(t, stats.Recent, 1)
	assert.Equal(t, "support", stats.Recent[0].SessionID)
}

func TestStatsClient_FetchStats_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(3 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewStatsClient(server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.FetchStats(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context deadline exceeded")
}

func TestStatsClient_FetchStats_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
	}))
	defer server.Close()

	client := NewStatsClient(server.URL)

	_, err := client.FetchStats(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status code 500")
}

func TestStatsClient_FetchStats_MalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("{invalid json"))
	}))
	defer server.Close()

	client := NewStatsClient(server.URL)

	_, err := client.FetchStats(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode response")
}

func TestStatsClient_FetchHealth_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)

		json.NewEncoder(w).Encode(Health{
			Status:   "ok",
			Version:  "1.2.3",
			Services: map[string]string{"store": "ok", "nats": "disabled"},
		})
	}))
	defer server.Close()

	client := NewStatsClient(server.URL)

	health, err := client.FetchHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "1.2.3", health.Version)
	assert.Equal(t, "ok", health.Services["store"])
}

func TestStatsClient_FetchHealth_Degraded(t *testing.T) {
	// Degraded daemons answer 503 but still carry the payload.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(Health{
			Status:   "degraded",
			Services: map[string]string{"store": "store is closed"},
		})
	}))
	defer server.Close()

	client := NewStatsClient(server.URL)

	health, err := client.FetchHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "degraded", health.Status)
	assert.Contains(t, health.Services["store"], "closed")
}

func TestStatsClient_FetchHealth_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewStatsClient(server.URL)

	_, err := client.FetchHealth(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status code 404")
}
