package main

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestRunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	// Isolate from any real user config and pick a test port
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PERSONAD_SERVER__PORT", "8491")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Start daemon in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, "")
	}()

	// Wait for server to start
	time.Sleep(300 * time.Millisecond)

	// Test health check endpoint
	resp, err := http.Get("http://127.0.0.1:8491/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	// Cancel context to shut the daemon down
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not shut down in time")
	}
}

func TestRunHealthCheck_NoDaemon(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PERSONAD_SERVER__PORT", "8492")

	// Nothing listens on the probe port, so the probe must fail
	if code := runHealthCheck(""); code != 1 {
		t.Errorf("runHealthCheck() = %d, want 1", code)
	}
}
