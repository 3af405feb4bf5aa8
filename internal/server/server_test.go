package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/haskel/foodia/internal/config"
	"github.com/haskel/foodia/internal/monitor"
	"github.com/haskel/foodia/internal/recognizer"
)

func TestServer_Integration(t *testing.T) {
	store := saveModel(t, t.TempDir(), "Pizza", "Ramen", "Salad")

	agg := monitor.NewAggregator([]monitor.Monitor{
		monitor.NewCPUMonitor(),
		monitor.NewMemoryMonitor(),
	}, 100*time.Millisecond, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	agg.Start(ctx)
	defer agg.Stop()

	srv := New(config.Default(), recognizer.New(store, nil, testLogger()), store, agg, testLogger(), "0.1.0")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	t.Run("GET /health", func(t *testing.T) {
		time.Sleep(150 * time.Millisecond)

		resp, err := http.Get(ts.URL + "/health")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		var health HealthResponse
		if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if health.Host == nil || health.Host.Memory.TotalBytes == 0 {
			t.Error("memory total should not be zero")
		}
		if resp.Header.Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID header")
		}
		if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
			t.Error("missing security headers")
		}
	})

	t.Run("POST /predict", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/predict", "image/png", bytes.NewReader(pngBytes(t)))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected status 200, got %d", resp.StatusCode)
		}
		var pr PredictResponse
		if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if !pr.Success || len(pr.TopPredictions) != 3 {
			t.Errorf("unexpected prediction %+v", pr)
		}
	})

	t.Run("GET /unknown", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/unknown")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", resp.StatusCode)
		}
	})
}

func TestServer_StartShutdown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = port
	srv := New(cfg, recognizer.New(saveModel(t, t.TempDir(), "Pizza"), nil, testLogger()), nil, nil, testLogger(), "test")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + srv.Addr() + "/health")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not start: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		t.Errorf("Start returned %v", err)
	}
}
