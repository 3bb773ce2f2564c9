package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/alcosklad/alcoapp-sub000/internal/health"
	"github.com/alcosklad/alcoapp-sub000/internal/version"
)

// serveMetrics запускает HTTP-сервер метрик на свободном порту.
func serveMetrics(t *testing.T, handler *healthcheck.Handler) (*http.Server, string) {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := newMetricsServer(handler)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() { shutdownHTTP(srv, log.WithField("test", "cleanup")) })

	return srv, fmt.Sprintf("http://%s", lis.Addr().String())
}

func TestMetricsServer_Endpoints(t *testing.T) {
	_, base := serveMetrics(t, healthcheck.NewHandler(version.GetVersion()))

	tests := []struct {
		path     string
		wantBody string
	}{
		{path: "/metrics"},
		{path: "/healthz"},
		{path: "/livez", wantBody: "ok"},
		{path: "/readyz", wantBody: "ready"},
	}

	for _, tt := range tests {
		resp, err := http.Get(base + tt.path)
		if err != nil {
			t.Fatalf("GET %s: %v", tt.path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s returned status %d, expected 200", tt.path, resp.StatusCode)
		}
		if len(body) == 0 {
			t.Errorf("%s returned empty body", tt.path)
		}
		if tt.wantBody != "" && string(body) != tt.wantBody {
			t.Errorf("%s body = %q, want %q", tt.path, body, tt.wantBody)
		}
	}
}

func TestMetricsServer_ReadinessReflectsCheckers(t *testing.T) {
	handler := healthcheck.NewHandler(version.GetVersion())
	handler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func(context.Context) error {
		return errors.New("connection refused")
	}))
	_, base := serveMetrics(t, handler)

	resp, err := http.Get(base + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from /readyz, got %d", resp.StatusCode)
	}

	resp, err = http.Get(base + "/livez")
	if err != nil {
		t.Fatalf("GET /livez: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("liveness must not depend on checkers, got %d", resp.StatusCode)
	}
}

func TestShutdownHTTP_NilServer(_ *testing.T) {
	shutdownHTTP(nil, log.WithField("test", "http-nil"))
}

func TestShutdownHTTP_WithServer(t *testing.T) {
	srv, base := serveMetrics(t, healthcheck.NewHandler(version.GetVersion()))

	resp, err := http.Get(base + "/livez")
	if err != nil {
		t.Fatalf("server should be running: %v", err)
	}
	resp.Body.Close()

	shutdownHTTP(srv, log.WithField("test", "http-shutdown"))

	client := &http.Client{Timeout: time.Second}
	if _, err := client.Get(base + "/livez"); err == nil {
		t.Error("server should be stopped after shutdownHTTP")
	}
}
