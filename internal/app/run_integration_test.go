package app

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	ledgerv1 "github.com/alcosklad/alcoapp-sub000/api/ledger/v1"
	healthcheck "github.com/alcosklad/alcoapp-sub000/internal/health"
)

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_InvalidStorageDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "invalid-driver"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"

	err := Run(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "unsupported storage driver") {
		t.Fatalf("expected unsupported storage driver error, got %v", err)
	}
}

func TestRun_BusyGRPCPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := DefaultConfig()
	cfg.GRPCAddr = busy.Addr().String()
	cfg.MetricsAddr = "127.0.0.1:0"

	require.Error(t, Run(context.Background(), cfg))
}

func TestBuildServices_ServesOverGRPC(t *testing.T) {
	logger := log.WithField("test", "grpc-wiring")
	cfg := DefaultConfig()

	deps, err := initRuntimeDependencies(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer func() { _ = deps.close() }()

	svc := buildServices(deps, logger)
	require.NotNil(t, svc.ledger)
	require.NotNil(t, svc.shifts)
	require.NotNil(t, svc.orchestrator)

	server, healthServer := newGRPCServer(svc.grpc, logger)
	lis := bufconn.Listen(1 << 20)
	go func() { _ = server.Serve(lis) }()
	defer stopGRPC(server, logger)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	health := healthpb.NewHealthClient(conn)
	resp, err := health.Check(ctx, &healthpb.HealthCheckRequest{Service: ledgerv1.ServiceName})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	resp, err = health.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	// Второй сервер в том же процессе переиспользует зарегистрированные метрики.
	second, _ := newGRPCServer(svc.grpc, logger)
	second.Stop()
}

func TestShutdownHelpers(t *testing.T) {
	logger := log.WithField("test", "shutdown")

	closeKafkaProducer(nil, logger)

	producer, publisher := initKafka(DefaultConfig(), logger)
	require.Nil(t, producer)
	require.Nil(t, publisher)

	server := grpc.NewServer()
	done := make(chan struct{})
	go func() {
		stopGRPC(server, logger)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * shutdownTimeout):
		t.Fatal("stopGRPC did not return")
	}
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := postgresTestDSNCandidate()
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn
	cfg.LockDriver = LockDriverPostgres

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer func() { _ = deps.close() }()

	require.NotNil(t, deps.batches)
	require.NotNil(t, deps.orders)
	require.NotNil(t, deps.outbox)
	require.NotNil(t, deps.locker)

	checker, ok := deps.checkers["postgres"]
	require.True(t, ok, "expected postgres health checker")
	check := checker.Check(context.Background())
	require.Equal(t, healthcheck.StatusHealthy, check.Status, "check: %+v", check)
}

func postgresTestDSNCandidate() string {
	return strings.TrimSpace(os.Getenv("LEDGER_POSTGRES_TEST_DSN"))
}
