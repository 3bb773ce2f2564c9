// Package app собирает сервис учёта партий: хранилище, блокировки, gRPC API,
// outbox-воркеры и HTTP-эндпоинты метрик и health checks.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	ledgerv1 "github.com/alcosklad/alcoapp-sub000/api/ledger/v1"
	"github.com/alcosklad/alcoapp-sub000/internal/domain"
	"github.com/alcosklad/alcoapp-sub000/internal/events"
	healthcheck "github.com/alcosklad/alcoapp-sub000/internal/health"
	"github.com/alcosklad/alcoapp-sub000/internal/ledger"
	"github.com/alcosklad/alcoapp-sub000/internal/locations"
	"github.com/alcosklad/alcoapp-sub000/internal/messaging/kafka"
	"github.com/alcosklad/alcoapp-sub000/internal/metrics"
	"github.com/alcosklad/alcoapp-sub000/internal/sales"
	"github.com/alcosklad/alcoapp-sub000/internal/sequence"
	grpcsvc "github.com/alcosklad/alcoapp-sub000/internal/service/grpc"
	"github.com/alcosklad/alcoapp-sub000/internal/service/outbox"
	"github.com/alcosklad/alcoapp-sub000/internal/service/retention"
	"github.com/alcosklad/alcoapp-sub000/internal/shift"
	"github.com/alcosklad/alcoapp-sub000/internal/version"
)

const (
	shutdownTimeout     = 5 * time.Second
	outboxBacklogMaxAge = 5 * time.Minute
)

// services собранный граф доменных сервисов.
type services struct {
	ledger       *ledger.Ledger
	shifts       *shift.Reconciler
	orchestrator *sales.Orchestrator
	grpc         *grpcsvc.LedgerService
}

// buildServices связывает доменные сервисы поверх выбранных хранилищ.
func buildServices(deps *runtimeDependencies, logger *log.Entry) *services {
	ledgerMetrics := metrics.NewLedgerMetrics()
	emitter := events.NewEmitter(deps.outbox, deps.audit,
		events.WithLogger(logger.WithField("component", "events")),
		events.WithMetrics(ledgerMetrics),
	)

	numbers := sequence.New(locations.Default(), deps.orders, deps.batches, deps.locker,
		sequence.WithLogger(logger.WithField("component", "sequence")),
		sequence.WithMetrics(ledgerMetrics),
	)
	stock := ledger.New(deps.batches, deps.locker,
		ledger.WithBatchNumberer(numbers),
		ledger.WithWriteOffRepository(deps.writeOffs),
		ledger.WithEvents(emitter),
		ledger.WithLogger(logger.WithField("component", "ledger")),
		ledger.WithMetrics(ledgerMetrics),
	)
	shifts := shift.NewReconciler(deps.shifts, deps.orders, deps.locker,
		shift.WithEvents(emitter),
		shift.WithLogger(logger.WithField("component", "shift")),
		shift.WithMetrics(ledgerMetrics),
	)
	orchestrator := sales.NewOrchestrator(deps.directory, stock, numbers, deps.orders,
		sales.WithShifts(shifts),
		sales.WithEvents(emitter),
		sales.WithLogger(logger.WithField("component", "sales")),
		sales.WithMetrics(ledgerMetrics),
	)

	return &services{
		ledger:       stock,
		shifts:       shifts,
		orchestrator: orchestrator,
		grpc:         grpcsvc.NewLedgerService(orchestrator, stock, shifts, deps.directory, logger.WithField("layer", "grpc")),
	}
}

// Run поднимает сервис и блокируется до отмены ctx или фатальной ошибки
// одного из серверов. При отмене возвращает ctx.Err().
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close dependencies")
		}
	}()

	svc := buildServices(deps, logger)

	producer, publisher := initKafka(cfg, logger)
	defer closeKafkaProducer(producer, logger)

	worker := outbox.NewWorker(deps.outbox, publisher,
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithMaxFailedPolls(cfg.OutboxMaxFailedPolls),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
	cleaner := retention.NewOutboxCleaner(deps.outbox,
		retention.WithLogger(logger.WithField("component", "outbox-cleanup")),
		retention.WithRetention(cfg.OutboxRetention),
	)

	grpcServer, healthServer := newGRPCServer(svc.grpc, logger)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	for name, checker := range deps.checkers {
		healthHandler.RegisterChecker(name, checker)
	}
	healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxBacklogChecker(deps.outbox, outboxBacklogMaxAge))

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	httpLis, err := net.Listen("tcp", cfg.MetricsAddr)
	if err != nil {
		_ = grpcLis.Close()
		return err
	}
	metricsSrv := newMetricsServer(healthHandler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", grpcLis.Addr().String()).Info("gRPC сервер слушает")
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", httpLis.Addr().String()).Info("метрики и health checks доступны")
		if err := metricsSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		cleaner.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("получен сигнал остановки, останавливаем серверы")
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		stopGRPC(grpcServer, logger)
		shutdownHTTP(metricsSrv, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// newGRPCServer регистрирует API, gRPC health service и серверные метрики.
func newGRPCServer(service ledgerv1.LedgerServiceServer, logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	ledgerv1.RegisterLedgerServiceServer(server, service)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ledgerv1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	grpcMetrics.InitializeMetrics(server)
	return server, healthServer
}

// newMetricsServer HTTP-обработчики /metrics, /healthz, /livez, /readyz.
func newMetricsServer(healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

// initKafka создаёт producer и publisher для outbox. Без брокеров события
// остаются в outbox со статусом pending.
func initKafka(cfg Config, logger *log.Entry) (*kafka.Producer, domain.OutboxPublisher) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("kafka brokers are not configured, outbox events stay pending")
		return nil, nil
	}
	producer, err := kafka.NewProducer(cfg.KafkaBrokers, logger.WithField("component", "kafka-producer"))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, nil
	}
	logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
	return producer, kafka.NewOutboxPublisher(producer, cfg.KafkaTopic)
}

func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}

// stopGRPC ждёт завершения активных вызовов не дольше shutdownTimeout.
func stopGRPC(server *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
