package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/carecycle/libs/config"
	"github.com/md-rashed-zaman/carecycle/libs/db"
	"github.com/md-rashed-zaman/carecycle/libs/grpcx"
	"github.com/md-rashed-zaman/carecycle/libs/httpx"
	"github.com/md-rashed-zaman/carecycle/libs/kafkax"
	otelx "github.com/md-rashed-zaman/carecycle/libs/otel"
	"github.com/md-rashed-zaman/carecycle/libs/runtime"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/consumer"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/handlers"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/inbox"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/lease"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/lifecycle"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/metrics"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/notify"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/outbox"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/scheduler"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/storage"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/transition"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	service := config.String("SERVICE_NAME", "lifecycle-service")
	port, err := config.Port("PORT", "8088")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)
	cfg := loadSettings(logger)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(cfg.DBMaxConns)})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	brokers := config.String("KAFKA_BROKERS", "")
	collector := metrics.NewCollector()
	formatter := lifecycle.NewFormatter(cfg.Location)
	store := storage.NewAppointmentRepository(pool)
	outboxRepo := outbox.NewRepository()

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	dispatcher := notify.NewGuard(notify.NewOutboxDispatcher(pool, outboxRepo), logger, notify.GuardConfig{
		Timeout:   cfg.NotifyTimeout,
		QueueSize: cfg.NotifyQueueSize,
		Workers:   cfg.NotifyWorkers,
		OnResult:  collector.Notification,
	})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := dispatcher.Close(closeCtx); err != nil {
			logger.Warn("notification queue not drained", "err", err)
		}
	}()

	var tickLease lease.Lease = lease.NewLocal()
	rateLimit := httpx.NewRateLimiter(cfg.RateLimit, time.Minute, nil).Middleware()
	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		redisDB, err := config.IntAtLeast("REDIS_DB", 0, 0)
		if err != nil {
			logger.Warn("invalid REDIS_DB, using 0", "err", err)
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer rdb.Close()
		tickLease = lease.NewRedis(rdb, "lifecycle:tick", cfg.LeaseTTL)
		rateLimit = httpx.NewRedisRateLimiter(rdb, cfg.RateLimit, time.Minute, "lifecycle:rl", nil).Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	if brokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	worker := scheduler.NewWorker(store, dispatcher, logger, scheduler.WorkerConfig{
		Interval:  cfg.TickInterval,
		Rules:     cfg.Rules,
		Formatter: formatter,
		Lease:     tickLease,
		Observer:  collector,
	})
	go worker.Run(ctx)
	readyChecks = append(readyChecks, runtime.ReadyCheck{
		Name:  "scheduler",
		Check: runtime.FreshnessCheck(worker.LastTick, 3*worker.Interval(), nil),
	})

	eventConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "lifecycle-service"),
		Topic:   config.String("KAFKA_CONSUME_TOPIC", "booking.appointment.booked.v1"),
	}, consumer.NewBookedHandler(store, dispatcher, formatter, logger))
	go eventConsumer.Run(ctx)

	transitions := transition.NewService(store, dispatcher, logger, transition.Config{
		Formatter: formatter,
		Recorder:  collector,
	})
	handler := newRouter(handlers.NewAppointmentHandler(transitions, logger), logger, routerConfig{
		JWTSecret:   config.String("JWT_SECRET", "dev-secret"),
		RateLimit:   rateLimit,
		Metrics:     collector.Handler(),
		ReadyChecks: readyChecks,
	})
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(handler, "lifecycle"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	if grpcPort := config.String("GRPC_PORT", "9088"); grpcPort != "" {
		lis, err := net.Listen("tcp", ":"+grpcPort)
		if err != nil {
			logger.Error("grpc listen failed", "err", err)
		} else {
			grpcSrv, health := grpcx.NewServer(logger)
			health.SetServingStatus(service, healthpb.HealthCheckResponse_SERVING)
			go func() {
				logger.Info("grpc server starting", "addr", lis.Addr().String())
				if err := grpcSrv.Serve(lis); err != nil {
					logger.Error("grpc server error", "err", err)
				}
			}()
			defer func() {
				health.Shutdown()
				grpcSrv.GracefulStop()
			}()
		}
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
