package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/fieldreserve/libs/auth"
	"github.com/md-rashed-zaman/fieldreserve/libs/config"
	"github.com/md-rashed-zaman/fieldreserve/libs/db"
	"github.com/md-rashed-zaman/fieldreserve/libs/grpcx"
	"github.com/md-rashed-zaman/fieldreserve/libs/httpx"
	"github.com/md-rashed-zaman/fieldreserve/libs/kafkax"
	otelx "github.com/md-rashed-zaman/fieldreserve/libs/otel"
	"github.com/md-rashed-zaman/fieldreserve/libs/runtime"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/admission"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/audit"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/booking"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/consumer"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/handlers"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/inbox"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/outbox"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/storage"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/sweeper"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type reservationStore interface {
	booking.Store
	sweeper.Expirer
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "healthcheck":
			os.Exit(healthcheck())
		case "admin-token":
			os.Exit(adminToken(os.Args[2:]))
		}
	}

	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	cfg, err := loadSettings()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.ServiceName)

	ctx, stop := runtime.SignalContext(context.Background())
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	var (
		fields   booking.FieldDirectory
		store    reservationStore
		recorder consumer.Recorder
		activity booking.ActivityLog
		checks   []runtime.ReadyCheck
	)
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set; using in-memory store")
		mem := storage.NewMemoryStore(storage.DefaultFields()...)
		fields, store, activity, recorder = mem, mem, mem, inbox.NewMemory()
	} else {
		pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{MaxConns: cfg.DBMaxConns})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()

		if cfg.AutoMigrate {
			if err := pool.Migrate(ctx, storage.Migrations()); err != nil {
				logger.Error("db migration failed", "err", err)
				panic(err)
			}
		}

		outboxRepo := outbox.NewRepository(pool)
		activityRepo := audit.NewRepository(pool)
		fields = storage.NewFieldRepository(pool)
		store = storage.NewReservationRepository(pool, outboxRepo, activityRepo)
		activity = activityRepo
		recorder = inbox.NewRepository(pool)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})

		publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   cfg.KafkaBrokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		})
		go publisher.Run(ctx)
	}

	var locker admission.Locker = admission.Noop{}
	bookLimit := httpx.NewRateLimiter(cfg.BookRateLimit, cfg.BookRateWindow, httpx.ClientIP).Middleware()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		locker = admission.NewRedisLocker(rdb, admission.RedisConfig{Prefix: cfg.ServiceName + ":admission"})
		bookLimit = httpx.NewRedisRateLimiter(rdb, cfg.BookRateLimit, cfg.BookRateWindow, cfg.ServiceName+":rl:book", httpx.ClientIP).
			Middleware(logger, true)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	svc := booking.NewService(fields, store, booking.Config{
		Location:    cfg.location,
		HorizonDays: cfg.HorizonDays,
		Pricing:     cfg.pricing,
		Locker:      locker,
		Activity:    activity,
		Logger:      logger,
	})

	if cfg.KafkaBrokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
		paymentConsumer := consumer.New(logger, recorder, consumer.Config{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
			Topic:   cfg.PaymentTopic,
		}, consumer.PaymentVerifiedHandler(svc, logger))
		go paymentConsumer.Run(ctx)
	}

	go sweeper.NewWorker(store, logger, sweeper.Config{
		Interval:  cfg.SweepInterval,
		BatchSize: cfg.SweepBatch,
	}).Run(ctx)

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.NewReservationHandler(svc, logger).Register(mux, handlers.Routes{
		Admin: httpx.RequireAuth(cfg.JWTSecret, auth.RoleAdmin),
		Book:  bookLimit,
	})
	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: httpx.SplitList(cfg.CORSOrigins),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(cfg.MaxBodyBytes),
		httpx.WithTimeout(cfg.RequestTimeout),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "reservation")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv, health := grpcx.NewServer(logger)
	go grpcx.WatchReadiness(ctx, health, cfg.ServiceName, 10*time.Second, checks...)
	go func() {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			logger.Error("grpc listen failed", "err", err)
			return
		}
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "timezone", cfg.FieldTimezone, "pricing", string(cfg.pricing))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	grpcSrv.GracefulStop()
	logger.Info("servers stopped")
}

// healthcheck queries the local gRPC health service; used as the container health command.
func healthcheck() int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	addr := "127.0.0.1:" + config.String("GRPC_PORT", "9090")
	conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{Timeout: 2 * time.Second})
	if err != nil {
		slog.Error("healthcheck dial failed", "addr", addr, "err", err)
		return 1
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		slog.Error("healthcheck not serving", "err", err, "status", resp.GetStatus().String())
		return 1
	}
	return 0
}

// adminToken prints a short-lived admin JWT for operators: admin-token <subject> [name].
func adminToken(args []string) int {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("load .env failed", "err", err)
		return 1
	}
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: reservation-service admin-token <subject> [name]")
		return 2
	}
	secret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		slog.Error("admin token", "err", err)
		return 1
	}
	name := ""
	if len(args) > 1 {
		name = args[1]
	}
	token, err := auth.SignHS256(args[0], name, auth.RoleAdmin, 12*time.Hour, secret)
	if err != nil {
		slog.Error("sign admin token failed", "err", err)
		return 1
	}
	fmt.Println(token)
	return 0
}
