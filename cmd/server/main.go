// Command taskhub-server starts the task management HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/and161185/taskhub/internal/config"
	pkgcrypto "github.com/and161185/taskhub/internal/crypto"
	"github.com/and161185/taskhub/internal/limiter"
	"github.com/and161185/taskhub/internal/metrics"
	"github.com/and161185/taskhub/internal/migrate"
	"github.com/and161185/taskhub/internal/notify"
	"github.com/and161185/taskhub/internal/repository"
	"github.com/and161185/taskhub/internal/repository/memory"
	"github.com/and161185/taskhub/internal/repository/postgres"
	grpcserver "github.com/and161185/taskhub/internal/server/grpc"
	httpapi "github.com/and161185/taskhub/internal/server/http"
	"github.com/and161185/taskhub/internal/service"
	"github.com/and161185/taskhub/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const shutdownTimeout = 5 * time.Second

// openStore is swapped in tests.
var openStore = openStorage

type storage struct {
	users repository.UserRepository
	tasks repository.TaskRepository
	lim   limiter.Limiter
	db    httpapi.Pinger
	close func()
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run parses configuration, prepares storage and the broker, and serves HTTP
// (plus optional gRPC health) until SIGINT/SIGTERM. Every exit path returns
// here so deferred cleanup always runs.
func run(args []string) int {
	cfg, err := config.Load(args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 2
	}

	logger, err := newLogger(cfg.Dev)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)

	// A bad signing key is a configuration error; refuse to start.
	tokens, err := token.New(cfg.Token())
	if err != nil {
		logger.Error("token service", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("storage", zap.Error(err))
		return 1
	}
	defer st.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	col := metrics.NewCollector(reg)

	// Broker problems are logged inside Init and never stop the process.
	pub := notify.NewPublisher(cfg.Notify(), logger, notify.WithRecorder(col))
	pub.Init(ctx)

	authSvc := service.NewAuthService(st.users, pkgcrypto.NewHasher(cfg.PasswordScheme), tokens, st.lim, logger,
		service.WithLoginRecorder(col))
	userSvc := service.NewUserService(st.users)
	taskSvc := service.NewTaskService(st.tasks, st.users, pub, logger)

	if cfg.SeedAdmin {
		if _, err := authSvc.SeedAdmin(ctx); err != nil {
			logger.Error("seed admin", zap.Error(err))
			return 1
		}
	}

	if cfg.Consume {
		go func() {
			if err := pub.Consume(ctx, notify.LogHandler(logger.Named("consumer"))); err != nil {
				logger.Warn("consumer stopped", zap.Error(err))
			}
		}()
	}

	var rl *httpapi.RateLimiter
	if cfg.RateLimit > 0 {
		rl = httpapi.NewRateLimiter(cfg.RateLimit, 10*time.Minute)
		defer rl.Stop()
	}

	router := httpapi.NewRouter(httpapi.RouterDeps{
		Handler:     httpapi.NewHandler(authSvc, userSvc, taskSvc, logger.Named("http")),
		Verifier:    tokens,
		Log:         logger.Named("http"),
		CORSOrigin:  cfg.CORSOrigin,
		RateLimiter: rl,
		Recorder:    col,
		Metrics:     metrics.Handler(reg),
		Broker:      pub,
		DB:          st.db,
	})
	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		health := grpcserver.NewHealth(pub, 5*time.Second, logger)
		go health.Run(ctx)
		grpcSrv = grpcserver.NewServer(logger.Named("grpc"), health, cfg.Dev)

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			errCh <- fmt.Errorf("grpc listen: %w", err)
		} else {
			go func() {
				logger.Info("grpc health listening", zap.String("addr", cfg.GRPCAddr))
				if err := grpcSrv.Serve(lis); err != nil {
					errCh <- fmt.Errorf("grpc: %w", err)
				}
			}()
		}
	}

	exitCode := 0
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		exitCode = 1
	}

	shutdown(logger, httpSrv, grpcSrv, pub)
	logger.Info("shutdown complete")
	return exitCode
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (*storage, error) {
	if cfg.DSN == "" {
		log.Info("no DSN configured; using in-memory store")
		mem := memory.NewStore()
		return &storage{
			users: mem.Users(),
			tasks: mem.Tasks(),
			lim:   limiter.NewMemory(cfg.Login),
			close: func() {},
		}, nil
	}

	if err := migrate.Up(ctx, cfg.DSN, log.Named("migrate")); err != nil {
		return nil, err
	}
	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	return &storage{
		users: postgres.NewUserRepo(db),
		tasks: postgres.NewTaskRepo(db),
		lim:   limiter.NewPostgres(db.Pool, cfg.Login),
		db:    db,
		close: db.Close,
	}, nil
}

// shutdown stops intake first, then drains pending notifications.
func shutdown(log *zap.Logger, httpSrv *http.Server, grpcSrv *grpc.Server, pub *notify.Publisher) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}

	if grpcSrv != nil {
		done := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			grpcSrv.Stop()
		}
	}

	if err := pub.Close(ctx); err != nil {
		log.Warn("notification drain incomplete", zap.Error(err))
	}
}
