package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dzmitry-Rybak/natours/config"
	"github.com/Dzmitry-Rybak/natours/db"
	"github.com/Dzmitry-Rybak/natours/handlers"
	"github.com/Dzmitry-Rybak/natours/logger"
	"github.com/Dzmitry-Rybak/natours/middleware"
	"github.com/Dzmitry-Rybak/natours/repository"
	"github.com/Dzmitry-Rybak/natours/services"
	"github.com/Dzmitry-Rybak/natours/telemetry"
	"github.com/Dzmitry-Rybak/natours/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const publicDir = "public"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, !cfg.IsProduction())
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(cfg.OTELEnabled)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	mongoClient, err := db.ConnectMongoDB(ctx, cfg.MongoURI(), log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(closeCtx); err != nil {
			log.Warn("mongodb disconnect", zap.Error(err))
		}
	}()
	database := mongoClient.Database(cfg.DatabaseName)
	if err := db.EnsureIndexes(ctx, database); err != nil {
		return err
	}

	redisClient, err := db.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return err
	}
	var limiter middleware.Limiter
	if redisClient != nil {
		defer redisClient.Close()
		limiter = middleware.NewRedisLimiter(redisClient, cfg.RateLimitMax, cfg.RateLimitWindow)
		log.Info("rate limiting backed by redis", zap.String("addr", cfg.RedisAddr))
	} else {
		mem := middleware.NewMemoryLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
		go mem.RunCleanup(ctx, 10*time.Minute)
		limiter = mem
	}

	natsConn, err := db.ConnectNATS(cfg.NatsURL, log)
	if err != nil {
		return err
	}
	var events services.EventBus
	if natsConn != nil {
		defer natsConn.Close()
		events = services.NewNATSBus(natsConn, log)
	} else {
		events = services.NewLocalBus(log)
	}
	defer events.Close()

	reviews := repository.NewReviewRepository(database)
	h := handlers.New(handlers.Deps{
		Tours:      repository.NewTourRepository(database, reviews),
		Users:      repository.NewUserRepository(database),
		Reviews:    reviews,
		Bookings:   repository.NewBookingRepository(database),
		Tokens:     utils.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL()),
		Mailer:     newMailer(cfg, log),
		Payments:   newPayments(cfg, log),
		Events:     events,
		Images:     services.NewImageStore(publicDir + "/img"),
		Log:        log,
		CookieTTL:  cfg.CookieTTL(),
		Production: cfg.IsProduction(),
	})
	if err := events.SubscribeCheckoutCompleted(h.CreateBookingCheckout); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	router := handlers.NewRouter(h, handlers.RouterOptions{
		Production:   cfg.IsProduction(),
		CORSOrigins:  cfg.CORSOrigins,
		RateLimitMax: cfg.RateLimitMax,
		Limiter:      limiter,
		Registry:     reg,
		PublicDir:    publicDir,
		Log:          log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("app running", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received, shutting down gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info("process terminated")
	return nil
}

func newMailer(cfg *config.Config, log *zap.Logger) services.Mailer {
	if cfg.EmailHost == "" {
		log.Info("EMAIL_HOST not set, emails are logged instead of sent")
		return services.NewLogMailer(log)
	}
	return services.NewSMTPMailer(services.SMTPConfig{
		Host:     cfg.EmailHost,
		Port:     cfg.EmailPort,
		Username: cfg.EmailUsername,
		Password: cfg.EmailPassword,
		From:     cfg.EmailFrom,
	})
}

func newPayments(cfg *config.Config, log *zap.Logger) services.Payments {
	if cfg.StripeSecretKey == "" {
		log.Info("STRIPE_SECRET_KEY not set, checkout is disabled")
		return services.NoPayments{}
	}
	return services.NewStripePayments(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
}
