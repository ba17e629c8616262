package bookingservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"motoride/internal/general/config"
	"motoride/internal/general/jwt"
	"motoride/internal/general/logger"
	"motoride/internal/general/postgres"
	"motoride/internal/general/rabbitmq"
	"motoride/internal/general/redisstore"
	"motoride/internal/software/booking/handler"
	"motoride/internal/software/booking/service"
	"motoride/internal/tracking"
)

// Run wires the booking service and blocks until ctx is cancelled.
func Run(ctx context.Context, maxConcurrent int) error {
	// set up a new logger and context with a static request ID for startup logs
	logger := logger.New("booking-service")
	ctx = logger.WithRequestID(ctx, "startup-001")

	// load a config from file
	cfg, err := config.LoadFromFile("config/config.yaml")
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	// set up a Postgres connection pool
	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	// connect to Redis for the coordination keys
	rdb, err := redisstore.NewClient(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "redis_connection_failed", "Failed to connect to Redis", err, nil)
		return err
	}
	defer rdb.Close()

	// connect to RabbitMQ
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()

	// set up the RabbitMQ publisher
	pub := &rabbitmq.MQPublisher{Client: rmq}

	// set up the JWT manager
	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, 2*time.Hour)

	// set up the repositories and coordination store
	uow := postgres.NewUnitOfWork(pool)
	bookingRepo := postgres.NewBookingRepo()
	driverRepo := postgres.NewDriverRepo()
	userRepo := postgres.NewUserRepo()
	coordination := redisstore.NewStore(rdb)

	// tracking probes carry their own hard deadline
	trackingClient := tracking.NewClient(cfg.Services.TrackingBaseURL, cfg.TrackingTimeout(), logger)

	// set up the booking coordinator
	svc := service.NewBookingService(logger, cfg, uow, bookingRepo, driverRepo, userRepo, coordination, trackingClient, pub, rmq)

	// run the timeout reaper and the trip/cancel consumers
	svc.RunBackgroundWorkers(ctx)

	// set up the HTTP handler and its routes
	mux := http.NewServeMux()
	httpHandler := handler.NewBookingHTTPHandler(svc, logger, jwtManager)
	httpHandler.RegisterRoutes(mux)

	// concurrency limiter (global) — blocks when capacity is full
	limitedHandler := withConcurrencyLimit(maxConcurrent, mux)

	// set up the server configurations
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Services.BookingServicePort),
		Handler:           limitedHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	// log service start
	logger.Info(ctx, "service_started",
		fmt.Sprintf("Booking Service started on port %d", cfg.Services.BookingServicePort),
		map[string]any{"port": cfg.Services.BookingServicePort, "max_concurrent": maxConcurrent},
	)

	// start the server in a background goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	// wait for context cancellation or server error
	select {
	case <-ctx.Done():
		// graceful HTTP shutdown on context cancel
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info(ctx, "shutdown_started", "Starting graceful shutdown", nil)
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
	case err := <-errCh:
		// server returned a terminal error at startup or during run
		if err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.Services.BookingServicePort})
			return err
		}
		return nil
	}

	return nil
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// It controls how many HTTP requests can be in-progress at the same time.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			// client canceled or server is shutting down
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
