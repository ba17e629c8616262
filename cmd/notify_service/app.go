package notifyservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"motoride/internal/gateway"
	"motoride/internal/general/config"
	"motoride/internal/general/jwt"
	"motoride/internal/general/logger"
	"motoride/internal/general/postgres"
	"motoride/internal/general/rabbitmq"
	"motoride/internal/software/notification/handler"
	"motoride/internal/software/notification/service"

	"golang.org/x/sync/errgroup"
)

// Run wires the notification dispatcher plus the session gateway and blocks
// until ctx is cancelled. Two listeners: the notification feed API and the
// WebSocket/session-RPC surface.
func Run(ctx context.Context, maxConcurrent int) error {
	// set up a new logger and context with a static request ID for startup logs
	logger := logger.New("notify-service")
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

	// connect to RabbitMQ
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()

	// set up the JWT manager
	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, 2*time.Hour)

	// the in-process session hub; matching reaches it over the RPC surface
	hub := gateway.NewGateway(logger, jwtManager)

	// set up the repositories and the dispatcher
	uow := postgres.NewUnitOfWork(pool)
	notificationRepo := postgres.NewNotificationRepo()
	svc := service.NewNotifyService(logger, cfg, uow, notificationRepo, hub, rmq)

	// run the booking/trip/payment consumers
	svc.Run(ctx)

	// feed API listener
	feedMux := http.NewServeMux()
	feedHandler := handler.NewNotifyHTTPHandler(svc, logger, jwtManager)
	feedHandler.RegisterRoutes(feedMux)

	// WebSocket + session RPC listener
	wsMux := http.NewServeMux()
	rpcHandler := gateway.NewRPCHandler(hub, logger)
	rpcHandler.RegisterRoutes(wsMux)

	feedSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Services.NotifyServicePort),
		Handler:           withConcurrencyLimit(maxConcurrent, feedMux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	// no write timeout here: WebSocket connections are long-lived
	wsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebSocket.Port),
		Handler:           wsMux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	// log service start
	logger.Info(ctx, "service_started",
		fmt.Sprintf("Notify Service started on ports %d (feed) and %d (gateway)",
			cfg.Services.NotifyServicePort, cfg.WebSocket.Port),
		map[string]any{
			"feed_port":      cfg.Services.NotifyServicePort,
			"gateway_port":   cfg.WebSocket.Port,
			"max_concurrent": maxConcurrent,
		},
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serveUntilDone(gctx, logger, feedSrv) })
	g.Go(func() error { return serveUntilDone(gctx, logger, wsSrv) })
	return g.Wait()
}

// serveUntilDone runs one HTTP server and shuts it down when ctx ends.
func serveUntilDone(ctx context.Context, log *logger.Logger, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info(ctx, "shutdown_started", "Starting graceful shutdown", map[string]any{"addr": srv.Addr})
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"addr": srv.Addr})
			return err
		}
		return nil
	}
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
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
