package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/plantdx/internal/analyzer"
	"github.com/example/plantdx/internal/config"
	"github.com/example/plantdx/internal/flash"
	"github.com/example/plantdx/internal/handlers"
	"github.com/example/plantdx/internal/logging"
	"github.com/example/plantdx/internal/upload"
	"github.com/example/plantdx/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	analyzerPath, err := analyzer.Resolve(cfg.Storage.AppRoot, cfg.Analyzer.Path)
	if err != nil {
		logger.Fatal("analyzer not usable", zap.Error(err))
	}
	proc, err := analyzer.NewProcessAnalyzer(analyzerPath, cfg.Analyzer.Timeout, logger)
	if err != nil {
		logger.Fatal("invalid analyzer settings", zap.Error(err))
	}

	gateway := upload.NewGateway(cfg.Storage.UploadDir(), cfg.Storage.UploadSubdir, cfg.Storage.MaxUploadBytes, logger)
	uc := usecase.NewDiagnosisUseCase(gateway, analyzer.NewInvoker(proc, logger), logger)

	var store flash.Store
	if cfg.Flash.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisClient := initRedis(ctx, cfg.Flash.RedisAddr, logger)
		cancel()
		defer redisClient.Close()
		store = flash.NewRedisStore(flash.NewRedisCache(redisClient), cfg.Flash.TTL, logger)
	} else {
		store = flash.NewCookieStore(cfg.Flash.TTL, logger)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.MaxMultipartMemory = cfg.Storage.MaxUploadBytes
	r.Use(gin.Recovery(), handlers.RequestLogger(logger))
	if corsMiddleware := handlers.CORS(cfg.HTTP.CORSAllowedOrigins); corsMiddleware != nil {
		r.Use(corsMiddleware)
	}

	handlers.RegisterRoutes(r, handlers.Dependencies{
		Diagnoser:      uc,
		Metrics:        uc,
		Flash:          store,
		Logger:         logger,
		PublicBaseURL:  cfg.HTTP.PublicBaseURL,
		UploadDir:      gateway.Dir(),
		UploadPrefix:   cfg.Storage.UploadSubdir,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("plant diagnosis service listening",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("analyzer", proc.Path()),
		zap.String("upload_dir", gateway.Dir()),
		zap.Duration("analyzer_timeout", cfg.Analyzer.Timeout))
	if err := serveUntilStopped(server, cfg.HTTP.ShutdownTimeout, logger, nil, nil, proc); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.String("addr", addr), zap.Error(err))
	}
	return client
}

// serveUntilStopped serves until a shutdown signal, then kills analyzer runs that outlived
// the shutdown budget before returning.
func serveUntilStopped(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal, analyzerRuns io.Closer) error {
	err := serveHTTPServerWithOptions(server, shutdownTimeout, logger, listener, signalCh)
	if errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("shutdown budget exceeded, killing running analyzers", zap.Duration("shutdown_timeout", shutdownTimeout))
	}
	if closeErr := analyzerRuns.Close(); closeErr != nil {
		logger.Error("failed to stop analyzer", zap.Error(closeErr))
	}
	return err
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		// In-flight analyzer runs keep going until they finish or the shutdown budget runs out.
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
