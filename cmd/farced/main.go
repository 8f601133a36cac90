// Command farced runs the HTTP service that stages, compiles, and
// executes guest submissions against one of the catalog's problems.
//
// Grounded on _examples/e2b-dev-infra/packages/api/main.go's server
// wiring and shutdown sequencing, trimmed of the auth/telemetry/OpenAPI
// layers this service has no equivalent of.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	limits "github.com/gin-contrib/size"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sbraitsch/farce/internal/compiler"
	"github.com/sbraitsch/farce/internal/config"
	"github.com/sbraitsch/farce/internal/handlers"
	"github.com/sbraitsch/farce/internal/logger"
	customMiddleware "github.com/sbraitsch/farce/internal/middleware"
	"github.com/sbraitsch/farce/internal/sandbox"
	"github.com/sbraitsch/farce/internal/workpool"
)

const (
	maxReadHeaderTimeout = 5 * time.Second
	maxReadTimeout       = 10 * time.Second
	maxWriteTimeout      = 75 * time.Second
	idleTimeout          = 120 * time.Second
)

func newServer(cfg config.Config, l logger.Logger, store *handlers.Store, baseCtx context.Context) *http.Server {
	if !cfg.IsDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type"}
	r.Use(cors.New(corsConfig))

	r.Use(limits.RequestSizeLimiter(cfg.MaxSubmissionBytes))

	r.Use(customMiddleware.LoggingMiddleware(l, customMiddleware.Config{
		TimeFormat:   time.RFC3339Nano,
		UTC:          true,
		DefaultLevel: zap.InfoLevel,
		SkipPaths:    []string{"/health"},
	}))

	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/farce/execute", store.Execute)
	r.GET("/farce/scaffold/:problem", store.Scaffold)

	return &http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		ReadHeaderTimeout: maxReadHeaderTimeout,
		ReadTimeout:       maxReadTimeout,
		WriteTimeout:      maxWriteTimeout,
		IdleTimeout:       idleTimeout,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintln(os.Stderr, "parsing config:", err)
		return 1
	}

	l, err := logger.NewLogger(logger.Config{IsDebug: cfg.IsDebug})
	if err != nil {
		fmt.Fprintln(os.Stderr, "building logger:", err)
		return 1
	}
	defer l.Sync()
	restoreGlobals := logger.ReplaceGlobals(l)
	defer restoreGlobals()

	driver, err := compiler.NewDriver(cfg.GoToolchain, cfg.BuildDir)
	if err != nil {
		l.Error(ctx, "failed to initialize compiler driver", zap.Error(err))
		return 1
	}

	pipeline := sandbox.New(driver, cfg.FuelBudget, cfg.InstructionsPerSecond, l).WithCompileTimeout(cfg.CompileTimeout)
	pool := workpool.New(cfg.MaxConcurrentBuilds)
	store := &handlers.Store{Pipeline: pipeline, Pool: pool}

	s := newServer(cfg, l, store, ctx)

	signalCtx, sigCancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer sigCancel()

	var exitCode atomic.Int32
	wg := &sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()

		l.Info(ctx, "http service starting", zap.Int("port", cfg.Port))
		err := s.ListenAndServe()
		switch {
		case errors.Is(err, http.ErrServerClosed):
			l.Info(ctx, "http service shut down cleanly", zap.Int("port", cfg.Port))
		case err != nil:
			exitCode.Store(1)
			l.Error(ctx, "http service exited with error", zap.Int("port", cfg.Port), zap.Error(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-signalCtx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := s.Shutdown(shutdownCtx); err != nil {
			exitCode.Store(1)
			l.Error(ctx, "http service shutdown error", zap.Error(err))
		}
		pool.Wait()
	}()

	wg.Wait()
	return int(exitCode.Load())
}

func main() {
	os.Exit(run())
}
