package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/ircctl/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

var startedAt = time.Now()

// NewRouter serves /metrics and /health.
func NewRouter() *gin.Engine {
	RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logging.Component("metrics")))
	r.Use(RequestMetricsMiddleware())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(startedAt).String(),
			"service": "ircctl",
		})
	})
	return r
}

// Serve listens on addr until ctx is done, then shuts the server down.
func Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("observability: listen %s: %w", addr, err)
	}
	return ServeListener(ctx, ln)
}

func ServeListener(ctx context.Context, ln net.Listener) error {
	log := logging.Component("metrics")
	srv := &http.Server{Handler: NewRouter(), ReadHeaderTimeout: 5 * time.Second}

	stopped := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stopped()

	log.Info().Str("addr", ln.Addr().String()).Msg("metrics endpoint listening")
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
