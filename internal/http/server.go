package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ochronus/godebrid/internal/app"
	"github.com/ochronus/godebrid/internal/config"
	"github.com/ochronus/godebrid/internal/metrics"
	"github.com/sirupsen/logrus"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Server represents the HTTP server
type Server struct {
	container *app.Container
	config    *config.Config
	handler   *Handler
	logger    *logrus.Logger
	router    *gin.Engine
	srv       *http.Server
}

// NewServer creates a new HTTP server
func NewServer(container *app.Container) *Server {
	cfg := container.Config

	// Set gin mode based on log level
	if cfg.Loglevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(requestLogger(container.Logger))
	if container.Metrics != nil {
		router.Use(metrics.HTTPMetricsMiddleware(container.Metrics))
	}

	handler := NewHandler(container)

	router.POST("/transmission/rpc", handler.RPCPost)
	router.GET("/transmission/rpc", handler.RPCGet)
	if container.Registry != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(container.Registry)))
	}

	return &Server{
		container: container,
		config:    cfg,
		handler:   handler,
		logger:    container.Logger,
		router:    router,
	}
}

// requestLogger logs every request at debug level.
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("http request")
	}
}

// StartWithContext listens on the configured address and serves until ctx
// is canceled.
func (s *Server) StartWithContext(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.BindAddress, strconv.Itoa(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve answers Transmission RPC requests on ln. Canceling ctx drains open
// requests for up to shutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Infof("Starting web server at http://%s", ln.Addr())

	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// GetRouter returns the underlying gin router.
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
