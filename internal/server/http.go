package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"gitlab.bluewillows.net/root/ddnsnotify/internal/ipstore"
	"gitlab.bluewillows.net/root/ddnsnotify/internal/metrics"
	"gitlab.bluewillows.net/root/ddnsnotify/internal/notifier"
)

// HTTP variant defaults.
const (
	DefaultAuthFailureDelay = 5 * time.Second
	forwardedForHeader      = "X-Forwarded-For"
	maxRequestBody          = 4096
	readHeaderTimeout       = 5 * time.Second
)

// ipRequest is the JSON body of POST /ip.
type ipRequest struct {
	Auth string `json:"auth"`
}

// HTTPServer exposes POST /ip. The client IP comes only from the
// X-Forwarded-For header set by a trusted reverse proxy.
type HTTPServer struct {
	submitter    Submitter
	failureDelay time.Duration
	logger       *slog.Logger
	engine       *gin.Engine
	srv          *http.Server
}

// HTTPOption configures an HTTPServer.
type HTTPOption func(*HTTPServer)

// WithHTTPLogger sets the logger.
func WithHTTPLogger(logger *slog.Logger) HTTPOption {
	return func(s *HTTPServer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuthFailureDelay sets the pause before answering 403.
func WithAuthFailureDelay(d time.Duration) HTTPOption {
	return func(s *HTTPServer) {
		if d >= 0 {
			s.failureDelay = d
		}
	}
}

// NewHTTPServer creates the HTTP variant.
func NewHTTPServer(submitter Submitter, opts ...HTTPOption) *HTTPServer {
	s := &HTTPServer{
		submitter:    submitter,
		failureDelay: DefaultAuthFailureDelay,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	engine.Use(s.recovery())
	engine.POST("/ip", s.handleIP)
	s.engine = engine

	s.srv = &http.Server{
		Handler:           engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	// One connection is one session for admission accounting.
	s.srv.SetKeepAlivesEnabled(false)

	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

// Serve serves HTTP on ln until Shutdown. It returns nil after Shutdown.
func (s *HTTPServer) Serve(ln net.Listener) error {
	s.logger.Info("http server listening", slog.String("addr", ln.Addr().String()))
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting and waits for in-flight requests or ctx.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *HTTPServer) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("request panic",
					slog.Any("panic", r),
					slog.String("peer", c.Request.RemoteAddr),
				)
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

func (s *HTTPServer) handleIP(c *gin.Context) {
	start := time.Now()
	logger := s.logger.With(
		slog.String("session_id", uuid.NewString()),
		slog.String("peer", c.Request.RemoteAddr),
	)

	outcome := metrics.OutcomeBadRequest
	defer func() {
		metrics.RecordSession(TransportHTTP, outcome, time.Since(start).Seconds())
	}()

	forwarded := c.GetHeader(forwardedForHeader)
	if forwarded == "" {
		logger.Warn("missing forwarded-for header")
		c.String(http.StatusPreconditionFailed, "Missing %s header", forwardedForHeader)
		return
	}
	clientIP, err := forwardedClientIP(forwarded)
	if err != nil {
		logger.Warn("invalid forwarded-for header", slog.String("header", forwarded))
		c.String(http.StatusBadRequest, "Invalid %s header", forwardedForHeader)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBody)
	var req ipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", slog.String("error", err.Error()))
		c.String(http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := s.submitter.Submit(c.Request.Context(), notifier.Request{
		Credential: req.Auth,
		ClientIP:   clientIP,
		Peer:       c.Request.RemoteAddr,
		Transport:  TransportHTTP,
	})
	outcome = outcomeFor(res, err)

	switch {
	case err == nil:
		c.String(http.StatusOK, "%s", res.Message)
	case errors.Is(err, notifier.ErrAuthFailed):
		s.delay(c.Request.Context())
		c.String(http.StatusForbidden, "Forbidden")
	case errors.Is(err, notifier.ErrInvalidIP):
		c.String(http.StatusBadRequest, "Invalid %s header", forwardedForHeader)
	case ipstore.IsStorageError(err):
		c.String(http.StatusInternalServerError, "%s", storageErrorMessage)
	default:
		logger.Error("request failed", slog.String("error", err.Error()))
		c.String(http.StatusInternalServerError, "Internal server error")
	}
}

// delay pauses before a 403, returning early if the client goes away.
func (s *HTTPServer) delay(ctx context.Context) {
	if s.failureDelay <= 0 {
		return
	}
	t := time.NewTimer(s.failureDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// forwardedClientIP returns the first address of an X-Forwarded-For value.
func forwardedClientIP(header string) (string, error) {
	first, _, _ := strings.Cut(header, ",")
	return notifier.CanonicalIP(strings.TrimSpace(first))
}
