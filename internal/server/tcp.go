package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"gitlab.bluewillows.net/root/ddnsnotify/internal/ipstore"
	"gitlab.bluewillows.net/root/ddnsnotify/internal/metrics"
	"gitlab.bluewillows.net/root/ddnsnotify/internal/notifier"
)

// Raw protocol defaults.
const (
	DefaultAuthTimeout = 5 * time.Second
	maxLineLength      = 1024
	writeTimeout       = 5 * time.Second
)

// TCPServer drives the raw line protocol: the client sends its credential
// terminated by '\n', the server answers with one status line and closes.
// The registered IP is always the peer address of the connection.
type TCPServer struct {
	submitter   Submitter
	authTimeout time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	closing  bool
	sessions sync.WaitGroup
}

// TCPOption configures a TCPServer.
type TCPOption func(*TCPServer)

// WithTCPLogger sets the logger.
func WithTCPLogger(logger *slog.Logger) TCPOption {
	return func(s *TCPServer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuthTimeout sets the handshake deadline, measured from accept.
func WithAuthTimeout(d time.Duration) TCPOption {
	return func(s *TCPServer) {
		if d > 0 {
			s.authTimeout = d
		}
	}
}

// NewTCPServer creates a raw protocol server.
func NewTCPServer(submitter Submitter, opts ...TCPOption) *TCPServer {
	s := &TCPServer{
		submitter:   submitter,
		authTimeout: DefaultAuthTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve accepts connections from ln until Shutdown is called or ln fails.
// Each connection is handled on its own goroutine. Admission control is
// expected to be applied by ln. Serve returns nil after Shutdown.
func (s *TCPServer) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("tcp server listening", slog.String("addr", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosing() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logger.Warn("accept error", slog.String("error", err.Error()))
				continue
			}
			return fmt.Errorf("accepting connection: %w", err)
		}

		s.sessions.Add(1)
		go func() {
			defer s.sessions.Done()
			s.handle(ctx, conn)
		}()
	}
}

func (s *TCPServer) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Shutdown stops accepting and waits for in-flight sessions or ctx.
func (s *TCPServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for tcp sessions: %w", ctx.Err())
	}
}

// handle runs one session. The connection is closed, and its admission slot
// released, on every exit path including a panic.
func (s *TCPServer) handle(ctx context.Context, conn net.Conn) {
	accepted := time.Now()
	logger := s.logger.With(
		slog.String("session_id", uuid.NewString()),
		slog.String("peer", conn.RemoteAddr().String()),
	)

	outcome := metrics.OutcomeIOError
	defer func() {
		if r := recover(); r != nil {
			outcome = metrics.OutcomePanic
			logger.Error("session panic",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
		conn.Close()
		metrics.RecordSession(TransportTCP, outcome, time.Since(accepted).Seconds())
	}()

	clientIP, err := peerIP(conn.RemoteAddr())
	if err != nil {
		logger.Warn("unable to determine client ip", slog.String("error", err.Error()))
		return
	}

	if err := conn.SetReadDeadline(accepted.Add(s.authTimeout)); err != nil {
		logger.Warn("unable to set read deadline", slog.String("error", err.Error()))
		return
	}

	credential, err := readLine(conn)
	if err != nil {
		outcome = outcomeFor(notifier.Result{}, err)
		logger.Warn("handshake failed", slog.String("error", err.Error()))
		return
	}

	res, err := s.submitter.Submit(ctx, notifier.Request{
		Credential: credential,
		ClientIP:   clientIP,
		Peer:       conn.RemoteAddr().String(),
		Transport:  TransportTCP,
	})
	outcome = outcomeFor(res, err)

	var response string
	switch {
	case err == nil:
		response = res.Message
	case errors.Is(err, notifier.ErrAuthFailed):
		// Closed without a response.
		return
	case ipstore.IsStorageError(err):
		response = storageErrorMessage
	default:
		logger.Warn("session failed", slog.String("error", err.Error()))
		return
	}

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err == nil {
		if _, err := io.WriteString(conn, response+"\n"); err != nil {
			logger.Warn("unable to respond to client", slog.String("error", err.Error()))
		}
	}
}

// readLine reads bytes up to the first '\n' and returns them trimmed.
// A deadline expiry is reported as ErrProtocolTimeout.
func readLine(conn net.Conn) (string, error) {
	r := bufio.NewReaderSize(conn, maxLineLength)
	line, err := r.ReadSlice('\n')
	switch {
	case err == nil:
		return string(bytes.TrimSpace(line)), nil
	case errors.Is(err, bufio.ErrBufferFull):
		return "", ErrLineTooLong
	case errors.Is(err, os.ErrDeadlineExceeded):
		return "", ErrProtocolTimeout
	case errors.Is(err, io.EOF):
		return "", fmt.Errorf("connection closed before credential line: %w", err)
	default:
		return "", fmt.Errorf("reading credential: %w", err)
	}
}
