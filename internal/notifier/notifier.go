// Package notifier implements the transport-independent handling of one
// client notification: authenticate, compare and persist the IP under the
// store lock, then hand a changed IP to the post-update dispatcher.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"

	"gitlab.bluewillows.net/root/ddnsnotify/internal/audit"
	"gitlab.bluewillows.net/root/ddnsnotify/internal/metrics"
)

// Errors returned by Submit.
var (
	// ErrAuthFailed indicates the presented credential did not match.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrInvalidIP indicates the client IP could not be parsed.
	ErrInvalidIP = errors.New("invalid client ip")
)

// Authenticator checks a presented credential.
type Authenticator interface {
	Check(credential string) bool
}

// Store swaps the persisted IP. See ipstore.Store.
type Store interface {
	Swap(ip string) (previous string, changed bool, err error)
}

// Dispatcher starts the post-update action for a new IP without waiting.
type Dispatcher interface {
	Dispatch(ctx context.Context, ip string)
}

// Request is one client notification.
type Request struct {
	Credential string
	ClientIP   string // IP being registered
	Peer       string // remote address for logging
	Transport  string // tcp, http
}

// Result describes the outcome of an accepted notification.
type Result struct {
	Changed  bool
	Previous string
	Current  string
	Message  string
}

// Service handles notifications. It is safe for concurrent use.
type Service struct {
	auth       Authenticator
	store      Store
	dispatcher Dispatcher
	audit      *audit.Log
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDispatcher sets the post-update dispatcher.
func WithDispatcher(d Dispatcher) Option {
	return func(s *Service) {
		s.dispatcher = d
	}
}

// WithAudit sets the side audit log.
func WithAudit(l *audit.Log) Option {
	return func(s *Service) {
		s.audit = l
	}
}

// New creates a Service.
func New(auth Authenticator, store Store, opts ...Option) *Service {
	s := &Service{
		auth:   auth,
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit authenticates req and records its IP. Failed authentication never
// touches the store. On change the post-update action is dispatched after
// the store lock has been released.
func (s *Service) Submit(ctx context.Context, req Request) (Result, error) {
	logger := s.logger.With(
		slog.String("peer", req.Peer),
		slog.String("transport", req.Transport),
	)

	if !s.auth.Check(req.Credential) {
		logger.Warn("authentication failed")
		s.audit.AuthFailed(req.Peer, req.Transport)
		return Result{}, ErrAuthFailed
	}

	ip, err := CanonicalIP(req.ClientIP)
	if err != nil {
		return Result{}, err
	}

	previous, changed, err := s.store.Swap(ip)
	if err != nil {
		logger.Error("ip store failure", slog.String("error", err.Error()))
		return Result{}, err
	}

	res := Result{
		Changed:  changed,
		Previous: previous,
		Current:  ip,
	}

	if !changed {
		res.Message = fmt.Sprintf("No Change in IP: New %s == old %s", ip, previous)
		logger.Debug("ip unchanged", slog.String("ip", ip))
		return res, nil
	}

	old := previous
	if old == "" {
		old = "none"
	}
	res.Message = fmt.Sprintf("New IP %s was written into config file. Old: %s", ip, old)

	metrics.IPChangesTotal.Inc()
	s.audit.IPChanged(previous, ip, req.Peer)
	logger.Info("ip changed", slog.String("old", previous), slog.String("new", ip))

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, ip)
	}
	return res, nil
}

// CanonicalIP parses s as an IPv4 or IPv6 address and returns its canonical
// text form. IPv4-mapped IPv6 addresses are unmapped.
func CanonicalIP(s string) (string, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidIP, s)
	}
	return addr.Unmap().String(), nil
}
