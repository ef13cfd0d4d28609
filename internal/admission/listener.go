package admission

import (
	"log/slog"
	"net"
	"sync"

	"gitlab.bluewillows.net/root/ddnsnotify/internal/metrics"
)

// Listener wraps a net.Listener so that every connection it returns holds
// an admission slot. Connections arriving while the gate is saturated are
// closed immediately, without reading, and Accept continues with the next one.
type Listener struct {
	net.Listener
	gate   *Gate
	logger *slog.Logger
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithLogger sets the logger for rejected connections.
func WithLogger(logger *slog.Logger) ListenerOption {
	return func(l *Listener) {
		l.logger = logger
	}
}

// NewListener wraps inner with admission control from gate.
func NewListener(inner net.Listener, gate *Gate, opts ...ListenerOption) *Listener {
	l := &Listener{
		Listener: inner,
		gate:     gate,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Accept waits for the next admitted connection.
// The returned connection releases its slot on the first Close.
func (l *Listener) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}

		if !l.gate.TryAdmit() {
			metrics.AdmissionRejectedTotal.Inc()
			l.logger.Warn("connection rejected",
				slog.String("peer", conn.RemoteAddr().String()),
				slog.Int("active", l.gate.Active()),
				slog.Int("max", l.gate.Max()),
				slog.String("error", ErrRejected.Error()),
			)
			conn.Close()
			continue
		}

		metrics.SessionsActive.Inc()
		return &admittedConn{Conn: conn, gate: l.gate}, nil
	}
}

// Gate returns the gate used by the listener.
func (l *Listener) Gate() *Gate {
	return l.gate
}

// admittedConn releases its admission slot exactly once.
type admittedConn struct {
	net.Conn
	gate *Gate
	once sync.Once
}

func (c *admittedConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(func() {
		c.gate.Release()
		metrics.SessionsActive.Dec()
	})
	return err
}
