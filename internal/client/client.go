// Package client implements the client side of both notifier protocols.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/ddnsnotify/pkg/httputil"
)

// Transport names, matching DDNS_TRANSPORT.
const (
	TransportTCP  = "tcp"
	TransportHTTP = "http"
)

// DefaultTimeout bounds one call.
const DefaultTimeout = 15 * time.Second

// maxResponse caps the raw protocol reply.
const maxResponse = 4096

// serverErrorPrefix starts the raw protocol reply for server-side failures.
const serverErrorPrefix = "Server error"

// ErrNoResponse is returned when the raw protocol server closes without a
// reply, which is how it answers a wrong credential.
var ErrNoResponse = errors.New("server closed the connection without a response")

// Result is the server's answer to one call.
type Result struct {
	// StatusCode is the HTTP status. Raw protocol replies report 200, or 500
	// for a server error line.
	StatusCode int

	// Message is the response text without trailing newline.
	Message string
}

// OK reports whether the server acknowledged the call.
func (r Result) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Caller performs one notification.
type Caller interface {
	Call(ctx context.Context) (Result, error)
}

// Option configures a client.
type Option func(*options)

type options struct {
	timeout      time.Duration
	forwardedFor string
	logger       *slog.Logger
}

// WithTimeout bounds each call.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithForwardedFor sends an X-Forwarded-For header on HTTP calls.
func WithForwardedFor(ip string) Option {
	return func(o *options) {
		o.forwardedFor = ip
	}
}

// WithLogger sets the logger for request debugging.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New returns the Caller for transport.
func New(transport, address, auth string, opts ...Option) (Caller, error) {
	o := options{timeout: DefaultTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	if address == "" {
		return nil, errors.New("server address is required")
	}

	switch strings.ToLower(transport) {
	case TransportTCP, "":
		return &TCPClient{address: address, auth: auth, timeout: o.timeout}, nil
	case TransportHTTP:
		return &HTTPClient{
			url:          address,
			auth:         auth,
			forwardedFor: o.forwardedFor,
			httpClient: httputil.NewClient(&httputil.ClientConfig{
				Timeout: o.timeout,
				Logger:  o.logger,
			}),
		}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q (must be tcp or http)", transport)
	}
}

// HTTPClient posts the credential as JSON.
type HTTPClient struct {
	url          string
	auth         string
	forwardedFor string
	httpClient   *http.Client
}

// Call sends one POST. Non-200 answers are returned in Result, not as errors.
func (c *HTTPClient) Call(ctx context.Context) (Result, error) {
	body, err := json.Marshal(map[string]string{"auth": c.auth})
	if err != nil {
		return Result{}, fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", c.forwardedFor)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("sending request: %w", err)
	}

	text, err := httputil.ReadBody(resp)
	var statusErr *httputil.StatusError
	if err != nil && !errors.As(err, &statusErr) {
		return Result{}, err
	}

	return Result{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(text))}, nil
}

// TCPClient writes the credential line and reads the reply until the
// server closes the connection.
type TCPClient struct {
	address string
	auth    string
	timeout time.Duration
}

// Call opens one connection per notification.
func (c *TCPClient) Call(ctx context.Context) (Result, error) {
	var d net.Dialer
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := d.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return Result{}, fmt.Errorf("connecting to %s: %w", c.address, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := io.WriteString(conn, c.auth+"\n"); err != nil {
		return Result{}, fmt.Errorf("sending credential: %w", err)
	}

	reply, err := io.ReadAll(io.LimitReader(conn, maxResponse))
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		return Result{}, fmt.Errorf("reading reply: %w", err)
	}

	// A reset after an unanswered credential still counts as no response
	message := strings.TrimSpace(string(reply))
	if message == "" {
		return Result{}, ErrNoResponse
	}

	status := http.StatusOK
	if strings.HasPrefix(message, serverErrorPrefix) {
		status = http.StatusInternalServerError
	}
	return Result{StatusCode: status, Message: message}, nil
}
