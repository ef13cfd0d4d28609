// Package server accepts client notifications over a raw TCP line protocol
// or over HTTP and hands each one to the notifier.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"gitlab.bluewillows.net/root/ddnsnotify/internal/ipstore"
	"gitlab.bluewillows.net/root/ddnsnotify/internal/metrics"
	"gitlab.bluewillows.net/root/ddnsnotify/internal/notifier"
)

// Transport names used in logs and metrics.
const (
	TransportTCP  = "tcp"
	TransportHTTP = "http"
)

// Errors produced while driving a session.
var (
	// ErrProtocolTimeout indicates the client did not send its credential
	// line before the handshake deadline.
	ErrProtocolTimeout = errors.New("protocol timeout")

	// ErrLineTooLong indicates the credential line exceeded the read buffer.
	ErrLineTooLong = errors.New("credential line too long")
)

// storageErrorMessage is sent to clients when the IP store cannot be used.
const storageErrorMessage = "Server error: unable to access stored IP"

// Submitter handles one authenticated notification.
type Submitter interface {
	Submit(ctx context.Context, req notifier.Request) (notifier.Result, error)
}

// peerIP extracts the client IP from the connection's remote address.
func peerIP(addr net.Addr) (string, error) {
	if addr == nil {
		return "", errors.New("no remote address")
	}
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		ip := tcpAddr.AddrPort().Addr()
		if !ip.IsValid() {
			return "", fmt.Errorf("invalid remote address %q", addr.String())
		}
		return ip.Unmap().String(), nil
	}
	ap, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return "", fmt.Errorf("parsing remote address %q: %w", addr.String(), err)
	}
	return ap.Addr().Unmap().String(), nil
}

// outcomeFor maps a Submit result to a metrics outcome label.
func outcomeFor(res notifier.Result, err error) string {
	switch {
	case err == nil && res.Changed:
		return metrics.OutcomeChanged
	case err == nil:
		return metrics.OutcomeUnchanged
	case errors.Is(err, notifier.ErrAuthFailed):
		return metrics.OutcomeAuthFailed
	case errors.Is(err, notifier.ErrInvalidIP):
		return metrics.OutcomeBadRequest
	case errors.Is(err, ErrProtocolTimeout):
		return metrics.OutcomeTimeout
	case ipstore.IsStorageError(err):
		return metrics.OutcomeStorageErr
	default:
		return metrics.OutcomeIOError
	}
}
