// Package auth validates the shared secret presented by clients.
package auth

import "strings"

// Gate compares presented credentials with the configured secret.
// The secret is fixed for the lifetime of the process.
type Gate struct {
	secret string
}

// NewGate returns a Gate for secret.
func NewGate(secret string) *Gate {
	return &Gate{secret: secret}
}

// Check reports whether credential matches the configured secret after
// surrounding whitespace is trimmed. An empty secret never matches.
// The comparison is plain equality.
func (g *Gate) Check(credential string) bool {
	if g.secret == "" {
		return false
	}
	return strings.TrimSpace(credential) == g.secret
}
