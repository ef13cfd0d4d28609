package dnsupdate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Sentinel errors for RFC 2136 operations.
var (
	// ErrUpdateFailed is returned when the DNS UPDATE operation fails.
	ErrUpdateFailed = errors.New("dns update failed")

	// ErrAuthenticationFailed is returned when TSIG authentication fails.
	ErrAuthenticationFailed = errors.New("tsig authentication failed")

	// ErrConnectionFailed is returned when the connection to the DNS server fails.
	ErrConnectionFailed = errors.New("connection to dns server failed")

	// ErrZoneMismatch is returned when a record name doesn't match the configured zone.
	ErrZoneMismatch = errors.New("record name does not match configured zone")

	// ErrInvalidAddress is returned for values that are not IPv4 or IPv6 addresses.
	ErrInvalidAddress = errors.New("invalid address")
)

// Client handles RFC 2136 Dynamic DNS updates.
type Client struct {
	config *Config
	signer *signer
	logger *slog.Logger

	dnsClient *dns.Client
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithLogger sets a custom logger for the DNS update client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new RFC 2136 Dynamic DNS client with the given configuration.
func NewClient(config *Config, opts ...ClientOption) (*Client, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	signer, err := config.signer()
	if err != nil {
		return nil, fmt.Errorf("invalid TSIG configuration: %w", err)
	}

	c := &Client{
		config: config,
		signer: signer,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.dnsClient = &dns.Client{
		Net:     "udp",
		Timeout: config.GetTimeout(),
	}
	if config.UseTCP {
		c.dnsClient.Net = "tcp"
	}
	c.dnsClient.TsigSecret = signer.secrets()

	c.logger.Debug("RFC 2136 client initialized",
		slog.String("server", config.GetServer()),
		slog.String("zone", config.Zone),
		slog.Bool("tsig", signer != nil),
		slog.Bool("tcp", config.UseTCP),
	)

	return c, nil
}

// Ping verifies connectivity to the DNS server by querying the zone SOA.
func (c *Client) Ping(ctx context.Context) error {
	msg := new(dns.Msg)
	msg.SetQuestion(c.config.Zone, dns.TypeSOA)
	msg.RecursionDesired = false

	resp, rtt, err := c.exchangeWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if resp.Rcode != dns.RcodeSuccess {
		return fmt.Errorf("%w: server returned %s", ErrConnectionFailed, dns.RcodeToString[resp.Rcode])
	}

	c.logger.Debug("DNS server ping successful",
		slog.Duration("rtt", rtt),
		slog.Int("answers", len(resp.Answer)),
	)

	return nil
}

// ReplaceAddress points every name at ip in a single UPDATE message.
// The A RRset is replaced for IPv4 addresses and the AAAA RRset for IPv6.
func (c *Client) ReplaceAddress(ctx context.Context, names []string, ip string, ttl uint32) error {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, ip)
	}
	addr = addr.Unmap()

	if len(names) == 0 {
		return errors.New("at least one record name is required")
	}

	rrtype := dns.TypeA
	if addr.Is6() {
		rrtype = dns.TypeAAAA
	}

	msg := new(dns.Msg)
	msg.SetUpdate(c.config.Zone)

	owners := make([]string, 0, len(names))
	for _, name := range names {
		owner, err := c.ownerName(name)
		if err != nil {
			return err
		}
		owners = append(owners, owner)

		hdr := dns.RR_Header{Name: owner, Rrtype: rrtype, Class: dns.ClassINET}
		msg.RemoveRRset([]dns.RR{&dns.ANY{Hdr: hdr}})

		hdr.Ttl = ttl
		if addr.Is4() {
			msg.Insert([]dns.RR{&dns.A{Hdr: hdr, A: net.IP(addr.AsSlice())}})
		} else {
			msg.Insert([]dns.RR{&dns.AAAA{Hdr: hdr, AAAA: net.IP(addr.AsSlice())}})
		}
	}

	c.signer.sign(msg)

	c.logger.Debug("sending DNS update",
		slog.String("zone", c.config.Zone),
		slog.String("type", dns.TypeToString[rrtype]),
		slog.String("names", strings.Join(owners, ",")),
		slog.String("ip", addr.String()),
	)

	resp, _, err := c.exchangeWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return c.checkResponse(resp)
}

// Zone returns the configured zone.
func (c *Client) Zone() string {
	return c.config.Zone
}

// Server returns the configured server address.
func (c *Client) Server() string {
	return c.config.GetServer()
}

// ownerName resolves a zone-relative record name to a fully qualified owner.
func (c *Client) ownerName(name string) (string, error) {
	name = strings.TrimSpace(name)
	zone := c.config.Zone

	switch {
	case name == "" || name == "@":
		return zone, nil
	case strings.HasSuffix(name, "."):
		if !dns.IsSubDomain(zone, name) {
			return "", fmt.Errorf("%w: %s not in zone %s", ErrZoneMismatch, name, zone)
		}
		return name, nil
	default:
		return name + "." + zone, nil
	}
}

// exchangeWithContext performs DNS exchange with context support.
func (c *Client) exchangeWithContext(ctx context.Context, msg *dns.Msg) (*dns.Msg, time.Duration, error) {
	type result struct {
		resp *dns.Msg
		rtt  time.Duration
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		resp, rtt, err := c.dnsClient.Exchange(msg, c.config.GetServer())
		ch <- result{resp, rtt, err}
	}()

	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case r := <-ch:
		return r.resp, r.rtt, r.err
	}
}

// checkResponse maps the UPDATE response code to an error.
func (c *Client) checkResponse(resp *dns.Msg) error {
	if resp == nil {
		return fmt.Errorf("%w: no response from server", ErrUpdateFailed)
	}

	switch resp.Rcode {
	case dns.RcodeSuccess:
		return nil

	case dns.RcodeNotAuth:
		if resp.IsTsig() != nil {
			return fmt.Errorf("%w: %s", ErrAuthenticationFailed, dns.RcodeToString[resp.Rcode])
		}
		return fmt.Errorf("%w: server not authoritative for zone", ErrUpdateFailed)

	case dns.RcodeRefused:
		return fmt.Errorf("%w: update refused (check server policy or TSIG configuration)", ErrUpdateFailed)

	case dns.RcodeNotZone:
		return ErrZoneMismatch

	default:
		return fmt.Errorf("%w: %s", ErrUpdateFailed, dns.RcodeToString[resp.Rcode])
	}
}
