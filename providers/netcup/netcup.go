// Package netcup implements the post-update strategy that rewrites A records
// through the netcup CCP JSON API: login, then updateDnsRecords.
//
// Settings (DDNS_NETCUP_*):
//
//	API_KEY          API key (required)
//	API_PASSWORD     API password, supports _FILE (required)
//	CUSTOMER_NUMBER  customer number (required)
//	DOMAIN           domain owning the records (required)
//	RECORDS          comma list of hostname=id, e.g. "*=1234,@=5678"
//	STAR_ID, AT_ID   record ids for "*" and "@" when RECORDS is unset
//	ENDPOINT         API endpoint override
package netcup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"

	"gitlab.bluewillows.net/root/ddnsnotify/internal/postupdate"
	"gitlab.bluewillows.net/root/ddnsnotify/pkg/httputil"
)

// Name is the strategy name used in DDNS_POST_UPDATE.
const Name = "netcup"

// Record identifies one netcup DNS record.
type Record struct {
	Hostname string
	ID       string
}

// Config holds netcup settings.
type Config struct {
	APIKey         string
	APIPassword    string
	CustomerNumber string
	Domain         string
	Records        []Record
	Endpoint       string
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []string
	if c.APIKey == "" {
		errs = append(errs, "API_KEY is required")
	}
	if c.APIPassword == "" {
		errs = append(errs, "API_PASSWORD is required")
	}
	if c.CustomerNumber == "" {
		errs = append(errs, "CUSTOMER_NUMBER is required")
	}
	if c.Domain == "" {
		errs = append(errs, "DOMAIN is required")
	}
	if len(c.Records) == 0 {
		errs = append(errs, "RECORDS (or STAR_ID/AT_ID) is required")
	}
	if len(errs) > 0 {
		return fmt.Errorf("netcup config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LoadConfigFromMap creates a Config from strategy settings.
func LoadConfigFromMap(settings map[string]string) (*Config, error) {
	cfg := &Config{
		APIKey:         strings.TrimSpace(settings["API_KEY"]),
		APIPassword:    strings.TrimSpace(settings["API_PASSWORD"]),
		CustomerNumber: strings.TrimSpace(settings["CUSTOMER_NUMBER"]),
		Domain:         strings.TrimSpace(settings["DOMAIN"]),
		Endpoint:       strings.TrimSpace(settings["ENDPOINT"]),
	}

	if v := settings["RECORDS"]; v != "" {
		records, err := ParseRecords(v)
		if err != nil {
			return nil, err
		}
		cfg.Records = records
	} else {
		if id := strings.TrimSpace(settings["STAR_ID"]); id != "" {
			cfg.Records = append(cfg.Records, Record{Hostname: "*", ID: id})
		}
		if id := strings.TrimSpace(settings["AT_ID"]); id != "" {
			cfg.Records = append(cfg.Records, Record{Hostname: "@", ID: id})
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseRecords parses a comma list of hostname=id pairs.
func ParseRecords(s string) ([]Record, error) {
	var records []Record
	for _, item := range postupdate.SplitList(s) {
		host, id, ok := strings.Cut(item, "=")
		host, id = strings.TrimSpace(host), strings.TrimSpace(id)
		if !ok || host == "" || id == "" {
			return nil, fmt.Errorf("invalid RECORDS entry %q (want hostname=id)", item)
		}
		records = append(records, Record{Hostname: host, ID: id})
	}
	return records, nil
}

// Action updates the configured records on every IP change.
type Action struct {
	client  *Client
	domain  string
	records []Record
	logger  *slog.Logger
}

// New creates a netcup action.
func New(config *Config, client *Client, logger *slog.Logger) *Action {
	if logger == nil {
		logger = slog.Default()
	}
	return &Action{
		client:  client,
		domain:  config.Domain,
		records: config.Records,
		logger:  logger,
	}
}

// Factory returns a postupdate.Factory for the netcup strategy.
func Factory() postupdate.Factory {
	return func(cfg postupdate.FactoryConfig) (postupdate.Action, error) {
		config, err := LoadConfigFromMap(cfg.Settings)
		if err != nil {
			return nil, err
		}

		logger := cfg.Logger
		if logger == nil {
			logger = slog.Default()
		}

		httpClient := httputil.NewClient(&httputil.ClientConfig{
			Timeout: cfg.Timeout,
			Logger:  logger,
		})

		logger.Info("netcup post-update configured",
			slog.String("domain", config.Domain),
			slog.Int("records", len(config.Records)),
		)

		return New(config, NewClient(config, httpClient, logger), logger), nil
	}
}

// Name returns the strategy name.
func (a *Action) Name() string {
	return Name
}

// Propagate logs in and rewrites every record to ip in one call.
func (a *Action) Propagate(ctx context.Context, ip string) error {
	recordType := "A"
	if addr, err := netip.ParseAddr(ip); err == nil && addr.Unmap().Is6() {
		recordType = "AAAA"
	}

	session, err := a.client.Login(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.client.Logout(context.WithoutCancel(ctx), session); err != nil {
			a.logger.Debug("netcup logout failed", slog.String("error", err.Error()))
		}
	}()

	records := make([]dnsRecord, 0, len(a.records))
	for _, r := range a.records {
		records = append(records, dnsRecord{
			ID:           r.ID,
			Hostname:     r.Hostname,
			Type:         recordType,
			Priority:     "0",
			Destination:  ip,
			DeleteRecord: "FALSE",
			State:        "yes",
		})
	}

	if err := a.client.UpdateRecords(ctx, session, a.domain, records); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			a.logger.Warn("netcup rejected update",
				slog.String("action", apiErr.Action),
				slog.String("response", apiErr.Raw),
			)
		}
		return err
	}

	a.logger.Debug("netcup records updated",
		slog.String("ip", ip),
		slog.String("domain", a.domain),
	)
	return nil
}
