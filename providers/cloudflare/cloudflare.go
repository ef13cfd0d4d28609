// Package cloudflare implements the post-update strategy that points
// Cloudflare DNS records at the new IP.
//
// Settings (DDNS_CLOUDFLARE_*):
//
//	API_TOKEN  API token with Zone:DNS:Edit, supports _FILE (required)
//	RECORDS    comma list of fully qualified names (required)
//	TTL        record TTL in seconds, 1 means automatic (default 1)
//	PROXIED    create proxied records (default false)
package cloudflare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strconv"
	"strings"

	"github.com/cloudflare/cloudflare-go"

	"gitlab.bluewillows.net/root/ddnsnotify/internal/postupdate"
	"gitlab.bluewillows.net/root/ddnsnotify/pkg/httputil"
)

// Name is the strategy name used in DDNS_POST_UPDATE.
const Name = "cloudflare"

// recordComment marks records created by this strategy.
const recordComment = "managed by ddnsnotify"

// ErrZoneNotFound is returned when no zone in the account covers a record name.
var ErrZoneNotFound = errors.New("no cloudflare zone matches record")

// API is the subset of *cloudflare.API the action uses.
type API interface {
	ListZones(ctx context.Context, z ...string) ([]cloudflare.Zone, error)
	ListDNSRecords(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.ListDNSRecordsParams) ([]cloudflare.DNSRecord, *cloudflare.ResultInfo, error)
	DeleteDNSRecord(ctx context.Context, rc *cloudflare.ResourceContainer, recordID string) error
	CreateDNSRecord(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.CreateDNSRecordParams) (cloudflare.DNSRecord, error)
	VerifyAPIToken(ctx context.Context) (cloudflare.APITokenVerifyBody, error)
}

// Config holds Cloudflare settings.
type Config struct {
	APIToken string
	Records  []string
	TTL      int
	Proxied  bool
}

// LoadConfigFromMap creates a Config from strategy settings.
func LoadConfigFromMap(settings map[string]string) (*Config, error) {
	cfg := &Config{
		APIToken: strings.TrimSpace(settings["API_TOKEN"]),
		Records:  postupdate.SplitList(settings["RECORDS"]),
		TTL:      1,
	}

	var errs []string
	if cfg.APIToken == "" {
		errs = append(errs, "API_TOKEN is required")
	}
	if len(cfg.Records) == 0 {
		errs = append(errs, "RECORDS is required")
	}
	if v := settings["TTL"]; v != "" {
		ttl, err := strconv.Atoi(v)
		if err != nil || ttl < 1 {
			errs = append(errs, fmt.Sprintf("invalid TTL value %q", v))
		}
		cfg.TTL = ttl
	}
	if v := settings["PROXIED"]; v != "" {
		proxied, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid PROXIED value %q", v))
		}
		cfg.Proxied = proxied
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("cloudflare config: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// Action rewrites the address record of every configured name.
type Action struct {
	api    API
	config *Config
	logger *slog.Logger
}

// New creates a Cloudflare action.
func New(api API, config *Config, logger *slog.Logger) *Action {
	if logger == nil {
		logger = slog.Default()
	}
	return &Action{
		api:    api,
		config: config,
		logger: logger,
	}
}

// Factory returns a postupdate.Factory for the cloudflare strategy.
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

		api, err := cloudflare.NewWithAPIToken(config.APIToken, cloudflare.HTTPClient(httpClient))
		if err != nil {
			return nil, fmt.Errorf("creating cloudflare api client: %w", err)
		}

		logger.Info("cloudflare post-update configured",
			slog.Int("records", len(config.Records)),
			slog.Bool("proxied", config.Proxied),
		)

		return New(api, config, logger), nil
	}
}

// Name returns the strategy name.
func (a *Action) Name() string {
	return Name
}

// Propagate resolves the zones once, then updates each name in turn.
// The first failing name aborts the remaining ones.
func (a *Action) Propagate(ctx context.Context, ip string) error {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return fmt.Errorf("invalid ip %q: %w", ip, err)
	}
	addr = addr.Unmap()

	zones, err := a.api.ListZones(ctx)
	if err != nil {
		return fmt.Errorf("listing zones: %w", err)
	}

	for _, name := range a.config.Records {
		name = strings.TrimSuffix(name, ".")
		zoneID, err := zoneFor(zones, name)
		if err != nil {
			return err
		}
		if err := a.setRecord(ctx, zoneID, name, addr); err != nil {
			return fmt.Errorf("updating %s: %w", name, err)
		}
	}
	return nil
}

// Ping verifies the API token.
func (a *Action) Ping(ctx context.Context) error {
	result, err := a.api.VerifyAPIToken(ctx)
	if err != nil {
		return fmt.Errorf("verifying api token: %w", err)
	}
	if result.Status != "active" {
		return fmt.Errorf("api token status is %q", result.Status)
	}
	return nil
}

// setRecord deletes every stale record of the address family for name and
// creates the new one unless it already exists.
func (a *Action) setRecord(ctx context.Context, zoneID, name string, addr netip.Addr) error {
	rc := cloudflare.ZoneIdentifier(zoneID)
	rrType := recordType(addr)

	records, _, err := a.api.ListDNSRecords(ctx, rc, cloudflare.ListDNSRecordsParams{
		Type: rrType,
		Name: name,
	})
	if err != nil {
		return fmt.Errorf("listing records: %w", err)
	}

	current := false
	for _, r := range records {
		if existing, err := netip.ParseAddr(r.Content); err == nil && existing.Unmap() == addr {
			current = true
			continue
		}
		if err := a.api.DeleteDNSRecord(ctx, rc, r.ID); err != nil {
			return fmt.Errorf("deleting record %s: %w", r.ID, err)
		}
		a.logger.Debug("deleted stale cloudflare record",
			slog.String("name", name),
			slog.String("content", r.Content),
		)
	}
	if current {
		return nil
	}

	params := cloudflare.CreateDNSRecordParams{
		Type:    rrType,
		Name:    name,
		Content: addr.String(),
		ZoneID:  zoneID,
		TTL:     a.config.TTL,
		Comment: recordComment,
	}
	if a.config.Proxied {
		params.Proxied = cloudflare.BoolPtr(true)
	}
	if _, err := a.api.CreateDNSRecord(ctx, rc, params); err != nil {
		return fmt.Errorf("creating record: %w", err)
	}

	a.logger.Debug("created cloudflare record",
		slog.String("name", name),
		slog.String("content", addr.String()),
	)
	return nil
}

// zoneFor picks the zone with the longest name covering record.
func zoneFor(zones []cloudflare.Zone, record string) (string, error) {
	record = strings.TrimSuffix(strings.ToLower(record), ".")

	var id string
	longest := 0
	for _, z := range zones {
		zone := strings.ToLower(z.Name)
		if record != zone && !strings.HasSuffix(record, "."+zone) {
			continue
		}
		if len(zone) > longest {
			longest, id = len(zone), z.ID
		}
	}
	if id == "" {
		return "", fmt.Errorf("%w: %s", ErrZoneNotFound, record)
	}
	return id, nil
}

func recordType(addr netip.Addr) string {
	if addr.Is4() {
		return "A"
	}
	return "AAAA"
}
