// Package digitalocean implements the post-update strategy that points
// DigitalOcean domain records at the new IP.
//
// Settings (DDNS_DIGITALOCEAN_*):
//
//	TOKEN    personal access token, supports _FILE (required)
//	DOMAIN   domain managed by DigitalOcean (required)
//	RECORDS  comma list of record names within DOMAIN (default "@")
//	TTL      record TTL in seconds (default 1800)
package digitalocean

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strconv"
	"strings"

	"github.com/digitalocean/godo"
	"golang.org/x/oauth2"

	"gitlab.bluewillows.net/root/ddnsnotify/internal/postupdate"
	"gitlab.bluewillows.net/root/ddnsnotify/pkg/httputil"
)

// Name is the strategy name used in DDNS_POST_UPDATE.
const Name = "digitalocean"

// DefaultTTL is the TTL of created records when TTL is unset.
const DefaultTTL = 1800

// listPageSize is the page size used when listing domain records.
const listPageSize = 200

var (
	errNoRecordsFound = errors.New("no existing record found")
	errNoUpdateNeeded = errors.New("record already holds the address")
)

// DomainsAPI is the subset of godo.DomainsService the action uses.
type DomainsAPI interface {
	Get(ctx context.Context, name string) (*godo.Domain, *godo.Response, error)
	Records(ctx context.Context, domain string, opt *godo.ListOptions) ([]godo.DomainRecord, *godo.Response, error)
	CreateRecord(ctx context.Context, domain string, req *godo.DomainRecordEditRequest) (*godo.DomainRecord, *godo.Response, error)
	EditRecord(ctx context.Context, domain string, id int, req *godo.DomainRecordEditRequest) (*godo.DomainRecord, *godo.Response, error)
}

// Config holds DigitalOcean settings.
type Config struct {
	Token   string
	Domain  string
	Records []string
	TTL     int
}

// LoadConfigFromMap creates a Config from strategy settings.
func LoadConfigFromMap(settings map[string]string) (*Config, error) {
	cfg := &Config{
		Token:   strings.TrimSpace(settings["TOKEN"]),
		Domain:  strings.TrimSuffix(strings.TrimSpace(settings["DOMAIN"]), "."),
		Records: postupdate.SplitList(settings["RECORDS"]),
		TTL:     DefaultTTL,
	}
	if len(cfg.Records) == 0 {
		cfg.Records = []string{"@"}
	}

	var errs []string
	if cfg.Token == "" {
		errs = append(errs, "TOKEN is required")
	}
	if cfg.Domain == "" {
		errs = append(errs, "DOMAIN is required")
	}
	if v := settings["TTL"]; v != "" {
		ttl, err := strconv.Atoi(v)
		if err != nil || ttl < 1 {
			errs = append(errs, fmt.Sprintf("invalid TTL value %q", v))
		}
		cfg.TTL = ttl
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("digitalocean config: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// Action edits or creates one address record per configured name.
type Action struct {
	domains DomainsAPI
	config  *Config
	logger  *slog.Logger
}

// New creates a DigitalOcean action.
func New(domains DomainsAPI, config *Config, logger *slog.Logger) *Action {
	if logger == nil {
		logger = slog.Default()
	}
	return &Action{
		domains: domains,
		config:  config,
		logger:  logger,
	}
}

// Factory returns a postupdate.Factory for the digitalocean strategy.
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

		// oauth2 layers the token onto the shared client's transport
		base := httputil.NewClient(&httputil.ClientConfig{
			Timeout: cfg.Timeout,
			Logger:  logger,
		})
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: config.Token})
		client := godo.NewClient(oauth2.NewClient(ctx, tokenSource))

		logger.Info("digitalocean post-update configured",
			slog.String("domain", config.Domain),
			slog.Int("records", len(config.Records)),
		)

		return New(client.Domains, config, logger), nil
	}
}

// Name returns the strategy name.
func (a *Action) Name() string {
	return Name
}

// Propagate points every configured name at ip.
func (a *Action) Propagate(ctx context.Context, ip string) error {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return fmt.Errorf("invalid ip %q: %w", ip, err)
	}
	addr = addr.Unmap()
	rrType := "A"
	if addr.Is6() {
		rrType = "AAAA"
	}

	records, err := a.listRecords(ctx)
	if err != nil {
		return err
	}

	for _, name := range a.config.Records {
		req := &godo.DomainRecordEditRequest{
			Type: rrType,
			Name: name,
			Data: addr.String(),
			TTL:  a.config.TTL,
		}

		existing, err := updatableRecord(records, rrType, name, addr.String())
		switch {
		case errors.Is(err, errNoUpdateNeeded):
			a.logger.Debug("digitalocean record already current", slog.String("name", name))
			continue
		case errors.Is(err, errNoRecordsFound):
			if _, _, err := a.domains.CreateRecord(ctx, a.config.Domain, req); err != nil {
				return fmt.Errorf("creating record %s: %w", name, err)
			}
			a.logger.Debug("created digitalocean record", slog.String("name", name))
		default:
			if _, _, err := a.domains.EditRecord(ctx, a.config.Domain, existing.ID, req); err != nil {
				return fmt.Errorf("updating record %s: %w", name, err)
			}
			a.logger.Debug("updated digitalocean record",
				slog.String("name", name),
				slog.Int("id", existing.ID),
			)
		}
	}
	return nil
}

// Ping checks that the token can read the domain.
func (a *Action) Ping(ctx context.Context) error {
	if _, _, err := a.domains.Get(ctx, a.config.Domain); err != nil {
		return fmt.Errorf("reading domain %s: %w", a.config.Domain, err)
	}
	return nil
}

// listRecords fetches every record of the domain, following pagination.
func (a *Action) listRecords(ctx context.Context) ([]godo.DomainRecord, error) {
	var all []godo.DomainRecord
	opt := &godo.ListOptions{Page: 1, PerPage: listPageSize}
	for {
		records, resp, err := a.domains.Records(ctx, a.config.Domain, opt)
		if err != nil {
			return nil, fmt.Errorf("listing records of %s: %w", a.config.Domain, err)
		}
		all = append(all, records...)
		if resp == nil || resp.Links == nil || resp.Links.IsLastPage() {
			return all, nil
		}
		opt.Page++
	}
}

// updatableRecord returns the first record of rrType named name whose data
// differs from value. errNoUpdateNeeded means every such record already
// holds value; errNoRecordsFound means there is none.
func updatableRecord(records []godo.DomainRecord, rrType, name, value string) (godo.DomainRecord, error) {
	haveName := false
	for _, record := range records {
		if record.Type != rrType || record.Name != name {
			continue
		}
		haveName = true
		if record.Data != value {
			return record, nil
		}
	}
	if haveName {
		return godo.DomainRecord{}, errNoUpdateNeeded
	}
	return godo.DomainRecord{}, errNoRecordsFound
}
