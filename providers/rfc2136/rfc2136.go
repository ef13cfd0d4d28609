// Package rfc2136 implements the post-update strategy that publishes the new
// IP with an RFC 2136 dynamic UPDATE, optionally TSIG-signed.
//
// Settings (DDNS_RFC2136_*):
//
//	SERVER          DNS server, port defaults to 53 (required)
//	ZONE            zone to update (required)
//	RECORDS         comma list of zone-relative names (default "@")
//	TTL             record TTL in seconds (default 300)
//	TSIG_KEY        TSIG key name
//	TSIG_SECRET     base64 TSIG secret (supports _FILE)
//	TSIG_ALGORITHM  hmac-sha256 (default), hmac-sha512, hmac-md5
//	TCP             use TCP instead of UDP
package rfc2136

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"gitlab.bluewillows.net/root/ddnsnotify/internal/postupdate"
	"gitlab.bluewillows.net/root/ddnsnotify/pkg/dnsupdate"
)

// Name is the strategy name used in DDNS_POST_UPDATE.
const Name = "rfc2136"

// DefaultTTL is the TTL of written records when TTL is unset.
const DefaultTTL = 300

// Updater is the subset of the dnsupdate client the action uses.
type Updater interface {
	Ping(ctx context.Context) error
	ReplaceAddress(ctx context.Context, names []string, ip string, ttl uint32) error
}

// Action replaces the address records of every configured name.
type Action struct {
	updater Updater
	records []string
	ttl     uint32
	logger  *slog.Logger
}

// New creates an RFC 2136 action.
func New(updater Updater, records []string, ttl uint32, logger *slog.Logger) *Action {
	if len(records) == 0 {
		records = []string{"@"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Action{
		updater: updater,
		records: records,
		ttl:     ttl,
		logger:  logger,
	}
}

// Factory returns a postupdate.Factory for the rfc2136 strategy.
func Factory() postupdate.Factory {
	return func(cfg postupdate.FactoryConfig) (postupdate.Action, error) {
		logger := cfg.Logger
		if logger == nil {
			logger = slog.Default()
		}

		ttl, err := parseTTL(cfg.Settings["TTL"])
		if err != nil {
			return nil, err
		}

		dnsCfg, err := dnsupdate.LoadConfigFromMap(cfg.Settings)
		if err != nil {
			return nil, err
		}
		dnsCfg.Timeout = cfg.Timeout

		client, err := dnsupdate.NewClient(dnsCfg, dnsupdate.WithLogger(logger))
		if err != nil {
			return nil, err
		}

		action := New(client, postupdate.SplitList(cfg.Settings["RECORDS"]), ttl, logger)

		logger.Info("RFC 2136 post-update configured",
			slog.String("server", dnsCfg.GetServer()),
			slog.String("zone", dnsCfg.Zone),
			slog.Int("records", len(action.records)),
			slog.Bool("tsig", dnsCfg.HasTSIG()),
			slog.Bool("tcp", dnsCfg.UseTCP),
		)

		return action, nil
	}
}

func parseTTL(v string) (uint32, error) {
	if v == "" {
		return DefaultTTL, nil
	}
	ttl, err := strconv.ParseUint(v, 10, 32)
	if err != nil || ttl == 0 {
		return 0, fmt.Errorf("invalid TTL value %q: must be a positive integer", v)
	}
	return uint32(ttl), nil
}

// Name returns the strategy name.
func (a *Action) Name() string {
	return Name
}

// Propagate sends a single UPDATE covering all configured names.
func (a *Action) Propagate(ctx context.Context, ip string) error {
	if err := a.updater.ReplaceAddress(ctx, a.records, ip, a.ttl); err != nil {
		return err
	}
	a.logger.Debug("RFC 2136 update applied",
		slog.String("ip", ip),
		slog.Int("records", len(a.records)),
	)
	return nil
}

// Ping checks that the server answers for the zone.
func (a *Action) Ping(ctx context.Context) error {
	return a.updater.Ping(ctx)
}
