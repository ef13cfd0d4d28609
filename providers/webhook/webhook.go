// Package webhook implements the post-update strategy that POSTs the new IP
// to an arbitrary HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/ddnsnotify/internal/postupdate"
	"gitlab.bluewillows.net/root/ddnsnotify/pkg/httputil"
)

// Name is the strategy name used in DDNS_POST_UPDATE.
const Name = "webhook"

// Payload is the request body sent on every IP change.
type Payload struct {
	IP        string    `json:"ip"`
	Records   []string  `json:"records,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Config holds webhook settings.
type Config struct {
	// URL is the endpoint receiving the POST (required).
	URL string

	// AuthHeader and AuthToken add one authentication header when both are set.
	AuthHeader string
	AuthToken  string

	// Records is passed through to the endpoint untouched.
	Records []string
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("URL is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("URL must be an absolute http(s) URL, got %q", c.URL)
	}
	if c.AuthToken != "" && c.AuthHeader == "" {
		return errors.New("AUTH_HEADER is required when AUTH_TOKEN is set")
	}
	return nil
}

// LoadConfigFromMap creates a Config from strategy settings.
func LoadConfigFromMap(settings map[string]string) (*Config, error) {
	cfg := &Config{
		URL:        strings.TrimSpace(settings["URL"]),
		AuthHeader: strings.TrimSpace(settings["AUTH_HEADER"]),
		AuthToken:  settings["AUTH_TOKEN"],
		Records:    postupdate.SplitList(settings["RECORDS"]),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("webhook config: %w", err)
	}
	return cfg, nil
}

// Action POSTs a Payload to the configured URL.
type Action struct {
	config     *Config
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a webhook action.
func New(config *Config, httpClient *http.Client, logger *slog.Logger) *Action {
	if httpClient == nil {
		httpClient = httputil.NewClient(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Action{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// Factory returns a postupdate.Factory for the webhook strategy.
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

		logger.Info("webhook post-update configured",
			slog.String("url", config.URL),
			slog.Int("records", len(config.Records)),
		)

		return New(config, httpClient, logger), nil
	}
}

// Name returns the strategy name.
func (a *Action) Name() string {
	return Name
}

// Propagate sends one POST. Any 2xx status is success; there are no retries.
func (a *Action) Propagate(ctx context.Context, ip string) error {
	body, err := json.Marshal(Payload{
		IP:        ip,
		Records:   a.config.Records,
		Timestamp: a.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.config.AuthHeader != "" && a.config.AuthToken != "" {
		req.Header.Set(a.config.AuthHeader, a.config.AuthToken)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	if _, err := httputil.ReadBody(resp); err != nil {
		return err
	}

	a.logger.Debug("webhook accepted update",
		slog.String("ip", ip),
		slog.Int("status", resp.StatusCode),
	)
	return nil
}
