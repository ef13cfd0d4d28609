// postip points netcup DNS records at the IP given as its only argument.
// ddnsd runs it through the exec post-update strategy:
//
//	DDNS_POST_IP_PATH=/usr/local/bin/postip
//
// Credentials come from the environment or a .env file next to the binary.
// Both the DDNS_NETCUP_* names and the short legacy names are accepted.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/ogier/pflag"

	"gitlab.bluewillows.net/root/ddnsnotify/internal/postupdate"
	"gitlab.bluewillows.net/root/ddnsnotify/providers/netcup"
)

// settingAliases maps netcup settings to their legacy variable names.
var settingAliases = map[string]string{
	"API_KEY":         "API_KEY",
	"API_PASSWORD":    "API_PW",
	"CUSTOMER_NUMBER": "CUS_ID",
	"DOMAIN":          "DOMAIN_NAME",
	"STAR_ID":         "STAR_ID",
	"AT_ID":           "AT_ID",
	"RECORDS":         "RECORDS",
	"ENDPOINT":        "ENDPOINT",
}

const envPrefix = "DDNS_NETCUP_"

func main() {
	timeout := 30 * time.Second
	pflag.DurationVarP(&timeout, "timeout", "t", timeout, "Bound on the whole update")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <ip>\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if pflag.NArg() != 1 {
		pflag.Usage()
		os.Exit(2)
	}

	if err := run(pflag.Arg(0), timeout); err != nil {
		slog.Error("post-update failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(rawIP string, timeout time.Duration) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	ip, err := netip.ParseAddr(strings.TrimSpace(rawIP))
	if err != nil {
		return fmt.Errorf("invalid ip %q: %w", rawIP, err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	action, err := netcup.Factory()(postupdate.FactoryConfig{
		Settings: settingsFromEnv(os.Getenv),
		Timeout:  timeout,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := action.Propagate(ctx, ip.Unmap().String()); err != nil {
		return err
	}
	logger.Info("netcup records updated", slog.String("ip", ip.Unmap().String()))
	return nil
}

// settingsFromEnv collects netcup settings. A DDNS_NETCUP_ name wins over its
// legacy alias.
func settingsFromEnv(getenv func(string) string) map[string]string {
	settings := make(map[string]string, len(settingAliases))
	for key, legacy := range settingAliases {
		if v := getenv(envPrefix + key); v != "" {
			settings[key] = v
		} else if v := getenv(legacy); v != "" {
			settings[key] = v
		}
	}
	return settings
}
