// ddnsc periodically notifies a ddnsd server so it can record this host's
// public IP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/ogier/pflag"

	"gitlab.bluewillows.net/root/ddnsnotify/internal/client"
)

// Version is set via ldflags during build.
var Version = "dev"

// Environment variable names.
const (
	EnvServerAddress = "DDNS_SERVER_ADDRESS"
	EnvAuth          = "DDNS_AUTH"
	EnvTransport     = "DDNS_TRANSPORT"
	EnvSleepMins     = "DDNS_SLEEP_MINS"
	EnvForwardedFor  = "DDNS_FORWARDED_FOR"
	EnvLogLevel      = "DDNS_LOG_LEVEL"
)

// DefaultSleepMins is the delay between calls.
const DefaultSleepMins = 15

type options struct {
	address      string
	auth         string
	transport    string
	interval     time.Duration
	forwardedFor string
}

func main() {
	once := false
	pflag.BoolVar(&once, "once", false, "Notify the server once and exit")
	pflag.Parse()

	if err := run(once); err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(once bool) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(os.Getenv(EnvLogLevel)),
	}))
	slog.SetDefault(logger)

	opts, err := loadOptions(os.Getenv)
	if err != nil {
		return err
	}

	logger.Info("ddnsc starting",
		slog.String("version", Version),
		slog.String("target", opts.address),
		slog.String("transport", opts.transport),
		slog.Duration("interval", opts.interval),
	)

	caller, err := client.New(opts.transport, opts.address, opts.auth,
		client.WithForwardedFor(opts.forwardedFor),
		client.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if once {
		return notify(ctx, caller, logger)
	}
	return poll(ctx, caller, opts.interval, logger)
}

// loadOptions reads the client settings through getenv.
func loadOptions(getenv func(string) string) (options, error) {
	opts := options{
		address:      getenv(EnvServerAddress),
		auth:         getenv(EnvAuth),
		transport:    getenv(EnvTransport),
		forwardedFor: getenv(EnvForwardedFor),
		interval:     DefaultSleepMins * time.Minute,
	}
	if opts.transport == "" {
		opts.transport = client.TransportTCP
	}

	if opts.address == "" {
		return opts, fmt.Errorf("%s is required", EnvServerAddress)
	}
	if opts.auth == "" {
		return opts, fmt.Errorf("%s is required", EnvAuth)
	}
	if v := getenv(EnvSleepMins); v != "" {
		mins, err := strconv.Atoi(v)
		if err != nil {
			return opts, fmt.Errorf("%s: invalid value %q", EnvSleepMins, v)
		}
		if mins <= 0 {
			return opts, fmt.Errorf("%s must be > 0", EnvSleepMins)
		}
		opts.interval = time.Duration(mins) * time.Minute
	}
	return opts, nil
}

// poll notifies the server every interval until ctx is done or a call fails
// at the transport level.
func poll(ctx context.Context, caller client.Caller, interval time.Duration, logger *slog.Logger) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("ddnsc stopped")
			return nil
		case <-timer.C:
		}

		if err := notify(ctx, caller, logger); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		logger.Debug("sleeping", slog.Duration("interval", interval))
		timer.Reset(interval)
	}
}

// notify makes one call. A rejection is logged, not returned.
func notify(ctx context.Context, caller client.Caller, logger *slog.Logger) error {
	res, err := caller.Call(ctx)
	switch {
	case errors.Is(err, client.ErrNoResponse):
		logger.Warn("server closed the connection without a response, check the credential")
		return nil
	case err != nil:
		return fmt.Errorf("calling server: %w", err)
	case res.OK():
		logger.Info("call succeeded", slog.String("message", res.Message))
	default:
		logger.Warn("call rejected",
			slog.Int("status", res.StatusCode),
			slog.String("message", res.Message),
		)
	}
	return nil
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
