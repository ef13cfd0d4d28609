// ddnsd accepts authenticated notifications from a client, persists the
// client's public IP and triggers a post-update action when it changes.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/ogier/pflag"
	"golang.org/x/sync/errgroup"

	"gitlab.bluewillows.net/root/ddnsnotify/internal/admission"
	"gitlab.bluewillows.net/root/ddnsnotify/internal/audit"
	"gitlab.bluewillows.net/root/ddnsnotify/internal/auth"
	"gitlab.bluewillows.net/root/ddnsnotify/internal/config"
	"gitlab.bluewillows.net/root/ddnsnotify/internal/health"
	"gitlab.bluewillows.net/root/ddnsnotify/internal/ipstore"
	"gitlab.bluewillows.net/root/ddnsnotify/internal/metrics"
	"gitlab.bluewillows.net/root/ddnsnotify/internal/notifier"
	"gitlab.bluewillows.net/root/ddnsnotify/internal/postupdate"
	"gitlab.bluewillows.net/root/ddnsnotify/internal/server"
	"gitlab.bluewillows.net/root/ddnsnotify/providers/cloudflare"
	"gitlab.bluewillows.net/root/ddnsnotify/providers/digitalocean"
	"gitlab.bluewillows.net/root/ddnsnotify/providers/netcup"
	"gitlab.bluewillows.net/root/ddnsnotify/providers/rfc2136"
	"gitlab.bluewillows.net/root/ddnsnotify/providers/webhook"
)

// Version and BuildDate are set via ldflags during build.
// Example: -ldflags="-X main.Version=v1.0.0 -X main.BuildDate=2026-01-03"
var (
	Version   = "dev"
	BuildDate = "unknown"
)

// shutdownTimeout bounds draining sessions and post-update actions.
const shutdownTimeout = 10 * time.Second

// runner is a session server bound to one listener.
type runner interface {
	Shutdown(ctx context.Context) error
}

func main() {
	configPath := ""
	showVersion := false
	pflag.StringVarP(&configPath, "config", "c", "", "Path to a YAML or TOML config file (overrides DDNS_CONFIG)")
	pflag.BoolVarP(&showVersion, "version", "v", false, "Print the version and exit")
	pflag.Parse()

	if showVersion {
		fmt.Printf("ddnsd %s (built %s, %s)\n", Version, BuildDate, runtime.Version())
		return
	}

	if err := run(configPath); err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintln(os.Stderr, verr.Error())
		} else {
			slog.Error("fatal error", slog.String("error", err.Error()))
		}
		os.Exit(1)
	}
}

func run(configPath string) error {
	// A missing .env is fine; a malformed one is not
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	metrics.SetBuildInfo(Version, runtime.Version())

	logger.Info("ddnsd starting",
		slog.String("version", Version),
		slog.String("build_date", BuildDate),
		slog.String("go_version", runtime.Version()),
		slog.String("transport", cfg.Transport),
		slog.Int("max_connections", cfg.MaxConnections),
	)

	action, err := createAction(cfg, logger)
	if err != nil {
		return err
	}
	dispatcher := postupdate.NewDispatcher(action,
		postupdate.WithLogger(logger),
		postupdate.WithTimeout(cfg.PostUpdate.Timeout),
	)

	store := ipstore.New(cfg.IPFile, ipstore.WithLogger(logger))
	if err := store.Init(); err != nil {
		return fmt.Errorf("initializing ip store: %w", err)
	}

	auditLog, err := audit.Open(cfg.AuditLog)
	if err != nil {
		return err
	}
	defer auditLog.Close()

	service := notifier.New(auth.NewGate(cfg.Auth), store,
		notifier.WithLogger(logger),
		notifier.WithDispatcher(dispatcher),
		notifier.WithAudit(auditLog),
	)

	// Bind before anything is served so a busy port fails fast
	inner, err := net.Listen("tcp", cfg.ListenAddress())
	if err != nil {
		return fmt.Errorf("binding %s: %w", cfg.ListenAddress(), err)
	}
	gate := admission.NewGate(cfg.MaxConnections)
	ln := admission.NewListener(inner, gate, admission.WithLogger(logger))

	var healthServer *health.Server
	var healthLn net.Listener
	if cfg.HealthPort > 0 {
		healthLn, err = net.Listen("tcp", net.JoinHostPort(cfg.ListenAddr, strconv.Itoa(cfg.HealthPort)))
		if err != nil {
			ln.Close()
			return fmt.Errorf("binding health port: %w", err)
		}
		healthServer = newHealthServer(store, gate, action, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	var srv runner
	switch cfg.Transport {
	case config.TransportHTTP:
		httpSrv := server.NewHTTPServer(service,
			server.WithHTTPLogger(logger),
			server.WithAuthFailureDelay(cfg.AuthFailureDelay),
		)
		g.Go(func() error { return httpSrv.Serve(ln) })
		srv = httpSrv
	default:
		tcpSrv := server.NewTCPServer(service,
			server.WithTCPLogger(logger),
			server.WithAuthTimeout(cfg.AuthTimeout),
		)
		g.Go(func() error { return tcpSrv.Serve(gctx, ln) })
		srv = tcpSrv
	}

	if healthServer != nil {
		g.Go(func() error { return healthServer.Serve(healthLn) })
	}

	logger.Info("ddnsd initialized, waiting for notifications",
		slog.String("addr", ln.Addr().String()),
		slog.String("post_update", dispatcher.Strategy()),
		slog.Int("health_port", cfg.HealthPort),
	)

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
		if err := dispatcher.Wait(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if healthServer != nil {
			if err := healthServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("health server shutdown: %w", err))
			}
		}
		for _, err := range errs {
			logger.Warn("shutdown incomplete", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("ddnsd shutdown complete")
	return nil
}

// createAction builds the configured post-update action, or nil when none is
// configured.
func createAction(cfg *config.Config, logger *slog.Logger) (postupdate.Action, error) {
	if !cfg.PostUpdate.Enabled() {
		logger.Info("no post-update action configured")
		return nil, nil
	}

	registry := postupdate.NewRegistry()
	registerPostUpdateFactories(registry)

	action, err := registry.Create(cfg.PostUpdate.Type, postupdate.FactoryConfig{
		Settings: cfg.PostUpdate.Settings,
		Timeout:  cfg.PostUpdate.Timeout,
		Logger:   logger.With(slog.String("strategy", cfg.PostUpdate.Type)),
	})
	if err != nil {
		return nil, err
	}
	return action, nil
}

func registerPostUpdateFactories(registry *postupdate.Registry) {
	registry.RegisterFactory(postupdate.ExecName, postupdate.ExecFactory())

	registry.RegisterFactory(netcup.Name, netcup.Factory())
	registry.RegisterFactory(cloudflare.Name, cloudflare.Factory())
	registry.RegisterFactory(digitalocean.Name, digitalocean.Factory())
	registry.RegisterFactory(rfc2136.Name, rfc2136.Factory())
	registry.RegisterFactory(webhook.Name, webhook.Factory())
}

func newHealthServer(store *ipstore.Store, gate *admission.Gate, action postupdate.Action, logger *slog.Logger) *health.Server {
	s := health.New(
		health.WithLogger(logger),
		health.WithSessionStats(gate),
	)
	s.RegisterChecker("ipstore", health.StoreChecker(store))
	if pinger, ok := action.(postupdate.Pinger); ok {
		s.RegisterChecker("post_update:"+action.Name(), pinger.Ping)
	}
	s.RegisterDegradedChecker("admission", health.SaturationChecker(gate))
	return s
}

func setupLogger(level, format string) *slog.Logger {
	logLevel := parseLogLevel(level)

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}

	return slog.New(handler)
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
