package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/haasonsaas/dpc/pkg/admin"
	"github.com/haasonsaas/dpc/pkg/authority"
	"github.com/haasonsaas/dpc/pkg/config"
	"github.com/haasonsaas/dpc/pkg/lifecycle"
	"github.com/haasonsaas/dpc/pkg/mediator"
	"github.com/haasonsaas/dpc/pkg/platform"
	"github.com/haasonsaas/dpc/pkg/policy"
	"github.com/haasonsaas/dpc/pkg/telemetry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	configPath = flag.String("config", "/etc/dpc/dpc.yaml", "Config file path")
	listen     = flag.String("listen", "", "Listen address (overrides config)")
	dbPath     = flag.String("db", "", "Platform database path (overrides config)")
	policyFile = flag.String("policy", "", "Password policy file (overrides config)")
	Version    = "dev"
)

func main() {
	flag.Parse()

	configureLogger()
	log.Info().Str("version", Version).Msg("Device policy controller starting")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *dbPath != "" {
		cfg.Platform.DBPath = *dbPath
	}
	if *policyFile != "" {
		cfg.Policy.File = *policyFile
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	applyLogging(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Controller stopped")
	}
	log.Info().Msg("Controller stopped")
}

func run(ctx context.Context, cfg *config.ControllerConfig) error {
	provider, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName:    "dpcd",
		ServiceVersion: Version,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRatio:    cfg.Tracing.SampleRatio,
		LogSpans:       cfg.Tracing.LogSpans,
		Logger:         log.Logger,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	identity, err := cfg.AdminIdentity()
	if err != nil {
		return err
	}

	token, err := ensureAdminToken(cfg)
	if err != nil {
		return fmt.Errorf("admin token: %w", err)
	}

	if dir := filepath.Dir(cfg.Platform.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create platform db dir: %w", err)
		}
	}

	tracker := lifecycle.New(lifecycle.WithLogger(log.With().Str("component", "lifecycle").Logger()))
	store, err := platform.Open(cfg.Platform.DBPath,
		platform.WithStoreLogger(log.With().Str("component", "platform").Logger()),
		platform.WithEventSink(func(ev admin.Event) { tracker.Ingest(ev) }),
	)
	if err != nil {
		return err
	}
	defer store.Close()

	// Replay the platform's current activation into the tracker, as the
	// platform does when the receiver process starts.
	if active, err := store.IsAdminActive(ctx, identity); err == nil && active {
		tracker.Ingest(admin.Enabled())
	}
	if err := provision(ctx, store, identity, cfg); err != nil {
		return fmt.Errorf("provision platform: %w", err)
	}

	evaluator := authority.New(store, identity)
	med := mediator.New(evaluator, store, identity,
		mediator.WithLogger(log.With().Str("component", "mediator").Logger()),
		mediator.WithJournal(mediator.NewJournal(cfg.Mediator.JournalSize)),
	)

	ctl := &Controller{
		identity:    identity,
		evaluator:   evaluator,
		tracker:     tracker,
		mediator:    med,
		activator:   store,
		explanation: cfg.Identity.ActivationExplanation,
		adminToken:  token,
		limiter:     NewRateLimiter(cfg.Server.CommandRateLimit, time.Duration(cfg.Server.CommandRateWindow)*time.Second),
		logger:      log.With().Str("component", "http").Logger(),
	}

	if cfg.Policy.File != "" {
		pol, err := policy.Load(cfg.Policy.File)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.Policy.File).Msg("Could not load password policy")
		} else {
			ctl.applyPolicy(ctx, pol)
		}
		if cfg.Policy.Watch {
			watcher, err := policy.NewWatcher(cfg.Policy.File, ctl.applyPolicy, log.With().Str("component", "policy").Logger())
			if err != nil {
				log.Warn().Err(err).Msg("Policy hot-reload disabled")
			} else {
				go func() { _ = watcher.Run(ctx) }()
			}
		}
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	ctl.routes(r)

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", cfg.Server.Listen).Str("identity", identity.String()).Msg("Controller listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// provision seeds ownership and activation into the emulated platform.
func provision(ctx context.Context, store *platform.Store, id admin.Identity, cfg *config.ControllerConfig) error {
	p := cfg.Platform.Provision
	if p.ActivateAdmin || p.DeviceOwner || p.ProfileOwner {
		if err := store.RequestAdminActivation(ctx, id, cfg.Identity.ActivationExplanation); err != nil {
			return err
		}
	}
	if p.DeviceOwner {
		if err := store.SetDeviceOwner(ctx, id.Package, true); err != nil {
			return err
		}
	}
	if p.ProfileOwner {
		if err := store.SetProfileOwner(ctx, id.Package, true); err != nil {
			return err
		}
	}
	return nil
}

// ensureAdminToken returns the configured token, generating and persisting
// one to the token file when none exists yet.
func ensureAdminToken(cfg *config.ControllerConfig) (string, error) {
	token, err := cfg.ResolveAdminToken()
	if err != nil || token != "" {
		return token, err
	}
	if cfg.Server.AdminTokenFile == "" {
		return "", errors.New("no admin token or token file configured")
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token = hex.EncodeToString(buf)
	if err := os.MkdirAll(filepath.Dir(cfg.Server.AdminTokenFile), 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(cfg.Server.AdminTokenFile, []byte(token+"\n"), 0o600); err != nil {
		return "", err
	}
	log.Info().Str("path", cfg.Server.AdminTokenFile).Msg("Generated admin token")
	return token, nil
}

func configureLogger() {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.DurationFieldUnit = time.Millisecond

	level := zerolog.InfoLevel
	if raw := strings.ToLower(strings.TrimSpace(os.Getenv("DPC_LOG_LEVEL"))); raw != "" {
		if parsed, err := zerolog.ParseLevel(raw); err == nil {
			level = parsed
		}
	}

	format := strings.ToLower(strings.TrimSpace(os.Getenv("DPC_LOG_FORMAT")))

	logger := newLogger(format)
	log.Logger = logger.Level(level)
	zerolog.SetGlobalLevel(level)
}

func applyLogging(cfg config.LoggingConfig) {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level))); err == nil {
		level = parsed
	}

	format := "console"
	if cfg.JSON {
		format = "json"
	}

	logger := newLogger(format)
	log.Logger = logger.Level(level)
	zerolog.SetGlobalLevel(level)
}

func newLogger(format string) zerolog.Logger {
	if format == "json" {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(writer).With().Timestamp().Logger()
}
