// Package main implements the mechanic-side dispatcher: it watches for new
// pending assistance requests, alerts every mechanic whose intervention
// radius covers the breakdown, and in demo mode answers with synthetic
// offers so the requester flow can be exercised without real mechanics.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/sosmeca/sosmeca-server/engine/domain"
	"github.com/sosmeca/sosmeca-server/engine/offers"
	"github.com/sosmeca/sosmeca-server/pkg/metrics"
	"github.com/sosmeca/sosmeca-server/pkg/notify"
	"github.com/sosmeca/sosmeca-server/pkg/store"
)

// Config holds all environment-based configuration.
type Config struct {
	StoreBackend string // memory | nats
	NATSURL      string
	MetricsPort  int
	Workers      int
	DemoMode     bool
	DemoMinDelay time.Duration
	DemoMaxDelay time.Duration
	NotifyRate   float64
	NotifyBurst  int
}

func loadConfig() Config {
	return Config{
		StoreBackend: envOr("STORE_BACKEND", "nats"),
		NATSURL:      envOr("NATS_URL", nats.DefaultURL),
		MetricsPort:  envIntOr("METRICS_PORT", 9091),
		Workers:      envIntOr("FANOUT_WORKERS", 8),
		DemoMode:     envBool("DEMO_MODE"),
		DemoMinDelay: envDurOr("DEMO_MIN_DELAY", 2*time.Second),
		DemoMaxDelay: envDurOr("DEMO_MAX_DELAY", 8*time.Second),
		NotifyRate:   envFloatOr("NOTIFY_RATE", 50),
		NotifyBurst:  envIntOr("NOTIFY_BURST", 100),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envBool(key string) bool {
	v := os.Getenv(key)
	return v == "1" || v == "true"
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("dispatcher exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()
	reg.ServeAsync(cfg.MetricsPort)

	var (
		mechanics store.Collection[domain.MechanicProfile]
		requests  store.Collection[domain.AssistanceRequest]
		offerCol  store.Collection[domain.InterventionOffer]
		notifier  notify.Notifier
	)
	switch cfg.StoreBackend {
	case "memory":
		// Standalone demo process; nothing else sees these collections.
		mechanics = store.NewMemory[domain.MechanicProfile](store.Mechanics)
		requests = store.NewMemory[domain.AssistanceRequest](store.Requests)
		offerCol = store.NewMemory[domain.InterventionOffer](store.Offers)
	case "nats":
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("sosmeca-dispatcher"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()
		js, err := nc.JetStream()
		if err != nil {
			return fmt.Errorf("jetstream: %w", err)
		}
		if mechanics, err = store.NewKV[domain.MechanicProfile](js, store.Mechanics); err != nil {
			return err
		}
		if requests, err = store.NewKV[domain.AssistanceRequest](js, store.Requests); err != nil {
			return err
		}
		if offerCol, err = store.NewKV[domain.InterventionOffer](js, store.Offers); err != nil {
			return err
		}
		notifier = notify.NewLimited(
			notify.NewNATS(nc, logger),
			rate.Limit(cfg.NotifyRate), cfg.NotifyBurst,
			notify.WithDropHook(reg.Counter("notifications_dropped_total", "Notifications dropped by the rate limiter.").Inc),
		)
	default:
		return fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	offerSvc := offers.New(offers.NewStoreOffers(offerCol), offers.NewStoreRequests(requests), logger,
		offers.WithMetrics(reg))

	d := newDispatcher(dispatcherDeps{
		mechanics: mechanics,
		requests:  requests,
		offers:    offerSvc,
		notifier:  notifier,
		log:       logger,
		reg:       reg,
	}, cfg)

	logger.Info("dispatcher starting", "store", cfg.StoreBackend, "demo", cfg.DemoMode)
	return d.run(ctx)
}
