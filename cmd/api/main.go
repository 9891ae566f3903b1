// Package main implements the SOS Méca API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"golang.org/x/time/rate"

	"github.com/sosmeca/sosmeca-server/engine/domain"
	"github.com/sosmeca/sosmeca-server/engine/knowledge"
	"github.com/sosmeca/sosmeca-server/engine/matching"
	"github.com/sosmeca/sosmeca-server/engine/offers"
	"github.com/sosmeca/sosmeca-server/pkg/directory"
	"github.com/sosmeca/sosmeca-server/pkg/metrics"
	"github.com/sosmeca/sosmeca-server/pkg/mid"
	"github.com/sosmeca/sosmeca-server/pkg/notify"
	"github.com/sosmeca/sosmeca-server/pkg/ollama"
	"github.com/sosmeca/sosmeca-server/pkg/resilience"
	"github.com/sosmeca/sosmeca-server/pkg/store"
)

// Config holds all environment-based configuration.
type Config struct {
	Port         string
	MetricsPort  int
	StoreBackend string // memory | nats
	NATSURL      string
	Neo4jEnabled bool
	Neo4jURL     string
	Neo4jUser    string
	Neo4jPass    string
	CasesEnabled bool
	QdrantURL    string
	Collection   string
	OllamaURL    string
	EmbedModel   string
	CORSOrigin   string
	NotifyRate   float64
	NotifyBurst  int
}

func loadConfig() Config {
	return Config{
		Port:         envOr("PORT", "8080"),
		MetricsPort:  envIntOr("METRICS_PORT", 9090),
		StoreBackend: envOr("STORE_BACKEND", "memory"),
		NATSURL:      envOr("NATS_URL", nats.DefaultURL),
		Neo4jEnabled: envBool("NEO4J_ENABLED"),
		Neo4jURL:     envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:    envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:    envOr("NEO4J_PASS", "password"),
		CasesEnabled: envBool("CASES_ENABLED"),
		QdrantURL:    envOr("QDRANT_URL", "localhost:6334"),
		Collection:   envOr("QDRANT_COLLECTION", "breakdown_cases"),
		OllamaURL:    envOr("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel:   envOr("EMBED_MODEL", "nomic-embed-text"),
		CORSOrigin:   envOr("CORS_ORIGIN", "*"),
		NotifyRate:   envFloatOr("NOTIFY_RATE", 20),
		NotifyBurst:  envIntOr("NOTIFY_BURST", 40),
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

func envBool(key string) bool {
	v := os.Getenv(key)
	return v == "1" || v == "true"
}

// collections groups the three document collections behind one struct so
// the backend choice stays in one place.
type collections struct {
	mechanics store.Collection[domain.MechanicProfile]
	requests  store.Collection[domain.AssistanceRequest]
	offers    store.Collection[domain.InterventionOffer]
}

func openCollections(cfg Config, nc *nats.Conn) (collections, error) {
	switch cfg.StoreBackend {
	case "memory":
		return collections{
			mechanics: store.NewMemory[domain.MechanicProfile](store.Mechanics),
			requests:  store.NewMemory[domain.AssistanceRequest](store.Requests),
			offers:    store.NewMemory[domain.InterventionOffer](store.Offers),
		}, nil
	case "nats":
		js, err := nc.JetStream()
		if err != nil {
			return collections{}, fmt.Errorf("jetstream: %w", err)
		}
		mechanics, err := store.NewKV[domain.MechanicProfile](js, store.Mechanics)
		if err != nil {
			return collections{}, err
		}
		requests, err := store.NewKV[domain.AssistanceRequest](js, store.Requests)
		if err != nil {
			return collections{}, err
		}
		offerCol, err := store.NewKV[domain.InterventionOffer](js, store.Offers)
		if err != nil {
			return collections{}, err
		}
		return collections{mechanics: mechanics, requests: requests, offers: offerCol}, nil
	default:
		return collections{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()
	reg.ServeAsync(cfg.MetricsPort)

	// --- NATS (store backend and notifications) ---
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("sosmeca-api"))
	if err != nil {
		if cfg.StoreBackend == "nats" {
			return fmt.Errorf("nats connect: %w", err)
		}
		logger.Warn("nats unreachable, notifications disabled", "err", err)
		nc = nil
	} else {
		defer nc.Close()
	}

	cols, err := openCollections(cfg, nc)
	if err != nil {
		return err
	}

	// --- Notifier ---
	var notifier notify.Notifier
	if nc != nil {
		notifier = notify.NewLimited(
			notify.NewNATS(nc, logger),
			rate.Limit(cfg.NotifyRate), cfg.NotifyBurst,
			notify.WithDropHook(reg.Counter("notifications_dropped_total", "Notifications dropped by the rate limiter.").Inc),
		)
	}

	// --- Mechanic source: Neo4j directory when enabled, store otherwise ---
	var source matching.MechanicSource = matching.NewStoreSource(cols.mechanics)
	var dir *directory.Directory
	if cfg.Neo4jEnabled {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
		if err != nil {
			return fmt.Errorf("neo4j driver: %w", err)
		}
		defer driver.Close(ctx)
		dir = directory.New(driver)
		source = dir
	}

	// --- Services ---
	matchSvc := matching.New(source, matching.NewStoreRequests(cols.requests), logger,
		matching.WithBreaker(resilience.NewBreaker(resilience.DefaultBreakerOpts)),
		matching.WithMetrics(reg),
	)

	offerOpts := []offers.Option{offers.WithMetrics(reg)}
	if notifier != nil {
		offerOpts = append(offerOpts, offers.WithNotifier(notifier))
	}
	offerSvc := offers.New(offers.NewStoreOffers(cols.offers), offers.NewStoreRequests(cols.requests), logger, offerOpts...)

	// --- Case base (optional) ---
	var cases *knowledge.Store
	if cfg.CasesEnabled {
		embedder := ollama.NewClient(cfg.OllamaURL, cfg.EmbedModel)
		cases, err = knowledge.New(cfg.QdrantURL, cfg.Collection, embedder)
		if err != nil {
			return fmt.Errorf("qdrant connect: %w", err)
		}
		defer cases.Close()
		if err := cases.EnsureCollection(ctx, 768); err != nil {
			return err
		}
	}

	srvHandlers := &handlers{
		cols:     cols,
		matching: matchSvc,
		offers:   offerSvc,
		dir:      dir,
		cases:    cases,
		log:      logger,
	}

	handler := mid.Chain(srvHandlers.routes(),
		mid.Recover(logger),
		mid.RequestID(),
		mid.Logger(logger),
		mid.OTel("sosmeca-api"),
		mid.CORS(cfg.CORSOrigin),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "store", cfg.StoreBackend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
