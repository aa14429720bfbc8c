// Package app wires the gateway runtime: cache storage, routing
// strategies, version lifecycle, control surfaces, and the serving
// loops.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/cachegate/internal/gateway/control"
	"github.com/louisbranch/cachegate/internal/gateway/executor"
	"github.com/louisbranch/cachegate/internal/gateway/intercept"
	"github.com/louisbranch/cachegate/internal/gateway/lifecycle"
	"github.com/louisbranch/cachegate/internal/gateway/monitor"
	"github.com/louisbranch/cachegate/internal/gateway/storage"
	"github.com/louisbranch/cachegate/internal/gateway/storage/memory"
	"github.com/louisbranch/cachegate/internal/gateway/storage/sqlite"
	"github.com/louisbranch/cachegate/internal/gateway/strategy"
	"github.com/louisbranch/cachegate/internal/gateway/version"
	"github.com/louisbranch/cachegate/internal/platform/timeouts"
)

// RuntimeConfig controls gateway startup, dependencies, and serving
// behavior.
type RuntimeConfig struct {
	ProxyPort  int
	OpsPort    int
	HealthPort int

	// DBPath locates the SQLite cache store. Empty runs in memory.
	DBPath string

	// Version names the cache generation this process serves.
	Version string

	// Origin is the application shell origin warmed during install.
	Origin string

	// RulesPath points at an optional Lua routing rules file. The file
	// replaces the default routing table entirely.
	RulesPath string

	// Manifest overrides the default install manifest.
	Manifest []string

	// InstallPolicy is "best-effort" or "strict".
	InstallPolicy string

	NetworkTimeout    time.Duration
	CleanupInterval   time.Duration
	Retention         time.Duration
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

const (
	defaultProxyPort  = 8080
	defaultOpsPort    = 8081
	defaultHealthPort = 8082
	defaultVersion    = "1"
)

// Run starts the gateway and serves until ctx ends.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg = cfg.normalized()

	ver, err := version.Parse(cfg.Version)
	if err != nil {
		return fmt.Errorf("parse cache version: %w", err)
	}
	versions := version.NewSet(ver)

	store, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close cache store: %v", closeErr)
		}
	}()

	registry := prometheus.NewRegistry()
	stats := monitor.New(monitor.NewMetrics(registry))

	rules, err := loadRules(cfg.RulesPath)
	if err != nil {
		return err
	}
	selector := strategy.NewSelector(rules)

	fetcher := executor.HTTPFetcher{}
	exec, err := executor.New(executor.Config{
		Store:          store,
		Fetcher:        fetcher,
		Versions:       versions,
		NetworkTimeout: cfg.NetworkTimeout,
		Recorder:       stats,
	})
	if err != nil {
		return fmt.Errorf("build executor: %w", err)
	}
	interceptor, err := intercept.New(intercept.Config{
		Selector: selector,
		Executor: exec,
		Monitor:  stats,
	})
	if err != nil {
		return fmt.Errorf("build interceptor: %w", err)
	}

	manager, err := lifecycle.New(lifecycle.Config{
		Store:    store,
		Fetcher:  fetcher,
		Versions: versions,
		Manifest: installManifest(cfg),
		Policy:   installPolicy(cfg.InstallPolicy),
	})
	if err != nil {
		return fmt.Errorf("build lifecycle manager: %w", err)
	}
	coordinator := lifecycle.NewCoordinator()
	if err := coordinator.Promote(ctx, manager); err != nil {
		return fmt.Errorf("promote cache version %s: %w", versions.Version, err)
	}
	log.Printf("gateway cache version %s active", versions.Version)

	stopCleanup, cleanupDone := lifecycle.StartCleanupWorker(store, versions, cfg.CleanupInterval, cfg.Retention)
	defer func() {
		if stopCleanup != nil {
			stopCleanup()
			<-cleanupDone
		}
	}()

	verifier, err := control.LoadVerifierFromEnv()
	if err != nil {
		return fmt.Errorf("load control verifier: %w", err)
	}
	dispatcher, err := control.NewDispatcher(control.Config{
		Store:     store,
		Fetcher:   fetcher,
		Monitor:   stats,
		Versions:  versions,
		Retention: cfg.Retention,
	})
	if err != nil {
		return fmt.Errorf("build control dispatcher: %w", err)
	}

	healthListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.HealthPort))
	if err != nil {
		return fmt.Errorf("listen on health port %d: %w", cfg.HealthPort, err)
	}
	defer healthListener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("cachegate.gateway", grpc_health_v1.HealthCheckResponse_SERVING)

	healthErr := make(chan error, 1)
	go func() {
		healthErr <- grpcServer.Serve(healthListener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-healthErr
	}()

	proxyServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ProxyPort),
		Handler:           newProxyHandler(interceptor),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	opsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.OpsPort),
		Handler:           newOpsHandler(registry, dispatcher, verifier),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	proxyErr := make(chan error, 1)
	go func() {
		proxyErr <- proxyServer.ListenAndServe()
	}()
	opsErr := make(chan error, 1)
	go func() {
		opsErr <- opsServer.ListenAndServe()
	}()

	log.Printf("gateway proxy listening on %s", proxyServer.Addr)
	log.Printf("gateway ops listening on %s", opsServer.Addr)
	log.Printf("gateway health listening at %v", healthListener.Addr())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := proxyServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown proxy server: %w", err)
		}
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown ops server: %w", err)
		}
		return nil
	case err := <-proxyErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve proxy: %w", err)
	case err := <-opsErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve ops: %w", err)
	}
}

func (cfg RuntimeConfig) normalized() RuntimeConfig {
	if cfg.ProxyPort <= 0 {
		cfg.ProxyPort = defaultProxyPort
	}
	if cfg.OpsPort <= 0 {
		cfg.OpsPort = defaultOpsPort
	}
	if cfg.HealthPort <= 0 {
		cfg.HealthPort = defaultHealthPort
	}
	if strings.TrimSpace(cfg.Version) == "" {
		cfg.Version = defaultVersion
	}
	if cfg.NetworkTimeout <= 0 {
		cfg.NetworkTimeout = timeouts.NetworkFetch
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = lifecycle.DefaultCleanupInterval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = lifecycle.DefaultRetention
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = timeouts.Shutdown
	}
	return cfg
}

func openStore(dbPath string) (storage.Store, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		log.Printf("gateway cache store running in memory")
		return memory.NewStore(), nil
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache store: %w", err)
	}
	return store, nil
}

func loadRules(path string) ([]strategy.Rule, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return strategy.DefaultRules(), nil
	}
	rules, err := strategy.LoadRules(path)
	if err != nil {
		return nil, fmt.Errorf("load routing rules: %w", err)
	}
	log.Printf("gateway routing rules loaded from %s (%d rules)", path, len(rules))
	return rules, nil
}

func installManifest(cfg RuntimeConfig) []string {
	if len(cfg.Manifest) > 0 {
		return cfg.Manifest
	}
	if strings.TrimSpace(cfg.Origin) == "" {
		return nil
	}
	return lifecycle.DefaultManifest(cfg.Origin)
}

func installPolicy(raw string) lifecycle.InstallPolicy {
	if strings.EqualFold(strings.TrimSpace(raw), "strict") {
		return lifecycle.InstallStrict
	}
	return lifecycle.InstallBestEffort
}
