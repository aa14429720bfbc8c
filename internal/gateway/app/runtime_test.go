package app

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/cachegate/internal/gateway/lifecycle"
	"github.com/louisbranch/cachegate/internal/gateway/storage"
	"github.com/louisbranch/cachegate/internal/gateway/strategy"
	"github.com/louisbranch/cachegate/internal/platform/timeouts"
)

func TestNormalizedAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg := RuntimeConfig{}.normalized()

	if cfg.ProxyPort != defaultProxyPort {
		t.Fatalf("ProxyPort = %d, want %d", cfg.ProxyPort, defaultProxyPort)
	}
	if cfg.OpsPort != defaultOpsPort {
		t.Fatalf("OpsPort = %d, want %d", cfg.OpsPort, defaultOpsPort)
	}
	if cfg.HealthPort != defaultHealthPort {
		t.Fatalf("HealthPort = %d, want %d", cfg.HealthPort, defaultHealthPort)
	}
	if cfg.Version != defaultVersion {
		t.Fatalf("Version = %q, want %q", cfg.Version, defaultVersion)
	}
	if cfg.NetworkTimeout != timeouts.NetworkFetch {
		t.Fatalf("NetworkTimeout = %v, want %v", cfg.NetworkTimeout, timeouts.NetworkFetch)
	}
	if cfg.CleanupInterval != lifecycle.DefaultCleanupInterval {
		t.Fatalf("CleanupInterval = %v, want %v", cfg.CleanupInterval, lifecycle.DefaultCleanupInterval)
	}
	if cfg.Retention != lifecycle.DefaultRetention {
		t.Fatalf("Retention = %v, want %v", cfg.Retention, lifecycle.DefaultRetention)
	}
	if cfg.ReadHeaderTimeout != timeouts.ReadHeader {
		t.Fatalf("ReadHeaderTimeout = %v, want %v", cfg.ReadHeaderTimeout, timeouts.ReadHeader)
	}
	if cfg.ShutdownTimeout != timeouts.Shutdown {
		t.Fatalf("ShutdownTimeout = %v, want %v", cfg.ShutdownTimeout, timeouts.Shutdown)
	}
}

func TestNormalizedKeepsExplicitValues(t *testing.T) {
	t.Parallel()

	cfg := RuntimeConfig{
		ProxyPort:       9090,
		Version:         "7",
		Retention:       time.Hour,
		NetworkTimeout:  time.Second,
		ShutdownTimeout: 2 * time.Second,
	}.normalized()

	if cfg.ProxyPort != 9090 {
		t.Fatalf("ProxyPort = %d, want 9090", cfg.ProxyPort)
	}
	if cfg.Version != "7" {
		t.Fatalf("Version = %q, want %q", cfg.Version, "7")
	}
	if cfg.Retention != time.Hour {
		t.Fatalf("Retention = %v, want %v", cfg.Retention, time.Hour)
	}
	if cfg.NetworkTimeout != time.Second {
		t.Fatalf("NetworkTimeout = %v, want %v", cfg.NetworkTimeout, time.Second)
	}
	if cfg.ShutdownTimeout != 2*time.Second {
		t.Fatalf("ShutdownTimeout = %v, want %v", cfg.ShutdownTimeout, 2*time.Second)
	}
}

func TestOpenStoreDefaultsToMemory(t *testing.T) {
	t.Parallel()

	store, err := openStore("")
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	assertStoreRoundTrip(t, store)
}

func TestOpenStoreCreatesSQLiteFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "cache.db")
	store, err := openStore(path)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat db file: %v", err)
	}
	assertStoreRoundTrip(t, store)
}

func assertStoreRoundTrip(t *testing.T, store storage.Store) {
	t.Helper()
	ctx := context.Background()
	u, err := url.Parse("https://example.com/assets/app.css")
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	key := storage.EntryKey(http.MethodGet, u)
	resp := storage.StoredResponse{Status: http.StatusOK, Body: []byte("body{}")}

	if err := store.Put(ctx, "static-v1", key, resp, time.Now().UTC()); err != nil {
		t.Fatalf("put entry: %v", err)
	}
	entry, found, err := store.Get(ctx, "static-v1", key)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if !found {
		t.Fatal("entry not found after put")
	}
	if got := string(entry.Response.Body); got != "body{}" {
		t.Fatalf("body = %q, want %q", got, "body{}")
	}
}

func TestInstallPolicyParsing(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want lifecycle.InstallPolicy
	}{
		{raw: "", want: lifecycle.InstallBestEffort},
		{raw: "best-effort", want: lifecycle.InstallBestEffort},
		{raw: "strict", want: lifecycle.InstallStrict},
		{raw: " STRICT ", want: lifecycle.InstallStrict},
	}
	for _, tc := range cases {
		if got := installPolicy(tc.raw); got != tc.want {
			t.Fatalf("installPolicy(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestInstallManifestPrecedence(t *testing.T) {
	t.Parallel()

	explicit := installManifest(RuntimeConfig{
		Manifest: []string{"https://example.com/custom.js"},
		Origin:   "https://example.com",
	})
	if len(explicit) != 1 || explicit[0] != "https://example.com/custom.js" {
		t.Fatalf("explicit manifest = %v, want the configured entry", explicit)
	}

	derived := installManifest(RuntimeConfig{Origin: "https://example.com"})
	if len(derived) == 0 {
		t.Fatal("derived manifest is empty, want default entries")
	}

	if got := installManifest(RuntimeConfig{}); got != nil {
		t.Fatalf("manifest without origin = %v, want nil", got)
	}
}

func TestLoadRulesFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	rules, err := loadRules("")
	if err != nil {
		t.Fatalf("loadRules: %v", err)
	}
	if len(rules) == 0 {
		t.Fatal("rules are empty, want defaults")
	}
}

func TestLoadRulesReadsLuaFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.lua")
	script := `return {
  { match = "prefix:/internal/", strategy = "cache-only", partition = "static" },
}`
	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		t.Fatalf("write rules file: %v", err)
	}

	rules, err := loadRules(path)
	if err != nil {
		t.Fatalf("loadRules: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("len(rules) = %d, want 1", len(rules))
	}
	if rules[0].Strategy != strategy.CacheOnly {
		t.Fatalf("strategy = %v, want %v", rules[0].Strategy, strategy.CacheOnly)
	}
}
