// Package maintenance provides one-shot cache store maintenance commands.
package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/louisbranch/cachegate/internal/gateway/lifecycle"
	"github.com/louisbranch/cachegate/internal/gateway/storage"
	"github.com/louisbranch/cachegate/internal/gateway/storage/sqlite"
	"github.com/louisbranch/cachegate/internal/gateway/version"
)

// Config holds maintenance command configuration.
type Config struct {
	DBPath       string
	Timeout      time.Duration
	List         bool
	Purge        bool
	DeleteName   string
	CacheVersion string
	Retention    time.Duration
	JSONOutput   bool
}

type envConfig struct {
	DBPath  string        `env:"CACHEGATE_GATEWAY_DB_PATH"`
	Timeout time.Duration `env:"CACHEGATE_MAINTENANCE_TIMEOUT" envDefault:"10m"`
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var envCfg envConfig
	if err := env.Parse(&envCfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg := Config{
		DBPath:       envCfg.DBPath,
		Timeout:      envCfg.Timeout,
		CacheVersion: "1",
		Retention:    lifecycle.DefaultRetention,
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join("data", "cachegate.db")
	}

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to cache sqlite database (default: CACHEGATE_GATEWAY_DB_PATH or data/cachegate.db)")
	fs.BoolVar(&cfg.List, "list", false, "list cache partitions")
	fs.BoolVar(&cfg.Purge, "purge", false, "purge aged entries from the dynamic and api partitions")
	fs.StringVar(&cfg.DeleteName, "delete", "", "delete one cache partition by name")
	fs.StringVar(&cfg.CacheVersion, "cache-version", cfg.CacheVersion, "cache generation targeted by -purge")
	fs.DurationVar(&cfg.Retention, "retention", cfg.Retention, "maximum entry age kept by -purge")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "output JSON reports")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the maintenance command.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}

	modes := 0
	if cfg.List {
		modes++
	}
	if cfg.Purge {
		modes++
	}
	if strings.TrimSpace(cfg.DeleteName) != "" {
		modes++
	}
	if modes != 1 {
		return errors.New("exactly one of -list, -purge, or -delete is required")
	}
	if cfg.Purge && cfg.Retention <= 0 {
		return errors.New("-retention must be > 0")
	}

	store, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	return runWithDeps(ctx, cfg, store, out, errOut)
}

func openStore(path string) (storage.Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("-db-path is required")
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}
	return store, nil
}

// runWithDeps contains the core maintenance logic with an injectable store.
// It owns the store lifecycle, closing it on return.
func runWithDeps(ctx context.Context, cfg Config, store storage.Store, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}

	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(errOut, "Error: close cache store: %v\n", err)
		}
	}()

	switch {
	case cfg.List:
		return runList(ctx, store, cfg.JSONOutput, out, errOut)
	case cfg.Purge:
		return runPurge(ctx, store, cfg.CacheVersion, cfg.Retention, cfg.JSONOutput, out, errOut)
	default:
		return runDelete(ctx, store, strings.TrimSpace(cfg.DeleteName), cfg.JSONOutput, out, errOut)
	}
}

type listReport struct {
	Partitions []string `json:"partitions"`
}

type purgeReport struct {
	Purged    int64  `json:"purged"`
	Retention string `json:"retention"`
}

type deleteReport struct {
	Partition string `json:"partition"`
}

func runList(ctx context.Context, store storage.Store, jsonOutput bool, out io.Writer, errOut io.Writer) error {
	partitions, err := store.ListPartitions(ctx)
	if err != nil {
		return fmt.Errorf("list partitions: %w", err)
	}
	if partitions == nil {
		partitions = []string{}
	}
	if jsonOutput {
		outputJSON(out, errOut, listReport{Partitions: partitions})
		return nil
	}
	fmt.Fprintf(out, "Partitions (%d):\n", len(partitions))
	for _, name := range partitions {
		fmt.Fprintf(out, "  %s\n", name)
	}
	return nil
}

func runPurge(ctx context.Context, store storage.Store, rawVersion string, retention time.Duration, jsonOutput bool, out io.Writer, errOut io.Writer) error {
	ver, err := version.Parse(rawVersion)
	if err != nil {
		return err
	}
	purged, err := lifecycle.CleanupAged(ctx, store, version.NewSet(ver), retention)
	if err != nil {
		return fmt.Errorf("purge aged entries: %w", err)
	}
	if jsonOutput {
		outputJSON(out, errOut, purgeReport{Purged: purged, Retention: retention.String()})
		return nil
	}
	fmt.Fprintf(out, "Purged %d entries older than %s\n", purged, retention)
	return nil
}

func runDelete(ctx context.Context, store storage.Store, name string, jsonOutput bool, out io.Writer, errOut io.Writer) error {
	if err := store.DeletePartition(ctx, name); err != nil {
		return fmt.Errorf("delete partition %q: %w", name, err)
	}
	if jsonOutput {
		outputJSON(out, errOut, deleteReport{Partition: name})
		return nil
	}
	fmt.Fprintf(out, "Deleted partition %q\n", name)
	return nil
}

func outputJSON(out io.Writer, errOut io.Writer, report any) {
	if err := json.NewEncoder(out).Encode(report); err != nil {
		fmt.Fprintf(errOut, "Error: encode report: %v\n", err)
	}
}
