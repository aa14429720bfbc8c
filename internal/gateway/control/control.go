// Package control implements the JSON message channel operators use to
// inspect and manage the cache at runtime.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	gateerrors "github.com/louisbranch/cachegate/internal/gateway/errors"
	"github.com/louisbranch/cachegate/internal/gateway/lifecycle"
	"github.com/louisbranch/cachegate/internal/gateway/monitor"
	"github.com/louisbranch/cachegate/internal/gateway/storage"
	"github.com/louisbranch/cachegate/internal/gateway/version"
)

// Message types accepted by Dispatch.
const (
	TypeGetPerformanceStats   = "GET_PERFORMANCE_STATS"
	TypeResetPerformanceStats = "RESET_PERFORMANCE_STATS"
	TypeClearCache            = "CLEAR_CACHE"
	TypePrecacheURLs          = "PRECACHE_URLS"
	TypeListPartitions        = "LIST_PARTITIONS"
	TypeTriggerCleanup        = "TRIGGER_CLEANUP"
)

// Message is one control frame.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StatsResponse reports the performance counters.
type StatsResponse struct {
	CacheHits             uint64  `json:"cacheHits"`
	CacheMisses           uint64  `json:"cacheMisses"`
	NetworkRequests       uint64  `json:"networkRequests"`
	AverageResponseTimeMs float64 `json:"averageResponseTimeMs"`
}

// SuccessResponse acknowledges an operation with no other payload.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// PrecacheResponse reports a precache batch. Failed is always present
// so clients can distinguish "no failures" from a missing field.
type PrecacheResponse struct {
	Success bool     `json:"success"`
	Failed  []string `json:"failed"`
}

// PartitionsResponse lists the partitions currently on disk.
type PartitionsResponse struct {
	Partitions []string `json:"partitions"`
}

// CleanupResponse reports how many aged entries a cleanup removed.
type CleanupResponse struct {
	Purged int64 `json:"purged"`
}

// Config wires a Dispatcher.
type Config struct {
	Store    storage.Store
	Fetcher  lifecycle.Fetcher
	Monitor  *monitor.Monitor
	Versions version.Set

	// Retention bounds TRIGGER_CLEANUP purges. Zero means the default.
	Retention time.Duration
}

// Dispatcher executes control messages against the cache.
type Dispatcher struct {
	store     storage.Store
	fetcher   lifecycle.Fetcher
	monitor   *monitor.Monitor
	versions  version.Set
	retention time.Duration
}

// NewDispatcher builds a Dispatcher from cfg.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.Monitor == nil {
		return nil, fmt.Errorf("monitor is required")
	}
	if cfg.Versions.Version == "" {
		return nil, fmt.Errorf("version set is required")
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = lifecycle.DefaultRetention
	}
	return &Dispatcher{
		store:     cfg.Store,
		fetcher:   cfg.Fetcher,
		monitor:   cfg.Monitor,
		versions:  cfg.Versions,
		retention: retention,
	}, nil
}

// Dispatch executes one message and returns its response payload.
// Unknown message types are an explicit error, never a silent drop.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) (any, error) {
	if d == nil {
		return nil, fmt.Errorf("dispatcher is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	switch msg.Type {
	case TypeGetPerformanceStats:
		return d.performanceStats(), nil
	case TypeResetPerformanceStats:
		return d.resetPerformanceStats(), nil
	case TypeClearCache:
		return d.clearCache(ctx, msg.Payload)
	case TypePrecacheURLs:
		return d.precacheURLs(ctx, msg.Payload)
	case TypeListPartitions:
		return d.listPartitions(ctx)
	case TypeTriggerCleanup:
		return d.triggerCleanup(ctx)
	default:
		return nil, gateerrors.E(gateerrors.KindUnknownMessageType, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func (d *Dispatcher) performanceStats() StatsResponse {
	snap := d.monitor.Snapshot()
	return StatsResponse{
		CacheHits:             snap.CacheHits,
		CacheMisses:           snap.CacheMisses,
		NetworkRequests:       snap.NetworkRequests,
		AverageResponseTimeMs: float64(snap.AverageResponseTime) / float64(time.Millisecond),
	}
}

func (d *Dispatcher) resetPerformanceStats() SuccessResponse {
	d.monitor.Reset()
	return SuccessResponse{Success: true}
}

func (d *Dispatcher) clearCache(ctx context.Context, payload json.RawMessage) (any, error) {
	var req struct {
		CacheName string `json:"cacheName"`
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, gateerrors.Wrap(gateerrors.KindInvalidInput, "decode payload", err)
		}
	}

	name := strings.TrimSpace(req.CacheName)
	if name == "" {
		names, err := d.store.ListPartitions(ctx)
		if err != nil {
			return nil, fmt.Errorf("list partitions: %w", err)
		}
		for _, partition := range names {
			if err := d.store.DeletePartition(ctx, partition); err != nil {
				return nil, fmt.Errorf("delete partition %q: %w", partition, err)
			}
		}
		return SuccessResponse{Success: true}, nil
	}

	// Logical names resolve to the current version's partition; anything
	// else is taken as a physical name. Deleting a missing partition
	// still succeeds.
	if physical, ok := d.versions.Resolve(name); ok {
		name = physical
	}
	if err := d.store.DeletePartition(ctx, name); err != nil {
		return nil, fmt.Errorf("delete partition %q: %w", name, err)
	}
	return SuccessResponse{Success: true}, nil
}

func (d *Dispatcher) precacheURLs(ctx context.Context, payload json.RawMessage) (any, error) {
	var req struct {
		URLs []string `json:"urls"`
	}
	if len(payload) == 0 {
		return nil, gateerrors.E(gateerrors.KindInvalidInput, "payload with urls is required")
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, gateerrors.Wrap(gateerrors.KindInvalidInput, "decode payload", err)
	}

	partition, _ := d.versions.Resolve(version.LogicalDynamic)
	failed, err := lifecycle.Precache(ctx, d.store, d.fetcher, partition, req.URLs)
	if err != nil {
		return nil, fmt.Errorf("precache: %w", err)
	}
	if failed == nil {
		failed = []string{}
	}
	// Per-URL failures do not fail the batch; they are reported in Failed.
	return PrecacheResponse{Success: true, Failed: failed}, nil
}

func (d *Dispatcher) listPartitions(ctx context.Context) (any, error) {
	names, err := d.store.ListPartitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return PartitionsResponse{Partitions: names}, nil
}

func (d *Dispatcher) triggerCleanup(ctx context.Context) (any, error) {
	purged, err := lifecycle.CleanupAged(ctx, d.store, d.versions, d.retention)
	if err != nil {
		return nil, fmt.Errorf("cleanup: %w", err)
	}
	return CleanupResponse{Purged: purged}, nil
}
