package lifecycle

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/louisbranch/cachegate/internal/gateway/storage"
	"github.com/louisbranch/cachegate/internal/gateway/version"
)

// DefaultRetention bounds how long dynamic and api entries may keep
// serving before the cleanup purges them.
const DefaultRetention = 7 * 24 * time.Hour

// DefaultCleanupInterval is how often the cleanup worker ticks.
const DefaultCleanupInterval = time.Hour

// CleanupAged purges entries older than retention from the current
// version's dynamic and api partitions. The static partition is only
// ever dropped whole at version cutover, so it is never purged here.
// Entries of unknown age are left alone.
func CleanupAged(ctx context.Context, store storage.Store, versions version.Set, retention time.Duration) (int64, error) {
	if store == nil {
		return 0, fmt.Errorf("store is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if retention <= 0 {
		retention = DefaultRetention
	}

	cutoff := time.Now().UTC().Add(-retention)
	var purged int64
	for _, logical := range []string{version.LogicalDynamic, version.LogicalAPI} {
		name, ok := versions.Resolve(logical)
		if !ok {
			continue
		}
		n, err := store.PurgeOlderThan(ctx, name, cutoff)
		if err != nil {
			return purged, fmt.Errorf("purge partition %q: %w", name, err)
		}
		purged += n
	}
	return purged, nil
}

// RunCleanupLoop performs periodic retention purges until ctx is done.
func RunCleanupLoop(ctx context.Context, store storage.Store, versions version.Set, interval, retention time.Duration) {
	if store == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}

	runCleanupTick(ctx, store, versions, retention)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCleanupTick(ctx, store, versions, retention)
		}
	}
}

func runCleanupTick(ctx context.Context, store storage.Store, versions version.Set, retention time.Duration) {
	purged, err := CleanupAged(ctx, store, versions, retention)
	if err != nil {
		log.Printf("cache cleanup failed: %v", err)
		return
	}
	if purged > 0 {
		log.Printf("cache cleanup purged %d entries", purged)
	}
}

// StartCleanupWorker starts an async loop that periodically purges aged
// entries. It returns a cancel func and a channel closed when the loop
// exits.
func StartCleanupWorker(store storage.Store, versions version.Set, interval, retention time.Duration) (context.CancelFunc, chan struct{}) {
	if store == nil {
		return nil, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		RunCleanupLoop(ctx, store, versions, interval, retention)
	}()

	return cancel, done
}
