// Package executor implements the five caching algorithms against a
// partition store and the network.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/louisbranch/cachegate/internal/gateway/errors"
	"github.com/louisbranch/cachegate/internal/gateway/storage"
	"github.com/louisbranch/cachegate/internal/gateway/strategy"
	"github.com/louisbranch/cachegate/internal/gateway/version"
	"github.com/louisbranch/cachegate/internal/platform/timeouts"
)

// Outcome reports how a request was served so the interceptor can record it.
// Background revalidations are not part of the serving outcome; they reach
// the recorder directly.
type Outcome struct {
	Hit      bool
	Miss     bool
	Network  bool
	Duration time.Duration
}

// BackgroundRecorder observes background revalidation attempts.
type BackgroundRecorder interface {
	RecordBackground()
}

// Config wires an Executor.
type Config struct {
	Store    storage.Store
	Fetcher  Fetcher
	Versions version.Set

	// Spawner runs stale-while-revalidate background fetches. Defaults to
	// GoSpawner.
	Spawner Spawner
	// NetworkTimeout bounds the network-first wait and background fetches.
	// Defaults to timeouts.NetworkFetch; must be finite.
	NetworkTimeout time.Duration
	// Recorder counts background revalidation attempts. Optional.
	Recorder BackgroundRecorder
}

// Executor runs one caching strategy per request.
type Executor struct {
	store    storage.Store
	fetcher  Fetcher
	spawner  Spawner
	versions version.Set
	timeout  time.Duration
	recorder BackgroundRecorder
}

// New validates the wiring and builds an Executor.
func New(cfg Config) (*Executor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.Versions.Version == "" {
		return nil, fmt.Errorf("version set is required")
	}
	if cfg.Spawner == nil {
		cfg.Spawner = GoSpawner{}
	}
	if cfg.NetworkTimeout <= 0 {
		cfg.NetworkTimeout = timeouts.NetworkFetch
	}
	return &Executor{
		store:    cfg.Store,
		fetcher:  cfg.Fetcher,
		spawner:  cfg.Spawner,
		versions: cfg.Versions,
		timeout:  cfg.NetworkTimeout,
		recorder: cfg.Recorder,
	}, nil
}

// Execute serves the request with the given strategy against the logical
// partition. The returned response always carries a fully-buffered body
// except for network-only, which streams straight through.
func (e *Executor) Execute(ctx context.Context, st strategy.Strategy, logical string, req *http.Request) (*http.Response, Outcome, error) {
	if e == nil {
		return nil, Outcome{}, errors.E(errors.KindUnknown, "executor is not configured")
	}
	if req == nil || req.URL == nil {
		return nil, Outcome{}, errors.E(errors.KindInvalidInput, "request is required")
	}

	partition, ok := e.versions.Resolve(logical)
	if !ok {
		return nil, Outcome{}, errors.E(errors.KindInvalidInput, fmt.Sprintf("unknown partition %q", logical))
	}
	key := storage.EntryKey(req.Method, req.URL)

	switch st {
	case strategy.CacheFirst:
		return e.cacheFirst(ctx, partition, key, req)
	case strategy.NetworkFirst:
		return e.networkFirst(ctx, partition, key, req)
	case strategy.StaleWhileRevalidate:
		return e.staleWhileRevalidate(ctx, partition, key, req)
	case strategy.CacheOnly:
		return e.cacheOnly(ctx, partition, key, req)
	case strategy.NetworkOnly:
		return e.networkOnly(ctx, req)
	default:
		return nil, Outcome{}, errors.E(errors.KindInvalidInput, fmt.Sprintf("unknown strategy %q", st))
	}
}

// cacheFirst serves from cache when present and otherwise fetches, persisting
// a 200 for next time.
func (e *Executor) cacheFirst(ctx context.Context, partition, key string, req *http.Request) (*http.Response, Outcome, error) {
	resp, found, dur := e.lookup(ctx, partition, key, req)
	if found {
		return resp, Outcome{Hit: true, Duration: dur}, nil
	}

	netResp, netDur, err := e.fetchAndPersist(ctx, partition, key, req)
	if err != nil {
		return nil, Outcome{Miss: true}, err
	}
	return netResp, Outcome{Miss: true, Network: true, Duration: netDur}, nil
}

// networkFirst fetches with a bounded wait and falls back to cache on
// network failure. A failed attempt is never counted as a network request.
func (e *Executor) networkFirst(ctx context.Context, partition, key string, req *http.Request) (*http.Response, Outcome, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	netResp, netDur, fetchErr := e.fetchAndPersist(fetchCtx, partition, key, req)
	if fetchErr == nil {
		return netResp, Outcome{Network: true, Duration: netDur}, nil
	}

	resp, found, dur := e.lookup(ctx, partition, key, req)
	if found {
		return resp, Outcome{Hit: true, Duration: dur}, nil
	}
	return nil, Outcome{Miss: true}, fetchErr
}

// staleWhileRevalidate serves the cached entry immediately and refreshes it
// in the background; the caller never observes the in-flight fetch.
func (e *Executor) staleWhileRevalidate(ctx context.Context, partition, key string, req *http.Request) (*http.Response, Outcome, error) {
	resp, found, dur := e.lookup(ctx, partition, key, req)
	if found {
		e.revalidate(ctx, partition, key, req)
		return resp, Outcome{Hit: true, Duration: dur}, nil
	}

	netResp, netDur, err := e.fetchAndPersist(ctx, partition, key, req)
	if err != nil {
		return nil, Outcome{Miss: true}, err
	}
	return netResp, Outcome{Miss: true, Network: true, Duration: netDur}, nil
}

// cacheOnly serves from cache or fails; the network is never touched.
func (e *Executor) cacheOnly(ctx context.Context, partition, key string, req *http.Request) (*http.Response, Outcome, error) {
	resp, found, dur := e.lookup(ctx, partition, key, req)
	if !found {
		return nil, Outcome{Miss: true}, errors.E(errors.KindNoCachedResponse, "no cached response")
	}
	return resp, Outcome{Hit: true, Duration: dur}, nil
}

// networkOnly streams from the network and never reads or writes any
// partition.
func (e *Executor) networkOnly(ctx context.Context, req *http.Request) (*http.Response, Outcome, error) {
	start := time.Now()
	resp, err := e.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, Outcome{}, errors.Wrap(errors.KindNetworkUnavailable, "fetch upstream", err)
	}
	return resp, Outcome{Network: true, Duration: time.Since(start)}, nil
}

// lookup reads one entry and materializes it as a response. Read failures
// are logged and treated as a miss so the network path can still serve.
func (e *Executor) lookup(ctx context.Context, partition, key string, req *http.Request) (*http.Response, bool, time.Duration) {
	start := time.Now()
	entry, found, err := e.store.Get(ctx, partition, key)
	dur := time.Since(start)
	if err != nil {
		log.Printf("cache read failed partition=%s key=%s: %v", partition, key, err)
		return nil, false, dur
	}
	if !found {
		return nil, false, dur
	}
	return responseFromEntry(req, entry), true, dur
}

// fetchAndPersist fetches the request, buffers the whole body, and persists
// a 200 snapshot. Persistence failures are logged, never returned.
func (e *Executor) fetchAndPersist(ctx context.Context, partition, key string, req *http.Request) (*http.Response, time.Duration, error) {
	start := time.Now()
	resp, err := e.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, 0, errors.Wrap(errors.KindNetworkUnavailable, "fetch upstream", err)
	}

	body, err := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if err != nil {
		return nil, 0, errors.Wrap(errors.KindNetworkUnavailable, "read upstream body", err)
	}
	if closeErr != nil {
		log.Printf("close upstream body key=%s: %v", key, closeErr)
	}
	dur := time.Since(start)

	if resp.StatusCode == http.StatusOK {
		snapshot := storage.StoredResponse{
			Status: resp.StatusCode,
			Header: resp.Header,
			Body:   body,
		}
		if err := e.store.Put(ctx, partition, key, snapshot, time.Now().UTC()); err != nil {
			log.Printf("cache write failed partition=%s key=%s: %v", partition, key, err)
		}
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, dur, nil
}

// revalidate refreshes one entry in the background, detached from the
// caller's lifetime. Failures feed logs and the recorder only.
func (e *Executor) revalidate(ctx context.Context, partition, key string, req *http.Request) {
	bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	bgReq := req.Clone(bgCtx)
	e.spawner.Spawn(func() {
		defer cancel()
		if e.recorder != nil {
			e.recorder.RecordBackground()
		}
		if _, _, err := e.fetchAndPersist(bgCtx, partition, key, bgReq); err != nil {
			log.Printf("background revalidation failed key=%s: %v", key, err)
		}
	})
}

func responseFromEntry(req *http.Request, entry storage.Entry) *http.Response {
	header := entry.Response.Header
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", entry.Response.Status, http.StatusText(entry.Response.Status)),
		StatusCode:    entry.Response.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(entry.Response.Body)),
		ContentLength: int64(len(entry.Response.Body)),
		Request:       req,
	}
}
