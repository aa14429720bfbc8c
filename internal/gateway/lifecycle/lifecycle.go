// Package lifecycle drives cache version rollouts. A Manager installs a
// version by warming its static partition, waits for activation, and on
// activation deletes every partition that does not belong to the
// incoming version.
package lifecycle

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	gateerrors "github.com/louisbranch/cachegate/internal/gateway/errors"
	"github.com/louisbranch/cachegate/internal/gateway/storage"
	"github.com/louisbranch/cachegate/internal/gateway/version"
)

// State tracks where a Manager sits in the install, activate, retire
// progression.
type State int

const (
	StateUnspecified State = iota
	StateInstalling
	StateWaiting
	StateActive
	StateTerminated
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateWaiting:
		return "waiting"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	default:
		return "unspecified"
	}
}

// InstallPolicy decides how manifest fetch failures affect an install.
type InstallPolicy int

const (
	// InstallBestEffort logs individual manifest failures and fails the
	// install only when every entry fails.
	InstallBestEffort InstallPolicy = iota
	// InstallStrict aborts the install on the first manifest failure.
	InstallStrict
)

// String returns the lowercase policy name.
func (p InstallPolicy) String() string {
	if p == InstallStrict {
		return "strict"
	}
	return "best-effort"
}

// Fetcher performs the upstream requests issued while warming a
// partition.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Config wires a Manager.
type Config struct {
	Store    storage.Store
	Fetcher  Fetcher
	Versions version.Set

	// Manifest lists the URLs warmed into the static partition during
	// install. Empty means the install only opens partitions.
	Manifest []string

	Policy InstallPolicy
}

// Manager owns the lifecycle of a single cache version.
type Manager struct {
	mu       sync.Mutex
	state    State
	store    storage.Store
	fetcher  Fetcher
	versions version.Set
	manifest []string
	policy   InstallPolicy
}

// New builds a Manager from cfg.
func New(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.Versions.Version == "" {
		return nil, fmt.Errorf("version set is required")
	}
	return &Manager{
		store:    cfg.Store,
		fetcher:  cfg.Fetcher,
		versions: cfg.Versions,
		manifest: append([]string(nil), cfg.Manifest...),
		policy:   cfg.Policy,
	}, nil
}

// Versions returns the version set this manager owns.
func (m *Manager) Versions() version.Set {
	if m == nil {
		return version.Set{}
	}
	return m.versions
}

// State returns the manager's current lifecycle state.
func (m *Manager) State() State {
	if m == nil {
		return StateUnspecified
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Install opens the version's partitions and warms the static partition
// with the manifest. A failed install retires the manager.
func (m *Manager) Install(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("manager is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	m.setState(StateInstalling)

	for _, name := range m.versions.Names() {
		if err := m.store.Open(ctx, name); err != nil {
			m.setState(StateTerminated)
			return fmt.Errorf("open partition %q: %w", name, err)
		}
	}

	staticName, _ := m.versions.Resolve(version.LogicalStatic)
	if err := m.warmStatic(ctx, staticName); err != nil {
		m.setState(StateTerminated)
		return err
	}

	m.setState(StateWaiting)
	return nil
}

// warmStatic fetches the manifest into the static partition under the
// configured policy.
func (m *Manager) warmStatic(ctx context.Context, partition string) error {
	if m.policy == InstallStrict {
		for _, rawURL := range m.manifest {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := precacheURL(ctx, m.store, m.fetcher, partition, rawURL); err != nil {
				return fmt.Errorf("install %s: manifest entry %q failed: %w", m.versions.Version, rawURL, err)
			}
		}
		return nil
	}

	failed, err := Precache(ctx, m.store, m.fetcher, partition, m.manifest)
	if err != nil {
		return err
	}
	if len(m.manifest) > 0 && len(failed) == len(m.manifest) {
		return fmt.Errorf("install %s: every manifest entry failed", m.versions.Version)
	}
	if len(failed) > 0 {
		log.Printf("install %s: %d of %d manifest entries failed", m.versions.Version, len(failed), len(m.manifest))
	}
	return nil
}

// Activate cuts traffic over to this version. Every partition outside
// the version set is deleted so older versions stop serving.
func (m *Manager) Activate(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("manager is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if state := m.State(); state != StateWaiting {
		return gateerrors.E(gateerrors.KindInvalidInput, fmt.Sprintf("cannot activate from state %q", state))
	}

	names, err := m.store.ListPartitions(ctx)
	if err != nil {
		return fmt.Errorf("list partitions: %w", err)
	}
	for _, name := range names {
		if m.versions.Contains(name) {
			continue
		}
		if err := m.store.DeletePartition(ctx, name); err != nil {
			return fmt.Errorf("delete stale partition %q: %w", name, err)
		}
		log.Printf("activate %s: deleted stale partition %q", m.versions.Version, name)
	}

	m.setState(StateActive)
	return nil
}

func (m *Manager) terminate() {
	if m == nil {
		return
	}
	m.setState(StateTerminated)
}

// Precache fetches each URL and stores the successful responses in the
// partition. It returns the URLs that could not be cached; the batch
// never aborts on an individual failure.
func Precache(ctx context.Context, store storage.Store, fetcher Fetcher, partition string, urls []string) ([]string, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if partition == "" {
		return nil, fmt.Errorf("partition is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var failed []string
	for _, rawURL := range urls {
		if err := ctx.Err(); err != nil {
			return failed, err
		}
		if err := precacheURL(ctx, store, fetcher, partition, rawURL); err != nil {
			log.Printf("precache failed partition=%s url=%s: %v", partition, rawURL, err)
			failed = append(failed, rawURL)
		}
	}
	return failed, nil
}

func precacheURL(ctx context.Context, store storage.Store, fetcher Fetcher, partition, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return gateerrors.Wrap(gateerrors.KindInvalidInput, "build request", err)
	}
	resp, err := fetcher.Fetch(ctx, req)
	if err != nil {
		return gateerrors.Wrap(gateerrors.KindNetworkUnavailable, "fetch upstream", err)
	}
	body, err := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if err != nil {
		return gateerrors.Wrap(gateerrors.KindNetworkUnavailable, "read upstream body", err)
	}
	if closeErr != nil {
		log.Printf("close upstream body url=%s: %v", rawURL, closeErr)
	}
	if resp.StatusCode != http.StatusOK {
		return gateerrors.E(gateerrors.KindHTTPError, fmt.Sprintf("upstream returned %d", resp.StatusCode))
	}

	key := storage.EntryKey(req.Method, req.URL)
	snapshot := storage.StoredResponse{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   body,
	}
	if err := store.Put(ctx, partition, key, snapshot, time.Now().UTC()); err != nil {
		return gateerrors.Wrap(gateerrors.KindStorageWriteFailed, "persist response", err)
	}
	return nil
}
