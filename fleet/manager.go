package fleet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/semver"

	"fleetmaster/logger"
	"fleetmaster/storage"
)

// Config carries the tunable knobs for a Manager.
type Config struct {
	// PollInterval is the period of the per-client location-freshness check.
	PollInterval time.Duration

	// MaxConcurrentUploads caps simultaneous media ingests.
	MaxConcurrentUploads int

	// MinAgentVersion, when set, is the lowest agent version that connects
	// without a warning. Older (or unparsable) versions are still accepted.
	MinAgentVersion string
}

// DefaultConfig returns the manager defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:         60 * time.Second,
		MaxConcurrentUploads: 4,
	}
}

// Manager owns all per-client fleet state: the live transport registry, the
// disconnect-suppression flags, location pollers and the media-upload cap.
// It is the single source of truth for "is this client connected" and for
// whether a given poll task is still current.
//
// Per-client operations are serialized through a keyed lock; operations on
// distinct client IDs proceed concurrently. The registry mutex is never held
// across store or transport calls.
type Manager struct {
	store storage.Store
	blobs BlobStore
	log   *logger.Logger
	cfg   Config

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	conns    map[string]Transport
	suppress map[string]bool
	pollers  map[string]*poller

	uploadSem chan struct{}
}

// NewManager wires a Manager over the given store and blob store. The logger
// may be nil (silent).
func NewManager(store storage.Store, blobs BlobStore, log *logger.Logger, cfg Config) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.MaxConcurrentUploads <= 0 {
		cfg.MaxConcurrentUploads = DefaultConfig().MaxConcurrentUploads
	}
	return &Manager{
		store:     store,
		blobs:     blobs,
		log:       log,
		cfg:       cfg,
		locks:     make(map[string]*sync.Mutex),
		conns:     make(map[string]Transport),
		suppress:  make(map[string]bool),
		pollers:   make(map[string]*poller),
		uploadSem: make(chan struct{}, cfg.MaxConcurrentUploads),
	}
}

// clientLock returns the serialization lock for a client ID, creating it on
// first use. Lock entries are never removed; the set of client IDs a server
// sees is small and stable.
func (m *Manager) clientLock(clientID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[clientID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[clientID] = l
	}
	return l
}

// Connect registers a live transport for clientID and upserts its record.
// A connect for an already-registered client replaces the handle
// (last-connect-wins) and arms the suppression flag so the stale handle's
// trailing disconnect is swallowed. After registration the client's queued
// commands are replayed once and its location poller is started.
func (m *Manager) Connect(ctx context.Context, clientID string, t Transport, dynamicData map[string]interface{}) error {
	lock := m.clientLock(clientID)
	lock.Lock()

	m.mu.Lock()
	if old, ok := m.conns[clientID]; ok && old != t {
		old.Close()
	}
	m.conns[clientID] = t
	// The flag becomes whatever its own prior presence was: a connect that
	// finds a leftover entry from an unresolved disconnect cycle arms
	// suppression for the next disconnect event.
	oldFlag, present := m.suppress[clientID]
	m.suppress[clientID] = present
	m.mu.Unlock()

	now := time.Now()
	client, err := m.store.GetClient(ctx, clientID)
	if err != nil {
		err = fmt.Errorf("failed to look up client: %w", err)
	} else if client == nil {
		if cerr := m.store.CreateClient(ctx, &storage.Client{
			ClientID:    clientID,
			FirstSeen:   now,
			LastSeen:    now,
			IsOnline:    true,
			DynamicData: dynamicData,
		}); cerr != nil {
			err = fmt.Errorf("failed to record connect: %w", cerr)
		}
	} else if merr := m.store.MarkClientOnline(ctx, clientID, now, dynamicData); merr != nil {
		err = fmt.Errorf("failed to record connect: %w", merr)
	}
	if err != nil {
		// A failed upsert must not leave the dead handle registered or a
		// new suppression entry behind: callers treat a Connect error as
		// "never connected" and will not send a matching Disconnect.
		m.mu.Lock()
		if cur, ok := m.conns[clientID]; ok && cur == t {
			delete(m.conns, clientID)
		}
		if present {
			m.suppress[clientID] = oldFlag
		} else {
			delete(m.suppress, clientID)
		}
		m.mu.Unlock()
		lock.Unlock()
		return err
	}
	lock.Unlock()

	m.logInfo("Client connected", "client_id", clientID, "suppress_next_disconnect", present)
	m.checkAgentVersion(clientID, dynamicData)

	m.replayQueue(ctx, clientID)
	m.startPoller(clientID)
	return nil
}

// Disconnect handles a transport going away. A suppressed disconnect (one
// closely following a reconnect that replaced the handle) performs no state
// transition at all. Either way the suppression flag is consumed exactly once.
func (m *Manager) Disconnect(ctx context.Context, clientID string) error {
	lock := m.clientLock(clientID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	suppressed := m.suppress[clientID]
	delete(m.suppress, clientID)
	if suppressed {
		m.mu.Unlock()
		m.logInfo("Client disconnect suppressed", "client_id", clientID)
		return nil
	}
	delete(m.conns, clientID)
	m.mu.Unlock()

	m.stopPoller(clientID)

	if err := m.store.MarkClientOffline(ctx, clientID, time.Now()); err != nil {
		return fmt.Errorf("failed to record disconnect: %w", err)
	}
	m.logInfo("Client disconnected", "client_id", clientID)
	return nil
}

// IsConnected reports whether a live transport is registered for clientID.
func (m *Manager) IsConnected(clientID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.conns[clientID]
	return ok
}

func (m *Manager) transportFor(clientID string) (Transport, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.conns[clientID]
	return t, ok
}

// Client returns the stored record for clientID, or (nil, nil) if unknown.
func (m *Manager) Client(ctx context.Context, clientID string) (*storage.Client, error) {
	return m.store.GetClient(ctx, clientID)
}

// ListClients returns all known client records.
func (m *Manager) ListClients(ctx context.Context) ([]*storage.Client, error) {
	return m.store.ListClients(ctx)
}

// ListOnline returns the records currently marked online.
func (m *Manager) ListOnline(ctx context.Context) ([]*storage.Client, error) {
	return m.store.ListClientsByOnline(ctx, true)
}

// ListOffline returns the records currently marked offline.
func (m *Manager) ListOffline(ctx context.Context) ([]*storage.Client, error) {
	return m.store.ListClientsByOnline(ctx, false)
}

// DeleteClient removes the stored record, any live handle and per-client
// state. The transport, if present, is closed.
func (m *Manager) DeleteClient(ctx context.Context, clientID string) error {
	lock := m.clientLock(clientID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	t, hadConn := m.conns[clientID]
	delete(m.conns, clientID)
	delete(m.suppress, clientID)
	m.mu.Unlock()

	m.stopPoller(clientID)
	if hadConn {
		t.Close()
	}

	if err := m.store.DeleteClient(ctx, clientID); err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	m.logInfo("Client deleted", "client_id", clientID)
	return nil
}

// Close stops all pollers and closes all live transports.
func (m *Manager) Close() {
	m.mu.Lock()
	conns := make([]Transport, 0, len(m.conns))
	for id, t := range m.conns {
		conns = append(conns, t)
		delete(m.conns, id)
	}
	pollers := make([]*poller, 0, len(m.pollers))
	for id, p := range m.pollers {
		pollers = append(pollers, p)
		delete(m.pollers, id)
	}
	m.mu.Unlock()

	for _, p := range pollers {
		close(p.stop)
	}
	for _, t := range conns {
		t.Close()
	}
}

func (m *Manager) checkAgentVersion(clientID string, dynamicData map[string]interface{}) {
	if m.cfg.MinAgentVersion == "" {
		return
	}
	minVer, err := semver.NewVersion(m.cfg.MinAgentVersion)
	if err != nil {
		return
	}
	raw, _ := dynamicData["version"].(string)
	if raw == "" {
		m.logWarn("Agent reported no version", "client_id", clientID)
		return
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		m.logWarn("Agent reported unparsable version", "client_id", clientID, "version", raw)
		return
	}
	if v.LessThan(minVer) {
		m.logWarn("Agent below minimum supported version",
			"client_id", clientID, "version", raw, "minimum", m.cfg.MinAgentVersion)
	}
}
