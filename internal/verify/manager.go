package verify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"ledgerfund/internal/model"
)

type watchEntry struct {
	verifier *Verifier
	watcher  *Watcher
}

// Manager owns transfer watchers keyed by bounty id. Registering the
// same bounty twice joins the existing watch instead of starting a
// competing one.
type Manager struct {
	source   BalanceSource
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	watches map[string]*watchEntry
}

// NewManager builds a Manager polling at the given interval.
func NewManager(source BalanceSource, interval time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		source:   source,
		interval: interval,
		logger:   logger,
		watches:  make(map[string]*watchEntry),
	}
}

// Watch starts verification for a bounty and returns its initial state.
// ctx bounds the lifetime of the polling loop, not of this call.
func (m *Manager) Watch(ctx context.Context, bountyID string, cfg Config) (model.TransferState, error) {
	if bountyID == "" {
		return model.TransferState{}, fmt.Errorf("bounty id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.watches[bountyID]; ok {
		return entry.verifier.State(), nil
	}

	verifier := New(m.source, cfg, m.logger.With(zap.String("bounty_id", bountyID)))
	watcher := NewWatcher(verifier, m.interval, m.logger.With(zap.String("bounty_id", bountyID)))
	watcher.Start(ctx)

	m.watches[bountyID] = &watchEntry{verifier: verifier, watcher: watcher}
	return verifier.State(), nil
}

// Status returns the current transfer state for a bounty.
func (m *Manager) Status(bountyID string) (model.TransferState, bool) {
	m.mu.Lock()
	entry, ok := m.watches[bountyID]
	m.mu.Unlock()
	if !ok {
		return model.TransferState{}, false
	}
	return entry.verifier.State(), true
}

// StopAll tears down every polling loop. Used on shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	entries := make([]*watchEntry, 0, len(m.watches))
	for _, entry := range m.watches {
		entries = append(entries, entry)
	}
	m.mu.Unlock()

	for _, entry := range entries {
		entry.watcher.Stop()
	}
}
