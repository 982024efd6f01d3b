package loader

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"ledgerfund/internal/model"
)

// EventSource lists proposal creation events (events tier).
type EventSource interface {
	CreatedEvents(ctx context.Context) ([]model.ProposalEvent, error)
}

// DetailSource resolves on-chain detail for one proposal (onchain tier).
type DetailSource interface {
	Hydrate(ctx context.Context, event model.ProposalEvent) (model.ProposalRecord, error)
}

// MetadataSource fetches the off-chain document for a content hash (ipfs tier).
type MetadataSource interface {
	FetchMetadata(ctx context.Context, hash string) (*model.ProposalMetadata, error)
}

// Config holds runtime settings for the loader.
type Config struct {
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
}

type flight struct {
	done chan struct{}
	err  error
}

// Loader resolves proposals through three dependent tiers: creation
// events, per-proposal on-chain detail, then content-addressed metadata.
// Tiers run strictly in order; per-tier state is tracked independently
// so callers can render partial progress.
//
// Partial-failure policy: an onchain-tier failure drops that proposal so
// one bad item cannot block the rest, while an ipfs-tier failure keeps
// the proposal with nil metadata.
type Loader struct {
	cfg      Config
	events   EventSource
	details  DetailSource
	metadata MetadataSource
	pool     *ants.Pool
	tracker  *TierTracker
	logger   *zap.Logger

	mu        sync.Mutex
	proposals []model.ProposalRecord
	inflight  *flight
}

// New builds a Loader with its tier sources.
func New(cfg Config, events EventSource, details DetailSource, metadata MetadataSource, logger *zap.Logger) (*Loader, error) {
	if events == nil || details == nil || metadata == nil {
		return nil, fmt.Errorf("all tier sources are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	return &Loader{
		cfg:      cfg,
		events:   events,
		details:  details,
		metadata: metadata,
		pool:     pool,
		tracker:  NewTierTracker(),
		logger:   logger,
	}, nil
}

// Close releases the fan-out worker pool.
func (l *Loader) Close() {
	l.pool.Release()
}

// LoadAll resolves the full proposal list through all tiers and replaces
// the shared snapshot in a single assignment. Concurrent calls join the
// in-flight run instead of racing it; the joined caller returns that
// run's result.
func (l *Loader) LoadAll(ctx context.Context) error {
	l.mu.Lock()
	if l.inflight != nil {
		f := l.inflight
		l.mu.Unlock()
		select {
		case <-f.done:
			return f.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	l.inflight = f
	l.mu.Unlock()

	f.err = l.run(ctx)

	l.mu.Lock()
	l.inflight = nil
	l.mu.Unlock()
	close(f.done)

	return f.err
}

// Refresh re-runs the full load. Exposed for manual re-trigger.
func (l *Loader) Refresh(ctx context.Context) error {
	return l.LoadAll(ctx)
}

// Proposals returns a snapshot of the assembled proposal list.
func (l *Loader) Proposals() []model.ProposalRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.ProposalRecord, len(l.proposals))
	copy(out, l.proposals)
	return out
}

// LoadingStates returns a snapshot of per-tier loading state.
func (l *Loader) LoadingStates() []model.TierState {
	return l.tracker.Snapshot()
}

func (l *Loader) run(ctx context.Context) error {
	l.tracker.Begin(model.TierEvents)
	var events []model.ProposalEvent
	err := withRetry(ctx, l.cfg.MaxRetries, l.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		events, err = l.events.CreatedEvents(ctx)
		if err != nil {
			l.logger.Warn("creation event query failed", zap.Error(err))
		}
		return err
	})
	if err != nil {
		l.tracker.Fail(model.TierEvents, err)
		l.setProposals(nil)
		return fmt.Errorf("load creation events: %w", err)
	}
	l.tracker.Finish(model.TierEvents)
	l.logger.Info("events tier complete", zap.Int("proposals", len(events)))

	l.tracker.Begin(model.TierOnchain)
	records, err := l.hydrateAll(ctx, events)
	if err != nil {
		l.tracker.Fail(model.TierOnchain, err)
		return fmt.Errorf("load onchain detail: %w", err)
	}
	l.tracker.Finish(model.TierOnchain)
	l.logger.Info("onchain tier complete",
		zap.Int("resolved", len(records)),
		zap.Int("dropped", len(events)-len(records)),
	)

	l.tracker.Begin(model.TierIPFS)
	if err := l.attachMetadata(ctx, records); err != nil {
		l.tracker.Fail(model.TierIPFS, err)
		return fmt.Errorf("load metadata: %w", err)
	}
	l.tracker.Finish(model.TierIPFS)

	// Fan-out settles in arbitrary order; restore a deterministic newest-first view.
	sort.Slice(records, func(i, j int) bool {
		return records[i].BlockNumber > records[j].BlockNumber
	})
	l.setProposals(records)
	return nil
}

// hydrateAll fans out detail fetches across the worker pool. A failed
// item is logged and dropped; only pool or context failures abort the tier.
func (l *Loader) hydrateAll(ctx context.Context, events []model.ProposalEvent) ([]model.ProposalRecord, error) {
	if len(events) == 0 {
		return nil, nil
	}

	results := make([]*model.ProposalRecord, len(events))
	var wg sync.WaitGroup
	for i, event := range events {
		i, event := i, event
		wg.Add(1)
		if err := l.pool.Submit(func() {
			defer wg.Done()
			record, err := l.details.Hydrate(ctx, event)
			if err != nil {
				l.logger.Warn("proposal detail fetch failed",
					zap.String("token_id", event.TokenID),
					zap.Error(err),
				)
				return
			}
			results[i] = &record
		}); err != nil {
			wg.Done()
			return nil, fmt.Errorf("submit detail task: %w", err)
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := make([]model.ProposalRecord, 0, len(results))
	for _, record := range results {
		if record != nil {
			records = append(records, *record)
		}
	}
	return records, nil
}

// attachMetadata fans out metadata fetches across the worker pool. A
// failed item keeps its record with nil metadata.
func (l *Loader) attachMetadata(ctx context.Context, records []model.ProposalRecord) error {
	if len(records) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for i := range records {
		if records[i].ContentHash == "" {
			continue
		}
		i := i
		wg.Add(1)
		if err := l.pool.Submit(func() {
			defer wg.Done()
			meta, err := l.metadata.FetchMetadata(ctx, records[i].ContentHash)
			if err != nil {
				l.logger.Warn("metadata fetch failed",
					zap.String("token_id", records[i].TokenID),
					zap.String("content_hash", records[i].ContentHash),
					zap.Error(err),
				)
				return
			}
			records[i].Metadata = meta
		}); err != nil {
			wg.Done()
			return fmt.Errorf("submit metadata task: %w", err)
		}
	}
	wg.Wait()

	return ctx.Err()
}

func (l *Loader) setProposals(records []model.ProposalRecord) {
	l.mu.Lock()
	l.proposals = records
	l.mu.Unlock()
}
