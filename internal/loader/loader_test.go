package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ledgerfund/internal/model"
)

type eventsFunc func(ctx context.Context) ([]model.ProposalEvent, error)

func (f eventsFunc) CreatedEvents(ctx context.Context) ([]model.ProposalEvent, error) {
	return f(ctx)
}

type detailFunc func(ctx context.Context, event model.ProposalEvent) (model.ProposalRecord, error)

func (f detailFunc) Hydrate(ctx context.Context, event model.ProposalEvent) (model.ProposalRecord, error) {
	return f(ctx, event)
}

type metadataFunc func(ctx context.Context, hash string) (*model.ProposalMetadata, error)

func (f metadataFunc) FetchMetadata(ctx context.Context, hash string) (*model.ProposalMetadata, error) {
	return f(ctx, hash)
}

func testEvents(tokenIDs []string, blocks []uint64) []model.ProposalEvent {
	events := make([]model.ProposalEvent, len(tokenIDs))
	for i, id := range tokenIDs {
		events[i] = model.ProposalEvent{
			TokenID:     id,
			Creator:     "0x1111111111111111111111111111111111111111",
			BlockNumber: blocks[i],
			TxHash:      fmt.Sprintf("0xtx%s", id),
		}
	}
	return events
}

func passthroughDetail(ctx context.Context, event model.ProposalEvent) (model.ProposalRecord, error) {
	return model.ProposalRecord{
		TokenID:     event.TokenID,
		Creator:     event.Creator,
		BlockNumber: event.BlockNumber,
		TxHash:      event.TxHash,
		ContentHash: "Qm" + event.TokenID,
	}, nil
}

func newTestLoader(t *testing.T, events EventSource, details DetailSource, metadata MetadataSource) *Loader {
	t.Helper()
	l, err := New(Config{Workers: 4}, events, details, metadata, nil)
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}
	t.Cleanup(l.Close)
	return l
}

func TestLoadAllHappyPath(t *testing.T) {
	events := eventsFunc(func(context.Context) ([]model.ProposalEvent, error) {
		return testEvents([]string{"1", "2"}, []uint64{10, 20}), nil
	})
	metadata := metadataFunc(func(_ context.Context, hash string) (*model.ProposalMetadata, error) {
		if hash == "Qm2" {
			return nil, errors.New("gateway timeout")
		}
		return &model.ProposalMetadata{Title: "doc " + hash}, nil
	})

	l := newTestLoader(t, events, detailFunc(passthroughDetail), metadata)
	if err := l.LoadAll(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	proposals := l.Proposals()
	if len(proposals) != 2 {
		t.Fatalf("proposals = %d, want 2", len(proposals))
	}
	// Newest first: token 2 was created at block 20.
	if proposals[0].TokenID != "2" || proposals[1].TokenID != "1" {
		t.Fatalf("unexpected order: %s, %s", proposals[0].TokenID, proposals[1].TokenID)
	}
	if proposals[0].Metadata != nil {
		t.Fatalf("token 2 metadata should be nil after fetch failure")
	}
	if proposals[1].Metadata == nil || proposals[1].Metadata.Title != "doc Qm1" {
		t.Fatalf("token 1 metadata = %+v", proposals[1].Metadata)
	}

	for _, state := range l.LoadingStates() {
		if state.IsLoading {
			t.Fatalf("tier %s still loading", state.Tier)
		}
		if state.Error != "" {
			t.Fatalf("tier %s has error %q", state.Tier, state.Error)
		}
	}
}

func TestLoadAllEventsFailureAbortsChain(t *testing.T) {
	var detailCalls int64
	events := eventsFunc(func(context.Context) ([]model.ProposalEvent, error) {
		return nil, errors.New("rpc unavailable")
	})
	details := detailFunc(func(ctx context.Context, event model.ProposalEvent) (model.ProposalRecord, error) {
		atomic.AddInt64(&detailCalls, 1)
		return passthroughDetail(ctx, event)
	})
	metadata := metadataFunc(func(context.Context, string) (*model.ProposalMetadata, error) {
		return nil, errors.New("should not be called")
	})

	l := newTestLoader(t, events, details, metadata)
	if err := l.LoadAll(context.Background()); err == nil {
		t.Fatalf("expected error from events tier")
	}

	if atomic.LoadInt64(&detailCalls) != 0 {
		t.Fatalf("onchain tier ran despite events failure")
	}
	if len(l.Proposals()) != 0 {
		t.Fatalf("proposals should be empty after events failure")
	}

	state, _ := l.tracker.State(model.TierEvents)
	if state.IsLoading || state.Error == "" {
		t.Fatalf("events state = %+v, want done with error", state)
	}
	for _, tier := range []model.Tier{model.TierOnchain, model.TierIPFS} {
		state, _ := l.tracker.State(tier)
		if state.IsLoading || state.Error != "" {
			t.Fatalf("tier %s state = %+v, want untouched", tier, state)
		}
	}
}

func TestLoadAllDropsFailedDetails(t *testing.T) {
	events := eventsFunc(func(context.Context) ([]model.ProposalEvent, error) {
		return testEvents([]string{"1", "2", "3"}, []uint64{10, 20, 30}), nil
	})
	details := detailFunc(func(ctx context.Context, event model.ProposalEvent) (model.ProposalRecord, error) {
		if event.TokenID == "2" {
			return model.ProposalRecord{}, errors.New("revert")
		}
		return passthroughDetail(ctx, event)
	})
	metadata := metadataFunc(func(context.Context, string) (*model.ProposalMetadata, error) {
		return &model.ProposalMetadata{}, nil
	})

	l := newTestLoader(t, events, details, metadata)
	if err := l.LoadAll(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	proposals := l.Proposals()
	if len(proposals) != 2 {
		t.Fatalf("proposals = %d, want 2", len(proposals))
	}
	for _, p := range proposals {
		if p.TokenID == "2" {
			t.Fatalf("failed proposal was not dropped")
		}
	}

	state, _ := l.tracker.State(model.TierOnchain)
	if state.Error != "" {
		t.Fatalf("per-item failure must not fail the tier: %q", state.Error)
	}
}

func TestLoadAllKeepsDegradedMetadata(t *testing.T) {
	events := eventsFunc(func(context.Context) ([]model.ProposalEvent, error) {
		return testEvents([]string{"1", "2"}, []uint64{10, 20}), nil
	})
	metadata := metadataFunc(func(_ context.Context, hash string) (*model.ProposalMetadata, error) {
		if hash == "Qm1" {
			return nil, errors.New("pin service down")
		}
		return &model.ProposalMetadata{Title: "ok"}, nil
	})

	l := newTestLoader(t, events, detailFunc(passthroughDetail), metadata)
	if err := l.LoadAll(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	proposals := l.Proposals()
	if len(proposals) != 2 {
		t.Fatalf("degraded item was dropped: %d proposals", len(proposals))
	}
	for _, p := range proposals {
		if p.TokenID == "1" && p.Metadata != nil {
			t.Fatalf("token 1 should have nil metadata")
		}
		if p.TokenID == "2" && p.Metadata == nil {
			t.Fatalf("token 2 should have metadata")
		}
	}
}

func TestLoadAllSortsByBlockDescending(t *testing.T) {
	tokenIDs := []string{"1", "2", "3", "4", "5"}
	blocks := []uint64{50, 10, 40, 30, 20}
	events := eventsFunc(func(context.Context) ([]model.ProposalEvent, error) {
		return testEvents(tokenIDs, blocks), nil
	})
	// Stagger completion so fan-out settles out of order.
	details := detailFunc(func(ctx context.Context, event model.ProposalEvent) (model.ProposalRecord, error) {
		time.Sleep(time.Duration(event.BlockNumber%7) * time.Millisecond)
		return passthroughDetail(ctx, event)
	})
	metadata := metadataFunc(func(context.Context, string) (*model.ProposalMetadata, error) {
		return &model.ProposalMetadata{}, nil
	})

	l := newTestLoader(t, events, details, metadata)
	if err := l.LoadAll(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	proposals := l.Proposals()
	if len(proposals) != len(tokenIDs) {
		t.Fatalf("proposals = %d, want %d", len(proposals), len(tokenIDs))
	}
	for i := 1; i < len(proposals); i++ {
		if proposals[i-1].BlockNumber <= proposals[i].BlockNumber {
			t.Fatalf("not sorted descending at %d: %d <= %d", i, proposals[i-1].BlockNumber, proposals[i].BlockNumber)
		}
	}
}

func TestTierOrdering(t *testing.T) {
	var violation atomic.Bool
	var l *Loader

	events := eventsFunc(func(context.Context) ([]model.ProposalEvent, error) {
		return testEvents([]string{"1", "2"}, []uint64{10, 20}), nil
	})
	details := detailFunc(func(ctx context.Context, event model.ProposalEvent) (model.ProposalRecord, error) {
		state, _ := l.tracker.State(model.TierEvents)
		if state.IsLoading || state.Error != "" {
			violation.Store(true)
		}
		return passthroughDetail(ctx, event)
	})
	metadata := metadataFunc(func(context.Context, string) (*model.ProposalMetadata, error) {
		state, _ := l.tracker.State(model.TierOnchain)
		if state.IsLoading || state.Error != "" {
			violation.Store(true)
		}
		return &model.ProposalMetadata{}, nil
	})

	l = newTestLoader(t, events, details, metadata)
	if err := l.LoadAll(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if violation.Load() {
		t.Fatalf("a tier started before its predecessor completed")
	}
}

func TestLoadAllSingleFlight(t *testing.T) {
	var eventCalls int64
	release := make(chan struct{})
	events := eventsFunc(func(context.Context) ([]model.ProposalEvent, error) {
		atomic.AddInt64(&eventCalls, 1)
		<-release
		return nil, nil
	})
	metadata := metadataFunc(func(context.Context, string) (*model.ProposalMetadata, error) {
		return &model.ProposalMetadata{}, nil
	})

	l := newTestLoader(t, events, detailFunc(passthroughDetail), metadata)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.LoadAll(context.Background()); err != nil {
				t.Errorf("load failed: %v", err)
			}
		}()
	}

	// Let the goroutines pile up on the in-flight run before releasing it.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt64(&eventCalls); got != 1 {
		t.Fatalf("event queries = %d, want 1 (joined runs)", got)
	}
}

func TestLoadAllJoinHonorsContext(t *testing.T) {
	release := make(chan struct{})
	events := eventsFunc(func(context.Context) ([]model.ProposalEvent, error) {
		<-release
		return nil, nil
	})
	metadata := metadataFunc(func(context.Context, string) (*model.ProposalMetadata, error) {
		return &model.ProposalMetadata{}, nil
	})

	l := newTestLoader(t, events, detailFunc(passthroughDetail), metadata)

	go l.LoadAll(context.Background())
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.LoadAll(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("joined call error = %v, want context.Canceled", err)
	}
	close(release)
}
