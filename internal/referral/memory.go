package referral

import (
	"context"
	"sort"
	"sync"

	"ledgerfund/internal/model"
)

// MemoryStore keeps referrals in process memory. Used in dev mode and
// tests; semantics match PostgresStore, including atomic pair dedup.
type MemoryStore struct {
	mu    sync.Mutex
	byID  map[string]model.Referral
	pairs map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]model.Referral),
		pairs: make(map[string]string),
	}
}

func pairKey(referrer, referred string) string {
	return referrer + "|" + referred
}

func (s *MemoryStore) Create(_ context.Context, referral model.Referral) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(referral.ReferrerAddress, referral.ReferredAddress)
	if _, ok := s.pairs[key]; ok {
		return ErrDuplicate
	}
	s.pairs[key] = referral.ID
	s.byID[referral.ID] = referral
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (model.Referral, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	referral, ok := s.byID[id]
	if !ok {
		return model.Referral{}, ErrNotFound
	}
	return referral, nil
}

func (s *MemoryStore) ByReferrer(_ context.Context, referrer string) ([]model.Referral, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var referrals []model.Referral
	for _, referral := range s.byID {
		if referral.ReferrerAddress == referrer {
			referrals = append(referrals, referral)
		}
	}
	sort.Slice(referrals, func(i, j int) bool {
		return referrals[i].CreatedAt.After(referrals[j].CreatedAt)
	})
	return referrals, nil
}

func (s *MemoryStore) MarkNFTPurchased(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	referral, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	referral.NFTPurchased = true
	s.byID[id] = referral
	return nil
}

func (s *MemoryStore) MarkPaymentProcessed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	referral, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	referral.PaymentProcessed = true
	s.byID[id] = referral
	return nil
}
