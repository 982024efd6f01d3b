package referral

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ledgerfund/internal/model"
)

// Service validates and records referral relationships.
type Service struct {
	store  Store
	logger *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// Create records a new referral. Addresses are normalized to lowercase
// so checksum-cased duplicates cannot slip past the pair constraint.
func (s *Service) Create(ctx context.Context, referrer, referred string) (model.Referral, error) {
	referrer, err := normalizeAddress(referrer)
	if err != nil {
		return model.Referral{}, fmt.Errorf("referrer: %w", err)
	}
	referred, err = normalizeAddress(referred)
	if err != nil {
		return model.Referral{}, fmt.Errorf("referred: %w", err)
	}
	if referrer == referred {
		return model.Referral{}, fmt.Errorf("self-referral is not allowed")
	}

	referral := model.Referral{
		ID:              uuid.NewString(),
		ReferrerAddress: referrer,
		ReferredAddress: referred,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.store.Create(ctx, referral); err != nil {
		return model.Referral{}, err
	}

	s.logger.Info("referral recorded",
		zap.String("id", referral.ID),
		zap.String("referrer", referrer),
		zap.String("referred", referred),
	)
	return referral, nil
}

// ByReferrer lists referrals made by one address, newest first.
func (s *Service) ByReferrer(ctx context.Context, referrer string) ([]model.Referral, error) {
	referrer, err := normalizeAddress(referrer)
	if err != nil {
		return nil, fmt.Errorf("referrer: %w", err)
	}
	return s.store.ByReferrer(ctx, referrer)
}

// MarkNFTPurchased flips the purchase flag. The transition is monotonic:
// re-marking an already-marked referral is a no-op, never a reset.
func (s *Service) MarkNFTPurchased(ctx context.Context, id string) error {
	return s.store.MarkNFTPurchased(ctx, id)
}

// MarkPaymentProcessed flips the payment flag, monotonically.
func (s *Service) MarkPaymentProcessed(ctx context.Context, id string) error {
	return s.store.MarkPaymentProcessed(ctx, id)
}

func normalizeAddress(input string) (string, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return "", fmt.Errorf("invalid address: %s", input)
	}
	return strings.ToLower(common.HexToAddress(input).Hex()), nil
}
