package referral

import (
	"context"
	"errors"

	"ledgerfund/internal/model"
)

// ErrDuplicate is returned when a referrer/referred pair already exists.
var ErrDuplicate = errors.New("referral pair already exists")

// ErrNotFound is returned when no referral matches the given id.
var ErrNotFound = errors.New("referral not found")

// Store persists referral relationships. Create must enforce pair
// uniqueness atomically, not with a read-then-write check.
type Store interface {
	Create(ctx context.Context, referral model.Referral) error
	Get(ctx context.Context, id string) (model.Referral, error)
	ByReferrer(ctx context.Context, referrer string) ([]model.Referral, error)
	MarkNFTPurchased(ctx context.Context, id string) error
	MarkPaymentProcessed(ctx context.Context, id string) error
}
