package referral

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ledgerfund/internal/model"
)

// PostgresStore provides Postgres persistence for referrals. The unique
// constraint on the address pair is what makes Create atomic.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the referrals table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS referrals (
			id UUID PRIMARY KEY,
			referrer_address TEXT NOT NULL,
			referred_address TEXT NOT NULL,
			nft_purchased BOOLEAN NOT NULL DEFAULT FALSE,
			payment_processed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (referrer_address, referred_address)
		)
	`)
	if err != nil {
		return fmt.Errorf("create referrals table: %w", err)
	}
	return nil
}

// Create inserts a referral, returning ErrDuplicate when the pair exists.
func (s *PostgresStore) Create(ctx context.Context, referral model.Referral) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO referrals (id, referrer_address, referred_address, nft_purchased, payment_processed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (referrer_address, referred_address) DO NOTHING
	`,
		referral.ID,
		referral.ReferrerAddress,
		referral.ReferredAddress,
		referral.NFTPurchased,
		referral.PaymentProcessed,
		referral.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert referral: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (model.Referral, error) {
	var r model.Referral
	err := s.pool.QueryRow(ctx, `
		SELECT id, referrer_address, referred_address, nft_purchased, payment_processed, created_at
		FROM referrals WHERE id = $1
	`, id).Scan(&r.ID, &r.ReferrerAddress, &r.ReferredAddress, &r.NFTPurchased, &r.PaymentProcessed, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Referral{}, ErrNotFound
		}
		return model.Referral{}, fmt.Errorf("select referral: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ByReferrer(ctx context.Context, referrer string) ([]model.Referral, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, referrer_address, referred_address, nft_purchased, payment_processed, created_at
		FROM referrals WHERE referrer_address = $1
		ORDER BY created_at DESC
	`, referrer)
	if err != nil {
		return nil, fmt.Errorf("select referrals: %w", err)
	}
	defer rows.Close()

	var referrals []model.Referral
	for rows.Next() {
		var r model.Referral
		if err := rows.Scan(&r.ID, &r.ReferrerAddress, &r.ReferredAddress, &r.NFTPurchased, &r.PaymentProcessed, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan referral: %w", err)
		}
		referrals = append(referrals, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate referrals: %w", err)
	}
	return referrals, nil
}

func (s *PostgresStore) MarkNFTPurchased(ctx context.Context, id string) error {
	return s.setFlag(ctx, id, "nft_purchased")
}

func (s *PostgresStore) MarkPaymentProcessed(ctx context.Context, id string) error {
	return s.setFlag(ctx, id, "payment_processed")
}

func (s *PostgresStore) setFlag(ctx context.Context, id, column string) error {
	// column comes from the two callers above, never from input.
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`UPDATE referrals SET %s = TRUE WHERE id = $1`, column), id)
	if err != nil {
		return fmt.Errorf("update referral %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
