package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGFactorStore keeps TOTP factors in the mfa_factors table.
type PGFactorStore struct {
	pool *pgxpool.Pool
}

func NewPGFactorStore(pool *pgxpool.Pool) *PGFactorStore {
	return &PGFactorStore{pool: pool}
}

const factorCols = `id, user_id, friendly_name, secret, status, created_at, verified_at`

func scanFactor(row pgx.Row) (*Factor, error) {
	var f Factor
	err := row.Scan(&f.ID, &f.UserID, &f.FriendlyName, &f.Secret, &f.Status, &f.CreatedAt, &f.VerifiedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFactorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan factor: %w", err)
	}
	return &f, nil
}

func (s *PGFactorStore) Create(ctx context.Context, f *Factor) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO mfa_factors (id, user_id, friendly_name, secret, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		f.ID, f.UserID, f.FriendlyName, f.Secret, f.Status, f.CreatedAt)
	return err
}

func (s *PGFactorStore) Get(ctx context.Context, userID string, id uuid.UUID) (*Factor, error) {
	return scanFactor(s.pool.QueryRow(ctx,
		`SELECT `+factorCols+` FROM mfa_factors WHERE id = $1 AND user_id = $2`, id, userID))
}

func (s *PGFactorStore) ListByUser(ctx context.Context, userID string) ([]*Factor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+factorCols+` FROM mfa_factors WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*Factor{}
	for rows.Next() {
		f, err := scanFactor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PGFactorStore) MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE mfa_factors SET status = $2, verified_at = $3 WHERE id = $1`, id, FactorVerified, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFactorNotFound
	}
	return nil
}

func (s *PGFactorStore) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM mfa_factors WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFactorNotFound
	}
	return nil
}
