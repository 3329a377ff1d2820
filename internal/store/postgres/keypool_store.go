package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/trustedge/signhub/internal/models"
	"github.com/trustedge/signhub/internal/store"
)

// KeyPoolStore implements store.KeyPoolStore using PostgreSQL.
//
// The claim query is the contention point of the whole system: it selects one
// free row with FOR UPDATE SKIP LOCKED and flips in_use in the same
// statement, so concurrent claims against the same pool settle on distinct
// rows or see an empty pool. Losing claimers never block on each other.
type KeyPoolStore struct {
	pool *pgxpool.Pool
}

// NewKeyPoolStore creates a new PostgreSQL-backed key pool store.
func NewKeyPoolStore(pool *pgxpool.Pool) *KeyPoolStore {
	return &KeyPoolStore{pool: pool}
}

// ClaimFreeKey atomically claims one free key for the key holder, algorithm
// and usage. Returns store.ErrNoFreeKey when the pool is exhausted.
func (s *KeyPoolStore) ClaimFreeKey(ctx context.Context, keyHolderID int64, algorithm string, usage models.KeyUsage) (*models.PoolKey, error) {
	query := `
		WITH claimable AS (
			SELECT key_id
			FROM pool_keys
			WHERE key_holder_id = $1
			  AND algorithm = $2
			  AND usage = $3
			  AND in_use = FALSE
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE pool_keys
		SET
			in_use = TRUE,
			acquired_at = NOW()
		FROM claimable
		WHERE pool_keys.key_id = claimable.key_id
		RETURNING pool_keys.key_id, pool_keys.key_holder_id, pool_keys.alias,
		          pool_keys.algorithm, pool_keys.usage, pool_keys.in_use,
		          pool_keys.acquired_at, pool_keys.created_at
	`

	var key models.PoolKey
	err := s.pool.QueryRow(ctx, query, keyHolderID, algorithm, string(usage)).Scan(
		&key.KeyID,
		&key.KeyHolderID,
		&key.Alias,
		&key.Algorithm,
		&key.Usage,
		&key.InUse,
		&key.AcquiredAt,
		&key.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNoFreeKey
		}
		return nil, mapPostgresError(err)
	}

	log.Debug().
		Str("key_id", key.KeyID.String()).
		Int64("key_holder_id", keyHolderID).
		Str("algorithm", algorithm).
		Str("usage", string(usage)).
		Msg("Claimed pool key")

	return &key, nil
}

// ReleaseKey flips a leased key back to free. Releasing a free or unknown key
// is a success no-op.
func (s *KeyPoolStore) ReleaseKey(ctx context.Context, keyID uuid.UUID) error {
	query := `
		UPDATE pool_keys
		SET
			in_use = FALSE,
			acquired_at = NULL
		WHERE key_id = $1
		  AND in_use = TRUE
	`

	result, err := s.pool.Exec(ctx, query, keyID)
	if err != nil {
		return mapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		log.Debug().Str("key_id", keyID.String()).Msg("Release of already-free or unknown key, no-op")
		return nil
	}

	log.Debug().Str("key_id", keyID.String()).Msg("Released pool key")
	return nil
}

// ReclaimStaleKey frees a leased key only while its lease still predates the
// cutoff. The predicate is part of the UPDATE itself, so a key re-leased
// between the stale listing and this call matches zero rows and is left
// alone.
func (s *KeyPoolStore) ReclaimStaleKey(ctx context.Context, keyID uuid.UUID, cutoff time.Time) (bool, error) {
	query := `
		UPDATE pool_keys
		SET
			in_use = FALSE,
			acquired_at = NULL
		WHERE key_id = $1
		  AND in_use = TRUE
		  AND acquired_at < $2
	`

	result, err := s.pool.Exec(ctx, query, keyID, cutoff)
	if err != nil {
		return false, mapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return false, nil
	}

	log.Debug().Str("key_id", keyID.String()).Msg("Reclaimed stale pool key")
	return true, nil
}

// DestroyStaleKey removes a leased key record under the same conditional
// predicate as ReclaimStaleKey.
func (s *KeyPoolStore) DestroyStaleKey(ctx context.Context, keyID uuid.UUID, cutoff time.Time) (bool, error) {
	query := `
		DELETE FROM pool_keys
		WHERE key_id = $1
		  AND in_use = TRUE
		  AND acquired_at < $2
	`

	result, err := s.pool.Exec(ctx, query, keyID, cutoff)
	if err != nil {
		return false, mapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return false, nil
	}

	log.Debug().Str("key_id", keyID.String()).Msg("Destroyed stale pool key")
	return true, nil
}

// DeleteKey permanently removes a key record. Used for one-time keys after a
// single use.
func (s *KeyPoolStore) DeleteKey(ctx context.Context, keyID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM pool_keys WHERE key_id = $1`, keyID)
	if err != nil {
		return mapPostgresError(err)
	}

	if result.RowsAffected() > 0 {
		log.Debug().Str("key_id", keyID.String()).Msg("Destroyed pool key")
	}
	return nil
}

// InsertKey adds a newly generated key in the free state.
func (s *KeyPoolStore) InsertKey(ctx context.Context, key *models.PoolKey) error {
	query := `
		INSERT INTO pool_keys (
			key_id, key_holder_id, alias, algorithm, usage,
			in_use, acquired_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, FALSE, NULL, $6
		)
	`

	_, err := s.pool.Exec(ctx, query,
		key.KeyID,
		key.KeyHolderID,
		key.Alias,
		key.Algorithm,
		string(key.Usage),
		key.CreatedAt,
	)
	if err != nil {
		return mapPostgresError(err)
	}

	return nil
}

// CountFreeKeys returns the free-key count for a pool profile.
func (s *KeyPoolStore) CountFreeKeys(ctx context.Context, keyHolderID int64, algorithm string, usage models.KeyUsage) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM pool_keys
		WHERE key_holder_id = $1
		  AND algorithm = $2
		  AND usage = $3
		  AND in_use = FALSE
	`

	var count int
	err := s.pool.QueryRow(ctx, query, keyHolderID, algorithm, string(usage)).Scan(&count)
	if err != nil {
		return 0, mapPostgresError(err)
	}

	return count, nil
}

// StaleLeasedKeys returns leased keys whose acquired_at is older than the
// cutoff, oldest first.
func (s *KeyPoolStore) StaleLeasedKeys(ctx context.Context, cutoff time.Time) ([]*models.PoolKey, error) {
	query := `
		SELECT key_id, key_holder_id, alias, algorithm, usage,
		       in_use, acquired_at, created_at
		FROM pool_keys
		WHERE in_use = TRUE
		  AND acquired_at < $1
		ORDER BY acquired_at ASC
	`

	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var keys []*models.PoolKey
	for rows.Next() {
		var key models.PoolKey
		err := rows.Scan(
			&key.KeyID,
			&key.KeyHolderID,
			&key.Alias,
			&key.Algorithm,
			&key.Usage,
			&key.InUse,
			&key.AcquiredAt,
			&key.CreatedAt,
		)
		if err != nil {
			return nil, mapPostgresError(err)
		}
		keys = append(keys, &key)
	}

	if err := rows.Err(); err != nil {
		return nil, mapPostgresError(err)
	}

	return keys, nil
}
