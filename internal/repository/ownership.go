package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lucky-wheel/internal/model"
)

// OwnershipRepository stores the local holder of each unique campus group.
type OwnershipRepository struct {
	pool *pgxpool.Pool
}

// NewOwnershipRepository creates a new OwnershipRepository instance.
func NewOwnershipRepository(pool *pgxpool.Pool) *OwnershipRepository {
	return &OwnershipRepository{pool: pool}
}

// Get returns the ownership row for a group, or nil when nobody holds it.
func (r *OwnershipRepository) Get(ctx context.Context, groupID int64) (*model.UniqueOwnership, error) {
	const query = `
		SELECT group_id, owner_user_id, owner_intra_id, previous_user_id, updated_at
		FROM unique_group_owners
		WHERE group_id = $1
	`

	var o model.UniqueOwnership
	err := r.pool.QueryRow(ctx, query, groupID).Scan(
		&o.GroupID,
		&o.OwnerUserID,
		&o.OwnerIntraID,
		&o.PreviousOwnerID,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get group owner: %w", err)
	}
	return &o, nil
}

// Upsert makes ownerUserID the holder of groupID.
func (r *OwnershipRepository) Upsert(ctx context.Context, groupID, ownerUserID, ownerIntraID int64, previousOwnerID *int64) error {
	const query = `
		INSERT INTO unique_group_owners (group_id, owner_user_id, owner_intra_id, previous_user_id, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (group_id)
		DO UPDATE SET
			owner_user_id = EXCLUDED.owner_user_id,
			owner_intra_id = EXCLUDED.owner_intra_id,
			previous_user_id = EXCLUDED.previous_user_id,
			updated_at = NOW()
	`

	if _, err := r.pool.Exec(ctx, query, groupID, ownerUserID, ownerIntraID, previousOwnerID); err != nil {
		return fmt.Errorf("failed to upsert group owner: %w", err)
	}
	return nil
}

// DeleteIfOwner removes the row only while ownerUserID still holds the group.
func (r *OwnershipRepository) DeleteIfOwner(ctx context.Context, groupID, ownerUserID int64) (bool, error) {
	const query = `DELETE FROM unique_group_owners WHERE group_id = $1 AND owner_user_id = $2`

	result, err := r.pool.Exec(ctx, query, groupID, ownerUserID)
	if err != nil {
		return false, fmt.Errorf("failed to delete group owner: %w", err)
	}
	return result.RowsAffected() == 1, nil
}
