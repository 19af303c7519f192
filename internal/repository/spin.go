package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lucky-wheel/internal/model"
)

const spinColumns = `id, created_at, wheel_slug, wheel_version, sector_label, color, user_id, function_ref,
	result_message, result_data, success, cancelled, cancelled_at, cancelled_by, cancellation_reason`

func scanSpin(row scanner) (*model.SpinRecord, error) {
	var rec model.SpinRecord
	err := row.Scan(
		&rec.ID,
		&rec.CreatedAt,
		&rec.WheelSlug,
		&rec.WheelVersion,
		&rec.SectorLabel,
		&rec.Color,
		&rec.UserID,
		&rec.Function,
		&rec.ResultMessage,
		&rec.ResultData,
		&rec.Success,
		&rec.Cancelled,
		&rec.CancelledAt,
		&rec.CancelledBy,
		&rec.CancellationReason,
	)
	if err != nil {
		return nil, err
	}
	if rec.ResultData == nil {
		rec.ResultData = map[string]any{}
	}
	return &rec, nil
}

// SpinFilter narrows a history listing. Zero values match everything.
type SpinFilter struct {
	UserID int64
	Wheel  string
	Status string
	Limit  int
	Offset int
}

// SpinRepository persists the spin audit trail.
type SpinRepository struct {
	pool *pgxpool.Pool
}

// NewSpinRepository creates a new SpinRepository instance.
func NewSpinRepository(pool *pgxpool.Pool) *SpinRepository {
	return &SpinRepository{pool: pool}
}

// Create appends a spin record and fills in its id and timestamp.
func (r *SpinRepository) Create(ctx context.Context, rec *model.SpinRecord) error {
	const query = `
		INSERT INTO spins (wheel_slug, wheel_version, sector_label, color, user_id, function_ref,
			result_message, result_data, success, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING id, created_at
	`

	data := rec.ResultData
	if data == nil {
		data = map[string]any{}
	}
	err := r.pool.QueryRow(ctx, query,
		rec.WheelSlug,
		rec.WheelVersion,
		rec.SectorLabel,
		rec.Color,
		rec.UserID,
		rec.Function,
		rec.ResultMessage,
		data,
		rec.Success,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create spin record: %w", err)
	}
	rec.ResultData = data
	return nil
}

// GetByID retrieves a spin record.
func (r *SpinRepository) GetByID(ctx context.Context, id int64) (*model.SpinRecord, error) {
	const query = `SELECT ` + spinColumns + ` FROM spins WHERE id = $1`

	rec, err := scanSpin(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSpinNotFound
		}
		return nil, fmt.Errorf("failed to get spin: %w", err)
	}
	return rec, nil
}

// List returns spin records matching f, newest first.
func (r *SpinRepository) List(ctx context.Context, f SpinFilter) ([]*model.SpinRecord, error) {
	const query = `
		SELECT ` + spinColumns + `
		FROM spins
		WHERE ($1::bigint = 0 OR user_id = $1)
		  AND ($2::text = '' OR wheel_slug = $2)
		  AND (
			$3::text = ''
			OR ($3 = 'cancelled' AND cancelled)
			OR ($3 = 'active' AND success AND NOT cancelled)
			OR ($3 = 'failed' AND NOT success)
		  )
		ORDER BY created_at DESC, id DESC
		LIMIT $4 OFFSET $5
	`

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, query, f.UserID, f.Wheel, f.Status, limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list spins: %w", err)
	}
	defer rows.Close()

	var recs []*model.SpinRecord
	for rows.Next() {
		rec, err := scanSpin(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan spin: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating spins: %w", err)
	}
	return recs, nil
}

// MarkCancelled flags a spin as compensated. The update only applies to a
// successful, not yet cancelled record that carries result data.
func (r *SpinRepository) MarkCancelled(ctx context.Context, id, cancelledBy int64, reason string, at time.Time) (*model.SpinRecord, error) {
	const query = `
		UPDATE spins
		SET cancelled = TRUE, cancelled_at = $2, cancelled_by = $3, cancellation_reason = $4
		WHERE id = $1
		  AND success
		  AND NOT cancelled
		  AND result_data <> '{}'::jsonb
		RETURNING ` + spinColumns

	rec, err := scanSpin(r.pool.QueryRow(ctx, query, id, at, cancelledBy, reason))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to cancel spin: %w", err)
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrNotCancellable
}

// MarkRepository stores moderator validation marks on spins.
type MarkRepository struct {
	pool *pgxpool.Pool
}

// NewMarkRepository creates a new MarkRepository instance.
func NewMarkRepository(pool *pgxpool.Pool) *MarkRepository {
	return &MarkRepository{pool: pool}
}

// Upsert records or replaces the mark an operator left on a spin.
func (r *MarkRepository) Upsert(ctx context.Context, spinID, markedBy int64, note string) (*model.HistoryMark, error) {
	const query = `
		INSERT INTO spin_marks (spin_id, marked_by, note, marked_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (spin_id, marked_by)
		DO UPDATE SET note = EXCLUDED.note, marked_at = NOW()
		RETURNING spin_id, marked_by, note, marked_at
	`

	var m model.HistoryMark
	err := r.pool.QueryRow(ctx, query, spinID, markedBy, note).Scan(&m.SpinID, &m.MarkedBy, &m.Note, &m.MarkedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrSpinNotFound
		}
		return nil, fmt.Errorf("failed to mark spin: %w", err)
	}
	return &m, nil
}

// ListForSpin returns the marks on a spin, oldest first.
func (r *MarkRepository) ListForSpin(ctx context.Context, spinID int64) ([]*model.HistoryMark, error) {
	const query = `
		SELECT spin_id, marked_by, note, marked_at
		FROM spin_marks
		WHERE spin_id = $1
		ORDER BY marked_at, marked_by
	`

	rows, err := r.pool.Query(ctx, query, spinID)
	if err != nil {
		return nil, fmt.Errorf("failed to list marks: %w", err)
	}
	defer rows.Close()

	var marks []*model.HistoryMark
	for rows.Next() {
		var m model.HistoryMark
		if err := rows.Scan(&m.SpinID, &m.MarkedBy, &m.Note, &m.MarkedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mark: %w", err)
		}
		marks = append(marks, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating marks: %w", err)
	}
	return marks, nil
}
