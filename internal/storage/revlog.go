package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/jmoiron/sqlx"
)

// InsertRevlog appends a review log entry. A clashing id yields ErrDuplicate.
func (db *DB) InsertRevlog(ctx context.Context, e *domain.RevLogEntry) error {
	_, err := sqlx.NamedExecContext(ctx, db.q, `
		INSERT INTO revlog (id, cid, ease, ivl, last_ivl, factor, time, type)
		VALUES (:id, :cid, :ease, :ivl, :last_ivl, :factor, :time, :type)
	`, e)
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("revlog %d: %w", e.ID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert revlog for card %d: %w", e.CardID, err)
	}
	return nil
}

// LastRevlogID returns the id of the newest entry for a card.
func (db *DB) LastRevlogID(ctx context.Context, cid int64) (int64, error) {
	var id int64
	err := sqlx.GetContext(ctx, db.q, &id, `SELECT id FROM revlog WHERE cid = ? ORDER BY id DESC LIMIT 1`, cid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("revlog for card %d: %w", cid, ErrNotFound)
		}
		return 0, fmt.Errorf("failed to get last revlog for card %d: %w", cid, err)
	}
	return id, nil
}

// DeleteRevlog removes a single entry. Only undo does this.
func (db *DB) DeleteRevlog(ctx context.Context, id int64) error {
	if _, err := db.q.ExecContext(ctx, `DELETE FROM revlog WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete revlog %d: %w", id, err)
	}
	return nil
}

// RevlogForCard returns a card's history, oldest first.
func (db *DB) RevlogForCard(ctx context.Context, cid int64) ([]domain.RevLogEntry, error) {
	var entries []domain.RevLogEntry
	err := sqlx.SelectContext(ctx, db.q, &entries, `
		SELECT id, cid, ease, ivl, last_ivl, factor, time, type FROM revlog WHERE cid = ? ORDER BY id
	`, cid)
	if err != nil {
		return nil, fmt.Errorf("failed to get revlog for card %d: %w", cid, err)
	}
	return entries, nil
}

// ShiftLearningEases adds delta to the ease of learning and relearning
// entries whose ease is one of from. Used when the learning buttons change.
func (db *DB) ShiftLearningEases(ctx context.Context, from []domain.Ease, delta int) error {
	query, args, err := db.in(`UPDATE revlog SET ease = ease + ? WHERE ease IN (?) AND type IN (?)`,
		delta, from, []domain.RevLogType{domain.RevLogLearn, domain.RevLogRelearn})
	if err != nil {
		return fmt.Errorf("failed to build revlog ease update: %w", err)
	}
	if _, err := db.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to shift learning eases: %w", err)
	}
	return nil
}
