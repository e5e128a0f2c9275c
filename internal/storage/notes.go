package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/jmoiron/sqlx"
)

// GetNote retrieves a note by id.
func (db *DB) GetNote(ctx context.Context, id int64) (*domain.Note, error) {
	var n domain.Note
	err := sqlx.GetContext(ctx, db.q, &n, `SELECT id, tags, mod FROM notes WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("note %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get note %d: %w", id, err)
	}
	return &n, nil
}

// GetNotes retrieves the given notes ordered by id.
func (db *DB) GetNotes(ctx context.Context, ids []int64) ([]domain.Note, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := db.in(`SELECT id, tags, mod FROM notes WHERE id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build note query: %w", err)
	}
	var notes []domain.Note
	if err := sqlx.SelectContext(ctx, db.q, &notes, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select notes: %w", err)
	}
	return notes, nil
}

// InsertNote stores a new note.
func (db *DB) InsertNote(ctx context.Context, n *domain.Note) error {
	_, err := sqlx.NamedExecContext(ctx, db.q, `INSERT INTO notes (id, tags, mod) VALUES (:id, :tags, :mod)`, n)
	if err != nil {
		return fmt.Errorf("failed to insert note %d: %w", n.ID, err)
	}
	return nil
}

// UpdateNote writes back a note's tags.
func (db *DB) UpdateNote(ctx context.Context, n *domain.Note) error {
	_, err := sqlx.NamedExecContext(ctx, db.q, `UPDATE notes SET tags = :tags, mod = :mod WHERE id = :id`, n)
	if err != nil {
		return fmt.Errorf("failed to update note %d: %w", n.ID, err)
	}
	return nil
}

// DeleteOrphanNotes removes the given notes if no card refers to them any more.
func (db *DB) DeleteOrphanNotes(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := db.in(`
		DELETE FROM notes WHERE id IN (?) AND NOT EXISTS (SELECT 1 FROM cards WHERE cards.nid = notes.id)
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to build note delete: %w", err)
	}
	if _, err := db.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete notes: %w", err)
	}
	return nil
}
