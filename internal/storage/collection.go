package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/jmoiron/sqlx"
)

// Collection is the collection-wide row: creation time plus scheduler options.
type Collection struct {
	Created int64
	Conf    domain.CollectionConf
}

// InitCollection creates the collection row, the default option group and the
// default deck if the database is empty. Existing data is left alone.
func (db *DB) InitCollection(ctx context.Context, created int64, conf domain.CollectionConf) error {
	return db.InTx(ctx, func(tx *DB) error {
		n, err := tx.count(ctx, `SELECT count() FROM col`)
		if err != nil {
			return fmt.Errorf("failed to check collection: %w", err)
		}
		if n > 0 {
			return nil
		}
		raw, err := json.Marshal(conf)
		if err != nil {
			return fmt.Errorf("failed to encode collection config: %w", err)
		}
		if _, err := tx.q.ExecContext(ctx, `INSERT INTO col (id, crt, conf) VALUES (1, ?, ?)`, created, string(raw)); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		dc := domain.DefaultDeckConfig()
		if err := tx.SaveDeckConfig(ctx, &dc); err != nil {
			return err
		}
		return tx.SaveDeck(ctx, &domain.Deck{ID: 1, Name: "Default", ConfID: dc.ID})
	})
}

// LoadCollection reads the collection row.
func (db *DB) LoadCollection(ctx context.Context) (*Collection, error) {
	var row struct {
		Crt  int64  `db:"crt"`
		Conf string `db:"conf"`
	}
	if err := sqlx.GetContext(ctx, db.q, &row, `SELECT crt, conf FROM col WHERE id = 1`); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("collection: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}
	col := &Collection{Created: row.Crt}
	if err := json.Unmarshal([]byte(row.Conf), &col.Conf); err != nil {
		return nil, fmt.Errorf("failed to decode collection config: %w", err)
	}
	return col, nil
}

// SaveCollectionConf replaces the persisted scheduler options.
func (db *DB) SaveCollectionConf(ctx context.Context, conf domain.CollectionConf) error {
	raw, err := json.Marshal(conf)
	if err != nil {
		return fmt.Errorf("failed to encode collection config: %w", err)
	}
	if _, err := db.q.ExecContext(ctx, `UPDATE col SET conf = ? WHERE id = 1`, string(raw)); err != nil {
		return fmt.Errorf("failed to save collection config: %w", err)
	}
	return nil
}
