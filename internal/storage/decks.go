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

const deckColumns = `id, name, dyn, conf_id, terms, resched, preview_delay,
	new_day, new_count, rev_day, rev_count, lrn_day, lrn_count, time_day, time_count`

type deckRow struct {
	ID           int64  `db:"id"`
	Name         string `db:"name"`
	Dyn          bool   `db:"dyn"`
	ConfID       int64  `db:"conf_id"`
	Terms        string `db:"terms"`
	Resched      bool   `db:"resched"`
	PreviewDelay int    `db:"preview_delay"`
	NewDay       int    `db:"new_day"`
	NewCount     int    `db:"new_count"`
	RevDay       int    `db:"rev_day"`
	RevCount     int    `db:"rev_count"`
	LrnDay       int    `db:"lrn_day"`
	LrnCount     int    `db:"lrn_count"`
	TimeDay      int    `db:"time_day"`
	TimeCount    int    `db:"time_count"`
}

func (r *deckRow) toDeck() (domain.Deck, error) {
	d := domain.Deck{
		ID:           r.ID,
		Name:         r.Name,
		Dynamic:      r.Dyn,
		ConfID:       r.ConfID,
		Resched:      r.Resched,
		PreviewDelay: r.PreviewDelay,
		NewToday:     domain.DayCount{Day: r.NewDay, Count: r.NewCount},
		RevToday:     domain.DayCount{Day: r.RevDay, Count: r.RevCount},
		LrnToday:     domain.DayCount{Day: r.LrnDay, Count: r.LrnCount},
		TimeToday:    domain.DayCount{Day: r.TimeDay, Count: r.TimeCount},
	}
	if err := json.Unmarshal([]byte(r.Terms), &d.Terms); err != nil {
		return d, fmt.Errorf("failed to decode terms of deck %d: %w", r.ID, err)
	}
	return d, nil
}

func fromDeck(d *domain.Deck) (deckRow, error) {
	terms := d.Terms
	if terms == nil {
		terms = []domain.FilterTerm{}
	}
	raw, err := json.Marshal(terms)
	if err != nil {
		return deckRow{}, fmt.Errorf("failed to encode terms of deck %d: %w", d.ID, err)
	}
	return deckRow{
		ID:           d.ID,
		Name:         d.Name,
		Dyn:          d.Dynamic,
		ConfID:       d.ConfID,
		Terms:        string(raw),
		Resched:      d.Resched,
		PreviewDelay: d.PreviewDelay,
		NewDay:       d.NewToday.Day,
		NewCount:     d.NewToday.Count,
		RevDay:       d.RevToday.Day,
		RevCount:     d.RevToday.Count,
		LrnDay:       d.LrnToday.Day,
		LrnCount:     d.LrnToday.Count,
		TimeDay:      d.TimeToday.Day,
		TimeCount:    d.TimeToday.Count,
	}, nil
}

// GetDeck retrieves a deck by id.
func (db *DB) GetDeck(ctx context.Context, id int64) (*domain.Deck, error) {
	var row deckRow
	err := sqlx.GetContext(ctx, db.q, &row, `SELECT `+deckColumns+` FROM decks WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("deck %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get deck %d: %w", id, err)
	}
	d, err := row.toDeck()
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// AllDecks retrieves every deck ordered by name.
func (db *DB) AllDecks(ctx context.Context) ([]domain.Deck, error) {
	var rows []deckRow
	if err := sqlx.SelectContext(ctx, db.q, &rows, `SELECT `+deckColumns+` FROM decks ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to get all decks: %w", err)
	}
	decks := make([]domain.Deck, 0, len(rows))
	for i := range rows {
		d, err := rows[i].toDeck()
		if err != nil {
			return nil, err
		}
		decks = append(decks, d)
	}
	return decks, nil
}

// SaveDeck inserts or replaces a deck.
func (db *DB) SaveDeck(ctx context.Context, d *domain.Deck) error {
	row, err := fromDeck(d)
	if err != nil {
		return err
	}
	_, err = sqlx.NamedExecContext(ctx, db.q, `
		INSERT INTO decks (`+deckColumns+`)
		VALUES (:id, :name, :dyn, :conf_id, :terms, :resched, :preview_delay,
			:new_day, :new_count, :rev_day, :rev_count, :lrn_day, :lrn_count, :time_day, :time_count)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, dyn = excluded.dyn, conf_id = excluded.conf_id, terms = excluded.terms,
			resched = excluded.resched, preview_delay = excluded.preview_delay,
			new_day = excluded.new_day, new_count = excluded.new_count,
			rev_day = excluded.rev_day, rev_count = excluded.rev_count,
			lrn_day = excluded.lrn_day, lrn_count = excluded.lrn_count,
			time_day = excluded.time_day, time_count = excluded.time_count
	`, row)
	if err != nil {
		return fmt.Errorf("failed to save deck %d: %w", d.ID, err)
	}
	return nil
}

// GetDeckConfig retrieves an option group by id. The result is not validated.
func (db *DB) GetDeckConfig(ctx context.Context, id int64) (*domain.DeckConfig, error) {
	var raw string
	err := sqlx.GetContext(ctx, db.q, &raw, `SELECT data FROM deck_config WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("deck config %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get deck config %d: %w", id, err)
	}
	var conf domain.DeckConfig
	if err := json.Unmarshal([]byte(raw), &conf); err != nil {
		return nil, fmt.Errorf("%w: deck config %d: %v", domain.ErrInvalidConfig, id, err)
	}
	conf.ID = id
	return &conf, nil
}

// SaveDeckConfig inserts or replaces an option group.
func (db *DB) SaveDeckConfig(ctx context.Context, conf *domain.DeckConfig) error {
	raw, err := json.Marshal(conf)
	if err != nil {
		return fmt.Errorf("failed to encode deck config %d: %w", conf.ID, err)
	}
	_, err = db.q.ExecContext(ctx, `
		INSERT INTO deck_config (id, data) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data
	`, conf.ID, string(raw))
	if err != nil {
		return fmt.Errorf("failed to save deck config %d: %w", conf.ID, err)
	}
	return nil
}
