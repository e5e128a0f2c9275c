package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/jmoiron/sqlx"
)

const cardColumns = `id, nid, did, ord, mod, type, queue, due, ivl, factor, reps, lapses, steps_left, odue, odid, flags`

const insertCardSQL = `
	INSERT INTO cards (` + cardColumns + `)
	VALUES (:id, :nid, :did, :ord, :mod, :type, :queue, :due, :ivl, :factor, :reps, :lapses, :steps_left, :odue, :odid, :flags)
`

const updateCardSQL = `
	UPDATE cards
	SET nid = :nid, did = :did, ord = :ord, mod = :mod, type = :type, queue = :queue, due = :due,
	    ivl = :ivl, factor = :factor, reps = :reps, lapses = :lapses, steps_left = :steps_left,
	    odue = :odue, odid = :odid, flags = :flags
	WHERE id = :id
`

// LearnEntry is a learning card waiting in the sub-day queue.
type LearnEntry struct {
	Due int64 `db:"due"`
	ID  int64 `db:"id"`
}

// GetCard retrieves a card by id.
func (db *DB) GetCard(ctx context.Context, id int64) (*domain.Card, error) {
	var c domain.Card
	err := sqlx.GetContext(ctx, db.q, &c, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("card %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get card %d: %w", id, err)
	}
	return &c, nil
}

// GetCards retrieves the given cards ordered by id. Missing ids are skipped.
func (db *DB) GetCards(ctx context.Context, ids []int64) ([]domain.Card, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := db.in(`SELECT `+cardColumns+` FROM cards WHERE id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build card query: %w", err)
	}
	return db.selectCards(ctx, query, args...)
}

func (db *DB) selectCards(ctx context.Context, query string, args ...any) ([]domain.Card, error) {
	var cards []domain.Card
	if err := sqlx.SelectContext(ctx, db.q, &cards, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select cards: %w", err)
	}
	return cards, nil
}

// InsertCard stores a new card.
func (db *DB) InsertCard(ctx context.Context, c *domain.Card) error {
	if _, err := sqlx.NamedExecContext(ctx, db.q, insertCardSQL, c); err != nil {
		return fmt.Errorf("failed to insert card %d: %w", c.ID, err)
	}
	return nil
}

// InsertCards stores several cards with one prepared statement.
func (db *DB) InsertCards(ctx context.Context, cards []domain.Card) error {
	return db.batchCards(ctx, insertCardSQL, "insert", cards)
}

// UpdateCard writes back every scheduling field of a card.
func (db *DB) UpdateCard(ctx context.Context, c *domain.Card) error {
	res, err := sqlx.NamedExecContext(ctx, db.q, updateCardSQL, c)
	if err != nil {
		return fmt.Errorf("failed to update card %d: %w", c.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("card %d: %w", c.ID, ErrNotFound)
	}
	return nil
}

// UpdateCards writes back several cards with one prepared statement.
func (db *DB) UpdateCards(ctx context.Context, cards []domain.Card) error {
	return db.batchCards(ctx, updateCardSQL, "update", cards)
}

func (db *DB) batchCards(ctx context.Context, query, verb string, cards []domain.Card) error {
	if len(cards) == 0 {
		return nil
	}
	stmt, err := db.prepareNamed(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare card %s: %w", verb, err)
	}
	defer stmt.Close()

	for i := range cards {
		if _, err := stmt.ExecContext(ctx, &cards[i]); err != nil {
			return fmt.Errorf("failed to %s card %d: %w", verb, cards[i].ID, err)
		}
	}
	return nil
}

// DeleteCards removes the given cards.
func (db *DB) DeleteCards(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := db.in(`DELETE FROM cards WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("failed to build card delete: %w", err)
	}
	if _, err := db.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete cards: %w", err)
	}
	return nil
}

// CountNew counts the new cards of a deck, stopping at limit.
func (db *DB) CountNew(ctx context.Context, did int64, limit int) (int, error) {
	n, err := db.count(ctx, `
		SELECT count() FROM (SELECT 1 FROM cards WHERE did = ? AND queue = ? LIMIT ?)
	`, did, domain.QueueNew, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to count new cards in deck %d: %w", did, err)
	}
	return n, nil
}

// CountReview counts the review cards of a deck due by today, stopping at limit.
func (db *DB) CountReview(ctx context.Context, did int64, today, limit int) (int, error) {
	n, err := db.count(ctx, `
		SELECT count() FROM (SELECT 1 FROM cards WHERE did = ? AND queue = ? AND due <= ? LIMIT ?)
	`, did, domain.QueueReview, today, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to count review cards in deck %d: %w", did, err)
	}
	return n, nil
}

// CountReviewIn counts the review cards of several decks due by today, stopping at limit.
func (db *DB) CountReviewIn(ctx context.Context, dids []int64, today, limit int) (int, error) {
	return db.countIn(ctx, "review", `
		SELECT count() FROM (SELECT 1 FROM cards WHERE did IN (?) AND queue = ? AND due <= ? LIMIT ?)
	`, dids, domain.QueueReview, today, limit)
}

// CountLearn counts learning cards due before cutoff.
func (db *DB) CountLearn(ctx context.Context, dids []int64, cutoff int64) (int, error) {
	return db.countIn(ctx, "learning", `
		SELECT count() FROM cards WHERE did IN (?) AND queue = ? AND due < ?
	`, dids, domain.QueueLearning, cutoff)
}

// SumLearnSteps sums the steps remaining today over learning cards due before cutoff.
func (db *DB) SumLearnSteps(ctx context.Context, dids []int64, cutoff int64) (int, error) {
	return db.countIn(ctx, "learning steps", `
		SELECT coalesce(sum(steps_left / 1000), 0) FROM cards WHERE did IN (?) AND queue = ? AND due < ?
	`, dids, domain.QueueLearning, cutoff)
}

// CountDayLearn counts interday learning cards due by today.
func (db *DB) CountDayLearn(ctx context.Context, dids []int64, today int) (int, error) {
	return db.countIn(ctx, "day learning", `
		SELECT count() FROM cards WHERE did IN (?) AND queue = ? AND due <= ?
	`, dids, domain.QueueDayLearn, today)
}

// CountPreview counts cards waiting in the preview queue.
func (db *DB) CountPreview(ctx context.Context, dids []int64) (int, error) {
	return db.countIn(ctx, "preview", `
		SELECT count() FROM cards WHERE did IN (?) AND queue = ?
	`, dids, domain.QueuePreview)
}

func (db *DB) countIn(ctx context.Context, what, query string, dids []int64, args ...any) (int, error) {
	if len(dids) == 0 {
		return 0, nil
	}
	q, a, err := db.in(query, append([]any{dids}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("failed to build %s count: %w", what, err)
	}
	n, err := db.count(ctx, q, a...)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s cards: %w", what, err)
	}
	return n, nil
}

func (db *DB) ids(ctx context.Context, query string, args ...any) ([]int64, error) {
	var ids []int64
	if err := sqlx.SelectContext(ctx, db.q, &ids, query, args...); err != nil {
		return nil, err
	}
	return ids, nil
}

// NewCardIDs returns up to limit new cards of a deck in due order.
func (db *DB) NewCardIDs(ctx context.Context, did int64, limit int) ([]int64, error) {
	ids, err := db.ids(ctx, `
		SELECT id FROM cards WHERE did = ? AND queue = ? ORDER BY due, ord LIMIT ?
	`, did, domain.QueueNew, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch new cards of deck %d: %w", did, err)
	}
	return ids, nil
}

// ReviewCardIDs returns up to limit review cards of a deck due by today, in due order.
func (db *DB) ReviewCardIDs(ctx context.Context, did int64, today, limit int) ([]int64, error) {
	ids, err := db.ids(ctx, `
		SELECT id FROM cards WHERE did = ? AND queue = ? AND due <= ? ORDER BY due, id LIMIT ?
	`, did, domain.QueueReview, today, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch review cards of deck %d: %w", did, err)
	}
	return ids, nil
}

// DayLearnCardIDs returns up to limit interday learning cards of a deck due by today.
func (db *DB) DayLearnCardIDs(ctx context.Context, did int64, today, limit int) ([]int64, error) {
	ids, err := db.ids(ctx, `
		SELECT id FROM cards WHERE did = ? AND queue = ? AND due <= ? ORDER BY due, id LIMIT ?
	`, did, domain.QueueDayLearn, today, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch day learning cards of deck %d: %w", did, err)
	}
	return ids, nil
}

// LearnQueue returns up to limit learning and preview cards due before cutoff, earliest first.
func (db *DB) LearnQueue(ctx context.Context, dids []int64, cutoff int64, limit int) ([]LearnEntry, error) {
	if len(dids) == 0 {
		return nil, nil
	}
	query, args, err := db.in(`
		SELECT due, id FROM cards
		WHERE did IN (?) AND queue IN (?) AND due < ?
		ORDER BY due, id LIMIT ?
	`, dids, []domain.Queue{domain.QueueLearning, domain.QueuePreview}, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build learning query: %w", err)
	}
	var entries []LearnEntry
	if err := sqlx.SelectContext(ctx, db.q, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to fetch learning cards: %w", err)
	}
	return entries, nil
}

// StudySiblings returns the other cards of a note that could still be studied today.
func (db *DB) StudySiblings(ctx context.Context, nid, cid int64, today int) ([]domain.Card, error) {
	return db.selectCards(ctx, `SELECT `+cardColumns+` FROM cards
		WHERE nid = ? AND id != ? AND (queue = ? OR (queue = ? AND due <= ?))`,
		nid, cid, domain.QueueNew, domain.QueueReview, today)
}

// CardsByNote returns every card of a note.
func (db *DB) CardsByNote(ctx context.Context, nid int64) ([]domain.Card, error) {
	return db.selectCards(ctx, `SELECT `+cardColumns+` FROM cards WHERE nid = ? ORDER BY ord`, nid)
}

// CardsByDeck returns every card currently sitting in a deck.
func (db *DB) CardsByDeck(ctx context.Context, did int64) ([]domain.Card, error) {
	return db.selectCards(ctx, `SELECT `+cardColumns+` FROM cards WHERE did = ? ORDER BY id`, did)
}

// CardsInQueues returns the cards in any of the queues. A nil dids matches every deck.
func (db *DB) CardsInQueues(ctx context.Context, queues []domain.Queue, dids []int64) ([]domain.Card, error) {
	if len(queues) == 0 {
		return nil, nil
	}
	query := `SELECT ` + cardColumns + ` FROM cards WHERE queue IN (?)`
	args := []any{queues}
	if dids != nil {
		if len(dids) == 0 {
			return nil, nil
		}
		query += ` AND did IN (?)`
		args = append(args, dids)
	}
	q, a, err := db.in(query+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to build queue query: %w", err)
	}
	return db.selectCards(ctx, q, a...)
}

// ParkedCards returns every card currently parked in a filtered deck.
func (db *DB) ParkedCards(ctx context.Context) ([]domain.Card, error) {
	return db.selectCards(ctx, `SELECT `+cardColumns+` FROM cards WHERE odid != 0 ORDER BY id`)
}

// NewCardsFrom returns new cards positioned at or after start, in position order.
func (db *DB) NewCardsFrom(ctx context.Context, start int64) ([]domain.Card, error) {
	return db.selectCards(ctx, `SELECT `+cardColumns+` FROM cards
		WHERE type = ? AND due >= ? ORDER BY due, ord`, domain.TypeNew, start)
}

// MaxNewPosition returns the highest new-card position, or 0.
func (db *DB) MaxNewPosition(ctx context.Context) (int64, error) {
	var pos int64
	err := sqlx.GetContext(ctx, db.q, &pos, `SELECT coalesce(max(due), 0) FROM cards WHERE type = ?`, domain.TypeNew)
	if err != nil {
		return 0, fmt.Errorf("failed to get max new position: %w", err)
	}
	return pos, nil
}

// SelectCardIDs runs a card query built elsewhere. The context is checked between rows.
func (db *DB) SelectCardIDs(ctx context.Context, where, order string, limit int, args ...any) ([]int64, error) {
	query := `SELECT c.id FROM cards c JOIN notes n ON n.id = c.nid JOIN decks d ON d.id = c.did WHERE ` + where
	if order != "" {
		query += ` ORDER BY ` + order
	}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search cards: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan card id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate card ids: %w", err)
	}
	return ids, nil
}
