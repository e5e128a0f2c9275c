package sched

import (
	"context"
	"fmt"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/undo"
)

// cardOp runs a bulk card change, drops the touched cards from the queues,
// refreshes the counts and records the prior state for undo.
func (s *Scheduler) cardOp(ctx context.Context, kind undo.Kind, ids []int64, fn func(t *txn) ([]domain.Card, error)) error {
	if len(ids) == 0 {
		return nil
	}
	var before []domain.Card
	err := s.inTx(ctx, func(t *txn) error {
		if err := t.checkDay(ctx); err != nil {
			return err
		}
		var err error
		if before, err = fn(t); err != nil {
			return err
		}
		t.evict(ids)
		return t.recount(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to %s cards: %w", kind, err)
	}
	s.undo.Push(undo.Entry{Kind: kind, Cards: before})
	s.logger.Info("Changed cards", "op", kind.String(), "cards", len(ids))
	return nil
}

// ForgetCards turns cards back into new cards placed after every existing new card.
func (s *Scheduler) ForgetCards(ctx context.Context, ids []int64) error {
	return s.cardOp(ctx, undo.Reset, ids, func(t *txn) ([]domain.Card, error) {
		return t.forgetCards(ctx, ids)
	})
}

func (t *txn) forgetCards(ctx context.Context, ids []int64) ([]domain.Card, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cards, err := t.st.GetCards(ctx, ids)
	if err != nil {
		return nil, err
	}
	before := append([]domain.Card(nil), cards...)
	for i := range cards {
		c := &cards[i]
		unpark(c)
		c.Type = domain.TypeNew
		c.Queue = domain.QueueNew
		c.Interval = 0
		c.Due = 0
		c.ODue = 0
		c.Factor = domain.StartingFactor
		c.Left = 0
	}
	if err := t.st.UpdateCards(ctx, cards); err != nil {
		return nil, err
	}
	maxPos, err := t.st.MaxNewPosition(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := t.sortCards(ctx, ids, maxPos+1, 1, false, false); err != nil {
		return nil, err
	}
	return before, nil
}

// RescheduleCards makes cards review cards due in a random number of days
// between imin and imax inclusive.
func (s *Scheduler) RescheduleCards(ctx context.Context, ids []int64, imin, imax int) error {
	if imin < 0 || imax < imin {
		return fmt.Errorf("%w: %d..%d", ErrInvalidRange, imin, imax)
	}
	return s.cardOp(ctx, undo.Reschedule, ids, func(t *txn) ([]domain.Card, error) {
		cards, err := t.st.GetCards(ctx, ids)
		if err != nil {
			return nil, err
		}
		before := append([]domain.Card(nil), cards...)
		now := t.nowUnix()
		for i := range cards {
			c := &cards[i]
			unpark(c)
			r := imin + t.cfg.Rand.Intn(imax-imin+1)
			c.Type = domain.TypeReview
			c.Queue = domain.QueueReview
			c.Interval = max(1, r)
			c.Due = int64(t.today + r)
			c.ODue = 0
			if c.Factor == 0 {
				c.Factor = domain.StartingFactor
			}
			c.Mod = now
		}
		return before, t.st.UpdateCards(ctx, cards)
	})
}

// RepositionNewCards gives new cards consecutive positions from start, one
// per note. With shift, new cards already at or after start move up to make room.
func (s *Scheduler) RepositionNewCards(ctx context.Context, ids []int64, start, step int64, shuffle, shift bool) error {
	if step < 1 {
		step = 1
	}
	return s.cardOp(ctx, undo.Reposition, ids, func(t *txn) ([]domain.Card, error) {
		return t.sortCards(ctx, ids, start, step, shuffle, shift)
	})
}

// sortCards assigns new-card positions by note and returns the prior state of
// every card it changed.
func (t *txn) sortCards(ctx context.Context, ids []int64, start, step int64, shuffle, shift bool) ([]domain.Card, error) {
	cards, err := t.st.GetCards(ctx, ids)
	if err != nil {
		return nil, err
	}
	selected := make(map[int64]bool, len(ids))
	var nids []int64
	seen := make(map[int64]bool)
	byID := make(map[int64]domain.Card, len(cards))
	for _, c := range cards {
		byID[c.ID] = c
	}
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			continue
		}
		selected[id] = true
		if !seen[c.NoteID] {
			seen[c.NoteID] = true
			nids = append(nids, c.NoteID)
		}
	}
	if len(nids) == 0 {
		return nil, nil
	}
	if shuffle {
		t.cfg.Rand.Shuffle(len(nids), func(i, j int) { nids[i], nids[j] = nids[j], nids[i] })
	}
	pos := make(map[int64]int64, len(nids))
	for i, nid := range nids {
		pos[nid] = start + int64(i)*step
	}
	high := start + int64(len(nids)-1)*step

	now := t.nowUnix()
	var before, changed []domain.Card

	if shift {
		others, err := t.st.NewCardsFrom(ctx, start)
		if err != nil {
			return nil, err
		}
		var low int64
		found := false
		for _, c := range others {
			if !selected[c.ID] {
				low, found = c.Due, true
				break
			}
		}
		if found {
			by := high - low + 1
			for _, c := range others {
				if selected[c.ID] || c.Queue != domain.QueueNew {
					continue
				}
				before = append(before, c)
				c.Due += by
				c.Mod = now
				changed = append(changed, c)
			}
		}
	}

	for _, c := range cards {
		if c.Type != domain.TypeNew {
			continue
		}
		before = append(before, c)
		c.Due = pos[c.NoteID]
		c.Mod = now
		changed = append(changed, c)
	}
	if err := t.st.UpdateCards(ctx, changed); err != nil {
		return nil, err
	}
	return before, nil
}

// ResetCards clears the history counters of cards and forgets those that
// are not plain new cards.
func (s *Scheduler) ResetCards(ctx context.Context, ids []int64) error {
	return s.cardOp(ctx, undo.Reset, ids, func(t *txn) ([]domain.Card, error) {
		cards, err := t.st.GetCards(ctx, ids)
		if err != nil {
			return nil, err
		}
		before := append([]domain.Card(nil), cards...)
		var nonNew []int64
		now := t.nowUnix()
		for i := range cards {
			c := &cards[i]
			if c.Queue != domain.QueueNew || c.Type != domain.TypeNew {
				nonNew = append(nonNew, c.ID)
			}
			if c.ODeckID != 0 {
				c.DeckID = c.ODeckID
			}
			c.Reps = 0
			c.Lapses = 0
			c.ODeckID = 0
			c.ODue = 0
			c.Queue = domain.QueueNew
			c.Mod = now
		}
		if err := t.st.UpdateCards(ctx, cards); err != nil {
			return nil, err
		}
		if _, err := t.forgetCards(ctx, nonNew); err != nil {
			return nil, err
		}
		return before, nil
	})
}

// ChangeDeck moves cards to a regular deck, taking them out of any filtered deck.
func (s *Scheduler) ChangeDeck(ctx context.Context, ids []int64, did int64) error {
	return s.cardOp(ctx, undo.ChangeDeck, ids, func(t *txn) ([]domain.Card, error) {
		deck, err := t.decks.Get(ctx, did)
		if err != nil {
			return nil, err
		}
		if deck.Dynamic {
			return nil, fmt.Errorf("deck %d: %w", did, ErrFilteredDeck)
		}
		cards, err := t.st.GetCards(ctx, ids)
		if err != nil {
			return nil, err
		}
		before := append([]domain.Card(nil), cards...)
		now := t.nowUnix()
		for i := range cards {
			unpark(&cards[i])
			cards[i].DeckID = did
			cards[i].Mod = now
		}
		return before, t.st.UpdateCards(ctx, cards)
	})
}

// DeleteCards removes cards, and their notes once no card is left.
func (s *Scheduler) DeleteCards(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	var entry undo.Entry
	err := s.inTx(ctx, func(t *txn) error {
		cards, err := t.st.GetCards(ctx, ids)
		if err != nil {
			return err
		}
		nidSet := make(map[int64]bool)
		var nids []int64
		for _, c := range cards {
			if !nidSet[c.NoteID] {
				nidSet[c.NoteID] = true
				nids = append(nids, c.NoteID)
			}
		}
		notes, err := t.st.GetNotes(ctx, nids)
		if err != nil {
			return err
		}
		if err := t.st.DeleteCards(ctx, ids); err != nil {
			return err
		}
		if err := t.st.DeleteOrphanNotes(ctx, nids); err != nil {
			return err
		}
		entry = undo.Entry{Kind: undo.Delete, Cards: cards, Notes: notes}
		t.evict(ids)
		return t.recount(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to delete cards: %w", err)
	}
	s.undo.Push(entry)
	s.logger.Info("Deleted cards", "cards", len(entry.Cards))
	return nil
}
