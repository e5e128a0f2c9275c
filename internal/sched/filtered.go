package sched

import (
	"context"
	"fmt"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/search"
)

// filteredDueBase is the due of the first card pulled into a filtered deck.
// Later cards count up from it, so due order is pull order.
const filteredDueBase = -100000

// unpark returns a card parked in a filtered deck to its home deck and due.
// Suspended and buried cards keep their queue.
func unpark(c *domain.Card) {
	if c.ODeckID == 0 {
		return
	}
	if c.Queue >= domain.QueueNew {
		c.Queue = c.RestoredQueue()
	}
	if c.ODue != 0 {
		c.Due = c.ODue
	}
	c.DeckID = c.ODeckID
	c.ODue = 0
	c.ODeckID = 0
}

// RebuildFiltered empties a filtered deck and refills it from its search
// terms. It reports how many cards were pulled in.
func (s *Scheduler) RebuildFiltered(ctx context.Context, did int64) (Outcome, int, error) {
	var n int
	err := s.inTx(ctx, func(t *txn) error {
		if err := t.checkDay(ctx); err != nil {
			return err
		}
		deck, err := t.filteredDeck(ctx, did)
		if err != nil {
			return err
		}
		if err := t.emptyFiltered(ctx, did); err != nil {
			return err
		}
		if n, err = t.fillFiltered(ctx, deck); err != nil {
			return err
		}
		return t.reset(ctx)
	})
	if err != nil {
		return OutcomeOK, 0, fmt.Errorf("failed to rebuild filtered deck %d: %w", did, err)
	}
	s.metrics.Rebuild(n)
	s.logger.Info("Rebuilt filtered deck", "deck", did, "cards", n)
	if n == 0 {
		return OutcomeNothingToStudy, 0, nil
	}
	return OutcomeOK, n, nil
}

// EmptyFiltered returns every card of a filtered deck to its home deck.
func (s *Scheduler) EmptyFiltered(ctx context.Context, did int64) error {
	return s.inTx(ctx, func(t *txn) error {
		if _, err := t.filteredDeck(ctx, did); err != nil {
			return err
		}
		if err := t.emptyFiltered(ctx, did); err != nil {
			return err
		}
		if !t.haveQueues {
			return nil
		}
		return t.reset(ctx)
	})
}

func (t *txn) filteredDeck(ctx context.Context, did int64) (*domain.Deck, error) {
	deck, err := t.decks.Get(ctx, did)
	if err != nil {
		return nil, err
	}
	if !deck.Dynamic {
		return nil, fmt.Errorf("deck %d: %w", did, ErrNotFiltered)
	}
	return deck, nil
}

func (t *txn) emptyFiltered(ctx context.Context, did int64) error {
	cards, err := t.st.CardsByDeck(ctx, did)
	if err != nil {
		return err
	}
	return t.unparkCards(ctx, cards)
}

func (t *txn) emptyAllFiltered(ctx context.Context) error {
	cards, err := t.st.ParkedCards(ctx)
	if err != nil {
		return err
	}
	return t.unparkCards(ctx, cards)
}

func (t *txn) unparkCards(ctx context.Context, cards []domain.Card) error {
	now := t.nowUnix()
	var parked []domain.Card
	for _, c := range cards {
		if c.ODeckID == 0 {
			continue
		}
		unpark(&c)
		c.Mod = now
		parked = append(parked, c)
	}
	return t.st.UpdateCards(ctx, parked)
}

// fillFiltered pulls the cards matching each term into the deck. Terms are
// applied in order and a card taken by one term is not seen by the next.
func (t *txn) fillFiltered(ctx context.Context, deck *domain.Deck) (int, error) {
	env := search.Env{Today: t.today, DayCutoff: t.dayCutoff}
	now := t.nowUnix()
	pos := 0
	for _, term := range deck.Terms {
		query := fmt.Sprintf("(%s) -is:suspended -is:buried -deck:filtered", term.Search)
		ids, err := t.cfg.Finder.Find(ctx, t.st, env, query, search.Order{By: term.Order, Limit: term.Limit})
		if err != nil {
			return 0, err
		}
		if len(ids) == 0 {
			continue
		}
		cards, err := t.st.GetCards(ctx, ids)
		if err != nil {
			return 0, err
		}
		byID := make(map[int64]domain.Card, len(cards))
		for _, c := range cards {
			byID[c.ID] = c
		}
		moved := make([]domain.Card, 0, len(ids))
		for _, id := range ids {
			c, ok := byID[id]
			if !ok {
				continue
			}
			pos++
			c.ODeckID = c.DeckID
			c.ODue = c.Due
			c.DeckID = deck.ID
			c.Due = int64(filteredDueBase + pos)
			if !deck.Resched {
				c.Queue = domain.QueueReview
			}
			c.Mod = now
			moved = append(moved, c)
		}
		if err := t.st.UpdateCards(ctx, moved); err != nil {
			return 0, err
		}
	}
	return pos, nil
}

// removeAllFromLearning ends every learning step in progress: lapsed cards go
// back to review due today and other learning cards become new again.
func (t *txn) removeAllFromLearning(ctx context.Context) error {
	cards, err := t.st.CardsInQueues(ctx, []domain.Queue{domain.QueueLearning, domain.QueueDayLearn}, nil)
	if err != nil {
		return err
	}
	now := t.nowUnix()
	var lapsed []domain.Card
	var learning []int64
	for _, c := range cards {
		if c.Type == domain.TypeReview || c.Type == domain.TypeRelearning {
			c.Type = domain.TypeReview
			c.Queue = domain.QueueReview
			c.Due = int64(t.today)
			c.Mod = now
			lapsed = append(lapsed, c)
			continue
		}
		learning = append(learning, c.ID)
	}
	if err := t.st.UpdateCards(ctx, lapsed); err != nil {
		return err
	}
	_, err = t.forgetCards(ctx, learning)
	return err
}
