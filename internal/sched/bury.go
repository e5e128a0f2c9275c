package sched

import (
	"context"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/undo"
)

// UnburyMode selects which buried cards UnburyDeck releases.
type UnburyMode int

const (
	UnburyAll UnburyMode = iota
	UnburyManual
	UnburySiblings
)

func (m UnburyMode) queues() []domain.Queue {
	switch m {
	case UnburyManual:
		return []domain.Queue{domain.QueueManuallyBuried}
	case UnburySiblings:
		return []domain.Queue{domain.QueueSiblingBuried}
	}
	return []domain.Queue{domain.QueueSiblingBuried, domain.QueueManuallyBuried}
}

// burySiblings takes the other studyable cards of the card's note out of the
// in-memory queues and buries them unless burying is disabled for their tier.
// It returns the ids it buried.
func (t *txn) burySiblings(ctx context.Context, card *domain.Card, cc cardConf) ([]int64, error) {
	siblings, err := t.st.StudySiblings(ctx, card.NoteID, card.ID, t.today)
	if err != nil {
		return nil, err
	}
	var seen, toBury []int64
	for _, sib := range siblings {
		seen = append(seen, sib.ID)
		bury := cc.conf.New.Bury
		if sib.Queue == domain.QueueReview {
			bury = cc.conf.Rev.Bury
		}
		// Discarded from the queue even when not buried, for same-day spacing.
		if bury {
			toBury = append(toBury, sib.ID)
		}
	}
	t.evict(seen)
	if _, err := t.setQueue(ctx, toBury, domain.QueueSiblingBuried); err != nil {
		return nil, err
	}
	return toBury, nil
}

// setQueue moves cards into queue, taking them out of any filtered deck
// first, and returns their prior state.
func (t *txn) setQueue(ctx context.Context, ids []int64, queue domain.Queue) ([]domain.Card, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cards, err := t.st.GetCards(ctx, ids)
	if err != nil {
		return nil, err
	}
	before := append([]domain.Card(nil), cards...)
	now := t.nowUnix()
	for i := range cards {
		unpark(&cards[i])
		cards[i].Queue = queue
		cards[i].Mod = now
	}
	if err := t.st.UpdateCards(ctx, cards); err != nil {
		return nil, err
	}
	return before, nil
}

// restoreQueues returns cards sitting in one of from to the queue their type implies.
func (t *txn) restoreQueues(ctx context.Context, cards []domain.Card, from ...domain.Queue) ([]int64, error) {
	now := t.nowUnix()
	var changed []domain.Card
	var ids []int64
	for _, c := range cards {
		for _, q := range from {
			if c.Queue == q {
				c.Queue = c.RestoredQueue()
				c.Mod = now
				changed = append(changed, c)
				ids = append(ids, c.ID)
				break
			}
		}
	}
	if err := t.st.UpdateCards(ctx, changed); err != nil {
		return nil, err
	}
	return ids, nil
}

// unburyQueues releases cards buried in any of queues, limited to dids when non-nil.
func (t *txn) unburyQueues(ctx context.Context, queues []domain.Queue, dids []int64) ([]int64, error) {
	cards, err := t.st.CardsInQueues(ctx, queues, dids)
	if err != nil {
		return nil, err
	}
	return t.restoreQueues(ctx, cards, queues...)
}

// SuspendCards suspends cards, returning any parked ones to their home deck.
func (s *Scheduler) SuspendCards(ctx context.Context, ids []int64) error {
	return s.bulkQueue(ctx, ids, domain.QueueSuspended, undo.Suspend)
}

// BuryCards buries cards until the next day.
func (s *Scheduler) BuryCards(ctx context.Context, ids []int64) error {
	return s.bulkQueue(ctx, ids, s.policy.manualBury, undo.Bury)
}

// BuryNote buries every card of a note that is not already out of study.
func (s *Scheduler) BuryNote(ctx context.Context, nid int64) error {
	var ids []int64
	err := s.inTx(ctx, func(t *txn) error {
		cards, err := t.st.CardsByNote(ctx, nid)
		if err != nil {
			return err
		}
		for _, c := range cards {
			if c.Queue >= domain.QueueNew {
				ids = append(ids, c.ID)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.BuryCards(ctx, ids)
}

func (s *Scheduler) bulkQueue(ctx context.Context, ids []int64, queue domain.Queue, kind undo.Kind) error {
	if len(ids) == 0 {
		return nil
	}
	var before []domain.Card
	err := s.inTx(ctx, func(t *txn) error {
		var err error
		if before, err = t.setQueue(ctx, ids, queue); err != nil {
			return err
		}
		t.evict(ids)
		return t.recount(ctx)
	})
	if err != nil {
		return err
	}
	s.undo.Push(undo.Entry{Kind: kind, Cards: before})
	s.logger.Info("Moved cards out of study", "cards", len(before), "queue", queue)
	return nil
}

// UnsuspendCards returns suspended cards among ids to study.
func (s *Scheduler) UnsuspendCards(ctx context.Context, ids []int64) error {
	return s.inTx(ctx, func(t *txn) error {
		cards, err := t.st.GetCards(ctx, ids)
		if err != nil {
			return err
		}
		if _, err := t.restoreQueues(ctx, cards, domain.QueueSuspended); err != nil {
			return err
		}
		return t.recount(ctx)
	})
}

// UnburyCards releases every buried card in the collection.
func (s *Scheduler) UnburyCards(ctx context.Context) error {
	return s.inTx(ctx, func(t *txn) error {
		if _, err := t.unburyQueues(ctx, UnburyAll.queues(), nil); err != nil {
			return err
		}
		return t.recount(ctx)
	})
}

// UnburyDeck releases buried cards of a deck and its descendants.
func (s *Scheduler) UnburyDeck(ctx context.Context, did int64, mode UnburyMode) error {
	return s.inTx(ctx, func(t *txn) error {
		dids, err := t.decks.Active(ctx, did)
		if err != nil {
			return err
		}
		if _, err := t.unburyQueues(ctx, mode.queues(), dids); err != nil {
			return err
		}
		return t.recount(ctx)
	})
}
