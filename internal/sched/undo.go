package sched

import (
	"context"
	"errors"
	"fmt"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/storage"
	"github.com/conorfennell/knolsched/internal/undo"
)

// NoCard is the UndoResult card id when no card should be shown again.
const NoCard int64 = 0

// UndoResult says what Undo reversed and which card, if any, to show again.
type UndoResult struct {
	Kind   undo.Kind
	CardID int64
}

// Outcome maps the result onto the shared outcome type.
func (r UndoResult) Outcome() Outcome {
	if r.Kind == undo.None {
		return OutcomeNothingToUndo
	}
	return OutcomeOK
}

// UndoAvailable reports whether there is anything to undo, and what.
func (s *Scheduler) UndoAvailable() (undo.Kind, bool) {
	e, ok := s.undo.Peek()
	return e.Kind, ok
}

// Undo reverses the most recent recorded operation.
func (s *Scheduler) Undo(ctx context.Context) (UndoResult, error) {
	entry, ok := s.undo.Pop()
	if !ok {
		return UndoResult{Kind: undo.None, CardID: NoCard}, nil
	}

	res := UndoResult{Kind: entry.Kind, CardID: NoCard}
	err := s.inTx(ctx, func(t *txn) error {
		if err := t.checkDay(ctx); err != nil {
			return err
		}
		switch entry.Kind {
		case undo.Review:
			return t.undoReview(ctx, entry, &res)
		case undo.Delete:
			return t.undoDelete(ctx, entry)
		default:
			return t.st.UpdateCards(ctx, entry.Cards)
		}
	})
	if err != nil {
		// Keep the entry so the caller can retry.
		s.undo.Push(entry)
		return UndoResult{Kind: undo.None, CardID: NoCard}, fmt.Errorf("failed to undo %s: %w", entry.Kind, err)
	}

	s.haveQueues = false
	s.metrics.Undo(entry.Kind.String())
	s.logger.Info("Undid operation", "op", entry.Kind.String(), "card", res.CardID)
	return res, nil
}

// undoReview puts a reviewed card back the way it was before the answer.
func (t *txn) undoReview(ctx context.Context, entry undo.Entry, res *UndoResult) error {
	if len(entry.Cards) != 1 {
		return fmt.Errorf("%w: review undo holds %d cards", ErrUnexpectedCard, len(entry.Cards))
	}
	card := entry.Cards[0]
	res.CardID = card.ID

	if err := t.st.UpdateCard(ctx, &card); err != nil {
		return err
	}

	if !entry.WasLeech {
		note, err := t.st.GetNote(ctx, card.NoteID)
		if err != nil {
			return err
		}
		if note.RemoveTag(domain.LeechTag) {
			note.Mod = t.nowUnix()
			if err := t.st.UpdateNote(ctx, note); err != nil {
				return err
			}
		}
	}

	if !entry.Previewing {
		id, err := t.st.LastRevlogID(ctx, card.ID)
		switch {
		case err == nil:
			if err := t.st.DeleteRevlog(ctx, id); err != nil {
				return err
			}
		case !errors.Is(err, storage.ErrNotFound):
			return err
		}

		kind := domain.CounterReview
		if card.Queue == domain.QueueNew {
			kind = domain.CounterNew
		}
		if card.Queue == domain.QueueNew || card.Queue == domain.QueueReview {
			if err := t.decks.Bump(ctx, card.DeckID, kind, t.today, -1); err != nil {
				return err
			}
		}
	}
	if entry.TimeTaken > 0 {
		if err := t.decks.Bump(ctx, entry.TimeDeck, domain.CounterTime, t.today, -entry.TimeTaken); err != nil {
			return err
		}
	}

	if len(entry.Buried) > 0 {
		siblings, err := t.st.GetCards(ctx, entry.Buried)
		if err != nil {
			return err
		}
		if _, err := t.restoreQueues(ctx, siblings, domain.QueueSiblingBuried); err != nil {
			return err
		}
	}

	t.reps = max(0, t.reps-1)
	return nil
}

func (t *txn) undoDelete(ctx context.Context, entry undo.Entry) error {
	for i := range entry.Notes {
		n := entry.Notes[i]
		if _, err := t.st.GetNote(ctx, n.ID); err == nil {
			continue
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if err := t.st.InsertNote(ctx, &n); err != nil {
			return err
		}
	}
	return t.st.InsertCards(ctx, entry.Cards)
}
