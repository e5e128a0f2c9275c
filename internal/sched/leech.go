package sched

import (
	"context"

	"github.com/conorfennell/knolsched/internal/domain"
)

// checkLeech tags the note of a card that has lapsed too often and, when
// configured, suspends the card. It reports whether the card is a leech.
func (t *txn) checkLeech(ctx context.Context, card *domain.Card, conf *domain.DeckConfig) (bool, error) {
	lf := conf.Lapse.LeechFails
	if lf == 0 {
		return false, nil
	}
	// At the threshold, then every half threshold after it.
	if card.Lapses < lf || (card.Lapses-lf)%max(lf/2, 1) != 0 {
		return false, nil
	}

	note, err := t.st.GetNote(ctx, card.NoteID)
	if err != nil {
		return false, err
	}
	if note.AddTag(domain.LeechTag) {
		note.Mod = t.nowUnix()
		if err := t.st.UpdateNote(ctx, note); err != nil {
			return false, err
		}
	}

	if conf.Lapse.LeechAction == domain.LeechSuspend {
		if card.ODeckID != 0 {
			card.Due = card.ODue
			removeFromFiltered(card)
		}
		card.Queue = domain.QueueSuspended
	}

	t.metrics.Leech()
	t.logger.Info("Card marked as leech", "card", card.ID, "note", card.NoteID, "lapses", card.Lapses)
	return true, nil
}
