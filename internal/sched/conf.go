package sched

import (
	"context"
	"fmt"

	"github.com/conorfennell/knolsched/internal/domain"
)

// cardConf is the effective configuration for one card: the options of its
// home deck plus, while parked, the filtered deck it sits in.
type cardConf struct {
	conf     *domain.DeckConfig
	filtered *domain.Deck
}

func (t *txn) cardConf(ctx context.Context, card *domain.Card) (cardConf, error) {
	deck, err := t.decks.Get(ctx, card.DeckID)
	if err != nil {
		return cardConf{}, err
	}
	if !deck.Dynamic {
		conf, err := t.decks.ConfigFor(ctx, deck.ID)
		if err != nil {
			return cardConf{}, err
		}
		return cardConf{conf: conf}, nil
	}
	if card.ODeckID == 0 {
		return cardConf{}, fmt.Errorf("%w: card %d sits in filtered deck %d without a home deck", ErrUnexpectedCard, card.ID, deck.ID)
	}
	conf, err := t.decks.ConfigFor(ctx, card.ODeckID)
	if err != nil {
		return cardConf{}, err
	}
	return cardConf{conf: conf, filtered: deck}, nil
}

// resched reports whether answers change the card's real schedule.
func (c cardConf) resched() bool {
	return c.filtered == nil || c.filtered.Resched
}

// previewing reports whether the card is being previewed in a filtered deck
// that leaves schedules untouched.
func (c cardConf) previewing() bool {
	return c.filtered != nil && !c.filtered.Resched
}

// previewDelay is the wait, in seconds, before a failed preview card returns.
func (c cardConf) previewDelay() int64 {
	minutes := domain.DefaultPreviewDelay
	if c.filtered != nil && c.filtered.PreviewDelay > 0 {
		minutes = c.filtered.PreviewDelay
	}
	return int64(minutes) * 60
}

// delays returns the learning steps that apply to the card: relearning steps
// for lapsed cards, otherwise the new-card steps.
func (c cardConf) delays(card *domain.Card) []float64 {
	if card.Type == domain.TypeReview || card.Type == domain.TypeRelearning {
		return c.conf.Lapse.Delays
	}
	return c.conf.New.Delays
}
