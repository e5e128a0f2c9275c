package sched

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/conorfennell/knolsched/internal/decks"
	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/storage"
)

// randomPositions is the smallest range random new-card positions are drawn from.
const randomPositions = 1000

// RandomizeCards shuffles the new cards of a deck, keeping siblings together.
func (s *Scheduler) RandomizeCards(ctx context.Context, did int64) error {
	return s.inTx(ctx, func(t *txn) error {
		return t.resortDeck(ctx, did, domain.NewCardsRandom)
	})
}

// OrderCards numbers the new cards of a deck in the order their notes were added.
func (s *Scheduler) OrderCards(ctx context.Context, did int64) error {
	return s.inTx(ctx, func(t *txn) error {
		return t.resortDeck(ctx, did, domain.NewCardsDue)
	})
}

// MaybeRandomizeDeck shuffles a deck's new cards if its options ask for
// random order. Call it after cards were added in bulk.
func (s *Scheduler) MaybeRandomizeDeck(ctx context.Context, did int64) error {
	return s.inTx(ctx, func(t *txn) error {
		conf, err := t.decks.ConfigFor(ctx, did)
		if err != nil {
			return err
		}
		if conf.New.Order != domain.NewCardsRandom {
			return nil
		}
		return t.resortDeck(ctx, did, domain.NewCardsRandom)
	})
}

func (t *txn) resortDeck(ctx context.Context, did int64, order domain.NewOrder) error {
	cards, err := t.st.CardsByDeck(ctx, did)
	if err != nil {
		return err
	}
	if order == domain.NewCardsDue {
		sort.SliceStable(cards, func(i, j int) bool { return cards[i].NoteID < cards[j].NoteID })
	}
	ids := make([]int64, len(cards))
	for i, c := range cards {
		ids[i] = c.ID
	}
	if _, err := t.sortCards(ctx, ids, 1, 1, order == domain.NewCardsRandom, false); err != nil {
		return err
	}
	if !t.haveQueues {
		return nil
	}
	return t.reset(ctx)
}

// SaveDeckConfig validates and stores an option group. When the new-card
// order changes, every deck using the group is resorted.
func (s *Scheduler) SaveDeckConfig(ctx context.Context, conf *domain.DeckConfig) error {
	conf.ApplyDefaults()
	if err := conf.Validate(); err != nil {
		return err
	}
	return s.inTx(ctx, func(t *txn) error {
		old, err := t.st.GetDeckConfig(ctx, conf.ID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if err := t.st.SaveDeckConfig(ctx, conf); err != nil {
			return err
		}
		t.decks.ForgetConfig(conf.ID)
		if old == nil || old.New.Order == conf.New.Order {
			return nil
		}
		dids, err := t.decks.DidsForConfig(ctx, conf.ID)
		if err != nil {
			return err
		}
		for _, did := range dids {
			if err := t.resortDeck(ctx, did, conf.New.Order); err != nil {
				return err
			}
		}
		t.logger.Info("Resorted new cards", "config", conf.ID, "order", conf.New.Order, "decks", len(dids))
		return nil
	})
}

// AddNote stores a note with its cards as new cards. Siblings share the next
// free position, or a random one when their deck shows new cards at random.
func (s *Scheduler) AddNote(ctx context.Context, note *domain.Note, cards []domain.Card) error {
	return s.inTx(ctx, func(t *txn) error {
		now := t.nowUnix()
		note.Mod = now
		if err := t.st.InsertNote(ctx, note); err != nil {
			return err
		}
		maxPos, err := t.st.MaxNewPosition(ctx)
		if err != nil {
			return err
		}
		next := maxPos + 1
		for i := range cards {
			c := &cards[i]
			due, err := t.newCardDue(ctx, c.DeckID, next)
			if err != nil {
				return err
			}
			c.NoteID = note.ID
			c.Type = domain.TypeNew
			c.Queue = domain.QueueNew
			c.Due = due
			c.Mod = now
		}
		if err := t.st.InsertCards(ctx, cards); err != nil {
			return fmt.Errorf("failed to add cards of note %d: %w", note.ID, err)
		}
		if !t.haveQueues {
			return nil
		}
		return t.reset(ctx)
	})
}

func (t *txn) newCardDue(ctx context.Context, did, next int64) (int64, error) {
	conf, err := t.decks.ConfigFor(ctx, did)
	if errors.Is(err, decks.ErrDynamic) {
		return next, nil
	}
	if err != nil {
		return 0, err
	}
	if conf.New.Order == domain.NewCardsDue {
		return next, nil
	}
	return 1 + t.cfg.Rand.Int63n(max(next, randomPositions)-1), nil
}
