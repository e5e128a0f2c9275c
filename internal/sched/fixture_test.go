package sched

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/storage"
)

// epoch is when test collections are created. The fixture clock starts ten
// days later at noon, so today is 10 with the default 4am rollover.
var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

const startDay = 10

type fixture struct {
	t      *testing.T
	ctx    context.Context
	db     *storage.DB
	s      *Scheduler
	now    time.Time
	nextID int64
}

func newFixture(t *testing.T, mutate func(*domain.CollectionConf)) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	conf := domain.DefaultCollectionConf()
	if mutate != nil {
		mutate(&conf)
	}
	require.NoError(t, db.InitCollection(ctx, epoch.Unix(), conf))

	f := &fixture{t: t, ctx: ctx, db: db, now: epoch.AddDate(0, 0, startDay), nextID: 1000}
	f.s = f.open()
	return f
}

func (f *fixture) open() *Scheduler {
	f.t.Helper()
	s, err := New(f.ctx, f.db, Config{
		Clock:    func() time.Time { return f.now },
		Rand:     rand.New(rand.NewSource(7)),
		Location: time.UTC,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(f.t, err)
	return s
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) id() int64 {
	f.nextID++
	return f.nextID
}

// addNote stores a note owning the given cards and returns the card ids.
// Unset ids, note ids, decks and factors are filled in.
func (f *fixture) addNote(tags string, cards ...domain.Card) []int64 {
	f.t.Helper()
	note := domain.Note{ID: f.id(), Tags: tags}
	require.NoError(f.t, f.db.InsertNote(f.ctx, &note))

	ids := make([]int64, len(cards))
	for i := range cards {
		c := &cards[i]
		if c.ID == 0 {
			c.ID = f.id()
		}
		c.NoteID = note.ID
		c.Ord = i
		if c.DeckID == 0 {
			c.DeckID = 1
		}
		if c.Factor == 0 && c.Type != domain.TypeNew {
			c.Factor = domain.StartingFactor
		}
		ids[i] = c.ID
	}
	require.NoError(f.t, f.db.InsertCards(f.ctx, cards))
	return ids
}

func (f *fixture) newCard(pos int64) domain.Card {
	return domain.Card{Type: domain.TypeNew, Queue: domain.QueueNew, Due: pos}
}

func (f *fixture) reviewCard(ivl int, due int) domain.Card {
	return domain.Card{
		Type:     domain.TypeReview,
		Queue:    domain.QueueReview,
		Due:      int64(due),
		Interval: ivl,
		Factor:   domain.StartingFactor,
	}
}

func (f *fixture) card(id int64) *domain.Card {
	f.t.Helper()
	c, err := f.db.GetCard(f.ctx, id)
	require.NoError(f.t, err)
	return c
}

func (f *fixture) note(id int64) *domain.Note {
	f.t.Helper()
	n, err := f.db.GetNote(f.ctx, id)
	require.NoError(f.t, err)
	return n
}

func (f *fixture) revlog(cid int64) []domain.RevLogEntry {
	f.t.Helper()
	entries, err := f.db.RevlogForCard(f.ctx, cid)
	require.NoError(f.t, err)
	return entries
}

func (f *fixture) deckConfig(id int64, mutate func(*domain.DeckConfig)) {
	f.t.Helper()
	conf, err := f.db.GetDeckConfig(f.ctx, 1)
	require.NoError(f.t, err)
	conf.ID = id
	mutate(conf)
	require.NoError(f.t, f.db.SaveDeckConfig(f.ctx, conf))
}

func (f *fixture) addDeck(d domain.Deck) {
	f.t.Helper()
	if d.ConfID == 0 {
		d.ConfID = 1
	}
	require.NoError(f.t, f.db.SaveDeck(f.ctx, &d))
}

func (f *fixture) getCard() *domain.Card {
	f.t.Helper()
	c, err := f.s.GetCard(f.ctx)
	require.NoError(f.t, err)
	require.NotNil(f.t, c, "expected a card to study")
	return c
}

func (f *fixture) answer(c *domain.Card, ease domain.Ease) {
	f.t.Helper()
	require.NoError(f.t, f.s.AnswerCard(f.ctx, c, ease))
}

func (f *fixture) counts() Counts {
	f.t.Helper()
	c, err := f.s.Counts(f.ctx)
	require.NoError(f.t, err)
	return c
}
