package sched

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/knolsched/internal/domain"
)

// dues returns the due of every card, in the order given.
func (f *fixture) dues(ids ...int64) []int64 {
	f.t.Helper()
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = f.card(id).Due
	}
	return out
}

func sorted(v []int64) []int64 {
	out := append([]int64(nil), v...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestOrderAndRandomizeCards(t *testing.T) {
	f := newFixture(t, nil)
	first := f.addNote("", f.newCard(30), f.newCard(30))
	second := f.addNote("", f.newCard(20))
	third := f.addNote("", f.newCard(10))
	review := f.addNote("", f.reviewCard(5, startDay))[0]

	require.NoError(t, f.s.OrderCards(f.ctx, 1))
	assert.Equal(t, []int64{1, 1, 2, 3}, f.dues(first[0], first[1], second[0], third[0]))
	assert.Equal(t, int64(startDay), f.card(review).Due, "only new cards are positioned")

	require.NoError(t, f.s.RandomizeCards(f.ctx, 1))
	got := sorted(f.dues(first[0], second[0], third[0]))
	assert.Len(t, got, 3)
	for i, due := range got {
		assert.True(t, due >= 1 && due <= 4, "position %d", due)
		if i > 0 {
			assert.NotEqual(t, got[i-1], due)
		}
	}
	assert.Equal(t, f.card(first[0]).Due, f.card(first[1]).Due, "siblings stay together")
	assert.Equal(t, domain.QueueReview, f.card(review).Queue)
}

func TestSaveDeckConfigResortsWhenOrderChanges(t *testing.T) {
	f := newFixture(t, nil)
	var ids []int64
	for _, due := range []int64{30, 10, 20} {
		ids = append(ids, f.addNote("", f.newCard(due))[0])
	}

	conf, err := f.db.GetDeckConfig(f.ctx, 1)
	require.NoError(t, err)
	require.Equal(t, domain.NewCardsDue, conf.New.Order)

	conf.New.PerDay = 5
	require.NoError(t, f.s.SaveDeckConfig(f.ctx, conf))
	assert.Equal(t, []int64{30, 10, 20}, f.dues(ids...), "same order leaves positions alone")
	assert.Equal(t, 3, f.counts().New)

	conf.New.Order = domain.NewCardsRandom
	require.NoError(t, f.s.SaveDeckConfig(f.ctx, conf))
	assert.Equal(t, []int64{1, 2, 3}, sorted(f.dues(ids...)))

	conf.New.Order = domain.NewCardsDue
	require.NoError(t, f.s.SaveDeckConfig(f.ctx, conf))
	assert.Equal(t, []int64{1, 2, 3}, f.dues(ids...))

	stored, err := f.db.GetDeckConfig(f.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.New.PerDay)

	conf.New.Ints = []int{1}
	require.ErrorIs(t, f.s.SaveDeckConfig(f.ctx, conf), domain.ErrInvalidConfig)
}

func TestAddNote(t *testing.T) {
	f := newFixture(t, nil)
	f.addNote("", f.newCard(5))
	assert.Equal(t, 1, f.counts().New)

	note := &domain.Note{ID: f.id()}
	cards := []domain.Card{{ID: f.id(), DeckID: 1}, {ID: f.id(), DeckID: 1, Ord: 1}}
	require.NoError(t, f.s.AddNote(f.ctx, note, cards))

	for _, c := range cards {
		got := f.card(c.ID)
		assert.Equal(t, note.ID, got.NoteID)
		assert.Equal(t, domain.TypeNew, got.Type)
		assert.Equal(t, domain.QueueNew, got.Queue)
		assert.Equal(t, int64(6), got.Due)
	}
	assert.Equal(t, 3, f.counts().New)

	f.deckConfig(1, func(c *domain.DeckConfig) { c.New.Order = domain.NewCardsRandom })
	random := []domain.Card{{ID: f.id(), DeckID: 1}}
	require.NoError(t, f.s.AddNote(f.ctx, &domain.Note{ID: f.id()}, random))
	due := f.card(random[0].ID).Due
	assert.GreaterOrEqual(t, due, int64(1))
	assert.Less(t, due, int64(1000))
}

func TestMaybeRandomizeDeck(t *testing.T) {
	f := newFixture(t, nil)
	var ids []int64
	for _, due := range []int64{30, 10, 20} {
		ids = append(ids, f.addNote("", f.newCard(due))[0])
	}

	require.NoError(t, f.s.MaybeRandomizeDeck(f.ctx, 1))
	assert.Equal(t, []int64{30, 10, 20}, f.dues(ids...), "options keep due order")

	f.deckConfig(1, func(c *domain.DeckConfig) { c.New.Order = domain.NewCardsRandom })
	require.NoError(t, f.s.MaybeRandomizeDeck(f.ctx, 1))
	assert.Equal(t, []int64{1, 2, 3}, sorted(f.dues(ids...)))
}
