package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/knolsched/internal/domain"
)

const cramID = 5

func (f *fixture) cramDeck(resched bool, terms ...domain.FilterTerm) {
	f.t.Helper()
	f.addDeck(domain.Deck{
		ID:           cramID,
		Name:         "Cram",
		Dynamic:      true,
		Resched:      resched,
		PreviewDelay: domain.DefaultPreviewDelay,
		Terms:        terms,
	})
}

func TestRebuildFilteredPullsInDueOrder(t *testing.T) {
	f := newFixture(t, nil)
	var ids []int64
	for _, due := range []int{10, 8, 9} {
		ids = append(ids, f.addNote("", f.reviewCard(5, due))[0])
	}
	f.addNote("", f.newCard(1))
	f.cramDeck(false, domain.FilterTerm{Search: "deck:Default is:review", Limit: 10, Order: domain.OrderDue})

	out, n, err := f.s.RebuildFiltered(f.ctx, cramID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, out)
	assert.Equal(t, 3, n)

	wantDue := map[int64]int64{ids[1]: -99999, ids[2]: -99998, ids[0]: -99997}
	for id, due := range wantDue {
		c := f.card(id)
		assert.Equal(t, int64(cramID), c.DeckID)
		assert.Equal(t, int64(1), c.ODeckID)
		assert.Equal(t, due, c.Due)
		assert.Equal(t, domain.QueueReview, c.Queue)
	}
	assert.Equal(t, int64(10), f.card(ids[0]).ODue)

	require.NoError(t, f.s.EmptyFiltered(f.ctx, cramID))
	for _, id := range ids {
		c := f.card(id)
		assert.Equal(t, int64(1), c.DeckID)
		assert.Zero(t, c.ODeckID)
		assert.Zero(t, c.ODue)
	}
	assert.Equal(t, int64(8), f.card(ids[1]).Due)
}

func TestRebuildFilteredTermsDoNotOverlap(t *testing.T) {
	f := newFixture(t, nil)
	for i := 0; i < 2; i++ {
		f.addNote("", f.newCard(int64(i+1)))
		f.addNote("", f.reviewCard(5, startDay))
	}
	f.cramDeck(true,
		domain.FilterTerm{Search: "deck:Default", Limit: 2, Order: domain.OrderDue},
		domain.FilterTerm{Search: "deck:Default", Limit: 10, Order: domain.OrderDue},
	)

	_, n, err := f.s.RebuildFiltered(f.ctx, cramID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	cards, err := f.db.CardsByDeck(f.ctx, cramID)
	require.NoError(t, err)
	require.Len(t, cards, 4)
	seen := make(map[int64]bool)
	for _, c := range cards {
		assert.False(t, seen[c.Due], "due %d used twice", c.Due)
		seen[c.Due] = true
	}
}

func TestRebuildFilteredNothingToStudy(t *testing.T) {
	f := newFixture(t, nil)
	f.addNote("", f.reviewCard(5, startDay))
	f.cramDeck(true, domain.FilterTerm{Search: "tag:nothing-here", Limit: 10})

	out, n, err := f.s.RebuildFiltered(f.ctx, cramID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNothingToStudy, out)
	assert.Zero(t, n)

	_, _, err = f.s.RebuildFiltered(f.ctx, 1)
	assert.ErrorIs(t, err, ErrNotFiltered)
}

func TestRebuildFilteredSkipsSuspendedAndBuried(t *testing.T) {
	f := newFixture(t, nil)
	suspended := f.reviewCard(5, startDay)
	suspended.Queue = domain.QueueSuspended
	buried := f.reviewCard(5, startDay)
	buried.Queue = domain.QueueManuallyBuried
	f.addNote("", suspended)
	f.addNote("", buried)
	keep := f.addNote("", f.reviewCard(5, startDay))[0]
	f.cramDeck(true, domain.FilterTerm{Search: "deck:Default", Limit: 10})

	_, n, err := f.s.RebuildFiltered(f.ctx, cramID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(cramID), f.card(keep).DeckID)
}

func TestPreviewWithoutRescheduling(t *testing.T) {
	f := newFixture(t, nil)
	var ids []int64
	for _, due := range []int{8, 9, 10} {
		ids = append(ids, f.addNote("", f.reviewCard(5, due))[0])
	}
	f.cramDeck(false, domain.FilterTerm{Search: "deck:Default", Limit: 10, Order: domain.OrderDue})
	_, _, err := f.s.RebuildFiltered(f.ctx, cramID)
	require.NoError(t, err)
	require.NoError(t, f.s.SelectDeck(f.ctx, cramID))
	assert.Equal(t, Counts{Review: 3}, f.counts())

	a := f.getCard()
	require.Equal(t, ids[0], a.ID)
	n, err := f.s.AnswerButtons(f.ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f.answer(a, domain.Again)
	got := f.card(ids[0])
	assert.Equal(t, domain.QueuePreview, got.Queue)
	assert.Equal(t, f.now.Unix()+600, got.Due)
	assert.Equal(t, int64(cramID), got.DeckID)

	b := f.getCard()
	require.Equal(t, ids[1], b.ID)
	f.answer(b, domain.Hard)
	got = f.card(ids[1])
	assert.Equal(t, domain.QueueReview, got.Queue)
	assert.Equal(t, int64(9), got.Due)
	assert.Equal(t, int64(1), got.DeckID)
	assert.Zero(t, got.ODeckID)
	assert.Equal(t, 5, got.Interval)

	c := f.getCard()
	require.Equal(t, ids[2], c.ID)
	require.ErrorIs(t, f.s.AnswerCard(f.ctx, c, domain.Good), ErrInvalidEase)

	// Previews leave no history.
	for _, id := range ids {
		assert.Empty(t, f.revlog(id))
	}

	require.NoError(t, f.s.EmptyFiltered(f.ctx, cramID))
	got = f.card(ids[0])
	assert.Equal(t, domain.QueueReview, got.Queue)
	assert.Equal(t, int64(8), got.Due)
	assert.Equal(t, int64(1), got.DeckID)
}

func TestEarlyReviewInFilteredDeck(t *testing.T) {
	f := newFixture(t, nil)
	id := f.addNote("", f.reviewCard(10, startDay+5))[0]
	f.cramDeck(true, domain.FilterTerm{Search: "deck:Default", Limit: 10})
	_, _, err := f.s.RebuildFiltered(f.ctx, cramID)
	require.NoError(t, err)
	require.NoError(t, f.s.SelectDeck(f.ctx, cramID))

	c := f.getCard()
	require.Equal(t, id, c.ID)
	f.answer(c, domain.Good)

	got := f.card(id)
	assert.Equal(t, 10, got.Interval)
	assert.Equal(t, int64(startDay+10), got.Due)
	assert.Equal(t, int64(1), got.DeckID)
	assert.Zero(t, got.ODeckID)
	assert.Equal(t, domain.StartingFactor, got.Factor)

	logs := f.revlog(id)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.RevLogEarly, logs[0].Type)
}

func TestSuspendingParkedCardSendsItHome(t *testing.T) {
	f := newFixture(t, nil)
	id := f.addNote("", f.reviewCard(5, startDay))[0]
	f.cramDeck(true, domain.FilterTerm{Search: "deck:Default", Limit: 10})
	_, _, err := f.s.RebuildFiltered(f.ctx, cramID)
	require.NoError(t, err)

	require.NoError(t, f.s.SuspendCards(f.ctx, []int64{id}))
	got := f.card(id)
	assert.Equal(t, domain.QueueSuspended, got.Queue)
	assert.Equal(t, int64(1), got.DeckID)
	assert.Equal(t, int64(startDay), got.Due)

	require.ErrorIs(t, f.s.ChangeDeck(f.ctx, []int64{id}, cramID), ErrFilteredDeck)
}

func TestSetVersionEmptiesFilteredDecks(t *testing.T) {
	f := newFixture(t, nil)
	id := f.addNote("", f.reviewCard(5, startDay))[0]
	f.cramDeck(true, domain.FilterTerm{Search: "deck:Default", Limit: 10})
	_, _, err := f.s.RebuildFiltered(f.ctx, cramID)
	require.NoError(t, err)

	_, err = f.s.SetVersion(f.ctx, 1, true)
	require.NoError(t, err)

	got := f.card(id)
	assert.Equal(t, int64(1), got.DeckID)
	assert.Equal(t, int64(startDay), got.Due)
}

func TestAnsweredCardForgetsItsOriginalDue(t *testing.T) {
	f := newFixture(t, nil)
	id := f.addNote("", f.newCard(3))[0]
	f.cramDeck(true, domain.FilterTerm{Search: "deck:Default", Limit: 10})
	_, _, err := f.s.RebuildFiltered(f.ctx, cramID)
	require.NoError(t, err)
	require.NoError(t, f.s.SelectDeck(f.ctx, cramID))

	c := f.getCard()
	require.Equal(t, id, c.ID)
	f.answer(c, domain.Good)

	got := f.card(id)
	assert.Equal(t, domain.QueueLearning, got.Queue)
	assert.Equal(t, int64(cramID), got.DeckID)
	assert.Zero(t, got.ODue)
	due := got.Due
	assert.GreaterOrEqual(t, due, f.now.Unix()+600)
	assert.Less(t, due, f.now.Unix()+900)

	require.NoError(t, f.s.EmptyFiltered(f.ctx, cramID))
	got = f.card(id)
	assert.Equal(t, int64(1), got.DeckID)
	assert.Zero(t, got.ODeckID)
	assert.Equal(t, domain.TypeLearning, got.Type)
	assert.Equal(t, domain.QueueLearning, got.Queue)
	assert.Equal(t, due, got.Due)
}

func TestFailedPreviewCountsAsLearningBeyondCollapse(t *testing.T) {
	f := newFixture(t, nil)
	for _, due := range []int{8, 9} {
		f.addNote("", f.reviewCard(5, due))
	}
	f.addDeck(domain.Deck{
		ID:           cramID,
		Name:         "Cram",
		Dynamic:      true,
		PreviewDelay: 30,
		Terms:        []domain.FilterTerm{{Search: "deck:Default", Limit: 10, Order: domain.OrderDue}},
	})
	_, _, err := f.s.RebuildFiltered(f.ctx, cramID)
	require.NoError(t, err)
	require.NoError(t, f.s.SelectDeck(f.ctx, cramID))

	c := f.getCard()
	f.answer(c, domain.Again)
	assert.Equal(t, f.now.Unix()+1800, f.card(c.ID).Due)
	assert.Equal(t, Counts{Learning: 1, Review: 1}, f.counts())

	require.NoError(t, f.s.Reset(f.ctx))
	assert.Equal(t, Counts{Learning: 1, Review: 1}, f.counts())
}
