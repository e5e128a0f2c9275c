package search

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/storage"
)

func TestTokenize(t *testing.T) {
	tokens, err := tokenize(`(deck:"My Deck" or tag:x)-is:new`)
	require.NoError(t, err)
	assert.Equal(t, []token{
		{kind: tokOpen},
		{kind: tokWord, text: "deck:My Deck"},
		{kind: tokOr},
		{kind: tokWord, text: "tag:x"},
		{kind: tokClose},
		{kind: tokNeg},
		{kind: tokWord, text: "is:new"},
	}, tokens)

	_, err = tokenize(`deck:"open`)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCompile(t *testing.T) {
	env := Env{Today: 10, DayCutoff: 5000}

	tests := []struct {
		name  string
		query string
		where string
		args  []any
	}{
		{"empty", "", "1 = 1", nil},
		{"implicit and", "is:new flag:2", "(c.type = ? AND (c.flags & 7) = ?)", []any{domain.TypeNew, 2}},
		{"or", "is:new or is:suspended", "(c.type = ? OR c.queue = ?)", []any{domain.TypeNew, domain.QueueSuspended}},
		{"negation", "-is:buried", "NOT c.queue IN (?, ?)", []any{domain.QueueSiblingBuried, domain.QueueManuallyBuried}},
		{"filtered decks", "deck:filtered", "d.dyn = 1", nil},
		{"ids", "cid:1,2", "c.id IN (?, ?)", []any{int64(1), int64(2)}},
		{"prop", "prop:ivl>=10", "c.ivl >= ?", []any{10.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args, err := compile(tt.query, env)
			require.NoError(t, err)
			assert.Equal(t, tt.where, where)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestCompileErrors(t *testing.T) {
	for _, q := range []string{"(is:new", "is:new)", "and is:new", "is:new or", "-"} {
		_, _, err := compile(q, Env{})
		assert.ErrorIs(t, err, ErrMalformed, q)
	}
	for _, q := range []string{"bogus", "is:sleepy", "flag:9", "prop:ivl~3", "cid:x", "rated:1"} {
		_, _, err := compile(q, Env{})
		assert.ErrorIs(t, err, ErrUnknownTerm, q)
	}
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, `Lang::%`, likePattern("Lang::*"))
	assert.Equal(t, `50\%\_off`, likePattern("50%_off"))
}

func TestFinder(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.InitCollection(ctx, 0, domain.DefaultCollectionConf()))
	require.NoError(t, db.SaveDeck(ctx, &domain.Deck{ID: 2, Name: "Lang", ConfID: 1}))
	require.NoError(t, db.SaveDeck(ctx, &domain.Deck{ID: 3, Name: "Lang::Spanish", ConfID: 1}))
	require.NoError(t, db.SaveDeck(ctx, &domain.Deck{ID: 4, Name: "Language", ConfID: 1}))
	require.NoError(t, db.SaveDeck(ctx, &domain.Deck{ID: 9, Name: "Cram", Dynamic: true, ConfID: 1}))

	require.NoError(t, db.InsertNote(ctx, &domain.Note{ID: 1, Tags: "verbs irregular"}))
	require.NoError(t, db.InsertNote(ctx, &domain.Note{ID: 2, Tags: "nouns"}))
	require.NoError(t, db.InsertCards(ctx, []domain.Card{
		{ID: 10, NoteID: 1, DeckID: 2, Type: domain.TypeReview, Queue: domain.QueueReview, Due: 8, Interval: 30},
		{ID: 11, NoteID: 1, DeckID: 3, Type: domain.TypeReview, Queue: domain.QueueReview, Due: 12, Interval: 3},
		{ID: 12, NoteID: 2, DeckID: 4, Type: domain.TypeNew, Queue: domain.QueueNew, Due: 1},
		{ID: 13, NoteID: 2, DeckID: 9, ODeckID: 3, Type: domain.TypeReview, Queue: domain.QueueReview, Due: -99999, ODue: 9, Interval: 7},
	}))

	f := NewFinder(slog.New(slog.NewTextHandler(io.Discard, nil)))
	env := Env{Today: 10}
	find := func(query string, order Order) []int64 {
		t.Helper()
		ids, err := f.Find(ctx, db, env, query, order)
		require.NoError(t, err)
		return ids
	}

	assert.Equal(t, []int64{13, 10, 11}, find("deck:Lang", Order{By: domain.OrderDue}))
	assert.Equal(t, []int64{10, 11}, find("deck:Lang -deck:filtered", Order{By: domain.OrderDue}))
	assert.Equal(t, []int64{11, 13}, find("deck:Lang::Spanish", Order{By: domain.OrderIntervalAsc}))
	assert.Equal(t, []int64{10, 11}, find("tag:verbs", Order{By: domain.OrderIntervalDesc}))
	assert.Equal(t, []int64{13, 10}, find("is:due", Order{By: domain.OrderDue}))
	assert.Equal(t, []int64{12}, find("is:new", Order{}))
	assert.Equal(t, []int64{11}, find("deck:Lang prop:ivl<10 -deck:filtered", Order{By: domain.OrderDue}))
	assert.Len(t, find("", Order{Limit: 2}), 2)

	// Unusable searches match nothing rather than failing.
	assert.Empty(t, find("is:nonsense", Order{}))
	assert.Empty(t, find("(", Order{}))
}
