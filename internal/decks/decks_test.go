package decks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/knolsched/internal/domain"
)

type memStore struct {
	decks       map[int64]domain.Deck
	configs     map[int64]domain.DeckConfig
	saves       int
	configReads int
}

func newMemStore(decks ...domain.Deck) *memStore {
	s := &memStore{
		decks:   make(map[int64]domain.Deck),
		configs: map[int64]domain.DeckConfig{1: domain.DefaultDeckConfig()},
	}
	for _, d := range decks {
		s.decks[d.ID] = d
	}
	return s
}

func (s *memStore) AllDecks(ctx context.Context) ([]domain.Deck, error) {
	out := make([]domain.Deck, 0, len(s.decks))
	for _, d := range s.decks {
		out = append(out, d)
	}
	return out, nil
}

func (s *memStore) SaveDeck(ctx context.Context, d *domain.Deck) error {
	s.saves++
	s.decks[d.ID] = *d
	return nil
}

func (s *memStore) GetDeckConfig(ctx context.Context, id int64) (*domain.DeckConfig, error) {
	s.configReads++
	c := s.configs[id]
	return &c, nil
}

func tree() *memStore {
	return newMemStore(
		domain.Deck{ID: 1, Name: "Default", ConfID: 1},
		domain.Deck{ID: 2, Name: "Lang", ConfID: 1},
		domain.Deck{ID: 3, Name: "Lang::Spanish", ConfID: 1},
		domain.Deck{ID: 4, Name: "Lang::Spanish::Verbs", ConfID: 1},
		domain.Deck{ID: 5, Name: "Lang::French", ConfID: 1},
		domain.Deck{ID: 6, Name: "Language", ConfID: 1},
		domain.Deck{ID: 9, Name: "Cram", Dynamic: true},
	)
}

func TestHierarchy(t *testing.T) {
	ctx := context.Background()
	m := New(tree())

	parents, err := m.Parents(ctx, 4)
	require.NoError(t, err)
	require.Len(t, parents, 2)
	assert.Equal(t, "Lang", parents[0].Name)
	assert.Equal(t, "Lang::Spanish", parents[1].Name)

	ids, err := m.ChildIDs(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 3, 4}, ids, "Language is not a child of Lang")

	active, err := m.Active(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, active)

	_, err = m.Get(ctx, 42)
	assert.ErrorIs(t, err, ErrNoDeck)
}

func TestConfigFor(t *testing.T) {
	ctx := context.Background()
	st := tree()
	m := New(st)

	conf, err := m.ConfigFor(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 20, conf.New.PerDay)

	_, err = m.ConfigFor(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, st.configReads, "option groups are cached")

	_, err = m.ConfigFor(ctx, 9)
	assert.ErrorIs(t, err, ErrDynamic)

	bad := domain.DefaultDeckConfig()
	bad.New.Ints = []int{1}
	st.configs[2] = bad
	st.decks[1] = domain.Deck{ID: 1, Name: "Default", ConfID: 2}
	_, err = New(st).ConfigFor(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestBumpWalksUpTheTree(t *testing.T) {
	ctx := context.Background()
	st := tree()
	st.decks[2] = domain.Deck{ID: 2, Name: "Lang", ConfID: 1, NewToday: domain.DayCount{Day: 3, Count: 7}}
	m := New(st)

	require.NoError(t, m.Bump(ctx, 4, domain.CounterNew, 5, 1))
	require.NoError(t, m.Bump(ctx, 4, domain.CounterNew, 5, 1))

	for _, id := range []int64{2, 3, 4} {
		assert.Equal(t, domain.DayCount{Day: 5, Count: 2}, st.decks[id].NewToday, "deck %d", id)
	}
	assert.Zero(t, st.decks[5].NewToday.Count)

	d, err := m.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, d.NewToday.On(5))
}

func TestSaveRenames(t *testing.T) {
	ctx := context.Background()
	m := New(tree())

	d, err := m.Get(ctx, 5)
	require.NoError(t, err)
	d.Name = "Lang::Spanish::Nouns"
	require.NoError(t, m.Save(ctx, d))

	ids, err := m.ChildIDs(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 4}, ids)
}

func TestDidsForConfig(t *testing.T) {
	ctx := context.Background()
	st := tree()
	st.decks[7] = domain.Deck{ID: 7, Name: "Art", ConfID: 2}
	m := New(st)

	dids, err := m.DidsForConfig(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 5, 3, 4, 6}, dids, "filtered decks have no option group")

	dids, err = m.DidsForConfig(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, dids)
}

func TestForgetConfigRereads(t *testing.T) {
	ctx := context.Background()
	st := tree()
	m := New(st)

	_, err := m.ConfigFor(ctx, 1)
	require.NoError(t, err)
	conf := st.configs[1]
	conf.New.PerDay = 3
	st.configs[1] = conf

	got, err := m.ConfigFor(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 20, got.New.PerDay, "cached")

	m.ForgetConfig(1)
	got, err = m.ConfigFor(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, got.New.PerDay)
	assert.Equal(t, 2, st.configReads)
}
