// Package decks resolves deck hierarchy, options and daily counters on top of the store.
package decks

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/conorfennell/knolsched/internal/domain"
)

var (
	// ErrNoDeck is returned for an unknown deck id.
	ErrNoDeck = errors.New("no such deck")
	// ErrDynamic is returned when options are requested for a filtered deck.
	ErrDynamic = errors.New("filtered decks have no option group")
)

// Store is the persistence the manager needs.
type Store interface {
	AllDecks(ctx context.Context) ([]domain.Deck, error)
	SaveDeck(ctx context.Context, d *domain.Deck) error
	GetDeckConfig(ctx context.Context, id int64) (*domain.DeckConfig, error)
}

// Manager answers deck questions for one logical operation. It loads every
// deck once and writes saved decks through to the store.
type Manager struct {
	st      Store
	byID    map[int64]*domain.Deck
	byName  map[string]*domain.Deck
	configs map[int64]*domain.DeckConfig
}

// New returns a manager reading from st.
func New(st Store) *Manager {
	return &Manager{st: st}
}

func (m *Manager) load(ctx context.Context) error {
	if m.byID != nil {
		return nil
	}
	all, err := m.st.AllDecks(ctx)
	if err != nil {
		return err
	}
	m.byID = make(map[int64]*domain.Deck, len(all))
	m.byName = make(map[string]*domain.Deck, len(all))
	for i := range all {
		d := &all[i]
		m.byID[d.ID] = d
		m.byName[d.Name] = d
	}
	return nil
}

// Get returns a copy of a deck.
func (m *Manager) Get(ctx context.Context, did int64) (*domain.Deck, error) {
	if err := m.load(ctx); err != nil {
		return nil, err
	}
	d, ok := m.byID[did]
	if !ok {
		return nil, fmt.Errorf("deck %d: %w", did, ErrNoDeck)
	}
	cp := *d
	return &cp, nil
}

// All returns every deck ordered by name.
func (m *Manager) All(ctx context.Context) ([]domain.Deck, error) {
	if err := m.load(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.Deck, 0, len(m.byID))
	for _, d := range m.byID {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Save persists a deck and refreshes the cached copy.
func (m *Manager) Save(ctx context.Context, d *domain.Deck) error {
	if err := m.load(ctx); err != nil {
		return err
	}
	if err := m.st.SaveDeck(ctx, d); err != nil {
		return err
	}
	if old, ok := m.byID[d.ID]; ok && old.Name != d.Name {
		delete(m.byName, old.Name)
	}
	cp := *d
	m.byID[d.ID] = &cp
	m.byName[cp.Name] = &cp
	return nil
}

// Parents returns the ancestors of a deck, root first. Missing ancestors are skipped.
func (m *Manager) Parents(ctx context.Context, did int64) ([]domain.Deck, error) {
	d, err := m.Get(ctx, did)
	if err != nil {
		return nil, err
	}
	var parents []domain.Deck
	for _, name := range domain.ParentNames(d.Name) {
		if p, ok := m.byName[name]; ok {
			parents = append(parents, *p)
		}
	}
	return parents, nil
}

// Children returns every descendant of a deck ordered by name.
func (m *Manager) Children(ctx context.Context, did int64) ([]domain.Deck, error) {
	d, err := m.Get(ctx, did)
	if err != nil {
		return nil, err
	}
	all, err := m.All(ctx)
	if err != nil {
		return nil, err
	}
	var children []domain.Deck
	for _, c := range all {
		if domain.IsDescendant(c.Name, d.Name) {
			children = append(children, c)
		}
	}
	return children, nil
}

// ChildIDs returns the ids of every descendant of a deck.
func (m *Manager) ChildIDs(ctx context.Context, did int64) ([]int64, error) {
	children, err := m.Children(ctx, did)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(children))
	for i, c := range children {
		ids[i] = c.ID
	}
	return ids, nil
}

// Active returns the study context for a selected deck: the deck followed by
// its descendants in name order.
func (m *Manager) Active(ctx context.Context, selected int64) ([]int64, error) {
	children, err := m.ChildIDs(ctx, selected)
	if err != nil {
		return nil, err
	}
	return append([]int64{selected}, children...), nil
}

// DidsForConfig returns the regular decks sharing an option group, in name order.
func (m *Manager) DidsForConfig(ctx context.Context, confID int64) ([]int64, error) {
	all, err := m.All(ctx)
	if err != nil {
		return nil, err
	}
	var dids []int64
	for _, d := range all {
		if !d.Dynamic && d.ConfID == confID {
			dids = append(dids, d.ID)
		}
	}
	return dids, nil
}

// ForgetConfig drops a cached option group after it was changed.
func (m *Manager) ForgetConfig(confID int64) {
	delete(m.configs, confID)
}

// ConfigFor returns the validated option group of a regular deck.
func (m *Manager) ConfigFor(ctx context.Context, did int64) (*domain.DeckConfig, error) {
	d, err := m.Get(ctx, did)
	if err != nil {
		return nil, err
	}
	if d.Dynamic {
		return nil, fmt.Errorf("deck %d: %w", did, ErrDynamic)
	}
	if conf, ok := m.configs[d.ConfID]; ok {
		return conf, nil
	}
	conf, err := m.st.GetDeckConfig(ctx, d.ConfID)
	if err != nil {
		return nil, err
	}
	conf.ApplyDefaults()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if m.configs == nil {
		m.configs = make(map[int64]*domain.DeckConfig)
	}
	m.configs[d.ConfID] = conf
	return conf, nil
}

// Bump adds delta to a daily counter of a deck and all its ancestors.
func (m *Manager) Bump(ctx context.Context, did int64, kind domain.CounterKind, today, delta int) error {
	parents, err := m.Parents(ctx, did)
	if err != nil {
		return err
	}
	d, err := m.Get(ctx, did)
	if err != nil {
		return err
	}
	for _, deck := range append(parents, *d) {
		c := deck.Counter(kind)
		if c.Day != today {
			*c = domain.DayCount{Day: today}
		}
		c.Count += delta
		if err := m.Save(ctx, &deck); err != nil {
			return err
		}
	}
	return nil
}
