// Package sched decides which card to study next and reschedules cards after
// they are answered.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/conorfennell/knolsched/internal/decks"
	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/metrics"
	"github.com/conorfennell/knolsched/internal/search"
	"github.com/conorfennell/knolsched/internal/storage"
	"github.com/conorfennell/knolsched/internal/undo"
)

const (
	defaultQueueLimit  = 50
	defaultReportLimit = 99999
)

// CardFinder resolves a search to card ids. *search.Finder satisfies it.
type CardFinder interface {
	Find(ctx context.Context, src search.Source, env search.Env, query string, order search.Order) ([]int64, error)
}

// Config tunes a Scheduler. Zero fields take their defaults.
type Config struct {
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
	// Rand drives interval fuzz. Defaults to a time-seeded source.
	Rand *rand.Rand
	// Location is where the rollover hour is measured. Defaults to time.Local.
	Location *time.Location
	Logger   *slog.Logger
	Metrics  *metrics.Collector
	Finder   CardFinder
	// QueueLimit is how many cards a queue fetches at a time.
	QueueLimit int
	// ReportLimit caps the counts of filtered decks.
	ReportLimit int
	// BuryOnFetch buries siblings as soon as a card is handed out rather than when it is answered.
	BuryOnFetch bool
}

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Finder == nil {
		c.Finder = search.NewFinder(c.Logger)
	}
	if c.QueueLimit <= 0 {
		c.QueueLimit = defaultQueueLimit
	}
	if c.ReportLimit <= 0 {
		c.ReportLimit = defaultReportLimit
	}
	return c
}

// Counts are the cards left to study in the current context, per tier.
type Counts struct {
	New      int
	Learning int
	Review   int
}

// Scheduler is the study engine for one collection. It is not safe for
// concurrent use; callers serialize access.
type Scheduler struct {
	db      *storage.DB
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Collector
	policy  policy
	created int64
	conf    domain.CollectionConf
	undo    *undo.Log

	haveQueues bool
	today      int
	dayCutoff  int64
	lrnCutoff  int64
	reps       int

	newCount       int
	lrnCount       int
	revCount       int
	newCardModulus int

	newQueue    []int64
	lrnQueue    []storage.LearnEntry
	lrnDayQueue []int64
	revQueue    []int64

	newDids []int64
	lrnDids []int64
	revDids []int64
}

// New opens the scheduler for the collection stored in db. An unknown
// scheduler version is fatal.
func New(ctx context.Context, db *storage.DB, cfg Config) (*Scheduler, error) {
	cfg = cfg.withDefaults()

	col, err := db.LoadCollection(ctx)
	if err != nil {
		return nil, err
	}
	pol, err := policyFor(col.Conf.SchedVer)
	if err != nil {
		return nil, err
	}
	if len(col.Conf.ActiveDecks) == 0 {
		cur := col.Conf.CurDeck
		if cur == 0 {
			cur = 1
		}
		col.Conf.CurDeck = cur
		col.Conf.ActiveDecks = []int64{cur}
	}

	return &Scheduler{
		db:      db,
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		policy:  pol,
		created: col.Created,
		conf:    col.Conf,
		undo:    undo.New(undo.Capacity),
	}, nil
}

// Version returns the active scheduler version.
func (s *Scheduler) Version() int {
	return s.policy.version
}

// Today returns the current day index, counted from collection creation.
func (s *Scheduler) Today() int {
	return s.today
}

func (s *Scheduler) now() time.Time {
	return s.cfg.Clock().In(s.cfg.Location)
}

func (s *Scheduler) nowUnix() int64 {
	return s.cfg.Clock().Unix()
}

// txn binds the scheduler to one store transaction. Every store access made
// while handling a public call goes through it.
type txn struct {
	*Scheduler
	st    *storage.DB
	decks *decks.Manager
}

func (s *Scheduler) inTx(ctx context.Context, fn func(t *txn) error) error {
	conf := s.conf
	err := s.db.InTx(ctx, func(st *storage.DB) error {
		return fn(&txn{Scheduler: s, st: st, decks: decks.New(st)})
	})
	if err != nil {
		// Rolled back: in-memory state may no longer match the store.
		s.conf = conf
		s.haveQueues = false
	}
	return err
}

// Reset recomputes the day boundary and rebuilds every queue and count.
func (s *Scheduler) Reset(ctx context.Context) error {
	return s.inTx(ctx, func(t *txn) error {
		return t.reset(ctx)
	})
}

func (t *txn) reset(ctx context.Context) error {
	if err := t.updateCutoff(ctx); err != nil {
		return err
	}
	if err := t.resetLrn(ctx); err != nil {
		return err
	}
	if err := t.resetRev(ctx); err != nil {
		return err
	}
	if err := t.resetNew(ctx); err != nil {
		return err
	}
	t.haveQueues = true
	t.metrics.Due(t.newCount, t.lrnCount, t.revCount)
	return nil
}

// ready rolls the day over if needed and makes sure queues are built.
func (t *txn) ready(ctx context.Context) error {
	if t.dayCutoff == 0 || t.nowUnix() > t.dayCutoff || !t.haveQueues {
		return t.reset(ctx)
	}
	return nil
}

// GetCard returns the next card to study, or nil when nothing is left.
func (s *Scheduler) GetCard(ctx context.Context) (*domain.Card, error) {
	var card *domain.Card
	err := s.inTx(ctx, func(t *txn) error {
		if err := t.ready(ctx); err != nil {
			return err
		}
		c, err := t.nextCard(ctx)
		if err != nil || c == nil {
			return err
		}
		t.reps++
		if t.cfg.BuryOnFetch {
			cc, err := t.cardConf(ctx, c)
			if err != nil {
				return err
			}
			if _, err := t.burySiblings(ctx, c, cc); err != nil {
				return err
			}
		}
		c.Shown = t.now()
		card = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Due(s.newCount, s.lrnCount, s.revCount)
	return card, nil
}

// Counts returns the cards left in each tier for the current study context.
func (s *Scheduler) Counts(ctx context.Context) (Counts, error) {
	err := s.inTx(ctx, func(t *txn) error {
		return t.ready(ctx)
	})
	if err != nil {
		return Counts{}, err
	}
	return Counts{New: s.newCount, Learning: s.lrnCount, Review: s.revCount}, nil
}

// CountIdx returns which tier of Counts a card belongs to: 0 new, 1 learning, 2 review.
func (s *Scheduler) CountIdx(card *domain.Card) int {
	switch card.Queue {
	case domain.QueueLearning, domain.QueueDayLearn, domain.QueuePreview:
		return 1
	case domain.QueueReview:
		return 2
	}
	return 0
}

// SelectDeck makes did and its descendants the study context.
func (s *Scheduler) SelectDeck(ctx context.Context, did int64) error {
	return s.inTx(ctx, func(t *txn) error {
		active, err := t.decks.Active(ctx, did)
		if err != nil {
			return err
		}
		t.conf.CurDeck = did
		t.conf.ActiveDecks = active
		if err := t.st.SaveCollectionConf(ctx, t.conf); err != nil {
			return err
		}
		return t.reset(ctx)
	})
}

// ExtendLimits raises today's new and review allowance of the current deck
// by lowering the counters of it, its ancestors and its descendants.
func (s *Scheduler) ExtendLimits(ctx context.Context, newCards, revCards int) error {
	return s.inTx(ctx, func(t *txn) error {
		if err := t.ready(ctx); err != nil {
			return err
		}
		cur := t.conf.CurDeck
		parents, err := t.decks.Parents(ctx, cur)
		if err != nil {
			return err
		}
		children, err := t.decks.Children(ctx, cur)
		if err != nil {
			return err
		}
		deck, err := t.decks.Get(ctx, cur)
		if err != nil {
			return err
		}
		for _, d := range append(append(parents, *deck), children...) {
			d.NewToday = domain.DayCount{Day: t.today, Count: d.NewToday.On(t.today) - newCards}
			d.RevToday = domain.DayCount{Day: t.today, Count: d.RevToday.On(t.today) - revCards}
			if err := t.decks.Save(ctx, &d); err != nil {
				return err
			}
		}
		return t.reset(ctx)
	})
}

// SetVersion switches between scheduler versions. Switching empties every
// filtered deck and returns learning cards to new or review, so it must be confirmed.
func (s *Scheduler) SetVersion(ctx context.Context, version int, confirmed bool) (Outcome, error) {
	pol, err := policyFor(version)
	if err != nil {
		return OutcomeOK, err
	}
	if version == s.policy.version {
		return OutcomeOK, nil
	}
	if !confirmed {
		return OutcomeNeedsConfirmation, nil
	}
	err = s.inTx(ctx, func(t *txn) error {
		if err := t.checkDay(ctx); err != nil {
			return err
		}
		if err := t.emptyAllFiltered(ctx); err != nil {
			return err
		}
		if err := t.removeAllFromLearning(ctx); err != nil {
			return err
		}
		if version == 1 {
			if err := t.downgradeParked(ctx); err != nil {
				return err
			}
			// Hard disappears: Good and Easy move down a button.
			if err := t.st.ShiftLearningEases(ctx, []domain.Ease{domain.Good, domain.Easy}, -1); err != nil {
				return err
			}
		} else if err := t.st.ShiftLearningEases(ctx, []domain.Ease{domain.Hard, domain.Good}, 1); err != nil {
			return err
		}
		t.conf.SchedVer = version
		return t.st.SaveCollectionConf(ctx, t.conf)
	})
	if err != nil {
		return OutcomeOK, fmt.Errorf("failed to switch scheduler to v%d: %w", version, err)
	}
	s.policy = pol
	s.undo.Clear()
	s.haveQueues = false
	s.logger.Info("Switched scheduler version", "version", version)
	return OutcomeOK, nil
}

// downgradeParked prepares cards out of study for the v1 rules, which have no
// manual bury queue and no suspended or buried learning cards.
func (t *txn) downgradeParked(ctx context.Context) error {
	cards, err := t.st.CardsInQueues(ctx, []domain.Queue{
		domain.QueueManuallyBuried, domain.QueueSiblingBuried, domain.QueueSuspended,
	}, nil)
	if err != nil {
		return err
	}
	now := t.nowUnix()
	for i := range cards {
		c := &cards[i]
		if c.Queue == domain.QueueManuallyBuried {
			c.Queue = domain.QueueSiblingBuried
		}
		switch c.Type {
		case domain.TypeLearning:
			c.Type = domain.TypeNew
		case domain.TypeRelearning:
			c.Type = domain.TypeReview
		}
		if c.ODue != 0 {
			c.Due = c.ODue
		}
		c.ODue = 0
		c.Mod = now
	}
	return t.st.UpdateCards(ctx, cards)
}
