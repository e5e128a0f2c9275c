package sched

import (
	"context"
	"math/rand"
	"sort"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/storage"
)

type limitFunc func(ctx context.Context, d *domain.Deck) (int, error)

type countFunc func(ctx context.Context, did int64, limit int) (int, error)

// walkingCount sums what every active deck can contribute, so that no deck
// exceeds its own remaining allowance or that of any ancestor.
func (t *txn) walkingCount(ctx context.Context, limitOf limitFunc, countOf countFunc) (int, error) {
	remaining := make(map[int64]int)
	total := 0
	for _, did := range t.conf.ActiveDecks {
		deck, err := t.decks.Get(ctx, did)
		if err != nil {
			return 0, err
		}
		lim, err := limitOf(ctx, deck)
		if err != nil {
			return 0, err
		}
		if lim == 0 {
			continue
		}
		parents, err := t.decks.Parents(ctx, did)
		if err != nil {
			return 0, err
		}
		for i := range parents {
			p := &parents[i]
			if _, ok := remaining[p.ID]; !ok {
				pl, err := limitOf(ctx, p)
				if err != nil {
					return 0, err
				}
				remaining[p.ID] = pl
			}
			lim = min(lim, remaining[p.ID])
		}
		cnt, err := countOf(ctx, did, lim)
		if err != nil {
			return 0, err
		}
		for _, p := range parents {
			remaining[p.ID] -= cnt
		}
		remaining[did] = lim - cnt
		total += cnt
	}
	return total, nil
}

// newLimitFor is how many new cards the deck itself may still show today.
func (t *txn) newLimitFor(ctx context.Context, d *domain.Deck) (int, error) {
	if d.Dynamic {
		return t.cfg.ReportLimit, nil
	}
	conf, err := t.decks.ConfigFor(ctx, d.ID)
	if err != nil {
		return 0, err
	}
	return max(0, conf.New.PerDay-d.NewToday.On(t.today)), nil
}

// revLimitFor is how many reviews the deck itself may still show today.
func (t *txn) revLimitFor(ctx context.Context, d *domain.Deck) (int, error) {
	if d.Dynamic {
		return t.cfg.ReportLimit, nil
	}
	conf, err := t.decks.ConfigFor(ctx, d.ID)
	if err != nil {
		return 0, err
	}
	return max(0, conf.Rev.PerDay-d.RevToday.On(t.today)), nil
}

// deckLimit is the smallest remaining allowance of a deck and its ancestors.
func (t *txn) deckLimit(ctx context.Context, did int64, limitOf limitFunc) (int, error) {
	deck, err := t.decks.Get(ctx, did)
	if err != nil {
		return 0, err
	}
	lim, err := limitOf(ctx, deck)
	if err != nil {
		return 0, err
	}
	parents, err := t.decks.Parents(ctx, did)
	if err != nil {
		return 0, err
	}
	for i := range parents {
		pl, err := limitOf(ctx, &parents[i])
		if err != nil {
			return 0, err
		}
		lim = min(lim, pl)
	}
	return lim, nil
}

// shuffle orders ids reproducibly for the current day.
func (t *txn) shuffle(ids []int64) {
	r := rand.New(rand.NewSource(int64(t.today)))
	r.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
}

// New cards

func (t *txn) resetNew(ctx context.Context) error {
	cnt, err := t.walkingCount(ctx, t.newLimitFor, t.st.CountNew)
	if err != nil {
		return err
	}
	t.newCount = cnt
	t.newDids = append([]int64(nil), t.conf.ActiveDecks...)
	t.newQueue = nil
	t.updateNewCardRatio()
	return nil
}

func (t *txn) fillNew(ctx context.Context, recount bool) (bool, error) {
	if len(t.newQueue) > 0 {
		return true, nil
	}
	if t.newCount == 0 {
		return false, nil
	}
	for len(t.newDids) > 0 {
		did := t.newDids[0]
		lim, err := t.deckLimit(ctx, did, t.newLimitFor)
		if err != nil {
			return false, err
		}
		lim = min(t.cfg.QueueLimit, lim)
		if lim > 0 {
			ids, err := t.st.NewCardIDs(ctx, did, lim)
			if err != nil {
				return false, err
			}
			if len(ids) > 0 {
				t.newQueue = ids
				return true, nil
			}
		}
		t.newDids = t.newDids[1:]
	}
	if t.newCount > 0 && recount {
		// Cards were removed from the queue without being buried.
		if err := t.resetNew(ctx); err != nil {
			return false, err
		}
		return t.fillNew(ctx, false)
	}
	return false, nil
}

func (t *txn) getNewCard(ctx context.Context) (*domain.Card, error) {
	ok, err := t.fillNew(ctx, true)
	if err != nil || !ok {
		return nil, err
	}
	id := t.newQueue[0]
	t.newQueue = t.newQueue[1:]
	t.newCount = max(0, t.newCount-1)
	return t.st.GetCard(ctx, id)
}

func (t *txn) updateNewCardRatio() {
	t.newCardModulus = 0
	if t.conf.NewSpread == domain.NewSpreadDistribute && t.newCount > 0 {
		mod := (t.newCount + t.revCount) / t.newCount
		if t.revCount > 0 {
			mod = max(2, mod)
		}
		t.newCardModulus = mod
	}
}

// timeForNewCard reports whether a new card should be shown before reviews.
func (t *txn) timeForNewCard() bool {
	if t.newCount == 0 {
		return false
	}
	switch t.conf.NewSpread {
	case domain.NewSpreadLast:
		return false
	case domain.NewSpreadFirst:
		return true
	}
	return t.newCardModulus != 0 && t.reps != 0 && t.reps%t.newCardModulus == 0
}

// Learning cards

func (t *txn) resetLrn(ctx context.Context) error {
	t.updateLrnCutoff(true)
	dids := t.conf.ActiveDecks

	var sub int
	var err error
	if t.policy.countSteps {
		sub, err = t.st.SumLearnSteps(ctx, dids, t.lrnCutoff)
	} else {
		sub, err = t.st.CountLearn(ctx, dids, t.lrnCutoff)
	}
	if err != nil {
		return err
	}
	day, err := t.st.CountDayLearn(ctx, dids, t.today)
	if err != nil {
		return err
	}
	preview, err := t.st.CountPreview(ctx, dids)
	if err != nil {
		return err
	}

	t.lrnCount = sub + day + preview
	t.lrnQueue = nil
	t.lrnDayQueue = nil
	t.lrnDids = append([]int64(nil), dids...)
	return nil
}

func (t *txn) maybeResetLrn(ctx context.Context, force bool) error {
	if t.updateLrnCutoff(force) {
		return t.resetLrn(ctx)
	}
	return nil
}

func (t *txn) fillLrn(ctx context.Context) (bool, error) {
	if t.lrnCount == 0 {
		return false, nil
	}
	if len(t.lrnQueue) > 0 {
		return true, nil
	}
	cutoff := t.nowUnix() + int64(t.conf.CollapseTime)
	entries, err := t.st.LearnQueue(ctx, t.conf.ActiveDecks, cutoff, t.cfg.ReportLimit)
	if err != nil {
		return false, err
	}
	t.lrnQueue = entries
	return len(entries) > 0, nil
}

// getLrnCard returns the earliest learning card that is due. With collapse,
// cards due within the collapse window count as due.
func (t *txn) getLrnCard(ctx context.Context, collapse bool) (*domain.Card, error) {
	if err := t.maybeResetLrn(ctx, collapse && t.lrnCount == 0); err != nil {
		return nil, err
	}
	ok, err := t.fillLrn(ctx)
	if err != nil || !ok {
		return nil, err
	}
	cutoff := t.nowUnix()
	if collapse {
		cutoff += int64(t.conf.CollapseTime)
	}
	if t.lrnQueue[0].Due >= cutoff {
		return nil, nil
	}
	id := t.lrnQueue[0].ID
	t.lrnQueue = t.lrnQueue[1:]
	card, err := t.st.GetCard(ctx, id)
	if err != nil {
		return nil, err
	}
	t.lrnCount = max(0, t.lrnCount-t.policy.learnWeight(card))
	return card, nil
}

// sortIntoLrn inserts a learning card keeping the queue ordered by due.
func (t *txn) sortIntoLrn(due, id int64) {
	i := sort.Search(len(t.lrnQueue), func(i int) bool { return t.lrnQueue[i].Due > due })
	t.lrnQueue = append(t.lrnQueue, storage.LearnEntry{})
	copy(t.lrnQueue[i+1:], t.lrnQueue[i:])
	t.lrnQueue[i] = storage.LearnEntry{Due: due, ID: id}
}

func (t *txn) fillLrnDay(ctx context.Context) (bool, error) {
	if t.lrnCount == 0 {
		return false, nil
	}
	if len(t.lrnDayQueue) > 0 {
		return true, nil
	}
	for len(t.lrnDids) > 0 {
		did := t.lrnDids[0]
		ids, err := t.st.DayLearnCardIDs(ctx, did, t.today, t.cfg.QueueLimit)
		if err != nil {
			return false, err
		}
		if len(ids) > 0 {
			t.shuffle(ids)
			t.lrnDayQueue = ids
			if len(ids) < t.cfg.QueueLimit {
				// Nothing more in this deck.
				t.lrnDids = t.lrnDids[1:]
			}
			return true, nil
		}
		t.lrnDids = t.lrnDids[1:]
	}
	return false, nil
}

func (t *txn) getLrnDayCard(ctx context.Context) (*domain.Card, error) {
	ok, err := t.fillLrnDay(ctx)
	if err != nil || !ok {
		return nil, err
	}
	id := t.lrnDayQueue[0]
	t.lrnDayQueue = t.lrnDayQueue[1:]
	t.lrnCount = max(0, t.lrnCount-1)
	return t.st.GetCard(ctx, id)
}

// Reviews

func (t *txn) resetRev(ctx context.Context) error {
	countOf := func(ctx context.Context, did int64, lim int) (int, error) {
		return t.st.CountReview(ctx, did, t.today, lim)
	}
	cnt, err := t.walkingCount(ctx, t.revLimitFor, countOf)
	if err != nil {
		return err
	}
	t.revCount = cnt
	t.revDids = append([]int64(nil), t.conf.ActiveDecks...)
	t.revQueue = nil
	return nil
}

func (t *txn) fillRev(ctx context.Context, recount bool) (bool, error) {
	if len(t.revQueue) > 0 {
		return true, nil
	}
	if t.revCount == 0 {
		return false, nil
	}
	for len(t.revDids) > 0 {
		did := t.revDids[0]
		lim, err := t.deckLimit(ctx, did, t.revLimitFor)
		if err != nil {
			return false, err
		}
		lim = min(t.cfg.QueueLimit, lim)
		if lim > 0 {
			ids, err := t.st.ReviewCardIDs(ctx, did, t.today, lim)
			if err != nil {
				return false, err
			}
			if len(ids) > 0 {
				deck, err := t.decks.Get(ctx, did)
				if err != nil {
					return false, err
				}
				// A filtered deck's due order encodes its priority.
				if !deck.Dynamic {
					t.shuffle(ids)
				}
				t.revQueue = ids
				return true, nil
			}
		}
		t.revDids = t.revDids[1:]
	}
	if t.revCount > 0 && recount {
		if err := t.resetRev(ctx); err != nil {
			return false, err
		}
		return t.fillRev(ctx, false)
	}
	return false, nil
}

func (t *txn) getRevCard(ctx context.Context) (*domain.Card, error) {
	ok, err := t.fillRev(ctx, true)
	if err != nil || !ok {
		return nil, err
	}
	id := t.revQueue[0]
	t.revQueue = t.revQueue[1:]
	t.revCount = max(0, t.revCount-1)
	return t.st.GetCard(ctx, id)
}

// nextCard picks the next card: due learning cards, then new cards when it is
// their turn, then reviews and interday learning, remaining new cards, and
// finally learning cards due within the collapse window.
func (t *txn) nextCard(ctx context.Context) (*domain.Card, error) {
	type source func(context.Context) (*domain.Card, error)

	lrnDue := func(ctx context.Context) (*domain.Card, error) { return t.getLrnCard(ctx, false) }
	lrnCollapsed := func(ctx context.Context) (*domain.Card, error) { return t.getLrnCard(ctx, true) }
	newIfDue := func(ctx context.Context) (*domain.Card, error) {
		if t.timeForNewCard() {
			return t.getNewCard(ctx)
		}
		return nil, nil
	}

	order := []source{lrnDue, newIfDue}
	if t.conf.DayLearnFirst {
		order = append(order, t.getLrnDayCard, t.getRevCard)
	} else {
		order = append(order, t.getRevCard, t.getLrnDayCard)
	}
	order = append(order, t.getNewCard, lrnCollapsed)

	for _, next := range order {
		card, err := next(ctx)
		if err != nil || card != nil {
			return card, err
		}
	}
	return nil, nil
}

// evict drops cards from every in-memory queue.
func (t *txn) evict(ids []int64) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	filter := func(q []int64) []int64 {
		kept := q[:0]
		for _, id := range q {
			if !drop[id] {
				kept = append(kept, id)
			}
		}
		return kept
	}
	t.newQueue = filter(t.newQueue)
	t.revQueue = filter(t.revQueue)
	t.lrnDayQueue = filter(t.lrnDayQueue)
	lrn := t.lrnQueue[:0]
	for _, e := range t.lrnQueue {
		if !drop[e.ID] {
			lrn = append(lrn, e)
		}
	}
	t.lrnQueue = lrn
}

// recount refreshes the three counts after a bulk change without discarding
// the queues.
func (t *txn) recount(ctx context.Context) error {
	if !t.haveQueues {
		return nil
	}
	newQ, lrnQ, dayQ, revQ := t.newQueue, t.lrnQueue, t.lrnDayQueue, t.revQueue
	newD, lrnD, revD := t.newDids, t.lrnDids, t.revDids
	if err := t.resetLrn(ctx); err != nil {
		return err
	}
	if err := t.resetRev(ctx); err != nil {
		return err
	}
	if err := t.resetNew(ctx); err != nil {
		return err
	}
	t.newQueue, t.lrnQueue, t.lrnDayQueue, t.revQueue = newQ, lrnQ, dayQ, revQ
	t.newDids, t.lrnDids, t.revDids = newD, lrnD, revD
	return nil
}
