package sched

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/storage"
	"github.com/conorfennell/knolsched/internal/undo"
)

const (
	maxTimeTaken    = 60 * time.Second
	revlogRetryWait = 10 * time.Millisecond
)

// AnswerCard records the answer to a card handed out by GetCard and
// reschedules it. On error the card is left as it was passed in.
func (s *Scheduler) AnswerCard(ctx context.Context, card *domain.Card, ease domain.Ease) error {
	snapshot := *card
	entry := undo.Entry{Kind: undo.Review, Cards: []domain.Card{snapshot}}

	err := s.inTx(ctx, func(t *txn) error {
		if err := t.checkDay(ctx); err != nil {
			return err
		}
		t.evict([]int64{card.ID})

		cc, err := t.cardConf(ctx, card)
		if err != nil {
			return err
		}
		if ease < domain.Again || int(ease) > t.answerButtons(card, cc) {
			return fmt.Errorf("%w: %d for card %d", ErrInvalidEase, ease, card.ID)
		}

		note, err := t.st.GetNote(ctx, card.NoteID)
		if err != nil {
			return err
		}
		entry.WasLeech = note.HasTag(domain.LeechTag)
		entry.Previewing = cc.previewing()

		if !t.cfg.BuryOnFetch {
			buried, err := t.burySiblings(ctx, card, cc)
			if err != nil {
				return err
			}
			entry.Buried = buried
		}

		if err := t.answerCard(ctx, card, cc, ease); err != nil {
			return err
		}

		card.Mod = t.nowUnix()
		if err := t.st.UpdateCard(ctx, card); err != nil {
			return err
		}
		entry.TimeDeck, entry.TimeTaken = card.DeckID, int(t.timeTaken(card))
		return t.decks.Bump(ctx, entry.TimeDeck, domain.CounterTime, t.today, entry.TimeTaken)
	})
	if err != nil {
		*card = snapshot
		return err
	}

	s.undo.Push(entry)
	s.metrics.Answer(snapshot.Queue.String(), int(ease))
	s.metrics.Due(s.newCount, s.lrnCount, s.revCount)
	s.logger.Debug("Answered card",
		"card", card.ID, "ease", ease, "queue", card.Queue, "due", card.Due, "ivl", card.Interval)
	return nil
}

// AnswerButtons returns how many answer buttons the card offers.
func (s *Scheduler) AnswerButtons(ctx context.Context, card *domain.Card) (int, error) {
	var n int
	err := s.inTx(ctx, func(t *txn) error {
		cc, err := t.cardConf(ctx, card)
		if err != nil {
			return err
		}
		n = t.answerButtons(card, cc)
		return nil
	})
	return n, err
}

func (t *txn) answerButtons(card *domain.Card, cc cardConf) int {
	if cc.previewing() {
		return 2
	}
	if card.Queue == domain.QueueReview {
		return 4
	}
	return t.policy.learnButtons
}

// checkDay rolls over to a new day without rebuilding queues otherwise.
func (t *txn) checkDay(ctx context.Context) error {
	if t.dayCutoff == 0 || t.nowUnix() > t.dayCutoff {
		return t.reset(ctx)
	}
	return nil
}

func (t *txn) answerCard(ctx context.Context, card *domain.Card, cc cardConf, ease domain.Ease) error {
	if cc.previewing() {
		return t.answerPreview(card, cc, ease)
	}

	card.Reps++

	if card.Queue == domain.QueueNew {
		card.Queue = domain.QueueLearning
		card.Type = domain.TypeLearning
		card.Left = t.startingLeft(cc.delays(card))
		if err := t.decks.Bump(ctx, card.DeckID, domain.CounterNew, t.today, 1); err != nil {
			return err
		}
	}

	var err error
	switch card.Queue {
	case domain.QueueLearning, domain.QueueDayLearn:
		err = t.answerLrnCard(ctx, card, cc, ease)
	case domain.QueueReview:
		if err := t.decks.Bump(ctx, card.DeckID, domain.CounterReview, t.today, 1); err != nil {
			return err
		}
		err = t.answerRevCard(ctx, card, cc, ease)
	default:
		return fmt.Errorf("%w: card %d is in queue %s", ErrInvalidQueue, card.ID, card.Queue)
	}
	if err != nil {
		return err
	}

	// The due a card had before it was pulled into a filtered deck no longer
	// applies once it has been answered there.
	if card.ODue > 0 {
		card.ODue = 0
	}
	return nil
}

// Preview

func (t *txn) answerPreview(card *domain.Card, cc cardConf, ease domain.Ease) error {
	switch ease {
	case domain.Again:
		now := t.nowUnix()
		card.Queue = domain.QueuePreview
		card.Due = now + cc.previewDelay()
		t.lrnCount++
		if card.Due < now+int64(t.conf.CollapseTime) {
			t.sortIntoLrn(card.Due, card.ID)
		}
		return nil
	case domain.Hard:
		if err := restorePreviewCard(card); err != nil {
			return err
		}
		removeFromFiltered(card)
		return nil
	}
	return fmt.Errorf("%w: %d for preview card %d", ErrInvalidEase, ease, card.ID)
}

// restorePreviewCard puts back the due and queue the card had before it was
// pulled into a filtered deck.
func restorePreviewCard(card *domain.Card) error {
	if card.ODeckID == 0 {
		return fmt.Errorf("%w: preview card %d has no home deck", ErrUnexpectedCard, card.ID)
	}
	card.Due = card.ODue
	card.Queue = card.RestoredQueue()
	return nil
}

// removeFromFiltered returns the card to its home deck.
func removeFromFiltered(card *domain.Card) {
	if card.ODeckID != 0 {
		card.DeckID = card.ODeckID
		card.ODue = 0
		card.ODeckID = 0
	}
}

// Learning

func (t *txn) answerLrnCard(ctx context.Context, card *domain.Card, cc cardConf, ease domain.Ease) error {
	delays := cc.delays(card)
	logType := domain.RevLogLearn
	if card.Type == domain.TypeReview || card.Type == domain.TypeRelearning {
		logType = domain.RevLogRelearn
	}

	lastLeft := card.Left
	leaving := false

	switch t.policy.learnEase(ease) {
	case domain.Easy:
		t.rescheduleAsRev(card, cc, true)
		leaving = true
	case domain.Good:
		if card.Left%1000-1 <= 0 {
			t.rescheduleAsRev(card, cc, false)
			leaving = true
		} else {
			t.moveToNextStep(card, delays)
		}
	case domain.Hard:
		t.rescheduleLrnCardAfter(card, delayForRepeatingGrade(delays, card.Left))
	default:
		t.moveToFirstStep(card, cc)
	}

	lastIvl := -delayForGrade(delays, lastLeft)
	ivl := card.Interval
	if !leaving {
		ivl = -delayForGrade(delays, card.Left)
	}
	return t.log(ctx, card, ease, ivl, lastIvl, logType)
}

func (t *txn) moveToFirstStep(card *domain.Card, cc cardConf) int {
	delays := cc.delays(card)
	card.Left = t.startingLeft(delays)
	if card.Type == domain.TypeRelearning {
		updateRevIvlOnFail(card, cc.conf)
	}
	return t.rescheduleLrnCardAfter(card, delayForGrade(delays, card.Left))
}

func (t *txn) moveToNextStep(card *domain.Card, delays []float64) {
	left := card.Left%1000 - 1
	card.Left = t.leftToday(delays, left)*1000 + left
	t.rescheduleLrnCardAfter(card, delayForGrade(delays, card.Left))
}

// rescheduleLrnCardAfter makes the card due delay seconds from now, in the
// learning queue if that is before the day cutoff and in day learning otherwise.
func (t *txn) rescheduleLrnCardAfter(card *domain.Card, delay int) int {
	now := t.nowUnix()
	card.Due = now + int64(delay)

	if card.Due >= t.dayCutoff {
		ahead := (card.Due-t.dayCutoff)/86400 + 1
		card.Due = int64(t.today) + ahead
		card.Queue = domain.QueueDayLearn
		return delay
	}

	// Up to five minutes or a quarter of the delay.
	if maxExtra := min(300, delay/4); maxExtra > 0 {
		card.Due += int64(t.cfg.Rand.Intn(maxExtra))
	}
	card.Due = min(t.dayCutoff-1, card.Due)
	card.Queue = domain.QueueLearning

	if card.Due < now+int64(t.conf.CollapseTime) {
		t.lrnCount += t.policy.learnWeight(card)
		// Avoid showing the same card twice in a row when nothing else is left.
		if len(t.lrnQueue) > 0 && t.revCount == 0 && t.newCount == 0 {
			card.Due = max(card.Due, t.lrnQueue[0].Due+1)
		}
		t.sortIntoLrn(card.Due, card.ID)
	}
	return delay
}

func (t *txn) rescheduleAsRev(card *domain.Card, cc cardConf, early bool) {
	if card.Type == domain.TypeReview || card.Type == domain.TypeRelearning {
		card.Due = int64(t.today + card.Interval)
	} else {
		card.Interval = t.graduatingIvl(card, cc.conf, early, true)
		card.Due = int64(t.today + card.Interval)
		card.Factor = cc.conf.New.InitialFactor
	}
	card.Type = domain.TypeReview
	card.Queue = domain.QueueReview
	removeFromFiltered(card)
}

func updateRevIvlOnFail(card *domain.Card, conf *domain.DeckConfig) {
	card.LastInterval = card.Interval
	card.Interval = lapseIvl(card, conf)
}

// Review log

// timeTaken is how long the card has been on screen, in milliseconds, capped at a minute.
func (t *txn) timeTaken(card *domain.Card) int64 {
	if card.Shown.IsZero() {
		return 0
	}
	d := t.cfg.Clock().Sub(card.Shown)
	return min(max(d, 0), maxTimeTaken).Milliseconds()
}

// log appends a review log entry. Entries are keyed by the answer time in
// milliseconds; on a clash the id is moved forward until it is free.
func (t *txn) log(ctx context.Context, card *domain.Card, ease domain.Ease, ivl, lastIvl int, typ domain.RevLogType) error {
	entry := domain.RevLogEntry{
		ID:           t.cfg.Clock().UnixMilli(),
		CardID:       card.ID,
		Ease:         ease,
		Interval:     ivl,
		LastInterval: lastIvl,
		Factor:       card.Factor,
		TimeTaken:    int(t.timeTaken(card)),
		Type:         typ,
	}
	for {
		err := t.st.InsertRevlog(ctx, &entry)
		if !errors.Is(err, storage.ErrDuplicate) {
			return err
		}
		t.logger.Debug("Review log id taken, retrying", "id", entry.ID, "card", card.ID)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(revlogRetryWait):
		}
		entry.ID = max(t.cfg.Clock().UnixMilli(), entry.ID+1)
	}
}
