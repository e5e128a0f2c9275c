package sched

import (
	"context"

	"github.com/conorfennell/knolsched/internal/domain"
)

// factorDelta is the ease factor change for Hard, Good and Easy.
var factorDelta = [...]int{-150, 0, 150}

func (t *txn) answerRevCard(ctx context.Context, card *domain.Card, cc cardConf, ease domain.Ease) error {
	early := card.ODeckID != 0 && card.ODue > int64(t.today)
	logType := domain.RevLogReview
	if early {
		logType = domain.RevLogEarly
	}

	delay := 0
	if ease == domain.Again {
		var err error
		if delay, err = t.rescheduleLapse(ctx, card, cc); err != nil {
			return err
		}
	} else if err := t.rescheduleRev(card, cc, ease, early); err != nil {
		return err
	}

	ivl := card.Interval
	if delay != 0 {
		ivl = -delay
	}
	return t.log(ctx, card, ease, ivl, card.LastInterval, logType)
}

// rescheduleLapse handles a failed review and returns the relearning delay
// in seconds, or 0 when the card goes straight back to review.
func (t *txn) rescheduleLapse(ctx context.Context, card *domain.Card, cc cardConf) (int, error) {
	conf := cc.conf
	card.Lapses++
	card.Factor = max(minFactor, card.Factor-200)

	leech, err := t.checkLeech(ctx, card, conf)
	if err != nil {
		return 0, err
	}
	suspended := leech && card.Queue == domain.QueueSuspended

	if len(conf.Lapse.Delays) > 0 && !suspended {
		card.Type = t.policy.relearnType
		if card.Type != domain.TypeRelearning {
			updateRevIvlOnFail(card, conf)
		}
		return t.moveToFirstStep(card, cc), nil
	}

	updateRevIvlOnFail(card, conf)
	t.rescheduleAsRev(card, cc, false)
	if suspended {
		card.Queue = domain.QueueSuspended
	}
	return 0, nil
}

func (t *txn) rescheduleRev(card *domain.Card, cc cardConf, ease domain.Ease, early bool) error {
	card.LastInterval = card.Interval
	if early {
		ivl, err := t.earlyReviewIvl(card, cc.conf, ease)
		if err != nil {
			return err
		}
		card.Interval = ivl
	} else {
		card.Interval = t.nextRevIvl(card, cc.conf, ease, true)
	}

	card.Factor = max(minFactor, card.Factor+factorDelta[ease-domain.Hard])
	card.Due = int64(t.today + card.Interval)

	removeFromFiltered(card)
	return nil
}
