package sched

import (
	"context"
	"math"

	"github.com/conorfennell/knolsched/internal/domain"
)

// minFactor is the lowest ease factor a card can reach.
const minFactor = 1300

// fuzzRange returns the inclusive band a fuzzed interval is drawn from.
func fuzzRange(ivl int) (int, int) {
	if ivl < 2 {
		return 1, 1
	}
	if ivl == 2 {
		return 2, 3
	}
	var fuzz int
	switch {
	case ivl < 7:
		fuzz = int(float64(ivl) * 0.25)
	case ivl < 30:
		fuzz = max(2, int(float64(ivl)*0.15))
	default:
		fuzz = max(4, int(float64(ivl)*0.05))
	}
	fuzz = max(fuzz, 1)
	return ivl - fuzz, ivl + fuzz
}

// fuzzedIvl picks an interval uniformly from fuzzRange(ivl).
func (s *Scheduler) fuzzedIvl(ivl int) int {
	lo, hi := fuzzRange(ivl)
	return lo + s.cfg.Rand.Intn(hi-lo+1)
}

// constrainedIvl scales ivl by the deck's interval factor, optionally fuzzes
// it, keeps it above prev and caps it at the maximum interval.
func (s *Scheduler) constrainedIvl(ivl float64, conf *domain.DeckConfig, prev float64, fuzz bool) int {
	newIvl := int(ivl * conf.Rev.IvlFct)
	if fuzz {
		newIvl = s.fuzzedIvl(newIvl)
	}
	newIvl = int(math.Max(math.Max(float64(newIvl), prev+1), 1))
	return min(newIvl, conf.Rev.MaxIvl)
}

// daysLate is how many days past its due day a review card is being answered.
func (s *Scheduler) daysLate(card *domain.Card) int {
	due := card.Due
	if card.ODeckID != 0 {
		due = card.ODue
	}
	return max(0, s.today-int(due))
}

// nextRevIvl is the interval in days for a review card answered Hard, Good or Easy.
func (s *Scheduler) nextRevIvl(card *domain.Card, conf *domain.DeckConfig, ease domain.Ease, fuzz bool) int {
	delay := s.daysLate(card)
	fct := float64(card.Factor) / 1000
	ivl := card.Interval

	var hard int
	if s.policy.legacyHard {
		hard = s.constrainedIvl(float64(ivl+delay/4)*1.2, conf, float64(ivl), fuzz)
	} else {
		hardMin := 0.0
		if conf.Rev.HardFactor > 1 {
			hardMin = float64(ivl)
		}
		hard = s.constrainedIvl(float64(ivl)*conf.Rev.HardFactor, conf, hardMin, fuzz)
	}
	if ease == domain.Hard {
		return hard
	}

	good := s.constrainedIvl(float64(ivl+delay/2)*fct, conf, float64(hard), fuzz)
	if ease == domain.Good {
		return good
	}

	return s.constrainedIvl(float64(ivl+delay)*fct*conf.Rev.Ease4, conf, float64(good), fuzz)
}

// earlyReviewIvl is the interval for a review card answered before its due
// day inside a filtered deck. The ease factor is divided in whole thousands.
func (s *Scheduler) earlyReviewIvl(card *domain.Card, conf *domain.DeckConfig, ease domain.Ease) (int, error) {
	if card.ODeckID == 0 || card.Type != domain.TypeReview || card.Factor == 0 {
		return 0, ErrUnexpectedCard
	}
	if ease <= domain.Again {
		return 0, ErrInvalidEase
	}

	elapsed := float64(int64(card.Interval) - (card.ODue - int64(s.today)))

	easyBonus := 1.0
	// Good and Easy never shorten the previous interval.
	minNewIvl := 1.0

	var factor float64
	switch ease {
	case domain.Hard:
		factor = conf.Rev.HardFactor
		// Hard never cuts more than half of the normal factor.
		minNewIvl = factor / 2
	case domain.Good:
		factor = float64(card.Factor / 1000)
	default:
		factor = float64(card.Factor / 1000)
		ease4 := conf.Rev.Ease4
		// 1.3 -> 1.15
		easyBonus = ease4 - (ease4-1)/2
	}

	ivl := math.Max(elapsed*factor, 1)
	ivl = math.Max(float64(card.Interval)*minNewIvl, ivl) * easyBonus

	return s.constrainedIvl(ivl, conf, 0, false), nil
}

// lapseIvl is the interval a forgotten review card restarts from.
func lapseIvl(card *domain.Card, conf *domain.DeckConfig) int {
	return max(1, max(conf.Lapse.MinInt, int(float64(card.Interval)*conf.Lapse.Mult)))
}

// graduatingIvl is the first review interval of a card leaving learning.
// Lapsed cards keep the interval they were given when they lapsed.
func (s *Scheduler) graduatingIvl(card *domain.Card, conf *domain.DeckConfig, early, fuzz bool) int {
	if card.Type == domain.TypeReview || card.Type == domain.TypeRelearning {
		return card.Interval
	}
	ideal := conf.New.Ints[0]
	if early {
		ideal = conf.New.Ints[1]
	}
	if fuzz {
		ideal = s.fuzzedIvl(ideal)
	}
	return ideal
}

// delayForGrade is the delay in seconds of the step that leaves steps remaining.
// Out-of-range positions fall back to the first step, or one minute without steps.
func delayForGrade(delays []float64, left int) int {
	left %= 1000
	var delay float64
	switch idx := len(delays) - left; {
	case idx >= 0 && idx < len(delays):
		delay = delays[idx]
	case len(delays) > 0:
		delay = delays[0]
	default:
		delay = 1
	}
	return int(delay * 60)
}

// delayForRepeatingGrade is the Hard delay: halfway between this step and the next.
func delayForRepeatingGrade(delays []float64, left int) int {
	delay1 := delayForGrade(delays, left)
	var delay2 int
	if len(delays) > 1 {
		delay2 = delayForGrade(delays, left-1)
	} else {
		delay2 = delay1 * 2
	}
	return (delay1 + max(delay1, delay2)) / 2
}

// leftToday counts how many of the remaining steps can be finished before the day cutoff.
func (s *Scheduler) leftToday(delays []float64, left int) int {
	now := s.nowUnix()
	offset := min(left, len(delays))
	ok := 0
	for i := 0; i < offset; i++ {
		now += int64(delays[len(delays)-offset+i] * 60)
		if now > s.dayCutoff {
			break
		}
		ok = i
	}
	return ok + 1
}

// startingLeft packs the step counters for a card entering learning.
func (s *Scheduler) startingLeft(delays []float64) int {
	tot := len(delays)
	tod := s.leftToday(delays, tot)
	return tot + tod*1000
}

// NextIvl returns the seconds until the card would be shown again if answered
// with ease, without fuzz. Zero means the card leaves the study queues.
func (s *Scheduler) NextIvl(ctx context.Context, card *domain.Card, ease domain.Ease) (int64, error) {
	var secs int64
	err := s.inTx(ctx, func(t *txn) error {
		if err := t.ready(ctx); err != nil {
			return err
		}
		cc, err := t.cardConf(ctx, card)
		if err != nil {
			return err
		}
		secs, err = t.nextIvl(card, cc, ease)
		return err
	})
	return secs, err
}

func (s *Scheduler) nextIvl(card *domain.Card, cc cardConf, ease domain.Ease) (int64, error) {
	conf := cc.conf
	if cc.previewing() {
		if ease == domain.Again {
			return cc.previewDelay(), nil
		}
		return 0, nil
	}
	switch card.Queue {
	case domain.QueueNew, domain.QueueLearning, domain.QueueDayLearn:
		return s.nextLrnIvl(card, cc, s.policy.learnEase(ease)), nil
	}
	if ease == domain.Again {
		if len(conf.Lapse.Delays) > 0 {
			return int64(conf.Lapse.Delays[0] * 60), nil
		}
		return int64(lapseIvl(card, conf)) * 86400, nil
	}
	if card.ODeckID != 0 && card.ODue > int64(s.today) {
		ivl, err := s.earlyReviewIvl(card, conf, ease)
		return int64(ivl) * 86400, err
	}
	return int64(s.nextRevIvl(card, conf, ease, false)) * 86400, nil
}

func (s *Scheduler) nextLrnIvl(card *domain.Card, cc cardConf, ease domain.Ease) int64 {
	c := *card
	delays := cc.delays(&c)
	if c.Queue == domain.QueueNew {
		c.Left = s.startingLeft(delays)
	}
	switch ease {
	case domain.Again:
		return int64(delayForGrade(delays, len(delays)))
	case domain.Hard:
		return int64(delayForRepeatingGrade(delays, c.Left))
	case domain.Easy:
		return int64(s.graduatingIvl(&c, cc.conf, true, false)) * 86400
	}
	left := c.Left%1000 - 1
	if left <= 0 {
		return int64(s.graduatingIvl(&c, cc.conf, false, false)) * 86400
	}
	return int64(delayForGrade(delays, left))
}
