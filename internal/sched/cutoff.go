package sched

import (
	"context"
	"time"
)

// rolloverHour is the local hour at which a new study day starts.
func (s *Scheduler) rolloverHour() int {
	h := s.conf.Rollover
	if h < 0 {
		h += 24
	}
	return min(max(h, 0), 23)
}

// studyDate is the calendar date of the study day t falls in.
func studyDate(t time.Time, hour int) time.Time {
	shifted := t.Add(-time.Duration(hour) * time.Hour)
	return time.Date(shifted.Year(), shifted.Month(), shifted.Day(), 0, 0, 0, 0, time.UTC)
}

// daysSince counts the study-day boundaries crossed between created and now.
func daysSince(created int64, now time.Time, hour int) int {
	start := studyDate(time.Unix(created, 0).In(now.Location()), hour)
	return int(studyDate(now, hour).Sub(start).Hours() / 24)
}

// nextCutoff is the unix time of the first rollover strictly after now.
func nextCutoff(now time.Time, hour int) int64 {
	d := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !d.After(now) {
		d = d.AddDate(0, 0, 1)
	}
	return d.Unix()
}

// updateCutoff recomputes today and the next rollover, clears stale daily
// counters and unburies cards once per day.
func (t *txn) updateCutoff(ctx context.Context) error {
	prev := t.today
	now := t.now()
	hour := t.rolloverHour()
	t.today = daysSince(t.created, now, hour)
	t.dayCutoff = nextCutoff(now, hour)
	if prev != t.today {
		t.logger.Debug("Study day changed", "today", t.today, "cutoff", t.dayCutoff)
	}

	all, err := t.decks.All(ctx)
	if err != nil {
		return err
	}
	for _, d := range all {
		if d.ResetStale(t.today) {
			if err := t.decks.Save(ctx, &d); err != nil {
				return err
			}
		}
	}

	if t.conf.LastUnburied < t.today {
		if _, err := t.unburyQueues(ctx, t.policy.rolloverUnbury, nil); err != nil {
			return err
		}
		t.conf.LastUnburied = t.today
		if err := t.st.SaveCollectionConf(ctx, t.conf); err != nil {
			return err
		}
	}
	return nil
}

// updateLrnCutoff moves the learning look-ahead forward when it has drifted
// by more than a minute, or when forced.
func (t *txn) updateLrnCutoff(force bool) bool {
	next := t.nowUnix() + int64(t.conf.CollapseTime)
	if next-t.lrnCutoff > 60 || force {
		t.lrnCutoff = next
		return true
	}
	return false
}
