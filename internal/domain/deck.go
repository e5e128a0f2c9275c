package domain

import "strings"

// DeckSeparator joins the levels of a hierarchical deck name.
const DeckSeparator = "::"

// DefaultPreviewDelay is the minutes a failed preview card waits.
const DefaultPreviewDelay = 10

// FilterOrder decides which matching cards a filtered deck pulls first.
type FilterOrder int

const (
	OrderOldest FilterOrder = iota
	OrderRandom
	OrderIntervalAsc
	OrderIntervalDesc
	OrderLapses
	OrderAdded
	OrderDue
	OrderReverseAdded
	OrderDuePriority
)

// FilterTerm is one search that feeds a filtered deck.
type FilterTerm struct {
	Search string      `json:"search"`
	Limit  int         `json:"limit"`
	Order  FilterOrder `json:"order"`
}

// DayCount is a daily counter stamped with the day it belongs to.
type DayCount struct {
	Day   int
	Count int
}

// On returns the count if it was recorded for today, otherwise zero.
func (d DayCount) On(today int) int {
	if d.Day != today {
		return 0
	}
	return d.Count
}

// CounterKind selects one of a deck's daily counters.
type CounterKind int

const (
	CounterNew CounterKind = iota
	CounterReview
	CounterLearn
	CounterTime
)

// Deck is a regular or filtered (dynamic) deck.
type Deck struct {
	ID      int64
	Name    string
	Dynamic bool
	ConfID  int64

	// Filtered decks only.
	Terms        []FilterTerm
	Resched      bool
	PreviewDelay int

	NewToday  DayCount
	RevToday  DayCount
	LrnToday  DayCount
	TimeToday DayCount
}

// Counter returns a pointer to the requested daily counter.
func (d *Deck) Counter(kind CounterKind) *DayCount {
	switch kind {
	case CounterNew:
		return &d.NewToday
	case CounterReview:
		return &d.RevToday
	case CounterLearn:
		return &d.LrnToday
	default:
		return &d.TimeToday
	}
}

// ResetStale zeroes every counter not stamped with today and reports whether anything changed.
func (d *Deck) ResetStale(today int) bool {
	changed := false
	for _, c := range []*DayCount{&d.NewToday, &d.RevToday, &d.LrnToday, &d.TimeToday} {
		if c.Day != today {
			*c = DayCount{Day: today}
			changed = true
		}
	}
	return changed
}

// ParentNames lists the names of every ancestor, root first.
func ParentNames(name string) []string {
	parts := strings.Split(name, DeckSeparator)
	parents := make([]string, 0, len(parts)-1)
	for i := 1; i < len(parts); i++ {
		parents = append(parents, strings.Join(parts[:i], DeckSeparator))
	}
	return parents
}

// BaseName is the last component of a deck name.
func BaseName(name string) string {
	if i := strings.LastIndex(name, DeckSeparator); i >= 0 {
		return name[i+len(DeckSeparator):]
	}
	return name
}

// IsDescendant reports whether name sits below ancestor in the hierarchy.
func IsDescendant(name, ancestor string) bool {
	return strings.HasPrefix(name, ancestor+DeckSeparator)
}
