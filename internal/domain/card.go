package domain

import "time"

// CardType is the learning stage a card has reached.
type CardType int

const (
	TypeNew CardType = iota
	TypeLearning
	TypeReview
	TypeRelearning
)

func (t CardType) String() string {
	switch t {
	case TypeNew:
		return "new"
	case TypeLearning:
		return "learning"
	case TypeReview:
		return "review"
	case TypeRelearning:
		return "relearning"
	}
	return "unknown"
}

// Queue is where a card currently waits. Negative queues keep a card out of study.
type Queue int

const (
	QueueManuallyBuried Queue = -3
	QueueSiblingBuried  Queue = -2
	QueueSuspended      Queue = -1
	QueueNew            Queue = 0
	QueueLearning       Queue = 1
	QueueReview         Queue = 2
	QueueDayLearn       Queue = 3
	QueuePreview        Queue = 4
)

func (q Queue) String() string {
	switch q {
	case QueueManuallyBuried:
		return "manually_buried"
	case QueueSiblingBuried:
		return "sibling_buried"
	case QueueSuspended:
		return "suspended"
	case QueueNew:
		return "new"
	case QueueLearning:
		return "learning"
	case QueueReview:
		return "review"
	case QueueDayLearn:
		return "day_learn"
	case QueuePreview:
		return "preview"
	}
	return "unknown"
}

// Buried reports whether the queue is one of the two bury queues.
func (q Queue) Buried() bool {
	return q == QueueSiblingBuried || q == QueueManuallyBuried
}

// Ease is the answer button pressed for a card:
// 1: Again (failed)
// 2: Hard
// 3: Good
// 4: Easy
type Ease int

const (
	Again Ease = iota + 1
	Hard
	Good
	Easy
)

// StartingFactor is the ease factor, in permille, given to cards with no history.
const StartingFactor = 2500

// learnDueThreshold separates day indexes from unix timestamps in a due value.
const learnDueThreshold = 1_000_000_000

// Card holds the scheduling state of a single card.
type Card struct {
	ID       int64    `db:"id"`
	NoteID   int64    `db:"nid"`
	DeckID   int64    `db:"did"`
	Ord      int      `db:"ord"`
	Mod      int64    `db:"mod"`
	Type     CardType `db:"type"`
	Queue    Queue    `db:"queue"`
	Due      int64    `db:"due"`
	Interval int      `db:"ivl"`
	Factor   int      `db:"factor"`
	Reps     int      `db:"reps"`
	Lapses   int      `db:"lapses"`
	Left     int      `db:"steps_left"`
	ODue     int64    `db:"odue"`
	ODeckID  int64    `db:"odid"`
	Flags    int      `db:"flags"`

	// LastInterval is the interval before the latest answer. Not persisted.
	LastInterval int `db:"-"`
	// Shown is when the card was handed out for review. Not persisted.
	Shown time.Time `db:"-"`
}

// InFiltered reports whether the card is parked in a filtered deck.
func (c *Card) InFiltered() bool {
	return c.ODeckID != 0
}

// HomeDeckID is the deck whose options govern the card.
func (c *Card) HomeDeckID() int64 {
	if c.ODeckID != 0 {
		return c.ODeckID
	}
	return c.DeckID
}

// RestoredQueue is the queue a suspended, buried or parked card goes back to.
func (c *Card) RestoredQueue() Queue {
	switch c.Type {
	case TypeNew:
		return QueueNew
	case TypeLearning, TypeRelearning:
		due := c.Due
		if c.ODue != 0 {
			due = c.ODue
		}
		if due > learnDueThreshold {
			return QueueLearning
		}
		return QueueDayLearn
	default:
		return QueueReview
	}
}

// RevLogType classifies a review log entry.
type RevLogType int

const (
	RevLogLearn RevLogType = iota
	RevLogReview
	RevLogRelearn
	RevLogEarly
)

// RevLogEntry records a single answer. ID is the answer time in milliseconds.
type RevLogEntry struct {
	ID           int64      `db:"id"`
	CardID       int64      `db:"cid"`
	Ease         Ease       `db:"ease"`
	Interval     int        `db:"ivl"`
	LastInterval int        `db:"last_ivl"`
	Factor       int        `db:"factor"`
	TimeTaken    int        `db:"time"`
	Type         RevLogType `db:"type"`
}
