// Package undo keeps a bounded history of reversible scheduling operations.
package undo

import "github.com/conorfennell/knolsched/internal/domain"

// Capacity is the number of entries kept before the oldest is dropped.
const Capacity = 20

// Kind identifies the operation an entry reverses.
type Kind int

const (
	None Kind = iota
	Review
	Suspend
	Bury
	Delete
	ChangeDeck
	Reposition
	Reschedule
	Reset
)

func (k Kind) String() string {
	switch k {
	case Review:
		return "review"
	case Suspend:
		return "suspend"
	case Bury:
		return "bury"
	case Delete:
		return "delete"
	case ChangeDeck:
		return "change_deck"
	case Reposition:
		return "reposition"
	case Reschedule:
		return "reschedule"
	case Reset:
		return "reset"
	}
	return "none"
}

// Entry is the state needed to reverse one operation.
type Entry struct {
	Kind Kind
	// Cards are snapshots taken before the operation ran.
	Cards []domain.Card
	// Notes are snapshots of notes removed by a Delete.
	Notes []domain.Note

	// Review only.
	WasLeech   bool
	Previewing bool
	Buried     []int64
	// TimeDeck had TimeTaken milliseconds added to its daily study time.
	TimeDeck  int64
	TimeTaken int
}

// Log is a fixed-size ring of entries; pushing onto a full log evicts the oldest.
type Log struct {
	buf   []Entry
	start int
	n     int
}

// New returns an empty log holding at most capacity entries.
func New(capacity int) *Log {
	if capacity < 1 {
		capacity = Capacity
	}
	return &Log{buf: make([]Entry, capacity)}
}

// Push records an entry.
func (l *Log) Push(e Entry) {
	if l.n == len(l.buf) {
		l.buf[l.start] = Entry{}
		l.start = (l.start + 1) % len(l.buf)
		l.n--
	}
	l.buf[(l.start+l.n)%len(l.buf)] = e
	l.n++
}

// Pop removes and returns the newest entry.
func (l *Log) Pop() (Entry, bool) {
	if l.n == 0 {
		return Entry{}, false
	}
	i := (l.start + l.n - 1) % len(l.buf)
	e := l.buf[i]
	l.buf[i] = Entry{}
	l.n--
	return e, true
}

// Peek returns the newest entry without removing it.
func (l *Log) Peek() (Entry, bool) {
	if l.n == 0 {
		return Entry{}, false
	}
	return l.buf[(l.start+l.n-1)%len(l.buf)], true
}

// Len returns the number of entries held.
func (l *Log) Len() int {
	return l.n
}

// Clear drops every entry.
func (l *Log) Clear() {
	for i := range l.buf {
		l.buf[i] = Entry{}
	}
	l.start, l.n = 0, 0
}
