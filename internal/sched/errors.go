package sched

import "errors"

var (
	// ErrInvalidQueue means a card was found in a queue it cannot be answered from.
	ErrInvalidQueue = errors.New("invalid card queue")
	// ErrUnsupportedVersion aborts opening a collection with an unknown scheduler version.
	ErrUnsupportedVersion = errors.New("unsupported scheduler version")
	// ErrInvalidEase is returned for an answer button the card does not offer.
	ErrInvalidEase = errors.New("invalid ease")
	// ErrNotFiltered is returned when a filtered-deck operation targets a regular deck.
	ErrNotFiltered = errors.New("not a filtered deck")
	// ErrFilteredDeck is returned when a regular-deck operation targets a filtered deck.
	ErrFilteredDeck = errors.New("deck is a filtered deck")
	// ErrUnexpectedCard is returned when a card's state contradicts the operation.
	ErrUnexpectedCard = errors.New("unexpected card state")
	// ErrInvalidRange is returned for an empty or negative interval range.
	ErrInvalidRange = errors.New("invalid interval range")
)

// Outcome reports how an operation that can legitimately do nothing ended.
// Faults are returned as errors instead.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNothingToStudy
	OutcomeNothingToUndo
	OutcomeNeedsConfirmation
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNothingToStudy:
		return "nothing to study"
	case OutcomeNothingToUndo:
		return "nothing to undo"
	case OutcomeNeedsConfirmation:
		return "needs confirmation"
	}
	return "unknown"
}
