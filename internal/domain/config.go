package domain

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig is returned when stored options cannot drive the scheduler.
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New()

// LeechAction is what happens to a card once it becomes a leech.
type LeechAction int

const (
	LeechSuspend LeechAction = iota
	LeechTagOnly
)

// NewOrder is how new cards are positioned when added or resorted.
type NewOrder int

const (
	NewCardsRandom NewOrder = iota
	NewCardsDue
)

// NewConfig holds the options for cards that have not graduated yet.
type NewConfig struct {
	Delays        []float64 `json:"delays" validate:"dive,gt=0"`
	Ints          []int     `json:"ints" validate:"min=2,dive,gte=1"`
	InitialFactor int       `json:"initialFactor" validate:"gte=1300"`
	PerDay        int       `json:"perDay" validate:"gte=0"`
	Order         NewOrder  `json:"order" validate:"gte=0,lte=1"`
	Bury          bool      `json:"bury"`
}

// LapseConfig holds the options for review cards that were forgotten.
type LapseConfig struct {
	Delays      []float64   `json:"delays" validate:"dive,gt=0"`
	Mult        float64     `json:"mult" validate:"gte=0,lte=1"`
	MinInt      int         `json:"minInt" validate:"gte=1"`
	LeechFails  int         `json:"leechFails" validate:"gte=0"`
	LeechAction LeechAction `json:"leechAction" validate:"oneof=0 1"`
}

// RevConfig holds the options for review cards.
type RevConfig struct {
	PerDay     int     `json:"perDay" validate:"gte=0"`
	Ease4      float64 `json:"ease4" validate:"gte=1"`
	IvlFct     float64 `json:"ivlFct" validate:"gt=0"`
	MaxIvl     int     `json:"maxIvl" validate:"gte=1"`
	HardFactor float64 `json:"hardFactor" validate:"gt=0"`
	Bury       bool    `json:"bury"`
}

// DeckConfig is an option group shared by any number of decks.
type DeckConfig struct {
	ID    int64       `json:"id"`
	Name  string      `json:"name" validate:"required"`
	New   NewConfig   `json:"new"`
	Lapse LapseConfig `json:"lapse"`
	Rev   RevConfig   `json:"rev"`
}

// DefaultDeckConfig returns the options a fresh collection starts with.
func DefaultDeckConfig() DeckConfig {
	return DeckConfig{
		ID:   1,
		Name: "Default",
		New: NewConfig{
			Delays:        []float64{1, 10},
			Ints:          []int{1, 4, 7},
			InitialFactor: StartingFactor,
			PerDay:        20,
			Order:         NewCardsDue,
			Bury:          true,
		},
		Lapse: LapseConfig{
			Delays:      []float64{10},
			Mult:        0,
			MinInt:      1,
			LeechFails:  8,
			LeechAction: LeechSuspend,
		},
		Rev: RevConfig{
			PerDay:     200,
			Ease4:      1.3,
			IvlFct:     1,
			MaxIvl:     36500,
			HardFactor: 1.2,
			Bury:       true,
		},
	}
}

// ApplyDefaults fills the optional fields that have a documented fallback.
func (c *DeckConfig) ApplyDefaults() {
	if c.Rev.HardFactor == 0 {
		c.Rev.HardFactor = 1.2
	}
	if c.Rev.IvlFct == 0 {
		c.Rev.IvlFct = 1
	}
}

// Validate checks every field the scheduler reads.
func (c *DeckConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: deck config %d: %v", ErrInvalidConfig, c.ID, err)
	}
	return nil
}
