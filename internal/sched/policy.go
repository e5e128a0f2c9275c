package sched

import (
	"fmt"

	"github.com/conorfennell/knolsched/internal/domain"
)

// policy holds the few rules that differ between scheduler versions 1 and 2.
type policy struct {
	version int
	// relearnType is the type a lapsed card takes while it works through its relearning steps.
	relearnType domain.CardType
	// learnButtons is how many buttons a learning card offers.
	learnButtons int
	// manualBury is the queue a user-requested bury moves cards to.
	manualBury domain.Queue
	// rolloverUnbury lists the queues emptied at the start of a new day.
	rolloverUnbury []domain.Queue
	// countSteps counts learning cards by remaining steps instead of by card.
	countSteps bool
	// legacyHard uses the fixed 1.2 multiplier plus a quarter of the delay for Hard reviews.
	legacyHard bool
}

func policyFor(version int) (policy, error) {
	switch version {
	case 1:
		return policy{
			version:        1,
			relearnType:    domain.TypeReview,
			learnButtons:   3,
			manualBury:     domain.QueueSiblingBuried,
			rolloverUnbury: []domain.Queue{domain.QueueSiblingBuried},
			countSteps:     true,
			legacyHard:     true,
		}, nil
	case 2:
		return policy{
			version:        2,
			relearnType:    domain.TypeRelearning,
			learnButtons:   4,
			manualBury:     domain.QueueManuallyBuried,
			rolloverUnbury: []domain.Queue{domain.QueueSiblingBuried, domain.QueueManuallyBuried},
		}, nil
	}
	return policy{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
}

// learnEase maps a learning-card button onto the four-button scale.
func (p policy) learnEase(e domain.Ease) domain.Ease {
	if p.learnButtons == 3 && e > domain.Again {
		return e + 1
	}
	return e
}

// learnWeight is how much a learning card contributes to the learning count.
func (p policy) learnWeight(card *domain.Card) int {
	if p.countSteps {
		return max(card.Left/1000, 1)
	}
	return 1
}
