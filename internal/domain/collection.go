package domain

// NewSpread controls how new cards mix with reviews.
type NewSpread int

const (
	NewSpreadDistribute NewSpread = iota
	NewSpreadLast
	NewSpreadFirst
)

// CollectionConf is the collection-wide configuration the scheduler persists.
type CollectionConf struct {
	NewSpread     NewSpread `json:"newSpread"`
	CollapseTime  int       `json:"collapseTime"`
	Rollover      int       `json:"rollover"`
	LastUnburied  int       `json:"lastUnburied"`
	DayLearnFirst bool      `json:"dayLearnFirst"`
	SchedVer      int       `json:"schedVer"`
	CurDeck       int64     `json:"curDeck"`
	ActiveDecks   []int64   `json:"activeDecks"`
	NextPos       int64     `json:"nextPos"`
}

// DefaultCollectionConf returns the configuration of a fresh collection.
func DefaultCollectionConf() CollectionConf {
	return CollectionConf{
		NewSpread:    NewSpreadDistribute,
		CollapseTime: 1200,
		Rollover:     4,
		SchedVer:     2,
		CurDeck:      1,
		ActiveDecks:  []int64{1},
		NextPos:      1,
	}
}
