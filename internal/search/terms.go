package search

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/conorfennell/knolsched/internal/domain"
)

// Env carries the day values that date-relative terms depend on.
type Env struct {
	Today     int
	DayCutoff int64
}

func (p *parser) bind(args ...any) {
	p.args = append(p.args, args...)
}

func (p *parser) term(text string) (string, error) {
	key, val, ok := strings.Cut(text, ":")
	if !ok || val == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownTerm, text)
	}
	switch strings.ToLower(key) {
	case "is":
		return p.isTerm(strings.ToLower(val))
	case "deck":
		return p.deckTerm(val), nil
	case "tag":
		p.bind("% " + likePattern(val) + " %")
		return `(' ' || n.tags || ' ') LIKE ? ESCAPE '\'`, nil
	case "flag":
		n, err := strconv.Atoi(val)
		if err != nil || n < 0 || n > 7 {
			return "", fmt.Errorf("%w: flag %q", ErrUnknownTerm, val)
		}
		p.bind(n)
		return "(c.flags & 7) = ?", nil
	case "prop":
		return p.propTerm(val)
	case "cid", "nid":
		return p.idTerm(strings.ToLower(key), val)
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTerm, text)
}

func (p *parser) isTerm(val string) (string, error) {
	switch val {
	case "due":
		p.bind(domain.QueueReview, domain.QueueDayLearn, p.env.Today, domain.QueueLearning, p.env.DayCutoff)
		return "((c.queue IN (?, ?) AND c.due <= ?) OR (c.queue = ? AND c.due <= ?))", nil
	case "new":
		p.bind(domain.TypeNew)
		return "c.type = ?", nil
	case "learn":
		p.bind(domain.QueueLearning, domain.QueueDayLearn)
		return "c.queue IN (?, ?)", nil
	case "review":
		p.bind(domain.TypeReview, domain.TypeRelearning)
		return "c.type IN (?, ?)", nil
	case "suspended":
		p.bind(domain.QueueSuspended)
		return "c.queue = ?", nil
	case "buried":
		p.bind(domain.QueueSiblingBuried, domain.QueueManuallyBuried)
		return "c.queue IN (?, ?)", nil
	}
	return "", fmt.Errorf("%w: is:%s", ErrUnknownTerm, val)
}

// deckTerm matches a deck and its descendants, including cards parked
// elsewhere whose home is that deck. "filtered" matches any filtered deck.
func (p *parser) deckTerm(val string) string {
	if strings.EqualFold(val, "filtered") {
		return "d.dyn = 1"
	}
	pat := likePattern(val)
	p.bind(pat, pat+domain.DeckSeparator+"%", pat, pat+domain.DeckSeparator+"%")
	return `(c.did IN (SELECT id FROM decks WHERE name LIKE ? ESCAPE '\' OR name LIKE ? ESCAPE '\')` +
		` OR c.odid IN (SELECT id FROM decks WHERE name LIKE ? ESCAPE '\' OR name LIKE ? ESCAPE '\'))`
}

var propOps = []string{">=", "<=", "!=", ">", "<", "="}

func (p *parser) propTerm(val string) (string, error) {
	var field, op, num string
	for _, candidate := range propOps {
		if i := strings.Index(val, candidate); i > 0 {
			field, op, num = strings.ToLower(val[:i]), candidate, val[i+len(candidate):]
			break
		}
	}
	if op == "" {
		return "", fmt.Errorf("%w: prop:%s", ErrUnknownTerm, val)
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return "", fmt.Errorf("%w: prop:%s", ErrUnknownTerm, val)
	}
	switch field {
	case "ivl":
		p.bind(n)
		return "c.ivl " + op + " ?", nil
	case "reps":
		p.bind(n)
		return "c.reps " + op + " ?", nil
	case "lapses":
		p.bind(n)
		return "c.lapses " + op + " ?", nil
	case "ease":
		p.bind(n)
		return "(c.factor / 1000.0) " + op + " ?", nil
	case "due":
		p.bind(domain.QueueReview, domain.QueueDayLearn, p.env.Today, n)
		return "(c.queue IN (?, ?) AND (c.due - ?) " + op + " ?)", nil
	}
	return "", fmt.Errorf("%w: prop:%s", ErrUnknownTerm, val)
}

func (p *parser) idTerm(key, val string) (string, error) {
	parts := strings.Split(val, ",")
	marks := make([]string, len(parts))
	for i, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return "", fmt.Errorf("%w: %s:%s", ErrUnknownTerm, key, val)
		}
		p.bind(id)
		marks[i] = "?"
	}
	col := "c.id"
	if key == "nid" {
		col = "c.nid"
	}
	return col + " IN (" + strings.Join(marks, ", ") + ")", nil
}

// likePattern escapes LIKE metacharacters and turns '*' into '%'.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `*`, `%`)
	return r.Replace(s)
}
