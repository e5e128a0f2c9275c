// Package search finds cards matching a free-text query in a requested order.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/conorfennell/knolsched/internal/domain"
)

// Source runs a compiled card query. storage.DB satisfies it.
type Source interface {
	SelectCardIDs(ctx context.Context, where, order string, limit int, args ...any) ([]int64, error)
}

// Order says how matches are ranked and how many are kept. A zero Limit keeps all.
type Order struct {
	By    domain.FilterOrder
	Limit int
}

// Finder resolves queries to card ids.
type Finder struct {
	logger *slog.Logger
}

// NewFinder returns a Finder. A nil logger uses slog.Default().
func NewFinder(logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{logger: logger}
}

// Find returns the ids of the cards matching query. A query that cannot be
// parsed matches nothing; only store failures and cancellation are errors.
func (f *Finder) Find(ctx context.Context, src Source, env Env, query string, order Order) ([]int64, error) {
	where, args, err := compile(query, env)
	if err != nil {
		if errors.Is(err, ErrMalformed) || errors.Is(err, ErrUnknownTerm) {
			f.logger.Warn("Ignoring unusable search", "query", query, "error", err)
			return nil, nil
		}
		return nil, err
	}

	orderBy, orderArgs := orderClause(order.By, env.Today)
	ids, err := src.SelectCardIDs(ctx, where, orderBy, order.Limit, append(args, orderArgs...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to find cards for %q: %w", query, err)
	}
	return ids, nil
}

// orderClause returns the ORDER BY expression for a filter order.
func orderClause(by domain.FilterOrder, today int) (string, []any) {
	switch by {
	case domain.OrderOldest:
		return "c.mod, c.id", nil
	case domain.OrderRandom:
		return "random()", nil
	case domain.OrderIntervalAsc:
		return "c.ivl, c.id", nil
	case domain.OrderIntervalDesc:
		return "c.ivl DESC, c.id", nil
	case domain.OrderLapses:
		return "c.lapses DESC, c.id", nil
	case domain.OrderAdded:
		return "n.id, c.ord", nil
	case domain.OrderReverseAdded:
		return "n.id DESC, c.ord", nil
	case domain.OrderDuePriority:
		return `(CASE WHEN c.queue = ? AND c.due <= ? THEN (c.ivl / CAST(? - c.due + 0.001 AS REAL))
			ELSE 100000 + c.due END), c.id`, []any{domain.QueueReview, today, today}
	default:
		return "c.type, c.due, c.id", nil
	}
}
