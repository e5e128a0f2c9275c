package sched

import (
	"context"

	"github.com/conorfennell/knolsched/internal/domain"
)

// DeckNode holds what a deck and its descendants have left to study today.
type DeckNode struct {
	DeckID   int64
	Name     string
	New      int
	Learning int
	Review   int
	Children []*DeckNode
}

// DeckDueTree returns the due counts of every deck arranged by hierarchy.
// Children are limited by their ancestors' allowances, and a parent's new and
// learning counts include its children's.
func (s *Scheduler) DeckDueTree(ctx context.Context) ([]*DeckNode, error) {
	var roots []*DeckNode
	err := s.inTx(ctx, func(t *txn) error {
		if err := t.checkDay(ctx); err != nil {
			return err
		}
		var err error
		roots, err = t.deckDueTree(ctx)
		return err
	})
	return roots, err
}

type deckLimits struct {
	newLim, revLim int
}

func (t *txn) deckDueTree(ctx context.Context) ([]*DeckNode, error) {
	all, err := t.decks.All(ctx)
	if err != nil {
		return nil, err
	}
	nodes := make(map[string]*DeckNode, len(all))
	lims := make(map[string]deckLimits, len(all))
	var roots []*DeckNode

	// Names sort parents ahead of their children.
	for i := range all {
		d := &all[i]
		var parent string
		parentNames := domain.ParentNames(d.Name)
		for j := len(parentNames) - 1; j >= 0; j-- {
			if _, ok := nodes[parentNames[j]]; ok {
				parent = parentNames[j]
				break
			}
		}

		node, lim, err := t.deckDue(ctx, d, parent, lims)
		if err != nil {
			return nil, err
		}
		nodes[d.Name] = node
		lims[d.Name] = lim
		if parent == "" {
			roots = append(roots, node)
		} else {
			nodes[parent].Children = append(nodes[parent].Children, node)
		}
	}

	for _, root := range roots {
		if err := t.tallyChildren(ctx, root); err != nil {
			return nil, err
		}
	}
	return roots, nil
}

// deckDue counts the cards of a single deck under its own and its parent's limits.
func (t *txn) deckDue(ctx context.Context, d *domain.Deck, parent string, lims map[string]deckLimits) (*DeckNode, deckLimits, error) {
	newLim, err := t.newLimitFor(ctx, d)
	if err != nil {
		return nil, deckLimits{}, err
	}
	revLim, err := t.revLimitFor(ctx, d)
	if err != nil {
		return nil, deckLimits{}, err
	}
	if parent != "" {
		newLim = min(newLim, lims[parent].newLim)
		revLim = min(revLim, lims[parent].revLim)
	}
	lim := deckLimits{newLim: newLim, revLim: revLim}

	node := &DeckNode{DeckID: d.ID, Name: d.Name}
	if node.New, err = t.st.CountNew(ctx, d.ID, min(newLim, t.cfg.ReportLimit)); err != nil {
		return nil, lim, err
	}

	own := []int64{d.ID}
	sub, err := t.st.CountLearn(ctx, own, t.nowUnix()+int64(t.conf.CollapseTime))
	if err != nil {
		return nil, lim, err
	}
	day, err := t.st.CountDayLearn(ctx, own, t.today)
	if err != nil {
		return nil, lim, err
	}
	node.Learning = sub + day

	children, err := t.decks.ChildIDs(ctx, d.ID)
	if err != nil {
		return nil, lim, err
	}
	if node.Review, err = t.st.CountReviewIn(ctx, append(own, children...), t.today, min(revLim, t.cfg.ReportLimit)); err != nil {
		return nil, lim, err
	}
	return node, lim, nil
}

// tallyChildren adds the children's new and learning counts to a node and
// caps new cards at the deck's own allowance. Reviews already cover descendants.
func (t *txn) tallyChildren(ctx context.Context, node *DeckNode) error {
	for _, c := range node.Children {
		if err := t.tallyChildren(ctx, c); err != nil {
			return err
		}
		node.New += c.New
		node.Learning += c.Learning
	}
	d, err := t.decks.Get(ctx, node.DeckID)
	if err != nil {
		return err
	}
	if d.Dynamic {
		return nil
	}
	lim, err := t.newLimitFor(ctx, d)
	if err != nil {
		return err
	}
	node.New = min(node.New, lim)
	return nil
}
