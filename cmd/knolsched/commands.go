package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/sched"
	"github.com/conorfennell/knolsched/internal/storage"
)

var timeNow = time.Now

var errUsage = errors.New("bad usage")

type cli struct {
	s   *sched.Scheduler
	db  *storage.DB
	out io.Writer
	yes bool
}

func (c *cli) dispatch(ctx context.Context, cmd string, args []string, in io.Reader) error {
	switch cmd {
	case "counts":
		return c.counts(ctx)
	case "decks":
		return c.decks(ctx)
	case "next":
		return c.next(ctx)
	case "answer":
		return c.answer(ctx, args)
	case "study":
		return c.study(ctx, in)
	case "rebuild":
		return c.rebuild(ctx, args)
	case "empty":
		did, err := oneID(args)
		if err != nil {
			return err
		}
		return c.s.EmptyFiltered(ctx, did)
	case "suspend":
		return c.withIDs(args, func(ids []int64) error { return c.s.SuspendCards(ctx, ids) })
	case "unsuspend":
		return c.withIDs(args, func(ids []int64) error { return c.s.UnsuspendCards(ctx, ids) })
	case "forget":
		return c.withIDs(args, func(ids []int64) error { return c.s.ForgetCards(ctx, ids) })
	case "bury-note":
		nid, err := oneID(args)
		if err != nil {
			return err
		}
		return c.s.BuryNote(ctx, nid)
	case "unbury":
		return c.unbury(ctx, args)
	case "version":
		return c.version(ctx, args)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an id", errUsage, a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func oneID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: expected one id", errUsage)
	}
	ids, err := parseIDs(args)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

func (c *cli) withIDs(args []string, fn func([]int64) error) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: expected at least one card id", errUsage)
	}
	return fn(ids)
}

func (c *cli) counts(ctx context.Context) error {
	n, err := c.s.Counts(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "new %d  learning %d  review %d\n", n.New, n.Learning, n.Review)
	return nil
}

func (c *cli) decks(ctx context.Context) error {
	roots, err := c.s.DeckDueTree(ctx)
	if err != nil {
		return err
	}
	var walk func(nodes []*sched.DeckNode, depth int)
	walk = func(nodes []*sched.DeckNode, depth int) {
		for _, n := range nodes {
			fmt.Fprintf(c.out, "%s%s (%d)  new %d  learning %d  review %d\n",
				strings.Repeat("  ", depth), domain.BaseName(n.Name), n.DeckID, n.New, n.Learning, n.Review)
			walk(n.Children, depth+1)
		}
	}
	walk(roots, 0)
	return nil
}

func (c *cli) next(ctx context.Context) error {
	card, err := c.s.GetCard(ctx)
	if err != nil {
		return err
	}
	if card == nil {
		fmt.Fprintln(c.out, sched.OutcomeNothingToStudy)
		return nil
	}
	return c.show(ctx, card)
}

func (c *cli) show(ctx context.Context, card *domain.Card) error {
	fmt.Fprintf(c.out, "card %d (note %d, deck %d) %s/%s\n", card.ID, card.NoteID, card.DeckID, card.Type, card.Queue)
	n, err := c.s.AnswerButtons(ctx, card)
	if err != nil {
		return err
	}
	var opts []string
	for e := domain.Again; int(e) <= n; e++ {
		secs, err := c.s.NextIvl(ctx, card, e)
		if err != nil {
			return err
		}
		opts = append(opts, fmt.Sprintf("%d:%s", e, formatIvl(secs)))
	}
	fmt.Fprintln(c.out, strings.Join(opts, "  "))
	return nil
}

func (c *cli) answer(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: answer <card> <ease>", errUsage)
	}
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	card, err := c.db.GetCard(ctx, ids[0])
	if err != nil {
		return err
	}
	if err := c.s.AnswerCard(ctx, card, domain.Ease(ids[1])); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "card %d now %s, due %d, interval %d\n", card.ID, card.Queue, card.Due, card.Interval)
	return nil
}

func (c *cli) study(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for {
		if err := c.counts(ctx); err != nil {
			return err
		}
		card, err := c.s.GetCard(ctx)
		if err != nil {
			return err
		}
		if card == nil {
			fmt.Fprintln(c.out, sched.OutcomeNothingToStudy)
			return nil
		}
		if err := c.show(ctx, card); err != nil {
			return err
		}

		for moved := false; !moved; {
			fmt.Fprint(c.out, "> ")
			if !sc.Scan() {
				return sc.Err()
			}
			input := strings.TrimSpace(sc.Text())
			if input == "q" {
				return nil
			}
			if moved, err = c.act(ctx, card, input); err != nil {
				return err
			}
		}
	}
}

// act applies one study command to the shown card and reports whether the
// session should move on to the next card.
func (c *cli) act(ctx context.Context, card *domain.Card, input string) (bool, error) {
	switch input {
	case "u":
		res, err := c.s.Undo(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "undo %s: %s\n", res.Kind, res.Outcome())
		return true, nil
	case "s":
		return true, c.s.SuspendCards(ctx, []int64{card.ID})
	case "b":
		return true, c.s.BuryNote(ctx, card.NoteID)
	}
	ease, err := strconv.Atoi(input)
	if err != nil {
		fmt.Fprintln(c.out, "answer 1-4, or u, s, b, q")
		return false, nil
	}
	err = c.s.AnswerCard(ctx, card, domain.Ease(ease))
	if errors.Is(err, sched.ErrInvalidEase) {
		fmt.Fprintln(c.out, err)
		return false, nil
	}
	return err == nil, err
}

func (c *cli) rebuild(ctx context.Context, args []string) error {
	did, err := oneID(args)
	if err != nil {
		return err
	}
	out, n, err := c.s.RebuildFiltered(ctx, did)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s: %d cards\n", out, n)
	return nil
}

func (c *cli) unbury(ctx context.Context, args []string) error {
	mode := sched.UnburyAll
	if len(args) > 0 {
		switch args[0] {
		case "all":
		case "manual":
			mode = sched.UnburyManual
		case "siblings":
			mode = sched.UnburySiblings
		default:
			return fmt.Errorf("%w: unbury mode %q", errUsage, args[0])
		}
	}
	col, err := c.db.LoadCollection(ctx)
	if err != nil {
		return err
	}
	return c.s.UnburyDeck(ctx, col.Conf.CurDeck, mode)
}

func (c *cli) version(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(c.out, "v%d\n", c.s.Version())
		return nil
	}
	v, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("%w: version %q", errUsage, args[0])
	}
	out, err := c.s.SetVersion(ctx, v, c.yes)
	if err != nil {
		return err
	}
	if out == sched.OutcomeNeedsConfirmation {
		fmt.Fprintln(c.out, "switching empties filtered decks and resets learning cards; rerun with --yes")
		return nil
	}
	fmt.Fprintf(c.out, "v%d\n", c.s.Version())
	return nil
}

// formatIvl renders a delay in seconds the way answer buttons label it.
func formatIvl(secs int64) string {
	switch {
	case secs == 0:
		return "end"
	case secs < 60:
		return "<1m"
	case secs < 3600:
		return fmt.Sprintf("%dm", secs/60)
	case secs < 86400:
		return fmt.Sprintf("%dh", secs/3600)
	case secs < 30*86400:
		return fmt.Sprintf("%dd", secs/86400)
	case secs < 365*86400:
		return fmt.Sprintf("%.1fmo", float64(secs)/(30*86400))
	}
	return fmt.Sprintf("%.1fy", float64(secs)/(365*86400))
}
