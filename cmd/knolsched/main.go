package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/conorfennell/knolsched/internal/config"
	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/metrics"
	"github.com/conorfennell/knolsched/internal/sched"
	"github.com/conorfennell/knolsched/internal/storage"
)

const usage = `usage: knolsched [flags] <command> [args]

commands:
  counts                  new, learning and review cards left today
  decks                   cards left today per deck
  next                    show the next card without answering it
  answer <card> <ease>    answer a card with ease 1-4
  study                   interactive session (1-4 answer, u undo, s suspend, b bury, q quit)
  rebuild <deck>          rebuild a filtered deck
  empty <deck>            return a filtered deck's cards home
  suspend <card>...       suspend cards
  unsuspend <card>...     unsuspend cards
  bury-note <note>        bury every card of a note until tomorrow
  unbury [all|manual|siblings]
                          release buried cards of the study deck
  forget <card>...        turn cards back into new cards
  version [1|2]           show or switch the scheduler version (needs --yes)
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, config.ErrHelp) {
			fmt.Fprint(os.Stderr, usage)
			return
		}
		slog.Error("knolsched failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	cfg, err := config.Load("knolsched", args)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if len(cfg.Args) == 0 {
		fmt.Fprint(out, usage)
		return nil
	}

	db, err := storage.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.InitCollection(ctx, timeNow().Unix(), domain.DefaultCollectionConf()); err != nil {
		return err
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	if cfg.Metrics.Textfile != "" {
		defer func() {
			if err := prometheus.WriteToTextfile(cfg.Metrics.Textfile, reg); err != nil {
				logger.Warn("Could not write metrics", "path", cfg.Metrics.Textfile, "error", err)
			}
		}()
	}

	s, err := sched.New(ctx, db, sched.Config{
		Clock:       timeNow,
		Location:    loc,
		Logger:      logger,
		Metrics:     m,
		QueueLimit:  cfg.Sched.QueueLimit,
		BuryOnFetch: cfg.Sched.BuryOnFetch,
	})
	if err != nil {
		return err
	}
	if cfg.Sched.Deck != 0 {
		if err := s.SelectDeck(ctx, cfg.Sched.Deck); err != nil {
			return err
		}
	}

	c := &cli{s: s, db: db, out: out, yes: cfg.Yes}
	return c.dispatch(ctx, cfg.Args[0], cfg.Args[1:], in)
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
