package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/meltforce/tempo/internal/clock"
	"github.com/meltforce/tempo/internal/models"
	"github.com/meltforce/tempo/internal/progression"
	"github.com/meltforce/tempo/internal/store"
)

// timed returns the timer controller for a free workout or run.
func (a *app) timed(k models.Kind) *progression.Timed {
	if k == models.KindRun {
		return progression.NewRun(a.store, a.options())
	}
	return progression.NewFree(a.store, a.options())
}

// showStatus prints the active session and reports whether it is still
// active afterwards. A run past its planned time completes here.
func (a *app) showStatus(ctx context.Context) (bool, error) {
	sess, err := a.active()
	if err != nil {
		return false, err
	}
	switch sess.Kind {
	case models.KindStrength:
		st, err := progression.NewStrength(a.store, a.options()).Status(ctx)
		if err != nil {
			return false, err
		}
		a.printStrength(st)
	case models.KindFree, models.KindRun:
		st, sum, err := a.timed(sess.Kind).Status(ctx)
		if err != nil {
			return false, err
		}
		if sum != nil {
			return false, nil
		}
		a.printTimer(st)
	case models.KindMeditation:
		m := a.meditation(nil)
		defer m.Close()
		st, err := m.Status(ctx)
		if err != nil {
			return false, err
		}
		a.printMeditation(st)
	}
	return true, nil
}

func newStatusCmd(a *app) *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the active session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !watch {
				if _, err := a.showStatus(cmd.Context()); err != nil {
					if errors.Is(err, store.ErrNoActiveSession) {
						fmt.Fprintln(a.out, "No active session.")
						return nil
					}
					return err
				}
				return nil
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			var werr error
			clock.Watch(ctx, a.clock, interval, func(time.Time) {
				// Other invocations may have moved the session on.
				a.store.Refresh()
				active, err := a.showStatus(ctx)
				if errors.Is(err, store.ErrNoActiveSession) {
					fmt.Fprintln(a.out, "No active session.")
					err = nil
				}
				if err != nil || !active {
					werr = err
					cancel()
				}
			})
			return werr
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "refresh until the session ends or Ctrl-C")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "refresh interval with --watch")
	return cmd
}

// strengthStep runs fn on the strength controller and prints the outcome.
func (a *app) strengthStep(fn func(*progression.Strength) (progression.StrengthStatus, *models.Summary, error)) error {
	st, sum, err := fn(progression.NewStrength(a.store, a.options()))
	if err != nil {
		return err
	}
	if sum == nil {
		a.printStrength(st)
	}
	return nil
}

func newSetCmd(a *app) *cobra.Command {
	var weight float64
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Log the current set of a strength workout and start its rest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.strengthStep(func(s *progression.Strength) (progression.StrengthStatus, *models.Summary, error) {
				return s.CompleteSet(cmd.Context(), weight)
			})
		},
	}
	cmd.Flags().Float64Var(&weight, "weight", 0, "weight used, in kg")
	return cmd
}

func newUndoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "undo [set-id]",
		Short: "Remove a logged set, the latest one by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := progression.NewStrength(a.store, a.options())
			var (
				st  progression.StrengthStatus
				err error
			)
			if len(args) == 1 {
				id, perr := uuid.Parse(args[0])
				if perr != nil {
					return fmt.Errorf("invalid set id %q: %w", args[0], perr)
				}
				st, err = s.UndoSet(cmd.Context(), id)
			} else {
				st, err = s.UndoLastSet(cmd.Context())
			}
			if err != nil {
				return err
			}
			a.printStrength(st)
			return nil
		},
	}
}

func newSkipRestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "skip-rest",
		Short: "End the current rest period early",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := progression.NewStrength(a.store, a.options()).SkipRest(cmd.Context())
			if err != nil {
				return err
			}
			a.printStrength(st)
			return nil
		},
	}
}

func newNextCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Move on to the next exercise",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.strengthStep(func(s *progression.Strength) (progression.StrengthStatus, *models.Summary, error) {
				return s.NextExercise(cmd.Context())
			})
		},
	}
}

func newPrevCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prev",
		Short: "Go back to the previous exercise",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := progression.NewStrength(a.store, a.options()).PreviousExercise(cmd.Context())
			if err != nil {
				return err
			}
			a.printStrength(st)
			return nil
		},
	}
}

func newPauseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause a workout timer, run or meditation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := a.active()
			if err != nil {
				return err
			}
			switch sess.Kind {
			case models.KindFree, models.KindRun:
				st, err := a.timed(sess.Kind).Pause(ctx)
				if err != nil {
					return err
				}
				a.printTimer(st)
			case models.KindMeditation:
				m := a.meditation(nil)
				defer m.Close()
				if err := m.Pause(ctx); err != nil {
					return err
				}
				st, err := m.Status(ctx)
				if err != nil {
					return err
				}
				a.printMeditation(st)
			default:
				return fmt.Errorf("a %s cannot be paused", kindLabel(sess.Kind))
			}
			return nil
		},
	}
}

func newResumeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused workout timer or run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.active()
			if err != nil {
				return err
			}
			switch sess.Kind {
			case models.KindFree, models.KindRun:
				st, err := a.timed(sess.Kind).Resume(cmd.Context())
				if err != nil {
					return err
				}
				a.printTimer(st)
				return nil
			case models.KindMeditation:
				return errors.New("resume a meditation with 'tempoctl meditate play'")
			}
			return fmt.Errorf("a %s cannot be resumed", kindLabel(sess.Kind))
		},
	}
}

func newFinishCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "finish",
		Short: "Finish the active session and log it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := a.active()
			if err != nil {
				return err
			}
			switch sess.Kind {
			case models.KindStrength:
				_, err = progression.NewStrength(a.store, a.options()).Finish(ctx)
			case models.KindFree, models.KindRun:
				_, err = a.timed(sess.Kind).Finish(ctx)
			case models.KindMeditation:
				m := a.meditation(nil)
				defer m.Close()
				_, err = m.Finish(ctx)
			}
			return err
		},
	}
}

func newExitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exit",
		Short: "Discard the active session without logging it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.active(); err != nil {
				return err
			}
			a.store.Clear(cmd.Context())
			if !a.jsonOut {
				fmt.Fprintln(a.out, "Session discarded.")
			}
			return nil
		},
	}
}

func newBackgroundCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "background",
		Short: "Post a notification summarizing the active session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.store.Background(cmd.Context())
			if err != nil {
				return err
			}
			if n == nil {
				return store.ErrNoActiveSession
			}
			if a.jsonOut {
				a.printJSON(n)
				return nil
			}
			fmt.Fprintf(a.out, "%s: %s\n", n.Title, n.Body)
			return nil
		},
	}
}
