package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/meltforce/tempo/internal/audio"
	"github.com/meltforce/tempo/internal/models"
	"github.com/meltforce/tempo/internal/progression"
)

// DefaultSampleRate is used for streamed and rendered audio.
const DefaultSampleRate = 44100

// softOutput builds software audio contexts for the engine and remembers
// the latest so it can be streamed.
type softOutput struct {
	rate int

	mu   sync.Mutex
	last *audio.SoftContext
}

func newSoftOutput() *softOutput {
	return &softOutput{rate: DefaultSampleRate}
}

func (o *softOutput) factory() (audio.Context, error) {
	sc := audio.NewSoftContext(o.rate)
	o.mu.Lock()
	o.last = sc
	o.mu.Unlock()
	return sc, nil
}

func (o *softOutput) current() *audio.SoftContext {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// meditation returns a controller playing into dev, or into a throwaway
// output when the command never streams.
func (a *app) meditation(dev *softOutput) *progression.Meditation {
	if dev == nil {
		dev = newSoftOutput()
	}
	return progression.NewMeditation(a.store, dev.factory, progression.MeditationOptions{Options: a.options()})
}

func openOutput(path string) (io.Writer, func() error, error) {
	if path == "-" || path == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return f, f.Close, nil
}

// stream pumps the playing meditation to out in real time. An interrupt
// pauses the session at the position reached; the end of the schedule
// completes it.
func (a *app) stream(ctx context.Context, m *progression.Meditation, dev *softOutput, out string) error {
	sc := dev.current()
	if sc == nil {
		return errors.New("meditation audio is not playing")
	}
	w, closeOut, err := openOutput(out)
	if err != nil {
		return err
	}
	defer closeOut()

	fmt.Fprintln(a.errOut, "Playing. Press Ctrl-C to pause.")
	perr := audio.Pump(ctx, sc, w, 0)

	if ctx.Err() == nil {
		if perr == nil {
			// The schedule ended; completion runs on the engine's poll loop.
			select {
			case <-a.finished:
			case <-time.After(20 * time.Second):
				a.log.Warn("timed out waiting for the meditation summary")
			}
		}
		return perr
	}
	pctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Pause(pctx); err != nil {
		return errors.Join(perr, err)
	}
	st, err := m.Status(pctx)
	if err != nil {
		return errors.Join(perr, err)
	}
	fmt.Fprintf(a.errOut, "Paused at %s.\n", secondsText(st.Position))
	return perr
}

func newMeditateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meditate",
		Short: "Control meditation audio",
	}
	cmd.AddCommand(
		newMeditatePlayCmd(a),
		newMeditateVolumeCmd(a),
		newMeditateRenderCmd(a),
	)
	return cmd
}

func newMeditatePlayCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play the active meditation from its saved position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dev := newSoftOutput()
			m := a.meditation(dev)
			defer m.Close()
			if err := m.Play(ctx); err != nil {
				return err
			}
			return a.stream(ctx, m, dev, out)
		},
	}
	cmd.Flags().StringVar(&out, "out", "-", "PCM output file, - for stdout")
	return cmd
}

func newMeditateVolumeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "volume <0-1>",
		Short: "Set the meditation volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var level float64
			if _, err := fmt.Sscanf(args[0], "%g", &level); err != nil {
				return fmt.Errorf("invalid volume %q", args[0])
			}
			if level < 0 || level > 1 {
				return fmt.Errorf("volume must be between 0 and 1")
			}
			ctx := cmd.Context()
			m := a.meditation(nil)
			defer m.Close()
			if err := m.SetVolume(ctx, level); err != nil {
				return err
			}
			st, err := m.Status(ctx)
			if err != nil {
				return err
			}
			a.printMeditation(st)
			return nil
		},
	}
}

func newMeditateRenderCmd(a *app) *cobra.Command {
	var (
		out, theme string
		minutes    int
		rate       int
	)
	cmd := &cobra.Command{
		Use:   "render --out <file.wav>",
		Short: "Render a meditation to a WAV file",
		Long: `Render the active meditation, or the given theme when --theme is set, to a
16-bit stereo WAV file. Rendering runs offline and does not touch the session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			schedule, volume, err := a.renderPlan(theme, minutes)
			if err != nil {
				return err
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("creating %s: %w", out, err)
			}
			if err := audio.RenderWAV(cmd.Context(), f, schedule, schedule.Total(), rate, volume); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			if !a.jsonOut {
				fmt.Fprintf(a.out, "Wrote %s (%s).\n", out, secondsText(schedule.Total()))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "meditation.wav", "output WAV file")
	cmd.Flags().StringVar(&theme, "theme", "", "render a theme instead of the active session")
	cmd.Flags().IntVar(&minutes, "minutes", 10, "duration with --theme")
	cmd.Flags().IntVar(&rate, "rate", DefaultSampleRate, "sample rate")
	return cmd
}

func (a *app) renderPlan(theme string, minutes int) (models.AudioSchedule, float64, error) {
	if theme != "" {
		if minutes <= 0 {
			return nil, 0, errors.New("--minutes must be positive")
		}
		return audio.ThemeSchedule(theme, minutes), 1, nil
	}
	sess, err := a.active()
	if err != nil {
		return nil, 0, err
	}
	plan, ok := sess.Payload.(models.MeditationPayload)
	if !ok {
		return nil, 0, progression.ErrWrongKind
	}
	return plan.Schedule, sess.Progress.(models.MeditationProgress).Volume, nil
}
