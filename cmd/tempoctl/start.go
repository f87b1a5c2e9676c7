package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/meltforce/tempo/internal/models"
	"github.com/meltforce/tempo/internal/progression"
)

func newStartCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a session, replacing any active one",
	}
	cmd.AddCommand(
		newStartStrengthCmd(a),
		newStartFreeCmd(a),
		newStartRunCmd(a),
		newStartMeditationCmd(a),
	)
	return cmd
}

func newStartStrengthCmd(a *app) *cobra.Command {
	var planPath, name string
	cmd := &cobra.Command{
		Use:   "strength --plan <file>",
		Short: "Start a strength workout from a YAML or JSON plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var plan models.StrengthPayload
			if err := loadDocument(planPath, &plan); err != nil {
				return fmt.Errorf("loading plan: %w", err)
			}
			if name != "" {
				plan.Name = name
			}
			if len(plan.Exercises) == 0 {
				return fmt.Errorf("plan %s has no exercises", planPath)
			}
			st, err := progression.NewStrength(a.store, a.options()).Start(cmd.Context(), plan)
			if err != nil {
				return err
			}
			a.printStrength(st)
			return nil
		},
	}
	cmd.Flags().StringVar(&planPath, "plan", "", "workout plan file")
	cmd.Flags().StringVar(&name, "name", "", "override the plan name")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

func newStartFreeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "free [name]",
		Short: "Start an open-ended workout timer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := progression.NewFree(a.store, a.options()).Start(cmd.Context(), models.FreePayload{Name: strings.Join(args, " ")})
			if err != nil {
				return err
			}
			a.printTimer(st)
			return nil
		},
	}
}

func newStartRunCmd(a *app) *cobra.Command {
	var minutes int
	cmd := &cobra.Command{
		Use:   "run --minutes <n>",
		Short: "Start a timed run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if minutes <= 0 {
				return fmt.Errorf("--minutes must be positive")
			}
			st, err := progression.NewRun(a.store, a.options()).Start(cmd.Context(), models.RunPayload{DurationMinutes: minutes})
			if err != nil {
				return err
			}
			a.printTimer(st)
			return nil
		},
	}
	cmd.Flags().IntVar(&minutes, "minutes", 30, "planned duration")
	return cmd
}

func newStartMeditationCmd(a *app) *cobra.Command {
	var (
		theme, scriptPath, out string
		minutes                int
		noPlay                 bool
	)
	cmd := &cobra.Command{
		Use:   "meditation --theme <theme> [--minutes <n> | --script <file>]",
		Short: "Start a guided meditation with binaural audio",
		Long: `Start a meditation and stream its audio as raw little-endian float32 stereo
PCM to --out until it ends or is interrupted (which pauses it), e.g.

  tempoctl start meditation --theme Focus --minutes 10 | aplay -f FLOAT_LE -c 2 -r 44100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var script []models.ScriptSegment
			if scriptPath != "" {
				if err := loadDocument(scriptPath, &script); err != nil {
					return fmt.Errorf("loading script: %w", err)
				}
			}

			ctx := cmd.Context()
			dev := newSoftOutput()
			m := a.meditation(dev)
			defer m.Close()

			if _, err := m.Start(ctx, theme, minutes, script); err != nil {
				return err
			}
			if noPlay {
				if err := m.Pause(ctx); err != nil {
					return err
				}
				st, err := m.Status(ctx)
				if err != nil {
					return err
				}
				a.printMeditation(st)
				return nil
			}
			return a.stream(ctx, m, dev, out)
		},
	}
	cmd.Flags().StringVar(&theme, "theme", "Meditation", "theme (Meditation, Relaxation, Focus, ...)")
	cmd.Flags().IntVar(&minutes, "minutes", 0, "planned duration when no script is given")
	cmd.Flags().StringVar(&scriptPath, "script", "", "YAML or JSON list of {text, band, duration} segments")
	cmd.Flags().StringVar(&out, "out", "-", "PCM output file, - for stdout")
	cmd.Flags().BoolVar(&noPlay, "no-play", false, "start paused; play later with 'meditate play'")
	return cmd
}

// loadDocument decodes a YAML or JSON file into v using v's JSON tags.
func loadDocument(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("converting %s: %w", path, err)
	}
	return json.Unmarshal(raw, v)
}
