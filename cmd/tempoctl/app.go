package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/meltforce/tempo/internal/clock"
	"github.com/meltforce/tempo/internal/config"
	"github.com/meltforce/tempo/internal/localcache"
	"github.com/meltforce/tempo/internal/models"
	"github.com/meltforce/tempo/internal/notify"
	"github.com/meltforce/tempo/internal/progression"
	"github.com/meltforce/tempo/internal/remote"
	"github.com/meltforce/tempo/internal/store"
)

// app is the per-invocation wiring shared by every command.
type app struct {
	out, errOut io.Writer
	jsonOut     bool
	verbose     bool

	cfg    *config.ClientConfig
	log    *slog.Logger
	clock  clock.Clock
	cache  *localcache.Cache
	remote *remote.Client
	notify store.Notifier
	store  *store.Store

	// finished is signalled after a completion has been recorded.
	finished chan struct{}
}

func newApp(out, errOut io.Writer) *app {
	return &app{out: out, errOut: errOut, clock: clock.System{}, finished: make(chan struct{}, 1)}
}

func (a *app) loadConfig(path string) error {
	cfg, err := config.LoadClient(path)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.log = slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: level}))
	return nil
}

// open wires the store to the local cache, the optional server mirror and
// the notifier, then resumes whatever session was left.
func (a *app) open(ctx context.Context, path string) error {
	if err := a.loadConfig(path); err != nil {
		return err
	}

	cache, err := localcache.Open(a.cfg.StateDir)
	if err != nil {
		return err
	}
	a.cache = cache
	a.notify = notify.New(a.cfg.Notify, a.cfg.StateDir, a.log)

	opts := store.Options{
		Owner:      a.cfg.Owner,
		Clock:      a.clock,
		Local:      cache,
		Notifier:   a.notify,
		Debounce:   a.cfg.Session.RemoteDebounce,
		StaleAfter: a.cfg.Session.StaleAfter,
		Logger:     a.log,
	}
	if a.cfg.ServerURL != "" {
		a.remote = remote.NewClient(a.cfg.ServerURL, a.cfg.APIKey)
		opts.Remote = a.remote
	}
	a.store = store.New(opts)

	_, status, err := a.store.Resume(ctx)
	if err != nil {
		return fmt.Errorf("resuming session: %w", err)
	}
	if status == store.ResumeDiscarded {
		fmt.Fprintln(a.errOut, "Discarded a session that was left running too long.")
	}
	return nil
}

func (a *app) close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if c, ok := a.notify.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func (a *app) options() progression.Options {
	return progression.Options{OnComplete: a.completed, Logger: a.log}
}

// completed records a finished session on the server and prints it.
func (a *app) completed(sum models.Summary) {
	if a.remote != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := a.remote.PostHistory(ctx, sum); err != nil {
			a.log.Warn("recording finished session", "error", err)
		}
	}
	a.printSummary(sum)
	select {
	case a.finished <- struct{}{}:
	default:
	}
}

// active returns the resumed session or store.ErrNoActiveSession.
func (a *app) active() (*models.Session, error) {
	sess := a.store.Current()
	if sess == nil {
		return nil, store.ErrNoActiveSession
	}
	return sess, nil
}
