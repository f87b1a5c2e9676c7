// Package store owns the single active session of a user and mirrors it to a
// local durable cache (synchronously) and a remote durable store
// (asynchronously, debounced). Every other component requests mutations
// through a Store; none of them hold a writable session.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/meltforce/tempo/internal/clock"
	"github.com/meltforce/tempo/internal/models"
)

const (
	// DefaultDebounce is the remote write batching window.
	DefaultDebounce = 2 * time.Second
	// DefaultStaleAfter is the age at which a persisted session is discarded.
	DefaultStaleAfter = time.Hour

	// DefaultCrossCheck bounds the remote fetch of a resume that already
	// found a local session.
	DefaultCrossCheck = time.Second

	remoteTimeout = 5 * time.Second
)

var (
	// ErrNoActiveSession is returned by mutations when no session is active.
	ErrNoActiveSession = errors.New("no active session")
	// ErrKindMismatch is returned when a mutation produces progress for a
	// different kind than the active session.
	ErrKindMismatch = errors.New("progress kind does not match session")
)

// Notifier delivers a background notification.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// NotificationClearer is implemented by notifiers that can withdraw the
// background notification once the session is back in the foreground.
type NotificationClearer interface {
	Clear(ctx context.Context) error
}

// Options configures a Store.
type Options struct {
	Owner  string
	Clock  clock.Clock
	Local  LocalCache
	Remote RemoteStore
	// Notifier is optional.
	Notifier Notifier
	// Debounce is the remote write window. Zero means DefaultDebounce, a
	// negative value writes every mutation immediately.
	Debounce time.Duration
	// StaleAfter defaults to DefaultStaleAfter.
	StaleAfter time.Duration
	// CrossCheck bounds the remote fetch when the local cache already holds
	// a session. Zero means DefaultCrossCheck.
	CrossCheck time.Duration
	Logger     *slog.Logger
}

// ResumeStatus reports what Resume found.
type ResumeStatus int

const (
	ResumeEmpty ResumeStatus = iota
	ResumeRestored
	ResumeDiscarded
)

func (r ResumeStatus) String() string {
	switch r {
	case ResumeRestored:
		return "restored"
	case ResumeDiscarded:
		return "discarded"
	}
	return "empty"
}

// Store is the single owner of the active session.
type Store struct {
	owner      string
	clock      clock.Clock
	local      LocalCache
	remote     RemoteStore
	notifier   Notifier
	debounce   time.Duration
	staleAfter time.Duration
	crossCheck time.Duration
	log        *slog.Logger

	mu      sync.Mutex
	current *models.Session
	// saved is what this store last wrote to, or read from, the local cache
	// for the current session.
	saved    []byte
	gen      uint64
	hooks    map[int]func()
	nextHook int
	pending  *remoteOp
	timer    *time.Timer

	// remoteMu serialises remote writes; wg tracks the ones in flight.
	remoteMu sync.Mutex
	wg       sync.WaitGroup
}

type remoteOp struct {
	gen     uint64
	session *models.Session
}

// New returns a Store with no active session. Call Resume to adopt a
// persisted one.
func New(opts Options) *Store {
	c := opts.Clock
	if c == nil {
		c = clock.System{}
	}
	debounce := opts.Debounce
	if debounce == 0 {
		debounce = DefaultDebounce
	}
	stale := opts.StaleAfter
	if stale <= 0 {
		stale = DefaultStaleAfter
	}
	cross := opts.CrossCheck
	if cross <= 0 {
		cross = DefaultCrossCheck
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		owner:      opts.Owner,
		clock:      c,
		local:      opts.Local,
		remote:     opts.Remote,
		notifier:   opts.Notifier,
		debounce:   debounce,
		staleAfter: stale,
		crossCheck: cross,
		log:        log,
		hooks:      make(map[int]func()),
	}
}

// Owner returns the key both mirrors are written under.
func (s *Store) Owner() string { return s.owner }

// Clock returns the clock the store stamps sessions with.
func (s *Store) Clock() clock.Clock { return s.clock }

// Current returns a copy of the active session, or nil.
func (s *Store) Current() *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// OnTeardown registers fn to run before the active session is cleared or
// replaced. The returned func unregisters it.
func (s *Store) OnTeardown(fn func()) (unregister func()) {
	s.mu.Lock()
	id := s.nextHook
	s.nextHook++
	s.hooks[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.hooks, id)
		s.mu.Unlock()
	}
}

func (s *Store) runTeardown() {
	s.mu.Lock()
	hooks := make([]func(), 0, len(s.hooks))
	for i := 0; i < s.nextHook; i++ {
		if fn, ok := s.hooks[i]; ok {
			hooks = append(hooks, fn)
		}
	}
	s.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// Start creates a new active session for payload, replacing any existing
// one, and writes it to both mirrors.
func (s *Store) Start(ctx context.Context, payload models.Payload) (*models.Session, error) {
	now, err := clock.Read(s.clock)
	if err != nil {
		return nil, err
	}
	sess, err := models.NewSession(payload, now)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.runTeardown()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.log.Info("replacing active session", "owner", s.owner, "old_id", s.current.ID, "old_kind", s.current.Kind)
	}
	s.gen++
	s.current = sess
	s.saved = nil
	s.cancelPendingLocked()
	s.saveLocalLocked(sess)
	s.goRemoteLocked(remoteOp{gen: s.gen, session: sess.Clone()})

	s.log.Info("session started", "owner", s.owner, "id", sess.ID, "kind", sess.Kind)
	return sess.Clone(), nil
}

// UpdateFunc computes the next progress from a copy of the active session.
// Returning nil progress leaves the session untouched.
type UpdateFunc func(cur *models.Session, now time.Time) (models.Progress, error)

// UpdateProgress replaces the active session's progress with the result of
// fn, bumps LastUpdated, writes the local cache and schedules a remote write.
// An unavailable clock aborts the session.
func (s *Store) UpdateProgress(ctx context.Context, fn UpdateFunc) (*models.Session, error) {
	now, err := clock.Read(s.clock)
	if err != nil {
		if s.Current() != nil {
			s.log.Error("aborting session", "owner", s.owner, "error", err)
			s.Clear(ctx)
		}
		return nil, err
	}
	s.syncLocal()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, ErrNoActiveSession
	}

	next, err := fn(s.current.Clone(), now)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return s.current.Clone(), nil
	}
	if next.Kind() != s.current.Kind {
		return nil, fmt.Errorf("%w: got %s, session is %s", ErrKindMismatch, next.Kind(), s.current.Kind)
	}

	s.current.Progress = next.Clone()
	if now.After(s.current.LastUpdated) {
		s.current.LastUpdated = now
	}
	s.saveLocalLocked(s.current)
	s.scheduleRemoteLocked()
	return s.current.Clone(), nil
}

// Clear tears down and removes the active session from memory and both
// mirrors. It is idempotent and never fails on mirror errors.
func (s *Store) Clear(ctx context.Context) {
	s.runTeardown()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.log.Info("session cleared", "owner", s.owner, "id", s.current.ID, "kind", s.current.Kind)
	}
	s.clearLocked()
}

func (s *Store) clearLocked() {
	s.gen++
	s.current = nil
	s.saved = nil
	s.cancelPendingLocked()
	if s.local != nil {
		if err := s.local.Delete(s.owner); err != nil {
			s.log.Warn("deleting cached session", "owner", s.owner, "error", err)
		}
	}
	s.goRemoteLocked(remoteOp{gen: s.gen})
}

// Resume reloads the persisted session. The local cache is read first and
// the remote mirror is consulted as a fallback; the newest LastUpdated wins
// as a whole. A session at least StaleAfter old is discarded from both
// mirrors.
func (s *Store) Resume(ctx context.Context) (*models.Session, ResumeStatus, error) {
	now, err := clock.Read(s.clock)
	if err != nil {
		return nil, ResumeEmpty, err
	}

	s.clearNotification(ctx)

	local, localData := s.loadLocal()
	timeout := remoteTimeout
	if local != nil {
		timeout = s.crossCheck
	}
	remote := s.fetchRemote(ctx, timeout)

	s.mu.Lock()
	mem := s.current.Clone()
	s.mu.Unlock()

	// Ties prefer memory, then the local cache.
	cand, source := mem, "memory"
	if local != nil && (cand == nil || local.LastUpdated.After(cand.LastUpdated)) {
		cand, source = local, "local"
	}
	if remote != nil && (cand == nil || remote.LastUpdated.After(cand.LastUpdated)) {
		cand, source = remote, "remote"
	}

	if cand == nil || !cand.IsActive {
		if local != nil || remote != nil {
			s.Clear(ctx)
		}
		return nil, ResumeEmpty, nil
	}

	if age := cand.Age(now); age >= s.staleAfter {
		s.log.Info("discarding stale session", "owner", s.owner, "id", cand.ID, "age", age.Round(time.Second))
		s.Clear(ctx)
		return nil, ResumeDiscarded, nil
	}

	if mem == nil || mem.ID != cand.ID {
		// A different session is about to be adopted.
		s.runTeardown()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if mem == nil || mem.ID != cand.ID {
		s.gen++
	}
	s.current = cand
	switch {
	case source == "local":
		s.saved = localData
	case local == nil || local.LastUpdated.Before(cand.LastUpdated) || local.ID != cand.ID:
		s.saveLocalLocked(cand)
	}
	if s.remote != nil && (remote == nil || remote.LastUpdated.Before(cand.LastUpdated) || remote.ID != cand.ID) {
		s.goRemoteLocked(remoteOp{gen: s.gen, session: cand.Clone()})
	}

	s.log.Info("session resumed", "owner", s.owner, "id", cand.ID, "kind", cand.Kind, "source", source)
	return cand.Clone(), ResumeRestored, nil
}

// Refresh adopts changes another process made to the local cache since this
// store last read or wrote it. Long-lived callers use it before deriving
// timers from Current.
func (s *Store) Refresh() {
	s.syncLocal()
}

// syncLocal replaces memory with a newer revision or a different session
// found in the local cache, and drops the current session when the entry
// this store saved has been removed.
func (s *Store) syncLocal() {
	if s.local == nil {
		return
	}
	s.mu.Lock()
	cur, saved := s.current, s.saved
	var curUpdated time.Time
	if cur != nil {
		curUpdated = cur.LastUpdated
	}
	s.mu.Unlock()

	ts, err := s.local.LastUpdated(s.owner)
	if errors.Is(err, ErrNotFound) {
		if cur == nil || saved == nil {
			return
		}
		s.runTeardown()
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.current == cur {
			s.log.Info("session ended by another process", "owner", s.owner, "id", cur.ID)
			s.gen++
			s.current = nil
			s.saved = nil
			s.cancelPendingLocked()
		}
		return
	}
	if err != nil {
		s.log.Warn("checking cached session", "owner", s.owner, "error", err)
		return
	}
	if cur != nil && ts.Before(curUpdated) {
		return
	}

	sess, data := s.loadLocal()
	if sess == nil || !sess.IsActive || bytes.Equal(data, saved) {
		return
	}
	if cur != nil && cur.ID != sess.ID {
		s.runTeardown()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != cur || (cur != nil && cur.LastUpdated.After(sess.LastUpdated)) {
		return
	}
	if cur == nil || cur.ID != sess.ID {
		s.gen++
	}
	s.current = sess
	s.saved = data
	s.cancelPendingLocked()
	s.log.Info("adopted session from another process", "owner", s.owner, "id", sess.ID, "kind", sess.Kind)
}

func (s *Store) clearNotification(ctx context.Context) {
	c, ok := s.notifier.(NotificationClearer)
	if !ok {
		return
	}
	if err := c.Clear(ctx); err != nil {
		s.log.Debug("clearing notification", "owner", s.owner, "error", err)
	}
}

// Background flushes pending remote writes and sends a notification for
// the active session. It returns the notification, or nil without one.
func (s *Store) Background(ctx context.Context) (*models.Notification, error) {
	if err := s.Flush(ctx); err != nil {
		s.log.Warn("flushing before background", "error", err)
	}
	s.syncLocal()
	cur := s.Current()
	if cur == nil {
		return nil, nil
	}
	now, err := clock.Read(s.clock)
	if err != nil {
		return nil, err
	}
	n := BackgroundNotification(cur, now)
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.log.Warn("sending notification", "error", err)
		}
	}
	return &n, nil
}

// BackgroundNotification builds the message shown while sess runs in the
// background: remaining minutes for planned sessions, elapsed otherwise.
func BackgroundNotification(sess *models.Session, now time.Time) models.Notification {
	n := models.Notification{Title: notificationTitle(sess.Kind)}

	var paused time.Duration
	switch p := sess.Progress.(type) {
	case models.FreeProgress:
		paused = p.PausedTotal(now)
	case models.RunProgress:
		paused = p.PausedTotal(now)
	}
	elapsed := clock.Elapsed(sess.StartInstant, now, paused)

	var planned time.Duration
	switch p := sess.Payload.(type) {
	case models.RunPayload:
		planned = p.Planned()
	case models.MeditationPayload:
		planned = p.Planned()
		if mp, ok := sess.Progress.(models.MeditationProgress); ok {
			elapsed = time.Duration(mp.PositionSeconds * float64(time.Second))
		}
	}

	if planned > 0 {
		left := planned - elapsed
		if left > 0 {
			n.Body = fmt.Sprintf("Time remaining: %d minutes", clock.CeilMinutes(left))
			return n
		}
	}
	n.Body = fmt.Sprintf("Time elapsed: %d minutes", clock.FloorMinutes(elapsed))
	return n
}

func notificationTitle(k models.Kind) string {
	switch k {
	case models.KindRun:
		return "Run in progress"
	case models.KindMeditation:
		return "Meditation in progress"
	}
	return "Workout in progress"
}

// Flush sends any debounced remote write now and waits for in-flight
// remote writes to finish or ctx to end.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	op := s.takePendingLocked()
	s.mu.Unlock()
	if op != nil {
		s.runRemote(*op)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes pending remote writes with a bounded wait.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*remoteTimeout)
	defer cancel()
	return s.Flush(ctx)
}

func (s *Store) saveLocalLocked(sess *models.Session) {
	if s.local == nil {
		return
	}
	data, err := json.Marshal(sess)
	if err != nil {
		s.log.Error("encoding session", "owner", s.owner, "error", err)
		return
	}
	if err := s.local.Save(s.owner, data, sess.LastUpdated); err != nil {
		s.log.Error("writing cached session", "owner", s.owner, "error", err)
		return
	}
	s.saved = data
}

// loadLocal returns the cached session and its encoding, or nils.
func (s *Store) loadLocal() (*models.Session, []byte) {
	if s.local == nil {
		return nil, nil
	}
	data, err := s.local.Load(s.owner)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		s.log.Warn("reading cached session", "owner", s.owner, "error", err)
		return nil, nil
	}
	var sess models.Session
	err = json.Unmarshal(data, &sess)
	if err == nil {
		err = sess.Validate()
	}
	if err != nil {
		s.log.Warn("discarding undecodable cached session", "owner", s.owner, "error", err)
		if err := s.local.Delete(s.owner); err != nil {
			s.log.Warn("deleting cached session", "owner", s.owner, "error", err)
		}
		return nil, nil
	}
	return &sess, data
}

func (s *Store) fetchRemote(ctx context.Context, timeout time.Duration) *models.Session {
	if s.remote == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	sess, err := s.remote.Fetch(ctx)
	if err != nil {
		s.log.Warn("fetching remote session", "owner", s.owner, "error", err)
		return nil
	}
	if sess != nil {
		if err := sess.Validate(); err != nil {
			s.log.Warn("ignoring invalid remote session", "owner", s.owner, "error", err)
			return nil
		}
	}
	return sess
}

func (s *Store) scheduleRemoteLocked() {
	if s.remote == nil {
		return
	}
	op := remoteOp{gen: s.gen, session: s.current.Clone()}
	if s.debounce < 0 {
		s.goRemoteLocked(op)
		return
	}
	s.pending = &op
	if s.timer == nil {
		s.timer = time.AfterFunc(s.debounce, func() {
			s.mu.Lock()
			op := s.takePendingLocked()
			if op != nil {
				s.wg.Add(1)
			}
			s.mu.Unlock()
			if op != nil {
				defer s.wg.Done()
				s.runRemote(*op)
			}
		})
	}
}

func (s *Store) takePendingLocked() *remoteOp {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	op := s.pending
	s.pending = nil
	return op
}

func (s *Store) cancelPendingLocked() {
	s.takePendingLocked()
}

func (s *Store) goRemoteLocked(op remoteOp) {
	if s.remote == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runRemote(op)
	}()
}

// runRemote performs op unless a later start or clear superseded it.
func (s *Store) runRemote(op remoteOp) {
	if s.remote == nil {
		return
	}
	s.remoteMu.Lock()
	defer s.remoteMu.Unlock()

	s.mu.Lock()
	stale := op.gen != s.gen
	s.mu.Unlock()
	if stale {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	defer cancel()
	if op.session == nil {
		if err := s.remote.Delete(ctx); err != nil {
			s.log.Warn("deleting remote session", "owner", s.owner, "error", err)
		}
		return
	}
	if err := s.remote.Upsert(ctx, op.session); err != nil {
		s.log.Warn("writing remote session", "owner", s.owner, "id", op.session.ID, "error", err)
	}
}
