package progression

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/meltforce/tempo/internal/audio"
	"github.com/meltforce/tempo/internal/models"
	"github.com/meltforce/tempo/internal/store"
)

const meditationRate = 1000

// softOutput hands out software contexts and remembers the latest.
type softOutput struct {
	last *audio.SoftContext
	fail bool
}

func (o *softOutput) factory() (audio.Context, error) {
	if o.fail {
		return nil, errors.New("no output device")
	}
	o.last = audio.NewSoftContext(meditationRate)
	return o.last, nil
}

func newMeditation(e *env, st *store.Store, out *softOutput) *Meditation {
	return NewMeditation(st, out.factory, MeditationOptions{
		Options:      e.opts(),
		PollInterval: -1,
		PositionSave: 5 * time.Second,
	})
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

// TestMeditationPauseScenario pauses at 100s, lets 50 wall-clock seconds
// pass, plays again and expects the position to resume at 100s.
func TestMeditationPauseScenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	out := &softOutput{}
	m := newMeditation(e, e.store, out)
	defer m.Close()

	script := []models.ScriptSegment{{Text: "Settle", Band: "slow", DurationSeconds: 300}}
	if _, err := m.Start(ctx, "Sleep", 5, script); err != nil {
		t.Fatal(err)
	}
	sc := out.last
	if err := sc.Advance(100 * time.Second); err != nil {
		t.Fatal(err)
	}
	e.clock.Advance(100 * time.Second)

	if err := m.Pause(ctx); err != nil {
		t.Fatal(err)
	}
	prog := e.store.Current().Progress.(models.MeditationProgress)
	if !prog.Paused || !near(prog.PositionSeconds, 100) {
		t.Errorf("persisted on pause = %+v", prog)
	}

	e.clock.Advance(50 * time.Second)
	buf := make([]float32, 2*meditationRate)
	for range 50 {
		if _, err := sc.Render(buf); err != nil {
			t.Fatal(err)
		}
	}

	if err := m.Play(ctx); err != nil {
		t.Fatal(err)
	}
	st, err := m.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !near(st.Position, 100) || !st.Playing {
		t.Errorf("status after play = %+v, want playing at 100s", st)
	}
	wantL, wantR := audio.Frequencies(audio.BandSlow.BeatHz())
	if f := sc.FrequencyAt(sc.CurrentTime()); !near(f[0], wantL) || !near(f[1], wantR) {
		t.Errorf("frequencies = %v", f)
	}
}

// TestMeditationRestartResumes verifies a new process continues playback
// from the persisted position.
func TestMeditationRestartResumes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	out := &softOutput{}
	m := newMeditation(e, e.store, out)
	if _, err := m.Start(ctx, "Focus", 10, nil); err != nil {
		t.Fatal(err)
	}
	_ = out.last.Advance(4 * time.Minute)
	if err := m.Pause(ctx); err != nil {
		t.Fatal(err)
	}
	m.Close()

	e.clock.Advance(20 * time.Minute)
	st2 := e.reopen()
	if _, status, err := st2.Resume(ctx); err != nil || status != store.ResumeRestored {
		t.Fatalf("Resume = %v, %v", status, err)
	}
	out2 := &softOutput{}
	m2 := newMeditation(e, st2, out2)
	defer m2.Close()

	before, err := m2.Status(ctx)
	if err != nil || !near(before.Position, 240) || !before.Paused {
		t.Fatalf("status before play = %+v, %v", before, err)
	}
	if err := m2.Play(ctx); err != nil {
		t.Fatal(err)
	}
	_ = out2.last.Advance(time.Minute)
	st, err := m2.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !near(st.Position, 300) || !near(st.Remaining, 300) {
		t.Errorf("status = %+v, want 300s played of 600", st)
	}
}

// TestMeditationNaturalEnd verifies the engine finishing the schedule logs
// the actual duration and destroys the session.
func TestMeditationNaturalEnd(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	out := &softOutput{}
	m := newMeditation(e, e.store, out)
	defer m.Close()

	if _, err := m.Start(ctx, "Rilassamento", 1, nil); err != nil {
		t.Fatal(err)
	}
	sc := out.last
	_ = sc.Advance(61 * time.Second)
	e.clock.Advance(61 * time.Second)
	m.Engine().Tick()

	if len(e.done) != 1 {
		t.Fatalf("summaries = %d, want 1", len(e.done))
	}
	sum := e.done[0]
	if sum.Kind != models.KindMeditation || sum.DurationMinutes != 1 || sum.PlannedMinutes != 1 || sum.Theme != "Rilassamento" {
		t.Errorf("summary = %+v", sum)
	}
	if e.store.Current() != nil {
		t.Error("session survived the end of the schedule")
	}
	if !sc.Closed() {
		t.Error("audio graph not torn down")
	}
}

// TestMeditationFinishEarly verifies stopping early logs the time played,
// not the planned time.
func TestMeditationFinishEarly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	out := &softOutput{}
	m := newMeditation(e, e.store, out)
	defer m.Close()

	if _, err := m.Start(ctx, "Meditazione", 20, nil); err != nil {
		t.Fatal(err)
	}
	_ = out.last.Advance(7*time.Minute + 40*time.Second)
	sum, err := m.Finish(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.DurationMinutes != 8 || sum.PlannedMinutes != 20 {
		t.Errorf("summary = %+v, want 8 of 20 minutes", sum)
	}
	if m.Engine().Scheduled() {
		t.Error("engine still scheduled after finish")
	}
}

// TestMeditationGraphFailure verifies a meditation whose audio graph cannot
// be built never becomes active and leaves the running workout in place.
func TestMeditationGraphFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := newMeditation(e, e.store, &softOutput{fail: true})
	defer m.Close()

	_, err := m.Start(ctx, "Focus", 10, nil)
	if !errors.Is(err, audio.ErrGraphCreation) {
		t.Fatalf("err = %v, want ErrGraphCreation", err)
	}
	if e.store.Current() != nil {
		t.Error("session active without audio")
	}

	if _, err := NewFree(e.store, e.opts()).Start(ctx, models.FreePayload{Name: "Mobility"}); err != nil {
		t.Fatal(err)
	}
	free := e.store.Current()
	e.clock.Advance(time.Minute)
	if _, err := m.Start(ctx, "Focus", 10, nil); !errors.Is(err, audio.ErrGraphCreation) {
		t.Fatalf("err = %v, want ErrGraphCreation", err)
	}
	if cur := e.store.Current(); cur == nil || cur.ID != free.ID {
		t.Fatalf("active session = %+v, want the free workout", cur)
	}

	got, status, err := e.reopen().Resume(ctx)
	if err != nil || status != store.ResumeRestored || got.ID != free.ID {
		t.Fatalf("Resume = %+v, %v, %v", got, status, err)
	}
	if len(e.done) != 0 {
		t.Errorf("summaries = %d, want none", len(e.done))
	}
}

// TestMeditationPositionSaves verifies the polled position is persisted at
// most once per save interval.
func TestMeditationPositionSaves(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	out := &softOutput{}
	m := newMeditation(e, e.store, out)
	defer m.Close()

	if _, err := m.Start(ctx, "Focus", 10, nil); err != nil {
		t.Fatal(err)
	}
	position := func() float64 {
		return e.store.Current().Progress.(models.MeditationProgress).PositionSeconds
	}

	for i := 1; i <= 12; i++ {
		_ = out.last.Advance(time.Second)
		e.clock.Advance(time.Second)
		m.Engine().Tick()
		switch i {
		case 4:
			if p := position(); p != 0 {
				t.Errorf("saved %v before the interval", p)
			}
		case 5, 10:
			if p := position(); !near(p, float64(i)) {
				t.Errorf("at %ds saved %v", i, p)
			}
		}
	}
}

// TestStoreClearStopsAudio verifies clearing the session through the store
// tears the audio graph down first.
func TestStoreClearStopsAudio(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	out := &softOutput{}
	m := newMeditation(e, e.store, out)
	defer m.Close()

	if _, err := m.Start(ctx, "Focus", 10, nil); err != nil {
		t.Fatal(err)
	}
	e.store.Clear(ctx)
	if m.Engine().Scheduled() || !out.last.Closed() {
		t.Error("audio still running after clear")
	}
	if len(e.done) != 0 {
		t.Error("exit produced a summary")
	}
}

// TestMeditationPauseWithoutAudio verifies pausing from a process that
// never programmed audio keeps the persisted position.
func TestMeditationPauseWithoutAudio(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	out := &softOutput{}
	m := newMeditation(e, e.store, out)
	if _, err := m.Start(ctx, "Focus", 10, nil); err != nil {
		t.Fatal(err)
	}
	_ = out.last.Advance(90 * time.Second)
	e.clock.Advance(90 * time.Second)
	m.Engine().Tick()
	if err := m.Pause(ctx); err != nil {
		t.Fatal(err)
	}
	m.Close()

	st2 := e.reopen()
	if _, _, err := st2.Resume(ctx); err != nil {
		t.Fatal(err)
	}
	m2 := newMeditation(e, st2, &softOutput{})
	defer m2.Close()
	if err := m2.Pause(ctx); err != nil {
		t.Fatal(err)
	}
	prog := st2.Current().Progress.(models.MeditationProgress)
	if !prog.Paused || !near(prog.PositionSeconds, 90) {
		t.Errorf("progress = %+v, want paused at 90s", prog)
	}
}
