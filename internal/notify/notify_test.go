package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/meltforce/tempo/internal/models"
)

type recordedCall struct {
	method string
	args   []interface{}
}

type fakeBus struct {
	calls  []recordedCall
	nextID uint32
	err    error
}

func (f *fakeBus) CallWithContext(_ context.Context, method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	f.calls = append(f.calls, recordedCall{method: method, args: args})
	if f.err != nil {
		return &dbus.Call{Err: f.err}
	}
	f.nextID++
	return &dbus.Call{Body: []interface{}{f.nextID}}
}

// TestDesktopNotify verifies the Notify call carries title and body and
// that later notifications replace the earlier one.
func TestDesktopNotify(t *testing.T) {
	bus := &fakeBus{nextID: 40}
	d := &Desktop{obj: bus, expire: -1}
	ctx := context.Background()

	n := models.Notification{Title: "Run in progress", Body: "Time remaining: 20 minutes"}
	if err := d.Notify(ctx, n); err != nil {
		t.Fatal(err)
	}
	if err := d.Notify(ctx, n); err != nil {
		t.Fatal(err)
	}
	if len(bus.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(bus.calls))
	}

	first := bus.calls[0]
	if first.method != notificationsMethod {
		t.Errorf("method = %q", first.method)
	}
	if first.args[3] != n.Title || first.args[4] != n.Body {
		t.Errorf("summary/body = %v/%v", first.args[3], first.args[4])
	}
	if first.args[1] != uint32(0) {
		t.Errorf("first replaces_id = %v, want 0", first.args[1])
	}
	if bus.calls[1].args[1] != uint32(41) {
		t.Errorf("second replaces_id = %v, want 41", bus.calls[1].args[1])
	}
}

// TestDesktopNotifyError verifies bus failures are returned.
func TestDesktopNotifyError(t *testing.T) {
	d := &Desktop{obj: &fakeBus{err: errors.New("no such service")}}
	if err := d.Notify(context.Background(), models.Notification{}); err == nil {
		t.Error("expected error")
	}
}

// TestLogNotifier verifies the log notifier records the notification text.
func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := New("log", t.TempDir(), slog.New(slog.NewTextHandler(&buf, nil)))
	if err := n.Notify(context.Background(), models.Notification{Title: "Workout in progress", Body: "Time elapsed: 3 minutes"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Time elapsed: 3 minutes") {
		t.Errorf("log = %q", buf.String())
	}
}

// TestDesktopClear verifies returning to the foreground closes the shown
// notification once and forgets its id.
func TestDesktopClear(t *testing.T) {
	bus := &fakeBus{nextID: 6}
	d := &Desktop{obj: bus, expire: -1}
	ctx := context.Background()

	if err := d.Clear(ctx); err != nil || len(bus.calls) != 0 {
		t.Fatalf("Clear without notification = %v, calls %d", err, len(bus.calls))
	}
	if err := d.Notify(ctx, models.Notification{Title: "Meditation in progress"}); err != nil {
		t.Fatal(err)
	}
	if err := d.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if err := d.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if len(bus.calls) != 2 {
		t.Fatalf("calls = %d, want notify and one close", len(bus.calls))
	}
	closed := bus.calls[1]
	if closed.method != closeMethod || closed.args[0] != uint32(7) {
		t.Errorf("close call = %+v", closed)
	}
}

// TestDesktopIDPersists verifies a later invocation replaces and withdraws
// the notification an earlier one posted.
func TestDesktopIDPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), IDFile)
	ctx := context.Background()

	first := &Desktop{obj: &fakeBus{nextID: 11}, idPath: path, expire: -1}
	if err := first.Notify(ctx, models.Notification{Title: "Run in progress"}); err != nil {
		t.Fatal(err)
	}
	if got := readID(path); got != 12 {
		t.Fatalf("persisted id = %d, want 12", got)
	}

	bus := &fakeBus{err: errors.New("notification expired")}
	second := &Desktop{obj: bus, idPath: path, replaceID: readID(path), expire: -1}
	if err := second.Clear(ctx); err == nil {
		t.Error("expected close error to be reported")
	}
	if len(bus.calls) != 1 || bus.calls[0].args[0] != uint32(12) {
		t.Errorf("close calls = %+v", bus.calls)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("id file kept after clear: %v", err)
	}
}
