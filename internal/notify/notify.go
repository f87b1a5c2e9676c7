// Package notify delivers background notifications for a running session.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/meltforce/tempo/internal/models"
	"github.com/meltforce/tempo/internal/store"
)

const (
	notificationsDest   = "org.freedesktop.Notifications"
	notificationsPath   = "/org/freedesktop/Notifications"
	notificationsMethod = "org.freedesktop.Notifications.Notify"
	closeMethod         = "org.freedesktop.Notifications.CloseNotification"
	appName             = "Tempo"

	// IDFile holds the id of the notification on screen, so the next
	// invocation can replace or withdraw it.
	IDFile = "notification-id"
)

// busObject is the part of dbus.BusObject the notifier calls.
type busObject interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// Desktop posts notifications through org.freedesktop.Notifications on the
// user's session bus. Successive notifications replace the previous one.
type Desktop struct {
	conn *dbus.Conn
	obj  busObject
	// idPath persists replaceID across invocations. Empty keeps it in memory.
	idPath string

	mu        sync.Mutex
	replaceID uint32
	expire    int32
}

var (
	_ store.Notifier            = (*Desktop)(nil)
	_ store.NotificationClearer = (*Desktop)(nil)
)

// NewDesktop connects to the session bus. The id of the shown notification
// is kept in IDFile under stateDir.
func NewDesktop(stateDir string) (*Desktop, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	d := &Desktop{
		conn:   conn,
		obj:    conn.Object(notificationsDest, notificationsPath),
		expire: -1,
	}
	if stateDir != "" {
		d.idPath = filepath.Join(stateDir, IDFile)
		d.replaceID = readID(d.idPath)
	}
	return d, nil
}

func readID(path string) uint32 {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	id, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return 0
	}
	return uint32(id)
}

func (d *Desktop) saveIDLocked() error {
	if d.idPath == "" {
		return nil
	}
	if d.replaceID == 0 {
		if err := os.Remove(d.idPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing notification id: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(d.idPath, []byte(strconv.FormatUint(uint64(d.replaceID), 10)), 0o600); err != nil {
		return fmt.Errorf("writing notification id: %w", err)
	}
	return nil
}

// Notify shows n on the desktop.
func (d *Desktop) Notify(ctx context.Context, n models.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	call := d.obj.CallWithContext(ctx, notificationsMethod, 0,
		appName,            // app_name
		d.replaceID,        // replaces_id
		"appointment-soon", // app_icon
		n.Title,            // summary
		n.Body,             // body
		[]string{},         // actions
		map[string]dbus.Variant{
			"urgency": dbus.MakeVariant(byte(1)),
		},
		d.expire,
	)
	if call.Err != nil {
		return fmt.Errorf("failed to send notification: %w", call.Err)
	}
	var id uint32
	if err := call.Store(&id); err == nil {
		d.replaceID = id
		return d.saveIDLocked()
	}
	return nil
}

// Clear withdraws the notification shown by the last Notify, if any.
func (d *Desktop) Clear(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.replaceID
	if id == 0 {
		return nil
	}
	d.replaceID = 0
	if err := d.saveIDLocked(); err != nil {
		return err
	}
	// The server answers with an error when the notification has already
	// expired or been dismissed.
	if call := d.obj.CallWithContext(ctx, closeMethod, 0, id); call.Err != nil {
		return fmt.Errorf("failed to close notification %d: %w", id, call.Err)
	}
	return nil
}

// Close closes the bus connection.
func (d *Desktop) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

// Log writes notifications to a logger. It stands in where no desktop
// session bus is available.
type Log struct {
	log *slog.Logger
}

var _ store.Notifier = (*Log)(nil)

// NewLog returns a Log notifier.
func NewLog(log *slog.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Notify(_ context.Context, n models.Notification) error {
	l.log.Info("notification", "title", n.Title, "body", n.Body)
	return nil
}

// New picks the desktop notifier when kind is "desktop" and falls back to
// logging when the session bus is unreachable.
func New(kind, stateDir string, log *slog.Logger) store.Notifier {
	if kind != "desktop" {
		return NewLog(log)
	}
	d, err := NewDesktop(stateDir)
	if err != nil {
		log.Warn("desktop notifications unavailable", "error", err)
		return NewLog(log)
	}
	return d
}
