package dbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	// DBusInterface is the notification interface name.
	DBusInterface = "org.freedesktop.Notifications"
	// DBusPath is the notification object path.
	DBusPath = "/org/freedesktop/Notifications"
	// DBusBusName is the bus name of the notification daemon.
	DBusBusName = "org.freedesktop.Notifications"

	notifyMethod = DBusInterface + ".Notify"
)

// Urgency levels from the freedesktop.org notification specification.
const (
	UrgencyLow      byte = 0
	UrgencyNormal   byte = 1
	UrgencyCritical byte = 2
)

// DefaultAppName is reported as the sending application.
const DefaultAppName = "clickr"

// Message is a single Notify call.
type Message struct {
	AppName       string
	AppIcon       string
	Summary       string
	Body          string
	Urgency       byte
	Category      string
	ExpireTimeout int32 // -1 = server default, 0 = never expire
}

// hints builds the hint map for m.
func (m Message) hints() map[string]dbus.Variant {
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(m.Urgency),
		// The relay plays its own sound.
		"suppress-sound": dbus.MakeVariant(true),
	}
	if m.Category != "" {
		hints["category"] = dbus.MakeVariant(m.Category)
	}
	return hints
}

// args returns the Notify arguments in wire order.
func (m Message) args() []any {
	appName := m.AppName
	if appName == "" {
		appName = DefaultAppName
	}
	return []any{
		appName,
		uint32(0), // replaces_id
		m.AppIcon,
		m.Summary,
		m.Body,
		[]string{}, // actions
		m.hints(),
		m.ExpireTimeout,
	}
}

// Notifier posts notifications on the session bus.
// The bus connection is opened on first use.
type Notifier struct {
	logger *slog.Logger
	icon   string

	mu   sync.Mutex
	conn *dbus.Conn
}

// NewNotifier creates a new Notifier.
func NewNotifier(icon string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		logger: logger,
		icon:   icon,
	}
}

// Notify shows a normal urgency notification.
func (n *Notifier) Notify(ctx context.Context, summary, body string) error {
	id, err := n.Send(ctx, Message{
		AppIcon:       n.icon,
		Summary:       summary,
		Body:          body,
		Urgency:       UrgencyNormal,
		Category:      "im.received",
		ExpireTimeout: -1,
	})
	if err != nil {
		return err
	}
	n.logger.Debug("desktop notification sent", "id", id)
	return nil
}

// Send delivers m and returns the id assigned by the notification daemon.
func (n *Notifier) Send(ctx context.Context, m Message) (uint32, error) {
	conn, err := n.connection()
	if err != nil {
		return 0, err
	}

	obj := conn.Object(DBusBusName, DBusPath)
	call := obj.CallWithContext(ctx, notifyMethod, 0, m.args()...)
	if call.Err != nil {
		return 0, fmt.Errorf("notify: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("notify: %w", err)
	}
	return id, nil
}

func (n *Notifier) connection() (*dbus.Conn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn != nil && n.conn.Connected() {
		return n.conn, nil
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	n.conn = conn
	return conn, nil
}

// Close releases the bus connection.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil {
		return nil
	}
	err := n.conn.Close()
	n.conn = nil
	return err
}
