// Package systemd talks to the service manager: readiness notifications over
// the notify socket and unit control over D-Bus.
package systemd

import (
	"context"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"
)

// DefaultUnit is the unit name the daemon is installed under.
const DefaultUnit = "ezvizbridge.service"

// Manager controls units over a user or system D-Bus connection.
type Manager struct {
	conn *dbus.Conn
}

// NewManager connects to the user bus, falling back to the system bus.
func NewManager(ctx context.Context) (*Manager, error) {
	conn, err := dbus.NewUserConnectionContext(ctx)
	if err != nil {
		conn, err = dbus.NewSystemConnectionContext(ctx)
		if err != nil {
			return nil, err
		}
	}
	return &Manager{conn: conn}, nil
}

// UnitStatus returns the ActiveState of unit, e.g. "active" or "failed".
func (m *Manager) UnitStatus(ctx context.Context, unit string) (string, error) {
	prop, err := m.conn.GetUnitPropertyContext(ctx, unit, "ActiveState")
	if err != nil {
		return "", err
	}
	return strings.Trim(prop.Value.String(), `"`), nil
}

// RestartUnit queues a restart of unit and returns without waiting for it.
func (m *Manager) RestartUnit(ctx context.Context, unit string) error {
	_, err := m.conn.RestartUnitContext(ctx, unit, "replace", nil)
	return err
}

// Close closes the D-Bus connection.
func (m *Manager) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}
