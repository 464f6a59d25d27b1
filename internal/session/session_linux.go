//go:build linux

// Package session watches the logind desktop session so the daemon can
// release its device grabs while the screen is locked and reacquire them
// on unlock.
package session

import (
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"

	"remapd/internal/logging"
)

// Event is a session state change.
type Event int

const (
	// Locked means the session lock engaged.
	Locked Event = iota
	// Unlocked means the session lock released.
	Unlocked
)

// Monitor subscribes to Lock/Unlock signals of the current logind session.
type Monitor struct {
	conn    *dbus.Conn
	events  chan Event
	signals chan *dbus.Signal
}

// NewMonitor connects to the system bus and subscribes to the session the
// daemon runs in.
func NewMonitor() (*Monitor, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}

	manager := conn.Object("org.freedesktop.login1", "/org/freedesktop/login1")
	var sessionPath dbus.ObjectPath
	if err := manager.Call("org.freedesktop.login1.Manager.GetSessionByPID", 0,
		uint32(os.Getpid())).Store(&sessionPath); err != nil {
		conn.Close()
		return nil, fmt.Errorf("resolve logind session: %w", err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(sessionPath),
		dbus.WithMatchInterface("org.freedesktop.login1.Session"),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe to session signals: %w", err)
	}

	m := &Monitor{
		conn:    conn,
		events:  make(chan Event, 4),
		signals: make(chan *dbus.Signal, 16),
	}
	conn.Signal(m.signals)
	go m.loop()

	logging.Debug("watching logind session", "path", string(sessionPath))
	return m, nil
}

func (m *Monitor) loop() {
	defer close(m.events)
	for sig := range m.signals {
		switch sig.Name {
		case "org.freedesktop.login1.Session.Lock":
			m.deliver(Locked)
		case "org.freedesktop.login1.Session.Unlock":
			m.deliver(Unlocked)
		}
	}
}

func (m *Monitor) deliver(e Event) {
	for {
		select {
		case m.events <- e:
			return
		default:
		}
		// coalesce: the consumer only cares about the latest state, so
		// drop the oldest pending change to make room
		select {
		case <-m.events:
		default:
		}
	}
}

// Events streams lock state changes.
func (m *Monitor) Events() <-chan Event { return m.events }

// Close drops the bus connection.
func (m *Monitor) Close() error {
	m.conn.RemoveSignal(m.signals)
	return m.conn.Close()
}
