package admin

import (
	"fmt"
	"strings"
	"time"
)

// EventKind enumerates the callbacks the platform delivers to the admin receiver.
type EventKind int

const (
	EventEnabled EventKind = iota + 1
	EventDisabled
	EventDisableRequested
	EventPasswordChanged
	EventPasswordFailed
	EventPasswordSucceeded
	EventLockTaskEntering
	EventLockTaskExiting
)

var eventKindNames = map[EventKind]string{
	EventEnabled:           "enabled",
	EventDisabled:          "disabled",
	EventDisableRequested:  "disable_requested",
	EventPasswordChanged:   "password_changed",
	EventPasswordFailed:    "password_failed",
	EventPasswordSucceeded: "password_succeeded",
	EventLockTaskEntering:  "lock_task_entering",
	EventLockTaskExiting:   "lock_task_exiting",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("event_kind(%d)", int(k))
}

func (k EventKind) Valid() bool {
	_, ok := eventKindNames[k]
	return ok
}

func (k EventKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: unknown event kind %d", ErrInvalidParameter, int(k))
	}
	return []byte(k.String()), nil
}

func (k *EventKind) UnmarshalText(text []byte) error {
	parsed, err := ParseEventKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseEventKind maps a wire name such as "lock_task_entering" to its kind.
func ParseEventKind(s string) (EventKind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "-", "_")
	for kind, n := range eventKindNames {
		if n == name {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown event kind %q", ErrInvalidParameter, s)
}

// Event is one lifecycle callback. At is stamped by the tracker on ingestion.
type Event struct {
	ID      string    `json:"id"`
	Kind    EventKind `json:"kind"`
	Package string    `json:"package,omitempty"`
	At      time.Time `json:"at"`
}

func Enabled() Event           { return Event{Kind: EventEnabled} }
func Disabled() Event          { return Event{Kind: EventDisabled} }
func DisableRequested() Event  { return Event{Kind: EventDisableRequested} }
func PasswordChanged() Event   { return Event{Kind: EventPasswordChanged} }
func PasswordFailed() Event    { return Event{Kind: EventPasswordFailed} }
func PasswordSucceeded() Event { return Event{Kind: EventPasswordSucceeded} }
func LockTaskExiting() Event   { return Event{Kind: EventLockTaskExiting} }

// LockTaskEntering records the package pinned by lock-task mode.
func LockTaskEntering(pkg string) Event {
	return Event{Kind: EventLockTaskEntering, Package: pkg}
}

// NewEvent builds an event from its wire form. The package is kept only for
// LockTaskEntering.
func NewEvent(kind, pkg string) (Event, error) {
	k, err := ParseEventKind(kind)
	if err != nil {
		return Event{}, err
	}
	ev := Event{Kind: k}
	if k == EventLockTaskEntering {
		ev.Package = strings.TrimSpace(pkg)
	}
	return ev, nil
}
