// Package lifecycle records admin activation transitions and the security
// events the platform reports to the admin receiver.
package lifecycle

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/dpc/pkg/admin"
	"github.com/rs/zerolog"
)

// DisableWarning is shown to the user before the platform commits a disable.
const DisableWarning = "Disabling device admin will remove MDM control from this device"

// Receipt describes what a single ingested event did.
type Receipt struct {
	Event   admin.Event      `json:"event"`
	From    admin.AdminState `json:"from"`
	To      admin.AdminState `json:"to"`
	Warning string           `json:"warning,omitempty"`
}

// Changed reports whether the event moved the admin state.
func (r Receipt) Changed() bool {
	return r.From != r.To
}

// Tracker is the admin state machine. All methods are safe for concurrent use.
// The audit log is unbounded; long-running callers trim it through AuditSince.
type Tracker struct {
	mu       sync.Mutex
	state    admin.AdminState
	audit    []admin.Event
	logger   zerolog.Logger
	now      func() time.Time
	observer func(admin.Event)
}

type Option func(*Tracker)

func WithLogger(logger zerolog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithObserver is invoked after each event is recorded, outside the lock.
func WithObserver(fn func(admin.Event)) Option {
	return func(t *Tracker) { t.observer = fn }
}

func New(opts ...Option) *Tracker {
	t := &Tracker{
		state:  admin.StateInactive,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Ingest is the only way events enter the tracker.
func (t *Tracker) Ingest(ev admin.Event) Receipt {
	t.mu.Lock()
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	ev.At = t.now()
	if ev.Kind != admin.EventLockTaskEntering {
		ev.Package = ""
	}

	rec := Receipt{Event: ev, From: t.state, To: t.state}
	logger := t.logger.With().Str("event", ev.Kind.String()).Str("event_id", ev.ID).Logger()

	switch ev.Kind {
	case admin.EventEnabled:
		if t.state == admin.StateActive {
			logger.Debug().Msg("Device admin already enabled")
		} else {
			logger.Info().Msg("Device admin enabled")
		}
		t.state = admin.StateActive
	case admin.EventDisabled:
		if t.state == admin.StateInactive {
			logger.Debug().Msg("Device admin already disabled")
		} else {
			logger.Info().Msg("Device admin disabled")
		}
		t.state = admin.StateInactive
	case admin.EventDisableRequested:
		rec.Warning = DisableWarning
		logger.Info().Msg("Device admin disable requested")
	case admin.EventPasswordChanged:
		logger.Info().Msg("Password changed")
	case admin.EventPasswordFailed:
		logger.Info().Msg("Password failed")
	case admin.EventPasswordSucceeded:
		logger.Info().Msg("Password succeeded")
	case admin.EventLockTaskEntering:
		logger.Info().Str("package", ev.Package).Msg("Lock task mode entering")
	case admin.EventLockTaskExiting:
		logger.Info().Msg("Lock task mode exiting")
	default:
		logger.Warn().Int("kind", int(ev.Kind)).Msg("Unrecognized lifecycle event recorded")
	}

	rec.To = t.state
	t.audit = append(t.audit, ev)
	observer := t.observer
	t.mu.Unlock()

	if observer != nil {
		observer(ev)
	}
	return rec
}

func (t *Tracker) CurrentState() admin.AdminState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// AuditLog returns a copy of every ingested event in insertion order.
func (t *Tracker) AuditLog() []admin.Event {
	return t.AuditSince(0)
}

// AuditSince returns events from index n onward.
func (t *Tracker) AuditSince(n int) []admin.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if n >= len(t.audit) {
		return []admin.Event{}
	}
	out := make([]admin.Event, len(t.audit)-n)
	copy(out, t.audit[n:])
	return out
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.audit)
}
