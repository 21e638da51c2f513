// Package mediator gates privileged device policy commands behind an
// authority check and reports every attempt as an admin.Outcome.
package mediator

import (
	"context"
	"fmt"
	"time"

	"github.com/haasonsaas/dpc/pkg/admin"
	"github.com/haasonsaas/dpc/pkg/platform"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/haasonsaas/dpc/pkg/mediator"

const (
	ReasonNotOwner      = "not device/profile owner"
	ReasonAdminInactive = "admin component not active"
)

// AuthorityChecker is satisfied by *authority.Evaluator.
type AuthorityChecker interface {
	CurrentAuthority(ctx context.Context) (admin.AuthorityLevel, error)
	IsAdminActive(ctx context.Context) (bool, error)
}

type Mediator struct {
	authority AuthorityChecker
	commands  platform.Commander
	identity  admin.Identity
	locker    *Locker
	journal   *Journal
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

type Option func(*Mediator)

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Mediator) { m.logger = logger }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(m *Mediator) { m.tracer = tracer }
}

// WithLocker shares a lock registry between mediators for the same identity.
func WithLocker(l *Locker) Option {
	return func(m *Mediator) { m.locker = l }
}

func WithJournal(j *Journal) Option {
	return func(m *Mediator) { m.journal = j }
}

func WithClock(now func() time.Time) Option {
	return func(m *Mediator) { m.now = now }
}

func New(auth AuthorityChecker, cmds platform.Commander, id admin.Identity, opts ...Option) *Mediator {
	m := &Mediator{
		authority: auth,
		commands:  cmds,
		identity:  id,
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.locker == nil {
		m.locker = NewLocker()
	}
	if m.journal == nil {
		m.journal = NewJournal(DefaultJournalSize)
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer(tracerName)
	}
	return m
}

func (m *Mediator) Journal() *Journal {
	return m.journal
}

// LockNow forces an immediate screen lock. Any timeoutHint, negative included,
// is accepted and logged but the platform lock primitive takes no timeout, so
// it has no effect. The returned error is always nil.
func (m *Mediator) LockNow(ctx context.Context, timeoutHint *time.Duration) (admin.Outcome, error) {
	attrs := []attribute.KeyValue{}
	if timeoutHint != nil {
		attrs = append(attrs, attribute.Int64("dpc.lock.timeout_hint_ms", timeoutHint.Milliseconds()))
		m.logger.Debug().Dur("timeout_hint", *timeoutHint).Msg("Lock timeout hint ignored by platform lock primitive")
	}
	return m.run(ctx, admin.OpLockNow, false, attrs, func(ctx context.Context) error {
		return m.commands.LockNow(ctx)
	}), nil
}

func (m *Mediator) SetPasswordQuality(ctx context.Context, q admin.PasswordQuality) (admin.Outcome, error) {
	if !q.Valid() {
		return admin.Outcome{}, fmt.Errorf("%w: password quality %s", admin.ErrInvalidParameter, q)
	}
	attrs := []attribute.KeyValue{attribute.String("dpc.password.quality", q.String())}
	return m.run(ctx, admin.OpSetPasswordQuality, true, attrs, func(ctx context.Context) error {
		return m.commands.SetPasswordQuality(ctx, m.identity, q)
	}), nil
}

// SetPasswordMinimumLength requires length >= 0; a negative value is rejected
// with admin.ErrInvalidParameter before anything is queried or dispatched.
func (m *Mediator) SetPasswordMinimumLength(ctx context.Context, length int) (admin.Outcome, error) {
	if length < 0 {
		return admin.Outcome{}, fmt.Errorf("%w: password minimum length %d", admin.ErrInvalidParameter, length)
	}
	attrs := []attribute.KeyValue{attribute.Int("dpc.password.minimum_length", length)}
	return m.run(ctx, admin.OpSetPasswordMinimumLength, true, attrs, func(ctx context.Context) error {
		return m.commands.SetPasswordMinimumLength(ctx, m.identity, length)
	}), nil
}

func (m *Mediator) run(ctx context.Context, op admin.Op, requireActive bool, attrs []attribute.KeyValue, call func(context.Context) error) admin.Outcome {
	ctx, span := m.tracer.Start(ctx, "mediator."+string(op))
	defer span.End()
	span.SetAttributes(attrs...)
	span.SetAttributes(
		attribute.String("dpc.op", string(op)),
		attribute.String("dpc.identity", m.identity.String()),
	)

	release := m.locker.Lock(m.identity)
	outcome := m.evaluateAndDispatch(ctx, op, requireActive, span, call)
	release()

	outcome.At = m.now()
	m.journal.Record(outcome)
	m.report(outcome, span)
	return outcome
}

func (m *Mediator) evaluateAndDispatch(ctx context.Context, op admin.Op, requireActive bool, span trace.Span, call func(context.Context) error) admin.Outcome {
	level, err := m.authority.CurrentAuthority(ctx)
	if err != nil {
		return admin.Failed(op, err)
	}
	span.SetAttributes(attribute.String("dpc.authority", level.String()))
	if !level.Privileged() {
		return admin.Denied(op, ReasonNotOwner)
	}

	if requireActive {
		active, err := m.authority.IsAdminActive(ctx)
		if err != nil {
			return admin.Failed(op, err)
		}
		if !active {
			return admin.Denied(op, ReasonAdminInactive)
		}
	}

	if err := dispatch(ctx, call); err != nil {
		return admin.Failed(op, fmt.Errorf("%w: %w", admin.ErrPlatformFailure, err))
	}
	return admin.Executed(op)
}

// dispatch converts a panicking platform adapter into an error.
func dispatch(ctx context.Context, call func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("platform call panicked: %v", r)
		}
	}()
	return call(ctx)
}

func (m *Mediator) report(o admin.Outcome, span trace.Span) {
	span.SetAttributes(attribute.String("dpc.outcome", o.Kind.String()))
	logger := m.logger.With().Str("op", string(o.Op)).Str("identity", m.identity.String()).Logger()
	switch o.Kind {
	case admin.OutcomeExecuted:
		logger.Info().Msg("Policy command executed")
	case admin.OutcomeDenied:
		span.SetAttributes(attribute.String("dpc.denied_reason", o.Reason))
		logger.Warn().Str("reason", o.Reason).Msg("Policy command denied")
	case admin.OutcomeFailed:
		span.RecordError(o.Cause)
		span.SetStatus(codes.Error, o.Cause.Error())
		logger.Error().Err(o.Cause).Msg("Policy command failed")
	}
}
