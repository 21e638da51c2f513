package admin

import (
	"encoding/json"
	"fmt"
	"time"
)

// Op names a privileged command.
type Op string

const (
	OpLockNow                  Op = "lock_now"
	OpSetPasswordQuality       Op = "set_password_quality"
	OpSetPasswordMinimumLength Op = "set_password_minimum_length"
)

type OutcomeKind int

const (
	OutcomeExecuted OutcomeKind = iota + 1
	OutcomeDenied
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeExecuted:
		return "executed"
	case OutcomeDenied:
		return "denied"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Outcome is the single result of one mediated command. Reason is set for
// Denied and Cause for Failed.
type Outcome struct {
	Op     Op          `json:"op"`
	Kind   OutcomeKind `json:"outcome"`
	Reason string      `json:"reason,omitempty"`
	Cause  error       `json:"-"`
	At     time.Time   `json:"at"`
}

func Executed(op Op) Outcome {
	return Outcome{Op: op, Kind: OutcomeExecuted}
}

func Denied(op Op, reason string) Outcome {
	return Outcome{Op: op, Kind: OutcomeDenied, Reason: reason}
}

func Failed(op Op, cause error) Outcome {
	return Outcome{Op: op, Kind: OutcomeFailed, Cause: cause}
}

func (o Outcome) IsExecuted() bool { return o.Kind == OutcomeExecuted }
func (o Outcome) IsDenied() bool   { return o.Kind == OutcomeDenied }
func (o Outcome) IsFailed() bool   { return o.Kind == OutcomeFailed }

// Err returns nil for Executed, ErrAuthorityDenied for Denied and the cause
// for Failed, so callers can fold an outcome into an error chain.
func (o Outcome) Err() error {
	switch o.Kind {
	case OutcomeExecuted:
		return nil
	case OutcomeDenied:
		return fmt.Errorf("%s: %w: %s", o.Op, ErrAuthorityDenied, o.Reason)
	default:
		if o.Cause == nil {
			return fmt.Errorf("%s: %w", o.Op, ErrPlatformFailure)
		}
		return fmt.Errorf("%s: %w", o.Op, o.Cause)
	}
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeDenied:
		return fmt.Sprintf("%s denied: %s", o.Op, o.Reason)
	case OutcomeFailed:
		return fmt.Sprintf("%s failed: %v", o.Op, o.Cause)
	default:
		return fmt.Sprintf("%s %s", o.Op, o.Kind)
	}
}

// MarshalJSON adds the cause text, which error values cannot carry on their own.
func (o Outcome) MarshalJSON() ([]byte, error) {
	type plain Outcome
	out := struct {
		plain
		Cause string `json:"cause,omitempty"`
	}{plain: plain(o)}
	if o.Cause != nil {
		out.Cause = o.Cause.Error()
	}
	return json.Marshal(out)
}
