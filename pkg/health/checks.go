package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/dpc/pkg/admin"
)

// Authority is satisfied by *authority.Evaluator.
type Authority interface {
	Identity() admin.Identity
	CurrentAuthority(ctx context.Context) (admin.AuthorityLevel, error)
	IsAdminActive(ctx context.Context) (bool, error)
}

// Lifecycle is satisfied by *lifecycle.Tracker.
type Lifecycle interface {
	CurrentState() admin.AdminState
	Len() int
}

// Status is the read-only view a status screen or monitor renders.
type Status struct {
	Identity             string               `json:"identity"`
	DeviceOwner          bool                 `json:"device_owner"`
	ProfileOwner         bool                 `json:"profile_owner"`
	Authority            admin.AuthorityLevel `json:"authority"`
	AdminActive          bool                 `json:"admin_active"`
	AdminState           admin.AdminState     `json:"admin_state"`
	CanLock              bool                 `json:"can_lock"`
	CanRequestActivation bool                 `json:"can_request_activation"`
	AuditEntries         int                  `json:"audit_entries"`
	CheckedAt            time.Time            `json:"checked_at"`
	Healthy              bool                 `json:"healthy"`
	Issues               []string             `json:"issues,omitempty"`
}

// Check queries the platform once and folds in tracker state. It never
// mutates anything.
func Check(ctx context.Context, auth Authority, tracker Lifecycle) *Status {
	status := &Status{
		Identity:   auth.Identity().String(),
		AdminState: tracker.CurrentState(),
		Healthy:    true,
		Issues:     []string{},
		CheckedAt:  time.Now(),
	}
	status.AuditEntries = tracker.Len()

	level, err := auth.CurrentAuthority(ctx)
	if err != nil {
		status.Healthy = false
		status.Issues = append(status.Issues, fmt.Sprintf("authority query failed: %v", err))
	} else {
		status.Authority = level
		status.DeviceOwner = level == admin.AuthorityDeviceOwner
		status.ProfileOwner = level == admin.AuthorityProfileOwner
		status.CanLock = level.Privileged()
	}

	active, err := auth.IsAdminActive(ctx)
	if err != nil {
		status.Healthy = false
		status.Issues = append(status.Issues, fmt.Sprintf("admin active query failed: %v", err))
	} else {
		status.AdminActive = active
		status.CanRequestActivation = !active
	}

	if err == nil && active != (status.AdminState == admin.StateActive) {
		status.Issues = append(status.Issues, fmt.Sprintf("platform reports admin active=%t but tracker state is %s", active, status.AdminState))
	}

	return status
}

// Text renders the status the way the device's status screen shows it.
func (s *Status) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Device Owner: %s\n", yesNo(s.DeviceOwner))
	fmt.Fprintf(&b, "Profile Owner: %s\n", yesNo(s.ProfileOwner))
	fmt.Fprintf(&b, "Admin Active: %s", yesNo(s.AdminActive))
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
