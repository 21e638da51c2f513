// Package platform describes the device admin service the controller talks to
// and ships a sqlite-backed emulation of it for hosts without one.
package platform

import (
	"context"

	"github.com/haasonsaas/dpc/pkg/admin"
)

// Querier answers ownership and activation questions. Implementations must
// read live state on every call.
type Querier interface {
	IsDeviceOwner(ctx context.Context, pkg string) (bool, error)
	IsProfileOwner(ctx context.Context, pkg string) (bool, error)
	IsAdminActive(ctx context.Context, id admin.Identity) (bool, error)
}

// Commander performs privileged policy mutations. Each call is the single
// side-effecting step of a mediated command.
type Commander interface {
	LockNow(ctx context.Context) error
	SetPasswordQuality(ctx context.Context, id admin.Identity, q admin.PasswordQuality) error
	SetPasswordMinimumLength(ctx context.Context, id admin.Identity, length int) error
}

// Activator requests or drops admin activation for a component.
type Activator interface {
	RequestAdminActivation(ctx context.Context, id admin.Identity, explanation string) error
	RemoveActiveAdmin(ctx context.Context, id admin.Identity) error
}

// Platform is the full surface the emulated store provides.
type Platform interface {
	Querier
	Commander
	Activator
}
