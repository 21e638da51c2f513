// Package authority decides which ownership level the admin agent holds.
package authority

import (
	"context"
	"fmt"

	"github.com/haasonsaas/dpc/pkg/admin"
	"github.com/haasonsaas/dpc/pkg/platform"
)

// Evaluator reads ownership from the platform on every call. Results are
// never cached because the user or provisioning can revoke ownership at any
// time.
type Evaluator struct {
	platform platform.Querier
	identity admin.Identity
}

func New(q platform.Querier, id admin.Identity) *Evaluator {
	return &Evaluator{platform: q, identity: id}
}

func (e *Evaluator) Identity() admin.Identity {
	return e.identity
}

// CurrentAuthority reports DeviceOwner, ProfileOwner or None. Query failures
// are returned wrapped in admin.ErrPlatformFailure, never downgraded to None.
func (e *Evaluator) CurrentAuthority(ctx context.Context) (admin.AuthorityLevel, error) {
	deviceOwner, err := e.platform.IsDeviceOwner(ctx, e.identity.Package)
	if err != nil {
		return admin.AuthorityNone, fmt.Errorf("%w: device owner query: %w", admin.ErrPlatformFailure, err)
	}
	if deviceOwner {
		return admin.AuthorityDeviceOwner, nil
	}
	profileOwner, err := e.platform.IsProfileOwner(ctx, e.identity.Package)
	if err != nil {
		return admin.AuthorityNone, fmt.Errorf("%w: profile owner query: %w", admin.ErrPlatformFailure, err)
	}
	if profileOwner {
		return admin.AuthorityProfileOwner, nil
	}
	return admin.AuthorityNone, nil
}

// IsAdminActive reports whether the identity is registered active.
func (e *Evaluator) IsAdminActive(ctx context.Context) (bool, error) {
	active, err := e.platform.IsAdminActive(ctx, e.identity)
	if err != nil {
		return false, fmt.Errorf("%w: admin active query: %w", admin.ErrPlatformFailure, err)
	}
	return active, nil
}
