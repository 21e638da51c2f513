package platform

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/haasonsaas/dpc/pkg/admin"
	"github.com/stretchr/testify/require"
)

var storeIdentity = admin.Identity{Package: "com.mdm.dpc", Receiver: "com.mdm.dpc.DeviceAdminReceiver"}

func newTestStore(t *testing.T, opts ...StoreOption) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:platform-test-%d?mode=memory&cache=shared", time.Now().UnixNano())
	s, err := Open(dsn, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreOwnershipDefaultsToNone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	do, err := s.IsDeviceOwner(ctx, storeIdentity.Package)
	require.NoError(t, err)
	require.False(t, do)

	require.NoError(t, s.SetProfileOwner(ctx, storeIdentity.Package, true))
	po, err := s.IsProfileOwner(ctx, storeIdentity.Package)
	require.NoError(t, err)
	require.True(t, po)

	require.NoError(t, s.SetDeviceOwner(ctx, storeIdentity.Package, true))
	po, err = s.IsProfileOwner(ctx, storeIdentity.Package)
	require.NoError(t, err)
	require.True(t, po, "granting device owner must not clear profile owner")
}

func TestStoreActivationFiresCallbacks(t *testing.T) {
	var events []admin.EventKind
	s := newTestStore(t, WithEventSink(func(ev admin.Event) { events = append(events, ev.Kind) }))
	ctx := context.Background()

	require.NoError(t, s.RequestAdminActivation(ctx, storeIdentity, "needs admin"))
	require.NoError(t, s.RequestAdminActivation(ctx, storeIdentity, "needs admin"))
	active, err := s.IsAdminActive(ctx, storeIdentity)
	require.NoError(t, err)
	require.True(t, active)

	require.NoError(t, s.RemoveActiveAdmin(ctx, storeIdentity))
	active, err = s.IsAdminActive(ctx, storeIdentity)
	require.NoError(t, err)
	require.False(t, active)

	require.Equal(t, []admin.EventKind{admin.EventEnabled, admin.EventDisableRequested, admin.EventDisabled}, events)
}

func TestStoreRefusesToRemoveDeviceOwnerAdmin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.RequestAdminActivation(ctx, storeIdentity, ""))
	require.NoError(t, s.SetDeviceOwner(ctx, storeIdentity.Package, true))

	require.ErrorIs(t, s.RemoveActiveAdmin(ctx, storeIdentity), ErrOwnerAdminRemoval)
}

func TestStoreLockNowCountsLocks(t *testing.T) {
	at := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	s := newTestStore(t, WithStoreClock(func() time.Time { return at }))
	ctx := context.Background()

	require.ErrorIs(t, s.LockNow(ctx), ErrNoActiveAdmin)

	require.NoError(t, s.RequestAdminActivation(ctx, storeIdentity, ""))
	require.NoError(t, s.LockNow(ctx))
	require.NoError(t, s.LockNow(ctx))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, snap.LockCount)
	require.NotNil(t, snap.LastLockedAt)
	require.True(t, snap.LastLockedAt.Equal(at))
}

func TestStorePasswordPolicyRequiresActiveAdmin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.ErrorIs(t, s.SetPasswordQuality(ctx, storeIdentity, admin.QualityComplex), ErrAdminNotActive)

	require.NoError(t, s.RequestAdminActivation(ctx, storeIdentity, ""))
	require.NoError(t, s.SetPasswordQuality(ctx, storeIdentity, admin.QualityComplex))
	require.NoError(t, s.SetPasswordMinimumLength(ctx, storeIdentity, 8))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Admins, 1)
	require.Equal(t, int(admin.QualityComplex), snap.Admins[0].PasswordQuality)
	require.Equal(t, 8, snap.Admins[0].PasswordMinimumLength)
}

func TestStoreDisableRequestedFiresBeforeRemovalCommits(t *testing.T) {
	ctx := context.Background()
	var s *Store
	activeAt := map[admin.EventKind]bool{}
	s = newTestStore(t, WithEventSink(func(ev admin.Event) {
		active, err := s.IsAdminActive(ctx, storeIdentity)
		require.NoError(t, err)
		activeAt[ev.Kind] = active
	}))

	require.NoError(t, s.RequestAdminActivation(ctx, storeIdentity, ""))
	require.NoError(t, s.RemoveActiveAdmin(ctx, storeIdentity))

	require.True(t, activeAt[admin.EventDisableRequested], "admin must still be active when the warning is raised")
	require.False(t, activeAt[admin.EventDisabled])
}

func TestStoreRemovingInactiveAdminFiresNothing(t *testing.T) {
	var events []admin.EventKind
	s := newTestStore(t, WithEventSink(func(ev admin.Event) { events = append(events, ev.Kind) }))
	ctx := context.Background()

	require.ErrorIs(t, s.RemoveActiveAdmin(ctx, storeIdentity), ErrAdminNotActive)

	require.NoError(t, s.RequestAdminActivation(ctx, storeIdentity, ""))
	require.NoError(t, s.RemoveActiveAdmin(ctx, storeIdentity))
	require.ErrorIs(t, s.RemoveActiveAdmin(ctx, storeIdentity), ErrAdminNotActive)

	require.Equal(t, []admin.EventKind{admin.EventEnabled, admin.EventDisableRequested, admin.EventDisabled}, events)
}
