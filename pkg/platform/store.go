package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haasonsaas/dpc/pkg/admin"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

var (
	ErrNoActiveAdmin     = errors.New("no active admin component")
	ErrAdminNotActive    = errors.New("admin component is not active")
	ErrOwnerAdminRemoval = errors.New("cannot remove the admin of a device owner")
)

// Store emulates the device admin service on top of sqlite. It holds current
// state only.
type Store struct {
	db      *gorm.DB
	logger  zerolog.Logger
	onEvent func(admin.Event)
	now     func() time.Time
}

type StoreOption func(*Store)

func WithStoreLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// WithEventSink receives the receiver callbacks the platform fires when
// activation changes.
func WithEventSink(fn func(admin.Event)) StoreOption {
	return func(s *Store) { s.onEvent = fn }
}

func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// Open opens (creating if needed) the sqlite database at dsn and migrates it.
func Open(dsn string, opts ...StoreOption) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open platform database: %w", err)
	}
	return NewStore(db, opts...)
}

// NewStore wraps an existing connection.
func NewStore(db *gorm.DB, opts ...StoreOption) (*Store, error) {
	s := &Store{
		db:     db,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := db.AutoMigrate(&AdminRecord{}, &Ownership{}, &LockState{}); err != nil {
		return nil, fmt.Errorf("migrate platform schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) IsDeviceOwner(ctx context.Context, pkg string) (bool, error) {
	own, err := s.ownership(ctx, pkg)
	if err != nil {
		return false, err
	}
	return own.DeviceOwner, nil
}

func (s *Store) IsProfileOwner(ctx context.Context, pkg string) (bool, error) {
	own, err := s.ownership(ctx, pkg)
	if err != nil {
		return false, err
	}
	return own.ProfileOwner, nil
}

func (s *Store) IsAdminActive(ctx context.Context, id admin.Identity) (bool, error) {
	rec, err := s.adminRecord(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return rec.Active, nil
}

func (s *Store) LockNow(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&AdminRecord{}).Where("active = ?", true).Count(&active).Error; err != nil {
			return err
		}
		if active == 0 {
			return ErrNoActiveAdmin
		}
		now := s.now()
		state := LockState{ID: lockStateID, LockCount: 1, LastLockedAt: &now}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"lock_count":     gorm.Expr("lock_count + 1"),
				"last_locked_at": now,
			}),
		}).Create(&state).Error
	})
}

func (s *Store) SetPasswordQuality(ctx context.Context, id admin.Identity, q admin.PasswordQuality) error {
	return s.updateActiveAdmin(ctx, id, "password_quality", int(q))
}

func (s *Store) SetPasswordMinimumLength(ctx context.Context, id admin.Identity, length int) error {
	return s.updateActiveAdmin(ctx, id, "password_minimum_length", length)
}

func (s *Store) updateActiveAdmin(ctx context.Context, id admin.Identity, column string, value int) error {
	res := s.db.WithContext(ctx).Model(&AdminRecord{}).
		Where("component = ? AND active = ?", id.String(), true).
		Update(column, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrAdminNotActive, id)
	}
	return nil
}

// RequestAdminActivation activates the component and fires Enabled when the
// component was not active before.
func (s *Store) RequestAdminActivation(ctx context.Context, id admin.Identity, explanation string) error {
	var changed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec AdminRecord
		err := tx.Where("component = ?", id.String()).First(&rec).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err == nil && rec.Active {
			return nil
		}
		now := s.now()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rec = AdminRecord{Component: id.String(), Package: id.Package}
		}
		rec.Active = true
		rec.Explanation = explanation
		rec.ActivatedAt = &now
		changed = true
		return tx.Save(&rec).Error
	})
	if err != nil {
		return err
	}
	if changed {
		s.logger.Info().Str("component", id.String()).Msg("Admin component activated")
		s.fire(admin.Enabled())
	}
	return nil
}

// RemoveActiveAdmin deactivates the component. DisableRequested fires while
// the component is still active, Disabled after the removal is committed.
// Removing an inactive component returns ErrAdminNotActive and fires nothing.
func (s *Store) RemoveActiveAdmin(ctx context.Context, id admin.Identity) error {
	own, err := s.ownership(ctx, id.Package)
	if err != nil {
		return err
	}
	if own.DeviceOwner {
		return fmt.Errorf("%w: %s", ErrOwnerAdminRemoval, id.Package)
	}
	rec, err := s.adminRecord(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !rec.Active) {
		return fmt.Errorf("%w: %s", ErrAdminNotActive, id)
	}
	if err != nil {
		return err
	}

	s.fire(admin.DisableRequested())

	res := s.db.WithContext(ctx).Model(&AdminRecord{}).
		Where("component = ? AND active = ?", id.String(), true).
		Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrAdminNotActive, id)
	}
	s.logger.Info().Str("component", id.String()).Msg("Admin component removed")
	s.fire(admin.Disabled())
	return nil
}

// SetDeviceOwner grants or revokes device ownership, as provisioning does.
func (s *Store) SetDeviceOwner(ctx context.Context, pkg string, owner bool) error {
	return s.setOwnership(ctx, pkg, "device_owner", owner)
}

// SetProfileOwner grants or revokes profile ownership.
func (s *Store) SetProfileOwner(ctx context.Context, pkg string, owner bool) error {
	return s.setOwnership(ctx, pkg, "profile_owner", owner)
}

func (s *Store) setOwnership(ctx context.Context, pkg, column string, value bool) error {
	if pkg == "" {
		return fmt.Errorf("%w: empty package", admin.ErrInvalidParameter)
	}
	own := Ownership{Package: pkg, UpdatedAt: s.now()}
	switch column {
	case "device_owner":
		own.DeviceOwner = value
	case "profile_owner":
		own.ProfileOwner = value
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "package"}},
		DoUpdates: clause.AssignmentColumns([]string{column, "updated_at"}),
	}).Create(&own).Error
}

// Snapshot is a read-only view of the emulated platform.
type Snapshot struct {
	Admins       []AdminRecord `json:"admins"`
	Owners       []Ownership   `json:"owners"`
	LockCount    int           `json:"lock_count"`
	LastLockedAt *time.Time    `json:"last_locked_at,omitempty"`
}

func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	db := s.db.WithContext(ctx)
	snap := &Snapshot{}
	if err := db.Order("component").Find(&snap.Admins).Error; err != nil {
		return nil, err
	}
	if err := db.Order("package").Find(&snap.Owners).Error; err != nil {
		return nil, err
	}
	var lock LockState
	if err := db.First(&lock, lockStateID).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	} else {
		snap.LockCount = lock.LockCount
		snap.LastLockedAt = lock.LastLockedAt
	}
	return snap, nil
}

func (s *Store) ownership(ctx context.Context, pkg string) (Ownership, error) {
	var own Ownership
	err := s.db.WithContext(ctx).Where("package = ?", pkg).First(&own).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Ownership{Package: pkg}, nil
	}
	return own, err
}

func (s *Store) adminRecord(ctx context.Context, id admin.Identity) (AdminRecord, error) {
	var rec AdminRecord
	err := s.db.WithContext(ctx).Where("component = ?", id.String()).First(&rec).Error
	return rec, err
}

func (s *Store) fire(ev admin.Event) {
	if s.onEvent != nil {
		s.onEvent(ev)
	}
}

var _ Platform = (*Store)(nil)
