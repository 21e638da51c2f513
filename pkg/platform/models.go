package platform

import "time"

// AdminRecord is the emulated platform's registration of an admin component.
type AdminRecord struct {
	ID                    uint   `gorm:"primaryKey"`
	Component             string `gorm:"uniqueIndex"`
	Package               string `gorm:"index"`
	Active                bool
	Explanation           string `gorm:"type:text"`
	PasswordQuality       int
	PasswordMinimumLength int
	ActivatedAt           *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Ownership records device-owner and profile-owner grants per package.
type Ownership struct {
	ID           uint   `gorm:"primaryKey"`
	Package      string `gorm:"uniqueIndex"`
	DeviceOwner  bool
	ProfileOwner bool
	UpdatedAt    time.Time
}

// LockState holds the single lock counter row.
type LockState struct {
	ID           uint `gorm:"primaryKey"`
	LockCount    int
	LastLockedAt *time.Time
}

const lockStateID = 1
