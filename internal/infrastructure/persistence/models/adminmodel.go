package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/vetiver-inc/vetiver/internal/shared/constants"
)

// AdminModel represents the database persistence model for admins
type AdminModel struct {
	ID              uint    `gorm:"primarykey"`
	Username        string  `gorm:"uniqueIndex;not null;size:64"`
	Status          string  `gorm:"not null;default:active;size:20;index:idx_admins_status"` // active, disabled
	DataLimit       *uint64 // nil means unlimited
	UsersLimit      *uint   // nil means unlimited
	UsersUsage      uint64  `gorm:"not null;default:0"` // rolling, resettable
	LifetimeUsage   uint64  `gorm:"not null;default:0"` // monotonic
	DisabledByQuota bool    `gorm:"not null;default:false"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       gorm.DeletedAt `gorm:"index"`
}

// TableName specifies the table name for GORM
func (AdminModel) TableName() string {
	return constants.TableAdmins
}

// BeforeCreate hook for GORM
func (a *AdminModel) BeforeCreate(tx *gorm.DB) error {
	if a.Status == "" {
		a.Status = "active"
	}
	return nil
}
