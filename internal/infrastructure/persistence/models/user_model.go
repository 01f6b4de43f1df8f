package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/vetiver-inc/vetiver/internal/shared/constants"
)

// UserModel represents the database persistence model for users
// This is the anti-corruption layer between domain and database
type UserModel struct {
	ID          uint    `gorm:"primarykey"`
	Username    string  `gorm:"uniqueIndex;not null;size:64"`
	AdminID     uint    `gorm:"not null;index:idx_users_admin"`
	ServiceID   *uint   `gorm:"index:idx_users_service"`
	Status      string  `gorm:"not null;default:on_hold;size:20;index:idx_users_status"` // active, on_hold, disabled, limited
	PrevStatus  *string `gorm:"size:20"`                                                 // set while suspended by an admin-quota cascade
	UsedTraffic uint64  `gorm:"not null;default:0"`                                      // effective bytes
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

// TableName specifies the table name for GORM
func (UserModel) TableName() string {
	return constants.TableUsers
}

// BeforeCreate hook for GORM
func (u *UserModel) BeforeCreate(tx *gorm.DB) error {
	if u.Status == "" {
		u.Status = "on_hold"
	}
	return nil
}
