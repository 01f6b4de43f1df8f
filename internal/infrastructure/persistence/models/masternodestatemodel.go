package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/vetiver-inc/vetiver/internal/shared/constants"
)

// MasterNodeStateModel represents the singleton row for the in-process
// proxy engine. Exactly one row exists, created lazily with a fixed ID.
type MasterNodeStateModel struct {
	ID               uint    `gorm:"primarykey"`
	Status           string  `gorm:"not null;default:connected;size:20"` // connected, limited
	Message          string  `gorm:"size:500"`
	EngineVersion    string  `gorm:"size:50"`
	Uplink           uint64  `gorm:"not null;default:0"`
	Downlink         uint64  `gorm:"not null;default:0"`
	DataLimit        *uint64 // nil means unlimited
	UsageCoefficient float64 `gorm:"not null;default:1"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName specifies the table name for GORM
func (MasterNodeStateModel) TableName() string {
	return constants.TableMasterNodeState
}

// BeforeCreate hook for GORM
func (m *MasterNodeStateModel) BeforeCreate(tx *gorm.DB) error {
	if m.Status == "" {
		m.Status = "connected"
	}
	if m.UsageCoefficient == 0 {
		m.UsageCoefficient = 1.0
	}
	return nil
}
