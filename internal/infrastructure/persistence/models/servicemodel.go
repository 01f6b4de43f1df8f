package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/vetiver-inc/vetiver/internal/shared/constants"
)

// ServiceModel represents the database persistence model for services
type ServiceModel struct {
	ID          uint   `gorm:"primarykey"`
	Name        string `gorm:"not null;size:100"`
	UsedTraffic uint64 `gorm:"not null;default:0"` // effective bytes
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

// TableName specifies the table name for GORM
func (ServiceModel) TableName() string {
	return constants.TableServices
}
