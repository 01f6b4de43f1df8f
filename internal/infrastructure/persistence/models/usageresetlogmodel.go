package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/vetiver-inc/vetiver/internal/shared/constants"
)

// UsageResetLogModel records counter resets so wiped rolling values stay
// auditable. Snapshot holds the counter values at reset time as JSON.
type UsageResetLogModel struct {
	ID        uint   `gorm:"primarykey"`
	Category  string `gorm:"not null;size:20;index:idx_reset_entity"` // user, admin, service, node
	EntityID  uint   `gorm:"not null;index:idx_reset_entity"`
	Value     uint64 `gorm:"not null;default:0"`
	Snapshot  datatypes.JSON
	Reason    string `gorm:"not null;size:255"`
	CreatedAt time.Time
}

// TableName specifies the table name for GORM
func (UsageResetLogModel) TableName() string {
	return constants.TableUsageResetLogs
}
