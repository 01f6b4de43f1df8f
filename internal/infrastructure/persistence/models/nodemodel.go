package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vetiver-inc/vetiver/internal/shared/constants"
)

// NodeModel represents the database persistence model for nodes
// This is the anti-corruption layer between domain and database
type NodeModel struct {
	ID               uint    `gorm:"primarykey"`
	Name             string  `gorm:"uniqueIndex;not null;size:100"`
	Address          string  `gorm:"not null;size:255;index:idx_server"`
	Port             uint16  `gorm:"not null;index:idx_server"`
	APIPort          uint16  `gorm:"not null"`
	APIToken         string  `gorm:"not null;size:255"`
	Status           string  `gorm:"not null;default:connecting;size:20;index:idx_status"` // connecting, connected, error, limited, disabled
	Message          string  `gorm:"size:500"`
	EngineVersion    string  `gorm:"size:50"`
	Uplink           uint64  `gorm:"not null;default:0"` // bytes
	Downlink         uint64  `gorm:"not null;default:0"` // bytes
	DataLimit        *uint64 // nil means unlimited
	UsageCoefficient float64 `gorm:"not null;default:1"`
	Tags             datatypes.JSON
	LastStatusChange time.Time `gorm:"not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        gorm.DeletedAt `gorm:"index"`

	// Note: No foreign key constraints or associations.
	// All relationships are managed by application business logic.
}

// TableName specifies the table name for GORM
func (NodeModel) TableName() string {
	return constants.TableNodes
}

// BeforeCreate hook for GORM
func (n *NodeModel) BeforeCreate(tx *gorm.DB) error {
	if n.Status == "" {
		n.Status = "connecting"
	}
	if n.UsageCoefficient == 0 {
		n.UsageCoefficient = 1.0
	}
	if n.LastStatusChange.IsZero() {
		n.LastStatusChange = time.Now()
	}
	return nil
}
