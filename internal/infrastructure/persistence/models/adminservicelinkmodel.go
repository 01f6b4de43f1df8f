package models

import (
	"time"

	"github.com/vetiver-inc/vetiver/internal/shared/constants"
)

// AdminServiceLinkModel tracks one admin's share of a service's traffic.
// One row per (admin, service) pair.
type AdminServiceLinkModel struct {
	ID          uint   `gorm:"primarykey"`
	AdminID     uint   `gorm:"not null;uniqueIndex:idx_admin_service"`
	ServiceID   uint   `gorm:"not null;uniqueIndex:idx_admin_service"`
	UsedTraffic uint64 `gorm:"not null;default:0"` // effective bytes
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName specifies the table name for GORM
func (AdminServiceLinkModel) TableName() string {
	return constants.TableAdminServiceLinks
}
