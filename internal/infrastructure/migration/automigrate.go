package migration

import (
	"github.com/vetiver-inc/vetiver/internal/infrastructure/persistence/models"
)

func AutoMigrateModels() []interface{} {
	return []interface{}{
		&models.AdminModel{},
		&models.UserModel{},
		&models.ServiceModel{},
		&models.AdminServiceLinkModel{},
		&models.NodeModel{},
		&models.MasterNodeStateModel{},
		&models.NodeUsageModel{},
		&models.NodeUserUsageModel{},
		&models.UsageResetLogModel{},
	}
}
