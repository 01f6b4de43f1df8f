package services

import (
	"context"
	"fmt"

	adminServices "github.com/vetiver-inc/vetiver/internal/application/admin/services"
	nodeServices "github.com/vetiver-inc/vetiver/internal/application/node/services"
	"github.com/vetiver-inc/vetiver/internal/domain/admin"
	"github.com/vetiver-inc/vetiver/internal/domain/node"
	"github.com/vetiver-inc/vetiver/internal/domain/service"
	"github.com/vetiver-inc/vetiver/internal/domain/usage"
	"github.com/vetiver-inc/vetiver/internal/domain/user"
	"github.com/vetiver-inc/vetiver/internal/shared/db"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

const defaultResetReason = "manual reset"

// ResetService zeroes rolling usage counters. The wiped value moves into a
// reset-log row in the same transaction, so the counter and its audit trail
// can never disagree. After the commit the matching quota policy runs again,
// re-arming an entity that dropped back under its limit without waiting for
// the next collected delta.
type ResetService struct {
	userRepo     user.Repository
	adminRepo    admin.Repository
	serviceRepo  service.Repository
	nodeRepo     node.NodeRepository
	masterRepo   node.MasterStateRepository
	resetLogRepo usage.ResetLogRepository
	enforcer     *nodeServices.QuotaEnforcer
	cascade      *adminServices.QuotaCascadeService
	tm           *db.TransactionManager
	logger       logger.Interface
}

// NewResetService creates a new usage reset service
func NewResetService(
	userRepo user.Repository,
	adminRepo admin.Repository,
	serviceRepo service.Repository,
	nodeRepo node.NodeRepository,
	masterRepo node.MasterStateRepository,
	resetLogRepo usage.ResetLogRepository,
	enforcer *nodeServices.QuotaEnforcer,
	cascade *adminServices.QuotaCascadeService,
	tm *db.TransactionManager,
	log logger.Interface,
) *ResetService {
	return &ResetService{
		userRepo:     userRepo,
		adminRepo:    adminRepo,
		serviceRepo:  serviceRepo,
		nodeRepo:     nodeRepo,
		masterRepo:   masterRepo,
		resetLogRepo: resetLogRepo,
		enforcer:     enforcer,
		cascade:      cascade,
		tm:           tm,
		logger:       log.Named("usage-reset"),
	}
}

// ResetUserUsage zeroes a user's rolling counter and returns the previous value
func (s *ResetService) ResetUserUsage(ctx context.Context, userID uint, reason string) (uint64, error) {
	if reason == "" {
		reason = defaultResetReason
	}

	var prev uint64
	err := s.tm.RunInTransaction(ctx, func(txCtx context.Context) error {
		var err error
		prev, err = s.userRepo.ResetUsage(txCtx, userID)
		if err != nil {
			return fmt.Errorf("failed to reset user usage: %w", err)
		}
		return s.writeLog(txCtx, usage.CategoryUser, userID, prev,
			map[string]uint64{"used_traffic": prev}, reason)
	})
	if err != nil {
		return 0, err
	}

	s.logger.Infow("user usage reset", "user_id", userID, "previous", prev, "reason", reason)
	return prev, nil
}

// ResetAdminUsage zeroes an admin's rolling counter and returns the previous
// value. The lifetime counter is untouched. An admin disabled by quota whose
// usage is now under the limit is re-enabled through the cascade reversal.
func (s *ResetService) ResetAdminUsage(ctx context.Context, adminID uint, reason string) (uint64, error) {
	if reason == "" {
		reason = defaultResetReason
	}

	var prev uint64
	err := s.tm.RunInTransaction(ctx, func(txCtx context.Context) error {
		var err error
		prev, err = s.adminRepo.ResetUsage(txCtx, adminID)
		if err != nil {
			return fmt.Errorf("failed to reset admin usage: %w", err)
		}
		return s.writeLog(txCtx, usage.CategoryAdmin, adminID, prev,
			map[string]uint64{"users_usage": prev}, reason)
	})
	if err != nil {
		return 0, err
	}

	if err := s.cascade.EvaluateAdmin(ctx, adminID); err != nil {
		s.logger.Errorw("admin quota re-arm failed after reset", "admin_id", adminID, "error", err)
	}

	s.logger.Infow("admin usage reset", "admin_id", adminID, "previous", prev, "reason", reason)
	return prev, nil
}

// ResetServiceUsage zeroes a service's rolling counter and returns the
// previous value.
func (s *ResetService) ResetServiceUsage(ctx context.Context, serviceID uint, reason string) (uint64, error) {
	if reason == "" {
		reason = defaultResetReason
	}

	var prev uint64
	err := s.tm.RunInTransaction(ctx, func(txCtx context.Context) error {
		var err error
		prev, err = s.serviceRepo.ResetUsage(txCtx, serviceID)
		if err != nil {
			return fmt.Errorf("failed to reset service usage: %w", err)
		}
		return s.writeLog(txCtx, usage.CategoryService, serviceID, prev,
			map[string]uint64{"used_traffic": prev}, reason)
	})
	if err != nil {
		return 0, err
	}

	s.logger.Infow("service usage reset", "service_id", serviceID, "previous", prev, "reason", reason)
	return prev, nil
}

// ResetNodeUsage zeroes a node's rolling counters and returns their combined
// previous value. A limited node whose usage is now under the limit re-arms
// toward connecting.
func (s *ResetService) ResetNodeUsage(ctx context.Context, nodeID uint, reason string) (uint64, error) {
	if reason == "" {
		reason = defaultResetReason
	}

	var uplink, downlink uint64
	err := s.tm.RunInTransaction(ctx, func(txCtx context.Context) error {
		var err error
		uplink, downlink, err = s.nodeRepo.ResetUsage(txCtx, nodeID)
		if err != nil {
			return fmt.Errorf("failed to reset node usage: %w", err)
		}
		return s.writeLog(txCtx, usage.CategoryNode, nodeID, uplink+downlink,
			map[string]uint64{"uplink": uplink, "downlink": downlink}, reason)
	})
	if err != nil {
		return 0, err
	}

	if err := s.enforcer.EvaluateNode(ctx, nodeID); err != nil {
		s.logger.Errorw("node quota re-arm failed after reset", "node_id", nodeID, "error", err)
	}

	s.logger.Infow("node usage reset",
		"node_id", nodeID, "uplink", uplink, "downlink", downlink, "reason", reason)
	return uplink + downlink, nil
}

// ResetMasterUsage zeroes the master's rolling counters and returns their
// combined previous value. The reset table keys rows by entity id, so the
// singleton's audit trail is the log line.
func (s *ResetService) ResetMasterUsage(ctx context.Context, reason string) (uint64, error) {
	if reason == "" {
		reason = defaultResetReason
	}

	uplink, downlink, err := s.masterRepo.ResetUsage(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to reset master usage: %w", err)
	}

	if err := s.enforcer.EvaluateMaster(ctx); err != nil {
		s.logger.Errorw("master quota re-arm failed after reset", "error", err)
	}

	s.logger.Infow("master usage reset",
		"uplink", uplink, "downlink", downlink, "reason", reason)
	return uplink + downlink, nil
}

func (s *ResetService) writeLog(ctx context.Context, category usage.Category, entityID uint, value uint64, snapshot map[string]uint64, reason string) error {
	entry, err := usage.NewResetLog(category, entityID, value, snapshot, reason)
	if err != nil {
		return err
	}
	if err := s.resetLogRepo.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to record usage reset: %w", err)
	}
	return nil
}
