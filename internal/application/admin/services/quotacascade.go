package services

import (
	"context"
	"fmt"

	nodeServices "github.com/vetiver-inc/vetiver/internal/application/node/services"
	"github.com/vetiver-inc/vetiver/internal/domain/admin"
	"github.com/vetiver-inc/vetiver/internal/domain/shared/events"
	"github.com/vetiver-inc/vetiver/internal/domain/user"
	vo "github.com/vetiver-inc/vetiver/internal/domain/user/value_objects"
	"github.com/vetiver-inc/vetiver/internal/shared/db"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

// QuotaCascadeService enforces admin data limits. Crossing a limit disables
// the admin and suspends every cascade-eligible user under it in one
// transaction; node-side removals run after the commit so an RPC failure
// can never roll back the durable state. Usage falling back under the limit
// reverses a quota-caused disable the same way.
type QuotaCascadeService struct {
	adminRepo       admin.Repository
	userRepo        user.Repository
	provisioner     *nodeServices.Provisioner
	tm              *db.TransactionManager
	eventDispatcher events.EventDispatcher
	logger          logger.Interface
}

// NewQuotaCascadeService creates a new admin quota cascade service
func NewQuotaCascadeService(
	adminRepo admin.Repository,
	userRepo user.Repository,
	provisioner *nodeServices.Provisioner,
	tm *db.TransactionManager,
	eventDispatcher events.EventDispatcher,
	log logger.Interface,
) *QuotaCascadeService {
	return &QuotaCascadeService{
		adminRepo:       adminRepo,
		userRepo:        userRepo,
		provisioner:     provisioner,
		tm:              tm,
		eventDispatcher: eventDispatcher,
		logger:          log.Named("admin-quota"),
	}
}

// Evaluate runs the quota policy for each given admin. Failures are logged
// per admin so one bad row cannot block the rest.
func (s *QuotaCascadeService) Evaluate(ctx context.Context, adminIDs []uint) {
	for _, adminID := range adminIDs {
		if err := s.EvaluateAdmin(ctx, adminID); err != nil {
			s.logger.Errorw("admin quota evaluation failed", "admin_id", adminID, "error", err)
		}
	}
}

// EvaluateAdmin applies the quota policy to one admin: disable and cascade
// when the rolling usage reached the data limit, reverse a quota-caused
// disable when it dropped back under. Anything else is a no-op.
func (s *QuotaCascadeService) EvaluateAdmin(ctx context.Context, adminID uint) error {
	a, err := s.adminRepo.GetByID(ctx, adminID)
	if err != nil {
		return fmt.Errorf("failed to get admin %d: %w", adminID, err)
	}

	switch {
	case a.IsActive() && a.IsDataLimitExceeded():
		return s.disableCascade(ctx, a)
	case a.DisabledByQuota() && !a.IsDataLimitExceeded():
		return s.reverseCascade(ctx, a)
	default:
		return nil
	}
}

// Sweep evaluates every admin the indexed quota queries flag. It catches
// limit edits, which change the threshold without any usage increment that
// would trigger the reactive path.
func (s *QuotaCascadeService) Sweep(ctx context.Context) error {
	over, err := s.adminRepo.ListOverDataLimit(ctx)
	if err != nil {
		return fmt.Errorf("failed to list admins over data limit: %w", err)
	}
	for _, a := range over {
		if err := s.disableCascade(ctx, a); err != nil {
			s.logger.Errorw("quota cascade failed", "admin_id", a.ID(), "error", err)
		}
	}

	under, err := s.adminRepo.ListQuotaDisabledUnderLimit(ctx)
	if err != nil {
		return fmt.Errorf("failed to list quota-disabled admins: %w", err)
	}
	for _, a := range under {
		if err := s.reverseCascade(ctx, a); err != nil {
			s.logger.Errorw("quota cascade reversal failed", "admin_id", a.ID(), "error", err)
		}
	}
	return nil
}

func (s *QuotaCascadeService) disableCascade(ctx context.Context, a *admin.Admin) error {
	reason := fmt.Sprintf("admin data limit reached: %d of %d bytes used", a.UsersUsage(), *a.DataLimit())

	var suspended []*user.User
	err := s.tm.RunInTransaction(ctx, func(txCtx context.Context) error {
		suspended = suspended[:0]

		if err := a.DisableForQuota(reason); err != nil {
			return err
		}
		if err := s.adminRepo.Update(txCtx, a); err != nil {
			return fmt.Errorf("failed to persist admin disable: %w", err)
		}

		users, err := s.userRepo.ListByAdminAndStatuses(txCtx, a.ID(), []vo.Status{vo.StatusActive, vo.StatusOnHold})
		if err != nil {
			return fmt.Errorf("failed to list cascade users: %w", err)
		}
		for _, u := range users {
			if err := u.SuspendForAdminQuota(reason); err != nil {
				return fmt.Errorf("failed to suspend user %d: %w", u.ID(), err)
			}
			if err := s.userRepo.Update(txCtx, u); err != nil {
				return fmt.Errorf("failed to persist user suspension: %w", err)
			}
			suspended = append(suspended, u)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publishEvents(a.GetEvents())
	for _, u := range suspended {
		s.publishEvents(u.GetEvents())
	}

	for _, u := range suspended {
		s.provisioner.RemoveUser(ctx, u.Username().String())
	}

	s.logger.Warnw("admin disabled for data limit",
		"admin_id", a.ID(),
		"username", a.Username(),
		"users_suspended", len(suspended),
		"reason", reason,
	)
	return nil
}

func (s *QuotaCascadeService) reverseCascade(ctx context.Context, a *admin.Admin) error {
	var restored []*user.User
	err := s.tm.RunInTransaction(ctx, func(txCtx context.Context) error {
		restored = restored[:0]

		if err := a.EnableAfterQuota(); err != nil {
			return err
		}
		if err := s.adminRepo.Update(txCtx, a); err != nil {
			return fmt.Errorf("failed to persist admin enable: %w", err)
		}

		users, err := s.userRepo.ListSuspendedByAdmin(txCtx, a.ID())
		if err != nil {
			return fmt.Errorf("failed to list suspended users: %w", err)
		}
		for _, u := range users {
			if err := u.RestoreFromAdminQuota(); err != nil {
				return fmt.Errorf("failed to restore user %d: %w", u.ID(), err)
			}
			if err := s.userRepo.Update(txCtx, u); err != nil {
				return fmt.Errorf("failed to persist user restore: %w", err)
			}
			restored = append(restored, u)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publishEvents(a.GetEvents())
	for _, u := range restored {
		s.publishEvents(u.GetEvents())
	}

	reactivated := 0
	for _, u := range restored {
		if u.Status().Serviceable() {
			s.provisioner.AddUser(ctx, u.Username().String())
			reactivated++
		}
	}

	s.logger.Infow("admin re-enabled after data limit cleared",
		"admin_id", a.ID(),
		"username", a.Username(),
		"users_restored", len(restored),
		"users_reactivated", reactivated,
	)
	return nil
}

func (s *QuotaCascadeService) publishEvents(domainEvents []interface{}) {
	if len(domainEvents) == 0 {
		return
	}
	convertedEvents := make([]events.DomainEvent, 0, len(domainEvents))
	for _, evt := range domainEvents {
		if domainEvent, ok := evt.(events.DomainEvent); ok {
			convertedEvents = append(convertedEvents, domainEvent)
		}
	}
	if err := s.eventDispatcher.PublishAll(convertedEvents); err != nil {
		s.logger.Warnw("failed to publish quota cascade events", "error", err)
	}
}
