package usecases

import (
	"context"
	"fmt"

	nodeServices "github.com/vetiver-inc/vetiver/internal/application/node/services"
	"github.com/vetiver-inc/vetiver/internal/domain/admin"
	"github.com/vetiver-inc/vetiver/internal/domain/shared/events"
	"github.com/vetiver-inc/vetiver/internal/domain/user"
	apperrors "github.com/vetiver-inc/vetiver/internal/shared/errors"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

// ActivateUserCommand represents the input for activating a user
type ActivateUserCommand struct {
	UserID uint
}

// ActivateUserResult represents the output of activating a user
type ActivateUserResult struct {
	UserID   uint
	Username string
	Status   string
}

// ActivateUserUseCase activates a user. Activation is where the owning
// admin's users limit is enforced: the scoped active-user count is checked
// before any state changes, and an activation that would exceed the limit
// is rejected outright. On success the user is pushed to every ready node.
type ActivateUserUseCase struct {
	userRepo        user.Repository
	adminRepo       admin.Repository
	provisioner     *nodeServices.Provisioner
	eventDispatcher events.EventDispatcher
	logger          logger.Interface
}

// NewActivateUserUseCase creates a new ActivateUserUseCase
func NewActivateUserUseCase(
	userRepo user.Repository,
	adminRepo admin.Repository,
	provisioner *nodeServices.Provisioner,
	eventDispatcher events.EventDispatcher,
	log logger.Interface,
) *ActivateUserUseCase {
	return &ActivateUserUseCase{
		userRepo:        userRepo,
		adminRepo:       adminRepo,
		provisioner:     provisioner,
		eventDispatcher: eventDispatcher,
		logger:          log.Named("activate-user"),
	}
}

// Execute activates the user
func (uc *ActivateUserUseCase) Execute(ctx context.Context, cmd ActivateUserCommand) (*ActivateUserResult, error) {
	u, err := uc.userRepo.GetByID(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if u.Status().IsActive() {
		return &ActivateUserResult{
			UserID:   u.ID(),
			Username: u.Username().String(),
			Status:   u.Status().String(),
		}, nil
	}

	owner, err := uc.adminRepo.GetByID(ctx, u.AdminID())
	if err != nil {
		return nil, fmt.Errorf("failed to get owning admin: %w", err)
	}
	if !owner.IsActive() {
		return nil, apperrors.NewValidationError("cannot activate user under a disabled admin")
	}

	activeCount, err := uc.userRepo.CountActiveByAdmin(ctx, owner.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to count active users: %w", err)
	}
	if owner.IsUsersLimitReached(activeCount) {
		return nil, apperrors.NewValidationError("admin users limit reached",
			fmt.Sprintf("limit is %d, %d users are already active", *owner.UsersLimit(), activeCount))
	}

	if err := u.Activate(); err != nil {
		return nil, apperrors.NewValidationError("cannot activate user", err.Error())
	}

	if err := uc.userRepo.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	domainEvents := u.GetEvents()
	if len(domainEvents) > 0 {
		convertedEvents := make([]events.DomainEvent, 0, len(domainEvents))
		for _, evt := range domainEvents {
			if domainEvent, ok := evt.(events.DomainEvent); ok {
				convertedEvents = append(convertedEvents, domainEvent)
			}
		}
		if err := uc.eventDispatcher.PublishAll(convertedEvents); err != nil {
			uc.logger.Warnw("failed to publish events", "error", err)
		}
	}

	delivered := uc.provisioner.AddUser(ctx, u.Username().String())

	uc.logger.Infow("user activated",
		"user_id", u.ID(),
		"username", u.Username().String(),
		"admin_id", owner.ID(),
		"nodes_updated", delivered,
	)

	return &ActivateUserResult{
		UserID:   u.ID(),
		Username: u.Username().String(),
		Status:   u.Status().String(),
	}, nil
}
