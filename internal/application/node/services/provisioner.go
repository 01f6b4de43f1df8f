package services

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/vetiver-inc/vetiver/internal/infrastructure/engine"
	"github.com/vetiver-inc/vetiver/internal/shared/config"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

const defaultProvisionWorkers = 10

// Provisioner pushes per-user membership changes to every ready node
// engine. Delivery is best effort: a node whose RPC fails is logged and
// skipped, and drift is repaired when the node reconnects and is handed
// fresh configuration.
type Provisioner struct {
	registry       *Registry
	configProvider engine.ConfigProvider
	cfg            config.SupervisorConfig
	logger         logger.Interface
}

// NewProvisioner creates a provisioner over the registry's ready handles
func NewProvisioner(
	registry *Registry,
	configProvider engine.ConfigProvider,
	cfg config.SupervisorConfig,
	log logger.Interface,
) *Provisioner {
	return &Provisioner{
		registry:       registry,
		configProvider: configProvider,
		cfg:            cfg,
		logger:         log.Named("node-provisioner"),
	}
}

// AddUser registers username on every ready node and returns how many
// nodes accepted it. Engines that already know the name are reconciled by
// the handle, so repeated pushes converge instead of failing.
func (p *Provisioner) AddUser(ctx context.Context, username string) int {
	handles := p.registry.Ready()
	if len(handles) == 0 {
		return 0
	}

	payload, err := p.configProvider.UserPayload(ctx, username)
	if err != nil {
		p.logger.Errorw("failed to build user payload", "username", username, "error", err)
		return 0
	}

	return p.fanOut(ctx, handles, "add", username, func(rpcCtx context.Context, handle *engine.Handle) error {
		return handle.AddUser(rpcCtx, username, payload)
	})
}

// RemoveUser deletes username from every ready node and returns how many
// nodes confirmed the removal. Unknown usernames count as removed.
func (p *Provisioner) RemoveUser(ctx context.Context, username string) int {
	handles := p.registry.Ready()
	if len(handles) == 0 {
		return 0
	}

	return p.fanOut(ctx, handles, "remove", username, func(rpcCtx context.Context, handle *engine.Handle) error {
		return handle.RemoveUser(rpcCtx, username)
	})
}

func (p *Provisioner) fanOut(
	ctx context.Context,
	handles []*engine.Handle,
	op string,
	username string,
	call func(ctx context.Context, handle *engine.Handle) error,
) int {
	var group errgroup.Group
	group.SetLimit(defaultProvisionWorkers)

	results := make([]error, len(handles))
	for i, handle := range handles {
		group.Go(func() error {
			rpcCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout())
			defer cancel()
			results[i] = call(rpcCtx, handle)
			return nil
		})
	}
	_ = group.Wait()

	delivered := 0
	for i, err := range results {
		if err != nil {
			p.logger.Warnw("user provisioning call failed",
				"op", op,
				"username", username,
				"node_id", handles[i].NodeID(),
				"error", err)
			continue
		}
		delivered++
	}

	if delivered < len(handles) {
		p.logger.Warnw("user provisioning incomplete",
			"op", op,
			"username", username,
			"delivered", delivered,
			"nodes", len(handles))
	}
	return delivered
}
