package services

import (
	"context"
	"fmt"
	"time"

	adminServices "github.com/vetiver-inc/vetiver/internal/application/admin/services"
	nodeServices "github.com/vetiver-inc/vetiver/internal/application/node/services"
	"github.com/vetiver-inc/vetiver/internal/domain/usage"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/metrics"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

// Pipeline chains one tick end to end: pull counters, apply the batch
// through the ledger, then run quota policy over whatever became durable.
// These are the entry points the scheduler invokes.
type Pipeline struct {
	collector *nodeServices.Collector
	ledger    *Ledger
	enforcer  *nodeServices.QuotaEnforcer
	cascade   *adminServices.QuotaCascadeService
	logger    logger.Interface
}

// NewPipeline creates a new usage pipeline
func NewPipeline(
	collector *nodeServices.Collector,
	ledger *Ledger,
	enforcer *nodeServices.QuotaEnforcer,
	cascade *adminServices.QuotaCascadeService,
	log logger.Interface,
) *Pipeline {
	return &Pipeline{
		collector: collector,
		ledger:    ledger,
		enforcer:  enforcer,
		cascade:   cascade,
		logger:    log.Named("usage-pipeline"),
	}
}

// RunUserCollection pulls per-user counters from every reachable engine and
// applies the resulting deltas.
func (p *Pipeline) RunUserCollection(ctx context.Context) error {
	return p.runCollection(ctx, metrics.CollectionKindUser, p.collector.CollectUsers)
}

// RunOutboundCollection pulls aggregate outbound counters from every
// reachable engine and applies the resulting deltas.
func (p *Pipeline) RunOutboundCollection(ctx context.Context) error {
	return p.runCollection(ctx, metrics.CollectionKindOutbound, p.collector.CollectOutbound)
}

func (p *Pipeline) runCollection(ctx context.Context, kind string, collect func(context.Context) (*nodeServices.CollectResult, error)) error {
	startTime := time.Now()
	result, err := collect(ctx)
	if err == nil {
		metrics.AddFailedSources(kind, result.Failed)
		err = p.apply(ctx, result.Batch)
	}
	metrics.ObserveCollectionTick(kind, time.Since(startTime), err)
	if err != nil {
		return fmt.Errorf("%s collection failed: %w", kind, err)
	}
	return nil
}

// RunReconciliation drains buffered deltas into the relational store and
// runs quota policy over the committed entities. The admin sweep afterwards
// catches limit edits that no delta would surface.
func (p *Pipeline) RunReconciliation(ctx context.Context) error {
	startTime := time.Now()
	applied, err := p.ledger.Reconcile(ctx)
	metrics.ObserveReconcileDuration(time.Since(startTime))
	p.enforce(ctx, applied)
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	if err := p.cascade.Sweep(ctx); err != nil {
		p.logger.Errorw("admin quota sweep failed", "error", err)
	}
	return nil
}

// apply records the batch and evaluates quota for every entity whose
// durable row changed, even when a later category in the same batch failed.
func (p *Pipeline) apply(ctx context.Context, batch *usage.Batch) error {
	applied, err := p.ledger.Record(ctx, batch)
	p.enforce(ctx, applied)
	if err != nil {
		return fmt.Errorf("recording usage batch failed: %w", err)
	}
	return nil
}

func (p *Pipeline) enforce(ctx context.Context, applied *usage.Applied) {
	if applied == nil || applied.IsEmpty() {
		return
	}
	p.enforcer.Evaluate(ctx, applied)
	p.cascade.Evaluate(ctx, applied.AdminIDs)
}
