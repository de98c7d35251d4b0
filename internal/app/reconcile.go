/**
 * @description
 * Periodic reconciliation of outbound settlements stuck in the pending state.
 * A row only stays pending when the remote leg's outcome was unknown at
 * confirm time, so the sweep never mutates balances on its own: it probes the
 * counterparty for liveness and escalates rows that need an operator, keeping
 * the no-credit-on-unknown-outcome rule intact.
 *
 * @dependencies
 * - github.com/robfig/cron/v3: Job scheduling.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Reconciler runs the pending-settlement sweep on a cron schedule.
type Reconciler struct {
	cron     *cron.Cron
	service  *Service
	schedule string
}

// NewReconciler creates a reconciler for the given service.
func NewReconciler(service *Service, schedule string) *Reconciler {
	cronLogger := cron.PrintfLogger(log.Default())
	return &Reconciler{
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger))),
		service:  service,
		schedule: schedule,
	}
}

// Start registers the sweep and starts the scheduler.
func (r *Reconciler) Start() {
	if _, err := r.cron.AddFunc(r.schedule, r.runSweep); err != nil {
		log.Printf("level=error component=reconciler msg=\"failed to schedule pending settlement sweep\" err=%v", err)
		return
	}
	log.Printf("level=info component=reconciler msg=\"scheduled pending settlement sweep\" schedule=%q", r.schedule)
	r.cron.Start()
}

// Stop gracefully stops the scheduler and returns a context that is done once
// running jobs have finished.
func (r *Reconciler) Stop() context.Context {
	return r.cron.Stop()
}

func (r *Reconciler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	r.service.ReconcilePendingSettlements(ctx)
}

// ReconcilePendingSettlements inspects outbound settlements that have been
// pending past the configured age. Each one is logged for escalation and the
// counterparty is probed so a recovered network makes the stall visible in
// the logs; resolution of the money itself is an operator decision.
func (s *Service) ReconcilePendingSettlements(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ReconcilePendingAge)
	stale, err := s.repo.FindStalePendingOutbound(ctx, cutoff, s.cfg.ReconcileBatchSize)
	if err != nil {
		log.Printf("level=error component=reconciler msg=\"failed to list stale pending settlements\" err=%v", err)
		return
	}
	if len(stale) == 0 {
		return
	}
	log.Printf("level=info component=reconciler msg=\"stale pending settlements found\" count=%d cutoff=%s", len(stale), cutoff.Format(time.RFC3339))

	for _, settlement := range stale {
		bank, err := s.repo.FindLinkedBank(ctx, settlement.BankCode)
		if err != nil {
			log.Printf("level=error component=reconciler settlement_id=%s bank=%s msg=\"linked bank lookup failed\" err=%v", settlement.ID, settlement.BankCode, err)
			continue
		}
		endpoint, err := endpointFor(bank)
		if err != nil {
			log.Printf("level=error component=reconciler settlement_id=%s bank=%s msg=\"bad bank endpoint\" err=%v", settlement.ID, settlement.BankCode, err)
			continue
		}

		_, err = s.bankClient.QueryAccountInfo(ctx, endpoint, settlement.ExternalAccountNumber)
		if err != nil {
			log.Printf("level=warn component=reconciler settlement_id=%s bank=%s age=%s msg=\"counterparty still unreachable or declining\" err=%v",
				settlement.ID, settlement.BankCode, time.Since(settlement.CreatedAt).Round(time.Second), err)
			continue
		}
		log.Printf("level=error component=reconciler settlement_id=%s bank=%s amount=%s age=%s msg=\"counterparty reachable but settlement still pending; manual reconciliation required\"",
			settlement.ID, settlement.BankCode, settlement.Amount, time.Since(settlement.CreatedAt).Round(time.Second))
	}
}
