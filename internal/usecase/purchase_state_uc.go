package usecase

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"iap-sync-engine/internal/bus"
	"iap-sync-engine/internal/domain/model"
	derror "iap-sync-engine/internal/error"
)

// Compile-time check
var _ PurchaseStateUseCase = (*purchaseStateUC)(nil)

// PurchaseStateUseCase projects reconciliation actions into the externally
// observable purchase state for the premium-lifetime product family.
type PurchaseStateUseCase interface {
	// Run drains the bus subscription until ctx ends. Purely reactive;
	// the projector has no other lifecycle.
	Run(ctx context.Context)
	State() PurchaseStateSnapshot
}

// PurchaseStateSnapshot is the observable surface: state and outcome are
// always updated together, never left inconsistent.
type PurchaseStateSnapshot struct {
	ProcessState  model.ActivityState    `json:"processState"`
	ProcessResult *model.PurchaseOutcome `json:"processResult"`
}

type purchaseStateUC struct {
	tracked map[string]struct{}
	sub     *bus.Subscription
	log     *zerolog.Logger

	mu  sync.RWMutex
	cur PurchaseStateSnapshot
}

func NewPurchaseStateUseCase(actions *bus.Bus, trackedProductIDs []string, logger *zerolog.Logger) *purchaseStateUC {
	tracked := make(map[string]struct{}, len(trackedProductIDs))
	for _, id := range trackedProductIDs {
		tracked[id] = struct{}{}
	}
	return &purchaseStateUC{
		tracked: tracked,
		sub: actions.Subscribe(64,
			bus.ActionProcessingPurchase,
			bus.ActionProcessPurchaseSucceeded,
			bus.ActionProcessPurchaseFailed,
		),
		log: logger,
		cur: PurchaseStateSnapshot{ProcessState: model.ActivityInactive},
	}
}

func (u *purchaseStateUC) Run(ctx context.Context) {
	defer u.sub.Cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-u.sub.Actions():
			u.apply(a)
		}
	}
}

func (u *purchaseStateUC) State() PurchaseStateSnapshot {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.cur
}

func (u *purchaseStateUC) apply(a bus.Action) {
	u.mu.Lock()
	next := reduce(u.cur, a, u.tracked)
	changed := next != u.cur
	u.cur = next
	u.mu.Unlock()

	if changed {
		u.log.Debug().Str("action", string(a.Type)).Str("state", string(next.ProcessState)).Msg("purchase state transition")
	}
}

// reduce is the deterministic (state, action) -> state transition. No I/O.
func reduce(cur PurchaseStateSnapshot, a bus.Action, tracked map[string]struct{}) PurchaseStateSnapshot {
	switch a.Type {
	case bus.ActionProcessingPurchase:
		p, ok := a.Payload.(bus.ProcessingPurchasePayload)
		if !ok {
			return cur
		}
		if _, watched := tracked[p.ProductID]; !watched {
			return cur
		}
		cur.ProcessState = model.ActivityActive
		return cur

	case bus.ActionProcessPurchaseSucceeded:
		resp, ok := a.Payload.(*model.ProcessPurchaseResponse)
		if !ok || resp == nil {
			return cur
		}
		// Fixed priority order: first list wins.
		if containsTracked(resp.PurchasesSuccessfullyApplied, tracked) {
			cur.ProcessState = model.ActivityInactive
			cur.ProcessResult = &model.PurchaseOutcome{Success: true, ErrorCode: nil}
			return cur
		}
		if containsTracked(resp.PurchasesAlreadyApplied, tracked) {
			code := derror.CodeAlreadyApplied
			cur.ProcessState = model.ActivityError
			cur.ProcessResult = &model.PurchaseOutcome{Success: false, ErrorCode: &code}
			return cur
		}
		if containsTracked(resp.PurchasesAlreadyAppliedToOtherAccounts, tracked) {
			code := derror.CodeAlreadyAppliedToOtherAccounts
			cur.ProcessState = model.ActivityError
			cur.ProcessResult = &model.PurchaseOutcome{Success: false, ErrorCode: &code}
			return cur
		}
		// Event does not pertain to the tracked family.
		return cur

	case bus.ActionProcessPurchaseFailed:
		p, ok := a.Payload.(bus.FailurePayload)
		if !ok {
			return cur
		}
		code := p.ErrorCode
		cur.ProcessState = model.ActivityError
		cur.ProcessResult = &model.PurchaseOutcome{Success: false, ErrorCode: &code}
		return cur
	}
	return cur
}

func containsTracked(purchases []model.PurchaseRecord, tracked map[string]struct{}) bool {
	for _, p := range purchases {
		if _, ok := tracked[p.ProductID]; ok {
			return true
		}
	}
	return false
}
