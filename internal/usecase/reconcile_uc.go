package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"iap-sync-engine/internal/bus"
	"iap-sync-engine/internal/domain/model"
	"iap-sync-engine/internal/domain/ports/adapter"
	"iap-sync-engine/internal/infra/logging"
	"iap-sync-engine/internal/infra/metrics"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

type ReconcileUseCase interface {
	// ProcessPurchase reconciles one purchase record against the
	// entitlement server and publishes the outcome on the bus. Failures are
	// classified and published as purchase.process_failed before returning;
	// callers log the returned error but never let it stop a loop.
	ProcessPurchase(ctx context.Context, purchase model.PurchaseRecord) error
}

type reconcileUC struct {
	session      adapter.SessionManager
	entitlements adapter.EntitlementClient
	store        adapter.StoreClient
	classifier   adapter.ErrorClassifier
	actions      *bus.Bus
	packageName  string
	log          *zerolog.Logger
}

func NewReconcileUseCase(
	session adapter.SessionManager,
	entitlements adapter.EntitlementClient,
	store adapter.StoreClient,
	classifier adapter.ErrorClassifier,
	actions *bus.Bus,
	androidPackageName string,
	logger *zerolog.Logger,
) *reconcileUC {
	return &reconcileUC{
		session:      session,
		entitlements: entitlements,
		store:        store,
		classifier:   classifier,
		actions:      actions,
		packageName:  androidPackageName,
		log:          logger,
	}
}

func (u *reconcileUC) ProcessPurchase(ctx context.Context, purchase model.PurchaseRecord) error {
	ctx = logging.WithTransactionID(logging.WithProductID(ctx, purchase.ProductID), purchase.TransactionID)
	log := logging.With(ctx, u.log)
	defer logging.TraceDuration(log, "ReconcileUC.ProcessPurchase")()

	start := time.Now()
	resp, err := u.process(ctx, purchase)
	metrics.ObserveReconcileLatency(int(time.Since(start).Milliseconds()), err == nil)
	if err != nil {
		code := u.classifier.Classify(err)
		u.actions.Publish(bus.ActionProcessPurchaseFailed, bus.FailurePayload{ErrorCode: code})
		metrics.IncActionPublished(string(bus.ActionProcessPurchaseFailed))
		metrics.IncPurchaseProcessed("failed")
		return err
	}

	u.actions.Publish(bus.ActionProcessPurchaseSucceeded, resp)
	metrics.IncActionPublished(string(bus.ActionProcessPurchaseSucceeded))
	metrics.IncPurchaseProcessed(resultLabel(resp))
	return nil
}

func (u *reconcileUC) process(ctx context.Context, purchase model.PurchaseRecord) (*model.ProcessPurchaseResponse, error) {
	accessToken, err := u.session.GetAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("access token: %w", err)
	}

	// Announce before the round-trip so observers can show "in progress"
	// even though the classification is still unknown.
	u.actions.Publish(bus.ActionProcessingPurchase, bus.ProcessingPurchasePayload{
		TransactionID: purchase.TransactionID,
		ProductID:     purchase.ProductID,
	})
	metrics.IncActionPublished(string(bus.ActionProcessingPurchase))

	receipt := model.BuildReceipt(purchase, u.packageName)

	resp, err := u.entitlements.ProcessPurchase(ctx, receipt, accessToken)
	if err != nil {
		return nil, fmt.Errorf("process purchase: %w", err)
	}

	// Finalize the native side only after server acceptance; a crash
	// between the two steps must not lose the entitlement. Fire-and-forget:
	// a finalization error never fails the reconciliation.
	if purchase.IsAndroid() {
		if err := u.store.AcknowledgePurchaseAndroid(ctx, purchase.PurchaseToken); err != nil {
			log := logging.With(ctx, u.log)
			log.Warn().Err(err).Msg("acknowledge purchase failed")
		}
	} else {
		if err := u.store.FinishTransactionIOS(ctx, purchase.TransactionID); err != nil {
			log := logging.With(ctx, u.log)
			log.Warn().Err(err).Msg("finish transaction failed")
		}
	}

	return resp, nil
}

func resultLabel(resp *model.ProcessPurchaseResponse) string {
	switch {
	case len(resp.PurchasesSuccessfullyApplied) > 0:
		return "applied"
	case len(resp.PurchasesAlreadyApplied) > 0:
		return "already_applied"
	case len(resp.PurchasesAlreadyAppliedToOtherAccounts) > 0:
		return "already_applied_other"
	default:
		return "empty"
	}
}
