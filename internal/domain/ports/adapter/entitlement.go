package adapter

import (
	"context"

	"iap-sync-engine/internal/domain/model"
)

// EntitlementClient is the port for the remote entitlement server, the single
// source of truth for purchase reconciliation.
type EntitlementClient interface {
	ProcessPurchase(ctx context.Context, receipt model.Receipt, accessToken string) (*model.ProcessPurchaseResponse, error)
}
