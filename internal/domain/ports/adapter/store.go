package adapter

import (
	"context"

	"iap-sync-engine/internal/domain/model"
)

// StoreClient is the port for the native purchase platform (Google Play
// billing / StoreKit bridge). Behavior is owned by the platform library; the
// engine only consumes these operations.
type StoreClient interface {
	InitConnection(ctx context.Context) error
	// EndConnectionAndroid tears down the Android billing connection.
	// iOS requires no teardown; implementations no-op there.
	EndConnectionAndroid(ctx context.Context) error

	GetProducts(ctx context.Context, skus []string) ([]model.Product, error)
	GetAvailablePurchases(ctx context.Context) ([]model.PurchaseRecord, error)
	// RequestPurchase starts a native purchase flow. The resulting
	// entitlement arrives later through the update subscription, not here.
	RequestPurchase(ctx context.Context, sku string, consumable bool) error

	AcknowledgePurchaseAndroid(ctx context.Context, purchaseToken string) error
	FinishTransactionIOS(ctx context.Context, transactionID string) error

	// OnPurchaseUpdated registers a handler for the push-based purchase
	// update stream and returns a function that removes it.
	OnPurchaseUpdated(handler func(model.PurchaseRecord)) (remove func())
}
