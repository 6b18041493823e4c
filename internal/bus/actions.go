package bus

import (
	"iap-sync-engine/internal/domain/model"
	derror "iap-sync-engine/internal/error"
)

// ActionType tags an action on the bus.
type ActionType string

const (
	ActionGetProducts          ActionType = "products.get"
	ActionGetProductsSucceeded ActionType = "products.get_succeeded"
	ActionGetProductsFailed    ActionType = "products.get_failed"

	ActionRequestPurchase          ActionType = "purchase.request"
	ActionRequestingPurchase       ActionType = "purchase.requesting"
	ActionRequestPurchaseSucceeded ActionType = "purchase.request_succeeded"
	ActionRequestPurchaseFailed    ActionType = "purchase.request_failed"

	ActionRestorePurchases          ActionType = "purchase.restore"
	ActionRestoringPurchases        ActionType = "purchase.restoring"
	ActionRestorePurchasesSucceeded ActionType = "purchase.restore_succeeded"
	ActionRestorePurchasesFailed    ActionType = "purchase.restore_failed"

	ActionProcessingPurchase ActionType = "purchase.processing"
	// purchase.process_succeeded carries *model.ProcessPurchaseResponse,
	// the full three-list server classification.
	ActionProcessPurchaseSucceeded ActionType = "purchase.process_succeeded"
	ActionProcessPurchaseFailed    ActionType = "purchase.process_failed"
)

// GetProductsPayload asks the product-lookup loop for store listings.
type GetProductsPayload struct {
	SKUs []string
}

// ProductsPayload carries the listings back on products.get_succeeded.
type ProductsPayload struct {
	Products []model.Product
}

// RequestPurchasePayload asks the purchase-request loop to buy one sku.
type RequestPurchasePayload struct {
	SKU string
}

// ProcessingPurchasePayload announces a reconciliation in flight before its
// classification is known.
type ProcessingPurchasePayload struct {
	TransactionID string
	ProductID     string
}

// FailurePayload carries the classified code on every *_failed action.
type FailurePayload struct {
	ErrorCode derror.Code
}
