package model

import (
	"encoding/json"

	derror "iap-sync-engine/internal/error"
)

// PurchaseRecord is a platform-reported instance of a bought product.
// Exactly one of PurchaseToken (Android) or TransactionReceipt (iOS) is set.
// Records are never mutated after they are observed; they are only classified.
type PurchaseRecord struct {
	ProductID          string `json:"productId"`
	TransactionID      string `json:"transactionId"`
	PurchaseToken      string `json:"purchaseToken,omitempty"`
	TransactionReceipt string `json:"transactionReceipt,omitempty"`
}

// IsAndroid reports which platform branch the record belongs to.
func (p PurchaseRecord) IsAndroid() bool { return p.PurchaseToken != "" }

// AndroidReceipt is the structured receipt shape submitted for Google Play
// purchases. Subscriptions are not supported, so Subscription is always false.
type AndroidReceipt struct {
	PackageName   string `json:"packageName"`
	ProductID     string `json:"productId"`
	PurchaseToken string `json:"purchaseToken"`
	Subscription  bool   `json:"subscription"`
}

// Receipt is the platform-specific proof of purchase: either the Android
// structured shape or the raw iOS transaction receipt passed through verbatim.
type Receipt struct {
	Android *AndroidReceipt
	Raw     string
}

// BuildReceipt selects the receipt branch for a record. A purchase token
// always wins; everything else passes the raw receipt through untouched.
func BuildReceipt(p PurchaseRecord, androidPackageName string) Receipt {
	if p.IsAndroid() {
		return Receipt{Android: &AndroidReceipt{
			PackageName:   androidPackageName,
			ProductID:     p.ProductID,
			PurchaseToken: p.PurchaseToken,
			Subscription:  false,
		}}
	}
	return Receipt{Raw: p.TransactionReceipt}
}

func (r Receipt) MarshalJSON() ([]byte, error) {
	if r.Android != nil {
		return json.Marshal(r.Android)
	}
	return json.Marshal(r.Raw)
}

func (r *Receipt) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &r.Raw)
	}
	r.Android = &AndroidReceipt{}
	return json.Unmarshal(b, r.Android)
}

// ProcessPurchaseRequest is the body of POST {apiUrl}/process-purchase.
type ProcessPurchaseRequest struct {
	Receipt Receipt `json:"receipt"`
}

// ProcessPurchaseResponse carries the server's three-way classification.
// The lists are disjoint by the server's intent; the projector still applies
// them in fixed priority order.
type ProcessPurchaseResponse struct {
	PurchasesSuccessfullyApplied           []PurchaseRecord `json:"purchasesSuccessfullyApplied"`
	PurchasesAlreadyApplied                []PurchaseRecord `json:"purchasesAlreadyApplied"`
	PurchasesAlreadyAppliedToOtherAccounts []PurchaseRecord `json:"purchasesAlreadyAppliedToOtherAccounts"`
}

// ActivityState is the externally observable status of one tracked
// product-purchase concern.
type ActivityState string

const (
	ActivityInactive ActivityState = "INACTIVE"
	ActivityActive   ActivityState = "ACTIVE"
	ActivityError    ActivityState = "ERROR"
)

// PurchaseOutcome is the terminal result of a purchase action.
type PurchaseOutcome struct {
	Success   bool         `json:"success"`
	ErrorCode *derror.Code `json:"errorCode"`
}
