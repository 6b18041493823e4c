package usecase

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"iap-sync-engine/internal/domain/model"
	derror "iap-sync-engine/internal/error"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// mockSession is a small in-memory session used by unit tests.
type mockSession struct {
	token string
	err   error

	GetAccessTokenFunc func(ctx context.Context) (string, error)
}

func (m *mockSession) GetAccessToken(ctx context.Context) (string, error) {
	if m.GetAccessTokenFunc != nil {
		return m.GetAccessTokenFunc(ctx)
	}
	if m.err != nil {
		return "", m.err
	}
	return m.token, nil
}

// mockEntitlement records ProcessPurchase calls and replays canned responses.
type mockEntitlement struct {
	mu       sync.Mutex
	receipts []model.Receipt
	tokens   []string

	ProcessPurchaseFunc func(ctx context.Context, receipt model.Receipt, accessToken string) (*model.ProcessPurchaseResponse, error)
}

func (m *mockEntitlement) ProcessPurchase(ctx context.Context, receipt model.Receipt, accessToken string) (*model.ProcessPurchaseResponse, error) {
	m.mu.Lock()
	m.receipts = append(m.receipts, receipt)
	m.tokens = append(m.tokens, accessToken)
	m.mu.Unlock()
	if m.ProcessPurchaseFunc != nil {
		return m.ProcessPurchaseFunc(ctx, receipt, accessToken)
	}
	return &model.ProcessPurchaseResponse{}, nil
}

func (m *mockEntitlement) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.receipts)
}

// mockStore records native-side calls.
type mockStore struct {
	mu           sync.Mutex
	acknowledged []string
	finished     []string

	AcknowledgePurchaseAndroidFunc func(ctx context.Context, purchaseToken string) error
	FinishTransactionIOSFunc       func(ctx context.Context, transactionID string) error
}

func (m *mockStore) InitConnection(ctx context.Context) error       { return nil }
func (m *mockStore) EndConnectionAndroid(ctx context.Context) error { return nil }
func (m *mockStore) GetProducts(ctx context.Context, skus []string) ([]model.Product, error) {
	return nil, nil
}
func (m *mockStore) GetAvailablePurchases(ctx context.Context) ([]model.PurchaseRecord, error) {
	return nil, nil
}
func (m *mockStore) RequestPurchase(ctx context.Context, sku string, consumable bool) error {
	return nil
}

func (m *mockStore) AcknowledgePurchaseAndroid(ctx context.Context, purchaseToken string) error {
	m.mu.Lock()
	m.acknowledged = append(m.acknowledged, purchaseToken)
	m.mu.Unlock()
	if m.AcknowledgePurchaseAndroidFunc != nil {
		return m.AcknowledgePurchaseAndroidFunc(ctx, purchaseToken)
	}
	return nil
}

func (m *mockStore) FinishTransactionIOS(ctx context.Context, transactionID string) error {
	m.mu.Lock()
	m.finished = append(m.finished, transactionID)
	m.mu.Unlock()
	if m.FinishTransactionIOSFunc != nil {
		return m.FinishTransactionIOSFunc(ctx, transactionID)
	}
	return nil
}

func (m *mockStore) OnPurchaseUpdated(handler func(model.PurchaseRecord)) (remove func()) {
	return func() {}
}

// mockClassifier maps every error to a fixed code unless overridden.
type mockClassifier struct {
	code derror.Code

	ClassifyFunc func(err error) derror.Code
}

func (m *mockClassifier) Classify(err error) derror.Code {
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(err)
	}
	if m.code == "" {
		return derror.CodeUnknown
	}
	return m.code
}
