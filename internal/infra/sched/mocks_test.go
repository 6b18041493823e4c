package sched

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

// stubStore is a controllable StoreClient for orchestrator unit tests.
type stubStore struct {
	mu          sync.Mutex
	initErr     error
	initCalls   int
	endCalls    int
	products    []model.Product
	productsErr error
	owned       []model.PurchaseRecord
	ownedErr    error
	requested   []string
	requestErr  error
	handlers    map[int]func(model.PurchaseRecord)
	nextSub     int
}

func newStubStore() *stubStore {
	return &stubStore{handlers: make(map[int]func(model.PurchaseRecord))}
}

func (s *stubStore) InitConnection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initCalls++
	return s.initErr
}

func (s *stubStore) EndConnectionAndroid(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endCalls++
	return nil
}

func (s *stubStore) GetProducts(ctx context.Context, skus []string) ([]model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.productsErr != nil {
		return nil, s.productsErr
	}
	return s.products, nil
}

func (s *stubStore) GetAvailablePurchases(ctx context.Context) ([]model.PurchaseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownedErr != nil {
		return nil, s.ownedErr
	}
	out := make([]model.PurchaseRecord, len(s.owned))
	copy(out, s.owned)
	return out, nil
}

func (s *stubStore) RequestPurchase(ctx context.Context, sku string, consumable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requestErr != nil {
		return s.requestErr
	}
	s.requested = append(s.requested, sku)
	return nil
}

func (s *stubStore) AcknowledgePurchaseAndroid(ctx context.Context, purchaseToken string) error {
	return nil
}

func (s *stubStore) FinishTransactionIOS(ctx context.Context, transactionID string) error {
	return nil
}

func (s *stubStore) OnPurchaseUpdated(handler func(model.PurchaseRecord)) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.handlers[id] = handler
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, id)
	}
}

// emit delivers a purchase update synchronously to every subscriber.
func (s *stubStore) emit(p model.PurchaseRecord) {
	s.mu.Lock()
	handlers := make([]func(model.PurchaseRecord), 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()
	for _, h := range handlers {
		h(p)
	}
}

func (s *stubStore) handlerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

func (s *stubStore) endConnectionCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endCalls
}

func (s *stubStore) requestedSKUs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.requested))
	copy(out, s.requested)
	return out
}

func (s *stubStore) setProductsErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.productsErr = err
}

// mockReconcile records every purchase handed to it.
type mockReconcile struct {
	mu        sync.Mutex
	processed []model.PurchaseRecord
	err       error
}

func (m *mockReconcile) ProcessPurchase(ctx context.Context, purchase model.PurchaseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed = append(m.processed, purchase)
	return m.err
}

func (m *mockReconcile) calls() []model.PurchaseRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.PurchaseRecord, len(m.processed))
	copy(out, m.processed)
	return out
}

// mockClassifier maps every error to a fixed code.
type mockClassifier struct {
	code derror.Code
}

func (m *mockClassifier) Classify(err error) derror.Code {
	if m.code == "" {
		return derror.CodeUnknown
	}
	return m.code
}
