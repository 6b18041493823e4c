package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"iap-sync-engine/internal/domain/model"
	"iap-sync-engine/internal/domain/ports/adapter"
)

var _ adapter.StoreClient = (*SimStore)(nil)

// SimStore is an in-memory purchase platform used by cmd/demo and by
// deployments without a real native bridge. RequestPurchase immediately
// emits the resulting purchase on the update stream, the way a platform
// would after the user completes the flow.
type SimStore struct {
	log *zerolog.Logger

	mu        sync.Mutex
	connected bool
	catalog   map[string]model.Product
	owned     []model.PurchaseRecord
	acked     map[string]bool // purchaseToken -> acknowledged
	finished  map[string]bool // transactionId -> finished
	handlers  map[int]func(model.PurchaseRecord)
	nextSub   int
	nextTx    int
}

func NewSimStore(catalog []model.Product, logger *zerolog.Logger) *SimStore {
	s := &SimStore{
		log:      logger,
		catalog:  make(map[string]model.Product, len(catalog)),
		acked:    make(map[string]bool),
		finished: make(map[string]bool),
		handlers: make(map[int]func(model.PurchaseRecord)),
	}
	for _, p := range catalog {
		s.catalog[p.SKU] = p
	}
	return s
}

func (s *SimStore) InitConnection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *SimStore) EndConnectionAndroid(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *SimStore) GetProducts(ctx context.Context, skus []string) ([]model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Product, 0, len(skus))
	for _, sku := range skus {
		if p, ok := s.catalog[sku]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *SimStore) GetAvailablePurchases(ctx context.Context) ([]model.PurchaseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.PurchaseRecord, len(s.owned))
	copy(out, s.owned)
	return out, nil
}

func (s *SimStore) RequestPurchase(ctx context.Context, sku string, consumable bool) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return fmt.Errorf("sim store: not connected")
	}
	if _, ok := s.catalog[sku]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("sim store: unknown sku %q", sku)
	}
	s.nextTx++
	p := model.PurchaseRecord{
		ProductID:     sku,
		TransactionID: fmt.Sprintf("sim-tx-%d", s.nextTx),
		PurchaseToken: fmt.Sprintf("sim-token-%d", s.nextTx),
	}
	s.owned = append(s.owned, p)
	s.mu.Unlock()

	s.Emit(p)
	return nil
}

func (s *SimStore) AcknowledgePurchaseAndroid(ctx context.Context, purchaseToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked[purchaseToken] = true
	return nil
}

func (s *SimStore) FinishTransactionIOS(ctx context.Context, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished[transactionID] = true
	return nil
}

func (s *SimStore) OnPurchaseUpdated(handler func(model.PurchaseRecord)) (remove func()) {
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

// Emit pushes a purchase event to every subscriber. Exposed so demos and
// tests can simulate platform-initiated updates (e.g. a pending purchase
// completing out of band).
func (s *SimStore) Emit(p model.PurchaseRecord) {
	s.mu.Lock()
	handlers := make([]func(model.PurchaseRecord), 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		go h(p)
	}
}

// Seed preloads an owned purchase (a prior buy visible to restore).
func (s *SimStore) Seed(p model.PurchaseRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owned = append(s.owned, p)
}
