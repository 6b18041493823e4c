package sched

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"iap-sync-engine/internal/bus"
	"iap-sync-engine/internal/domain/model"
	"iap-sync-engine/internal/domain/ports/adapter"
	derror "iap-sync-engine/internal/error"
	"iap-sync-engine/internal/infra/adapters/store"
	"iap-sync-engine/internal/infra/metrics"
	"iap-sync-engine/internal/infra/worker"
	"iap-sync-engine/internal/usecase"
)

// Orchestrator owns the store connection lifecycle and runs the four
// long-lived loops that drive reconciliation: product lookup, purchase
// request, restore, and purchase-update observation. Each loop reacts to bus
// intents (or store push events) and an error in one iteration never stops
// the loop; only connection-lifecycle failures are fatal.
type Orchestrator struct {
	store        adapter.StoreClient
	reconciler   usecase.ReconcileUseCase
	classifier   adapter.ErrorClassifier
	actions      *bus.Bus
	pool         *worker.Pool
	updateBuffer int
	log          *zerolog.Logger

	mu        sync.Mutex
	inited    bool
	destroyed bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewOrchestrator(
	storeClient adapter.StoreClient,
	reconcile usecase.ReconcileUseCase,
	classifier adapter.ErrorClassifier,
	actions *bus.Bus,
	workers int,
	updateBuffer int,
	logger *zerolog.Logger,
) *Orchestrator {
	orcLog := logger.With().Str("component", "Orchestrator").Logger()
	return &Orchestrator{
		store:        storeClient,
		reconciler:   reconcile,
		classifier:   classifier,
		actions:      actions,
		pool:         worker.NewPool(workers, &orcLog),
		updateBuffer: updateBuffer,
		log:          &orcLog,
	}
}

// Init opens the store connection and starts the loops. A second call returns
// derror.ErrConnectionInited; a failed call leaves the orchestrator
// uninitialized so it can be retried by a fresh process.
func (o *Orchestrator) Init(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.inited {
		return derror.ErrConnectionInited
	}
	if err := o.store.InitConnection(ctx); err != nil {
		metrics.IncStoreCall("init_connection", false)
		return fmt.Errorf("init store connection: %w", err)
	}
	metrics.IncStoreCall("init_connection", true)
	o.inited = true

	// Loops outlive the Init call; they stop via Destroy, not via ctx.
	loopCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel

	o.pool.Start(loopCtx)

	// Subscriptions and the event channel are opened before Init returns so
	// intents published immediately afterwards cannot be missed.
	productSub := o.actions.Subscribe(16, bus.ActionGetProducts)
	requestSub := o.actions.Subscribe(16, bus.ActionRequestPurchase)
	restoreSub := o.actions.Subscribe(16, bus.ActionRestorePurchases)
	updates := store.OpenEventChannel(o.store, o.updateBuffer)

	for _, loop := range []func(context.Context){
		func(ctx context.Context) { o.productLoop(ctx, productSub) },
		func(ctx context.Context) { o.purchaseLoop(ctx, requestSub) },
		func(ctx context.Context) { o.restoreLoop(ctx, restoreSub) },
		func(ctx context.Context) { o.observeLoop(ctx, updates) },
	} {
		o.wg.Add(1)
		go func(run func(context.Context)) {
			defer o.wg.Done()
			run(loopCtx)
		}(loop)
	}

	o.log.Info().Msg("orchestrator running")
	return nil
}

// Destroy cancels the loops, waits for them, and ends the store connection
// exactly once. Safe to call before Init and on repeat calls.
func (o *Orchestrator) Destroy(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.destroyed || !o.inited {
		return nil
	}
	o.destroyed = true

	o.cancel()
	o.wg.Wait()
	o.pool.Stop()

	err := o.store.EndConnectionAndroid(ctx)
	metrics.IncStoreCall("end_connection", err == nil)
	if err != nil {
		return fmt.Errorf("end store connection: %w", err)
	}
	o.log.Info().Msg("orchestrator destroyed")
	return nil
}

func (o *Orchestrator) productLoop(ctx context.Context, sub *bus.Subscription) {
	defer sub.Cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case a := <-sub.Actions():
			p, ok := a.Payload.(bus.GetProductsPayload)
			if !ok {
				continue
			}
			products, err := o.store.GetProducts(ctx, p.SKUs)
			metrics.IncStoreCall("get_products", err == nil)
			if err != nil {
				o.log.Error().Err(err).Strs("skus", p.SKUs).Msg("product lookup failed")
				o.publish(bus.ActionGetProductsFailed, bus.FailurePayload{ErrorCode: o.classifier.Classify(err)})
				continue
			}
			o.publish(bus.ActionGetProductsSucceeded, bus.ProductsPayload{Products: products})
		}
	}
}

func (o *Orchestrator) purchaseLoop(ctx context.Context, sub *bus.Subscription) {
	defer sub.Cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case a := <-sub.Actions():
			p, ok := a.Payload.(bus.RequestPurchasePayload)
			if !ok {
				continue
			}
			o.publish(bus.ActionRequestingPurchase, bus.RequestPurchasePayload{SKU: p.SKU})
			if err := o.handleRequestPurchase(ctx, p.SKU); err != nil {
				o.log.Error().Err(err).Str("sku", p.SKU).Msg("purchase request failed")
				o.publish(bus.ActionRequestPurchaseFailed, bus.FailurePayload{ErrorCode: o.classifier.Classify(err)})
				continue
			}
			o.publish(bus.ActionRequestPurchaseSucceeded, bus.RequestPurchasePayload{SKU: p.SKU})
		}
	}
}

// handleRequestPurchase never re-requests a product already owned: an owned
// matching purchase is reconciled instead, so a lost earlier entitlement is
// recovered rather than bought twice. The native request is fire-and-forget;
// its entitlement arrives later through the update stream.
func (o *Orchestrator) handleRequestPurchase(ctx context.Context, sku string) error {
	owned, err := o.store.GetAvailablePurchases(ctx)
	metrics.IncStoreCall("get_available_purchases", err == nil)
	if err != nil {
		return fmt.Errorf("get available purchases: %w", err)
	}

	var matching []model.PurchaseRecord
	for _, p := range owned {
		if p.ProductID == sku {
			matching = append(matching, p)
		}
	}

	if len(matching) == 0 {
		if err := o.store.RequestPurchase(ctx, sku, false); err != nil {
			metrics.IncStoreCall("request_purchase", false)
			return fmt.Errorf("request purchase %q: %w", sku, err)
		}
		metrics.IncStoreCall("request_purchase", true)
		return nil
	}

	o.log.Info().Str("sku", sku).Int("owned", len(matching)).Msg("sku already owned, reconciling instead of re-requesting")
	for _, p := range matching {
		if err := o.reconciler.ProcessPurchase(ctx, p); err != nil {
			o.log.Warn().Err(err).Str("transaction_id", p.TransactionID).Msg("reconcile of owned purchase failed")
		}
	}
	return nil
}

func (o *Orchestrator) restoreLoop(ctx context.Context, sub *bus.Subscription) {
	defer sub.Cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Actions():
			o.publish(bus.ActionRestoringPurchases, nil)

			owned, err := o.store.GetAvailablePurchases(ctx)
			metrics.IncStoreCall("get_available_purchases", err == nil)
			if err != nil {
				o.log.Error().Err(err).Msg("restore failed")
				o.publish(bus.ActionRestorePurchasesFailed, bus.FailurePayload{ErrorCode: o.classifier.Classify(err)})
				continue
			}

			// Sequential sweep: the projector's final state reflects the last
			// purchase processed.
			for _, p := range owned {
				if err := o.reconciler.ProcessPurchase(ctx, p); err != nil {
					o.log.Warn().Err(err).Str("transaction_id", p.TransactionID).Msg("restore reconcile failed")
				}
			}
			o.publish(bus.ActionRestorePurchasesSucceeded, nil)
		}
	}
}

// observeLoop drains the purchase-update stream for the orchestrator's whole
// lifetime, fanning each event out through the worker pool so a slow
// reconciliation never delays later events. The channel is closed on every
// exit path.
func (o *Orchestrator) observeLoop(ctx context.Context, ch *store.EventChannel) {
	defer ch.Close()

	for {
		purchase, ok := ch.Next(ctx)
		if !ok {
			return
		}
		p := purchase
		err := o.pool.Submit(ctx, func(taskCtx context.Context) error {
			return o.reconciler.ProcessPurchase(taskCtx, p)
		})
		if err != nil {
			// Submit fails only on shutdown.
			o.log.Debug().Err(err).Str("transaction_id", p.TransactionID).Msg("dropping purchase update on shutdown")
			return
		}
	}
}

func (o *Orchestrator) publish(t bus.ActionType, payload any) {
	o.actions.Publish(t, payload)
	metrics.IncActionPublished(string(t))
}
