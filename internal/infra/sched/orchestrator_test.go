//go:build !integration

package sched

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"iap-sync-engine/internal/bus"
	"iap-sync-engine/internal/domain/model"
	derror "iap-sync-engine/internal/error"
	"iap-sync-engine/internal/infra/adapters/entitlement"
	"iap-sync-engine/internal/infra/adapters/store"
	"iap-sync-engine/internal/infra/auth"
	"iap-sync-engine/internal/infra/telemetry"
	"iap-sync-engine/internal/usecase"
)

type orcDeps struct {
	store      *stubStore
	reconcile  *mockReconcile
	classifier *mockClassifier
	actions    *bus.Bus
	orc        *Orchestrator
}

func newOrcDeps() *orcDeps {
	st := newStubStore()
	rc := &mockReconcile{}
	cl := &mockClassifier{}
	b := bus.New(newTestLogger())
	return &orcDeps{
		store:      st,
		reconcile:  rc,
		classifier: cl,
		actions:    b,
		orc:        NewOrchestrator(st, rc, cl, b, 2, 16, newTestLogger()),
	}
}

func waitAction(t *testing.T, sub *bus.Subscription) bus.Action {
	t.Helper()
	select {
	case a := <-sub.Actions():
		return a
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for action")
		return bus.Action{}
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestOrchestrator_Lifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("second init is rejected", func(t *testing.T) {
		deps := newOrcDeps()
		if err := deps.orc.Init(ctx); err != nil {
			t.Fatalf("Init: %v", err)
		}
		defer deps.orc.Destroy(ctx)

		if err := deps.orc.Init(ctx); !errors.Is(err, derror.ErrConnectionInited) {
			t.Errorf("expected ErrConnectionInited, got %v", err)
		}
	})

	t.Run("failed init leaves the orchestrator uninitialized", func(t *testing.T) {
		deps := newOrcDeps()
		deps.store.initErr = errors.New("billing unavailable")
		if err := deps.orc.Init(ctx); err == nil {
			t.Fatal("expected init failure")
		}
		if deps.store.handlerCount() != 0 {
			t.Error("failed init must not leave an update subscription behind")
		}

		deps.store.initErr = nil
		if err := deps.orc.Init(ctx); err != nil {
			t.Fatalf("retried Init: %v", err)
		}
		deps.orc.Destroy(ctx)
	})

	t.Run("destroy before init is a no-op", func(t *testing.T) {
		deps := newOrcDeps()
		if err := deps.orc.Destroy(ctx); err != nil {
			t.Fatalf("Destroy: %v", err)
		}
		if deps.store.endConnectionCalls() != 0 {
			t.Error("connection teardown must be gated on a successful init")
		}
	})

	t.Run("destroy ends the connection exactly once", func(t *testing.T) {
		deps := newOrcDeps()
		if err := deps.orc.Init(ctx); err != nil {
			t.Fatalf("Init: %v", err)
		}
		for i := 0; i < 3; i++ {
			if err := deps.orc.Destroy(ctx); err != nil {
				t.Fatalf("Destroy %d: %v", i+1, err)
			}
		}
		if got := deps.store.endConnectionCalls(); got != 1 {
			t.Errorf("expected exactly one EndConnectionAndroid, got %d", got)
		}
	})

	t.Run("destroy closes the update subscription", func(t *testing.T) {
		deps := newOrcDeps()
		if err := deps.orc.Init(ctx); err != nil {
			t.Fatalf("Init: %v", err)
		}
		if deps.store.handlerCount() != 1 {
			t.Fatalf("expected one update subscription, got %d", deps.store.handlerCount())
		}
		deps.orc.Destroy(ctx)
		if deps.store.handlerCount() != 0 {
			t.Error("update subscription must be removed on teardown")
		}

		deps.store.emit(model.PurchaseRecord{ProductID: "premium_lifetime", TransactionID: "late"})
		time.Sleep(20 * time.Millisecond)
		if n := len(deps.reconcile.calls()); n != 0 {
			t.Errorf("no reconciliation may start after teardown, got %d", n)
		}
	})
}

func TestOrchestrator_ProductLoop(t *testing.T) {
	ctx := context.Background()
	deps := newOrcDeps()
	deps.store.products = []model.Product{{SKU: "premium_lifetime", Title: "Premium"}}
	deps.classifier.code = derror.CodeNetwork

	if err := deps.orc.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer deps.orc.Destroy(ctx)

	sub := deps.actions.Subscribe(8, bus.ActionGetProductsSucceeded, bus.ActionGetProductsFailed)
	defer sub.Cancel()

	deps.actions.Publish(bus.ActionGetProducts, bus.GetProductsPayload{SKUs: []string{"premium_lifetime"}})
	a := waitAction(t, sub)
	if a.Type != bus.ActionGetProductsSucceeded {
		t.Fatalf("expected success, got %q", a.Type)
	}
	if p := a.Payload.(bus.ProductsPayload); len(p.Products) != 1 || p.Products[0].SKU != "premium_lifetime" {
		t.Errorf("unexpected products payload: %+v", p)
	}

	// A failing iteration publishes a classified failure and the loop keeps
	// serving.
	deps.store.setProductsErr(errors.New("store timeout"))
	deps.actions.Publish(bus.ActionGetProducts, bus.GetProductsPayload{SKUs: []string{"premium_lifetime"}})
	a = waitAction(t, sub)
	if a.Type != bus.ActionGetProductsFailed {
		t.Fatalf("expected failure, got %q", a.Type)
	}
	if p := a.Payload.(bus.FailurePayload); p.ErrorCode != derror.CodeNetwork {
		t.Errorf("expected classified code, got %q", p.ErrorCode)
	}

	deps.store.setProductsErr(nil)
	deps.actions.Publish(bus.ActionGetProducts, bus.GetProductsPayload{SKUs: []string{"premium_lifetime"}})
	if a = waitAction(t, sub); a.Type != bus.ActionGetProductsSucceeded {
		t.Errorf("loop must survive a failed iteration, got %q", a.Type)
	}
}

func TestOrchestrator_PurchaseRequestLoop(t *testing.T) {
	ctx := context.Background()

	t.Run("unowned sku issues one native request", func(t *testing.T) {
		deps := newOrcDeps()
		if err := deps.orc.Init(ctx); err != nil {
			t.Fatalf("Init: %v", err)
		}
		defer deps.orc.Destroy(ctx)

		sub := deps.actions.Subscribe(8,
			bus.ActionRequestingPurchase,
			bus.ActionRequestPurchaseSucceeded,
			bus.ActionRequestPurchaseFailed,
		)
		defer sub.Cancel()

		deps.actions.Publish(bus.ActionRequestPurchase, bus.RequestPurchasePayload{SKU: "premium_lifetime"})
		if a := waitAction(t, sub); a.Type != bus.ActionRequestingPurchase {
			t.Fatalf("expected requesting first, got %q", a.Type)
		}
		if a := waitAction(t, sub); a.Type != bus.ActionRequestPurchaseSucceeded {
			t.Fatalf("expected request success, got %q", a.Type)
		}

		if got := deps.store.requestedSKUs(); len(got) != 1 || got[0] != "premium_lifetime" {
			t.Errorf("expected one native request for premium_lifetime, got %v", got)
		}
		if n := len(deps.reconcile.calls()); n != 0 {
			t.Errorf("nothing to reconcile for an unowned sku, got %d calls", n)
		}
	})

	t.Run("owned sku reconciles instead of re-requesting", func(t *testing.T) {
		deps := newOrcDeps()
		owned := model.PurchaseRecord{ProductID: "premium_lifetime", TransactionID: "tx-old", PurchaseToken: "tok-old"}
		deps.store.owned = []model.PurchaseRecord{owned, {ProductID: "other_sku", TransactionID: "tx-x"}}
		if err := deps.orc.Init(ctx); err != nil {
			t.Fatalf("Init: %v", err)
		}
		defer deps.orc.Destroy(ctx)

		sub := deps.actions.Subscribe(8, bus.ActionRequestPurchaseSucceeded)
		defer sub.Cancel()

		deps.actions.Publish(bus.ActionRequestPurchase, bus.RequestPurchasePayload{SKU: "premium_lifetime"})
		waitAction(t, sub)

		if got := deps.store.requestedSKUs(); len(got) != 0 {
			t.Errorf("owned sku must never be re-requested, got %v", got)
		}
		calls := deps.reconcile.calls()
		if len(calls) != 1 || calls[0].TransactionID != "tx-old" {
			t.Errorf("expected the matching owned purchase reconciled, got %+v", calls)
		}
	})

	t.Run("store failure publishes request_failed", func(t *testing.T) {
		deps := newOrcDeps()
		deps.store.ownedErr = errors.New("billing disconnected")
		deps.classifier.code = derror.CodeNetwork
		if err := deps.orc.Init(ctx); err != nil {
			t.Fatalf("Init: %v", err)
		}
		defer deps.orc.Destroy(ctx)

		sub := deps.actions.Subscribe(8, bus.ActionRequestPurchaseFailed)
		defer sub.Cancel()

		deps.actions.Publish(bus.ActionRequestPurchase, bus.RequestPurchasePayload{SKU: "premium_lifetime"})
		a := waitAction(t, sub)
		if p := a.Payload.(bus.FailurePayload); p.ErrorCode != derror.CodeNetwork {
			t.Errorf("expected NETWORK_ERROR, got %q", p.ErrorCode)
		}
	})
}

func TestOrchestrator_RestoreLoop(t *testing.T) {
	ctx := context.Background()

	t.Run("sequential sweep over every owned purchase", func(t *testing.T) {
		deps := newOrcDeps()
		deps.store.owned = []model.PurchaseRecord{
			{ProductID: "premium_lifetime", TransactionID: "tx-1", PurchaseToken: "tok-1"},
			{ProductID: "premium_lifetime", TransactionID: "tx-2", PurchaseToken: "tok-2"},
		}
		if err := deps.orc.Init(ctx); err != nil {
			t.Fatalf("Init: %v", err)
		}
		defer deps.orc.Destroy(ctx)

		sub := deps.actions.Subscribe(8, bus.ActionRestoringPurchases, bus.ActionRestorePurchasesSucceeded)
		defer sub.Cancel()

		deps.actions.Publish(bus.ActionRestorePurchases, nil)
		if a := waitAction(t, sub); a.Type != bus.ActionRestoringPurchases {
			t.Fatalf("expected restoring first, got %q", a.Type)
		}
		if a := waitAction(t, sub); a.Type != bus.ActionRestorePurchasesSucceeded {
			t.Fatalf("expected restore success, got %q", a.Type)
		}

		calls := deps.reconcile.calls()
		if len(calls) != 2 || calls[0].TransactionID != "tx-1" || calls[1].TransactionID != "tx-2" {
			t.Errorf("expected sequential reconciliation in store order, got %+v", calls)
		}
	})

	t.Run("reconcile errors do not fail the restore", func(t *testing.T) {
		deps := newOrcDeps()
		deps.store.owned = []model.PurchaseRecord{{ProductID: "premium_lifetime", TransactionID: "tx-1"}}
		deps.reconcile.err = errors.New("server rejected")
		if err := deps.orc.Init(ctx); err != nil {
			t.Fatalf("Init: %v", err)
		}
		defer deps.orc.Destroy(ctx)

		sub := deps.actions.Subscribe(8, bus.ActionRestorePurchasesSucceeded, bus.ActionRestorePurchasesFailed)
		defer sub.Cancel()

		deps.actions.Publish(bus.ActionRestorePurchases, nil)
		if a := waitAction(t, sub); a.Type != bus.ActionRestorePurchasesSucceeded {
			t.Errorf("per-purchase failures publish their own actions, restore still succeeds; got %q", a.Type)
		}
	})

	t.Run("store failure publishes restore_failed", func(t *testing.T) {
		deps := newOrcDeps()
		deps.store.ownedErr = errors.New("billing disconnected")
		deps.classifier.code = derror.CodeNetwork
		if err := deps.orc.Init(ctx); err != nil {
			t.Fatalf("Init: %v", err)
		}
		defer deps.orc.Destroy(ctx)

		sub := deps.actions.Subscribe(8, bus.ActionRestorePurchasesFailed)
		defer sub.Cancel()

		deps.actions.Publish(bus.ActionRestorePurchases, nil)
		a := waitAction(t, sub)
		if p := a.Payload.(bus.FailurePayload); p.ErrorCode != derror.CodeNetwork {
			t.Errorf("expected NETWORK_ERROR, got %q", p.ErrorCode)
		}
	})
}

func TestOrchestrator_ObserveUpdates(t *testing.T) {
	ctx := context.Background()
	deps := newOrcDeps()
	if err := deps.orc.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer deps.orc.Destroy(ctx)

	deps.store.emit(model.PurchaseRecord{ProductID: "premium_lifetime", TransactionID: "tx-1", PurchaseToken: "tok-1"})
	deps.store.emit(model.PurchaseRecord{ProductID: "premium_lifetime", TransactionID: "tx-2", PurchaseToken: "tok-2"})

	eventually(t, func() bool { return len(deps.reconcile.calls()) == 2 },
		"expected both purchase updates reconciled")
}

// End-to-end: request-purchase intent, simulated store event, real
// reconciliation against a stub entitlement server, projector lands on
// INACTIVE with a successful outcome.
func TestOrchestrator_EndToEnd(t *testing.T) {
	ctx := context.Background()
	log := newTestLogger()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req model.ProcessPurchaseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := model.ProcessPurchaseResponse{
			PurchasesSuccessfullyApplied: []model.PurchaseRecord{
				{ProductID: req.Receipt.Android.ProductID, TransactionID: "srv-tx"},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	entClient, err := entitlement.NewClient(srv.URL, time.Second, log)
	if err != nil {
		t.Fatalf("entitlement client: %v", err)
	}

	session := auth.NewSessionManager(auth.NewMemoryTokenStore(), log)
	if err := session.SignIn(ctx, "opaque-session-token"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	sim := store.NewSimStore([]model.Product{{SKU: "premium_lifetime", Title: "Premium"}}, log)
	classifier := telemetry.NewClassifier(log)
	actions := bus.New(log)

	reconcile := usecase.NewReconcileUseCase(session, entClient, sim, classifier, actions, "com.example.app", log)
	projector := usecase.NewPurchaseStateUseCase(actions, []string{"premium_lifetime"}, log)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go projector.Run(runCtx)

	orc := NewOrchestrator(sim, reconcile, classifier, actions, 2, 16, log)
	if err := orc.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer orc.Destroy(ctx)

	actions.Publish(bus.ActionRequestPurchase, bus.RequestPurchasePayload{SKU: "premium_lifetime"})

	eventually(t, func() bool {
		s := projector.State()
		return s.ProcessState == model.ActivityInactive && s.ProcessResult != nil && s.ProcessResult.Success
	}, "projector never reached INACTIVE/{success:true}")
}
