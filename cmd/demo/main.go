// A self-contained walkthrough of the purchase flow: an in-process
// entitlement stub, the sim store, a request-purchase intent, and the
// projector's terminal state printed at the end.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/rs/zerolog"

	"iap-sync-engine/internal/bus"
	"iap-sync-engine/internal/domain/model"
	"iap-sync-engine/internal/infra/adapters/entitlement"
	"iap-sync-engine/internal/infra/adapters/store"
	"iap-sync-engine/internal/infra/auth"
	"iap-sync-engine/internal/infra/sched"
	"iap-sync-engine/internal/infra/telemetry"
	"iap-sync-engine/internal/usecase"
)

const demoSKU = "premium_lifetime"

// entitlementStub applies every receipt once and classifies repeats as
// already applied, the way the real server's idempotency guard behaves.
func entitlementStub() *httptest.Server {
	applied := map[string]bool{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req model.ProcessPurchaseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		token := req.Receipt.Raw
		productID := demoSKU
		if req.Receipt.Android != nil {
			token = req.Receipt.Android.PurchaseToken
			productID = req.Receipt.Android.ProductID
		}

		record := model.PurchaseRecord{ProductID: productID, TransactionID: "srv-" + token}
		var resp model.ProcessPurchaseResponse
		if applied[token] {
			resp.PurchasesAlreadyApplied = []model.PurchaseRecord{record}
		} else {
			applied[token] = true
			resp.PurchasesSuccessfullyApplied = []model.PurchaseRecord{record}
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := zerolog.New(zerolog.ConsoleWriter{Out: log.Writer(), TimeFormat: time.Kitchen}).
		With().Timestamp().Logger().Level(zerolog.InfoLevel)
	logger := &l

	srv := entitlementStub()
	defer srv.Close()

	entClient, err := entitlement.NewClient(srv.URL, 5*time.Second, logger)
	if err != nil {
		log.Fatalf("entitlement client: %v", err)
	}

	session := auth.NewSessionManager(auth.NewMemoryTokenStore(), logger)
	if err := session.SignIn(ctx, "demo-session-token"); err != nil {
		log.Fatalf("sign in: %v", err)
	}

	simStore := store.NewSimStore([]model.Product{{SKU: demoSKU, Title: "Premium Lifetime", Price: "9.99", Currency: "USD"}}, logger)
	classifier := telemetry.NewClassifier(logger)
	actions := bus.New(logger)

	reconcileUC := usecase.NewReconcileUseCase(session, entClient, simStore, classifier, actions, "com.example.demo", logger)
	stateUC := usecase.NewPurchaseStateUseCase(actions, []string{demoSKU}, logger)
	go stateUC.Run(ctx)

	orc := sched.NewOrchestrator(simStore, reconcileUC, classifier, actions, 2, 16, logger)
	if err := orc.Init(ctx); err != nil {
		log.Fatalf("orchestrator init: %v", err)
	}
	defer orc.Destroy(context.Background())

	// 1. Buy the product. The sim store emits the purchase on its update
	// stream and the observe loop reconciles it.
	logger.Info().Str("sku", demoSKU).Msg("requesting purchase")
	actions.Publish(bus.ActionRequestPurchase, bus.RequestPurchasePayload{SKU: demoSKU})
	waitTerminal(stateUC, logger)

	// 2. Restore. The same purchase reconciles again; the server now reports
	// it as already applied.
	logger.Info().Msg("restoring purchases")
	sub := actions.Subscribe(4, bus.ActionRestorePurchasesSucceeded, bus.ActionRestorePurchasesFailed)
	defer sub.Cancel()
	actions.Publish(bus.ActionRestorePurchases, nil)
	select {
	case <-sub.Actions():
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("restore did not finish before deadline")
	}
	// Let the projector drain its subscription before reading the state.
	time.Sleep(100 * time.Millisecond)
	printState(stateUC, logger)
}

func printState(stateUC usecase.PurchaseStateUseCase, logger *zerolog.Logger) {
	out, _ := json.Marshal(stateUC.State())
	logger.Info().RawJSON("state", out).Msg("purchase state")
}

func waitTerminal(stateUC usecase.PurchaseStateUseCase, logger *zerolog.Logger) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s := stateUC.State()
		if s.ProcessResult != nil && s.ProcessState != model.ActivityActive {
			out, _ := json.Marshal(s)
			logger.Info().RawJSON("state", out).Msg("terminal purchase state")
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	logger.Warn().Msg("no terminal state before deadline")
}
