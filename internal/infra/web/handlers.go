package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"iap-sync-engine/internal/bus"
)

type requestPurchaseBody struct {
	SKU string `json:"sku"`
}

type acceptedResponse struct {
	Status string `json:"status"`
}

// handlePurchaseState serves the projector's current snapshot.
func (s *Server) handlePurchaseState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stateUC.State())
}

// handleRequestPurchase publishes a purchase intent. The outcome arrives
// asynchronously through the engine; poll /purchases/state for it.
func (s *Server) handleRequestPurchase(w http.ResponseWriter, r *http.Request) {
	var body requestPurchaseBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.SKU == "" {
		http.Error(w, "sku is required", http.StatusBadRequest)
		return
	}

	s.actions.Publish(bus.ActionRequestPurchase, bus.RequestPurchasePayload{SKU: body.SKU})
	writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted"})
}

func (s *Server) handleRestorePurchases(w http.ResponseWriter, r *http.Request) {
	s.actions.Publish(bus.ActionRestorePurchases, nil)
	writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted"})
}

// handleGetProducts publishes a lookup intent and waits for the engine's
// answer. The subscription is opened before publishing so the reply cannot be
// missed.
func (s *Server) handleGetProducts(w http.ResponseWriter, r *http.Request) {
	skus := splitSKUs(r.URL.Query().Get("skus"))
	if len(skus) == 0 {
		http.Error(w, "skus query parameter is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), productLookupTimeout)
	defer cancel()

	sub := s.actions.Subscribe(1, bus.ActionGetProductsSucceeded, bus.ActionGetProductsFailed)
	defer sub.Cancel()

	s.actions.Publish(bus.ActionGetProducts, bus.GetProductsPayload{SKUs: skus})

	select {
	case <-ctx.Done():
		http.Error(w, "product lookup timed out", http.StatusGatewayTimeout)
	case a := <-sub.Actions():
		switch a.Type {
		case bus.ActionGetProductsSucceeded:
			p, _ := a.Payload.(bus.ProductsPayload)
			writeJSON(w, http.StatusOK, struct {
				Data any `json:"data"`
			}{Data: p.Products})
		case bus.ActionGetProductsFailed:
			p, _ := a.Payload.(bus.FailurePayload)
			writeJSON(w, http.StatusBadGateway, struct {
				ErrorCode string `json:"errorCode"`
			}{ErrorCode: string(p.ErrorCode)})
		}
	}
}

func splitSKUs(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
