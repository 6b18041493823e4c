package entitlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"iap-sync-engine/internal/domain/model"
	"iap-sync-engine/internal/domain/ports/adapter"
	derror "iap-sync-engine/internal/error"
)

var _ adapter.EntitlementClient = (*Client)(nil)

// Client talks to the entitlement server, the single source of truth for
// purchase reconciliation.
type Client struct {
	baseURL string
	client  *http.Client
	log     *zerolog.Logger
}

func NewClient(apiURL string, timeout time.Duration, logger *zerolog.Logger) (*Client, error) {
	if apiURL == "" {
		return nil, errors.New("entitlement api url empty")
	}
	if _, err := url.Parse(apiURL); err != nil {
		return nil, fmt.Errorf("invalid entitlement api url: %w", err)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(apiURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     logger,
	}, nil
}

// ProcessPurchase submits one receipt and returns the server's three-way
// classification. Auth and transport errors are returned to the caller for
// classification; nothing is retried here.
func (c *Client) ProcessPurchase(ctx context.Context, receipt model.Receipt, accessToken string) (*model.ProcessPurchaseResponse, error) {
	body, err := json.Marshal(model.ProcessPurchaseRequest{Receipt: receipt})
	if err != nil {
		return nil, fmt.Errorf("encode receipt: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/process-purchase", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("process-purchase http %d: %w", resp.StatusCode, derror.ErrServer)
	}

	var out model.ProcessPurchaseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode process-purchase response: %w", err)
	}
	return &out, nil
}
