package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"paypipe/pkg/errors"
)

// HTTPChargeProvider looks up charges at the card processor's REST API.
type HTTPChargeProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPChargeProvider(baseURL, apiKey string, timeout time.Duration) *HTTPChargeProvider {
	return &HTTPChargeProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *HTTPChargeProvider) GetCharge(ctx context.Context, chargeID string) (Charge, error) {
	var charge Charge
	if err := getJSON(ctx, p.client, p.baseURL+"/v1/charges/"+chargeID, p.apiKey, &charge); err != nil {
		return Charge{}, err
	}
	return charge, nil
}

// HTTPOrderProvider looks up orders at the wallet provider's REST API.
type HTTPOrderProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPOrderProvider(baseURL, apiKey string, timeout time.Duration) *HTTPOrderProvider {
	return &HTTPOrderProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *HTTPOrderProvider) GetOrder(ctx context.Context, orderID string) (Order, error) {
	var order Order
	if err := getJSON(ctx, p.client, p.baseURL+"/v2/checkout/orders/"+orderID, p.apiKey, &order); err != nil {
		return Order{}, err
	}
	return order, nil
}

func getJSON(ctx context.Context, client *http.Client, url, apiKey string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.ErrInternal.WithCause(err)
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return errors.ErrTransientInfra.WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errors.ErrNotFound.WithDetail("message", fmt.Sprintf("%s returned 404", url))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.ErrTransientInfra.WithDetail("message",
			fmt.Sprintf("provider returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.ErrTransientInfra.WithCause(err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.ErrTransientInfra.WithCause(err)
	}
	return nil
}

// StubOrderProvider stands in when no wallet provider is configured. It
// echoes an order matching whatever is asked for, so the check list runs
// but every check passes.
type StubOrderProvider struct {
	Amount   int64
	Currency string
}

func (p *StubOrderProvider) GetOrder(_ context.Context, orderID string) (Order, error) {
	return Order{
		ID:        orderID,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Status:    "completed",
		CreatedAt: time.Now(),
	}, nil
}
