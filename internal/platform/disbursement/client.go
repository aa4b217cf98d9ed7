package disbursement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"hrbenefits/internal/domain/benefits"
	"hrbenefits/internal/platform/config"
)

// New builds the provider selected by DISBURSEMENT_PROVIDER.
func New(cfg config.Config) (benefits.Provider, error) {
	switch cfg.DisbursementProvider {
	case config.ProviderSandbox:
		return NewSandbox(), nil
	case config.ProviderHTTP:
		settings, timeout, err := resolve(cfg)
		if err != nil {
			return nil, err
		}
		return NewClient(settings, &http.Client{Timeout: timeout}), nil
	}
	return nil, fmt.Errorf("unknown disbursement provider %q", cfg.DisbursementProvider)
}

// Client talks to the provider's JSON API with a bearer API key.
type Client struct {
	settings Settings
	http     *http.Client
}

func NewClient(settings Settings, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if settings.SubmitPath == "" {
		settings.SubmitPath = defaultSubmitPath
	}
	if settings.StatusPath == "" {
		settings.StatusPath = defaultStatusPath
	}
	settings.BaseURL = strings.TrimRight(settings.BaseURL, "/")
	return &Client{settings: settings, http: httpClient}
}

type submitRequest struct {
	BatchID       string          `json:"batchId"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	EmployeeCount int             `json:"employeeCount"`
}

type submitResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func (c *Client) SubmitBatch(ctx context.Context, batch benefits.Batch) (benefits.BatchReceipt, error) {
	body, err := json.Marshal(submitRequest{
		BatchID:       batch.ID,
		TotalAmount:   batch.TotalAmount,
		EmployeeCount: batch.EmployeeCount,
	})
	if err != nil {
		return benefits.BatchReceipt{}, err
	}
	raw, err := c.do(ctx, http.MethodPost, c.settings.SubmitPath, body)
	if err != nil {
		return benefits.BatchReceipt{}, err
	}
	var resp submitResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return benefits.BatchReceipt{}, fmt.Errorf("decode submit response: %w", err)
	}
	status := benefits.ProviderStatusProcessing
	if resp.Status != "" {
		status, err = parseStatus(resp.Status)
		if err != nil {
			return benefits.BatchReceipt{}, err
		}
	}
	return benefits.BatchReceipt{Reference: resp.Reference, Status: status, Response: string(raw)}, nil
}

func (c *Client) BatchStatus(ctx context.Context, reference string) (benefits.ProviderStatus, error) {
	path := strings.ReplaceAll(c.settings.StatusPath, "{reference}", url.PathEscape(reference))
	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	var resp statusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode status response: %w", err)
	}
	return parseStatus(resp.Status)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.settings.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.settings.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.settings.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("provider %s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

func parseStatus(value string) (benefits.ProviderStatus, error) {
	for _, status := range []benefits.ProviderStatus{
		benefits.ProviderStatusPending,
		benefits.ProviderStatusProcessing,
		benefits.ProviderStatusCompleted,
		benefits.ProviderStatusFailed,
	} {
		if strings.EqualFold(string(status), strings.TrimSpace(value)) {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: %q", benefits.ErrInvalidProviderStatus, value)
}
