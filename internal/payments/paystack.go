package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultPaystackBaseURL = "https://api.paystack.co"

// PaystackLogger defines the logging contract for Paystack provider operations.
type PaystackLogger func(ctx context.Context, event string, fields map[string]any)

// PaystackConfig configures the PaystackProvider.
type PaystackConfig struct {
	SecretKey  string
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     PaystackLogger
}

// PaystackProvider implements the Provider interface against the Paystack REST API.
type PaystackProvider struct {
	secretKey string
	baseURL   string
	http      *http.Client
	timeout   time.Duration
	logger    PaystackLogger
}

// NewPaystackProvider constructs a Paystack Provider using the given configuration.
func NewPaystackProvider(cfg PaystackConfig) (*PaystackProvider, error) {
	secretKey := strings.TrimSpace(cfg.SecretKey)
	if secretKey == "" {
		return nil, errors.New("paystack: secret key is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultPaystackBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &PaystackProvider{
		secretKey: secretKey,
		baseURL:   baseURL,
		http:      httpClient,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackInitializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type paystackTransactionData struct {
	Reference string         `json:"reference"`
	Status    string         `json:"status"`
	Amount    int64          `json:"amount"`
	Currency  string         `json:"currency"`
	Channel   string         `json:"channel"`
	PaidAt    *time.Time     `json:"paid_at"`
	Metadata  ChargeMetadata `json:"metadata"`
}

type paystackRefundData struct {
	ID          int64  `json:"id"`
	Amount      int64  `json:"amount"`
	Status      string `json:"status"`
	Transaction struct {
		Reference string `json:"reference"`
	} `json:"transaction"`
}

// InitializeTransaction starts a hosted checkout and returns the authorization URL.
func (p *PaystackProvider) InitializeTransaction(ctx context.Context, req InitializeRequest) (Authorization, error) {
	if p == nil {
		return Authorization{}, errors.New("paystack: provider is nil")
	}
	if strings.TrimSpace(req.Reference) == "" {
		return Authorization{}, errors.New("paystack: reference is required")
	}
	if req.Amount <= 0 {
		return Authorization{}, errors.New("paystack: amount must be positive")
	}

	body := map[string]any{
		"email":     req.Email,
		"amount":    req.Amount,
		"reference": req.Reference,
		"metadata":  req.Metadata,
	}
	if req.Currency != "" {
		body["currency"] = strings.ToUpper(req.Currency)
	}
	if req.CallbackURL != "" {
		body["callback_url"] = req.CallbackURL
	}

	var data paystackInitializeData
	if err := p.call(ctx, http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return Authorization{}, fmt.Errorf("paystack: initialize transaction: %w", err)
	}

	p.logger(ctx, "payments.paystack.transaction.initialized", map[string]any{
		"reference": data.Reference,
	})

	return Authorization{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}, nil
}

// VerifyTransaction fetches the authoritative transaction state by reference.
func (p *PaystackProvider) VerifyTransaction(ctx context.Context, reference string) (TransactionDetails, error) {
	if p == nil {
		return TransactionDetails{}, errors.New("paystack: provider is nil")
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return TransactionDetails{}, errors.New("paystack: reference is required")
	}

	var data paystackTransactionData
	if err := p.call(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &data); err != nil {
		return TransactionDetails{}, fmt.Errorf("paystack: verify transaction: %w", err)
	}

	return TransactionDetails{
		Reference: data.Reference,
		Status:    normaliseStatus(data.Status),
		Amount:    data.Amount,
		Currency:  strings.ToUpper(data.Currency),
		Channel:   data.Channel,
		PaidAt:    data.PaidAt,
		Metadata:  data.Metadata,
	}, nil
}

// Refund requests a refund of the settled transaction. Paystack deduplicates
// by merchant_note so retried refund attempts do not double-refund.
func (p *PaystackProvider) Refund(ctx context.Context, req RefundRequest) (Refund, error) {
	if p == nil {
		return Refund{}, errors.New("paystack: provider is nil")
	}
	if strings.TrimSpace(req.Reference) == "" {
		return Refund{}, errors.New("paystack: reference is required")
	}

	body := map[string]any{
		"transaction": req.Reference,
	}
	if req.Amount != nil {
		body["amount"] = *req.Amount
	}
	if req.MerchantReference != "" {
		body["merchant_note"] = req.MerchantReference
	}
	if req.Reason != "" {
		body["customer_note"] = req.Reason
	}

	var data paystackRefundData
	if err := p.call(ctx, http.MethodPost, "/refund", body, &data); err != nil {
		return Refund{}, fmt.Errorf("paystack: refund: %w", err)
	}

	p.logger(ctx, "payments.paystack.refund.requested", map[string]any{
		"reference": req.Reference,
		"refundId":  data.ID,
	})

	return Refund{
		ID:        data.ID,
		Reference: data.Transaction.Reference,
		Status:    data.Status,
		Amount:    data.Amount,
	}, nil
}

func (p *PaystackProvider) call(ctx context.Context, method, path string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrProviderUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrTransactionNotFound
	}

	var envelope paystackEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest || !envelope.Status {
		return fmt.Errorf("api error: status %d: %s", resp.StatusCode, envelope.Message)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}

func normaliseStatus(status string) Status {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success":
		return StatusSuccess
	case "failed":
		return StatusFailed
	case "abandoned":
		return StatusAbandoned
	default:
		return StatusPending
	}
}
