package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Gateway error taxonomy. Unavailable is transient and retryable by the
// caller's own policy; Rejected is a definitive non-success answer.
var (
	ErrGatewayUnavailable = errors.New("paystack: gateway unavailable")
	ErrGatewayRejected    = errors.New("paystack: gateway rejected request")
)

const (
	defaultBaseURL = "https://api.paystack.co"
	defaultTimeout = 10 * time.Second

	// StatusSuccess is the gateway's settled-payment status value.
	StatusSuccess = "success"
)

// Client performs outbound authenticated calls to the payment gateway.
// Stateless; safe for concurrent use.
type Client struct {
	baseURL   string
	secretKey string
	client    *http.Client
	logger    *zap.Logger
}

// NewClient returns a gateway client. Empty baseURL and zero timeout fall
// back to production defaults.
func NewClient(baseURL, secretKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:   baseURL,
		secretKey: secretKey,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// InitializeRequest starts a checkout session.
type InitializeRequest struct {
	Email       string `json:"email"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Metadata    struct {
		UserID   int64 `json:"user_id"`
		CourseID int64 `json:"course_id"`
	} `json:"metadata"`
}

// InitializeResult is the redirect handle for a created session.
type InitializeResult struct {
	Reference        string
	AuthorizationURL string
}

// PaymentStatus is the gateway's authoritative view of one payment.
// Raw holds the exact response body for audit storage.
type PaymentStatus struct {
	Reference   string
	Status      string
	AmountMinor int64
	Currency    string
	PaidAt      time.Time
	Raw         json.RawMessage
}

type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type verifyData struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	PaidAt    string `json:"paid_at"`
}

// InitializeTransaction creates a payment session and returns the gateway
// reference plus the redirect URL for the buyer.
func (c *Client) InitializeTransaction(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	envelope, _, err := c.do(ctx, http.MethodPost, "/transaction/initialize", body)
	if err != nil {
		return nil, err
	}

	var data initializeData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, fmt.Errorf("paystack: decode initialize response: %w", err)
	}
	if data.Reference == "" || data.AuthorizationURL == "" {
		return nil, ErrGatewayRejected
	}

	return &InitializeResult{
		Reference:        data.Reference,
		AuthorizationURL: data.AuthorizationURL,
	}, nil
}

// VerifyTransaction re-fetches the authoritative status of a payment. The
// client confirmation path uses this instead of trusting anything the
// browser supplies beyond the reference itself.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*PaymentStatus, error) {
	if reference == "" {
		return nil, ErrGatewayRejected
	}

	path := "/transaction/verify/" + url.PathEscape(reference)
	envelope, raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var data verifyData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, fmt.Errorf("paystack: decode verify response: %w", err)
	}

	status := &PaymentStatus{
		Reference:   data.Reference,
		Status:      data.Status,
		AmountMinor: data.Amount,
		Currency:    data.Currency,
		Raw:         raw,
	}
	if data.PaidAt != "" {
		if paidAt, err := time.Parse(time.RFC3339, data.PaidAt); err == nil {
			status.PaidAt = paidAt
		}
	}
	return status, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*apiEnvelope, json.RawMessage, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("paystack request failed", zap.String("path", path), zap.Error(err))
		return nil, nil, ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, ErrGatewayUnavailable
	}

	if resp.StatusCode >= 500 {
		c.logger.Warn("paystack server error", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return nil, nil, ErrGatewayUnavailable
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, nil, fmt.Errorf("%w: malformed response", ErrGatewayUnavailable)
	}

	if resp.StatusCode >= 400 || !envelope.Status {
		c.logger.Warn("paystack rejected request",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", envelope.Message),
		)
		return nil, nil, ErrGatewayRejected
	}

	return &envelope, respBody, nil
}
