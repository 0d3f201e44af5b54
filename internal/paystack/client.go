package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnavailable is returned when the Paystack API cannot be reached or
// responds with a server error. Callers retry with their own backoff; the
// client never retries internally.
var ErrUnavailable = errors.New("payment provider unavailable")

// ErrDeclined is returned when Paystack rejects the request outright.
var ErrDeclined = errors.New("payment provider declined the request")

type Client struct {
	baseURL       string
	secretKey     string
	webhookSecret string
	httpClient    *http.Client
}

func New(baseURL, secretKey, webhookSecret string, timeout time.Duration) *Client {
	return &Client{
		baseURL:       baseURL,
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

type InitializedTransaction struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type TransactionStatus struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	// Amount is reported by Paystack in kobo.
	Amount   int64          `json:"amount"`
	Metadata map[string]any `json:"metadata"`
}

type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// InitializeTransaction creates a hosted checkout session for the given
// reference and returns the authorization URL the client is redirected to.
func (c *Client) InitializeTransaction(ctx context.Context, email string, amount decimal.Decimal, reference string) (*InitializedTransaction, error) {
	payload := map[string]any{
		"email": email,
		// Paystack expects the smallest currency unit.
		"amount":    amount.Mul(decimal.NewFromInt(100)).IntPart(),
		"reference": reference,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	var initialized InitializedTransaction
	if err := c.do(req, &initialized); err != nil {
		return nil, err
	}

	return &initialized, nil
}

// VerifyTransaction asks Paystack for the authoritative status of a
// transaction reference.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*TransactionStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	var status TransactionStatus
	if err := c.do(req, &status); err != nil {
		return nil, err
	}

	return &status, nil
}

func (c *Client) do(req *http.Request, dst any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK || !envelope.Status {
		return fmt.Errorf("%w: %s", ErrDeclined, envelope.Message)
	}

	return json.Unmarshal(envelope.Data, dst)
}

// VerifySignature reports whether signature is a valid HMAC-SHA512 digest of
// body under the webhook secret. The comparison is constant time.
func (c *Client) VerifySignature(signature string, body []byte) bool {
	mac := hmac.New(sha512.New, []byte(c.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}
