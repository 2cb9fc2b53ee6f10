package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/khillon-makwana/CampusEventHub-sub000/config"
)

// ErrUnavailable marks network/auth failures talking to the gateway. The
// payment stays pending and the caller may retry the push.
var ErrUnavailable = errors.New("payment gateway unavailable")

// queryProcessingCode is returned by the status query while the customer
// has not yet confirmed or abandoned the push prompt.
const queryProcessingCode = "500.001.1001"

// Outcome is the normalized verdict of a callback or status query.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	// OutcomePending means the gateway has no terminal verdict yet. Only an
	// explicit failure code may fail a payment; pending never does.
	OutcomePending Outcome = "pending"
)

// Result carries the gateway's verdict in a shape shared by the webhook and
// the status query, so both funnel into the same reconciliation routine.
type Result struct {
	CheckoutRequestID string
	Outcome           Outcome
	Code              string
	Desc              string
	Receipt           string
	Phone             string
	Amount            int64
}

// Client is a stateless adapter over the mobile-money STK push API. It holds
// no payment invariants and never touches the store.
type Client struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	shortCode      string
	passkey        string
	callbackURL    string

	hc *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a gateway client from config
func NewClient(cfg config.GatewayConfig) *Client {
	return &Client{
		baseURL:        cfg.BaseURL,
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		shortCode:      cfg.ShortCode,
		passkey:        cfg.Passkey,
		callbackURL:    cfg.CallbackURL,
		hc:             &http.Client{Timeout: 30 * time.Second},
	}
}

// token returns a cached OAuth access token, fetching a fresh one when the
// cached token is within 30 seconds of expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Until(c.tokenExpiry) > 30*time.Second {
		return c.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("token: http.NewRequestWithContext: %w", err)
	}
	req.SetBasicAuth(c.consumerKey, c.consumerSecret)

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("token: %v: %w", err, ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		rbody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token: resp.StatusCode: %d, resp.Body: %s: %w", resp.StatusCode, rbody, ErrUnavailable)
	}

	var reply struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("token: json.Decode: %w", err)
	}

	c.accessToken = reply.AccessToken
	c.tokenExpiry = time.Now().Add(55 * time.Minute)
	return c.accessToken, nil
}

// password builds the API password for a request timestamp
func (c *Client) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.shortCode + c.passkey + timestamp))
}

// PushRequest describes an STK push initiation
type PushRequest struct {
	Amount      int64
	Phone       string
	Reference   string
	Description string
}

// PushResponse is the gateway's acknowledgment of a push request
type PushResponse struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResponseCode      string `json:"ResponseCode"`
	ResponseDesc      string `json:"ResponseDescription"`
	CustomerMessage   string `json:"CustomerMessage"`
}

// STKPush initiates a push-payment prompt on the customer's phone and
// returns the checkout request id used to correlate the async callback.
func (c *Client) STKPush(ctx context.Context, push PushRequest) (*PushResponse, error) {
	accessToken, err := c.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("stkPush: %w", err)
	}

	timestamp := time.Now().Format("20060102150405")
	body := map[string]interface{}{
		"BusinessShortCode": c.shortCode,
		"Password":          c.password(timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            push.Amount,
		"PartyA":            push.Phone,
		"PartyB":            c.shortCode,
		"PhoneNumber":       push.Phone,
		"CallBackURL":       c.callbackURL,
		"AccountReference":  push.Reference,
		"TransactionDesc":   push.Description,
	}

	var reply PushResponse
	if err := c.post(ctx, accessToken, "/mpesa/stkpush/v1/processrequest", body, &reply); err != nil {
		return nil, fmt.Errorf("stkPush: %w", err)
	}

	if reply.ResponseCode != "0" {
		return nil, fmt.Errorf("stkPush: ResponseCode: %s, ResponseDescription: %s: %w",
			reply.ResponseCode, reply.ResponseDesc, ErrUnavailable)
	}

	return &reply, nil
}

// QueryStatus polls the gateway for the verdict of a previously initiated
// push. An inconclusive poll maps to OutcomePending, never failure.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (*Result, error) {
	accessToken, err := c.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("queryStatus: %w", err)
	}

	timestamp := time.Now().Format("20060102150405")
	body := map[string]interface{}{
		"BusinessShortCode": c.shortCode,
		"Password":          c.password(timestamp),
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}

	var reply struct {
		ResponseCode string `json:"ResponseCode"`
		ResultCode   string `json:"ResultCode"`
		ResultDesc   string `json:"ResultDesc"`
		ErrorCode    string `json:"errorCode"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := c.post(ctx, accessToken, "/mpesa/stkpushquery/v1/query", body, &reply); err != nil {
		return nil, fmt.Errorf("queryStatus: %w", err)
	}

	result := &Result{
		CheckoutRequestID: checkoutRequestID,
		Code:              reply.ResultCode,
		Desc:              reply.ResultDesc,
	}

	switch {
	case reply.ErrorCode == queryProcessingCode:
		result.Outcome = OutcomePending
		result.Code = reply.ErrorCode
		result.Desc = reply.ErrorMessage
	case reply.ResultCode == "0":
		result.Outcome = OutcomeSuccess
	case reply.ResultCode == "":
		// no verdict in the response at all; treat as still processing
		result.Outcome = OutcomePending
	default:
		result.Outcome = OutcomeFailure
	}

	return result, nil
}

// post sends an authenticated JSON request and decodes the reply. A 500
// carrying a transaction-processing error code is decoded, not failed,
// because the query API reports "still processing" that way.
func (c *Client) post(ctx context.Context, accessToken, path string, body, reply interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(b))
	if err != nil {
		return fmt.Errorf("http.NewRequestWithContext: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrUnavailable)
	}
	defer resp.Body.Close()

	rbody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("io.ReadAll: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.mu.Lock()
		c.accessToken = ""
		c.mu.Unlock()
		return fmt.Errorf("resp.StatusCode: 401: %w", ErrUnavailable)
	}

	if resp.StatusCode != http.StatusOK {
		if err := json.Unmarshal(rbody, reply); err == nil && bytes.Contains(rbody, []byte(queryProcessingCode)) {
			return nil
		}
		return fmt.Errorf("resp.StatusCode: %d, resp.Body: %s: %w", resp.StatusCode, rbody, ErrUnavailable)
	}

	if err := json.Unmarshal(rbody, reply); err != nil {
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	return nil
}
