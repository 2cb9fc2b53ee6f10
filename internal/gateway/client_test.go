package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/khillon-makwana/CampusEventHub-sub000/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(config.GatewayConfig{
		BaseURL:        server.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		Passkey:        "passkey",
		CallbackURL:    "http://localhost/callback",
	})
}

func tokenHandler(mux *http.ServeMux) {
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "test-token",
			"expires_in":   "3599",
		})
	})
}

func TestSTKPushSuccess(t *testing.T) {
	mux := http.NewServeMux()
	tokenHandler(mux)
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "174379", body["BusinessShortCode"])
		assert.Equal(t, "CustomerPayBillOnline", body["TransactionType"])
		assert.Equal(t, float64(1000), body["Amount"])
		assert.NotEmpty(t, body["Password"])

		json.NewEncoder(w).Encode(map[string]string{
			"MerchantRequestID":   "29115-34620561-1",
			"CheckoutRequestID":   "ws_CO_191220191020363925",
			"ResponseCode":        "0",
			"ResponseDescription": "Success. Request accepted for processing",
		})
	})

	client := testClient(t, mux)
	resp, err := client.STKPush(context.Background(), PushRequest{
		Amount:      1000,
		Phone:       "254708374149",
		Reference:   "EVT-1-PAY-1",
		Description: "Event ticket purchase",
	})
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_191220191020363925", resp.CheckoutRequestID)
}

func TestSTKPushRejected(t *testing.T) {
	mux := http.NewServeMux()
	tokenHandler(mux)
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"ResponseCode":        "1",
			"ResponseDescription": "Invalid request",
		})
	})

	client := testClient(t, mux)
	_, err := client.STKPush(context.Background(), PushRequest{Amount: 100, Phone: "254700000000"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSTKPushAuthFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	client := testClient(t, mux)
	_, err := client.STKPush(context.Background(), PushRequest{Amount: 100, Phone: "254700000000"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestQueryStatusSuccess(t *testing.T) {
	mux := http.NewServeMux()
	tokenHandler(mux)
	mux.HandleFunc("/mpesa/stkpushquery/v1/query", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"ResponseCode": "0",
			"ResultCode":   "0",
			"ResultDesc":   "The service request is processed successfully.",
		})
	})

	client := testClient(t, mux)
	result, err := client.QueryStatus(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, "ws_CO_1", result.CheckoutRequestID)
}

func TestQueryStatusFailureCode(t *testing.T) {
	mux := http.NewServeMux()
	tokenHandler(mux)
	mux.HandleFunc("/mpesa/stkpushquery/v1/query", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"ResponseCode": "0",
			"ResultCode":   "1032",
			"ResultDesc":   "Request cancelled by user",
		})
	})

	client := testClient(t, mux)
	result, err := client.QueryStatus(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailure, result.Outcome)
	assert.Equal(t, "1032", result.Code)
}

func TestQueryStatusStillProcessing(t *testing.T) {
	mux := http.NewServeMux()
	tokenHandler(mux)
	mux.HandleFunc("/mpesa/stkpushquery/v1/query", func(w http.ResponseWriter, r *http.Request) {
		// the query API reports an in-flight transaction as a 500 with a
		// dedicated error code
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{
			"requestId":    "1234-5678",
			"errorCode":    "500.001.1001",
			"errorMessage": "The transaction is being processed",
		})
	})

	client := testClient(t, mux)
	result, err := client.QueryStatus(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, result.Outcome)
}

func TestQueryStatusNetworkError(t *testing.T) {
	mux := http.NewServeMux()
	tokenHandler(mux)

	server := httptest.NewServer(mux)
	client := NewClient(config.GatewayConfig{
		BaseURL:     server.URL,
		ConsumerKey: "key", ConsumerSecret: "secret",
		ShortCode: "174379", Passkey: "passkey",
	})
	// fetch a token first so the query itself is what fails
	_, err := client.token(context.Background())
	require.NoError(t, err)
	server.Close()

	_, err = client.QueryStatus(context.Background(), "ws_CO_1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestTokenCached(t *testing.T) {
	var tokenCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok", "expires_in": "3599"})
	})
	mux.HandleFunc("/mpesa/stkpushquery/v1/query", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"ResultCode": "0"})
	})

	client := testClient(t, mux)
	for i := 0; i < 3; i++ {
		_, err := client.QueryStatus(context.Background(), "ws_CO_1")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, tokenCalls)
}
