package tripay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(baseURL string) *TripayService {
	s := NewTripayService(Options{
		APIKey:       "api-key",
		PrivateKey:   "private-key",
		MerchantCode: "T0001",
		AppBaseURL:   "https://api.example",
		FrontendURL:  "https://app.example",
	})
	s.BaseURL = baseURL
	return s
}

func sign(key string, body []byte) string {
	h := hmac.New(sha256.New, []byte(key))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func TestValidateSignature(t *testing.T) {
	s := newTestService("")
	body := []byte(`{"reference":"T1","status":"PAID"}`)

	assert.True(t, s.ValidateSignature(sign("private-key", body), body))
	assert.False(t, s.ValidateSignature(sign("other-key", body), body))
	assert.False(t, s.ValidateSignature(sign("private-key", body), append(body, ' ')))
	assert.False(t, s.ValidateSignature("", body))
}

func TestEnabled(t *testing.T) {
	assert.True(t, newTestService("").Enabled())
	assert.False(t, NewTripayService(Options{APIKey: "k"}).Enabled())
}

func TestCreateCheckout(t *testing.T) {
	var got TransactionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/create", r.URL.Path)
		assert.Equal(t, "Bearer api-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true,"data":{"reference":"T-REF","merchant_ref":"r1","checkout_url":"https://pay/T-REF","amount":50000}}`))
	}))
	defer srv.Close()

	s := newTestService(srv.URL)
	co, err := s.CreateCheckout(context.Background(), "r1", 50000, Customer{Name: "Asha", Email: "a@example.com"}, "QRIS")
	require.NoError(t, err)
	assert.Equal(t, "T-REF", co.Reference)
	assert.Equal(t, "https://pay/T-REF", co.CheckoutURL)

	assert.Equal(t, "QRIS", got.Method)
	assert.Equal(t, int64(50000), got.Amount)
	assert.Equal(t, "https://api.example/tripay/callback", got.Callback)
	assert.Equal(t, sign("private-key", []byte("T0001r150000")), got.Signature)
}

func TestCreateCheckoutGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"Invalid method"}`))
	}))
	defer srv.Close()

	_, err := newTestService(srv.URL).CreateCheckout(context.Background(), "r1", 100, Customer{}, "NOPE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid method")
}

func TestCustomerFee(t *testing.T) {
	var ch PaymentChannel
	require.NoError(t, json.Unmarshal([]byte(`{"code":"QRIS","total_fee":{"flat":750,"percent":"0.70"}}`), &ch))
	assert.Equal(t, int64(1450), ch.CustomerFee(100000))
}
