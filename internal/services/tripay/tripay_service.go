package tripay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"
)

type TripayService struct {
	Client       *http.Client
	APIKey       string
	PrivateKey   string
	MerchantCode string
	BaseURL      string
	CallbackURL  string
	ReturnURL    string
}

type Options struct {
	APIKey       string
	PrivateKey   string
	MerchantCode string
	Production   bool
	AppBaseURL   string
	FrontendURL  string
}

func NewTripayService(o Options) *TripayService {
	baseURL := "https://tripay.co.id/api-sandbox"
	if o.Production {
		baseURL = "https://tripay.co.id/api"
	}

	return &TripayService{
		Client:       &http.Client{Timeout: 15 * time.Second},
		APIKey:       o.APIKey,
		PrivateKey:   o.PrivateKey,
		MerchantCode: o.MerchantCode,
		BaseURL:      baseURL,
		CallbackURL:  o.AppBaseURL + "/tripay/callback",
		ReturnURL:    o.FrontendURL + "/wallet",
	}
}

// Enabled reports whether merchant credentials are configured.
func (s *TripayService) Enabled() bool {
	return s.APIKey != "" && s.PrivateKey != "" && s.MerchantCode != ""
}

type OrderItem struct {
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

type TransactionRequest struct {
	Method        string      `json:"method"`
	MerchantRef   string      `json:"merchant_ref"`
	Amount        int64       `json:"amount"`
	CustomerName  string      `json:"customer_name"`
	CustomerEmail string      `json:"customer_email"`
	CustomerPhone string      `json:"customer_phone"`
	OrderItems    []OrderItem `json:"order_items"`
	Callback      string      `json:"callback_url"`
	ReturnUrl     string      `json:"return_url"`
	ExpiredTime   int64       `json:"expired_time"`
	Signature     string      `json:"signature"`
}

type TransactionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		Reference   string `json:"reference"`
		MerchantRef string `json:"merchant_ref"`
		CheckoutURL string `json:"checkout_url"`
		Amount      int64  `json:"amount"`
	} `json:"data"`
}

// Checkout is what a recharge needs to remember about a created payment.
type Checkout struct {
	Reference   string
	CheckoutURL string
	Amount      int64
}

type Customer struct {
	Name  string
	Email string
	Phone string
}

// CreateCheckout opens a closed payment for a wallet top-up. merchantRef is the
// recharge id, echoed back in the callback.
func (s *TripayService) CreateCheckout(ctx context.Context, merchantRef string, amount int64, cust Customer, method string) (*Checkout, error) {
	// HMAC-SHA256( merchant_code + merchant_ref + amount, private_key )
	signature := s.generateSignature(fmt.Sprintf("%s%s%d", s.MerchantCode, merchantRef, amount))

	reqBody := TransactionRequest{
		Method:        method,
		MerchantRef:   merchantRef,
		Amount:        amount,
		CustomerName:  cust.Name,
		CustomerEmail: cust.Email,
		CustomerPhone: cust.Phone,
		OrderItems: []OrderItem{
			{Name: "Wallet recharge", Price: amount, Quantity: 1},
		},
		Callback:    s.CallbackURL,
		ReturnUrl:   s.ReturnURL,
		ExpiredTime: time.Now().Add(24 * time.Hour).Unix(),
		Signature:   signature,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/transaction/create", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	var apiResp TransactionResponse
	if err := s.do(req, &apiResp); err != nil {
		return nil, err
	}
	if !apiResp.Success {
		return nil, fmt.Errorf("tripay error: %s", apiResp.Message)
	}

	return &Checkout{
		Reference:   apiResp.Data.Reference,
		CheckoutURL: apiResp.Data.CheckoutURL,
		Amount:      apiResp.Data.Amount,
	}, nil
}

type PaymentChannel struct {
	Group string `json:"group"`
	Code  string `json:"code"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Fee   struct {
		Flat    interface{} `json:"flat"`
		Percent interface{} `json:"percent"`
	} `json:"total_fee"`
	IconURL string `json:"icon_url"`
}

// CustomerFee is the fee charged on top of amount for this channel.
func (ch PaymentChannel) CustomerFee(amount int64) int64 {
	toFloat := func(v interface{}) float64 {
		switch val := v.(type) {
		case float64:
			return val
		case int:
			return float64(val)
		case string:
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				return f
			}
		}
		return 0
	}
	fee := toFloat(ch.Fee.Flat) + float64(amount)*toFloat(ch.Fee.Percent)/100
	return int64(math.Ceil(fee))
}

type ChannelResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Data    []PaymentChannel `json:"data"`
}

func (s *TripayService) GetPaymentChannels(ctx context.Context) ([]PaymentChannel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/merchant/payment-channel", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	var apiResp ChannelResponse
	if err := s.do(req, &apiResp); err != nil {
		return nil, err
	}
	if !apiResp.Success {
		return nil, fmt.Errorf("tripay error: %s", apiResp.Message)
	}
	return apiResp.Data, nil
}

func (s *TripayService) do(req *http.Request, out any) error {
	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}

func (s *TripayService) generateSignature(data string) string {
	h := hmac.New(sha256.New, []byte(s.PrivateKey))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// ValidateSignature checks a callback: HMAC-SHA256(body, private_key).
func (s *TripayService) ValidateSignature(incomingSig string, body []byte) bool {
	h := hmac.New(sha256.New, []byte(s.PrivateKey))
	h.Write(body)
	calculated := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(calculated), []byte(incomingSig))
}

// Callback payload from Tripay.
type CallbackPayload struct {
	Reference         string `json:"reference"`
	MerchantRef       string `json:"merchant_ref"`
	PaymentMethod     string `json:"payment_method"`
	PaymentMethodCode string `json:"payment_method_code"`
	TotalAmount       int64  `json:"total_amount"`
	FeeMerchant       int64  `json:"fee_merchant"`
	FeeCustomer       int64  `json:"fee_customer"`
	TotalFee          int64  `json:"total_fee"`
	AmountReceived    int64  `json:"amount_received"`
	IsClosedPayment   int    `json:"is_closed_payment"`
	Status            string `json:"status"` // PAID, EXPIRED, FAILED, REFUND
	PaidAt            int64  `json:"paid_at"`
	Note              string `json:"note"`
}
