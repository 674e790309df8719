package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"booking-service/internal/util"

	"go.uber.org/zap"
)

const (
	sslcommerzInitPath     = "/gwprocess/v4/api.php"
	sslcommerzValidatePath = "/validator/api/validationserverAPI.php"
)

// SSLCommerzConfig configures the hosted-page gateway client
type SSLCommerzConfig struct {
	BaseURL       string
	StoreID       string
	StorePassword string
	Timeout       time.Duration
	Retry         RetryConfig
}

// SSLCommerzClient opens hosted payment pages on an SSLCommerz-style gateway.
// Outcomes arrive later as browser redirects carrying tran_id and amount; a
// success redirect also carries a val_id that must be checked with the gateway.
type SSLCommerzClient struct {
	baseURL       string
	storeID       string
	storePassword string
	httpClient    *http.Client
	retry         RetryConfig
	logger        *zap.Logger
}

type sslcommerzInitResponse struct {
	Status         string `json:"status"`
	FailedReason   string `json:"failedreason"`
	SessionKey     string `json:"sessionkey"`
	GatewayPageURL string `json:"GatewayPageURL"`
}

type sslcommerzValidationResponse struct {
	Status   string `json:"status"`
	TranID   string `json:"tran_id"`
	ValID    string `json:"val_id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func NewSSLCommerzClient(cfg SSLCommerzConfig) *SSLCommerzClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &SSLCommerzClient{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		storeID:       cfg.StoreID,
		storePassword: cfg.StorePassword,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		retry:  cfg.Retry,
		logger: util.GetLogger(),
	}
}

// CreateSession registers the transaction with the gateway and returns the
// hosted page the payer should be redirected to
func (c *SSLCommerzClient) CreateSession(ctx context.Context, req *SessionRequest) (*Session, error) {
	form := url.Values{
		"store_id":         {c.storeID},
		"store_passwd":     {c.storePassword},
		"total_amount":     {FormatAmount(req.Amount)},
		"currency":         {strings.ToUpper(req.Currency)},
		"tran_id":          {req.TransactionID},
		"success_url":      {req.SuccessURL},
		"fail_url":         {req.FailURL},
		"cancel_url":       {req.CancelURL},
		"cus_name":         {req.Customer.Name},
		"cus_email":        {req.Customer.Email},
		"cus_phone":        {req.Customer.Phone},
		"cus_add1":         {req.Customer.Address},
		"cus_city":         {req.Customer.City},
		"cus_country":      {req.Customer.Country},
		"shipping_method":  {"NO"},
		"product_name":     {req.ProductName},
		"product_category": {"Event"},
		"product_profile":  {"general"},
		"value_a":          {req.BookingID},
	}

	start := time.Now()
	defer func() {
		util.ProviderRequestLatency.WithLabelValues("sslcommerz", "create_session").Observe(time.Since(start).Seconds())
	}()

	var body []byte
	err := retry(ctx, c.retry, func() error {
		var err error
		body, err = c.post(ctx, sslcommerzInitPath, form)
		if err != nil && IsTransient(err) {
			c.logger.Warn("Transient gateway error, retrying",
				zap.String("transaction_id", req.TransactionID),
				zap.Error(err))
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sslcommerz init: %w", err)
	}

	var result sslcommerzInitResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}

	if !strings.EqualFold(result.Status, "SUCCESS") || result.GatewayPageURL == "" {
		return nil, fmt.Errorf("gateway rejected session: %s", result.FailedReason)
	}

	return &Session{
		Handle:      result.SessionKey,
		RedirectURL: result.GatewayPageURL,
		Raw:         body,
	}, nil
}

// ValidatePayment asks the gateway whether val_id belongs to a settled
// transaction. Only VALID and VALIDATED map to StatePaid.
func (c *SSLCommerzClient) ValidatePayment(ctx context.Context, valID string) (*Result, error) {
	query := url.Values{
		"val_id":       {valID},
		"store_id":     {c.storeID},
		"store_passwd": {c.storePassword},
		"format":       {"json"},
	}

	start := time.Now()
	defer func() {
		util.ProviderRequestLatency.WithLabelValues("sslcommerz", "validate").Observe(time.Since(start).Seconds())
	}()

	var body []byte
	err := retry(ctx, c.retry, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+sslcommerzValidatePath+"?"+query.Encode(), nil)
		if err != nil {
			return err
		}
		body, err = c.do(httpReq)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sslcommerz validate: %w", err)
	}

	var v sslcommerzValidationResponse
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("failed to decode validation response: %w", err)
	}

	res := &Result{
		TransactionID: v.TranID,
		Handle:        v.ValID,
		State:         StateFailed,
		Raw:           body,
	}
	switch strings.ToUpper(v.Status) {
	case "VALID", "VALIDATED":
		res.State = StatePaid
	}
	if v.Amount != "" {
		amount, err := ParseAmount(v.Amount)
		if err != nil {
			return nil, fmt.Errorf("invalid validation amount %q: %w", v.Amount, err)
		}
		res.Amount = amount
	}
	return res, nil
}

func (c *SSLCommerzClient) post(ctx context.Context, path string, form url.Values) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(httpReq)
}

func (c *SSLCommerzClient) do(httpReq *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, Transient(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Transient(err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, Transient(fmt.Errorf("gateway returned status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return body, nil
}
