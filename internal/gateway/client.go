package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bookbay/bms/internal/config"
	"github.com/bookbay/bms/internal/errs"
	"github.com/bookbay/bms/internal/logger"
)

const serviceName = "payment-gateway"

// Client 支付网关客户端。所有资金操作以调用方提供的引用做幂等键，
// 超时不代表远端失败，重试安全
type Client struct {
	baseURL     string
	secret      string
	httpClient  *http.Client
	maxAttempts int
	backoff     time.Duration
}

// NewClient 创建网关客户端
func NewClient(cfg config.PaymentConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}

	return &Client{
		baseURL:     cfg.BaseURL,
		secret:      cfg.Secret,
		httpClient:  &http.Client{Timeout: timeout},
		maxAttempts: attempts,
		backoff:     500 * time.Millisecond,
	}
}

// VerifyResult 支付核验结果
type VerifyResult struct {
	Reference string            `json:"reference"`
	Status    string            `json:"status"` // success, failed, abandoned
	Amount    int64             `json:"amount"` // 最小货币单位
	Currency  string            `json:"currency"`
	Metadata  map[string]string `json:"metadata"`
}

// RecipientRequest 收款人注册请求
type RecipientRequest struct {
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	Currency      string `json:"currency"`
}

// apiResponse 网关响应外层
type apiResponse struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

// VerifyPayment 核验支付。只有网关明确返回结果才算确认
func (c *Client) VerifyPayment(ctx context.Context, reference string) (*VerifyResult, error) {
	resp, err := c.do(ctx, http.MethodGet, "/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, err
	}

	var result VerifyResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return nil, errs.External(serviceName, "verify", fmt.Errorf("malformed response: %w", err))
	}
	return &result, nil
}

// CreateTransferRecipient 注册转账收款人。网关报告收款人已存在视为成功，
// 返回已有的编码
func (c *Client) CreateTransferRecipient(ctx context.Context, req RecipientRequest) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/transferrecipient", req)
	if err != nil {
		// 收款人已存在不是错误，网关会在拒绝响应里带回已有编码
		if resp != nil && resp.Code == "recipient_exists" {
			var data struct {
				RecipientCode string `json:"recipient_code"`
			}
			if jsonErr := json.Unmarshal(resp.Data, &data); jsonErr == nil && data.RecipientCode != "" {
				logger.Info("Transfer recipient already registered, reusing code %s", data.RecipientCode)
				return data.RecipientCode, nil
			}
		}
		return "", err
	}

	var data struct {
		RecipientCode string `json:"recipient_code"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return "", errs.External(serviceName, "create recipient", fmt.Errorf("malformed response: %w", err))
	}
	if data.RecipientCode == "" {
		return "", errs.External(serviceName, "create recipient", fmt.Errorf("empty recipient code"))
	}
	return data.RecipientCode, nil
}

// InitiateTransfer 发起转账，reference为幂等引用
func (c *Client) InitiateTransfer(ctx context.Context, recipientCode string, amount int64, reference string) (string, error) {
	body := map[string]interface{}{
		"recipient": recipientCode,
		"amount":    amount,
		"reference": reference,
	}

	resp, err := c.do(ctx, http.MethodPost, "/transfer", body)
	if err != nil {
		return "", err
	}

	var data struct {
		TransferId string `json:"transfer_id"`
		Status     string `json:"status"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return "", errs.External(serviceName, "transfer", fmt.Errorf("malformed response: %w", err))
	}
	if data.TransferId == "" {
		return "", errs.External(serviceName, "transfer", fmt.Errorf("empty transfer id"))
	}
	return data.TransferId, nil
}

// Refund 按支付引用发起全额退款
func (c *Client) Refund(ctx context.Context, reference string) error {
	body := map[string]interface{}{
		"transaction": reference,
	}

	_, err := c.do(ctx, http.MethodPost, "/refund", body)
	return err
}

// do 执行请求。网络错误和5xx按有限次数退避重试；
// 4xx是确定性拒绝，不重试，但把已解析的响应一并返回给调用方判断
func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*apiResponse, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, errs.External(serviceName, method+" "+path, ctx.Err())
			case <-time.After(c.backoff * time.Duration(attempt-1)):
			}
			logger.Warn("Retrying gateway call %s %s (attempt %d/%d)", method, path, attempt, c.maxAttempts)
		}

		resp, retryable, err := c.doOnce(ctx, method, path, payload)
		if err == nil {
			return resp, nil
		}
		if !retryable {
			return resp, err
		}
		lastErr = err
	}

	return nil, lastErr
}

// doOnce 单次请求，返回是否可重试
func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte) (*apiResponse, bool, error) {
	op := method + " " + path

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, false, errs.External(serviceName, op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, errs.External(serviceName, op, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, true, errs.External(serviceName, op, err)
	}

	if httpResp.StatusCode >= 500 {
		return nil, true, errs.External(serviceName, op, fmt.Errorf("gateway returned %d", httpResp.StatusCode))
	}

	var resp apiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, false, errs.External(serviceName, op, fmt.Errorf("malformed response: %w", err))
	}

	if httpResp.StatusCode >= 400 || !resp.Status {
		return &resp, false, errs.External(serviceName, op, fmt.Errorf("gateway rejected request: %s", resp.Message))
	}

	return &resp, false, nil
}
