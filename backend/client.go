package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"societypay/errors"
	"societypay/logger"
	"societypay/models"
)

// Client talks to the platform's REST backend over HTTPS. It owns the error
// classification for every call: network failures, non-2xx statuses and
// unreadable bodies all come back as typed errors with user-presentable
// messages.
type Client struct {
	baseURL string
	httpc   *http.Client
	log     *logger.Logger
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		log:     logger.NewDefault(),
	}
}

// SetLogger replaces the client's logger.
func (c *Client) SetLogger(l *logger.Logger) {
	c.log = l
}

// CreateOrder issues the order-creation request for a payable item and
// returns the decoded 2xx body. The caller extracts the order id from it;
// the backend is known to wrap it in several different shapes.
func (c *Client) CreateOrder(ctx context.Context, authToken string, item models.PayableItem, amountMinorUnits int64) (map[string]interface{}, error) {
	var path string
	body := map[string]interface{}{"amount": amountMinorUnits}

	switch item.Kind {
	case models.KindCourseEnrollment:
		path = "/courses/create-order"
		body["courseId"] = item.ID
	case models.KindSocietyPaymentRequest:
		path = "/payment-requests/create-order"
		body["requestId"] = item.ID
	default:
		return nil, errors.E(errors.Invalid, fmt.Sprintf("unknown payable kind: %s", item.Kind))
	}

	raw, err := c.post(ctx, authToken, path, body)
	if err != nil {
		return nil, err
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		c.log.Error("create-order returned undecodable body: %s", string(raw))
		return nil, errors.E(errors.Malformed, "unexpected response from server", err)
	}
	return decoded, nil
}

// VerifyPayment forwards the gateway proof to the backend verification
// endpoint for the order's payable item.
func (c *Client) VerifyPayment(ctx context.Context, authToken string, order *models.PaymentOrder, proof models.PaymentProof) (*models.VerificationResult, error) {
	var path string
	body := map[string]interface{}{
		"paymentId": proof.GatewayPaymentID,
		"orderId":   proof.GatewayOrderID,
		"signature": proof.GatewaySignature,
	}

	switch order.Kind {
	case models.KindCourseEnrollment:
		path = "/courses/verify-payment"
		body["courseId"] = order.PayableItemID
	default:
		path = "/payment-requests/verify-razorpay-payment"
		body["requestId"] = order.PayableItemID
	}

	raw, err := c.post(ctx, authToken, path, body)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.log.Error("verify-payment returned undecodable body: %s", string(raw))
		return nil, errors.E(errors.Malformed, "unexpected response from server", err)
	}

	return &models.VerificationResult{Verified: resp.Success, Message: resp.Message}, nil
}

// PendingRequests fetches the member's pending society payment requests. The
// backend returns either a {data: [...]} envelope or a raw array; both are
// tolerated.
func (c *Client) PendingRequests(ctx context.Context, authToken string) ([]map[string]interface{}, error) {
	return c.getList(ctx, authToken, "/payment-requests/member/pending")
}

// MyLoans fetches the member's loans, tolerating both envelope shapes.
func (c *Client) MyLoans(ctx context.Context, authToken string) ([]map[string]interface{}, error) {
	return c.getList(ctx, authToken, "/loans/my-loans")
}

func (c *Client) getList(ctx context.Context, authToken, path string) ([]map[string]interface{}, error) {
	if authToken == "" {
		return nil, errors.E(errors.Unauthorized, "session expired, please log in again")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, errors.E(errors.Internal, "error building request", err)
	}
	req.Header.Set("Authorization", "Bearer "+authToken)

	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return decodeList(raw)
}

// decodeList accepts either a bare JSON array or a {data: [...]} envelope.
func decodeList(raw []byte) ([]map[string]interface{}, error) {
	var list []map[string]interface{}
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var envelope struct {
		Data []map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Data != nil {
		return envelope.Data, nil
	}

	return nil, errors.E(errors.Malformed, "unexpected response from server")
}

func (c *Client) post(ctx context.Context, authToken, path string, body map[string]interface{}) ([]byte, error) {
	if authToken == "" {
		return nil, errors.E(errors.Unauthorized, "session expired, please log in again")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.E(errors.Internal, "error encoding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.E(errors.Internal, "error building request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+authToken)

	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.E(errors.Network, "network error, unable to connect", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.E(errors.Network, "network error, unable to connect", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classifyStatus(resp.StatusCode, raw)
	}
	return raw, nil
}

// classifyStatus maps a non-2xx response to a typed error. The message comes
// from the body's message, error, details or reason fields, in that priority
// order, with an HTTP fallback.
func classifyStatus(status int, body []byte) error {
	msg := extractMessage(body)
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status))
	}

	switch {
	case status == http.StatusUnauthorized:
		return errors.E(errors.Unauthorized, msg)
	case status == http.StatusForbidden:
		return errors.E(errors.Forbidden, msg)
	case status == http.StatusNotFound:
		return errors.E(errors.NotFound, msg)
	case status >= 500:
		return errors.E(errors.Internal, msg)
	default:
		return errors.E(errors.Invalid, msg)
	}
}

// messageFields are tried in priority order when extracting a human-readable
// message from an error body.
var messageFields = []string{"message", "error", "details", "reason"}

func extractMessage(body []byte) string {
	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return ""
	}
	for _, field := range messageFields {
		if v, ok := decoded[field]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
