package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	razorpay "github.com/razorpay/razorpay-go"

	"societypay/logger"
	"societypay/models"
)

// RazorpayCheckout drives a headless checkout session against the Razorpay
// API. The user completes payment out of band (hosted page or payment link);
// Open polls the order until it is paid, then assembles the proof the same
// way the browser widget would. Cancelling the context is the dismissal path.
type RazorpayCheckout struct {
	client       *razorpay.Client
	keySecret    string
	pollInterval time.Duration
	log          *logger.Logger
}

// NewRazorpayCheckout creates a checkout backed by the Razorpay SDK.
func NewRazorpayCheckout(keyID, keySecret string) *RazorpayCheckout {
	return &RazorpayCheckout{
		client:       razorpay.NewClient(keyID, keySecret),
		keySecret:    keySecret,
		pollInterval: 5 * time.Second,
		log:          logger.NewDefault(),
	}
}

// Open blocks until the order is paid, the gateway reports a failure, or the
// context is cancelled (treated as user dismissal).
func (r *RazorpayCheckout) Open(ctx context.Context, opts Options) (*Result, error) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		order, err := r.client.Order.Fetch(opts.OrderID, nil, nil)
		if err != nil {
			code, desc := classifyGatewayError(err)
			r.log.Error("razorpay order fetch failed - OrderID: %s, Error: %v", opts.OrderID, err)
			return &Result{Outcome: OutcomeFailed, ErrorCode: code, ErrorDescription: desc}, nil
		}

		if status, _ := order["status"].(string); status == "paid" {
			return r.buildProof(opts.OrderID)
		}

		select {
		case <-ctx.Done():
			return &Result{Outcome: OutcomeDismissed}, nil
		case <-ticker.C:
		}
	}
}

// buildProof fetches the captured payment for a paid order and computes the
// order|payment HMAC signature with the key secret, matching what the widget
// hands back on success.
func (r *RazorpayCheckout) buildProof(orderID string) (*Result, error) {
	payments, err := r.client.Order.Payments(orderID, nil, nil)
	if err != nil {
		code, desc := classifyGatewayError(err)
		return &Result{Outcome: OutcomeFailed, ErrorCode: code, ErrorDescription: desc}, nil
	}

	paymentID := capturedPaymentID(payments)
	if paymentID == "" {
		return &Result{
			Outcome:          OutcomeFailed,
			ErrorDescription: "order is paid but no captured payment was found",
		}, nil
	}

	h := hmac.New(sha256.New, []byte(r.keySecret))
	h.Write([]byte(orderID + "|" + paymentID))
	signature := hex.EncodeToString(h.Sum(nil))

	return &Result{
		Outcome: OutcomeSuccess,
		Proof: &models.PaymentProof{
			GatewayPaymentID: paymentID,
			GatewayOrderID:   orderID,
			GatewaySignature: signature,
		},
	}, nil
}

// capturedPaymentID picks the first captured payment from an order payment
// collection.
func capturedPaymentID(payments map[string]interface{}) string {
	items, _ := payments["items"].([]interface{})
	for _, it := range items {
		payment, ok := it.(map[string]interface{})
		if !ok {
			continue
		}
		if status, _ := payment["status"].(string); status != "captured" {
			continue
		}
		if id, _ := payment["id"].(string); id != "" {
			return id
		}
	}
	return ""
}

// classifyGatewayError maps an SDK error to the widget's {code, description}
// failure payload so callers can apply one detection path for auth failures.
func classifyGatewayError(err error) (code, description string) {
	msg := err.Error()
	if strings.Contains(strings.ToLower(msg), "authentication") {
		return "AUTHENTICATION_ERROR", msg
	}
	return "GATEWAY_ERROR", msg
}
