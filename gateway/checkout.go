package gateway

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"

	"societypay/errors"
	"societypay/models"
)

// PayerInfo prefills the checkout form.
type PayerInfo struct {
	Name    string `validate:"required,max=100"`
	Email   string `validate:"required,email"`
	Contact string `validate:"required,e164"`
}

var validate = validator.New()

// Validate checks the prefill fields before they reach the gateway.
func (p PayerInfo) Validate() error {
	if err := validate.Struct(p); err != nil {
		return errors.E(errors.Invalid, "invalid payer details", err)
	}
	return nil
}

// Outcome is the terminal result of one checkout session.
type Outcome int

const (
	// OutcomeSuccess means the gateway captured a payment and produced a proof.
	OutcomeSuccess Outcome = iota
	// OutcomeDismissed means the user closed the checkout without paying.
	OutcomeDismissed
	// OutcomeFailed means the gateway reported a payment failure.
	OutcomeFailed
)

// Options configures one checkout session.
type Options struct {
	Key              string
	OrderID          string
	AmountMinorUnits int64
	Currency         string
	Name             string // company display name
	Description      string
	Prefill          PayerInfo
	ThemeColor       string
}

// Result collapses the checkout's success, failure and dismissal callbacks
// into a single value so callers can drive verification sequentially.
type Result struct {
	Outcome          Outcome
	Proof            *models.PaymentProof
	ErrorCode        string
	ErrorDescription string
}

// Checkout opens an external payment surface for an order and blocks until
// the session ends. Implementations map user dismissal to OutcomeDismissed,
// typically via context cancellation.
type Checkout interface {
	Open(ctx context.Context, opts Options) (*Result, error)
}

const keyPrefix = "rzp_"

// ValidateKey rejects missing, wrongly prefixed or placeholder merchant keys
// before the checkout opens. Opening the widget with a bad key produces an
// opaque gateway-side auth failure, so this fails fast instead.
func ValidateKey(key string) error {
	if key == "" {
		return errors.E(errors.Configuration, "payment gateway key is not configured, please contact support")
	}
	if !strings.HasPrefix(key, keyPrefix) {
		return errors.E(errors.Configuration, "payment gateway key is invalid, please contact support")
	}
	lower := strings.ToLower(key)
	if strings.Contains(lower, "placeholder") || strings.Contains(lower, "your_key") || strings.Contains(lower, "xxxx") {
		return errors.E(errors.Configuration, "payment gateway key is a placeholder, please contact support")
	}
	return nil
}

// IsAuthFailure reports whether a gateway error payload carries the known
// merchant-misconfiguration signature rather than a user payment problem.
func IsAuthFailure(code, description string) bool {
	if code == "AUTHENTICATION_ERROR" {
		return true
	}
	desc := strings.ToLower(description)
	return strings.Contains(desc, "authentication failed") || strings.Contains(desc, "key_id")
}
