package models

import "time"

// PayableKind identifies what a payable item settles.
type PayableKind string

// Payable kind constants
const (
	KindCourseEnrollment      PayableKind = "COURSE_ENROLLMENT"
	KindSocietyPaymentRequest PayableKind = "SOCIETY_PAYMENT_REQUEST"
)

// PayableItem represents something a member or student can pay for online:
// a course enrollment or a pending society payment request. Items are created
// server-side and are immutable here except for their payment status.
type PayableItem struct {
	ID          string      `json:"id"`
	Kind        PayableKind `json:"kind"`
	Price       float64     `json:"price"` // decimal INR, converted to paise at order creation
	Description string      `json:"description"`
}

// PaymentOrder is one initiated payment attempt tied to exactly one payable
// item. The order id is opaque and gateway-issued.
type PaymentOrder struct {
	OrderID          string      `json:"order_id"`
	PayableItemID    string      `json:"payable_item_id"`
	Kind             PayableKind `json:"kind"`
	AmountMinorUnits int64       `json:"amount_minor_units"`
	Currency         string      `json:"currency"`
	CreatedAt        time.Time   `json:"created_at"`
}

// PaymentProof carries the signed identifiers returned by the gateway after a
// successful charge. It exists only long enough to be forwarded to the
// backend verification endpoint.
type PaymentProof struct {
	GatewayPaymentID string `json:"payment_id"`
	GatewayOrderID   string `json:"order_id"`
	GatewaySignature string `json:"signature"`
}

// VerificationResult is the backend's answer to a verification request.
type VerificationResult struct {
	Verified bool   `json:"verified"`
	Message  string `json:"message"`
}

// AttemptState tracks one payment attempt through its lifecycle.
type AttemptState string

// Attempt state constants
const (
	StateIdle               AttemptState = "IDLE"
	StateCreatingOrder      AttemptState = "CREATING_ORDER"
	StateOrderCreated       AttemptState = "ORDER_CREATED"
	StateAwaitingGateway    AttemptState = "AWAITING_GATEWAY"
	StateVerifying          AttemptState = "VERIFYING"
	StateVerified           AttemptState = "VERIFIED"
	StateCreateFailed       AttemptState = "CREATE_FAILED"
	StateGatewayFailed      AttemptState = "GATEWAY_FAILED"
	StateVerificationFailed AttemptState = "VERIFICATION_FAILED"
	StateUserCancelled      AttemptState = "USER_CANCELLED"
)

// InFlight reports whether the state blocks a new attempt for the same item.
func (s AttemptState) InFlight() bool {
	switch s {
	case StateCreatingOrder, StateAwaitingGateway, StateVerifying:
		return true
	}
	return false
}

// Terminal reports whether the attempt has finished, successfully or not.
func (s AttemptState) Terminal() bool {
	switch s {
	case StateVerified, StateCreateFailed, StateGatewayFailed, StateVerificationFailed, StateUserCancelled:
		return true
	}
	return false
}
