package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"societypay/backend"
	"societypay/errors"
	"societypay/gateway"
	"societypay/history"
	"societypay/logger"
	"societypay/models"
	"societypay/services/events"
)

// Message surfaced when the gateway captured a payment but the backend could
// not confirm it. This wording matters: it must never read like a plain
// payment failure, or users will pay twice.
const capturedButUnverifiedMessage = "payment was received by the gateway but could not be verified; do not pay again, please contact support"

// cancelledMessage is surfaced when the user dismisses the checkout.
const cancelledMessage = "Payment was cancelled by user"

// DefaultRefreshDelay is how long verification waits before triggering the
// caller's list refresh, giving backend settlement time to propagate.
const DefaultRefreshDelay = 2 * time.Second

// CheckoutSettings carries the externally supplied gateway configuration.
type CheckoutSettings struct {
	Key         string
	Currency    string
	CompanyName string
	ThemeColor  string
}

// RefreshFunc re-fetches the payable-items list after a verified payment.
type RefreshFunc func()

// attempt tracks one payment attempt for one payable item.
type attempt struct {
	id     string
	itemID string
	state  models.AttemptState
	order  *models.PaymentOrder
}

// Coordinator drives payable items through order creation, user-mediated
// payment capture and server-side verification. Exactly one attempt per
// payable-item id may be in flight; attempts on different items are
// independent. All guard state lives on the instance.
type Coordinator struct {
	backend  *backend.Client
	checkout gateway.Checkout
	settings CheckoutSettings

	publisher    *events.Publisher // optional, best-effort
	journal      history.Recorder  // optional, write-behind
	refresh      RefreshFunc       // optional
	refreshDelay time.Duration
	log          *logger.Logger

	mu       sync.Mutex
	attempts map[string]*attempt
}

// Option configures optional coordinator collaborators.
type Option func(*Coordinator)

// WithPublisher wires a lifecycle event publisher.
func WithPublisher(p *events.Publisher) Option {
	return func(c *Coordinator) { c.publisher = p }
}

// WithJournal wires a terminal-attempt recorder.
func WithJournal(r history.Recorder) Option {
	return func(c *Coordinator) { c.journal = r }
}

// WithRefresh wires the list refresh callback fired after verification.
func WithRefresh(fn RefreshFunc) Option {
	return func(c *Coordinator) { c.refresh = fn }
}

// WithRefreshDelay overrides the settlement delay before the refresh fires.
func WithRefreshDelay(d time.Duration) Option {
	return func(c *Coordinator) { c.refreshDelay = d }
}

// WithLogger replaces the coordinator's logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// NewCoordinator creates a coordinator. The checkout may be nil when the
// gateway library is absent from the environment; BeginGatewayFlow then fails
// fast instead of queueing.
func NewCoordinator(b *backend.Client, co gateway.Checkout, settings CheckoutSettings, opts ...Option) *Coordinator {
	c := &Coordinator{
		backend:      b,
		checkout:     co,
		settings:     settings,
		refreshDelay: DefaultRefreshDelay,
		log:          logger.NewDefault(),
		attempts:     make(map[string]*attempt),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current attempt state for a payable item, StateIdle when
// no attempt exists. Intended for UI rendering of spinners and messages.
func (c *Coordinator) State(itemID string) models.AttemptState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.attempts[itemID]; ok {
		return a.state
	}
	return models.StateIdle
}

// CreateOrder initiates a payment attempt for item: converts the price to
// paise, posts the order-creation request and normalizes the returned order
// id. A second call for the same item while an attempt is in flight fails
// with the Concurrent kind and makes no network call.
func (c *Coordinator) CreateOrder(ctx context.Context, item models.PayableItem, authToken string) (*models.PaymentOrder, error) {
	if authToken == "" {
		return nil, errors.E(errors.Unauthorized, "session expired, please log in again")
	}

	c.mu.Lock()
	if existing, ok := c.attempts[item.ID]; ok && existing.state.InFlight() {
		c.mu.Unlock()
		return nil, errors.E(errors.Concurrent,
			fmt.Sprintf("a payment for this item is already in progress (%s)", item.ID))
	}
	a := &attempt{id: uuid.NewString(), itemID: item.ID, state: models.StateCreatingOrder}
	c.attempts[item.ID] = a
	c.mu.Unlock()

	amount, err := ToMinorUnits(item.Price)
	if err != nil {
		c.finish(a, models.StateCreateFailed, errors.MessageOf(err), "")
		return nil, err
	}

	body, err := c.backend.CreateOrder(ctx, authToken, item, amount)
	if err != nil {
		c.log.Error("order creation failed - Item: %s, Error: %v", item.ID, err)
		c.finish(a, models.StateCreateFailed, errors.MessageOf(err), "")
		return nil, err
	}

	orderID, err := ExtractOrderID(body)
	if err != nil {
		c.log.Error("order id missing in create-order response - Item: %s, Body: %v", item.ID, body)
		c.finish(a, models.StateCreateFailed, errors.MessageOf(err), "")
		return nil, err
	}

	order := &models.PaymentOrder{
		OrderID:          orderID,
		PayableItemID:    item.ID,
		Kind:             item.Kind,
		AmountMinorUnits: amount,
		Currency:         c.settings.Currency,
		CreatedAt:        time.Now(),
	}

	c.mu.Lock()
	a.state = models.StateOrderCreated
	a.order = order
	c.mu.Unlock()

	c.publish("payment.initiated", a, map[string]interface{}{
		"event":    "payment.initiated",
		"item_id":  item.ID,
		"kind":     string(item.Kind),
		"order_id": orderID,
		"amount":   amount,
		"currency": order.Currency,
		"status":   string(models.StateOrderCreated),
		"ts":       time.Now().UTC().Format(time.RFC3339),
	})

	c.log.Info("order created - Item: %s, Order: %s, Amount: %d paise", item.ID, orderID, amount)
	return order, nil
}

// FlowResult is the terminal outcome of a gateway flow. Cancellation is a
// result, not an error; failures come back as typed errors.
type FlowResult struct {
	State        models.AttemptState
	Message      string
	Verification *models.VerificationResult
	Proof        *models.PaymentProof
}

// BeginGatewayFlow opens the checkout for an order created by CreateOrder and
// drives the attempt to a terminal state: verification on success,
// UserCancelled on dismissal, a typed error on gateway failure.
func (c *Coordinator) BeginGatewayFlow(ctx context.Context, order *models.PaymentOrder, payer gateway.PayerInfo, authToken string) (*FlowResult, error) {
	if c.checkout == nil {
		return nil, errors.E(errors.GatewayUnavailable, "payment service is unavailable, please try again later")
	}
	if err := gateway.ValidateKey(c.settings.Key); err != nil {
		return nil, err
	}
	if err := payer.Validate(); err != nil {
		return nil, err
	}

	a, err := c.liveAttempt(order)
	if err != nil {
		return nil, err
	}
	c.setState(a, models.StateAwaitingGateway)

	res, err := c.checkout.Open(ctx, gateway.Options{
		Key:              c.settings.Key,
		OrderID:          order.OrderID,
		AmountMinorUnits: order.AmountMinorUnits,
		Currency:         order.Currency,
		Name:             c.settings.CompanyName,
		Description:      fmt.Sprintf("Payment for %s", order.PayableItemID),
		Prefill:          payer,
		ThemeColor:       c.settings.ThemeColor,
	})
	if err != nil {
		c.finish(a, models.StateGatewayFailed, errors.MessageOf(err), "")
		return nil, errors.E(errors.Gateway, "payment could not be completed, please try again", err)
	}

	switch res.Outcome {
	case gateway.OutcomeDismissed:
		// Expected user action: releases the guard, surfaces a message,
		// reports no error.
		c.finish(a, models.StateUserCancelled, cancelledMessage, "")
		c.publish("payment.cancelled", a, map[string]interface{}{
			"event":    "payment.cancelled",
			"item_id":  a.itemID,
			"order_id": order.OrderID,
			"ts":       time.Now().UTC().Format(time.RFC3339),
		})
		return &FlowResult{State: models.StateUserCancelled, Message: cancelledMessage}, nil

	case gateway.OutcomeFailed:
		if gateway.IsAuthFailure(res.ErrorCode, res.ErrorDescription) {
			msg := "payment gateway authentication failed, please contact support"
			c.finish(a, models.StateGatewayFailed, msg, "")
			return nil, errors.E(errors.GatewayAuth, msg)
		}
		msg := res.ErrorDescription
		if msg == "" {
			msg = "payment failed at the gateway, please try again"
		}
		c.finish(a, models.StateGatewayFailed, msg, "")
		c.publish("payment.failed", a, map[string]interface{}{
			"event":    "payment.failed",
			"item_id":  a.itemID,
			"order_id": order.OrderID,
			"code":     res.ErrorCode,
			"reason":   msg,
			"ts":       time.Now().UTC().Format(time.RFC3339),
		})
		return nil, errors.E(errors.Gateway, msg)
	}

	vr, err := c.Verify(ctx, *res.Proof, order, authToken)
	if err != nil {
		return nil, err
	}
	return &FlowResult{State: models.StateVerified, Message: vr.Message, Verification: vr, Proof: res.Proof}, nil
}

// Verify forwards a gateway proof to the backend. Proofs from a superseded
// attempt (order id no longer current for the item) are rejected. Any failure
// here, regardless of HTTP status, is the capture-aware kind: the gateway
// already reported success, so the user must not be told the payment failed.
func (c *Coordinator) Verify(ctx context.Context, proof models.PaymentProof, order *models.PaymentOrder, authToken string) (*models.VerificationResult, error) {
	a, err := c.liveAttempt(order)
	if err != nil {
		return nil, err
	}
	c.setState(a, models.StateVerifying)

	vr, backendErr := c.backend.VerifyPayment(ctx, authToken, order, proof)
	if backendErr != nil || !vr.Verified {
		if backendErr != nil {
			c.log.Error("verification failed after capture - Order: %s, Payment: %s, Error: %v",
				order.OrderID, proof.GatewayPaymentID, backendErr)
		} else {
			c.log.Error("backend rejected captured payment - Order: %s, Payment: %s, Message: %s",
				order.OrderID, proof.GatewayPaymentID, vr.Message)
		}
		c.finish(a, models.StateVerificationFailed, capturedButUnverifiedMessage, proof.GatewayPaymentID)
		c.publish("payment.failed", a, map[string]interface{}{
			"event":      "payment.failed",
			"item_id":    a.itemID,
			"order_id":   order.OrderID,
			"payment_id": proof.GatewayPaymentID,
			"reason":     "verification failed after capture",
			"ts":         time.Now().UTC().Format(time.RFC3339),
		})
		return nil, errors.E(errors.VerificationAfterCapture, capturedButUnverifiedMessage, backendErr)
	}

	c.finish(a, models.StateVerified, vr.Message, proof.GatewayPaymentID)
	c.publish("payment.verified", a, map[string]interface{}{
		"event":      "payment.verified",
		"item_id":    a.itemID,
		"order_id":   order.OrderID,
		"payment_id": proof.GatewayPaymentID,
		"amount":     order.AmountMinorUnits,
		"status":     string(models.StateVerified),
		"ts":         time.Now().UTC().Format(time.RFC3339),
	})
	c.log.Info("payment verified - Item: %s, Order: %s, Payment: %s",
		a.itemID, order.OrderID, proof.GatewayPaymentID)

	if c.refresh != nil {
		// Settlement delay: refreshing immediately can still show the
		// pre-payment state on the backend.
		ScheduleDelayedRefresh(c.refresh, c.refreshDelay)
	}

	return vr, nil
}

// liveAttempt returns the current attempt matching the order, rejecting stale
// orders from a superseded attempt.
func (c *Coordinator) liveAttempt(order *models.PaymentOrder) (*attempt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.attempts[order.PayableItemID]
	if !ok || a.order == nil || a.order.OrderID != order.OrderID {
		return nil, errors.E(errors.Concurrent, "payment attempt is no longer current, please start again")
	}
	return a, nil
}

func (c *Coordinator) setState(a *attempt, s models.AttemptState) {
	c.mu.Lock()
	a.state = s
	c.mu.Unlock()
}

// finish moves an attempt to a terminal state, releasing the single-flight
// guard for its item, and journals the outcome when a recorder is wired.
func (c *Coordinator) finish(a *attempt, s models.AttemptState, message, paymentID string) {
	c.setState(a, s)

	if c.journal == nil {
		return
	}
	rec := history.AttemptRecord{
		AttemptID:  a.id,
		ItemID:     a.itemID,
		State:      string(s),
		Message:    message,
		PaymentID:  paymentID,
		RecordedAt: time.Now().UTC(),
	}
	if a.order != nil {
		rec.OrderID = a.order.OrderID
		rec.Kind = string(a.order.Kind)
		rec.AmountMinorUnits = a.order.AmountMinorUnits
	}
	if err := c.journal.Record(context.Background(), rec); err != nil {
		c.log.Warn("failed to journal payment attempt %s: %v", a.id, err)
	}
}

// publish emits a lifecycle event best-effort in the background.
func (c *Coordinator) publish(name string, a *attempt, evt map[string]interface{}) {
	if c.publisher == nil {
		return
	}
	go func() {
		if err := c.publisher.Publish(fmt.Sprintf("item-%s", a.itemID), evt); err != nil {
			c.log.Warn("failed to publish %s event: %v", name, err)
		}
	}()
}
