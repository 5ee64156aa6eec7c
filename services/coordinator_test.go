package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"societypay/backend"
	"societypay/errors"
	"societypay/gateway"
	"societypay/history"
	"societypay/models"
)

var testPayer = gateway.PayerInfo{
	Name:    "Asha Verma",
	Email:   "asha@example.com",
	Contact: "+919876543210",
}

var testSettings = CheckoutSettings{
	Key:         "rzp_test_4kF92bQ7ml3",
	Currency:    "INR",
	CompanyName: "SocietyPay",
	ThemeColor:  "#3399cc",
}

// checkoutFunc adapts a function to the gateway.Checkout interface.
type checkoutFunc func(ctx context.Context, opts gateway.Options) (*gateway.Result, error)

func (f checkoutFunc) Open(ctx context.Context, opts gateway.Options) (*gateway.Result, error) {
	return f(ctx, opts)
}

// testBackend stands up an httptest server for the create-order and verify
// endpoints and counts calls to each.
type testBackend struct {
	server       *httptest.Server
	createCalls  int32
	verifyCalls  int32
	createBody   string
	createStatus int
	verifyBody   string
	verifyStatus int
	createDelay  chan struct{} // when non-nil, the handler blocks until closed
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	tb := &testBackend{
		createBody:   `{"data":{"orderId":"order_abc"}}`,
		createStatus: http.StatusOK,
		verifyBody:   `{"success":true,"message":"Payment verified successfully"}`,
		verifyStatus: http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/payment-requests/create-order", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tb.createCalls, 1)
		if tb.createDelay != nil {
			<-tb.createDelay
		}
		w.WriteHeader(tb.createStatus)
		w.Write([]byte(tb.createBody))
	})
	mux.HandleFunc("/payment-requests/verify-razorpay-payment", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tb.verifyCalls, 1)
		w.WriteHeader(tb.verifyStatus)
		w.Write([]byte(tb.verifyBody))
	})

	tb.server = httptest.NewServer(mux)
	t.Cleanup(tb.server.Close)
	return tb
}

func (tb *testBackend) client() *backend.Client {
	return backend.NewClient(tb.server.URL)
}

func requestItem(id string, price float64) models.PayableItem {
	return models.PayableItem{
		ID:          id,
		Kind:        models.KindSocietyPaymentRequest,
		Price:       price,
		Description: "maintenance dues",
	}
}

func TestCreateOrder_RequiresToken(t *testing.T) {
	tb := newTestBackend(t)
	c := NewCoordinator(tb.client(), nil, testSettings)

	_, err := c.CreateOrder(context.Background(), requestItem("r1", 100), "")
	if err == nil {
		t.Fatal("expected error for empty token")
	}
	if errors.KindOf(err) != errors.Unauthorized {
		t.Errorf("error kind = %v, want Unauthorized", errors.KindOf(err))
	}
	if n := atomic.LoadInt32(&tb.createCalls); n != 0 {
		t.Errorf("create-order called %d times, want 0", n)
	}
}

func TestCreateOrder_SingleFlightGuard(t *testing.T) {
	tb := newTestBackend(t)
	tb.createDelay = make(chan struct{})
	c := NewCoordinator(tb.client(), nil, testSettings)

	item := requestItem("r1", 100)

	var wg sync.WaitGroup
	wg.Add(1)
	firstErr := make(chan error, 1)
	go func() {
		defer wg.Done()
		_, err := c.CreateOrder(context.Background(), item, "tok")
		firstErr <- err
	}()

	// Wait for the first call to reach the backend, then race a second one.
	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&tb.createCalls) == 0 {
		select {
		case <-deadline:
			t.Fatal("first create-order never reached the backend")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	_, err := c.CreateOrder(context.Background(), item, "tok")
	if err == nil {
		t.Fatal("expected concurrent attempt to be rejected")
	}
	if errors.KindOf(err) != errors.Concurrent {
		t.Errorf("error kind = %v, want Concurrent", errors.KindOf(err))
	}

	close(tb.createDelay)
	wg.Wait()
	if err := <-firstErr; err != nil {
		t.Fatalf("first create-order failed: %v", err)
	}

	if n := atomic.LoadInt32(&tb.createCalls); n != 1 {
		t.Errorf("create-order called %d times, want exactly 1", n)
	}
}

func TestCreateOrder_IndependentItems(t *testing.T) {
	tb := newTestBackend(t)
	c := NewCoordinator(tb.client(), nil, testSettings)

	if _, err := c.CreateOrder(context.Background(), requestItem("r1", 100), "tok"); err != nil {
		t.Fatalf("create r1: %v", err)
	}
	if _, err := c.CreateOrder(context.Background(), requestItem("r2", 200), "tok"); err != nil {
		t.Fatalf("create r2: %v", err)
	}
}

func TestCreateOrder_MalformedResponse(t *testing.T) {
	tb := newTestBackend(t)
	tb.createBody = `{"status":"ok"}`
	c := NewCoordinator(tb.client(), nil, testSettings)

	_, err := c.CreateOrder(context.Background(), requestItem("r1", 100), "tok")
	if err == nil {
		t.Fatal("expected error for body without an order id")
	}
	if errors.KindOf(err) != errors.Malformed {
		t.Errorf("error kind = %v, want Malformed", errors.KindOf(err))
	}
	if got := c.State("r1"); got != models.StateCreateFailed {
		t.Errorf("state = %v, want CreateFailed", got)
	}
}

func TestBeginGatewayFlow_Preflight(t *testing.T) {
	tb := newTestBackend(t)

	t.Run("no checkout wired", func(t *testing.T) {
		c := NewCoordinator(tb.client(), nil, testSettings)
		order := &models.PaymentOrder{OrderID: "order_abc", PayableItemID: "r1"}
		_, err := c.BeginGatewayFlow(context.Background(), order, testPayer, "tok")
		if errors.KindOf(err) != errors.GatewayUnavailable {
			t.Errorf("error kind = %v, want GatewayUnavailable", errors.KindOf(err))
		}
	})

	t.Run("placeholder key", func(t *testing.T) {
		bad := testSettings
		bad.Key = "not_a_key"
		c := NewCoordinator(tb.client(), checkoutFunc(func(ctx context.Context, opts gateway.Options) (*gateway.Result, error) {
			t.Fatal("checkout must not open with an invalid key")
			return nil, nil
		}), bad)
		order := &models.PaymentOrder{OrderID: "order_abc", PayableItemID: "r1"}
		_, err := c.BeginGatewayFlow(context.Background(), order, testPayer, "tok")
		if errors.KindOf(err) != errors.Configuration {
			t.Errorf("error kind = %v, want Configuration", errors.KindOf(err))
		}
	})
}

func TestBeginGatewayFlow_DismissalResetsGuard(t *testing.T) {
	tb := newTestBackend(t)
	dismissing := checkoutFunc(func(ctx context.Context, opts gateway.Options) (*gateway.Result, error) {
		return &gateway.Result{Outcome: gateway.OutcomeDismissed}, nil
	})
	c := NewCoordinator(tb.client(), dismissing, testSettings)

	item := requestItem("r1", 100)
	order, err := c.CreateOrder(context.Background(), item, "tok")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := c.BeginGatewayFlow(context.Background(), order, testPayer, "tok")
	if err != nil {
		t.Fatalf("dismissal must not be an error: %v", err)
	}
	if res.State != models.StateUserCancelled {
		t.Errorf("state = %v, want UserCancelled", res.State)
	}
	if res.Message != "Payment was cancelled by user" {
		t.Errorf("message = %q", res.Message)
	}

	// The guard must be released: an immediate retry for the same item works.
	if _, err := c.CreateOrder(context.Background(), item, "tok"); err != nil {
		t.Fatalf("retry after dismissal rejected: %v", err)
	}
}

func TestBeginGatewayFlow_GatewayAuthFailureDistinguished(t *testing.T) {
	tb := newTestBackend(t)
	failing := checkoutFunc(func(ctx context.Context, opts gateway.Options) (*gateway.Result, error) {
		return &gateway.Result{
			Outcome:          gateway.OutcomeFailed,
			ErrorCode:        "AUTHENTICATION_ERROR",
			ErrorDescription: "Authentication failed",
		}, nil
	})
	c := NewCoordinator(tb.client(), failing, testSettings)

	order, err := c.CreateOrder(context.Background(), requestItem("r1", 100), "tok")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = c.BeginGatewayFlow(context.Background(), order, testPayer, "tok")
	if errors.KindOf(err) != errors.GatewayAuth {
		t.Errorf("error kind = %v, want GatewayAuth", errors.KindOf(err))
	}
}

func TestVerify_FailureAfterCaptureIsDistinct(t *testing.T) {
	tb := newTestBackend(t)
	tb.verifyStatus = http.StatusInternalServerError
	tb.verifyBody = `{"error":"settlement store unavailable"}`

	succeeding := checkoutFunc(func(ctx context.Context, opts gateway.Options) (*gateway.Result, error) {
		return &gateway.Result{
			Outcome: gateway.OutcomeSuccess,
			Proof: &models.PaymentProof{
				GatewayPaymentID: "pay_1",
				GatewayOrderID:   opts.OrderID,
				GatewaySignature: "sig",
			},
		}, nil
	})
	c := NewCoordinator(tb.client(), succeeding, testSettings)

	order, err := c.CreateOrder(context.Background(), requestItem("r1", 100), "tok")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = c.BeginGatewayFlow(context.Background(), order, testPayer, "tok")
	if err == nil {
		t.Fatal("expected verification failure")
	}
	// Even though the backend answered 500, this must never surface as the
	// generic server error: the gateway already captured the money.
	if errors.KindOf(err) != errors.VerificationAfterCapture {
		t.Errorf("error kind = %v, want VerificationAfterCapture", errors.KindOf(err))
	}
	if errors.MessageOf(err) != capturedButUnverifiedMessage {
		t.Errorf("message = %q, want capture-aware copy", errors.MessageOf(err))
	}
	if got := c.State("r1"); got != models.StateVerificationFailed {
		t.Errorf("state = %v, want VerificationFailed", got)
	}
}

func TestVerify_RejectsStaleAttempt(t *testing.T) {
	tb := newTestBackend(t)
	c := NewCoordinator(tb.client(), nil, testSettings)

	if _, err := c.CreateOrder(context.Background(), requestItem("r1", 100), "tok"); err != nil {
		t.Fatalf("create: %v", err)
	}

	stale := &models.PaymentOrder{OrderID: "order_old", PayableItemID: "r1", Kind: models.KindSocietyPaymentRequest}
	proof := models.PaymentProof{GatewayPaymentID: "pay_0", GatewayOrderID: "order_old", GatewaySignature: "sig"}
	_, err := c.Verify(context.Background(), proof, stale, "tok")
	if errors.KindOf(err) != errors.Concurrent {
		t.Errorf("error kind = %v, want Concurrent for a superseded attempt", errors.KindOf(err))
	}
	if n := atomic.LoadInt32(&tb.verifyCalls); n != 0 {
		t.Errorf("verify endpoint called %d times for a stale proof, want 0", n)
	}
}

func TestEndToEndFlow(t *testing.T) {
	tb := newTestBackend(t)

	var gatewayAmount int64
	succeeding := checkoutFunc(func(ctx context.Context, opts gateway.Options) (*gateway.Result, error) {
		gatewayAmount = opts.AmountMinorUnits
		return &gateway.Result{
			Outcome: gateway.OutcomeSuccess,
			Proof: &models.PaymentProof{
				GatewayPaymentID: "pay_1",
				GatewayOrderID:   opts.OrderID,
				GatewaySignature: "sig",
			},
		}, nil
	})

	var refreshCount int32
	journal := history.NewMemoryRecorder()
	c := NewCoordinator(tb.client(), succeeding, testSettings,
		WithJournal(journal),
		WithRefresh(func() { atomic.AddInt32(&refreshCount, 1) }),
		WithRefreshDelay(10*time.Millisecond),
	)

	item := requestItem("c1", 499.00)
	order, err := c.CreateOrder(context.Background(), item, "tok")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.OrderID != "order_abc" {
		t.Errorf("order id = %q, want order_abc", order.OrderID)
	}
	if order.AmountMinorUnits != 49900 {
		t.Errorf("amount = %d paise, want 49900", order.AmountMinorUnits)
	}

	res, err := c.BeginGatewayFlow(context.Background(), order, testPayer, "tok")
	if err != nil {
		t.Fatalf("flow: %v", err)
	}
	if res.State != models.StateVerified {
		t.Errorf("state = %v, want Verified", res.State)
	}
	if res.Verification == nil || !res.Verification.Verified {
		t.Error("expected a verified result")
	}
	if gatewayAmount != 49900 {
		t.Errorf("gateway saw %d paise, want 49900", gatewayAmount)
	}
	if got := c.State("c1"); got != models.StateVerified {
		t.Errorf("coordinator state = %v, want Verified", got)
	}

	// Refresh fires exactly once after the settlement delay.
	time.Sleep(100 * time.Millisecond)
	if n := atomic.LoadInt32(&refreshCount); n != 1 {
		t.Errorf("refresh fired %d times, want 1", n)
	}

	recs, err := journal.List(context.Background())
	if err != nil {
		t.Fatalf("journal list: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("journal has %d records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.State != string(models.StateVerified) || rec.OrderID != "order_abc" || rec.PaymentID != "pay_1" {
		t.Errorf("unexpected journal record: %+v", rec)
	}
}

func decodeVerifyBody(t *testing.T, r *http.Request) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Errorf("verify body undecodable: %v", err)
	}
	return body
}

func TestVerify_SendsProofFields(t *testing.T) {
	var got map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("/payment-requests/create-order", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"order":{"id":"order_abc"}}`))
	})
	mux.HandleFunc("/payment-requests/verify-razorpay-payment", func(w http.ResponseWriter, r *http.Request) {
		got = decodeVerifyBody(t, r)
		w.Write([]byte(`{"success":true}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	succeeding := checkoutFunc(func(ctx context.Context, opts gateway.Options) (*gateway.Result, error) {
		return &gateway.Result{
			Outcome: gateway.OutcomeSuccess,
			Proof: &models.PaymentProof{
				GatewayPaymentID: "pay_9",
				GatewayOrderID:   opts.OrderID,
				GatewaySignature: "sig_9",
			},
		}, nil
	})
	c := NewCoordinator(backend.NewClient(server.URL), succeeding, testSettings)

	order, err := c.CreateOrder(context.Background(), requestItem("r9", 10), "tok")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.BeginGatewayFlow(context.Background(), order, testPayer, "tok"); err != nil {
		t.Fatalf("flow: %v", err)
	}

	want := map[string]string{
		"requestId": "r9",
		"paymentId": "pay_9",
		"orderId":   "order_abc",
		"signature": "sig_9",
	}
	for field, wantVal := range want {
		if got[field] != wantVal {
			t.Errorf("verify body %s = %v, want %q", field, got[field], wantVal)
		}
	}
}
