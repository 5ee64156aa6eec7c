package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestKYCPoller_StopsOnApproval(t *testing.T) {
	var polls int32
	fetch := func(ctx context.Context, token string) (KYCStatus, error) {
		n := atomic.AddInt32(&polls, 1)
		if n < 3 {
			return KYCStatus{Status: "UNDER_REVIEW"}, nil
		}
		return KYCStatus{Status: "APPROVED", IsApproved: true}, nil
	}

	approved := make(chan struct{}, 4)
	p := NewKYCPoller(fetch, func() { approved <- struct{}{} })
	p.SetInterval(5 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), "tok")
		close(done)
	}()

	select {
	case <-approved:
	case <-time.After(2 * time.Second):
		t.Fatal("approval callback never fired")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop after approval")
	}

	// No further callbacks after the terminal state.
	time.Sleep(50 * time.Millisecond)
	select {
	case <-approved:
		t.Error("approval callback fired more than once")
	default:
	}
	if n := atomic.LoadInt32(&polls); n != 3 {
		t.Errorf("fetch called %d times, want 3", n)
	}
}

func TestKYCPoller_KeepsPollingThroughErrors(t *testing.T) {
	var polls int32
	fetch := func(ctx context.Context, token string) (KYCStatus, error) {
		n := atomic.AddInt32(&polls, 1)
		if n == 1 {
			return KYCStatus{}, fmt.Errorf("transient failure")
		}
		return KYCStatus{Status: "APPROVED", IsApproved: true}, nil
	}

	approved := make(chan struct{}, 1)
	p := NewKYCPoller(fetch, func() { approved <- struct{}{} })
	p.SetInterval(5 * time.Millisecond)

	go p.Run(context.Background(), "tok")

	select {
	case <-approved:
	case <-time.After(2 * time.Second):
		t.Fatal("poller gave up after a fetch error")
	}
}

func TestKYCPoller_ContextCancellation(t *testing.T) {
	fetch := func(ctx context.Context, token string) (KYCStatus, error) {
		return KYCStatus{Status: "UNDER_REVIEW"}, nil
	}
	p := NewKYCPoller(fetch, func() { t.Error("callback must not fire without approval") })
	p.SetInterval(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, "tok")
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop on context cancellation")
	}
}
