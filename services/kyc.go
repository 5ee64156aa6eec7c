package services

import (
	"context"
	"time"

	"societypay/logger"
)

// KYCStatus is the consumed shape of the KYC status endpoint.
type KYCStatus struct {
	Status     string `json:"status"`
	IsApproved bool   `json:"isApproved"`
}

// KYCFetchFunc fetches the current KYC status for a session token.
type KYCFetchFunc func(ctx context.Context, authToken string) (KYCStatus, error)

// KYCPoller polls the status endpoint on a fixed interval until the status
// reaches the approved terminal state, then invokes the provided callback
// exactly once and stops. Fetch errors are logged and polling continues.
type KYCPoller struct {
	fetch      KYCFetchFunc
	onApproved func()
	interval   time.Duration
	log        *logger.Logger
}

// NewKYCPoller creates a poller with the default 30s interval.
func NewKYCPoller(fetch KYCFetchFunc, onApproved func()) *KYCPoller {
	return &KYCPoller{
		fetch:      fetch,
		onApproved: onApproved,
		interval:   30 * time.Second,
		log:        logger.NewDefault(),
	}
}

// SetInterval overrides the polling interval.
func (p *KYCPoller) SetInterval(d time.Duration) {
	p.interval = d
}

// Run polls until approval or context cancellation. The approval callback is
// dispatched through the shared delayed-refresh utility.
func (p *KYCPoller) Run(ctx context.Context, authToken string) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		status, err := p.fetch(ctx, authToken)
		if err != nil {
			p.log.Warn("KYC status poll failed: %v", err)
		} else if status.IsApproved {
			p.log.Info("KYC approved, stopping poller")
			if p.onApproved != nil {
				ScheduleDelayedRefresh(p.onApproved, 0)
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
