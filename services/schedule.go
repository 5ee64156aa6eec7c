package services

import "time"

// ScheduleDelayedRefresh invokes cb once after delay. Both the coordinator's
// post-verification list refresh and the KYC poller's approval callback run
// through this so the delay-then-refresh behavior stays in one place.
// The returned timer can be stopped to cancel a pending callback.
func ScheduleDelayedRefresh(cb func(), delay time.Duration) *time.Timer {
	return time.AfterFunc(delay, cb)
}
