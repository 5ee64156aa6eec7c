package history

import (
	"context"
	"sync"
	"time"
)

// AttemptRecord is the journal entry written when a payment attempt reaches a
// terminal state. The journal is strictly write-behind: the coordinator never
// reads it back, so losing it cannot affect a payment in flight.
type AttemptRecord struct {
	AttemptID        string
	ItemID           string
	Kind             string
	OrderID          string
	PaymentID        string
	AmountMinorUnits int64
	State            string
	Message          string
	RecordedAt       time.Time
}

// Recorder persists terminal payment attempts for statements and support.
type Recorder interface {
	Record(ctx context.Context, rec AttemptRecord) error
	List(ctx context.Context) ([]AttemptRecord, error)
}

// MemoryRecorder keeps records in memory. Used in tests and when no database
// is configured.
type MemoryRecorder struct {
	mu   sync.Mutex
	recs []AttemptRecord
}

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (m *MemoryRecorder) Record(_ context.Context, rec AttemptRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *MemoryRecorder) List(_ context.Context) ([]AttemptRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AttemptRecord, len(m.recs))
	copy(out, m.recs)
	return out, nil
}
