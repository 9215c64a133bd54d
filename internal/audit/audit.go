// Package audit records loan lifecycle events. Auditing is best effort:
// a failed audit write never fails the operation that produced it.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Action identifies the audited loan operation.
type Action string

// Actions are past tense: a record describes an operation that already
// happened on chain.
const (
	ActionCreate        Action = "created"
	ActionRepay         Action = "repaid"
	ActionAddCollateral Action = "collateral_added"
	ActionLiquidate     Action = "liquidated"
	ActionKYCVerify     Action = "kyc_verified"
	ActionPriceUpdate   Action = "price_updated"
)

// Record is one audited event. Amounts are human-readable decimal strings.
type Record struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Action     Action    `json:"action"`
	LoanID     int64     `json:"loanId,omitempty"`
	Borrower   string    `json:"borrower,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	Collateral string    `json:"collateral,omitempty"`
	TxHash     string    `json:"txHash,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Sink persists records somewhere durable.
type Sink interface {
	Store(ctx context.Context, rec Record) error
}

const ringSize = 256

// Logger keeps a bounded in-memory ring of recent records and forwards each
// record to an optional sink.
type Logger struct {
	log  *logrus.Entry
	sink Sink

	mu   sync.Mutex
	ring []Record
}

// NewLogger creates an audit logger. sink may be nil.
func NewLogger(log *logrus.Entry, sink Sink) *Logger {
	return &Logger{
		log:  log,
		sink: sink,
		ring: make([]Record, 0, ringSize),
	}
}

// Log records an event. Sink failures are logged and swallowed.
func (l *Logger) Log(ctx context.Context, rec Record) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	l.log.WithFields(logrus.Fields{
		"action":   rec.Action,
		"loan_id":  rec.LoanID,
		"borrower": rec.Borrower,
		"tx_hash":  rec.TxHash,
	}).Info("audit")

	l.mu.Lock()
	if len(l.ring) >= ringSize {
		l.ring = l.ring[1:]
	}
	l.ring = append(l.ring, rec)
	l.mu.Unlock()

	if l.sink == nil {
		return
	}
	if err := l.sink.Store(ctx, rec); err != nil {
		l.log.WithError(err).Warn("audit sink write failed")
	}
}

// Recent returns a copy of the buffered records, oldest first.
func (l *Logger) Recent() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.ring))
	copy(out, l.ring)
	return out
}
