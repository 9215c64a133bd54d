// Package database persists the loan service's off-chain state: KYC
// verification records and the loan audit trail.
package database

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/line-yield/loan-service/internal/audit"
	"github.com/line-yield/loan-service/internal/supabase"
)

const (
	kycTable   = "kyc_verifications"
	auditTable = "loan_audit"
)

// Repository is the off-chain storage surface used by the loan service.
type Repository interface {
	IsKYCVerified(ctx context.Context, address string) (bool, error)
	SetKYCStatus(ctx context.Context, address string, verified bool) error
	audit.Sink
}

// =============================================================================
// Supabase Store
// =============================================================================

// Store persists records through Supabase's PostgREST API.
type Store struct {
	db  *supabase.Client
	log *logrus.Entry
}

// NewStore creates a Supabase-backed repository.
func NewStore(db *supabase.Client, log *logrus.Entry) *Store {
	return &Store{db: db, log: log}
}

type kycRow struct {
	Address   string `json:"address"`
	Verified  bool   `json:"verified"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// IsKYCVerified reports whether an address passed KYC. A missing row means
// not verified.
func (s *Store) IsKYCVerified(ctx context.Context, address string) (bool, error) {
	resp, err := s.db.From(kycTable).
		Select("verified").
		Eq("address", strings.ToLower(address)).
		Single().
		Execute(ctx)
	if err != nil {
		return false, fmt.Errorf("query kyc status: %w", err)
	}
	if resp.NotFound() {
		return false, nil
	}
	if err := resp.Error(); err != nil {
		return false, err
	}

	var row kycRow
	if err := resp.JSON(&row); err != nil {
		return false, fmt.Errorf("decode kyc row: %w", err)
	}
	return row.Verified, nil
}

// SetKYCStatus upserts an address's KYC flag.
func (s *Store) SetKYCStatus(ctx context.Context, address string, verified bool) error {
	row := kycRow{
		Address:   strings.ToLower(address),
		Verified:  verified,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	resp, err := s.db.From(kycTable).Upsert("address").ExecuteInsert(ctx, row)
	if err != nil {
		return fmt.Errorf("upsert kyc status: %w", err)
	}
	return resp.Error()
}

type auditRow struct {
	ID         string `json:"id,omitempty"`
	LoanID     int64  `json:"loan_id,omitempty"`
	Action     string `json:"action"`
	Amount     string `json:"amount,omitempty"`
	Collateral string `json:"collateral,omitempty"`
	Borrower   string `json:"borrower,omitempty"`
	TxHash     string `json:"tx_hash,omitempty"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// Store appends an audit record to the loan_audit table.
func (s *Store) Store(ctx context.Context, rec audit.Record) error {
	row := auditRow{
		ID:         rec.ID,
		LoanID:     rec.LoanID,
		Action:     string(rec.Action),
		Amount:     rec.Amount,
		Collateral: rec.Collateral,
		Borrower:   strings.ToLower(rec.Borrower),
		TxHash:     rec.TxHash,
		Error:      rec.Error,
		CreatedAt:  rec.Timestamp.UTC().Format(time.RFC3339),
	}
	resp, err := s.db.From(auditTable).ExecuteInsert(ctx, row)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return resp.Error()
}

// =============================================================================
// In-Memory Store
// =============================================================================

// MemoryStore is a Repository kept in process memory. Used when no Supabase
// credentials are configured and in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	kyc    map[string]bool
	audits []audit.Record
}

// NewMemoryStore creates an empty in-memory repository.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{kyc: make(map[string]bool)}
}

func (m *MemoryStore) IsKYCVerified(_ context.Context, address string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.kyc[strings.ToLower(address)], nil
}

func (m *MemoryStore) SetKYCStatus(_ context.Context, address string, verified bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kyc[strings.ToLower(address)] = verified
	return nil
}

func (m *MemoryStore) Store(_ context.Context, rec audit.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, rec)
	return nil
}

// Audits returns a copy of the stored audit records.
func (m *MemoryStore) Audits() []audit.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]audit.Record, len(m.audits))
	copy(out, m.audits)
	return out
}
