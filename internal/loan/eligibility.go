package loan

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/line-yield/loan-service/internal/contract"
)

// Rejection reasons returned to callers. These are part of the API surface.
const (
	ReasonInvalidLoanType  = "Invalid loan type"
	ReasonInactiveLoanType = "Loan type is not active"
	ReasonMaxBorrowers     = "Maximum borrowers reached for this loan type"
	ReasonKYCRequired      = "KYC verification required"
	ReasonCheckFailed      = "Error checking eligibility"
)

// Eligibility is the verdict for one borrower and loan type.
type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

// KYCStore looks up and updates off-chain KYC flags, keyed by lowercase
// address.
type KYCStore interface {
	IsKYCVerified(ctx context.Context, address string) (bool, error)
	SetKYCStatus(ctx context.Context, address string, verified bool) error
}

// EligibilityChecker evaluates borrowing rules against live chain state and
// the KYC store. It holds no state of its own.
type EligibilityChecker struct {
	chain LoanTypeReader
	kyc   KYCStore
	log   *logrus.Entry
}

// LoanTypeReader is the slice of the chain binding the checker needs.
type LoanTypeReader interface {
	GetLoanType(ctx context.Context, loanTypeID int64) (*contract.LoanType, error)
}

// NewEligibilityChecker creates a checker.
func NewEligibilityChecker(chain LoanTypeReader, kyc KYCStore, log *logrus.Entry) *EligibilityChecker {
	return &EligibilityChecker{chain: chain, kyc: kyc, log: log}
}

// Check evaluates the borrowing rules in order; the first failing rule wins.
// Lookup failures are treated as ineligible, never as eligible.
func (e *EligibilityChecker) Check(ctx context.Context, borrower string, loanTypeID int64) Eligibility {
	lt, err := e.chain.GetLoanType(ctx, loanTypeID)
	if err != nil {
		if errors.Is(err, contract.ErrLoanTypeNotFound) {
			return Eligibility{Eligible: false, Reason: ReasonInvalidLoanType}
		}
		e.log.WithError(err).WithField("loan_type_id", loanTypeID).Warn("loan type lookup failed")
		return Eligibility{Eligible: false, Reason: ReasonCheckFailed}
	}

	if !lt.Active {
		return Eligibility{Eligible: false, Reason: ReasonInactiveLoanType}
	}

	if lt.MaxBorrowers.Sign() > 0 && lt.CurrentBorrowers.Cmp(lt.MaxBorrowers) >= 0 {
		return Eligibility{Eligible: false, Reason: ReasonMaxBorrowers}
	}

	if lt.RequiresKYC {
		verified, err := e.kyc.IsKYCVerified(ctx, strings.ToLower(borrower))
		if err != nil {
			e.log.WithError(err).WithField("borrower", borrower).Warn("kyc lookup failed")
			return Eligibility{Eligible: false, Reason: ReasonCheckFailed}
		}
		if !verified {
			return Eligibility{Eligible: false, Reason: ReasonKYCRequired}
		}
	}

	return Eligibility{Eligible: true}
}
