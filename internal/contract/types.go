// Package contract provides the typed binding for the LINE Yield lending contract.
package contract

import (
	"fmt"
	"math/big"

	"github.com/line-yield/loan-service/internal/chain"
)

// LoanStatus mirrors the status enum stored by the lending contract.
type LoanStatus uint8

const (
	StatusActive LoanStatus = iota
	StatusRepaid
	StatusLiquidated
	StatusDefaulted
	StatusCancelled
)

// String returns the API representation of the status.
func (s LoanStatus) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusRepaid:
		return "Repaid"
	case StatusLiquidated:
		return "Liquidated"
	case StatusDefaulted:
		return "Defaulted"
	case StatusCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(s))
	}
}

// Loan is one borrowing position as stored on-chain. Amount fields are in the
// token's smallest unit.
type Loan struct {
	ID              *big.Int
	LoanTypeID      *big.Int
	Borrower        string
	Principal       *big.Int
	Collateral      *big.Int
	StartTime       uint64
	RepaidAmount    *big.Int
	LastPayment     uint64
	Status          LoanStatus
	InterestAccrued *big.Int
	Liquidated      bool
}

// LoanType is a product tier configured on the lending contract.
// Rate fields are basis points, duration is seconds, amount bounds are in
// the token's smallest unit.
type LoanType struct {
	ID                      *big.Int
	Name                    string
	Description             string
	MinAmount               *big.Int
	MaxAmount               *big.Int
	InterestRateBps         *big.Int
	CollateralRatioBps      *big.Int
	Duration                uint64
	LiquidationThresholdBps *big.Int
	PenaltyRateBps          *big.Int
	Active                  bool
	RequiresKYC             bool
	MaxBorrowers            *big.Int
	CurrentBorrowers        *big.Int
}

// =============================================================================
// Stack Item Parsers
// =============================================================================

// ParseLoan parses the contract's loan struct (11 fields).
func ParseLoan(item chain.StackItem) (*Loan, error) {
	items, err := chain.ParseArray(item)
	if err != nil {
		return nil, err
	}
	if len(items) < 11 {
		return nil, fmt.Errorf("expected at least 11 items, got %d", len(items))
	}

	id, err := chain.ParseInteger(items[0])
	if err != nil {
		return nil, fmt.Errorf("parse id: %w", err)
	}
	loanTypeID, err := chain.ParseInteger(items[1])
	if err != nil {
		return nil, fmt.Errorf("parse loanTypeId: %w", err)
	}
	borrower, err := chain.ParseHash160(items[2])
	if err != nil {
		return nil, fmt.Errorf("parse borrower: %w", err)
	}
	principal, err := chain.ParseInteger(items[3])
	if err != nil {
		return nil, fmt.Errorf("parse principal: %w", err)
	}
	collateral, err := chain.ParseInteger(items[4])
	if err != nil {
		return nil, fmt.Errorf("parse collateral: %w", err)
	}
	startTime, err := chain.ParseInteger(items[5])
	if err != nil {
		return nil, fmt.Errorf("parse startTime: %w", err)
	}
	repaid, err := chain.ParseInteger(items[6])
	if err != nil {
		return nil, fmt.Errorf("parse repaidAmount: %w", err)
	}
	lastPayment, err := chain.ParseInteger(items[7])
	if err != nil {
		return nil, fmt.Errorf("parse lastPayment: %w", err)
	}
	status, err := chain.ParseInteger(items[8])
	if err != nil {
		return nil, fmt.Errorf("parse status: %w", err)
	}
	interest, err := chain.ParseInteger(items[9])
	if err != nil {
		return nil, fmt.Errorf("parse interestAccrued: %w", err)
	}
	liquidated, err := chain.ParseBoolean(items[10])
	if err != nil {
		return nil, fmt.Errorf("parse liquidated: %w", err)
	}

	return &Loan{
		ID:              id,
		LoanTypeID:      loanTypeID,
		Borrower:        borrower,
		Principal:       principal,
		Collateral:      collateral,
		StartTime:       startTime.Uint64(),
		RepaidAmount:    repaid,
		LastPayment:     lastPayment.Uint64(),
		Status:          LoanStatus(status.Uint64()),
		InterestAccrued: interest,
		Liquidated:      liquidated,
	}, nil
}

// ParseLoanType parses the contract's loan type struct (14 fields).
func ParseLoanType(item chain.StackItem) (*LoanType, error) {
	items, err := chain.ParseArray(item)
	if err != nil {
		return nil, err
	}
	if len(items) < 14 {
		return nil, fmt.Errorf("expected at least 14 items, got %d", len(items))
	}

	id, err := chain.ParseInteger(items[0])
	if err != nil {
		return nil, fmt.Errorf("parse id: %w", err)
	}
	name, err := chain.ParseString(items[1])
	if err != nil {
		return nil, fmt.Errorf("parse name: %w", err)
	}
	description, err := chain.ParseString(items[2])
	if err != nil {
		return nil, fmt.Errorf("parse description: %w", err)
	}
	minAmount, err := chain.ParseInteger(items[3])
	if err != nil {
		return nil, fmt.Errorf("parse minAmount: %w", err)
	}
	maxAmount, err := chain.ParseInteger(items[4])
	if err != nil {
		return nil, fmt.Errorf("parse maxAmount: %w", err)
	}
	interestRate, err := chain.ParseInteger(items[5])
	if err != nil {
		return nil, fmt.Errorf("parse interestRateBps: %w", err)
	}
	collateralRatio, err := chain.ParseInteger(items[6])
	if err != nil {
		return nil, fmt.Errorf("parse collateralRatioBps: %w", err)
	}
	duration, err := chain.ParseInteger(items[7])
	if err != nil {
		return nil, fmt.Errorf("parse duration: %w", err)
	}
	liquidationThreshold, err := chain.ParseInteger(items[8])
	if err != nil {
		return nil, fmt.Errorf("parse liquidationThresholdBps: %w", err)
	}
	penaltyRate, err := chain.ParseInteger(items[9])
	if err != nil {
		return nil, fmt.Errorf("parse penaltyRateBps: %w", err)
	}
	active, err := chain.ParseBoolean(items[10])
	if err != nil {
		return nil, fmt.Errorf("parse active: %w", err)
	}
	requiresKYC, err := chain.ParseBoolean(items[11])
	if err != nil {
		return nil, fmt.Errorf("parse requiresKYC: %w", err)
	}
	maxBorrowers, err := chain.ParseInteger(items[12])
	if err != nil {
		return nil, fmt.Errorf("parse maxBorrowers: %w", err)
	}
	currentBorrowers, err := chain.ParseInteger(items[13])
	if err != nil {
		return nil, fmt.Errorf("parse currentBorrowers: %w", err)
	}

	return &LoanType{
		ID:                      id,
		Name:                    name,
		Description:             description,
		MinAmount:               minAmount,
		MaxAmount:               maxAmount,
		InterestRateBps:         interestRate,
		CollateralRatioBps:      collateralRatio,
		Duration:                duration.Uint64(),
		LiquidationThresholdBps: liquidationThreshold,
		PenaltyRateBps:          penaltyRate,
		Active:                  active,
		RequiresKYC:             requiresKYC,
		MaxBorrowers:            maxBorrowers,
		CurrentBorrowers:        currentBorrowers,
	}, nil
}
