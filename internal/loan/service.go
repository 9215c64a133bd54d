// Package loan orchestrates the loan lifecycle: eligibility checks, chain
// submissions through the relayer queue, and best-effort audit logging.
// All authoritative loan state lives in the lending contract; this layer
// re-queries it on every call and never caches.
package loan

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/sirupsen/logrus"

	"github.com/line-yield/loan-service/internal/audit"
	"github.com/line-yield/loan-service/internal/chain"
	"github.com/line-yield/loan-service/internal/contract"
	"github.com/line-yield/loan-service/internal/txqueue"
)

// ChainContract is the lending contract surface the orchestrator depends on.
// Satisfied by *contract.LendingContract and by test doubles.
type ChainContract interface {
	Initialized() bool
	ContractHash() string

	CreateLoan(ctx context.Context, loanTypeID int64, principal, collateral *big.Int, borrower string) (*chain.TxResult, error)
	RepayLoan(ctx context.Context, loanID int64, amount *big.Int) (*chain.TxResult, error)
	AddCollateral(ctx context.Context, loanID int64, amount *big.Int) (*chain.TxResult, error)
	LiquidateLoan(ctx context.Context, loanID int64) (*chain.TxResult, error)
	SetKYCVerified(ctx context.Context, address string, verified bool) (*chain.TxResult, error)
	UpdateTokenPrice(ctx context.Context, token string, price *big.Int) (*chain.TxResult, error)

	GetLoan(ctx context.Context, loanID int64) (*contract.Loan, error)
	GetLoanType(ctx context.Context, loanTypeID int64) (*contract.LoanType, error)
	GetBorrowerLoans(ctx context.Context, borrower string) ([]int64, error)
	CalculateTotalOwed(ctx context.Context, loanID int64) (*big.Int, error)
	CalculateInterest(ctx context.Context, loanID int64) (*big.Int, error)
	CalculatePenalty(ctx context.Context, loanID int64) (*big.Int, error)
	IsLoanLiquidatable(ctx context.Context, loanID int64) (bool, error)
	CalculateRequiredCollateral(ctx context.Context, amount *big.Int, ratioBps int64) (*big.Int, error)
	GetLoanCount(ctx context.Context) (int64, error)
	GetLoanTypeCount(ctx context.Context) (int64, error)
}

// IneligibleError rejects a loan creation with a caller-visible reason.
type IneligibleError struct {
	Reason string
}

func (e *IneligibleError) Error() string { return e.Reason }

// ErrLoanNotFound mirrors the binding's sentinel for callers that only
// import this package.
var ErrLoanNotFound = contract.ErrLoanNotFound

// Service is the loan orchestrator.
type Service struct {
	chain       ChainContract
	eligibility *EligibilityChecker
	kyc         KYCStore
	audit       *audit.Logger
	queue       *txqueue.Queue
	log         *logrus.Entry
}

// NewService wires the orchestrator.
func NewService(chainContract ChainContract, kyc KYCStore, auditLog *audit.Logger, queue *txqueue.Queue, log *logrus.Entry) *Service {
	return &Service{
		chain:       chainContract,
		eligibility: NewEligibilityChecker(chainContract, kyc, log),
		kyc:         kyc,
		audit:       auditLog,
		queue:       queue,
		log:         log,
	}
}

// CheckEligibility evaluates whether a borrower may open a loan of the
// given type.
func (s *Service) CheckEligibility(ctx context.Context, borrower string, loanTypeID int64) Eligibility {
	return s.eligibility.Check(ctx, borrower, loanTypeID)
}

// Ready reports whether the contract binding is usable.
func (s *Service) Ready() bool {
	return s.chain.Initialized()
}

// ContractAddress returns the bound lending contract address.
func (s *Service) ContractAddress() string {
	return s.chain.ContractHash()
}

// =============================================================================
// Create
// =============================================================================

// CreateLoanResult describes a successful loan creation. IDConfirmed is
// false when the id had to be recovered from the loan counter instead of
// the LoanCreated event; such an id may be wrong if another creation raced
// this one, and callers should re-read the loan to confirm ownership.
type CreateLoanResult struct {
	LoanID      int64  `json:"loanId"`
	TxHash      string `json:"txHash"`
	IDConfirmed bool   `json:"idConfirmed"`
}

// CreateLoan checks eligibility, submits the creation transaction through
// the relayer queue, and recovers the assigned loan id. An ineligible
// borrower never causes a chain write.
func (s *Service) CreateLoan(ctx context.Context, loanTypeID int64, principal, collateral string, borrower string) (*CreateLoanResult, error) {
	verdict := s.eligibility.Check(ctx, borrower, loanTypeID)
	if !verdict.Eligible {
		return nil, &IneligibleError{Reason: verdict.Reason}
	}

	principalUnits, err := contract.ToSmallestUnit(principal)
	if err != nil {
		return nil, fmt.Errorf("invalid principal: %w", err)
	}
	collateralUnits, err := contract.ToSmallestUnit(collateral)
	if err != nil {
		return nil, fmt.Errorf("invalid collateral: %w", err)
	}

	var tx *chain.TxResult
	err = s.queue.Do(ctx, func(ctx context.Context) error {
		var submitErr error
		tx, submitErr = s.chain.CreateLoan(ctx, loanTypeID, principalUnits, collateralUnits, borrower)
		return submitErr
	})
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"loan_type_id": loanTypeID,
			"borrower":     borrower,
		}).Error("loan creation failed")
		return nil, fmt.Errorf("submit loan creation: %w", err)
	}

	result := &CreateLoanResult{TxHash: tx.TxHash}
	loanID, err := contract.ExtractLoanCreatedID(tx.AppLog, s.chain.ContractHash())
	if err == nil {
		result.LoanID = loanID
		result.IDConfirmed = true
	} else {
		// Counter fallback. Racy against concurrent creations, so the id is
		// reported unconfirmed.
		count, countErr := s.chain.GetLoanCount(ctx)
		if countErr != nil || count == 0 {
			s.log.WithError(countErr).Warn("loan id recovery failed")
			result.LoanID = -1
		} else {
			result.LoanID = count - 1
		}
	}

	s.audit.Log(ctx, audit.Record{
		Action:     audit.ActionCreate,
		LoanID:     result.LoanID,
		Borrower:   borrower,
		Amount:     principal,
		Collateral: collateral,
		TxHash:     tx.TxHash,
	})

	return result, nil
}

// =============================================================================
// Repay / Collateral / Liquidate
// =============================================================================

// TxReceipt reports a completed state-changing operation.
type TxReceipt struct {
	TxHash string `json:"txHash"`
}

// RepayLoan submits a repayment. Ownership checks are the contract's job.
func (s *Service) RepayLoan(ctx context.Context, loanID int64, amount string) (*TxReceipt, error) {
	units, err := contract.ToSmallestUnit(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}

	tx, err := s.submit(ctx, "repay", loanID, func(ctx context.Context) (*chain.TxResult, error) {
		return s.chain.RepayLoan(ctx, loanID, units)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Record{
		Action: audit.ActionRepay,
		LoanID: loanID,
		Amount: amount,
		TxHash: tx.TxHash,
	})
	return &TxReceipt{TxHash: tx.TxHash}, nil
}

// AddCollateral tops up a loan's collateral.
func (s *Service) AddCollateral(ctx context.Context, loanID int64, amount string) (*TxReceipt, error) {
	units, err := contract.ToSmallestUnit(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}

	tx, err := s.submit(ctx, "add collateral", loanID, func(ctx context.Context) (*chain.TxResult, error) {
		return s.chain.AddCollateral(ctx, loanID, units)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Record{
		Action:     audit.ActionAddCollateral,
		LoanID:     loanID,
		Collateral: amount,
		TxHash:     tx.TxHash,
	})
	return &TxReceipt{TxHash: tx.TxHash}, nil
}

// LiquidateLoan liquidates an undercollateralized loan.
func (s *Service) LiquidateLoan(ctx context.Context, loanID int64) (*TxReceipt, error) {
	tx, err := s.submit(ctx, "liquidate", loanID, func(ctx context.Context) (*chain.TxResult, error) {
		return s.chain.LiquidateLoan(ctx, loanID)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Record{
		Action: audit.ActionLiquidate,
		LoanID: loanID,
		TxHash: tx.TxHash,
	})
	return &TxReceipt{TxHash: tx.TxHash}, nil
}

func (s *Service) submit(ctx context.Context, op string, loanID int64, fn func(ctx context.Context) (*chain.TxResult, error)) (*chain.TxResult, error) {
	var tx *chain.TxResult
	err := s.queue.Do(ctx, func(ctx context.Context) error {
		var submitErr error
		tx, submitErr = fn(ctx)
		return submitErr
	})
	if err != nil {
		s.log.WithError(err).WithField("loan_id", loanID).Errorf("loan %s failed", op)
		return nil, fmt.Errorf("submit loan %s: %w", op, err)
	}
	return tx, nil
}

// =============================================================================
// KYC and Prices
// =============================================================================

// VerifyKYC sets the on-chain KYC flag and mirrors it to the off-chain
// store. The chain write is authoritative; a mirror failure is logged but
// does not fail the operation.
func (s *Service) VerifyKYC(ctx context.Context, address string, verified bool) (*TxReceipt, error) {
	var tx *chain.TxResult
	err := s.queue.Do(ctx, func(ctx context.Context) error {
		var submitErr error
		tx, submitErr = s.chain.SetKYCVerified(ctx, address, verified)
		return submitErr
	})
	if err != nil {
		s.log.WithError(err).WithField("address", address).Error("kyc update failed")
		return nil, fmt.Errorf("submit kyc update: %w", err)
	}

	if err := s.kyc.SetKYCStatus(ctx, address, verified); err != nil {
		s.log.WithError(err).WithField("address", address).Warn("kyc mirror write failed")
	}

	s.audit.Log(ctx, audit.Record{
		Action:   audit.ActionKYCVerify,
		Borrower: address,
		TxHash:   tx.TxHash,
	})
	return &TxReceipt{TxHash: tx.TxHash}, nil
}

// PriceUpdateResult reports the outcome for one token in a price batch.
type PriceUpdateResult struct {
	Token  string `json:"token"`
	TxHash string `json:"txHash,omitempty"`
	Error  string `json:"error,omitempty"`
}

// UpdateTokenPrices pushes each price as its own transaction, sequentially.
// One failing token does not abort the rest of the batch.
func (s *Service) UpdateTokenPrices(ctx context.Context, prices map[string]string) ([]PriceUpdateResult, error) {
	if len(prices) == 0 {
		return nil, errors.New("no prices supplied")
	}

	results := make([]PriceUpdateResult, 0, len(prices))
	for token, price := range prices {
		units, err := contract.ToSmallestUnit(price)
		if err != nil {
			results = append(results, PriceUpdateResult{Token: token, Error: fmt.Sprintf("invalid price: %v", err)})
			continue
		}

		var tx *chain.TxResult
		err = s.queue.Do(ctx, func(ctx context.Context) error {
			var submitErr error
			tx, submitErr = s.chain.UpdateTokenPrice(ctx, token, units)
			return submitErr
		})
		if err != nil {
			s.log.WithError(err).WithField("token", token).Error("price update failed")
			results = append(results, PriceUpdateResult{Token: token, Error: "price update failed"})
			continue
		}

		results = append(results, PriceUpdateResult{Token: token, TxHash: tx.TxHash})
		s.audit.Log(ctx, audit.Record{
			Action: audit.ActionPriceUpdate,
			Amount: fmt.Sprintf("%s=%s", token, price),
			TxHash: tx.TxHash,
		})
	}
	return results, nil
}

// CalculateRequiredCollateral proxies the contract's pure collateral
// calculation. Amounts are human-readable decimal strings.
func (s *Service) CalculateRequiredCollateral(ctx context.Context, loanAmount string, ratioBps int64) (string, error) {
	units, err := contract.ToSmallestUnit(loanAmount)
	if err != nil {
		return "", fmt.Errorf("invalid loan amount: %w", err)
	}
	required, err := s.chain.CalculateRequiredCollateral(ctx, units, ratioBps)
	if err != nil {
		return "", fmt.Errorf("calculate required collateral: %w", err)
	}
	return contract.FromSmallestUnit(required), nil
}
