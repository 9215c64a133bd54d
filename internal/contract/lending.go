package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/core/transaction"
	"github.com/nspcc-dev/neo-go/pkg/wallet"

	"github.com/line-yield/loan-service/internal/chain"
)

// Sentinel errors surfaced by the binding.
var (
	ErrNotInitialized   = errors.New("lending contract not initialized")
	ErrLoanNotFound     = errors.New("loan not found")
	ErrLoanTypeNotFound = errors.New("loan type not found")
)

var addressRE = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// ValidAddress reports whether s is a 0x-prefixed 20-byte script hash.
func ValidAddress(s string) bool {
	return addressRE.MatchString(s)
}

// LendingContract binds the lending pool contract. All state-changing calls
// are signed with the held relayer account and block until the transaction
// is included (relayer pattern: the service pays gas for its users).
type LendingContract struct {
	client       *chain.Client
	signer       *wallet.Account
	contractHash string
}

// New creates an unbound lending contract adapter. Initialize must be called
// before any other operation.
func New(client *chain.Client, signer *wallet.Account) *LendingContract {
	return &LendingContract{client: client, signer: signer}
}

// Initialize binds the adapter to a deployed contract address.
func (l *LendingContract) Initialize(contractAddress string) error {
	if !ValidAddress(contractAddress) {
		return fmt.Errorf("invalid contract address %q", contractAddress)
	}
	l.contractHash = contractAddress
	return nil
}

// Initialized reports whether the adapter is bound to a contract.
func (l *LendingContract) Initialized() bool {
	return l.contractHash != ""
}

// ContractHash returns the bound contract address.
func (l *LendingContract) ContractHash() string {
	return l.contractHash
}

func (l *LendingContract) ready() error {
	if l.contractHash == "" {
		return ErrNotInitialized
	}
	return nil
}

// =============================================================================
// Write Operations
// =============================================================================

func (l *LendingContract) write(ctx context.Context, method string, params ...chain.ContractParam) (*chain.TxResult, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	return l.client.InvokeFunctionWithSignerAndWait(ctx, l.contractHash, method, params, l.signer, transaction.CalledByEntry)
}

// CreateLoan submits a loan creation transaction and waits for inclusion.
// Amounts are in the token's smallest unit.
func (l *LendingContract) CreateLoan(ctx context.Context, loanTypeID int64, principal, collateral *big.Int, borrower string) (*chain.TxResult, error) {
	return l.write(ctx, "createLoan",
		chain.NewIntegerParam(big.NewInt(loanTypeID)),
		chain.NewIntegerParam(principal),
		chain.NewIntegerParam(collateral),
		chain.NewHash160Param(borrower),
	)
}

// RepayLoan submits a repayment transaction and waits for inclusion.
func (l *LendingContract) RepayLoan(ctx context.Context, loanID int64, amount *big.Int) (*chain.TxResult, error) {
	return l.write(ctx, "repayLoan",
		chain.NewIntegerParam(big.NewInt(loanID)),
		chain.NewIntegerParam(amount),
	)
}

// AddCollateral submits an add-collateral transaction and waits for inclusion.
func (l *LendingContract) AddCollateral(ctx context.Context, loanID int64, amount *big.Int) (*chain.TxResult, error) {
	return l.write(ctx, "addCollateral",
		chain.NewIntegerParam(big.NewInt(loanID)),
		chain.NewIntegerParam(amount),
	)
}

// LiquidateLoan submits a liquidation transaction and waits for inclusion.
func (l *LendingContract) LiquidateLoan(ctx context.Context, loanID int64) (*chain.TxResult, error) {
	return l.write(ctx, "liquidateLoan",
		chain.NewIntegerParam(big.NewInt(loanID)),
	)
}

// SetKYCVerified flips the on-chain KYC flag for an address.
func (l *LendingContract) SetKYCVerified(ctx context.Context, address string, verified bool) (*chain.TxResult, error) {
	return l.write(ctx, "setKYCVerified",
		chain.NewHash160Param(address),
		chain.NewBoolParam(verified),
	)
}

// UpdateTokenPrice pushes a token price to the contract's oracle slot.
// Price is in the token's smallest unit.
func (l *LendingContract) UpdateTokenPrice(ctx context.Context, token string, price *big.Int) (*chain.TxResult, error) {
	return l.write(ctx, "updateTokenPrice",
		chain.NewStringParam(token),
		chain.NewIntegerParam(price),
	)
}

// LoanTypeParams describes a loan product tier for administrative seeding.
type LoanTypeParams struct {
	Name                    string
	Description             string
	MinAmount               *big.Int
	MaxAmount               *big.Int
	InterestRateBps         int64
	CollateralRatioBps      int64
	DurationSeconds         int64
	LiquidationThresholdBps int64
	PenaltyRateBps          int64
	RequiresKYC             bool
	MaxBorrowers            int64
}

// CreateLoanType seeds a new loan product tier.
func (l *LendingContract) CreateLoanType(ctx context.Context, p LoanTypeParams) (*chain.TxResult, error) {
	return l.write(ctx, "createLoanType",
		chain.NewStringParam(p.Name),
		chain.NewStringParam(p.Description),
		chain.NewIntegerParam(p.MinAmount),
		chain.NewIntegerParam(p.MaxAmount),
		chain.NewIntegerParam(big.NewInt(p.InterestRateBps)),
		chain.NewIntegerParam(big.NewInt(p.CollateralRatioBps)),
		chain.NewIntegerParam(big.NewInt(p.DurationSeconds)),
		chain.NewIntegerParam(big.NewInt(p.LiquidationThresholdBps)),
		chain.NewIntegerParam(big.NewInt(p.PenaltyRateBps)),
		chain.NewBoolParam(p.RequiresKYC),
		chain.NewIntegerParam(big.NewInt(p.MaxBorrowers)),
	)
}

// =============================================================================
// Read Operations
// =============================================================================

// GetLoan returns a loan by id, or ErrLoanNotFound.
func (l *LendingContract) GetLoan(ctx context.Context, loanID int64) (*Loan, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	loan, err := chain.InvokeStruct(ctx, l.client, l.contractHash, "getLoan", parseLoanOrNotFound,
		chain.NewIntegerParam(big.NewInt(loanID)))
	if err != nil {
		return nil, mapNotFound(err, ErrLoanNotFound)
	}
	return loan, nil
}

// GetLoanType returns a loan type by id, or ErrLoanTypeNotFound.
func (l *LendingContract) GetLoanType(ctx context.Context, loanTypeID int64) (*LoanType, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	lt, err := chain.InvokeStruct(ctx, l.client, l.contractHash, "getLoanType", parseLoanTypeOrNotFound,
		chain.NewIntegerParam(big.NewInt(loanTypeID)))
	if err != nil {
		return nil, mapNotFound(err, ErrLoanTypeNotFound)
	}
	return lt, nil
}

// GetBorrowerLoans returns the loan ids held by a borrower.
func (l *LendingContract) GetBorrowerLoans(ctx context.Context, borrower string) ([]int64, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	items, err := chain.InvokeStruct(ctx, l.client, l.contractHash, "getBorrowerLoans", chain.ParseArray,
		chain.NewHash160Param(borrower))
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(items))
	for i, item := range items {
		id, err := chain.ParseInteger(item)
		if err != nil {
			return nil, fmt.Errorf("parse loan id %d: %w", i, err)
		}
		ids = append(ids, id.Int64())
	}
	return ids, nil
}

// CalculateTotalOwed returns principal plus accrued interest and penalties.
func (l *LendingContract) CalculateTotalOwed(ctx context.Context, loanID int64) (*big.Int, error) {
	return l.readInteger(ctx, "calculateTotalOwed", chain.NewIntegerParam(big.NewInt(loanID)))
}

// CalculateInterest returns the interest accrued so far.
func (l *LendingContract) CalculateInterest(ctx context.Context, loanID int64) (*big.Int, error) {
	return l.readInteger(ctx, "calculateInterest", chain.NewIntegerParam(big.NewInt(loanID)))
}

// CalculatePenalty returns the penalty owed on an overdue loan.
func (l *LendingContract) CalculatePenalty(ctx context.Context, loanID int64) (*big.Int, error) {
	return l.readInteger(ctx, "calculatePenalty", chain.NewIntegerParam(big.NewInt(loanID)))
}

// IsLoanLiquidatable reports whether the loan's collateral ratio is below
// its liquidation threshold.
func (l *LendingContract) IsLoanLiquidatable(ctx context.Context, loanID int64) (bool, error) {
	if err := l.ready(); err != nil {
		return false, err
	}
	return chain.InvokeBool(ctx, l.client, l.contractHash, "isLoanLiquidatable",
		chain.NewIntegerParam(big.NewInt(loanID)))
}

// CalculateRequiredCollateral returns the collateral required for a loan
// amount at the given collateral ratio. Pure function of its inputs.
func (l *LendingContract) CalculateRequiredCollateral(ctx context.Context, amount *big.Int, ratioBps int64) (*big.Int, error) {
	return l.readInteger(ctx, "calculateRequiredCollateral",
		chain.NewIntegerParam(amount),
		chain.NewIntegerParam(big.NewInt(ratioBps)),
	)
}

// GetLoanCount returns the total number of loans ever created.
func (l *LendingContract) GetLoanCount(ctx context.Context) (int64, error) {
	n, err := l.readInteger(ctx, "getLoanCount")
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}

// GetLoanTypeCount returns the number of configured loan types.
func (l *LendingContract) GetLoanTypeCount(ctx context.Context) (int64, error) {
	n, err := l.readInteger(ctx, "getLoanTypeCount")
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}

func (l *LendingContract) readInteger(ctx context.Context, method string, params ...chain.ContractParam) (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	return chain.InvokeInteger(ctx, l.client, l.contractHash, method, params...)
}

// =============================================================================
// Not-Found Mapping
// =============================================================================

var errNullItem = errors.New("null stack item")

func parseLoanOrNotFound(item chain.StackItem) (*Loan, error) {
	if item.Type == "Null" || item.Type == "Any" {
		return nil, errNullItem
	}
	return ParseLoan(item)
}

func parseLoanTypeOrNotFound(item chain.StackItem) (*LoanType, error) {
	if item.Type == "Null" || item.Type == "Any" {
		return nil, errNullItem
	}
	return ParseLoanType(item)
}

// mapNotFound converts null results and contract "not found" faults into the
// given sentinel so callers can distinguish absence from RPC failure.
func mapNotFound(err error, sentinel error) error {
	if errors.Is(err, errNullItem) {
		return sentinel
	}
	if strings.Contains(strings.ToLower(err.Error()), "not found") {
		return sentinel
	}
	return err
}
