package loan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/line-yield/loan-service/internal/contract"
)

// LoanTypeView is the API representation of a product tier. Amount bounds
// are human-readable decimal strings.
type LoanTypeView struct {
	ID                      int64  `json:"id"`
	Name                    string `json:"name"`
	Description             string `json:"description"`
	MinAmount               string `json:"minAmount"`
	MaxAmount               string `json:"maxAmount"`
	InterestRateBps         int64  `json:"interestRateBps"`
	CollateralRatioBps      int64  `json:"collateralRatioBps"`
	DurationSeconds         uint64 `json:"durationSeconds"`
	LiquidationThresholdBps int64  `json:"liquidationThresholdBps"`
	PenaltyRateBps          int64  `json:"penaltyRateBps"`
	Active                  bool   `json:"active"`
	RequiresKYC             bool   `json:"requiresKyc"`
	MaxBorrowers            int64  `json:"maxBorrowers"`
	CurrentBorrowers        int64  `json:"currentBorrowers"`
}

// LoanView is the API representation of one loan, including the derived
// amounts recomputed from the contract on every query.
type LoanView struct {
	LoanID        int64  `json:"loanId"`
	LoanTypeID    int64  `json:"loanTypeId"`
	LoanTypeName  string `json:"loanTypeName,omitempty"`
	Borrower      string `json:"borrower"`
	Principal     string `json:"principal"`
	Collateral    string `json:"collateral"`
	StartTime     uint64 `json:"startTime"`
	RepaidAmount  string `json:"repaidAmount"`
	LastPayment   uint64 `json:"lastPayment"`
	Status        string `json:"status"`
	TotalOwed     string `json:"totalOwed"`
	InterestOwed  string `json:"interestOwed"`
	PenaltyOwed   string `json:"penaltyOwed"`
	DaysRemaining int64  `json:"daysRemaining"`
	Liquidatable  bool   `json:"liquidatable"`
}

// GetAllLoanTypes lists every configured loan type.
func (s *Service) GetAllLoanTypes(ctx context.Context) ([]LoanTypeView, error) {
	count, err := s.chain.GetLoanTypeCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("get loan type count: %w", err)
	}

	views := make([]LoanTypeView, 0, count)
	for id := int64(0); id < count; id++ {
		lt, err := s.chain.GetLoanType(ctx, id)
		if err != nil {
			if errors.Is(err, contract.ErrLoanTypeNotFound) {
				continue
			}
			return nil, fmt.Errorf("get loan type %d: %w", id, err)
		}
		views = append(views, loanTypeView(lt))
	}
	return views, nil
}

// GetUserLoans lists a borrower's loans with derived amounts. One chain
// round trip per field per loan; the contract has no batch query surface.
func (s *Service) GetUserLoans(ctx context.Context, borrower string) ([]LoanView, error) {
	ids, err := s.chain.GetBorrowerLoans(ctx, borrower)
	if err != nil {
		return nil, fmt.Errorf("get borrower loans: %w", err)
	}

	views := make([]LoanView, 0, len(ids))
	for _, id := range ids {
		view, err := s.GetLoan(ctx, id)
		if err != nil {
			if errors.Is(err, ErrLoanNotFound) {
				continue
			}
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

// GetLoan returns one loan with derived amounts, or ErrLoanNotFound.
func (s *Service) GetLoan(ctx context.Context, loanID int64) (*LoanView, error) {
	l, err := s.chain.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	view := &LoanView{
		LoanID:       loanID,
		LoanTypeID:   l.LoanTypeID.Int64(),
		Borrower:     l.Borrower,
		Principal:    contract.FromSmallestUnit(l.Principal),
		Collateral:   contract.FromSmallestUnit(l.Collateral),
		StartTime:    l.StartTime,
		RepaidAmount: contract.FromSmallestUnit(l.RepaidAmount),
		LastPayment:  l.LastPayment,
		Status:       l.Status.String(),
		TotalOwed:    "0",
		InterestOwed: "0",
		PenaltyOwed:  "0",
	}

	if lt, err := s.chain.GetLoanType(ctx, view.LoanTypeID); err == nil {
		view.LoanTypeName = lt.Name
		view.DaysRemaining = daysRemaining(l.StartTime, lt.Duration)
	}

	if l.Status != contract.StatusActive {
		return view, nil
	}

	totalOwed, err := s.chain.CalculateTotalOwed(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("calculate total owed for loan %d: %w", loanID, err)
	}
	interest, err := s.chain.CalculateInterest(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("calculate interest for loan %d: %w", loanID, err)
	}
	penalty, err := s.chain.CalculatePenalty(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("calculate penalty for loan %d: %w", loanID, err)
	}
	liquidatable, err := s.chain.IsLoanLiquidatable(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("check liquidatable for loan %d: %w", loanID, err)
	}

	view.TotalOwed = contract.FromSmallestUnit(totalOwed)
	view.InterestOwed = contract.FromSmallestUnit(interest)
	view.PenaltyOwed = contract.FromSmallestUnit(penalty)
	view.Liquidatable = liquidatable
	return view, nil
}

func loanTypeView(lt *contract.LoanType) LoanTypeView {
	return LoanTypeView{
		ID:                      lt.ID.Int64(),
		Name:                    lt.Name,
		Description:             lt.Description,
		MinAmount:               contract.FromSmallestUnit(lt.MinAmount),
		MaxAmount:               contract.FromSmallestUnit(lt.MaxAmount),
		InterestRateBps:         lt.InterestRateBps.Int64(),
		CollateralRatioBps:      lt.CollateralRatioBps.Int64(),
		DurationSeconds:         lt.Duration,
		LiquidationThresholdBps: lt.LiquidationThresholdBps.Int64(),
		PenaltyRateBps:          lt.PenaltyRateBps.Int64(),
		Active:                  lt.Active,
		RequiresKYC:             lt.RequiresKYC,
		MaxBorrowers:            lt.MaxBorrowers.Int64(),
		CurrentBorrowers:        lt.CurrentBorrowers.Int64(),
	}
}

func daysRemaining(startTime, durationSeconds uint64) int64 {
	if startTime == 0 || durationSeconds == 0 {
		return 0
	}
	end := int64(startTime) + int64(durationSeconds)
	remaining := end - time.Now().Unix()
	if remaining <= 0 {
		return 0
	}
	return remaining / 86400
}
