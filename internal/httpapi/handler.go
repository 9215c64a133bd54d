package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/line-yield/loan-service/internal/contract"
	"github.com/line-yield/loan-service/internal/loan"
)

// Handler serves the /api/loans surface.
type Handler struct {
	svc       *loan.Service
	log       *logrus.Entry
	startTime time.Time
}

// NewHandler creates the HTTP handler.
func NewHandler(svc *loan.Service, log *logrus.Entry) *Handler {
	return &Handler{svc: svc, log: log, startTime: time.Now()}
}

// =============================================================================
// Loan Type and Eligibility Endpoints
// =============================================================================

// HandleGetLoanTypes lists all loan types.
func (h *Handler) HandleGetLoanTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.svc.GetAllLoanTypes(r.Context())
	if err != nil {
		h.log.WithError(err).Error("loan type listing failed")
		WriteError(w, http.StatusInternalServerError, "Failed to fetch loan types")
		return
	}
	WriteSuccess(w, types)
}

// HandleCheckEligibility evaluates the borrowing rules for one address and
// loan type.
func (h *Handler) HandleCheckEligibility(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	address := vars["address"]
	if !contract.ValidAddress(address) {
		WriteError(w, http.StatusBadRequest, "Invalid address")
		return
	}
	loanTypeID, err := strconv.ParseInt(vars["loanTypeId"], 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid loan type ID")
		return
	}

	WriteSuccess(w, h.svc.CheckEligibility(r.Context(), address, loanTypeID))
}

// HandleCalculateCollateral proxies the contract's pure collateral formula.
func (h *Handler) HandleCalculateCollateral(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LoanAmount         string `json:"loanAmount"`
		CollateralRatioBps int64  `json:"collateralRatioBps"`
	}
	if err := ReadJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !validPositiveAmount(req.LoanAmount) {
		WriteError(w, http.StatusBadRequest, "Invalid loan amount")
		return
	}
	if req.CollateralRatioBps <= 0 {
		WriteError(w, http.StatusBadRequest, "Invalid collateral ratio")
		return
	}

	required, err := h.svc.CalculateRequiredCollateral(r.Context(), req.LoanAmount, req.CollateralRatioBps)
	if err != nil {
		h.log.WithError(err).Error("collateral calculation failed")
		WriteError(w, http.StatusInternalServerError, "Failed to calculate required collateral")
		return
	}

	WriteSuccess(w, map[string]string{"requiredCollateral": required})
}

// =============================================================================
// Loan Query Endpoints
// =============================================================================

// HandleGetUserLoans lists a borrower's loans.
func (h *Handler) HandleGetUserLoans(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !contract.ValidAddress(address) {
		WriteError(w, http.StatusBadRequest, "Invalid address")
		return
	}

	loans, err := h.svc.GetUserLoans(r.Context(), address)
	if err != nil {
		h.log.WithError(err).WithField("address", address).Error("user loan listing failed")
		WriteError(w, http.StatusInternalServerError, "Failed to fetch loans")
		return
	}
	WriteSuccess(w, loans)
}

// HandleGetLoan returns a single loan by id.
func (h *Handler) HandleGetLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := h.loanID(w, r)
	if !ok {
		return
	}

	view, err := h.svc.GetLoan(r.Context(), loanID)
	if err != nil {
		if errors.Is(err, loan.ErrLoanNotFound) {
			WriteError(w, http.StatusNotFound, "Loan not found")
			return
		}
		h.log.WithError(err).WithField("loan_id", loanID).Error("loan fetch failed")
		WriteError(w, http.StatusInternalServerError, "Failed to fetch loan")
		return
	}
	WriteSuccess(w, view)
}

// =============================================================================
// Loan Lifecycle Endpoints
// =============================================================================

// HandleCreateLoan validates the request and creates a loan for an eligible
// borrower.
func (h *Handler) HandleCreateLoan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LoanTypeID         *int64 `json:"loanTypeId"`
		PrincipalRequested string `json:"principalRequested"`
		CollateralAmount   string `json:"collateralAmount"`
		BorrowerAddress    string `json:"borrowerAddress"`
	}
	if err := ReadJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.LoanTypeID == nil || req.PrincipalRequested == "" || req.CollateralAmount == "" || req.BorrowerAddress == "" {
		WriteError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if !contract.ValidAddress(req.BorrowerAddress) {
		WriteError(w, http.StatusBadRequest, "Invalid borrower address")
		return
	}
	if !validPositiveAmount(req.PrincipalRequested) {
		WriteError(w, http.StatusBadRequest, "Invalid principal amount")
		return
	}
	if !validPositiveAmount(req.CollateralAmount) {
		WriteError(w, http.StatusBadRequest, "Invalid collateral amount")
		return
	}

	result, err := h.svc.CreateLoan(r.Context(), *req.LoanTypeID, req.PrincipalRequested, req.CollateralAmount, req.BorrowerAddress)
	if err != nil {
		var ineligible *loan.IneligibleError
		if errors.As(err, &ineligible) {
			WriteError(w, http.StatusBadRequest, ineligible.Reason)
			return
		}
		h.log.WithError(err).WithField("borrower", req.BorrowerAddress).Error("loan creation failed")
		WriteError(w, http.StatusInternalServerError, "Failed to create loan")
		return
	}

	WriteSuccessMessage(w, result, "Loan created successfully")
}

// HandleRepayLoan submits a repayment for a loan.
func (h *Handler) HandleRepayLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := h.loanID(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount string `json:"amount"`
	}
	if err := ReadJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !validPositiveAmount(req.Amount) {
		WriteError(w, http.StatusBadRequest, "Invalid repayment amount")
		return
	}

	receipt, err := h.svc.RepayLoan(r.Context(), loanID, req.Amount)
	if err != nil {
		h.log.WithError(err).WithField("loan_id", loanID).Error("loan repayment failed")
		WriteError(w, http.StatusInternalServerError, "Failed to repay loan")
		return
	}
	WriteSuccessMessage(w, receipt, "Loan repayment successful")
}

// HandleAddCollateral tops up a loan's collateral.
func (h *Handler) HandleAddCollateral(w http.ResponseWriter, r *http.Request) {
	loanID, ok := h.loanID(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount string `json:"amount"`
	}
	if err := ReadJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !validPositiveAmount(req.Amount) {
		WriteError(w, http.StatusBadRequest, "Invalid collateral amount")
		return
	}

	receipt, err := h.svc.AddCollateral(r.Context(), loanID, req.Amount)
	if err != nil {
		h.log.WithError(err).WithField("loan_id", loanID).Error("add collateral failed")
		WriteError(w, http.StatusInternalServerError, "Failed to add collateral")
		return
	}
	WriteSuccessMessage(w, receipt, "Collateral added successfully")
}

// HandleLiquidateLoan liquidates an undercollateralized loan. Admin only.
func (h *Handler) HandleLiquidateLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := h.loanID(w, r)
	if !ok {
		return
	}

	receipt, err := h.svc.LiquidateLoan(r.Context(), loanID)
	if err != nil {
		h.log.WithError(err).WithField("loan_id", loanID).Error("loan liquidation failed")
		WriteError(w, http.StatusInternalServerError, "Failed to liquidate loan")
		return
	}
	WriteSuccessMessage(w, receipt, "Loan liquidated successfully")
}

// =============================================================================
// Administrative Endpoints
// =============================================================================

// HandleKYCVerify sets an address's KYC flag on-chain and in the off-chain
// store. Admin only.
func (h *Handler) HandleKYCVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserAddress string `json:"userAddress"`
		Verified    *bool  `json:"verified"`
	}
	if err := ReadJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserAddress == "" || req.Verified == nil {
		WriteError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if !contract.ValidAddress(req.UserAddress) {
		WriteError(w, http.StatusBadRequest, "Invalid user address")
		return
	}

	receipt, err := h.svc.VerifyKYC(r.Context(), req.UserAddress, *req.Verified)
	if err != nil {
		h.log.WithError(err).WithField("address", req.UserAddress).Error("kyc update failed")
		WriteError(w, http.StatusInternalServerError, "Failed to update KYC status")
		return
	}
	WriteSuccessMessage(w, receipt, "KYC status updated")
}

// HandleUpdatePrices pushes a batch of token prices, one transaction per
// token. Admin only.
func (h *Handler) HandleUpdatePrices(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prices map[string]string `json:"prices"`
	}
	if err := ReadJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Prices) == 0 {
		WriteError(w, http.StatusBadRequest, "No prices provided")
		return
	}

	results, err := h.svc.UpdateTokenPrices(r.Context(), req.Prices)
	if err != nil {
		h.log.WithError(err).Error("price update failed")
		WriteError(w, http.StatusInternalServerError, "Failed to update prices")
		return
	}
	WriteSuccess(w, results)
}

// =============================================================================
// Health
// =============================================================================

// HandleHealth reports service status and contract binding.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, map[string]any{
		"status":          "ok",
		"service":         "loan-service",
		"contractBound":   h.svc.Ready(),
		"contractAddress": h.svc.ContractAddress(),
		"uptimeSeconds":   int64(time.Since(h.startTime).Seconds()),
	})
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) loanID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["loanId"], 10, 64)
	if err != nil || id < 0 {
		WriteError(w, http.StatusBadRequest, "Invalid loan ID")
		return 0, false
	}
	return id, true
}

func validPositiveAmount(s string) bool {
	n, err := contract.ToSmallestUnit(s)
	return err == nil && n.Sign() > 0
}
