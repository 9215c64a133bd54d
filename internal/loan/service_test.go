package loan

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/line-yield/loan-service/internal/audit"
	"github.com/line-yield/loan-service/internal/chain"
	"github.com/line-yield/loan-service/internal/contract"
	"github.com/line-yield/loan-service/internal/database"
	"github.com/line-yield/loan-service/internal/txqueue"
)

const (
	testContract = "0x1234567890abcdef1234567890abcdef12345678"
	testBorrower = "0xaaaabbbbccccddddeeeeffff0000111122223333"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// fakeChain is an in-memory stand-in for the lending contract binding.
type fakeChain struct {
	loanTypes     map[int64]*contract.LoanType
	loans         map[int64]*contract.Loan
	borrowerLoans map[string][]int64
	loanCount     int64
	createAppLog  *chain.ApplicationLog

	writeCalls int
	failWrites bool
	typeErr    error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		loanTypes:     make(map[int64]*contract.LoanType),
		loans:         make(map[int64]*contract.Loan),
		borrowerLoans: make(map[string][]int64),
	}
}

func (f *fakeChain) Initialized() bool    { return true }
func (f *fakeChain) ContractHash() string { return testContract }

func (f *fakeChain) write() (*chain.TxResult, error) {
	f.writeCalls++
	if f.failWrites {
		return nil, errors.New("rpc unavailable")
	}
	return &chain.TxResult{TxHash: "0xfeedbeef", VMState: "HALT"}, nil
}

func (f *fakeChain) CreateLoan(_ context.Context, _ int64, _, _ *big.Int, _ string) (*chain.TxResult, error) {
	tx, err := f.write()
	if err != nil {
		return nil, err
	}
	tx.AppLog = f.createAppLog
	return tx, nil
}

func (f *fakeChain) RepayLoan(context.Context, int64, *big.Int) (*chain.TxResult, error) {
	return f.write()
}

func (f *fakeChain) AddCollateral(context.Context, int64, *big.Int) (*chain.TxResult, error) {
	return f.write()
}

func (f *fakeChain) LiquidateLoan(context.Context, int64) (*chain.TxResult, error) {
	return f.write()
}

func (f *fakeChain) SetKYCVerified(context.Context, string, bool) (*chain.TxResult, error) {
	return f.write()
}

func (f *fakeChain) UpdateTokenPrice(context.Context, string, *big.Int) (*chain.TxResult, error) {
	return f.write()
}

func (f *fakeChain) GetLoan(_ context.Context, id int64) (*contract.Loan, error) {
	l, ok := f.loans[id]
	if !ok {
		return nil, contract.ErrLoanNotFound
	}
	return l, nil
}

func (f *fakeChain) GetLoanType(_ context.Context, id int64) (*contract.LoanType, error) {
	if f.typeErr != nil {
		return nil, f.typeErr
	}
	lt, ok := f.loanTypes[id]
	if !ok {
		return nil, contract.ErrLoanTypeNotFound
	}
	return lt, nil
}

func (f *fakeChain) GetBorrowerLoans(_ context.Context, borrower string) ([]int64, error) {
	return f.borrowerLoans[borrower], nil
}

func (f *fakeChain) CalculateTotalOwed(context.Context, int64) (*big.Int, error) {
	return big.NewInt(10500000000), nil
}

func (f *fakeChain) CalculateInterest(context.Context, int64) (*big.Int, error) {
	return big.NewInt(500000000), nil
}

func (f *fakeChain) CalculatePenalty(context.Context, int64) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeChain) IsLoanLiquidatable(context.Context, int64) (bool, error) {
	return false, nil
}

func (f *fakeChain) CalculateRequiredCollateral(_ context.Context, amount *big.Int, ratioBps int64) (*big.Int, error) {
	out := new(big.Int).Mul(amount, big.NewInt(ratioBps))
	return out.Div(out, big.NewInt(10000)), nil
}

func (f *fakeChain) GetLoanCount(context.Context) (int64, error) {
	return f.loanCount, nil
}

func (f *fakeChain) GetLoanTypeCount(context.Context) (int64, error) {
	return int64(len(f.loanTypes)), nil
}

func quickCash() *contract.LoanType {
	min, _ := contract.ToSmallestUnit("100")
	max, _ := contract.ToSmallestUnit("1000")
	return &contract.LoanType{
		ID:                      big.NewInt(0),
		Name:                    "Quick Cash",
		MinAmount:               min,
		MaxAmount:               max,
		InterestRateBps:         big.NewInt(500),
		CollateralRatioBps:      big.NewInt(15000),
		Duration:                2592000,
		LiquidationThresholdBps: big.NewInt(12000),
		PenaltyRateBps:          big.NewInt(1000),
		Active:                  true,
		MaxBorrowers:            big.NewInt(0),
		CurrentBorrowers:        big.NewInt(0),
	}
}

func newTestService(t *testing.T, fc *fakeChain) (*Service, *database.MemoryStore) {
	t.Helper()
	store := database.NewMemoryStore()
	queue := txqueue.New(testLog(), 8)
	queue.Start()
	t.Cleanup(queue.Stop)

	svc := NewService(fc, store, audit.NewLogger(testLog(), store), queue, testLog())
	return svc, store
}

func loanCreatedLog(t *testing.T, loanID string) *chain.ApplicationLog {
	t.Helper()
	state, err := json.Marshal([]map[string]any{{"type": "Integer", "value": loanID}})
	if err != nil {
		t.Fatal(err)
	}
	return &chain.ApplicationLog{
		Executions: []chain.Execution{{
			VMState: "HALT",
			Notifications: []chain.Notification{{
				Contract:  testContract,
				EventName: "LoanCreated",
				State:     chain.StackItem{Type: "Array", Value: state},
			}},
		}},
	}
}

// =============================================================================
// Create
// =============================================================================

func TestCreateLoanIneligibleNeverTouchesChain(t *testing.T) {
	fc := newFakeChain() // no loan types at all
	svc, store := newTestService(t, fc)

	_, err := svc.CreateLoan(context.Background(), 0, "200", "300", testBorrower)

	var ineligible *IneligibleError
	if !errors.As(err, &ineligible) {
		t.Fatalf("got %v, want IneligibleError", err)
	}
	if ineligible.Reason != ReasonInvalidLoanType {
		t.Errorf("got reason %q", ineligible.Reason)
	}
	if fc.writeCalls != 0 {
		t.Errorf("chain was written %d times for an ineligible borrower", fc.writeCalls)
	}
	if len(store.Audits()) != 0 {
		t.Errorf("unexpected audit records: %v", store.Audits())
	}
}

func TestCreateLoanRecoversIDFromEvent(t *testing.T) {
	fc := newFakeChain()
	fc.loanTypes[0] = quickCash()
	fc.createAppLog = loanCreatedLog(t, "17")
	svc, store := newTestService(t, fc)

	result, err := svc.CreateLoan(context.Background(), 0, "200", "300", testBorrower)
	if err != nil {
		t.Fatalf("CreateLoan: %v", err)
	}
	if result.LoanID != 17 || !result.IDConfirmed {
		t.Errorf("got loanID=%d confirmed=%v", result.LoanID, result.IDConfirmed)
	}
	if result.TxHash == "" {
		t.Error("missing tx hash")
	}

	audits := store.Audits()
	if len(audits) != 1 || audits[0].Action != audit.ActionCreate {
		t.Fatalf("got audits %v", audits)
	}
	if audits[0].LoanID != 17 || audits[0].Amount != "200" {
		t.Errorf("audit record wrong: %+v", audits[0])
	}
}

func TestCreateLoanCounterFallbackIsUnconfirmed(t *testing.T) {
	fc := newFakeChain()
	fc.loanTypes[0] = quickCash()
	fc.loanCount = 5
	// App log present but without a LoanCreated event.
	fc.createAppLog = &chain.ApplicationLog{Executions: []chain.Execution{{VMState: "HALT"}}}
	svc, _ := newTestService(t, fc)

	result, err := svc.CreateLoan(context.Background(), 0, "200", "300", testBorrower)
	if err != nil {
		t.Fatalf("CreateLoan: %v", err)
	}
	if result.LoanID != 4 {
		t.Errorf("got loanID %d, want 4", result.LoanID)
	}
	if result.IDConfirmed {
		t.Error("counter-derived id must be unconfirmed")
	}
}

func TestCreateLoanChainFailure(t *testing.T) {
	fc := newFakeChain()
	fc.loanTypes[0] = quickCash()
	fc.failWrites = true
	svc, store := newTestService(t, fc)

	if _, err := svc.CreateLoan(context.Background(), 0, "200", "300", testBorrower); err == nil {
		t.Fatal("expected error")
	}
	if len(store.Audits()) != 0 {
		t.Error("failed creation must not be audited as success")
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestRepayLoanAudits(t *testing.T) {
	fc := newFakeChain()
	svc, store := newTestService(t, fc)

	receipt, err := svc.RepayLoan(context.Background(), 5, "50")
	if err != nil {
		t.Fatalf("RepayLoan: %v", err)
	}
	if receipt.TxHash == "" {
		t.Error("missing tx hash")
	}

	audits := store.Audits()
	if len(audits) != 1 || audits[0].Action != audit.ActionRepay || audits[0].LoanID != 5 {
		t.Fatalf("got audits %+v", audits)
	}
}

func TestAddCollateralAudits(t *testing.T) {
	fc := newFakeChain()
	svc, store := newTestService(t, fc)

	if _, err := svc.AddCollateral(context.Background(), 5, "25"); err != nil {
		t.Fatalf("AddCollateral: %v", err)
	}
	audits := store.Audits()
	if len(audits) != 1 || audits[0].Action != audit.ActionAddCollateral {
		t.Fatalf("got audits %+v", audits)
	}
}

func TestLiquidateLoanAudits(t *testing.T) {
	fc := newFakeChain()
	svc, store := newTestService(t, fc)

	if _, err := svc.LiquidateLoan(context.Background(), 9); err != nil {
		t.Fatalf("LiquidateLoan: %v", err)
	}
	audits := store.Audits()
	if len(audits) != 1 || audits[0].Action != audit.ActionLiquidate || audits[0].LoanID != 9 {
		t.Fatalf("got audits %+v", audits)
	}
}

func TestRepayLoanRejectsMalformedAmount(t *testing.T) {
	fc := newFakeChain()
	svc, _ := newTestService(t, fc)

	if _, err := svc.RepayLoan(context.Background(), 5, "abc"); err == nil {
		t.Fatal("expected error")
	}
	if fc.writeCalls != 0 {
		t.Error("malformed amount must not reach the chain")
	}
}

// =============================================================================
// KYC and Prices
// =============================================================================

func TestVerifyKYCMirrorsToStore(t *testing.T) {
	fc := newFakeChain()
	svc, store := newTestService(t, fc)

	if _, err := svc.VerifyKYC(context.Background(), testBorrower, true); err != nil {
		t.Fatalf("VerifyKYC: %v", err)
	}
	verified, err := store.IsKYCVerified(context.Background(), testBorrower)
	if err != nil || !verified {
		t.Errorf("mirror missing: verified=%v err=%v", verified, err)
	}
	if fc.writeCalls != 1 {
		t.Errorf("got %d chain writes", fc.writeCalls)
	}
}

func TestUpdateTokenPricesPartialFailure(t *testing.T) {
	fc := newFakeChain()
	svc, _ := newTestService(t, fc)

	results, err := svc.UpdateTokenPrices(context.Background(), map[string]string{
		"USDT": "1.0",
		"BAD":  "not-a-price",
	})
	if err != nil {
		t.Fatalf("UpdateTokenPrices: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}

	var okCount, errCount int
	for _, r := range results {
		if r.Error != "" {
			errCount++
		} else if r.TxHash != "" {
			okCount++
		}
	}
	if okCount != 1 || errCount != 1 {
		t.Errorf("got ok=%d err=%d", okCount, errCount)
	}
	if fc.writeCalls != 1 {
		t.Errorf("got %d chain writes, want 1", fc.writeCalls)
	}
}

func TestUpdateTokenPricesEmpty(t *testing.T) {
	svc, _ := newTestService(t, newFakeChain())
	if _, err := svc.UpdateTokenPrices(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty batch")
	}
}

// =============================================================================
// Queries
// =============================================================================

func TestGetLoanNotFound(t *testing.T) {
	svc, _ := newTestService(t, newFakeChain())
	if _, err := svc.GetLoan(context.Background(), 99999); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("got %v, want ErrLoanNotFound", err)
	}
}

func TestGetLoanDerivedFields(t *testing.T) {
	fc := newFakeChain()
	fc.loanTypes[0] = quickCash()
	principal, _ := contract.ToSmallestUnit("100")
	collateral, _ := contract.ToSmallestUnit("150")
	fc.loans[3] = &contract.Loan{
		ID:              big.NewInt(3),
		LoanTypeID:      big.NewInt(0),
		Borrower:        testBorrower,
		Principal:       principal,
		Collateral:      collateral,
		RepaidAmount:    big.NewInt(0),
		Status:          contract.StatusActive,
		InterestAccrued: big.NewInt(0),
	}
	svc, _ := newTestService(t, fc)

	view, err := svc.GetLoan(context.Background(), 3)
	if err != nil {
		t.Fatalf("GetLoan: %v", err)
	}
	if view.Principal != "100" || view.Collateral != "150" {
		t.Errorf("amounts wrong: %+v", view)
	}
	if view.TotalOwed != "105" || view.InterestOwed != "5" {
		t.Errorf("derived amounts wrong: totalOwed=%s interestOwed=%s", view.TotalOwed, view.InterestOwed)
	}
	if view.Status != "Active" || view.LoanTypeName != "Quick Cash" {
		t.Errorf("metadata wrong: %+v", view)
	}
}

func TestGetUserLoans(t *testing.T) {
	fc := newFakeChain()
	fc.loanTypes[0] = quickCash()
	principal, _ := contract.ToSmallestUnit("100")
	fc.loans[1] = &contract.Loan{
		ID: big.NewInt(1), LoanTypeID: big.NewInt(0), Borrower: testBorrower,
		Principal: principal, Collateral: principal, RepaidAmount: big.NewInt(0),
		Status: contract.StatusRepaid, InterestAccrued: big.NewInt(0),
	}
	fc.borrowerLoans[testBorrower] = []int64{1}
	svc, _ := newTestService(t, fc)

	loans, err := svc.GetUserLoans(context.Background(), testBorrower)
	if err != nil {
		t.Fatalf("GetUserLoans: %v", err)
	}
	if len(loans) != 1 || loans[0].Status != "Repaid" {
		t.Fatalf("got %+v", loans)
	}
	// Closed loans skip the derived-amount reads.
	if loans[0].TotalOwed != "0" {
		t.Errorf("closed loan owes %s", loans[0].TotalOwed)
	}
}

func TestGetAllLoanTypes(t *testing.T) {
	fc := newFakeChain()
	fc.loanTypes[0] = quickCash()
	svc, _ := newTestService(t, fc)

	types, err := svc.GetAllLoanTypes(context.Background())
	if err != nil {
		t.Fatalf("GetAllLoanTypes: %v", err)
	}
	if len(types) != 1 || types[0].Name != "Quick Cash" {
		t.Fatalf("got %+v", types)
	}
	if types[0].MinAmount != "100" || types[0].MaxAmount != "1000" {
		t.Errorf("amount bounds wrong: %+v", types[0])
	}
}
