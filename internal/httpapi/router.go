package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/line-yield/loan-service/internal/middleware"
)

// RouterDeps carries the middleware the router composes around the handler.
type RouterDeps struct {
	RateLimiter *middleware.RateLimiter
	AdminAuth   *middleware.AdminAuth
	CORS        *middleware.CORS
	Metrics     *middleware.Metrics
	Log         *logrus.Entry
}

// NewRouter builds the full route table. Every /api/loans route is rate
// limited except /health; liquidation, KYC verification, and price updates
// additionally require an admin token.
func NewRouter(h *Handler, deps RouterDeps) *mux.Router {
	r := mux.NewRouter()
	r.Use(deps.CORS.Handler)
	r.Use(mux.MiddlewareFunc(deps.Metrics.Handler))
	r.Use(middleware.RequestLogger(deps.Log))

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/loans").Subrouter()

	limited := func(fn http.HandlerFunc) http.Handler {
		return deps.RateLimiter.Handler(fn)
	}
	admin := func(fn http.HandlerFunc) http.Handler {
		return deps.AdminAuth.RequireAdmin(deps.RateLimiter.Handler(fn))
	}

	// Health is deliberately unthrottled so orchestration probes never 429.
	api.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)

	api.Handle("/types", limited(h.HandleGetLoanTypes)).Methods(http.MethodGet)
	api.Handle("/user/{address}/eligibility/{loanTypeId}", limited(h.HandleCheckEligibility)).Methods(http.MethodGet)
	api.Handle("/user/{address}", limited(h.HandleGetUserLoans)).Methods(http.MethodGet)
	api.Handle("/create", limited(h.HandleCreateLoan)).Methods(http.MethodPost)
	api.Handle("/calculate-collateral", limited(h.HandleCalculateCollateral)).Methods(http.MethodPost)

	api.Handle("/kyc-verify", admin(h.HandleKYCVerify)).Methods(http.MethodPost)
	api.Handle("/update-prices", admin(h.HandleUpdatePrices)).Methods(http.MethodPost)

	// Id-keyed routes go last so the literal routes above win.
	api.Handle("/{loanId}/repay", limited(h.HandleRepayLoan)).Methods(http.MethodPost)
	api.Handle("/{loanId}/add-collateral", limited(h.HandleAddCollateral)).Methods(http.MethodPost)
	api.Handle("/{loanId}/liquidate", admin(h.HandleLiquidateLoan)).Methods(http.MethodPost)
	api.Handle("/{loanId}", limited(h.HandleGetLoan)).Methods(http.MethodGet)

	return r
}
