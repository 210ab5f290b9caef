// Package server exposes the engine over HTTP/JSON. Mutating endpoints are
// serialized through one mutex so callers queue instead of racing the
// single-writer ledger.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"SynthLedger/internal/engine"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/observability"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/query"
)

// Server is the HTTP front of the ledger.
type Server struct {
	router *mux.Router
	engine *engine.Engine
	query  *query.Service
	health *observability.HealthChecker
	logger zerolog.Logger

	// opMu queues mutating requests; the engine itself rejects overlap.
	opMu sync.Mutex
}

func New(eng *engine.Engine, qs *query.Service, health *observability.HealthChecker, logger zerolog.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		engine: eng,
		query:  qs,
		health: health,
		logger: logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.health.LivenessHandler).Methods("GET")
	s.router.HandleFunc("/readyz", s.health.ReadinessHandler).Methods("GET")

	api := s.router.PathPrefix("/v1").Subrouter()

	api.HandleFunc("/collateral/deposit", s.handleDeposit).Methods("POST")
	api.HandleFunc("/collateral/redeem", s.handleRedeem).Methods("POST")
	api.HandleFunc("/debt/mint", s.handleMint).Methods("POST")
	api.HandleFunc("/debt/burn", s.handleBurn).Methods("POST")
	api.HandleFunc("/positions/open", s.handleOpen).Methods("POST")
	api.HandleFunc("/positions/close", s.handleClose).Methods("POST")
	api.HandleFunc("/liquidations", s.handleLiquidate).Methods("POST")

	api.HandleFunc("/positions/{account}", s.handlePosition).Methods("GET")
	api.HandleFunc("/positions/{account}/health", s.handleHealthFactor).Methods("GET")
	api.HandleFunc("/positions/{account}/operations", s.handleOperations).Methods("GET")
	api.HandleFunc("/liquidations", s.handleLiquidations).Methods("GET")
	api.HandleFunc("/assets", s.handleAssets).Methods("GET")
	api.HandleFunc("/assets/{asset}/value", s.handleAssetValue).Methods("GET")
	api.HandleFunc("/constants", s.handleConstants).Methods("GET")

	s.router.Use(s.loggingMiddleware)
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until the context ends, then drains with a grace period.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// --- mutating endpoints ---

type depositRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	account, ok := s.decodeInto(w, r, &req, &req.Account)
	if !ok {
		return
	}
	amount, ok := s.parseAmount(w, req.Amount)
	if !ok {
		return
	}

	s.opMu.Lock()
	err := s.engine.DepositCollateral(account, req.Asset, amount)
	s.opMu.Unlock()
	s.finishOperation(w, account, err)
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	account, ok := s.decodeInto(w, r, &req, &req.Account)
	if !ok {
		return
	}
	amount, ok := s.parseAmount(w, req.Amount)
	if !ok {
		return
	}

	s.opMu.Lock()
	err := s.engine.RedeemCollateral(account, req.Asset, amount)
	s.opMu.Unlock()
	s.finishOperation(w, account, err)
}

type debtRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req debtRequest
	account, ok := s.decodeInto(w, r, &req, &req.Account)
	if !ok {
		return
	}
	amount, ok := s.parseAmount(w, req.Amount)
	if !ok {
		return
	}

	s.opMu.Lock()
	err := s.engine.Mint(account, amount)
	s.opMu.Unlock()
	s.finishOperation(w, account, err)
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	var req debtRequest
	account, ok := s.decodeInto(w, r, &req, &req.Account)
	if !ok {
		return
	}
	amount, ok := s.parseAmount(w, req.Amount)
	if !ok {
		return
	}

	s.opMu.Lock()
	err := s.engine.Burn(account, amount)
	s.opMu.Unlock()
	s.finishOperation(w, account, err)
}

type openRequest struct {
	Account          string `json:"account"`
	Asset            string `json:"asset"`
	CollateralAmount string `json:"collateral_amount"`
	MintAmount       string `json:"mint_amount"`
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	account, ok := s.decodeInto(w, r, &req, &req.Account)
	if !ok {
		return
	}
	collateral, ok := s.parseAmount(w, req.CollateralAmount)
	if !ok {
		return
	}
	mint, ok := s.parseAmount(w, req.MintAmount)
	if !ok {
		return
	}

	s.opMu.Lock()
	err := s.engine.DepositCollateralAndMint(account, req.Asset, collateral, mint)
	s.opMu.Unlock()
	s.finishOperation(w, account, err)
}

type closeRequest struct {
	Account          string `json:"account"`
	Asset            string `json:"asset"`
	CollateralAmount string `json:"collateral_amount"`
	BurnAmount       string `json:"burn_amount"`
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	account, ok := s.decodeInto(w, r, &req, &req.Account)
	if !ok {
		return
	}
	collateral, ok := s.parseAmount(w, req.CollateralAmount)
	if !ok {
		return
	}
	burn, ok := s.parseAmount(w, req.BurnAmount)
	if !ok {
		return
	}

	s.opMu.Lock()
	err := s.engine.RedeemCollateralAndBurn(account, req.Asset, collateral, burn)
	s.opMu.Unlock()
	s.finishOperation(w, account, err)
}

type liquidateRequest struct {
	Liquidator  string `json:"liquidator"`
	Account     string `json:"account"`
	Asset       string `json:"asset"`
	DebtToCover string `json:"debt_to_cover"`
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	liquidator, err := uuid.Parse(req.Liquidator)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid liquidator id")
		return
	}
	account, err := uuid.Parse(req.Account)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	cover, ok := s.parseAmount(w, req.DebtToCover)
	if !ok {
		return
	}

	s.opMu.Lock()
	opErr := s.engine.Liquidate(liquidator, account, req.Asset, cover)
	s.opMu.Unlock()
	s.finishOperation(w, account, opErr)
}

// --- read endpoints ---

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	account, ok := s.pathAccount(w, r)
	if !ok {
		return
	}
	pos, err := s.query.Position(account)
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pos)
}

func (s *Server) handleHealthFactor(w http.ResponseWriter, r *http.Request) {
	account, ok := s.pathAccount(w, r)
	if !ok {
		return
	}
	ratio, err := s.engine.HealthFactor(account)
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"account":       account.String(),
		"health_factor": ratio.String(),
	})
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	account, ok := s.pathAccount(w, r)
	if !ok {
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	var before *time.Time
	if v := r.URL.Query().Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid before timestamp")
			return
		}
		before = &t
	}

	records, err := s.query.Operations(r.Context(), account, limit, before)
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"operations": records})
}

func (s *Server) handleLiquidations(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := s.query.Liquidations(r.Context(), limit)
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"liquidations": records})
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"assets": s.engine.ConfiguredAssets()})
}

func (s *Server) handleAssetValue(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]
	amount, ok := s.parseAmount(w, r.URL.Query().Get("amount"))
	if !ok {
		return
	}

	usd, err := s.engine.UsdValue(asset, amount)
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"asset":     asset,
		"amount":    amount.String(),
		"usd_value": usd.String(),
	})
}

func (s *Server) handleConstants(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.query.Constants())
}

// --- helpers ---

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

// decodeInto decodes the body and parses the account field in one step.
func (s *Server) decodeInto(w http.ResponseWriter, r *http.Request, dst interface{}, accountField *string) (uuid.UUID, bool) {
	if !s.decodeBody(w, r, dst) {
		return uuid.Nil, false
	}
	account, err := uuid.Parse(*accountField)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid account id")
		return uuid.Nil, false
	}
	return account, true
}

func (s *Server) parseAmount(w http.ResponseWriter, raw string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "amount must be a base-10 integer")
		return nil, false
	}
	return amount, true
}

func (s *Server) pathAccount(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	account, err := uuid.Parse(mux.Vars(r)["account"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid account id")
		return uuid.Nil, false
	}
	return account, true
}

func (s *Server) finishOperation(w http.ResponseWriter, account uuid.UUID, err error) {
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "applied",
		"account": account.String(),
	})
}

// writeOperationError maps engine errors onto HTTP statuses. Validation
// failures are 400, domain rejections 409, oracle failures 503.
func (s *Server) writeOperationError(w http.ResponseWriter, err error) {
	var (
		notAllowed   *engine.TokenNotAllowedError
		broken       *engine.HealthFactorBrokenError
		healthy      *engine.HealthFactorOkError
		notImproved  *engine.HealthFactorNotImprovedError
		insufficient *ledger.InsufficientCollateralError
		debt         *ledger.InsufficientDebtError
		stale        *oracle.StalePriceError
		invalid      *oracle.InvalidPriceError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrNeedsMoreThanZero), errors.As(err, &notAllowed):
		status = http.StatusBadRequest
	case errors.As(err, &broken), errors.As(err, &healthy), errors.As(err, &notImproved),
		errors.As(err, &insufficient), errors.As(err, &debt):
		status = http.StatusConflict
	case errors.As(err, &stale), errors.As(err, &invalid), errors.Is(err, oracle.ErrUnknownFeed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrReentrantCall):
		status = http.StatusServiceUnavailable
	case errors.Is(err, query.ErrNoHistory):
		status = http.StatusNotImplemented
	}

	s.writeError(w, status, err.Error())
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("response encode failed")
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}
