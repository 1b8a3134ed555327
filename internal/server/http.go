package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"RainyDayLedger/internal/core"
	"RainyDayLedger/internal/event"
	"RainyDayLedger/internal/money"
	"RainyDayLedger/internal/query"
	"RainyDayLedger/internal/state"
	"RainyDayLedger/internal/token"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr        string
	APIKey      string // Guards /api/admin/* routes; empty disables auth
	CORSOrigins []string
	// SubmitTimeout bounds how long a handler waits on the core loop
	SubmitTimeout time.Duration
}

// Server is the HTTP/JSON API surface. Write endpoints build typed events
// and submit them to the core command loop; read endpoints serve from the
// projection tables via the query service.
type Server struct {
	httpServer *http.Server
	commands   chan<- core.Command
	queries    *query.QueryService
	stableTok  token.Token
	faucet     *token.MemoryToken // nil unless the dev faucet is enabled
	cfg        Config
	log        zerolog.Logger

	// Next API source sequence; seeded from the core after replay.
	// Guarded by seqMu: submit assigns the number atomically with a
	// successful enqueue, so an abandoned send never consumes one and
	// concurrent submissions cannot arrive out of order.
	seqMu  sync.Mutex
	apiSeq int64
}

func NewServer(
	cfg Config,
	commands chan<- core.Command,
	queries *query.QueryService,
	stableTok token.Token,
	faucet *token.MemoryToken,
	nextAPISeq int64,
	log zerolog.Logger,
) *Server {
	if cfg.SubmitTimeout == 0 {
		cfg.SubmitTimeout = 10 * time.Second
	}

	s := &Server{
		commands:  commands,
		queries:   queries,
		stableTok: stableTok,
		faucet:    faucet,
		cfg:       cfg,
		log:       log.With().Str("component", "http").Logger(),
		apiSeq:    nextAPISeq,
	}

	mux := http.NewServeMux()

	// Health (no auth)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	// Catalog
	mux.HandleFunc("GET /api/pricing", s.handleGetPricing)

	// Policies
	mux.HandleFunc("POST /api/policies", s.handleBuyPolicy)
	mux.HandleFunc("GET /api/policies/{id}", s.handleGetPolicy)
	mux.HandleFunc("GET /api/policies/count", s.handleGetPolicyCount)
	mux.HandleFunc("GET /api/holders/{address}/policies", s.handleGetHolderPolicies)
	mux.HandleFunc("GET /api/holders/{address}/journal", s.handleGetJournal)

	// Investments
	mux.HandleFunc("POST /api/investments", s.handleInvest)
	mux.HandleFunc("GET /api/investors/{address}", s.handleGetInvestment)

	// Pool
	mux.HandleFunc("GET /api/pool", s.handleGetPool)

	// Token balances and dev faucet
	mux.HandleFunc("GET /api/accounts/{address}/tokens", s.handleGetTokens)
	if faucet != nil {
		mux.HandleFunc("POST /api/faucet", s.handleFaucet)
	}

	// Admin
	mux.HandleFunc("PUT /api/admin/pricing/{tier}", s.handleSetPrice)
	mux.HandleFunc("POST /api/admin/payouts", s.handlePayout)
	mux.HandleFunc("POST /api/admin/expirations", s.handleExpirePolicy)
	mux.HandleFunc("GET /api/admin/integrity", s.handleIntegrity)

	var h http.Handler = mux
	h = s.adminAuth(h)
	h = s.logging(h)
	h = s.cors(h)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the full middleware-wrapped handler chain.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.httpServer.Addr).Msg("listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// --- Write handlers ---

type buyPolicyRequest struct {
	Buyer string `json:"buyer"`
	Tier  uint8  `json:"tier"`
}

type buyPolicyResponse struct {
	PolicyID int64 `json:"policy_id"`
}

func (s *Server) handleBuyPolicy(w http.ResponseWriter, r *http.Request) {
	var req buyPolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	buyer, ok := parseAddress(req.Buyer)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid buyer address")
		return
	}

	evt := &event.PolicyPurchased{
		EventID:   uuid.New(),
		Buyer:     buyer,
		Tier:      req.Tier,
		Asset:     "USDC",
		Origin:    event.SourceAPI,
		Timestamp: time.Now().UTC(),
	}

	result, err := s.submit(r.Context(), evt)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, buyPolicyResponse{PolicyID: result.PolicyID})
}

// investRequest carries the amount either as int64 base units or as a
// decimal token string ("2000", "2000.5"); the string form wins.
type investRequest struct {
	Investor     string `json:"investor"`
	Amount       int64  `json:"amount"`
	AmountTokens string `json:"amount_tokens"`
}

func (s *Server) handleInvest(w http.ResponseWriter, r *http.Request) {
	var req investRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	investor, ok := parseAddress(req.Investor)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid investor address")
		return
	}

	if req.AmountTokens != "" {
		units, err := money.ParseAmount(req.AmountTokens)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid amount_tokens: %v", err))
			return
		}
		req.Amount = units
	}

	evt := &event.InvestmentMade{
		EventID:   uuid.New(),
		Investor:  investor,
		Asset:     "USDC",
		Amount:    req.Amount,
		Origin:    event.SourceAPI,
		Timestamp: time.Now().UTC(),
	}

	if _, err := s.submit(r.Context(), evt); err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type setPriceRequest struct {
	Caller string `json:"caller"`
	Price  int64  `json:"price"`
}

func (s *Server) handleSetPrice(w http.ResponseWriter, r *http.Request) {
	tierVal, err := strconv.ParseUint(r.PathValue("tier"), 10, 8)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tier")
		return
	}

	var req setPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	evt := &event.TierPriceUpdated{
		EventID:   uuid.New(),
		Caller:    caller,
		Tier:      uint8(tierVal),
		NewPrice:  req.Price,
		Origin:    event.SourceAPI,
		Timestamp: time.Now().UTC(),
	}

	if _, err := s.submit(r.Context(), evt); err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"tier": tierVal, "price": req.Price})
}

type payoutRequest struct {
	PolicyID int64 `json:"policy_id"`
	Amount   int64 `json:"amount"`
}

// handlePayout books an approved claim payout. Normally claims arrive
// over the oracle stream; this endpoint covers manual adjudication.
func (s *Server) handlePayout(w http.ResponseWriter, r *http.Request) {
	var req payoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	evt := &event.ClaimPaid{
		EventID:   uuid.New(),
		PolicyID:  req.PolicyID,
		Asset:     "USDC",
		Amount:    req.Amount,
		Origin:    event.SourceAPI,
		Timestamp: time.Now().UTC(),
	}

	if _, err := s.submit(r.Context(), evt); err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"policy_id": req.PolicyID, "amount": req.Amount})
}

type expirePolicyRequest struct {
	PolicyID int64 `json:"policy_id"`
}

func (s *Server) handleExpirePolicy(w http.ResponseWriter, r *http.Request) {
	var req expirePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	evt := &event.PolicyExpired{
		EventID:   uuid.New(),
		PolicyID:  req.PolicyID,
		Origin:    event.SourceAPI,
		Timestamp: time.Now().UTC(),
	}

	if _, err := s.submit(r.Context(), evt); err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"policy_id": req.PolicyID, "status": "expired"})
}

type faucetRequest struct {
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
}

// handleFaucet mints dev tokens and pre-approves the ledger custody
// account so a subsequent purchase or investment can pull them.
func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	var req faucetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	recipient, ok := parseAddress(req.Recipient)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid recipient address")
		return
	}

	if err := s.faucet.Mint(recipient, req.Amount); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.faucet.Approve(recipient, s.faucet.Operator(), req.Amount); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	balance, _ := s.faucet.BalanceOf(r.Context(), recipient)
	writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

// --- Read handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetPricing(w http.ResponseWriter, r *http.Request) {
	resp, err := s.queries.GetPricing(r.Context())
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid policy id")
		return
	}

	resp, err := s.queries.GetPolicy(r.Context(), id)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	if resp == nil {
		writeError(w, http.StatusNotFound, "policy not found")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetPolicyCount(w http.ResponseWriter, r *http.Request) {
	resp, err := s.queries.GetPolicyCount(r.Context())
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetHolderPolicies(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(r.PathValue("address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	policies, err := s.queries.GetPoliciesOf(r.Context(), addr.Hex())
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	if policies == nil {
		policies = []query.PolicyResponse{}
	}
	writeJSON(w, http.StatusOK, policies)
}

func (s *Server) handleGetInvestment(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(r.PathValue("address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	resp, err := s.queries.GetInvestment(r.Context(), addr.Hex())
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	resp, err := s.queries.GetPool(r.Context(), 1) // USDC
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetJournal(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(r.PathValue("address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	var afterSeq *int64
	if v := r.URL.Query().Get("after_sequence"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			afterSeq = &n
		}
	}

	entries, err := s.queries.GetJournalHistory(r.Context(), addr.Hex(), limit, afterSeq)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	if entries == nil {
		entries = []query.JournalHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGetTokens(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(r.PathValue("address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	balance, err := s.stableTok.BalanceOf(r.Context(), addr)
	if err != nil {
		writeError(w, http.StatusBadGateway, "token lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": addr.Hex(),
		"balance": balance,
		"asset":   "USDC",
	})
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.queries.VerifyIntegrity(r.Context())
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// --- Submission plumbing ---

// submit stamps the event with the next API source sequence, sends it to
// the core command loop and waits for the outcome. The sequence is only
// consumed once the command is enqueued; a timed-out send leaves the
// counter untouched, otherwise the partition would carry a permanent gap.
func (s *Server) submit(ctx context.Context, evt event.Event) (core.Result, error) {
	reply := make(chan core.CommandOutcome, 1)
	cmd := core.Command{Event: evt, Reply: reply}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	defer cancel()

	s.seqMu.Lock()
	evt.SetSourceSequence(s.apiSeq)
	select {
	case s.commands <- cmd:
		s.apiSeq++
		s.seqMu.Unlock()
	case <-ctx.Done():
		s.seqMu.Unlock()
		return core.Result{PolicyID: -1}, fmt.Errorf("core busy: %w", ctx.Err())
	}

	select {
	case outcome := <-reply:
		return outcome.Result, outcome.Err
	case <-ctx.Done():
		return core.Result{PolicyID: -1}, fmt.Errorf("core timeout: %w", ctx.Err())
	}
}

// writeDomainError maps core rejections to HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, state.ErrInvalidTier), errors.Is(err, state.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, state.ErrAccessDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, state.ErrPolicyNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, state.ErrPolicyNotActive), errors.Is(err, state.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, state.ErrInsufficientFunds),
		errors.Is(err, token.ErrInsufficientAllowance),
		errors.Is(err, token.ErrInsufficientBalance):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.log.Error().Err(err).Msg("event submission failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeQueryError(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("query failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

// --- Middleware ---

// adminAuth guards /api/admin/ routes with a static API key.
// Empty key disables the check (local development).
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey == "" || !strings.HasPrefix(r.URL.Path, "/api/admin/") {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("X-API-Key")
		if key == "" {
			if auth := r.Header.Get("Authorization"); auth != "" {
				parts := strings.SplitN(auth, " ", 2)
				if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
					key = strings.TrimSpace(parts[1])
				}
			}
		}

		if key != s.cfg.APIKey {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.status).
			Dur("duration", time.Since(start)).
			Str("remote_addr", r.RemoteAddr).
			Msg("http request")
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.wroteHeader = true
	}
	return sw.ResponseWriter.Write(b)
}

// --- Helpers ---

func parseAddress(raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
