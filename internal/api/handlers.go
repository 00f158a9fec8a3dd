package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/manudev97/first-frame-sub000/internal/models"
	"github.com/manudev97/first-frame-sub000/internal/puzzle"
	"github.com/manudev97/first-frame-sub000/internal/service"
	"github.com/manudev97/first-frame-sub000/internal/store"
	"github.com/manudev97/first-frame-sub000/internal/telegram"
	"github.com/manudev97/first-frame-sub000/internal/wallet"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "firstframe_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "firstframe_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
	}, []string{"method", "endpoint"})

	unlocksGranted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "firstframe_unlocks_granted_total",
		Help: "Puzzle unlocks that passed the gate and validation",
	})

	royaltiesSettled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "firstframe_royalties_settled_total",
		Help: "Pending royalties settled through pay-on-behalf",
	})
)

// Handler exposes the royalty workflows over HTTP.
type Handler struct {
	service  *service.Service
	ledger   store.Ledger
	bindings *store.BindingStore
	sessions puzzle.Store
	logger   *slog.Logger

	botToken    string
	requireAuth bool
}

// NewHandler wires the HTTP layer.
func NewHandler(svc *service.Service, ledger store.Ledger, bindings *store.BindingStore,
	sessions puzzle.Store, logger *slog.Logger, botToken string, requireAuth bool) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:     svc,
		ledger:      ledger,
		bindings:    bindings,
		sessions:    sessions,
		logger:      logger,
		botToken:    botToken,
		requireAuth: requireAuth,
	}
}

// Register mounts the API routes on the router.
func (h *Handler) Register(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(h.authMiddleware)
	api.HandleFunc("/wallet/{id}", h.DeriveWallet).Methods(http.MethodGet)
	api.HandleFunc("/wallet/link", h.LinkWallet).Methods(http.MethodPost)
	api.HandleFunc("/puzzle", h.CreatePuzzle).Methods(http.MethodPost)
	api.HandleFunc("/unlock", h.AttemptUnlock).Methods(http.MethodPost)
	api.HandleFunc("/royalties/pending/{payerId}", h.ListPending).Methods(http.MethodGet)
	api.HandleFunc("/royalties/{id}/pay", h.PayRoyalty).Methods(http.MethodPost)
	api.HandleFunc("/royalties/claim", h.ClaimRoyalties).Methods(http.MethodPost)
}

// authMiddleware validates Telegram Mini App init data when required. The
// raw init data travels in the X-Telegram-Init-Data header.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.requireAuth {
			next.ServeHTTP(w, r)
			return
		}
		initData := r.Header.Get("X-Telegram-Init-Data")
		if initData == "" {
			respondWithError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing init data", "")
			return
		}
		if _, err := telegram.ValidateInitData(initData, h.botToken, 24*time.Hour, time.Now()); err != nil {
			respondWithError(w, http.StatusUnauthorized, "UNAUTHORIZED", "init data rejected", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) DeriveWallet(w http.ResponseWriter, r *http.Request) {
	defer h.observe("GET", "/wallet/{id}")()

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id < 0 {
		h.respond(w, http.StatusBadRequest, "GET", "/wallet/{id}", map[string]string{"error": "invalid identifier"})
		return
	}
	h.respond(w, http.StatusOK, "GET", "/wallet/{id}", map[string]any{
		"user_id": id,
		"address": wallet.DeriveAddress(id),
	})
}

func (h *Handler) LinkWallet(w http.ResponseWriter, r *http.Request) {
	defer h.observe("POST", "/wallet/link")()

	var req struct {
		UserID  int64  `json:"user_id"`
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respond(w, http.StatusBadRequest, "POST", "/wallet/link", map[string]string{"error": "malformed JSON body"})
		return
	}
	binding, err := h.bindings.Bind(req.UserID, req.Address)
	if err != nil {
		if errors.Is(err, store.ErrBindingConflict) {
			h.respond(w, http.StatusConflict, "POST", "/wallet/link", map[string]string{"error": "address bound to a different user"})
			return
		}
		h.respond(w, http.StatusBadRequest, "POST", "/wallet/link", map[string]string{"error": err.Error()})
		return
	}
	h.respond(w, http.StatusCreated, "POST", "/wallet/link", binding)
}

func (h *Handler) CreatePuzzle(w http.ResponseWriter, r *http.Request) {
	defer h.observe("POST", "/puzzle")()

	var req struct {
		ContentID string `json:"content_id"`
		Rows      int    `json:"rows"`
		Cols      int    `json:"cols"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ContentID == "" {
		h.respond(w, http.StatusBadRequest, "POST", "/puzzle", map[string]string{"error": "content_id required"})
		return
	}
	session := h.sessions.Create(req.ContentID, req.Rows, req.Cols)
	h.respond(w, http.StatusCreated, "POST", "/puzzle", session)
}

func (h *Handler) AttemptUnlock(w http.ResponseWriter, r *http.Request) {
	defer h.observe("POST", "/unlock")()

	var req models.UnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respond(w, http.StatusBadRequest, "POST", "/unlock", map[string]string{"error": "malformed JSON body"})
		return
	}
	if req.PayerID <= 0 || req.SessionID == "" || req.ContentID == "" {
		h.respond(w, http.StatusUnprocessableEntity, "POST", "/unlock", map[string]string{"error": "payer_id, session_id and content_id required"})
		return
	}

	result, err := h.service.AttemptUnlock(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, "POST", "/unlock", err)
		return
	}
	if result.Granted {
		unlocksGranted.Inc()
	}
	h.respond(w, http.StatusOK, "POST", "/unlock", result)
}

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	defer h.observe("GET", "/royalties/pending/{payerId}")()

	payerID, err := strconv.ParseInt(mux.Vars(r)["payerId"], 10, 64)
	if err != nil {
		h.respond(w, http.StatusBadRequest, "GET", "/royalties/pending/{payerId}", map[string]string{"error": "invalid payer id"})
		return
	}
	records, err := h.ledger.ListUnpaidByPayer(r.Context(), payerID)
	if err != nil {
		h.respondServiceError(w, "GET", "/royalties/pending/{payerId}", err)
		return
	}
	if records == nil {
		records = []models.PendingRoyalty{}
	}
	h.respond(w, http.StatusOK, "GET", "/royalties/pending/{payerId}", records)
}

func (h *Handler) PayRoyalty(w http.ResponseWriter, r *http.Request) {
	defer h.observe("POST", "/royalties/{id}/pay")()

	var req models.PayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respond(w, http.StatusBadRequest, "POST", "/royalties/{id}/pay", map[string]string{"error": "malformed JSON body"})
		return
	}
	result, err := h.service.PayRoyalty(r.Context(), mux.Vars(r)["id"], req.PayerAddress, req.PayerID)
	if err != nil {
		h.respondServiceError(w, "POST", "/royalties/{id}/pay", err)
		return
	}
	royaltiesSettled.Inc()
	h.respond(w, http.StatusOK, "POST", "/royalties/{id}/pay", result)
}

func (h *Handler) ClaimRoyalties(w http.ResponseWriter, r *http.Request) {
	defer h.observe("POST", "/royalties/claim")()

	var req struct {
		UploaderID int64 `json:"uploader_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UploaderID <= 0 {
		h.respond(w, http.StatusBadRequest, "POST", "/royalties/claim", map[string]string{"error": "uploader_id required"})
		return
	}
	result, err := h.service.ClaimRoyalties(r.Context(), req.UploaderID)
	if err != nil {
		h.respondServiceError(w, "POST", "/royalties/claim", err)
		return
	}
	h.respond(w, http.StatusOK, "POST", "/royalties/claim", result)
}

// respondServiceError maps the workflow error taxonomy onto status codes and
// machine-readable tags. Several failures need out-of-band user action, so
// each carries a distinct remediation hint rather than a generic message.
func (h *Handler) respondServiceError(w http.ResponseWriter, method, endpoint string, err error) {
	var balErr *service.BalanceError
	hint := ""
	if errors.As(err, &balErr) {
		hint = balErr.Hint
	}

	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, service.ErrRoyaltyNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, service.ErrContentNotFound):
		status, code = http.StatusNotFound, "CONTENT_NOT_FOUND"
	case errors.Is(err, service.ErrRoyaltyExpired):
		status, code = http.StatusGone, "EXPIRED"
	case errors.Is(err, service.ErrWalletMismatch):
		status, code = http.StatusUnprocessableEntity, "WALLET_MISMATCH"
	case errors.Is(err, service.ErrInsufficientToken):
		status, code = http.StatusUnprocessableEntity, "INSUFFICIENT_TOKEN_BALANCE"
	case errors.Is(err, service.ErrInsufficientGas):
		status, code = http.StatusUnprocessableEntity, "INSUFFICIENT_GAS_BALANCE"
	case errors.Is(err, service.ErrApprovalRequired):
		status, code = http.StatusUnprocessableEntity, "APPROVAL_REQUIRED"
	case errors.Is(err, service.ErrSettlementTimeout):
		status, code = http.StatusGatewayTimeout, "SETTLEMENT_TIMEOUT"
	case errors.Is(err, service.ErrChainUnavailable):
		status, code = http.StatusBadGateway, "EXTERNAL_LEDGER_FAILURE"
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "endpoint", endpoint, "err", err)
		h.respond(w, status, method, endpoint, map[string]string{"error": "internal server error", "code": code})
		return
	}
	respondWithError(w, status, code, err.Error(), hint)
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
}

func (h *Handler) observe(method, endpoint string) func() {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(method, endpoint))
	return func() { timer.ObserveDuration() }
}

func (h *Handler) respond(w http.ResponseWriter, status int, method, endpoint string, payload any) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	respondWithJSON(w, status, payload)
}

func respondWithError(w http.ResponseWriter, status int, code, message, hint string) {
	body := map[string]string{"error": message, "code": code}
	if hint != "" {
		body["hint"] = hint
	}
	respondWithJSON(w, status, body)
}

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			fmt.Fprintf(w, `{"error":"encoding failure"}`)
		}
	}
}
