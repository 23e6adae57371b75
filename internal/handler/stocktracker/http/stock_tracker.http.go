package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/guregu/null/v5"
	"github.com/quotepulse/stock-tracker/internal/config"
	"github.com/quotepulse/stock-tracker/internal/entity"
	"github.com/quotepulse/stock-tracker/internal/service/quote"
	"github.com/quotepulse/stock-tracker/internal/service/tradeimport"
)

var (
	errAPIKeyMissing  = errors.New("api key is required")
	errAPIKeyInvalid  = errors.New("invalid api key")
	errAPIKeyInactive = errors.New("api key is inactive")
	errAPIKeyExpired  = errors.New("api key is expired")
)

// WatchlistFlows, RankingFlows and TradeFlows are the service surfaces the
// handler depends on, kept as interfaces so tests can stand in fakes.
type WatchlistFlows interface {
	Add(ctx context.Context, userID, code string, note null.String) (*entity.WatchlistItem, error)
	List(ctx context.Context, userID string) ([]entity.WatchlistItem, error)
	Remove(ctx context.Context, userID, id string) (bool, error)
	Refresh(ctx context.Context, userID string) ([]entity.Snapshot, error)
	Snapshots(ctx context.Context, codes []string) ([]entity.Snapshot, error)
}

type RankingFlows interface {
	Latest(ctx context.Context, market string) (*entity.RankingBoard, error)
}

type TradeFlows interface {
	Import(ctx context.Context, userID string, rows []tradeimport.ImportRow) (string, []entity.TradeRecord, error)
	List(ctx context.Context, userID string) ([]entity.TradeRecord, error)
}

type AddWatchlistRequest struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
	Note   string `json:"note"`
}

type RefreshWatchlistRequest struct {
	UserID string `json:"user_id"`
}

type ImportTradesRequest struct {
	UserID string                  `json:"user_id"`
	Trades []tradeimport.ImportRow `json:"trades"`
}

type ImportTradesResponse struct {
	BatchID  string               `json:"batch_id"`
	Imported int                  `json:"imported"`
	Trades   []entity.TradeRecord `json:"trades"`
}

type Handler struct {
	watchlistService WatchlistFlows
	rankingService   RankingFlows
	tradeService     TradeFlows
}

func NewStockTrackerHTTPHandler(watchlistService WatchlistFlows, rankingService RankingFlows, tradeService TradeFlows) *Handler {
	return &Handler{
		watchlistService: watchlistService,
		rankingService:   rankingService,
		tradeService:     tradeService,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/stock-tracker/v1/watchlist", h.Watchlist)
	mux.HandleFunc("/stock-tracker/v1/watchlist/refresh", h.RefreshWatchlist)
	mux.HandleFunc("/stock-tracker/v1/snapshots", h.Snapshots)
	mux.HandleFunc("/stock-tracker/v1/rankings", h.Rankings)
	mux.HandleFunc("/stock-tracker/v1/trades", h.Trades)
	mux.HandleFunc("/stock-tracker/v1/trades/import", h.ImportTrades)
}

func (h *Handler) Watchlist(w http.ResponseWriter, r *http.Request) {
	if err := validateAPIKey(r.Header.Get("X-API-Key")); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.listWatchlist(w, r)
	case http.MethodPost:
		h.addWatchlistItem(w, r)
	case http.MethodDelete:
		h.removeWatchlistItem(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
	}
}

func (h *Handler) listWatchlist(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "user_id is required"})
		return
	}

	items, err := h.watchlistService.List(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) addWatchlistItem(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req AddWatchlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}

	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Code) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing required fields"})
		return
	}

	item, err := h.watchlistService.Add(r.Context(), req.UserID, req.Code, null.NewString(req.Note, req.Note != ""))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) removeWatchlistItem(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if userID == "" || id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "user_id and id are required"})
		return
	}

	removed, err := h.watchlistService.Remove(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !removed {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "watchlist item not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"removed": true})
}

func (h *Handler) RefreshWatchlist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	if err := validateAPIKey(r.Header.Get("X-API-Key")); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}

	defer r.Body.Close()

	var req RefreshWatchlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}

	if strings.TrimSpace(req.UserID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "user_id is required"})
		return
	}

	snapshots, err := h.watchlistService.Refresh(r.Context(), req.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"snapshots": snapshots})
}

func (h *Handler) Snapshots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	if err := validateAPIKey(r.Header.Get("X-API-Key")); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}

	raw := strings.TrimSpace(r.URL.Query().Get("codes"))
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "codes is required"})
		return
	}

	var codes []string
	for _, code := range strings.Split(raw, ",") {
		if code = strings.TrimSpace(code); code != "" {
			codes = append(codes, code)
		}
	}

	snapshots, err := h.watchlistService.Snapshots(r.Context(), codes)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"snapshots": snapshots})
}

func (h *Handler) Rankings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	if err := validateAPIKey(r.Header.Get("X-API-Key")); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}

	market := strings.TrimSpace(r.URL.Query().Get("market"))
	if market == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "market is required"})
		return
	}

	board, err := h.rankingService.Latest(r.Context(), market)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if board == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no ranking for market"})
		return
	}

	writeJSON(w, http.StatusOK, board)
}

func (h *Handler) Trades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	if err := validateAPIKey(r.Header.Get("X-API-Key")); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "user_id is required"})
		return
	}

	records, err := h.tradeService.List(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"trades": records})
}

func (h *Handler) ImportTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	if err := validateAPIKey(r.Header.Get("X-API-Key")); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}

	defer r.Body.Close()

	var req ImportTradesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}

	if strings.TrimSpace(req.UserID) == "" || len(req.Trades) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "user_id and trades are required"})
		return
	}

	batchID, records, err := h.tradeService.Import(r.Context(), req.UserID, req.Trades)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, ImportTradesResponse{
		BatchID:  batchID,
		Imported: len(records),
		Trades:   records,
	})
}

// writeServiceError maps gateway failures onto HTTP statuses: transport
// problems are a bad gateway, subscription rejections are unprocessable,
// anything else is internal.
func writeServiceError(w http.ResponseWriter, err error) {
	var admissionErr *quote.AdmissionError
	switch {
	case quote.IsConnectionError(err):
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "quote gateway unavailable"})
	case errors.As(err, &admissionErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": admissionErr.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func validateAPIKey(rawAPIKey string) error {
	apiKey := strings.TrimSpace(rawAPIKey)
	if apiKey == "" {
		return errAPIKeyMissing
	}

	if config.Env == nil || len(config.Env.APIKeys) == 0 {
		return errAPIKeyInvalid
	}

	now := time.Now().UTC()
	for _, candidate := range config.Env.APIKeys {
		storedKey := strings.TrimSpace(candidate.Key)
		if storedKey == "" {
			continue
		}

		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(storedKey)) != 1 {
			continue
		}

		if !candidate.Active {
			return errAPIKeyInactive
		}

		expiredAt, hasExpiry, err := parseExpiry(candidate.ExpiredAt)
		if err != nil {
			return errAPIKeyInvalid
		}
		if !hasExpiry {
			return nil
		}

		if !now.Before(expiredAt) {
			return errAPIKeyExpired
		}

		return nil
	}

	return errAPIKeyInvalid
}

func parseExpiry(value any) (time.Time, bool, error) {
	if value == nil {
		return time.Time{}, false, nil
	}

	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false, nil
		}
		return v.UTC(), true, nil
	case string:
		raw := strings.TrimSpace(v)
		if raw == "" {
			return time.Time{}, false, nil
		}

		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			return parsed.UTC(), true, nil
		}

		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, false, err
		}

		return parsed.UTC().Add(24 * time.Hour), true, nil
	default:
		return time.Time{}, false, errors.New("unsupported expiry type")
	}
}
