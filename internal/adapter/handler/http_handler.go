package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/brickparty/brick-party/internal/core/domain"
	"github.com/brickparty/brick-party/internal/core/service"
	"github.com/brickparty/brick-party/internal/export"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderCloudSync = "X-Cloud-Sync"
	HeaderSkipped   = "X-Skipped-Rows"
)

type HTTPHandler struct {
	sessions *service.Sessions
}

type SetOwnedHTTPRequest struct {
	Quantity    *int `json:"quantity"`
	SkipCascade bool `json:"skipCascade"`
}

// BulkHTTPRequest names the rows to change. All selects every row of the set;
// an empty request changes nothing.
type BulkHTTPRequest struct {
	Keys []string `json:"keys"`
	All  bool     `json:"all"`
}

type ChangeHTTPResponse struct {
	Writes []domain.OwnedWrite `json:"writes"`
	Totals service.Totals      `json:"totals"`
}

type InventoryHTTPResponse struct {
	SetNumber string            `json:"setNumber"`
	Totals    service.Totals    `json:"totals"`
	Rows      []service.RowView `json:"rows"`
}

type ErrorHTTPResponse struct {
	Error string `json:"error"`
}

func NewHTTPHandler(sessions *service.Sessions) *HTTPHandler {
	return &HTTPHandler{sessions: sessions}
}

func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	api := router.PathPrefix("/api/sets/{set}").Subrouter()
	api.HandleFunc("/inventory", h.Inventory).Methods(http.MethodGet)
	api.HandleFunc("/owned/{key}", h.SetOwned).Methods(http.MethodPut)
	api.HandleFunc("/owned", h.ClearOwned).Methods(http.MethodDelete)
	api.HandleFunc("/mark-complete", h.MarkComplete).Methods(http.MethodPost)
	api.HandleFunc("/mark-missing", h.MarkMissing).Methods(http.MethodPost)
	api.HandleFunc("/export/{target}", h.Export).Methods(http.MethodGet)
}

// NewRouter wires the API, metrics and CORS into one handler.
func NewRouter(h *HTTPHandler, gatherer prometheus.Gatherer) http.Handler {
	router := mux.NewRouter()
	router.Use(loggingMiddleware)
	h.RegisterRoutes(router)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", HeaderUserID, HeaderCloudSync},
		ExposedHeaders: []string{HeaderSkipped},
	})
	return corsHandler.Handler(router)
}

func (h *HTTPHandler) Inventory(w http.ResponseWriter, r *http.Request) {
	session, ok := h.openSession(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	mode, err := service.ParseFilterMode(query.Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	by, err := service.ParseSortKey(query.Get("sort"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	desc, _ := strconv.ParseBool(query.Get("desc"))

	projection := session.Projection()
	writeJSON(w, http.StatusOK, InventoryHTTPResponse{
		SetNumber: session.SetNumber(),
		Totals:    projection.Totals(),
		Rows:      projection.Rows(mode, by, desc),
	})
}

func (h *HTTPHandler) SetOwned(w http.ResponseWriter, r *http.Request) {
	var req SetOwnedHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity == nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, ok := h.openSession(w, r)
	if !ok {
		return
	}

	key := mux.Vars(r)["key"]
	writes, err := session.HandleOwnedChange(key, *req.Quantity, service.ChangeOptions{SkipCascade: req.SkipCascade})
	if err != nil {
		if errors.Is(err, service.ErrUnknownKey) {
			slog.Warn("owned change for unknown key", "set", session.SetNumber(), "key", key)
			writeError(w, http.StatusNotFound, "unknown inventory key")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.writeChange(w, session, writes)
}

func (h *HTTPHandler) MarkComplete(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, (*service.Resolver).MarkAllComplete)
}

func (h *HTTPHandler) MarkMissing(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, (*service.Resolver).MarkAllMissing)
}

func (h *HTTPHandler) ClearOwned(w http.ResponseWriter, r *http.Request) {
	session, ok := h.openSession(w, r)
	if !ok {
		return
	}
	h.writeChange(w, session, session.ClearAll())
}

func (h *HTTPHandler) Export(w http.ResponseWriter, r *http.Request) {
	target, err := export.ParseTarget(mux.Vars(r)["target"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	session, ok := h.openSession(w, r)
	if !ok {
		return
	}

	// render first so a failure can still become a JSON error
	var buf bytes.Buffer
	skipped, err := export.Write(&buf, target, session.Projection().MissingParts(target.IncludesMinifigs()))
	if err != nil {
		slog.Error("export failed", "set", session.SetNumber(), "target", target, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", target.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+target.FileName(session.SetNumber())+`"`)
	w.Header().Set(HeaderSkipped, strconv.Itoa(skipped))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) bulk(w http.ResponseWriter, r *http.Request, op func(*service.Resolver, []string) []domain.OwnedWrite) {
	var req BulkHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, ok := h.openSession(w, r)
	if !ok {
		return
	}
	keys := req.Keys
	if req.All {
		keys = session.Index().Keys()
	}
	h.writeChange(w, session, op(session.Resolver, keys))
}

func (h *HTTPHandler) openSession(w http.ResponseWriter, r *http.Request) (*service.Session, bool) {
	userID := r.Header.Get(HeaderUserID)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing "+HeaderUserID+" header")
		return nil, false
	}

	session, err := h.sessions.Open(r.Context(), userID, mux.Vars(r)["set"], cloudSyncRequested(r))
	if err != nil {
		if errors.Is(err, service.ErrSetNotFound) {
			writeError(w, http.StatusNotFound, "set not found")
			return nil, false
		}
		slog.Error("open session failed", "user", userID, "set", mux.Vars(r)["set"], "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	return session, true
}

func (h *HTTPHandler) writeChange(w http.ResponseWriter, session *service.Session, writes []domain.OwnedWrite) {
	if writes == nil {
		writes = []domain.OwnedWrite{}
	}
	writeJSON(w, http.StatusOK, ChangeHTTPResponse{
		Writes: writes,
		Totals: session.Projection().Totals(),
	})
}

func cloudSyncRequested(r *http.Request) bool {
	value := r.Header.Get(HeaderCloudSync)
	if value == "" {
		value = r.URL.Query().Get("cloudSync")
	}
	enabled, _ := strconv.ParseBool(value)
	return enabled
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorHTTPResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
