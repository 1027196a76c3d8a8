package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/santiago-gil/tools-tracker/internal/core/domain"
	"github.com/santiago-gil/tools-tracker/internal/core/service"
)

// expectedVersionHeader carries the caller's optimistic version on updates.
// Absent means "skip the version check".
const expectedVersionHeader = "X-Expected-Version"

const defaultAuditLimit = 50

type HTTPHandler struct {
	tools *service.ToolService
	audit *service.StoreAuditRecorder
	log   *zap.Logger
}

func NewHTTPHandler(tools *service.ToolService, audit *service.StoreAuditRecorder, log *zap.Logger) *HTTPHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPHandler{tools: tools, audit: audit, log: log}
}

func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/tools", h.ListTools)
	mux.HandleFunc("GET /api/tools/refresh", h.RefreshTools)
	mux.HandleFunc("POST /api/tools", h.CreateTool)
	mux.HandleFunc("GET /api/tools/slug/{slug}", h.GetToolBySlug)
	mux.HandleFunc("GET /api/tools/{id}", h.GetTool)
	mux.HandleFunc("PUT /api/tools/{id}", h.UpdateTool)
	mux.HandleFunc("DELETE /api/tools/{id}", h.DeleteTool)
	mux.HandleFunc("GET /api/tools/{id}/audit", h.ToolAuditTrail)
	mux.HandleFunc("GET /health", h.HealthCheck)
}

type CreateToolRequest struct {
	Name     string               `json:"name"`
	Category string               `json:"category"`
	Versions []domain.ToolVersion `json:"versions"`
}

type UpdateToolRequest struct {
	Name     *string              `json:"name"`
	Category *string              `json:"category"`
	Versions []domain.ToolVersion `json:"versions"`
}

type ErrorResponse struct {
	Error          string `json:"error"`
	CurrentVersion *int64 `json:"currentVersion,omitempty"`
}

type SlugLookupResponse struct {
	Tool    domain.Tool        `json:"tool"`
	Version domain.ToolVersion `json:"version"`
}

func (h *HTTPHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	forceRefresh := r.URL.Query().Get("refresh") == "true"

	tools, err := h.tools.List(r.Context(), forceRefresh)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tools)
}

// RefreshTools bypasses the cached catalog and returns a freshly fetched
// list. Equivalent to GET /api/tools?refresh=true.
func (h *HTTPHandler) RefreshTools(w http.ResponseWriter, r *http.Request) {
	tools, err := h.tools.List(r.Context(), true)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tools)
}

func (h *HTTPHandler) GetTool(w http.ResponseWriter, r *http.Request) {
	tool, err := h.tools.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tool)
}

func (h *HTTPHandler) GetToolBySlug(w http.ResponseWriter, r *http.Request) {
	tool, version, err := h.tools.FindBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if tool == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "tool not found"})
		return
	}
	writeJSON(w, http.StatusOK, SlugLookupResponse{Tool: *tool, Version: *version})
}

func (h *HTTPHandler) CreateTool(w http.ResponseWriter, r *http.Request) {
	var req CreateToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	tool, err := h.tools.Create(r.Context(), service.CreateToolInput{
		Name:     req.Name,
		Category: req.Category,
		Versions: req.Versions,
	}, actorFrom(r), metaFrom(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tool)
}

func (h *HTTPHandler) UpdateTool(w http.ResponseWriter, r *http.Request) {
	expected, ok := expectedVersion(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid " + expectedVersionHeader + " header"})
		return
	}

	var req UpdateToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.tools.Update(r.Context(), r.PathValue("id"), service.UpdateToolInput{
		Name:     req.Name,
		Category: req.Category,
		Versions: req.Versions,
	}, expected, actorFrom(r), metaFrom(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result.Tool)
}

func (h *HTTPHandler) DeleteTool(w http.ResponseWriter, r *http.Request) {
	if err := h.tools.Delete(r.Context(), r.PathValue("id"), actorFrom(r), metaFrom(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) ToolAuditTrail(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	records, err := h.audit.ListByResource(r.Context(), "tool", r.PathValue("id"), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if records == nil {
		records = []domain.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	var (
		dupName    *domain.DuplicateNameError
		dupVersion *domain.DuplicateVersionError
		conflict   *domain.OptimisticConflictError
		validation *domain.ValidationError
		emptyNorm  *domain.EmptyNormalizationError
	)

	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:          err.Error(),
			CurrentVersion: &conflict.CurrentVersion,
		})
	case errors.As(err, &dupName), errors.As(err, &dupVersion):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.As(err, &validation), errors.As(err, &emptyNorm):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "tool not found"})
	default:
		h.log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

// expectedVersion reads the optimistic version header. Missing header
// returns (nil, true); a malformed value returns (nil, false).
func expectedVersion(r *http.Request) (*int64, bool) {
	raw := r.Header.Get(expectedVersionHeader)
	if raw == "" {
		return nil, true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return nil, false
	}
	return &n, true
}

func actorFrom(r *http.Request) domain.UserInfo {
	uid := r.Header.Get("X-User-Id")
	if uid == "" {
		uid = "anonymous"
	}
	return domain.UserInfo{
		UID:   uid,
		Name:  r.Header.Get("X-User-Name"),
		Email: r.Header.Get("X-User-Email"),
	}
}

func metaFrom(r *http.Request) *domain.RequestMeta {
	return &domain.RequestMeta{
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
		RequestID: r.Header.Get("X-Request-Id"),
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
