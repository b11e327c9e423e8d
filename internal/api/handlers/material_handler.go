package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	middleware "studyvault/internal/api/middlewares"
	"studyvault/internal/services"
)

// MaterialHandler exposes materials, outlines and chunk retrieval.
type MaterialHandler struct {
	materials *services.MaterialService
	retrieval *services.RetrievalService
}

func NewMaterialHandler(materials *services.MaterialService, retrieval *services.RetrievalService) *MaterialHandler {
	return &MaterialHandler{materials: materials, retrieval: retrieval}
}

func (h *MaterialHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	mats, err := h.materials.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mats)
}

func (h *MaterialHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	mat, err := h.materials.Get(r.Context(), userID, chi.URLParam(r, "materialID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mat)
}

func (h *MaterialHandler) Outline(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	nodes, err := h.materials.GetOutline(r.Context(), userID, chi.URLParam(r, "materialID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (h *MaterialHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	if err := h.materials.Delete(r.Context(), userID, chi.URLParam(r, "materialID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type searchRequest struct {
	Query       string   `json:"query"`
	TopK        int      `json:"top_k"`
	MaterialIDs []string `json:"material_ids"`
}

func (h *MaterialHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	chunks, err := h.retrieval.SearchChunks(r.Context(), userID, req.Query, req.TopK, req.MaterialIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chunks)
}

// Chunks returns a contiguous chunk range, e.g. ?start=0&end=9.
func (h *MaterialHandler) Chunks(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	start, err1 := strconv.Atoi(r.URL.Query().Get("start"))
	end, err2 := strconv.Atoi(r.URL.Query().Get("end"))
	if err1 != nil || err2 != nil {
		http.Error(w, "start and end must be integers", http.StatusBadRequest)
		return
	}

	chunks, err := h.retrieval.GetChunkRange(r.Context(), userID, chi.URLParam(r, "materialID"), start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chunks)
}

type statsRequest struct {
	MaterialIDs []string `json:"material_ids"`
}

func (h *MaterialHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	var req statsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	stats, err := h.retrieval.GetChunkStats(r.Context(), userID, req.MaterialIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
