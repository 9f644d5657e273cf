package handler

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/ieltsprep/internal/i18n"
	"github.com/pavelanni/ieltsprep/internal/model"
	"github.com/pavelanni/ieltsprep/internal/repository"
)

type storageResponse struct {
	Mode  model.StorageMode `json:"mode"`
	Label string            `json:"label"`
	URL   string            `json:"url,omitempty"`
}

func (h *Handler) storageStatus(r *http.Request) storageResponse {
	resp := storageResponse{Mode: h.deps.Backends.Mode()}
	if cfg := h.deps.Backends.Config(); cfg != nil {
		resp.URL = cfg.URL
	}
	if resp.Mode == model.StorageRemote {
		resp.Label = appI18n.T(r.Context(), "StorageRemote")
	} else {
		resp.Label = appI18n.T(r.Context(), "StorageLocal")
	}
	return resp
}

func (h *Handler) handleGetStorage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.storageStatus(r))
}

type storageRequest struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

func (h *Handler) handlePutStorage(w http.ResponseWriter, r *http.Request) {
	var req storageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.deps.Backends.SetConfig(r.Context(), &model.DBConfig{URL: req.URL, Key: req.Key}); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("remote storage configured", "user", model.UserFromContext(r.Context()).ID)
	writeJSON(w, http.StatusOK, h.storageStatus(r))
}

func (h *Handler) handleDeleteStorage(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Backends.SetConfig(r.Context(), nil); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("remote storage cleared", "user", model.UserFromContext(r.Context()).ID)
	writeJSON(w, http.StatusOK, h.storageStatus(r))
}

type uploadResponse struct {
	Bank    model.QuestionBank `json:"bank"`
	Message string             `json:"message"`
}

func (h *Handler) handleUploadBank(w http.ResponseWriter, r *http.Request) {
	if h.deps.Importer == nil {
		writeError(w, r, fmt.Errorf("%w: no extractor configured", model.ErrExtractionFailed))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.config.MaxUploadBytes); err != nil {
		writeError(w, r, model.Invalid("could not read upload: %v", err))
		return
	}
	module, ok := model.ParseModule(r.FormValue("module"))
	if !ok {
		writeError(w, r, model.Invalid("unknown module %q", r.FormValue("module")))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, model.Invalid("file is required"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, model.Invalid("could not read upload: %v", err))
		return
	}

	bank, err := h.deps.Importer.Import(r.Context(), data, header.Filename, module)
	if err != nil {
		writeError(w, r, err)
		return
	}
	msg := appI18n.Tp(r.Context(), "TestsImported", len(bank.Tests), map[string]any{"Bank": bank.Name})
	writeJSON(w, http.StatusCreated, uploadResponse{Bank: bank, Message: msg})
}

func (h *Handler) handleDeleteTest(w http.ResponseWriter, r *http.Request) {
	bankID := chi.URLParam(r, "bankID")
	testID := chi.URLParam(r, "testID")
	if err := h.deps.Content.DeleteTest(r.Context(), bankID, testID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAllResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.deps.Results.ListAllResults(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(results))
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.deps.Users.ListUsers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(users))
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	export, err := repository.Export(r.Context(), h.deps.Users, h.deps.Results, h.deps.Backends.Mode(), time.Now().UTC())
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="ielts-results.json"`)
	writeJSON(w, http.StatusOK, export)
}
