package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/CTAG07/Weft/pkg/store"
	"github.com/CTAG07/Weft/pkg/weft"
)

// StoreAPI holds the dependencies for the template store API handlers.
type StoreAPI struct {
	ts     *store.Store
	logger *slog.Logger
}

// NewStoreAPI creates a new instance of the StoreAPI.
func NewStoreAPI(ts *store.Store, logger *slog.Logger) *StoreAPI {
	return &StoreAPI{
		ts:     ts,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/templates endpoints.
func (a *StoreAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/templates/export", a.handleExport)
	mux.HandleFunc("/api/templates/import", a.handleImport)
	mux.HandleFunc("/api/templates", a.handleList)
	mux.HandleFunc("/api/templates/", a.handleTemplate)
}

// handleList returns the metadata of all stored templates.
func (a *StoreAPI) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	infos, err := a.ts.List(r.Context())
	if err != nil {
		a.logger.Error("Failed to list templates", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}
	respondWithJSON(w, http.StatusOK, infos)
}

// handleTemplate manages CRUD operations for a single stored template.
func (a *StoreAPI) handleTemplate(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/templates/")
	if name == "" || strings.HasSuffix(name, "/") {
		respondWithError(w, http.StatusNotFound, "Not Found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		source, err := a.ts.Get(r.Context(), name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				respondWithError(w, http.StatusNotFound, "Template not found")
				return
			}
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read template: %v", err))
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(source))

	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read request body: %v", err))
			return
		}
		// Reject templates that would never render.
		if _, err = weft.New(string(body)); err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Template compilation failed: %v", err))
			return
		}
		if err = a.ts.Save(r.Context(), name, string(body)); err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to save template: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		if err := a.ts.Delete(r.Context(), name); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				respondWithError(w, http.StatusNotFound, "Template not found")
				return
			}
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to delete template: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleExport streams the whole store as a JSON document.
func (a *StoreAPI) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := a.ts.Export(r.Context(), w); err != nil {
		// Headers are already out; all we can do is log.
		a.logger.Error("Failed to export templates", "error", err)
	}
}

// handleImport loads a JSON export document into the store.
func (a *StoreAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	count, err := a.ts.Import(r.Context(), r.Body)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Import failed: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"imported": count})
}
