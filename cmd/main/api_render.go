package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/CTAG07/Weft/pkg/store"
	"github.com/CTAG07/Weft/pkg/weft"
)

// RenderAPI holds the dependencies for the render API handlers.
type RenderAPI struct {
	ts       *store.Store
	defaults *RendererConfig
	logger   *slog.Logger
}

// NewRenderAPI creates a new instance of the RenderAPI.
func NewRenderAPI(ts *store.Store, defaults *RendererConfig, logger *slog.Logger) *RenderAPI {
	return &RenderAPI{
		ts:       ts,
		defaults: defaults,
		logger:   logger,
	}
}

// RegisterRoutes sets up the routing for all /api/render endpoints.
func (a *RenderAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/render", a.handleRender)
	mux.HandleFunc("/api/render/", a.handleRenderStored)
	mux.HandleFunc("/api/validate", a.handleValidate)
}

// renderRequest is the body of an ad-hoc render call. The optional settings
// override the configured renderer defaults for this call only.
type renderRequest struct {
	Template        string         `json:"template"`
	Context         map[string]any `json:"context"`
	ErrorMode       *string        `json:"error_mode"`
	DefaultText     *string        `json:"default_text"`
	KeepIndentation *bool          `json:"keep_indentation"`
}

// options merges the request overrides over the configured defaults.
func (req *renderRequest) options(defaults *RendererConfig) []weft.Option {
	cfg := *defaults
	if req.ErrorMode != nil {
		cfg.ErrorMode = *req.ErrorMode
	}
	if req.DefaultText != nil {
		cfg.DefaultText = req.DefaultText
	}
	if req.KeepIndentation != nil {
		cfg.KeepIndentation = *req.KeepIndentation
	}
	return cfg.Options()
}

// handleRender compiles and renders template text sent in the request body.
func (a *RenderAPI) handleRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	a.renderAndRespond(w, req.Template, &req)
}

// handleRenderStored renders a stored template by name against the context in
// the request body.
func (a *RenderAPI) handleRenderStored(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/render/")
	if name == "" {
		respondWithError(w, http.StatusNotFound, "Not Found")
		return
	}

	source, err := a.ts.Get(r.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, fmt.Sprintf("Template '%s' not found", name))
			return
		}
		a.logger.Error("Failed to load stored template", "template_name", name, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to load template")
		return
	}

	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	a.renderAndRespond(w, source, &req)
}

func (a *RenderAPI) renderAndRespond(w http.ResponseWriter, source string, req *renderRequest) {
	renderer, err := weft.New(source, req.options(a.defaults)...)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Template compilation failed: %v", err))
		return
	}

	output, err := renderer.Render(req.Context)
	if err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Template rendering failed: %v", err))
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"output": output})
}

// handleValidate compiles template text without rendering it and reports the
// context names it refers to.
func (a *RenderAPI) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	renderer, err := weft.New(req.Template, req.options(a.defaults)...)
	if err != nil {
		respondWithJSON(w, http.StatusOK, map[string]any{
			"valid": false,
			"error": err.Error(),
		})
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"valid":        true,
		"context_refs": renderer.ContextRefs(),
	})
}
