package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/CTAG07/Weft/pkg/store"
)

// Server wires the template store and the API handlers onto one mux.
type Server struct {
	config    *Config
	db        *sql.DB
	logger    *slog.Logger
	ts        *store.Store
	renderAPI *RenderAPI
	storeAPI  *StoreAPI
	serverAPI *ServerAPI
	apiMux    *http.ServeMux
}

func NewServer(config *Config, logger *slog.Logger, db *sql.DB, actionChan chan string) (*Server, error) {

	ts, err := store.NewStore(db, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create template store: %w", err)
	}

	// api initialization
	renderAPI := NewRenderAPI(ts, config.Renderer, logger)
	storeAPI := NewStoreAPI(ts, logger)
	serverAPI := NewServerAPI(config, actionChan, logger)

	// create object, register routes to the mux, and return it
	server := &Server{
		config:    config,
		db:        db,
		logger:    logger,
		ts:        ts,
		renderAPI: renderAPI,
		storeAPI:  storeAPI,
		serverAPI: serverAPI,
		apiMux:    http.NewServeMux(),
	}

	server.renderAPI.RegisterRoutes(server.apiMux)
	server.storeAPI.RegisterRoutes(server.apiMux)
	server.serverAPI.RegisterRoutes(server.apiMux)

	return server, nil
}

// Close releases the server's store statements. The database stays open for
// the caller to close.
func (s *Server) Close() {
	s.ts.Close()
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		err := json.NewEncoder(w).Encode(payload)
		if err != nil {
			fmt.Printf("ERROR: Failed to encode JSON response: %v\n", err)
		}
	}
}
