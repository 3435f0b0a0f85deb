package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

const (
	actionShutdown = "shutdown"
	actionRestart  = "restart"
)

// ServerAPI holds the dependencies for the server control handlers.
type ServerAPI struct {
	cm         *ConfigManager
	actionChan chan string
	logger     *slog.Logger
}

// VersionInfo defines the structure for build/version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// NewServerAPI creates a new instance of the ServerAPI.
func NewServerAPI(cm *ConfigManager, actionChan chan string, logger *slog.Logger) *ServerAPI {
	return &ServerAPI{
		cm:         cm,
		actionChan: actionChan,
		logger:     logger,
	}
}

// RegisterRoutes sets up the routing for all /api/server endpoints.
func (a *ServerAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/server/config", a.handleGetConfig)
	mux.HandleFunc("PUT /api/server/config", a.handlePutConfig)
	mux.HandleFunc("GET /api/server/version", a.handleVersion)
	mux.HandleFunc("POST /api/server/shutdown", a.handleAction(actionShutdown))
	mux.HandleFunc("POST /api/server/restart", a.handleAction(actionRestart))
}

// handleHealthCheck reports liveness. It is served without authentication.
func (a *ServerAPI) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *ServerAPI) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeServerConfig) {
		return
	}
	respondWithJSON(w, http.StatusOK, a.cm.Get())
}

// handlePutConfig replaces and persists the configuration. Generation and
// template limits apply immediately, server settings after a restart.
func (a *ServerAPI) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeServerConfig) {
		return
	}
	var newConfig Config
	if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	if err := a.cm.Update(newConfig); err != nil {
		a.logger.Error("Failed to update configuration", "error", err)
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.logger.Info("Application configuration updated via API. Server settings require a restart.")
	respondWithJSON(w, http.StatusOK, a.cm.Get())
}

// handleVersion returns the application's build information.
func (a *ServerAPI) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeStatsRead) {
		return
	}
	respondWithJSON(w, http.StatusOK, VersionInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	})
}

// handleAction returns a handler that hands action to the main loop.
func (a *ServerAPI) handleAction(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireScope(w, r, scopeServerControl) {
			return
		}
		a.logger.Warn("Server "+action+" initiated via API", "request_id", requestID(r.Context()))
		respondWithJSON(w, http.StatusAccepted, map[string]string{"message": "Server is going down for " + action})

		go func() {
			a.actionChan <- action
		}()
	}
}
