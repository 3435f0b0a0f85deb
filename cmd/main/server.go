package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/CTAG07/Lyrian/pkg/markov"
	"github.com/CTAG07/Lyrian/pkg/templating"
	"github.com/google/uuid"
)

type Server struct {
	cm        *ConfigManager
	logger    *slog.Logger
	store     *markov.Store
	gen       *markov.Generator
	tm        *templating.TemplateManager
	usage     *UsageLog
	authAPI   *AuthAPI
	formsAPI  *FormsAPI
	markovAPI *MarkovAPI
	statsAPI  *StatsAPI
	serverAPI *ServerAPI
	apiMux    *http.ServeMux
}

// newGenerator builds the generator shared by the API, the forms and the shell.
func newGenerator(config Config, logger *slog.Logger) (*markov.Generator, error) {
	tokenizer, err := markov.NewDefaultTokenizer()
	if err != nil {
		return nil, fmt.Errorf("error creating tokenizer: %w", err)
	}
	gen := markov.NewGenerator(tokenizer,
		markov.WithMaxAttempts(config.Generation.MaxAttempts),
		markov.WithMaxSteps(config.Generation.MaxSteps),
	)
	gen.SetLogger(logger)
	return gen, nil
}

func NewServer(cm *ConfigManager, logger *slog.Logger, store *markov.Store, actionChan chan string) (*Server, error) {
	config := cm.Get()

	gen, err := newGenerator(config, logger)
	if err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Join(config.Server.DataDir, "forms"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create forms directory: %w", err)
	}
	tm, err := templating.NewTemplateManager(logger, gen, store, *config.Templates, config.Server.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create template manager: %w", err)
	}
	cm.SetTemplateManager(tm)

	usage, err := NewUsageLog(store.DB(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare usage log: %w", err)
	}

	server := &Server{
		cm:        cm,
		logger:    logger,
		store:     store,
		gen:       gen,
		tm:        tm,
		usage:     usage,
		authAPI:   NewAuthAPI(store.DB(), logger),
		formsAPI:  NewFormsAPI(tm, logger),
		markovAPI: NewMarkovAPI(cm, gen, store, tm, usage, logger),
		statsAPI:  NewStatsAPI(store, usage, logger),
		serverAPI: NewServerAPI(cm, actionChan, logger),
		apiMux:    http.NewServeMux(),
	}

	apiMux := http.NewServeMux()

	server.authAPI.RegisterRoutes(apiMux)
	server.formsAPI.RegisterRoutes(apiMux)
	server.markovAPI.RegisterRoutes(apiMux)
	server.statsAPI.RegisterRoutes(apiMux)
	server.serverAPI.RegisterRoutes(apiMux)

	// Make sure api functions must pass through authentication first
	authedAPI := server.authAPI.Authenticate(apiMux)
	// ... except for the health check, which is unauthed so something like docker can use it
	server.apiMux.HandleFunc("/api/health", server.serverAPI.handleHealthCheck)
	server.apiMux.Handle("/api/", withRequestID(logger, authedAPI))

	return server, nil
}

// Close releases the resources held by the server. The store is closed by its owner.
func (s *Server) Close() {
	s.usage.Close()
}

type requestIDKey struct{}

// withRequestID tags every request with a fresh id, echoed in the X-Request-Id
// header and available to handlers through requestID.
func withRequestID(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-Id", id)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		logger.Debug("API request served",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// statusForError maps the library's sentinel errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, markov.ErrInvalidQuery), errors.Is(err, markov.ErrModelDecode), errors.Is(err, markov.ErrTokenization):
		return http.StatusBadRequest
	case errors.Is(err, markov.ErrModelNotFound):
		return http.StatusNotFound
	case errors.Is(err, markov.ErrGenerationExhausted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(payload); err != nil {
			fmt.Printf("ERROR: Failed to encode JSON response: %v\n", err)
		}
	}
}
