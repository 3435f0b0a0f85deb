package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/CTAG07/Lyrian/pkg/markov"
	"github.com/CTAG07/Lyrian/pkg/templating"
)

// MarkovAPI holds the dependencies for the model and generation handlers.
type MarkovAPI struct {
	cm     *ConfigManager
	gen    *markov.Generator
	store  *markov.Store
	tm     *templating.TemplateManager
	usage  *UsageLog
	logger *slog.Logger
}

// NewMarkovAPI creates a new instance of the MarkovAPI.
func NewMarkovAPI(cm *ConfigManager, gen *markov.Generator, store *markov.Store, tm *templating.TemplateManager, usage *UsageLog, logger *slog.Logger) *MarkovAPI {
	return &MarkovAPI{
		cm:     cm,
		gen:    gen,
		store:  store,
		tm:     tm,
		usage:  usage,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/models endpoints.
func (m *MarkovAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/models", m.handleListModels)
	mux.HandleFunc("POST /api/models", m.handleTrain)
	mux.HandleFunc("POST /api/models/import", m.handleImport)
	mux.HandleFunc("GET /api/models/{name}", m.handleModelInfo)
	mux.HandleFunc("DELETE /api/models/{name}", m.handleRemove)
	mux.HandleFunc("POST /api/models/{name}/prune", m.handlePrune)
	mux.HandleFunc("GET /api/models/{name}/export", m.handleExport)
	mux.HandleFunc("GET /api/models/{name}/generate", m.handleGenerate)
	mux.HandleFunc("POST /api/vocabulary/prune", m.handleVocabPrune)
}

type PruneRequest struct {
	MinFreq int `json:"min_freq"`
}

// ModelDetails describes a single stored model.
type ModelDetails struct {
	markov.ModelInfo
	Stats       markov.ModelStats `json:"stats"`
	MinMora     int               `json:"min_mora"`
	MinSyllable int               `json:"min_syllable"`
}

// GeneratedLine is one line of a generation response.
type GeneratedLine struct {
	Text    string         `json:"text"`
	Reading string         `json:"reading"`
	Tokens  []markov.Token `json:"tokens"`
}

// GenerateResponse is the body of a successful generation request.
type GenerateResponse struct {
	RequestID string          `json:"request_id"`
	Model     string          `json:"model"`
	Metric    markov.Metric   `json:"metric"`
	Length    int             `json:"length"`
	Lines     []GeneratedLine `json:"lines"`
}

func newModelDetails(info markov.ModelInfo, model *markov.Model) ModelDetails {
	return ModelDetails{
		ModelInfo:   info,
		Stats:       model.Stats(),
		MinMora:     model.MinLength(markov.MetricMora),
		MinSyllable: model.MinLength(markov.MetricSyllable),
	}
}

// handleListModels returns the metadata of every stored model.
func (m *MarkovAPI) handleListModels(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeModelsRead) {
		return
	}
	models, err := m.store.GetModelInfos(r.Context())
	if err != nil {
		m.logger.Error("Failed to get model infos", "error", err)
		respondWithError(w, statusForError(err), fmt.Sprintf("Failed to retrieve models: %v", err))
		return
	}
	if models == nil {
		models = []markov.ModelInfo{}
	}
	respondWithJSON(w, http.StatusOK, models)
}

// handleTrain trains a model from the plain text request body, one sentence
// per line, and stores it under ?name=, replacing any model of that name.
func (m *MarkovAPI) handleTrain(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeModelsWrite) {
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'name' is required")
		return
	}

	config := m.cm.Get()
	keyModeName := r.URL.Query().Get("key_mode")
	if keyModeName == "" {
		keyModeName = config.Generation.KeyMode
	}
	keyMode, err := markov.ParseKeyMode(keyModeName)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	body := http.MaxBytesReader(w, r.Body, config.Server.MaxTrainBytes)
	model, err := m.gen.Train(r.Context(), body, markov.WithKeyMode(keyMode))
	if err != nil {
		m.logger.Error("Failed to train model", "name", name, "error", err)
		respondWithError(w, statusForError(err), fmt.Sprintf("Training failed: %v", err))
		return
	}
	if model.Len() == 0 {
		respondWithError(w, http.StatusBadRequest, "Training text produced no tokens")
		return
	}

	info, err := m.store.SaveModel(r.Context(), name, model)
	if err != nil {
		m.logger.Error("Failed to save trained model", "name", name, "error", err)
		respondWithError(w, statusForError(err), fmt.Sprintf("Failed to save model: %v", err))
		return
	}
	m.tm.ForgetModel(name)
	respondWithJSON(w, http.StatusCreated, newModelDetails(info, model))
}

// handleImport stores an exported JSON snapshot under ?name=.
func (m *MarkovAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeModelsWrite) {
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'name' is required")
		return
	}

	body := http.MaxBytesReader(w, r.Body, m.cm.Get().Server.MaxTrainBytes)
	model, err := markov.ImportModel(body)
	if err != nil {
		m.logger.Error("Failed to import model", "name", name, "error", err)
		respondWithError(w, statusForError(err), fmt.Sprintf("Import failed: %v", err))
		return
	}

	info, err := m.store.SaveModel(r.Context(), name, model)
	if err != nil {
		m.logger.Error("Failed to save imported model", "name", name, "error", err)
		respondWithError(w, statusForError(err), fmt.Sprintf("Failed to save model: %v", err))
		return
	}
	m.tm.ForgetModel(name)
	respondWithJSON(w, http.StatusCreated, newModelDetails(info, model))
}

// handleModelInfo returns metadata and statistics of one model.
func (m *MarkovAPI) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeModelsRead) {
		return
	}
	name := r.PathValue("name")
	info, err := m.store.GetModelInfo(r.Context(), name)
	if err != nil {
		respondWithError(w, statusForError(err), err.Error())
		return
	}
	model, err := m.tm.Model(r.Context(), name)
	if err != nil {
		m.logger.Error("Failed to load model", "name", name, "error", err)
		respondWithError(w, statusForError(err), fmt.Sprintf("Failed to load model: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, newModelDetails(info, model))
}

func (m *MarkovAPI) handleRemove(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeModelsWrite) {
		return
	}
	name := r.PathValue("name")
	if err := m.store.RemoveModel(r.Context(), name); err != nil {
		m.logger.Error("Failed to remove model", "name", name, "error", err)
		respondWithError(w, statusForError(err), fmt.Sprintf("Failed to remove model: %v", err))
		return
	}
	m.tm.ForgetModel(name)
	w.WriteHeader(http.StatusNoContent)
}

func (m *MarkovAPI) handlePrune(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeModelsWrite) {
		return
	}
	var req PruneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	name := r.PathValue("name")
	removed, err := m.store.PruneModel(r.Context(), name, req.MinFreq)
	if err != nil {
		m.logger.Error("Failed to prune model", "name", name, "error", err)
		respondWithError(w, statusForError(err), fmt.Sprintf("Pruning failed: %v", err))
		return
	}
	m.tm.ForgetModel(name)
	respondWithJSON(w, http.StatusOK, map[string]int64{"transitions_removed": removed})
}

// handleExport streams the model as a JSON snapshot attachment.
func (m *MarkovAPI) handleExport(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeModelsRead) {
		return
	}
	name := r.PathValue("name")
	model, err := m.store.LoadModel(r.Context(), name)
	if err != nil {
		respondWithError(w, statusForError(err), fmt.Sprintf("Failed to load model: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".json"))
	if err = model.Export(w); err != nil {
		m.logger.Error("Failed to export model", "name", name, "error", err)
	}
}

// generateQuery holds the parsed parameters of a generation request.
type generateQuery struct {
	length int
	count  int
	metric markov.Metric
	seed   string
}

func parseGenerateQuery(r *http.Request, config GenerationConfig) (generateQuery, error) {
	q := generateQuery{
		length: config.DefaultLength,
		count:  1,
		seed:   r.URL.Query().Get("seed"),
	}
	var err error
	if v := r.URL.Query().Get("length"); v != "" {
		if q.length, err = strconv.Atoi(v); err != nil {
			return q, fmt.Errorf("%w: length must be an integer", markov.ErrInvalidQuery)
		}
	}
	if v := r.URL.Query().Get("count"); v != "" {
		if q.count, err = strconv.Atoi(v); err != nil {
			return q, fmt.Errorf("%w: count must be an integer", markov.ErrInvalidQuery)
		}
	}
	if q.length > config.MaxLength {
		return q, fmt.Errorf("%w: length %d exceeds the limit of %d", markov.ErrInvalidQuery, q.length, config.MaxLength)
	}
	if q.count > config.MaxLines {
		return q, fmt.Errorf("%w: %d lines exceed the limit of %d", markov.ErrInvalidQuery, q.count, config.MaxLines)
	}
	metricName := r.URL.Query().Get("metric")
	if metricName == "" {
		metricName = config.DefaultMetric
	}
	q.metric, err = markov.ParseMetric(metricName)
	return q, err
}

// handleGenerate generates count lines of an exact length from one model.
func (m *MarkovAPI) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeGenerate) {
		return
	}
	name := r.PathValue("name")
	reqID := requestID(r.Context())
	config := m.cm.Get()

	q, err := parseGenerateQuery(r, *config.Generation)
	if err != nil {
		respondWithError(w, statusForError(err), err.Error())
		return
	}

	model, err := m.tm.Model(r.Context(), name)
	if err != nil {
		respondWithError(w, statusForError(err), err.Error())
		return
	}

	opts := []markov.GenerateOption{
		markov.WithMaxAttempts(config.Generation.MaxAttempts),
		markov.WithMaxSteps(config.Generation.MaxSteps),
	}
	if q.seed != "" {
		opts = append(opts, markov.WithSeed(q.seed))
	}

	lyrics, err := m.gen.GenerateLines(r.Context(), model, q.length, q.count, q.metric, opts...)
	m.usage.Record(r.Context(), name, err == nil)
	if err != nil {
		m.logger.Warn("Generation failed",
			"request_id", reqID,
			"model", name,
			"length", q.length,
			"metric", q.metric.String(),
			"error", err,
		)
		respondWithJSON(w, statusForError(err), map[string]string{"error": err.Error(), "request_id": reqID})
		return
	}

	resp := GenerateResponse{
		RequestID: reqID,
		Model:     name,
		Metric:    q.metric,
		Length:    q.length,
		Lines:     make([]GeneratedLine, len(lyrics)),
	}
	for i, l := range lyrics {
		resp.Lines[i] = GeneratedLine{Text: l.Join(), Reading: l.Reading(), Tokens: l.Tokens()}
	}
	m.logger.Info("Lyrics generated",
		"request_id", reqID,
		"model", name,
		"length", q.length,
		"metric", q.metric.String(),
		"lines", len(lyrics),
	)
	respondWithJSON(w, http.StatusOK, resp)
}

// handleVocabPrune removes vocabulary entries no model refers to.
func (m *MarkovAPI) handleVocabPrune(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeModelsWrite) {
		return
	}
	removed, err := m.store.VocabularyPrune(r.Context())
	if err != nil {
		m.logger.Error("Failed to prune vocabulary", "error", err)
		respondWithError(w, statusForError(err), fmt.Sprintf("Vocabulary prune failed: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"tokens_removed": removed})
}
