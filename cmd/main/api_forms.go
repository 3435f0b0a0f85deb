package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/CTAG07/Lyrian/pkg/templating"
	"github.com/natefinch/atomic"
)

// maxFormBytes caps the size of an uploaded form file.
const maxFormBytes = 1 << 20

// FormsAPI holds the dependencies for the song form handlers.
type FormsAPI struct {
	tm     *templating.TemplateManager
	logger *slog.Logger
}

// NewFormsAPI creates a new instance of the FormsAPI.
func NewFormsAPI(tm *templating.TemplateManager, logger *slog.Logger) *FormsAPI {
	return &FormsAPI{
		tm:     tm,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/forms endpoints.
func (f *FormsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/forms", f.handleList)
	mux.HandleFunc("POST /api/forms/refresh", f.handleRefresh)
	mux.HandleFunc("POST /api/forms/test", f.handleTest)
	mux.HandleFunc("GET /api/forms/render", f.handleRender)
	mux.HandleFunc("GET /api/forms/files/{file}", f.handleGetFile)
	mux.HandleFunc("PUT /api/forms/files/{file}", f.handlePutFile)
	mux.HandleFunc("DELETE /api/forms/files/{file}", f.handleDeleteFile)
}

func formDataFromQuery(r *http.Request) templating.FormData {
	q := r.URL.Query()
	return templating.FormData{
		Model:  q.Get("model"),
		Metric: q.Get("metric"),
		Seed:   q.Get("seed"),
	}
}

// handleList returns the names of all loaded forms.
func (f *FormsAPI) handleList(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeFormsRead) {
		return
	}
	names := f.tm.GetTemplateNames()
	if names == nil {
		names = []string{}
	}
	respondWithJSON(w, http.StatusOK, names)
}

// handleRefresh reloads forms from disk and drops cached models.
func (f *FormsAPI) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeFormsWrite) {
		return
	}
	if err := f.tm.Refresh(); err != nil {
		f.logger.Error("API triggered refresh failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to refresh forms: %v", err))
		return
	}
	f.logger.Info("Forms refreshed via API")
	w.WriteHeader(http.StatusNoContent)
}

// handleTest executes the request body as a form without saving it.
func (f *FormsAPI) handleTest(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeGenerate) {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFormBytes))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read request body: %v", err))
		return
	}

	var buf bytes.Buffer
	if err = f.tm.ExecuteTemplateString(&buf, string(body), formDataFromQuery(r)); err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Form execution failed: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// handleRender renders the form named by ?name=, or a random one.
func (f *FormsAPI) handleRender(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeGenerate) {
		return
	}
	data := formDataFromQuery(r)
	if data.Model == "" {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'model' is required")
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = f.tm.GetRandomTemplate()
	}
	if name == "" {
		respondWithError(w, http.StatusNotFound, "No forms are loaded")
		return
	}

	if !slices.Contains(f.tm.GetTemplateNames(), name) {
		respondWithError(w, http.StatusNotFound, fmt.Sprintf("Form '%s' not found", name))
		return
	}

	var buf bytes.Buffer
	if err := f.tm.Execute(&buf, name, data); err != nil {
		f.logger.Warn("Form rendering failed", "form", name, "model", data.Model, "request_id", requestID(r.Context()), "error", err)
		respondWithError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Failed to render form: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Lyrian-Form", name)
	_, _ = buf.WriteTo(w)
}

// formPath resolves a form file name inside the forms directory.
func (f *FormsAPI) formPath(name string) (string, error) {
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", errors.New("invalid form file name")
	}
	if !strings.HasSuffix(name, ".tmpl.txt") && !strings.HasSuffix(name, ".part.txt") {
		return "", errors.New("form files must end in .tmpl.txt or .part.txt")
	}
	dir, err := filepath.Abs(f.tm.GetTemplateDir())
	if err != nil {
		return "", fmt.Errorf("failed to resolve forms directory: %w", err)
	}
	return filepath.Join(dir, name), nil
}

func (f *FormsAPI) handleGetFile(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeFormsRead) {
		return
	}
	path, err := f.formPath(r.PathValue("file"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	content, err := os.ReadFile(path)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Form not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(content)
}

// handlePutFile writes a form file and reloads the forms. A form that fails to
// parse is rolled back.
func (f *FormsAPI) handlePutFile(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeFormsWrite) {
		return
	}
	path, err := f.formPath(r.PathValue("file"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFormBytes))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read request body: %v", err))
		return
	}

	previous, readErr := os.ReadFile(path)
	if err = atomic.WriteFile(path, bytes.NewReader(body)); err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to write form file: %v", err))
		return
	}
	if err = f.tm.Refresh(); err != nil {
		if readErr == nil {
			_ = atomic.WriteFile(path, bytes.NewReader(previous))
		} else {
			_ = os.Remove(path)
		}
		_ = f.tm.Refresh()
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Form rejected: %v", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *FormsAPI) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeFormsWrite) {
		return
	}
	path, err := f.formPath(r.PathValue("file"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err = os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			respondWithError(w, http.StatusNotFound, "Form not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to delete form file: %v", err))
		return
	}
	_ = f.tm.Refresh()
	w.WriteHeader(http.StatusNoContent)
}
