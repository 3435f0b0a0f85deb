package templating

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"text/template"

	"github.com/CTAG07/Lyrian/pkg/markov"
)

// FormData is the data passed to every form template.
type FormData struct {
	// Model is the name of the stored model the form draws from.
	Model string
	// Metric is the unit line lengths are counted in, "mora" or "syllable".
	Metric string
	// Seed optionally names the word every line starts after.
	Seed string
}

// TemplateManager renders song forms: text templates whose functions generate
// lyric lines of a fixed length from stored models. Models are loaded from
// the Store on first use and cached until Refresh.
// All methods are concurrent-safe.
type TemplateManager struct {
	logger         *slog.Logger
	config         atomic.Pointer[TemplateConfig]
	gen            *markov.Generator
	store          *markov.Store
	models         map[string]*markov.Model
	modelsMu       sync.Mutex
	templates      *template.Template
	cleanTemplates *template.Template
	templateNames  []string
	funcMap        template.FuncMap
	templateDir    string
	mu             sync.RWMutex
}

// NewTemplateManager creates, initializes, and returns a new TemplateManager.
// Form templates are read from the "forms" subdirectory of dataDir: files named
// *.tmpl.txt are forms, *.part.txt files hold shared definitions. It performs an
// initial Refresh to load all templates.
func NewTemplateManager(logger *slog.Logger, gen *markov.Generator, store *markov.Store, config TemplateConfig, dataDir string) (*TemplateManager, error) {
	tm := &TemplateManager{
		logger:      logger,
		gen:         gen,
		store:       store,
		templateDir: filepath.Join(dataDir, "forms"),
		models:      make(map[string]*markov.Model),
	}
	tm.config.Store(&config)
	tm.funcMap = tm.makeFuncMap()

	if err := tm.Refresh(); err != nil {
		return nil, err
	}

	logger.Info("Template manager initialized", "forms", len(tm.templateNames))
	return tm, nil
}

func (tm *TemplateManager) makeFuncMap() template.FuncMap {
	return template.FuncMap{
		// Lyric generation (from funcs_lyric.go)
		"mora":      tm.moraLine,
		"syllables": tm.syllableLine,
		"line":      tm.line,
		"lines":     tm.lines,
		"lyric":     tm.lyric,

		// Logic & Control (from funcs_logic.go)
		"repeat":       repeat,
		"list":         list,
		"randomChoice": randomChoice,
		"randomInt":    randomInt,
		"add":          add,
		"sub":          sub,
		"isSet":        isSet,
	}
}

// SetConfig applies a new configuration to the TemplateManager without
// reloading the templates. Renders already in progress keep the old limits.
func (tm *TemplateManager) SetConfig(config TemplateConfig) {
	tm.config.Store(&config)
}

// GetConfig returns a copy of the current configuration.
func (tm *TemplateManager) GetConfig() TemplateConfig {
	return *tm.config.Load()
}

// Refresh reloads all form templates from the filesystem and drops every
// cached model, so the next render sees the current contents of the store.
func (tm *TemplateManager) Refresh() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	filePattern := filepath.Join(tm.templateDir, "*.tmpl.txt")
	tm.logger.Info("Loading form files...")

	parsedFiles, err := template.New("").Funcs(tm.funcMap).ParseGlob(filePattern)
	var names []string
	if err != nil {
		if !strings.Contains(err.Error(), "pattern matches no files") {
			tm.logger.Error("failed to parse form files", "error", err)
			return err
		}
		// No form files, so we have to create the object without any
		parsedFiles = template.New("").Funcs(tm.funcMap)
	} else {
		for _, t := range parsedFiles.Templates() {
			// The root template has no name and is never executed.
			if strings.HasSuffix(t.Name(), ".tmpl.txt") {
				names = append(names, t.Name())
			}
		}
	}

	partPattern := filepath.Join(tm.templateDir, "*.part.txt")
	withParts, err := parsedFiles.ParseGlob(partPattern)
	if err != nil {
		if !strings.Contains(err.Error(), "pattern matches no files") {
			tm.logger.Error("failed to parse partial files", "error", err)
			return err
		}
		withParts = parsedFiles
	}

	if len(names) == 0 {
		tm.logger.Warn("No form files found matching pattern", "pattern", filePattern)
	}

	tm.templates = withParts
	tm.templateNames = names
	tm.logger.Info("Loaded form and partial files", "count", len(withParts.Templates())-1)

	// A clean clone is kept for string executions.
	tm.cleanTemplates, err = tm.templates.Clone()
	if err != nil {
		tm.logger.Error("failed to create a clean clone of templates", "error", err)
		return err
	}

	tm.modelsMu.Lock()
	clear(tm.models)
	tm.modelsMu.Unlock()

	return nil
}

// Execute renders a specific form by name, writing the output to w.
func (tm *TemplateManager) Execute(w io.Writer, name string, data FormData) error {
	if name == "" {
		return errors.New("form name must not be empty")
	}
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.templates.ExecuteTemplate(w, name, data)
}

// ExecuteTemplateString parses and executes a raw template string using the
// manager's function map. The loaded forms and partials are available to it.
func (tm *TemplateManager) ExecuteTemplateString(w io.Writer, content string, data FormData) error {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	tempSet, err := tm.cleanTemplates.Clone()
	if err != nil {
		return fmt.Errorf("failed to clone clean templates for string execution: %w", err)
	}

	t, err := tempSet.Parse(content)
	if err != nil {
		return fmt.Errorf("failed to parse string template: %w", err)
	}

	return t.Execute(w, data)
}

// GetRandomTemplate returns the name of a randomly selected form, or "" when
// no form is loaded.
func (tm *TemplateManager) GetRandomTemplate() string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	if len(tm.templateNames) == 0 {
		return ""
	}
	return tm.templateNames[rand.IntN(len(tm.templateNames))]
}

// GetTemplateNames returns the names of the loaded forms.
func (tm *TemplateManager) GetTemplateNames() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return append([]string(nil), tm.templateNames...)
}

// GetTemplateDir returns the directory forms are loaded from.
func (tm *TemplateManager) GetTemplateDir() string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.templateDir
}

// Model returns the named model, loading it from the store on first use.
// Cached models are shared by every caller until ForgetModel or Refresh.
func (tm *TemplateManager) Model(ctx context.Context, name string) (*markov.Model, error) {
	tm.modelsMu.Lock()
	defer tm.modelsMu.Unlock()

	if m, ok := tm.models[name]; ok {
		return m, nil
	}
	if tm.store == nil {
		return nil, fmt.Errorf("%w: %q", markov.ErrModelNotFound, name)
	}
	m, err := tm.store.LoadModel(ctx, name)
	if err != nil {
		return nil, err
	}
	tm.models[name] = m
	tm.logger.Debug("Model cached", "model", name, "states", m.Len())
	return m, nil
}

// ForgetModel drops the cached copy of a model so the next render reloads it
// from the store. It is called after a model is retrained, pruned or removed.
func (tm *TemplateManager) ForgetModel(name string) {
	tm.modelsMu.Lock()
	defer tm.modelsMu.Unlock()
	delete(tm.models, name)
}
