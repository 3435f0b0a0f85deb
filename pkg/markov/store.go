package markov

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// SentinelTokenID is the reserved vocabulary ID of the sentinel token.
const SentinelTokenID = 0

// SetupSchema initializes the necessary tables and the sentinel vocabulary
// entry in the provided database. It is idempotent and safe to call on an
// already-initialized database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaVocab = `
CREATE TABLE IF NOT EXISTS lyric_vocabulary (
    token_id INTEGER PRIMARY KEY,
    word TEXT NOT NULL,
    mora TEXT NOT NULL,
    syllable TEXT NOT NULL,
    UNIQUE (word, mora, syllable)
);
`
		schemaModels = `
CREATE TABLE IF NOT EXISTS lyric_models (
    model_id INTEGER PRIMARY KEY,
    model_name TEXT NOT NULL UNIQUE,
    key_mode TEXT NOT NULL
);
`
		schemaStates = `
CREATE TABLE IF NOT EXISTS lyric_states (
    model_id INTEGER NOT NULL,
    position INTEGER NOT NULL,
    token_id INTEGER NOT NULL,
    PRIMARY KEY (model_id, position)
);
`
		schemaTransitions = `
CREATE TABLE IF NOT EXISTS lyric_transitions (
    model_id INTEGER NOT NULL,
    state_position INTEGER NOT NULL,
    successor_position INTEGER NOT NULL,
    token_id INTEGER NOT NULL,
    frequency INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (model_id, state_position, successor_position)
);
`
	)

	sentinel := fmt.Sprintf("INSERT OR IGNORE INTO lyric_vocabulary (token_id, word, mora, syllable) VALUES (%d, '', '', '');", SentinelTokenID)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	// Commit makes the deferred rollback a no-op.
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	for _, stmt := range []string{schemaVocab, schemaModels, schemaStates, schemaTransitions} {
		if _, err = tx.Exec(stmt); err != nil {
			return fmt.Errorf("could not create schema: %w", err)
		}
	}

	if _, err = tx.Exec(sentinel); err != nil {
		return fmt.Errorf("could not insert sentinel token: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// ModelInfo holds the metadata of a stored model.
type ModelInfo struct {
	Id      int     `json:"id"`
	Name    string  `json:"name"`
	KeyMode KeyMode `json:"key_mode"`
}

// Store persists models in a SQLite database. Saving and loading go through
// the same flat state/transition layout as the JSON snapshot.
type Store struct {
	db                 *sql.DB
	stmtGetModelInfo   *sql.Stmt
	stmtGetModels      *sql.Stmt
	stmtInsertVocab    *sql.Stmt
	stmtPruneModel     *sql.Stmt
	stmtModelStates    *sql.Stmt
	stmtModelLinks     *sql.Stmt
	stmtModelFreq      *sql.Stmt
	stmtModelTerminals *sql.Stmt
	stmtGetVocabLen    *sql.Stmt
	logger             *slog.Logger
}

// NewStore creates a Store on db. SetupSchema must have been called on db.
// All SQL statements are prepared up front.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{
		db:     db,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	prepared := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.stmtGetModelInfo, `SELECT model_id, key_mode FROM lyric_models WHERE model_name = ?;`},
		{&s.stmtGetModels, `SELECT model_id, model_name, key_mode FROM lyric_models ORDER BY model_name;`},
		{&s.stmtInsertVocab, `INSERT INTO lyric_vocabulary (word, mora, syllable) VALUES (?, ?, ?) ON CONFLICT(word, mora, syllable) DO UPDATE SET word=excluded.word RETURNING token_id;`},
		{&s.stmtPruneModel, `DELETE FROM lyric_transitions WHERE model_id = ? AND frequency <= ?;`},
		{&s.stmtModelStates, `SELECT COUNT(*) FROM lyric_states WHERE model_id = ?;`},
		{&s.stmtModelLinks, `SELECT COUNT(*) FROM lyric_transitions WHERE model_id = ? AND token_id <> 0;`},
		{&s.stmtModelFreq, `SELECT coalesce(SUM(frequency), 0) FROM lyric_transitions WHERE model_id = ?;`},
		{&s.stmtModelTerminals, `
SELECT COUNT(*) FROM lyric_states s
WHERE s.model_id = ? AND NOT EXISTS (
    SELECT 1 FROM lyric_transitions t
    WHERE t.model_id = s.model_id AND t.state_position = s.position AND t.token_id <> 0
);`},
		{&s.stmtGetVocabLen, `SELECT COUNT(*) FROM lyric_vocabulary WHERE token_id <> 0;`},
	}

	for _, p := range prepared {
		stmt, err := db.Prepare(p.query)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("could not prepare statement: %w", err)
		}
		*p.dst = stmt
	}

	return s, nil
}

// Close releases all prepared SQL statements held by the Store. The database
// itself is left open.
func (s *Store) Close() {
	for _, stmt := range []*sql.Stmt{
		s.stmtGetModelInfo,
		s.stmtGetModels,
		s.stmtInsertVocab,
		s.stmtPruneModel,
		s.stmtModelStates,
		s.stmtModelLinks,
		s.stmtModelFreq,
		s.stmtModelTerminals,
		s.stmtGetVocabLen,
	} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

// DB returns the database the Store was created on.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// GetModelInfos retrieves metadata for all stored models, ordered by name.
func (s *Store) GetModelInfos(ctx context.Context) ([]ModelInfo, error) {
	rows, err := s.stmtGetModels.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	models := make([]ModelInfo, 0)
	for rows.Next() {
		var info ModelInfo
		var keyMode string
		if err = rows.Scan(&info.Id, &info.Name, &keyMode); err != nil {
			return nil, err
		}
		if info.KeyMode, err = ParseKeyMode(keyMode); err != nil {
			return nil, fmt.Errorf("model %q: %w", info.Name, err)
		}
		models = append(models, info)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return models, nil
}

// GetModelInfo retrieves the metadata of a single model. An unknown name
// yields ErrModelNotFound.
func (s *Store) GetModelInfo(ctx context.Context, name string) (ModelInfo, error) {
	var id int
	var keyMode string
	err := s.stmtGetModelInfo.QueryRowContext(ctx, name).Scan(&id, &keyMode)
	if errors.Is(err, sql.ErrNoRows) {
		return ModelInfo{}, fmt.Errorf("%w: %q", ErrModelNotFound, name)
	}
	if err != nil {
		return ModelInfo{}, err
	}
	mode, err := ParseKeyMode(keyMode)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("model %q: %w", name, err)
	}
	return ModelInfo{Id: id, Name: name, KeyMode: mode}, nil
}

// SaveModel stores m under name. An existing model of the same name is
// replaced. The operation is performed within a transaction.
func (s *Store) SaveModel(ctx context.Context, name string, m *Model) (ModelInfo, error) {
	if name == "" {
		return ModelInfo{}, errors.New("model name must not be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("could not begin transaction for save: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if err = deleteModel(ctx, tx, name); err != nil {
		return ModelInfo{}, err
	}

	res, err := tx.ExecContext(ctx, "INSERT INTO lyric_models (model_name, key_mode) VALUES (?, ?)", name, m.KeyMode().String())
	if err != nil {
		return ModelInfo{}, fmt.Errorf("failed to insert model '%s': %w", name, err)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return ModelInfo{}, err
	}
	modelID := int(newID)

	stmtInsertVocab := tx.StmtContext(ctx, s.stmtInsertVocab)
	stmtInsertState, err := tx.PrepareContext(ctx, `INSERT INTO lyric_states (model_id, position, token_id) VALUES (?, ?, ?);`)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("failed to prepare state insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertState)
	stmtInsertLink, err := tx.PrepareContext(ctx, `INSERT INTO lyric_transitions (model_id, state_position, successor_position, token_id, frequency) VALUES (?, ?, ?, ?, ?);`)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("failed to prepare transition insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertLink)

	vocabCache := map[Token]int{SentinelToken: SentinelTokenID}
	tokenID := func(t Token) (int, error) {
		if id, ok := vocabCache[t]; ok {
			return id, nil
		}
		var id int
		if err := stmtInsertVocab.QueryRowContext(ctx, t.Word, t.Mora, t.Syllable).Scan(&id); err != nil {
			return 0, fmt.Errorf("sql insert vocabulary error for token '%s': %w", t.Word, err)
		}
		vocabCache[t] = id
		return id, nil
	}

	links := 0
	for pos, state := range m.States() {
		id, err := tokenID(state.Token)
		if err != nil {
			return ModelInfo{}, err
		}
		if _, err = stmtInsertState.ExecContext(ctx, modelID, pos, id); err != nil {
			return ModelInfo{}, fmt.Errorf("failed to insert state %d: %w", pos, err)
		}
		for succPos, succ := range state.Successors {
			succID, err := tokenID(succ.Token)
			if err != nil {
				return ModelInfo{}, err
			}
			if _, err = stmtInsertLink.ExecContext(ctx, modelID, pos, succPos, succID, succ.Count); err != nil {
				return ModelInfo{}, fmt.Errorf("failed to insert transition (%d -> %d): %w", pos, succPos, err)
			}
			links++
		}
	}

	if err = tx.Commit(); err != nil {
		return ModelInfo{}, fmt.Errorf("could not commit model save: %w", err)
	}

	s.logger.InfoContext(ctx, "Model saved",
		slog.String("model_name", name),
		slog.Int("model_id", modelID),
		slog.Int("states", m.Len()),
		slog.Int("transitions", links),
	)

	return ModelInfo{Id: modelID, Name: name, KeyMode: m.KeyMode()}, nil
}

// LoadModel reads the model stored under name and rebuilds its sampling
// tables. States whose transitions were all pruned receive the sentinel.
func (s *Store) LoadModel(ctx context.Context, name string) (*Model, error) {
	info, err := s.GetModelInfo(ctx, name)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT s.position, v.word, v.mora, v.syllable
FROM lyric_states s JOIN lyric_vocabulary v ON v.token_id = s.token_id
WHERE s.model_id = ? ORDER BY s.position;`, info.Id)
	if err != nil {
		return nil, fmt.Errorf("could not query states: %w", err)
	}
	states := make([]*State, 0)
	byPosition := make(map[int]*State)
	for rows.Next() {
		var pos int
		var t Token
		if err = rows.Scan(&pos, &t.Word, &t.Mora, &t.Syllable); err != nil {
			_ = rows.Close()
			return nil, err
		}
		st := &State{Token: t}
		states = append(states, st)
		byPosition[pos] = st
	}
	_ = rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	lRows, err := s.db.QueryContext(ctx, `
SELECT t.state_position, v.word, v.mora, v.syllable, t.frequency
FROM lyric_transitions t JOIN lyric_vocabulary v ON v.token_id = t.token_id
WHERE t.model_id = ? ORDER BY t.state_position, t.successor_position;`, info.Id)
	if err != nil {
		return nil, fmt.Errorf("could not query transitions: %w", err)
	}
	for lRows.Next() {
		var pos, freq int
		var t Token
		if err = lRows.Scan(&pos, &t.Word, &t.Mora, &t.Syllable, &freq); err != nil {
			_ = lRows.Close()
			return nil, err
		}
		st, ok := byPosition[pos]
		if !ok {
			_ = lRows.Close()
			return nil, fmt.Errorf("%w: transition from unknown state %d", ErrModelDecode, pos)
		}
		st.Successors = append(st.Successors, Successor{Token: t, Count: freq})
	}
	_ = lRows.Close()
	if err = lRows.Err(); err != nil {
		return nil, err
	}

	m, err := newModel(info.KeyMode, states)
	if err != nil {
		return nil, fmt.Errorf("%w: model %q: %w", ErrModelDecode, name, err)
	}

	s.logger.DebugContext(ctx, "Model loaded",
		slog.String("model_name", name),
		slog.Int("model_id", info.Id),
		slog.Int("states", m.Len()),
	)
	return m, nil
}

// RemoveModel deletes a model and all of its states and transitions. Removing
// an unknown model yields ErrModelNotFound.
func (s *Store) RemoveModel(ctx context.Context, name string) error {
	info, err := s.GetModelInfo(ctx, name)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if err = deleteModel(ctx, tx, name); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Model removed successfully",
		slog.String("model_name", name),
		slog.Int("model_id", info.Id),
	)
	return nil
}

// deleteModel removes every row belonging to the named model, if present.
func deleteModel(ctx context.Context, tx *sql.Tx, name string) error {
	var modelID int
	err := tx.QueryRowContext(ctx, "SELECT model_id FROM lyric_models WHERE model_name = ?", name).Scan(&modelID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to query for model '%s': %w", name, err)
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM lyric_transitions WHERE model_id = ?", modelID); err != nil {
		return fmt.Errorf("failed to remove transitions for model %d: %w", modelID, err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM lyric_states WHERE model_id = ?", modelID); err != nil {
		return fmt.Errorf("failed to remove states for model %d: %w", modelID, err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM lyric_models WHERE model_id = ?", modelID); err != nil {
		return fmt.Errorf("failed to remove model %d: %w", modelID, err)
	}
	return nil
}
