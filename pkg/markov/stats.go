package markov

import "context"

// ModelStats holds aggregated statistics for a single model.
type ModelStats struct {
	States         int `json:"states"`          // The number of states.
	Transitions    int `json:"transitions"`     // The number of distinct state->token links, sentinel links excluded.
	TotalFrequency int `json:"total_frequency"` // The sum of all link counts; the number of trained transitions.
	TerminalStates int `json:"terminal_states"` // The number of states whose only successor is the sentinel.
}

// DBStats holds aggregated statistics for the entire store, including a
// list of all models and their individual stats.
type DBStats struct {
	Models    []ModelInfo           `json:"models"`     // A list of models in the store
	Stats     map[string]ModelStats `json:"stats"`      // A mapping of model names to their stats
	VocabSize int                   `json:"vocab_size"` // The number of unique tokens across all models
}

// Stats computes statistics of an in-memory model.
func (m *Model) Stats() ModelStats {
	var stats ModelStats
	stats.States = len(m.states)
	for _, s := range m.states {
		for _, succ := range s.Successors {
			stats.TotalFrequency += succ.Count
			if !succ.Token.IsSentinel() {
				stats.Transitions++
			}
		}
		if s.IsTerminal() {
			stats.TerminalStates++
		}
	}
	return stats
}

// GetStats returns a snapshot of statistics for the entire store, including
// global counts and per-model stats.
func (s *Store) GetStats(ctx context.Context) (*DBStats, error) {
	models, err := s.GetModelInfos(ctx)
	if err != nil {
		return nil, err
	}

	var vocabLen int
	if err = s.stmtGetVocabLen.QueryRowContext(ctx).Scan(&vocabLen); err != nil {
		return nil, err
	}

	modelStats := make(map[string]ModelStats, len(models))
	for _, v := range models {
		var st ModelStats
		if err = s.stmtModelStates.QueryRowContext(ctx, v.Id).Scan(&st.States); err != nil {
			return nil, err
		}
		if err = s.stmtModelLinks.QueryRowContext(ctx, v.Id).Scan(&st.Transitions); err != nil {
			return nil, err
		}
		if err = s.stmtModelFreq.QueryRowContext(ctx, v.Id).Scan(&st.TotalFrequency); err != nil {
			return nil, err
		}
		if err = s.stmtModelTerminals.QueryRowContext(ctx, v.Id).Scan(&st.TerminalStates); err != nil {
			return nil, err
		}
		modelStats[v.Name] = st
	}

	return &DBStats{
		Models:    models,
		Stats:     modelStats,
		VocabSize: vocabLen,
	}, nil
}
