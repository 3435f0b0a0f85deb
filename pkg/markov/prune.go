package markov

import (
	"context"
	"fmt"
	"log/slog"
)

// PruneModel removes every transition of the named model whose frequency is
// less than or equal to minFreq. Sentinel transitions are counted like any
// other. A state left without transitions ends the chain once the model is
// loaded again.
func (s *Store) PruneModel(ctx context.Context, name string, minFreq int) (int64, error) {
	info, err := s.GetModelInfo(ctx, name)
	if err != nil {
		return 0, err
	}

	res, err := s.stmtPruneModel.ExecContext(ctx, info.Id, minFreq)
	if err != nil {
		return 0, fmt.Errorf("could not prune model %d: %w", info.Id, err)
	}
	rowsAffected, _ := res.RowsAffected()

	s.logger.InfoContext(ctx, "Model pruned",
		slog.String("model_name", info.Name),
		slog.Int("model_id", info.Id),
		slog.Int("min_frequency", minFreq),
		slog.Int64("transitions_removed", rowsAffected),
	)
	return rowsAffected, nil
}

// VocabularyPrune removes vocabulary entries that no stored model refers to
// any longer, for example after RemoveModel or PruneModel. The sentinel is
// never removed.
func (s *Store) VocabularyPrune(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM lyric_vocabulary
WHERE token_id <> ?
  AND token_id NOT IN (SELECT token_id FROM lyric_states)
  AND token_id NOT IN (SELECT token_id FROM lyric_transitions);`, SentinelTokenID)
	if err != nil {
		return 0, fmt.Errorf("could not prune vocabulary: %w", err)
	}
	removed, _ := res.RowsAffected()

	s.logger.InfoContext(ctx, "Vocabulary pruned",
		slog.Int64("tokens_removed", removed),
	)
	return removed, nil
}
