package markov

import (
	"context"
	"errors"
	"testing"
)

func TestPruneModel(t *testing.T) {
	db, s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.SaveModel(ctx, "prune_test", setupSumomoModel(t)); err != nil {
		t.Fatal(err)
	}
	// Only も -> もも was seen twice; every other transition has frequency 1.
	removed, err := s.PruneModel(ctx, "prune_test", 1)
	if err != nil {
		t.Fatalf("PruneModel failed: %v", err)
	}
	if removed != 5 {
		t.Errorf("expected 5 transitions removed, got %d", removed)
	}

	var count int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM lyric_transitions WHERE frequency <= 1").Scan(&count)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected 0 transitions with frequency 1 after pruning, got %d", count)
	}

	m, err := s.LoadModel(ctx, "prune_test")
	if err != nil {
		t.Fatalf("LoadModel() after pruning failed: %v", err)
	}
	if m.Len() != 5 {
		t.Errorf("expected pruning to keep all 5 states, got %d", m.Len())
	}
	sumomo, _ := m.LookupWord("すもも")
	if !sumomo.IsTerminal() {
		t.Errorf("expected すもも to end the chain after pruning, got %+v", sumomo.Successors)
	}
	mo, _ := m.LookupWord("も")
	if mo.IsTerminal() {
		t.Error("expected も -> もも to survive pruning")
	}
}

func TestPruneUnknownModel(t *testing.T) {
	_, s := setupTestStore(t)
	if _, err := s.PruneModel(context.Background(), "missing", 1); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound, got %v", err)
	}
}

func TestVocabularyPrune(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.SaveModel(ctx, "a", setupSumomoModel(t)); err != nil {
		t.Fatal(err)
	}
	other, err := Train([]Token{NewToken("空", "ソラ", "ソラ"), NewToken("も", "モ", "モ")})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveModel(ctx, "b", other); err != nil {
		t.Fatal(err)
	}

	removed, err := s.VocabularyPrune(ctx)
	if err != nil {
		t.Fatalf("VocabularyPrune failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("expected nothing to prune while both models exist, got %d", removed)
	}

	if err := s.RemoveModel(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	// Only 空 is unique to model b; も is shared with model a.
	removed, err = s.VocabularyPrune(ctx)
	if err != nil {
		t.Fatalf("VocabularyPrune failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 token removed, got %d", removed)
	}

	if _, err := s.LoadModel(ctx, "a"); err != nil {
		t.Errorf("model a must survive vocabulary pruning: %v", err)
	}
}
