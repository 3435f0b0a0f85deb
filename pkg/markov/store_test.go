package markov

import (
	"context"
	"errors"
	"testing"
)

func TestSetupSchemaIdempotent(t *testing.T) {
	db, _ := setupTestStore(t)
	if err := SetupSchema(db); err != nil {
		t.Fatalf("second SetupSchema() failed: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM lyric_vocabulary WHERE token_id = ?", SentinelTokenID).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected exactly one sentinel row, got %d", count)
	}
}

func TestStoreSaveLoad(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()
	m := setupSumomoModel(t)

	info, err := s.SaveModel(ctx, "sumomo", m)
	if err != nil {
		t.Fatalf("SaveModel() failed: %v", err)
	}
	if info.Name != "sumomo" || info.KeyMode != KeyWord {
		t.Errorf("unexpected model info: %+v", info)
	}

	loaded, err := s.LoadModel(ctx, "sumomo")
	if err != nil {
		t.Fatalf("LoadModel() failed: %v", err)
	}
	assertSameStructure(t, m, loaded)
}

func TestStoreSaveReplaces(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.SaveModel(ctx, "m", setupSumomoModel(t)); err != nil {
		t.Fatal(err)
	}
	small, err := Train([]Token{NewToken("空", "ソラ", "ソラ"), NewToken("海", "ウミ", "ウミ")}, WithKeyMode(KeyWordReading))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveModel(ctx, "m", small); err != nil {
		t.Fatalf("second SaveModel() failed: %v", err)
	}

	loaded, err := s.LoadModel(ctx, "m")
	if err != nil {
		t.Fatal(err)
	}
	assertSameStructure(t, small, loaded)

	models, err := s.GetModelInfos(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(models) != 1 {
		t.Errorf("expected 1 model after replacing, got %d", len(models))
	}
}

func TestStoreGetModelInfos(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()
	m := setupSumomoModel(t)

	for _, name := range []string{"b", "a", "c"} {
		if _, err := s.SaveModel(ctx, name, m); err != nil {
			t.Fatal(err)
		}
	}
	models, err := s.GetModelInfos(ctx)
	if err != nil {
		t.Fatalf("GetModelInfos() failed: %v", err)
	}
	if len(models) != 3 || models[0].Name != "a" || models[2].Name != "c" {
		t.Errorf("expected models a, b, c in order, got %+v", models)
	}
}

func TestStoreRemoveModel(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.SaveModel(ctx, "gone", setupSumomoModel(t)); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveModel(ctx, "gone"); err != nil {
		t.Fatalf("RemoveModel() failed: %v", err)
	}
	if _, err := s.LoadModel(ctx, "gone"); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound after removal, got %v", err)
	}
	if err := s.RemoveModel(ctx, "gone"); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound for a second removal, got %v", err)
	}
}

func TestStoreSaveEmptyName(t *testing.T) {
	_, s := setupTestStore(t)
	if _, err := s.SaveModel(context.Background(), "", setupSumomoModel(t)); err == nil {
		t.Error("expected an error for an empty model name")
	}
}

func TestStoreGetStats(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()
	m := setupSumomoModel(t)

	if _, err := s.SaveModel(ctx, "sumomo", m); err != nil {
		t.Fatal(err)
	}
	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() failed: %v", err)
	}
	if stats.VocabSize != 5 {
		t.Errorf("expected vocabulary of 5 tokens, got %d", stats.VocabSize)
	}
	if len(stats.Models) != 1 {
		t.Fatalf("expected 1 model, got %d", len(stats.Models))
	}
	if got, want := stats.Stats["sumomo"], m.Stats(); got != want {
		t.Errorf("stored stats %+v differ from model stats %+v", got, want)
	}
}
