package markov

import (
	"database/sql"
	"math/rand/v2"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// sumomoTokens is "すもももももももものうち" split into morphemes.
var sumomoTokens = []Token{
	NewToken("すもも", "スモモ", "スモモ"),
	NewToken("も", "モ", "モ"),
	NewToken("もも", "モモ", "モモ"),
	NewToken("も", "モ", "モ"),
	NewToken("もも", "モモ", "モモ"),
	NewToken("の", "ノ", "ノ"),
	NewToken("うち", "ウチ", "ウチ"),
}

// newTestRand returns a deterministic random source.
func newTestRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

// countingRand counts the successor draws made through it.
type countingRand struct {
	r     Rand
	draws int
}

func (c *countingRand) IntN(n int) int { return c.r.IntN(n) }

func (c *countingRand) Uint64N(n uint64) uint64 {
	c.draws++
	return c.r.Uint64N(n)
}

// setupSumomoModel trains a model on sumomoTokens.
func setupSumomoModel(t testing.TB) *Model {
	t.Helper()
	m, err := Train(sumomoTokens)
	if err != nil {
		t.Fatalf("setup: Train() failed: %v", err)
	}
	return m
}

// setupTestStore creates a new SQLite database file and a Store for testing.
// It uses t.Cleanup to ensure resources are released.
func setupTestStore(t *testing.T) (*sql.DB, *Store) {
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", dbFile)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}

	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(s.Close)

	return db, s
}
