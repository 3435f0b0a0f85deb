package markov

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/natefinch/atomic"
)

// SnapshotVersion is the version written by Export. ImportModel accepts
// snapshots without a version as version 1.
const SnapshotVersion = 1

// probabilityScale converts probability-only successors into integer counts.
const probabilityScale = 1_000_000

// ExportedModel is the serializable representation of a trained model,
// used for JSON-based import and export.
type ExportedModel struct {
	Version int             `json:"version"`
	KeyMode KeyMode         `json:"key_mode"`
	States  []ExportedState `json:"states"`
}

// ExportedState is one state of an ExportedModel. Snapshots written by older
// tools name the successor list "state_space" and carry probabilities only.
type ExportedState struct {
	Token      Token               `json:"token"`
	Successors []ExportedSuccessor `json:"successors,omitempty"`
	StateSpace []ExportedSuccessor `json:"state_space,omitempty"`
}

// ExportedSuccessor is a single transition of an ExportedState.
type ExportedSuccessor struct {
	Token       Token   `json:"token"`
	Count       int     `json:"count,omitempty"`
	Probability float64 `json:"probability"`
}

// Snapshot returns the serializable form of the model.
func (m *Model) Snapshot() *ExportedModel {
	exported := &ExportedModel{
		Version: SnapshotVersion,
		KeyMode: m.keyMode,
		States:  make([]ExportedState, 0, len(m.states)),
	}
	for _, s := range m.states {
		es := ExportedState{
			Token:      s.Token,
			Successors: make([]ExportedSuccessor, 0, len(s.Successors)),
		}
		for _, succ := range s.Successors {
			es.Successors = append(es.Successors, ExportedSuccessor{
				Token:       succ.Token,
				Count:       succ.Count,
				Probability: succ.Probability,
			})
		}
		exported.States = append(exported.States, es)
	}
	return exported
}

// Export writes the model to w as indented JSON.
func (m *Model) Export(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(m.Snapshot())
}

// ImportModel reads a JSON snapshot from r and rebuilds the model, including
// its sampling tables. Every failure wraps ErrModelDecode.
func ImportModel(r io.Reader) (*Model, error) {
	var exported ExportedModel
	if err := json.NewDecoder(r).Decode(&exported); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelDecode, err)
	}
	return exported.Model()
}

// Model validates the snapshot and builds the model it describes.
func (e *ExportedModel) Model() (*Model, error) {
	switch e.Version {
	case 0, SnapshotVersion:
	default:
		return nil, fmt.Errorf("%w: unsupported snapshot version %d", ErrModelDecode, e.Version)
	}
	if e.States == nil {
		return nil, fmt.Errorf("%w: missing states", ErrModelDecode)
	}

	states := make([]*State, 0, len(e.States))
	for i, es := range e.States {
		if es.Token.IsSentinel() {
			return nil, fmt.Errorf("%w: state %d has no word", ErrModelDecode, i)
		}
		list := es.Successors
		if len(list) == 0 {
			list = es.StateSpace
		}
		successors := make([]Successor, 0, len(list))
		for _, succ := range list {
			count, err := successorCount(succ)
			if err != nil {
				return nil, fmt.Errorf("%w: state %q: %w", ErrModelDecode, es.Token.Word, err)
			}
			successors = append(successors, Successor{Token: succ.Token, Count: count})
		}
		states = append(states, &State{Token: es.Token, Successors: successors})
	}

	m, err := newModel(e.KeyMode, states)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelDecode, err)
	}
	return m, nil
}

func successorCount(succ ExportedSuccessor) (int, error) {
	if succ.Count > 0 {
		return succ.Count, nil
	}
	if succ.Count < 0 {
		return 0, fmt.Errorf("successor %q has negative count %d", succ.Token.Word, succ.Count)
	}
	p := succ.Probability
	if math.IsNaN(p) || p <= 0 || p > 1 {
		return 0, fmt.Errorf("successor %q has neither a count nor a valid probability", succ.Token.Word)
	}
	return max(1, int(math.Round(p*probabilityScale))), nil
}

// SaveModelFile writes the model snapshot to path, replacing any existing
// file atomically.
func SaveModelFile(ctx context.Context, path string, m *Model) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := m.Export(&buf); err != nil {
		return fmt.Errorf("could not encode model: %w", err)
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("could not write model file %s: %w", path, err)
	}
	return nil
}

// LoadModelFile reads a model snapshot from path.
func LoadModelFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)
	return ImportModel(f)
}
