// Package artifact persists a fitted pipeline as one self-contained, versioned
// file and restores it without access to training data.
package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/miradorstack/mirador-churn/internal/classifier"
	"github.com/miradorstack/mirador-churn/internal/engine"
	"github.com/miradorstack/mirador-churn/internal/features"
	"github.com/miradorstack/mirador-churn/internal/schema"
)

const (
	// Format tags every artifact produced by this package.
	Format = "mirador-churn/pipeline"
	// Version is the payload layout written by Save.
	Version = 1
)

var (
	// ErrNotFound means no artifact exists at the path.
	ErrNotFound = errors.New("artifact not found")
	// ErrCorrupt means the file exists but could not be read or decoded into a consistent pipeline.
	ErrCorrupt = errors.New("artifact corrupt or unreadable")
	// ErrUnsupportedVersion means the file was written with an unknown format or layout version.
	ErrUnsupportedVersion = errors.New("artifact version unsupported")
	// ErrSchemaMismatch means the artifact was fitted with a different feature schema.
	ErrSchemaMismatch = errors.New("artifact schema mismatch")
)

type envelope struct {
	Format   string          `json:"format"`
	Version  int             `json:"version"`
	Checksum string          `json:"checksum"`
	Payload  json.RawMessage `json:"payload"`
}

type payload struct {
	ModelID      string          `json:"model_id"`
	CreatedAt    time.Time       `json:"created_at"`
	Schema       schema.Schema   `json:"schema"`
	Preprocessor features.State  `json:"preprocessor"`
	Classifier   classifierState `json:"classifier"`
	FeatureNames []string        `json:"feature_names"`
}

type classifierState struct {
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

// Save writes the pipeline to path, replacing any previous artifact atomically.
func Save(p *engine.Pipeline, path string) error {
	if p == nil {
		return errors.New("save artifact: nil pipeline")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".artifact-*.tmp")
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, p); err != nil {
		tmp.Close()
		return fmt.Errorf("save artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("save artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	return nil
}

// Encode writes the artifact representation of p to w.
func Encode(w io.Writer, p *engine.Pipeline) error {
	weights, intercept := p.Coefficients()
	meta := p.Metadata()
	body, err := json.Marshal(payload{
		ModelID:      meta.ModelID,
		CreatedAt:    meta.CreatedAt,
		Schema:       p.Schema(),
		Preprocessor: p.PreprocessorState(),
		Classifier:   classifierState{Weights: weights, Intercept: intercept},
		FeatureNames: p.FeatureNames(),
	})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	out, err := json.Marshal(envelope{
		Format:   Format,
		Version:  Version,
		Checksum: checksum(body),
		Payload:  body,
	})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	_, err = w.Write(append(out, '\n'))
	return err
}

// Load reads the artifact at path and verifies it was fitted with the expected schema.
func Load(path string, expected schema.Schema) (*engine.Pipeline, error) {
	p, err := Read(path)
	if err != nil {
		return nil, err
	}
	if !p.Schema().Equal(expected) {
		return nil, fmt.Errorf("%w: %s", ErrSchemaMismatch, path)
	}
	return p, nil
}

// Read restores the artifact at path without checking it against a caller schema.
func Read(path string) (*engine.Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer f.Close()

	p, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Decode parses an artifact stream. Any deviation from the expected structure
// rejects the whole payload; nothing is partially loaded.
func Decode(r io.Reader) (*engine.Pipeline, error) {
	var env envelope
	if err := decodeStrict(r, &env); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", ErrCorrupt, err)
	}
	if env.Format != Format || env.Version != Version {
		return nil, fmt.Errorf("%w: format %q version %d", ErrUnsupportedVersion, env.Format, env.Version)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, env.Payload); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrCorrupt, err)
	}
	if checksum(compact.Bytes()) != env.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	var body payload
	if err := decodeStrict(bytes.NewReader(compact.Bytes()), &body); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrCorrupt, err)
	}
	p, err := body.pipeline()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return p, nil
}

func (b payload) pipeline() (*engine.Pipeline, error) {
	if b.ModelID == "" {
		return nil, errors.New("missing model id")
	}
	pre, err := features.FromState(b.Preprocessor)
	if err != nil {
		return nil, err
	}
	clf, err := classifier.New(b.Classifier.Weights, b.Classifier.Intercept)
	if err != nil {
		return nil, err
	}
	p, err := engine.Assemble(b.Schema, pre, clf, engine.Metadata{ModelID: b.ModelID, CreatedAt: b.CreatedAt})
	if err != nil {
		return nil, err
	}
	if !slices.Equal(b.FeatureNames, p.FeatureNames()) {
		return nil, errors.New("feature names disagree with preprocessor state")
	}
	return p, nil
}

func decodeStrict(r io.Reader, out any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data")
	}
	return nil
}

func checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:])
}
