package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ArtifactKind identifies the stage output an artifact carries.
type ArtifactKind string

const (
	ArtifactExtraction ArtifactKind = "extraction"
	ArtifactAnalysis   ArtifactKind = "analysis"
	ArtifactSlides     ArtifactKind = "slides"
)

// ParseArtifactKind validates a kind name supplied by a caller.
func ParseArtifactKind(value string) (ArtifactKind, error) {
	switch kind := ArtifactKind(value); kind {
	case ArtifactExtraction, ArtifactAnalysis, ArtifactSlides:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown artifact kind %q", value)
	}
}

// Section is one heading-delimited region of an extracted paper.
type Section struct {
	Heading   string `json:"heading"`
	Level     int    `json:"level"`
	Content   string `json:"content"`
	StartPage int    `json:"start_page,omitempty"`
}

// Figure is an image or captioned figure found in a paper.
type Figure struct {
	Name    string `json:"name,omitempty"`
	Page    int    `json:"page"`
	Caption string `json:"caption,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Format  string `json:"format,omitempty"`
}

// Extraction is the structured content produced by the extract stage.
type Extraction struct {
	Title      string    `json:"title"`
	Text       string    `json:"text"`
	Sections   []Section `json:"sections"`
	Figures    []Figure  `json:"figures"`
	References []string  `json:"references,omitempty"`
	Metadata   Metadata  `json:"metadata"`
}

// KeyPoint is one finding highlighted by the analyze stage.
type KeyPoint struct {
	Content       string `json:"content"`
	Category      string `json:"category"`
	Importance    int    `json:"importance"`
	SourceSection string `json:"source_section,omitempty"`
}

// SlideOutline is one proposed slide.
type SlideOutline struct {
	Title   string   `json:"title"`
	Bullets []string `json:"bullets"`
	Notes   string   `json:"notes,omitempty"`
	Layout  string   `json:"layout"`
}

// Analysis is the LLM-derived summary, key points and slide outline.
type Analysis struct {
	Summary      string         `json:"summary"`
	SummaryStyle string         `json:"summary_style"`
	Language     string         `json:"language"`
	KeyPoints    []KeyPoint     `json:"key_points"`
	Outline      []SlideOutline `json:"outline"`
	Model        string         `json:"model"`
	Cached       bool           `json:"cached,omitempty"`
}

// Slides describes a rendered deck on disk.
type Slides struct {
	Template   string `json:"template"`
	Style      string `json:"style"`
	Format     string `json:"format"`
	Path       string `json:"path"`
	SlideCount int    `json:"slide_count"`
	SizeBytes  int64  `json:"size_bytes"`
}

// Artifact is the durable output of a completed task. Exactly one of the
// payload pointers is set, matching Kind.
type Artifact struct {
	ID         string       `json:"id"`
	DocumentID string       `json:"document_id"`
	TaskID     string       `json:"task_id"`
	Kind       ArtifactKind `json:"kind"`
	CreatedAt  time.Time    `json:"created_at"`
	Extraction *Extraction  `json:"extraction,omitempty"`
	Analysis   *Analysis    `json:"analysis,omitempty"`
	Slides     *Slides      `json:"slides,omitempty"`
}

// NewArtifactID allocates an artifact identifier.
func NewArtifactID() string {
	return uuid.NewString()
}

func (a *Artifact) validate() error {
	if a.ID == "" || a.DocumentID == "" || a.TaskID == "" {
		return errors.New("artifact requires id, document_id and task_id")
	}
	var set ArtifactKind
	count := 0
	if a.Extraction != nil {
		set, count = ArtifactExtraction, count+1
	}
	if a.Analysis != nil {
		set, count = ArtifactAnalysis, count+1
	}
	if a.Slides != nil {
		set, count = ArtifactSlides, count+1
	}
	if count != 1 || set != a.Kind {
		return fmt.Errorf("artifact %s: payload does not match kind %q", a.ID, a.Kind)
	}
	return nil
}

// PutArtifact persists an artifact.
func (s *Store) PutArtifact(ctx context.Context, artifact *Artifact) error {
	if artifact == nil {
		return errors.New("artifact is nil")
	}
	if err := artifact.validate(); err != nil {
		return err
	}
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now().UTC()
	}
	data, err := encode(artifact)
	if err != nil {
		return err
	}
	return s.Put(ctx, Record{
		Kind:       KindArtifact,
		ID:         artifact.ID,
		DocumentID: artifact.DocumentID,
		Type:       string(artifact.Kind),
		Data:       data,
		CreatedAt:  artifact.CreatedAt,
		UpdatedAt:  artifact.CreatedAt,
	})
}

// GetArtifact fetches an artifact by id.
func (s *Store) GetArtifact(ctx context.Context, id string) (*Artifact, error) {
	rec, err := s.Get(ctx, KindArtifact, id)
	if err != nil {
		return nil, err
	}
	return decodeArtifact(rec)
}

// ListArtifacts returns a document's artifacts of kind, newest first. An
// empty kind lists every kind.
func (s *Store) ListArtifacts(ctx context.Context, documentID string, kind ArtifactKind) ([]*Artifact, error) {
	records, err := s.List(ctx, KindArtifact, Filter{DocumentID: documentID, Type: string(kind), Newest: true})
	if err != nil {
		return nil, err
	}
	artifacts := make([]*Artifact, 0, len(records))
	for _, rec := range records {
		artifact, err := decodeArtifact(rec)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}

func decodeArtifact(rec Record) (*Artifact, error) {
	var artifact Artifact
	if err := json.Unmarshal(rec.Data, &artifact); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", rec.ID, err)
	}
	return &artifact, nil
}
