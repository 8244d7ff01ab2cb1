// Package ingest loads catalogs into the search index and the feature store.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/davidbz/soundgraph/internal/catalog"
	"github.com/davidbz/soundgraph/internal/featureindex"
	"github.com/davidbz/soundgraph/internal/observability"
	"github.com/davidbz/soundgraph/internal/search"
)

const defaultEmbedBatchSize = 64

// ErrEmbedderRequired indicates a catalog declares an embedded feature set without an embedder.
var ErrEmbedderRequired = errors.New("feature set requires an embedding generator")

// SoundIndexer stores searchable sound documents.
type SoundIndexer interface {
	IndexSounds(ctx context.Context, docs []search.SoundDocument) error
}

// FeatureWriter persists feature sets and vectors.
type FeatureWriter interface {
	PutFeatureSet(set featureindex.FeatureSet) error
	PutVectors(featureSet string, vectors map[string][]float32) error
}

// Embedder turns texts into vectors.
type Embedder interface {
	Generate(ctx context.Context, texts []string) ([][]float32, error)
}

// Report summarizes an ingest run.
type Report struct {
	Sounds  int
	Vectors map[string]int
}

// Ingester writes catalogs to the search index and feature store.
type Ingester struct {
	sounds    SoundIndexer
	features  FeatureWriter
	embedder  Embedder
	batchSize int
}

// NewIngester creates an ingester. embedder may be nil when no feature set is embedded.
func NewIngester(sounds SoundIndexer, features FeatureWriter, embedder Embedder) *Ingester {
	return &Ingester{
		sounds:    sounds,
		features:  features,
		embedder:  embedder,
		batchSize: defaultEmbedBatchSize,
	}
}

// Ingest stores every feature set, vector and sound document of cat.
func (i *Ingester) Ingest(ctx context.Context, cat *catalog.Catalog) (*Report, error) {
	logger := observability.FromContext(ctx)
	report := &Report{Vectors: make(map[string]int, len(cat.FeatureSets))}

	for _, set := range cat.FeatureSets {
		vectors, err := i.vectorsFor(ctx, set, cat.Sounds)
		if err != nil {
			return nil, err
		}

		if err := i.features.PutFeatureSet(set); err != nil {
			return nil, fmt.Errorf("failed to store feature set %s: %w", set.Name, err)
		}
		if err := i.features.PutVectors(set.Name, vectors); err != nil {
			return nil, fmt.Errorf("failed to store vectors of %s: %w", set.Name, err)
		}

		report.Vectors[set.Name] = len(vectors)
		logger.Info("feature set ingested",
			observability.String("feature_set", set.Name),
			observability.Int("vectors", len(vectors)))
	}

	docs := make([]search.SoundDocument, 0, len(cat.Sounds))
	for _, sound := range cat.Sounds {
		docs = append(docs, toDocument(sound))
	}
	if err := i.sounds.IndexSounds(ctx, docs); err != nil {
		return nil, err
	}
	report.Sounds = len(docs)

	return report, nil
}

// vectorsFor collects or generates the vectors of one feature set.
func (i *Ingester) vectorsFor(
	ctx context.Context,
	set featureindex.FeatureSet,
	sounds []catalog.Sound,
) (map[string][]float32, error) {
	vectors := make(map[string][]float32, len(sounds))

	if !set.Embed {
		for _, sound := range sounds {
			vector, ok := sound.Features[set.Name]
			if !ok {
				continue
			}
			if len(vector) != set.Dimension {
				return nil, fmt.Errorf("%w: sound %s in %s has %d values, want %d",
					featureindex.ErrDimensionMismatch, sound.ID, set.Name, len(vector), set.Dimension)
			}
			vectors[sound.ID] = vector
		}
		return vectors, nil
	}

	if i.embedder == nil {
		return nil, fmt.Errorf("%w: %s", ErrEmbedderRequired, set.Name)
	}

	for start := 0; start < len(sounds); start += i.batchSize {
		batch := sounds[start:min(start+i.batchSize, len(sounds))]
		texts := make([]string, len(batch))
		for j, sound := range batch {
			texts[j] = sound.Text()
		}

		embedded, err := i.embedder.Generate(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed %s: %w", set.Name, err)
		}
		if len(embedded) != len(batch) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d sounds", len(embedded), len(batch))
		}
		for j, vector := range embedded {
			if len(vector) != set.Dimension {
				return nil, fmt.Errorf("%w: embedding of %s has %d values, want %d",
					featureindex.ErrDimensionMismatch, batch[j].ID, len(vector), set.Dimension)
			}
			vectors[batch[j].ID] = vector
		}
	}

	return vectors, nil
}

func toDocument(sound catalog.Sound) search.SoundDocument {
	return search.SoundDocument{
		ID:               sound.ID,
		OriginalFilename: sound.Name,
		Username:         sound.Username,
		Tag:              sound.Tags,
		Description:      sound.Description,
		PackTokenized:    sound.Pack,
		Pack:             sound.Pack,
		Created:          sound.Created,
	}
}
