// Package search implements the sound search index on bleve.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/davidbz/soundgraph/internal/domain"
	"github.com/davidbz/soundgraph/internal/observability"
)

const defaultRows = 15

// Config holds search index settings.
type Config struct {
	IndexPath string `env:"SEARCH_INDEX_PATH" envDefault:"data/sounds.bleve"`
	// MaxRows caps any query regardless of what the caller requests.
	MaxRows int `env:"SEARCH_MAX_ROWS" envDefault:"1000"`
}

// Index implements domain.IndexSearch.
type Index struct {
	index   bleve.Index
	maxRows int
}

// Open opens the index at path, creating it when missing.
func Open(cfg Config) (*Index, error) {
	index, err := bleve.Open(cfg.IndexPath)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		index, err = bleve.New(cfg.IndexPath, BuildIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open search index at %s: %w", cfg.IndexPath, err)
	}
	return NewIndex(index, cfg.MaxRows), nil
}

// NewIndex wraps an open bleve index.
func NewIndex(index bleve.Index, maxRows int) *Index {
	return &Index{
		index:   index,
		maxRows: maxRows,
	}
}

// Close closes the underlying index.
func (i *Index) Close() error {
	return i.index.Close()
}

// IndexSounds adds or replaces documents in one batch.
func (i *Index) IndexSounds(ctx context.Context, docs []SoundDocument) error {
	batch := i.index.NewBatch()
	for _, doc := range docs {
		if doc.ID == "" {
			return errors.New("sound document id cannot be empty")
		}
		if err := batch.Index(doc.ID, doc); err != nil {
			return fmt.Errorf("failed to batch sound %s: %w", doc.ID, err)
		}
	}

	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index sounds: %w", err)
	}

	observability.FromContext(ctx).Info("indexed sounds", observability.Int("count", len(docs)))
	return nil
}

// Query returns the ids of matching sounds in rank order.
func (i *Index) Query(ctx context.Context, req domain.SearchRequest) ([]string, error) {
	logger := observability.FromContext(ctx)

	rows := req.Rows
	if rows <= 0 {
		rows = defaultRows
	}
	if i.maxRows > 0 && rows > i.maxRows {
		rows = i.maxRows
	}

	q, err := buildQuery(req.QueryParams)
	if err != nil {
		return nil, err
	}

	searchReq := bleve.NewSearchRequestOptions(q, rows, 0, false)
	searchReq.SortBy(parseSort(req.Sort))
	if req.Grouping {
		searchReq.Fields = []string{FieldPack}
	}

	logger.Debug("running search query",
		observability.String("query", req.SearchQuery),
		observability.String("filter", req.FilterQuery),
		observability.Int("rows", rows))

	result, err := i.index.SearchInContext(ctx, searchReq)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	ids := make([]string, 0, len(result.Hits))
	seenPacks := make(map[string]struct{})
	for _, hit := range result.Hits {
		if req.Grouping {
			if pack, ok := hit.Fields[FieldPack].(string); ok && pack != "" {
				if _, seen := seenPacks[pack]; seen {
					continue
				}
				seenPacks[pack] = struct{}{}
			}
		}
		ids = append(ids, hit.ID)
	}

	logger.Debug("search query completed",
		observability.Int("total_hits", int(result.Total)),
		observability.Int("ids_returned", len(ids)))

	return ids, nil
}

// buildQuery combines the weighted free-text query with the filter.
func buildQuery(params domain.QueryParams) (query.Query, error) {
	var text query.Query = bleve.NewMatchAllQuery()

	if terms := strings.TrimSpace(params.SearchQuery); terms != "" {
		fields := []struct {
			name   string
			weight int
		}{
			{FieldTag, params.Weights.Tag},
			{FieldDescription, params.Weights.Description},
			{FieldOriginalFilename, params.Weights.OriginalFilename},
			{FieldPackTokenized, params.Weights.PackTokenized},
			{FieldUsername, params.Weights.Username},
			{FieldID, params.Weights.ID},
		}

		disjunction := bleve.NewDisjunctionQuery()
		for _, f := range fields {
			if f.weight <= 0 {
				continue
			}
			var fieldQuery query.Query
			if f.name == FieldID || f.name == FieldUsername {
				term := bleve.NewTermQuery(terms)
				term.SetField(f.name)
				term.SetBoost(float64(f.weight))
				fieldQuery = term
			} else {
				match := bleve.NewMatchQuery(terms)
				match.SetField(f.name)
				match.SetBoost(float64(f.weight))
				fieldQuery = match
			}
			disjunction.AddQuery(fieldQuery)
		}
		if len(disjunction.Disjuncts) == 0 {
			return nil, fmt.Errorf("%w: all field weights are zero", domain.ErrInvalidRequest)
		}
		text = disjunction
	}

	filter := strings.TrimSpace(params.FilterQuery)
	if filter == "" {
		return text, nil
	}

	conjunction := bleve.NewConjunctionQuery(text, bleve.NewQueryStringQuery(filter))
	return conjunction, nil
}

// parseSort converts "field asc, other desc" into bleve sort keys. Relevance is the default
// and the final tie breaker.
func parseSort(sort string) []string {
	var keys []string
	for _, clause := range strings.Split(sort, ",") {
		parts := strings.Fields(clause)
		if len(parts) == 0 {
			continue
		}

		field := parts[0]
		if field == "score" {
			field = "_score"
		}
		descending := len(parts) > 1 && strings.EqualFold(parts[1], "desc")
		if field == "_score" {
			descending = !(len(parts) > 1 && strings.EqualFold(parts[1], "asc"))
		}
		if descending {
			field = "-" + field
		}
		keys = append(keys, field)
	}

	keys = append(keys, "-_score", "_id")
	return keys
}
