package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Indexed field names.
const (
	FieldID               = "id"
	FieldOriginalFilename = "original_filename"
	FieldUsername         = "username"
	FieldTag              = "tag"
	FieldDescription      = "description"
	FieldPackTokenized    = "pack_tokenized"
	FieldPack             = "pack"
	FieldCreated          = "created"
)

// SoundDocument is the searchable representation of a sound.
type SoundDocument struct {
	ID               string   `json:"id"`
	OriginalFilename string   `json:"original_filename"`
	Username         string   `json:"username"`
	Tag              []string `json:"tag"`
	Description      string   `json:"description"`
	PackTokenized    string   `json:"pack_tokenized"`
	Pack             string   `json:"pack"`
	Created          string   `json:"created"`
}

// BuildIndexMapping returns the sound document mapping.
func BuildIndexMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()
	text.Analyzer = en.AnalyzerName

	exact := bleve.NewKeywordFieldMapping()
	exact.Analyzer = keyword.Name

	stored := bleve.NewKeywordFieldMapping()
	stored.Analyzer = keyword.Name
	stored.Store = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(FieldID, exact)
	doc.AddFieldMappingsAt(FieldOriginalFilename, text)
	doc.AddFieldMappingsAt(FieldUsername, exact)
	doc.AddFieldMappingsAt(FieldTag, text)
	doc.AddFieldMappingsAt(FieldDescription, text)
	doc.AddFieldMappingsAt(FieldPackTokenized, text)
	doc.AddFieldMappingsAt(FieldPack, stored)
	doc.AddFieldMappingsAt(FieldCreated, exact)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = doc
	indexMapping.DefaultAnalyzer = en.AnalyzerName
	return indexMapping
}
