package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

const (
	requestKeyPrefix     = "cluster-results-"
	requestKeyHashLength = 32
)

// keyEscaper escapes the separator inside components so distinct requests never share a
// composite.
var keyEscaper = strings.NewReplacer(`\`, `\\`, "-", `\-`)

// RequestKey identifies a clustering request in the cache.
type RequestKey struct {
	// Composite is the readable form, kept for collision auditing and logs.
	Composite string
	// Hash is the fixed-length cache key.
	Hash string
}

// NewRequestKey derives the cache key of a clustering request.
func NewRequestKey(params QueryParams, featureSet string) RequestKey {
	grouping := "0"
	if params.Grouping {
		grouping = "1"
	}

	parts := []string{
		normalizeText(params.SearchQuery),
		normalizeText(params.FilterQuery),
		normalizeText(params.Sort),
		strconv.Itoa(params.Weights.Tag),
		strconv.Itoa(params.Weights.Username),
		strconv.Itoa(params.Weights.ID),
		strconv.Itoa(params.Weights.Description),
		strconv.Itoa(params.Weights.PackTokenized),
		strconv.Itoa(params.Weights.OriginalFilename),
		grouping,
		strings.TrimSpace(featureSet),
	}
	for i, part := range parts {
		parts[i] = keyEscaper.Replace(part)
	}
	composite := requestKeyPrefix + strings.Join(parts, "-")

	hash := sha256.Sum256([]byte(composite))

	return RequestKey{
		Composite: composite,
		Hash:      hex.EncodeToString(hash[:])[:requestKeyHashLength],
	}
}

// normalizeText collapses whitespace runs so cosmetic differences share a key.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
