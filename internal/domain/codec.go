package domain

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

//nolint:gochecknoglobals // Reserved cache values
var (
	pendingSentinel = []byte("__clustering_pending__")
	failedSentinel  = []byte("__clustering_failed__")
)

// EncodeResult serializes a result for the cache.
func EncodeResult(result *ClusterResult) ([]byte, error) {
	data, err := msgpack.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cluster result: %w", err)
	}
	return data, nil
}

// DecodeEntry interprets a raw cache value as a sentinel state or a result.
func DecodeEntry(raw []byte) (ClusterState, *ClusterResult, error) {
	switch {
	case bytes.Equal(raw, pendingSentinel):
		return StatePending, nil, nil
	case bytes.Equal(raw, failedSentinel):
		return StateFailed, nil, nil
	}

	var result ClusterResult
	if err := msgpack.Unmarshal(raw, &result); err != nil {
		return StateAbsent, nil, fmt.Errorf("failed to decode cluster result: %w", err)
	}
	return StateDone, &result, nil
}
