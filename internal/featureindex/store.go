package featureindex

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/davidbz/soundgraph/internal/observability"
)

var (
	featureSetPrefix = []byte("fs:")
	vectorPrefix     = []byte("vec:")
)

// Store persists feature sets and vectors in badger.
type Store struct {
	db *badger.DB
}

// OpenStore opens (or creates) the badger database at path.
func OpenStore(path string) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open feature store at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutFeatureSet persists a feature set declaration.
func (s *Store) PutFeatureSet(set FeatureSet) error {
	if err := set.Validate(); err != nil {
		return err
	}

	data, err := msgpack.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to encode feature set: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(featureSetKey(set.Name), data)
	})
}

// PutVectors persists the vectors of one feature set in a single batch.
func (s *Store) PutVectors(featureSet string, vectors map[string][]float32) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for id, vector := range vectors {
		data, err := msgpack.Marshal(vector)
		if err != nil {
			return fmt.Errorf("failed to encode vector %s: %w", id, err)
		}
		if err := wb.Set(vectorKey(featureSet, id), data); err != nil {
			return fmt.Errorf("failed to write vector %s: %w", id, err)
		}
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to flush vectors: %w", err)
	}
	return nil
}

// Load registers every stored feature set and adds every stored vector to index.
// It returns the number of vectors loaded.
func (s *Store) Load(ctx context.Context, index *Index) (int, error) {
	logger := observability.FromContext(ctx)
	loaded := 0

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(featureSetPrefix); it.ValidForPrefix(featureSetPrefix); it.Next() {
			var set FeatureSet
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &set)
			}); err != nil {
				return fmt.Errorf("failed to decode feature set %s: %w", it.Item().Key(), err)
			}
			if err := index.Registry().Register(set); err != nil {
				return err
			}
		}

		for it.Seek(vectorPrefix); it.ValidForPrefix(vectorPrefix); it.Next() {
			featureSet, id, ok := splitVectorKey(it.Item().KeyCopy(nil))
			if !ok {
				logger.Warn("skipping malformed vector key",
					observability.String("key", string(it.Item().Key())))
				continue
			}

			var vector []float32
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &vector)
			}); err != nil {
				return fmt.Errorf("failed to decode vector %s/%s: %w", featureSet, id, err)
			}
			if err := index.Add(featureSet, id, vector); err != nil {
				return err
			}
			loaded++
		}
		return nil
	})
	if err != nil {
		return loaded, err
	}

	logger.Info("feature store loaded",
		observability.Int("vectors", loaded),
		observability.Int("feature_sets", len(index.Registry().List())))
	return loaded, nil
}

func featureSetKey(name string) []byte {
	return append(append([]byte(nil), featureSetPrefix...), name...)
}

// vectorKey is "vec:<feature set>\x00<id>".
func vectorKey(featureSet, id string) []byte {
	key := append([]byte(nil), vectorPrefix...)
	key = append(key, featureSet...)
	key = append(key, 0)
	return append(key, id...)
}

func splitVectorKey(key []byte) (string, string, bool) {
	rest := key[len(vectorPrefix):]
	for i, b := range rest {
		if b == 0 {
			return string(rest[:i]), string(rest[i+1:]), true
		}
	}
	return "", "", false
}
