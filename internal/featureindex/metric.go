package featureindex

import (
	"fmt"
	"math"

	"github.com/viterin/vek/vek32"
)

// Metric names accepted by the index.
const (
	MetricEuclidean = "euclidean"
	MetricCosine    = "cosine"
	MetricManhattan = "manhattan"
)

// DistanceFunc returns a non-negative distance between two vectors of equal length.
type DistanceFunc func(x, y []float32) float64

// ResolveMetric returns the distance function for a metric name.
func ResolveMetric(name string) (DistanceFunc, error) {
	switch name {
	case MetricEuclidean:
		return euclidean, nil
	case MetricCosine:
		return cosine, nil
	case MetricManhattan:
		return manhattan, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
}

func euclidean(x, y []float32) float64 {
	return float64(vek32.Distance(x, y))
}

func manhattan(x, y []float32) float64 {
	return float64(vek32.ManhattanDistance(x, y))
}

// cosine is 1 - cosine similarity, clamped to [0, 2]. A zero vector is treated as orthogonal
// to every other vector.
func cosine(x, y []float32) float64 {
	nx := math.Sqrt(float64(vek32.Dot(x, x)))
	ny := math.Sqrt(float64(vek32.Dot(y, y)))
	if nx == 0 || ny == 0 {
		return 1
	}

	d := 1 - float64(vek32.Dot(x, y))/(nx*ny)
	return math.Min(math.Max(d, 0), 2)
}
