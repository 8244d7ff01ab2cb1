package clustering

import (
	"math"
	"sort"
)

// gainEpsilon absorbs floating point noise when comparing modularity gains.
const gainEpsilon = 1e-12

type arc struct {
	to     int
	weight float64
}

// level is one Louvain aggregation level. Nodes are dense indexes, arcs are sorted by target
// so every floating point sum happens in the same order on every run.
type level struct {
	arcs [][]arc
	self []float64
}

func newLevel(adjacency []map[int]float64, self []float64) *level {
	arcs := make([][]arc, len(adjacency))
	for i, neighbors := range adjacency {
		list := make([]arc, 0, len(neighbors))
		for to, w := range neighbors {
			list = append(list, arc{to: to, weight: w})
		}
		sort.Slice(list, func(a, b int) bool { return list[a].to < list[b].to })
		arcs[i] = list
	}
	return &level{arcs: arcs, self: self}
}

func (l *level) size() int {
	return len(l.arcs)
}

// degrees returns each node's weighted degree, self loops counted twice, and their sum.
func (l *level) degrees() ([]float64, float64) {
	degree := make([]float64, l.size())
	total := 0.0
	for i, list := range l.arcs {
		d := 2 * l.self[i]
		for _, a := range list {
			d += a.weight
		}
		degree[i] = d
		total += d
	}
	return degree, total
}

// modularity is Newman's weighted modularity of the partition at the given resolution.
// Sums run in node and arc order so identical inputs give bit-identical scores.
func (l *level) modularity(membership []int, count int, resolution float64) float64 {
	degree, total := l.degrees()
	if total == 0 {
		return 0
	}

	inner := make([]float64, count)
	sums := make([]float64, count)
	for i, list := range l.arcs {
		c := membership[i]
		inner[c] += 2 * l.self[i]
		for _, a := range list {
			if membership[a.to] == c {
				inner[c] += a.weight
			}
		}
		sums[c] += degree[i]
	}

	q := 0.0
	for c := range count {
		share := sums[c] / total
		q += inner[c]/total - resolution*share*share
	}
	if math.IsNaN(q) {
		return 0
	}
	return q
}

// move runs the local moving phase. Nodes are visited in index order; a node only leaves its
// community for a strictly better gain, and equal gains go to the smallest community label.
func (l *level) move(resolution float64, maxPasses int) ([]int, bool) {
	n := l.size()
	community := make([]int, n)
	for i := range community {
		community[i] = i
	}

	degree, m2 := l.degrees()
	if m2 == 0 {
		return community, false
	}

	total := make([]float64, n)
	copy(total, degree)

	links := make(map[int]float64)
	candidates := make([]int, 0)
	moved := false

	for pass := 0; pass < maxPasses; pass++ {
		changed := false

		for i := 0; i < n; i++ {
			current := community[i]

			clear(links)
			candidates = candidates[:0]
			for _, a := range l.arcs[i] {
				c := community[a.to]
				if _, seen := links[c]; !seen {
					candidates = append(candidates, c)
				}
				links[c] += a.weight
			}
			sort.Ints(candidates)

			total[current] -= degree[i]

			best := current
			bestGain := links[current] - resolution*total[current]*degree[i]/m2
			for _, c := range candidates {
				if c == current {
					continue
				}
				gain := links[c] - resolution*total[c]*degree[i]/m2
				if gain > bestGain+gainEpsilon {
					best, bestGain = c, gain
				}
			}

			total[best] += degree[i]
			if best != current {
				community[i] = best
				changed = true
				moved = true
			}
		}

		if !changed {
			break
		}
	}

	return community, moved
}

// aggregate collapses communities into super nodes numbered by first appearance.
func (l *level) aggregate(community []int) (*level, []int) {
	remap := make(map[int]int)
	renumbered := make([]int, len(community))
	for i, c := range community {
		r, ok := remap[c]
		if !ok {
			r = len(remap)
			remap[c] = r
		}
		renumbered[i] = r
	}

	size := len(remap)
	adjacency := make([]map[int]float64, size)
	for i := range adjacency {
		adjacency[i] = make(map[int]float64)
	}
	self := make([]float64, size)

	for i, list := range l.arcs {
		ci := renumbered[i]
		self[ci] += l.self[i]
		for _, a := range list {
			if a.to < i {
				continue
			}
			cj := renumbered[a.to]
			if ci == cj {
				self[ci] += a.weight
				continue
			}
			adjacency[ci][cj] += a.weight
			adjacency[cj][ci] += a.weight
		}
	}

	return newLevel(adjacency, self), renumbered
}

// louvain returns the community label of every node of base, labels numbered by first
// appearance in node order.
func louvain(base *level, resolution float64, maxLevels, maxPasses int) []int {
	membership := make([]int, base.size())
	for i := range membership {
		membership[i] = i
	}

	current := base
	for lvl := 0; lvl < maxLevels; lvl++ {
		community, moved := current.move(resolution, maxPasses)
		if !moved {
			break
		}

		next, renumbered := current.aggregate(community)
		for i, m := range membership {
			membership[i] = renumbered[m]
		}
		current = next
	}

	return normalizeLabels(membership)
}

func normalizeLabels(membership []int) []int {
	remap := make(map[int]int)
	out := make([]int, len(membership))
	for i, m := range membership {
		r, ok := remap[m]
		if !ok {
			r = len(remap)
			remap[m] = r
		}
		out[i] = r
	}
	return out
}
