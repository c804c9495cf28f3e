package matcher

import (
	"math/rand"
	"sort"
	"time"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/ar-marker/internal/constants"
	"github.com/kozaktomas/ar-marker/internal/database"
)

// HNSW parameters for the 64-dim marker descriptors
const (
	// hnswMaxNeighbors (M) is the maximum number of neighbors per node.
	hnswMaxNeighbors = 16

	// hnswEfSearch is the search candidate pool size.
	hnswEfSearch = 64
)

// MarkerIndex is an immutable snapshot of the registered markers. It is
// rebuilt on every registry change and swapped in atomically.
type MarkerIndex struct {
	version  uint64
	builtAt  time.Time
	projects []database.Project // sorted by id
	byID     map[string]int
	graph    *hnsw.Graph[string] // nil when the set is small enough to scan
}

// IndexInfo describes a MarkerIndex for diagnostics.
type IndexInfo struct {
	Version uint64    `json:"version"`
	Markers int       `json:"markers"`
	HNSW    bool      `json:"hnsw"`
	BuiltAt time.Time `json:"builtAt"`
}

// BuildIndex builds a snapshot from projects. Identical inputs produce
// identical indexes: entries are sorted by id and the graph's level
// generator uses a fixed seed.
func BuildIndex(projects []database.Project, version uint64) *MarkerIndex {
	sorted := make([]database.Project, 0, len(projects))
	for _, p := range projects {
		if p.Features.IsZero() {
			continue
		}
		sorted = append(sorted, p)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	idx := &MarkerIndex{
		version:  version,
		builtAt:  time.Now(),
		projects: sorted,
		byID:     make(map[string]int, len(sorted)),
	}
	for i, p := range sorted {
		idx.byID[p.ID] = i
	}

	if len(sorted) > constants.ExactScanLimit {
		g := hnsw.NewGraph[string]()
		g.M = hnswMaxNeighbors
		g.Ml = 1.0 / float64(hnswMaxNeighbors)
		g.EfSearch = hnswEfSearch
		g.Distance = hnsw.CosineDistance
		g.Rng = rand.New(rand.NewSource(constants.IndexSeed))

		for _, p := range sorted {
			g.Add(hnsw.MakeNode(p.ID, p.Features.Descriptor))
		}
		idx.graph = g
	}

	return idx
}

// Len returns the number of indexed markers.
func (m *MarkerIndex) Len() int {
	return len(m.projects)
}

// Info returns diagnostics for the snapshot.
func (m *MarkerIndex) Info() IndexInfo {
	return IndexInfo{
		Version: m.version,
		Markers: len(m.projects),
		HNSW:    m.graph != nil,
		BuiltAt: m.builtAt,
	}
}

// candidates returns the positions of the markers worth scoring for a
// descriptor, in ascending position order.
func (m *MarkerIndex) candidates(descriptor []float32) []int {
	if m.graph == nil {
		all := make([]int, len(m.projects))
		for i := range all {
			all[i] = i
		}
		return all
	}

	neighbors := m.graph.Search(descriptor, constants.CandidateCount)
	out := make([]int, 0, len(neighbors))
	for _, n := range neighbors {
		if i, ok := m.byID[n.Key]; ok {
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}
