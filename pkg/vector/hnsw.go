package vector

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/value"
)

// levelSeedConstant is the fixed constant every level assignment's
// seed is derived from. The monotonic counter is the vector's own id, which is
// already guaranteed monotonic and non-reused per collection.
const levelSeedConstant uint64 = 0x9E3779B97F4A7C15

func splitmix64(state uint64) uint64 {
	state += 0x9E3779B97F4A7C15
	z := state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

func randomLevel(vectorID uint64, m int) int {
	raw := splitmix64(levelSeedConstant ^ vectorID)
	u := float64(raw>>11) / float64(uint64(1)<<53)
	if u <= 0 {
		u = 1e-12
	}
	mL := 1.0 / math.Log(float64(m))
	return int(math.Floor(-math.Log(u) * mL))
}

// node is one HNSW graph vertex. Per-layer neighbour sets are kept as
// ascending-sorted slices, standing in for the reference design's
// BTreeSet<VectorId> — sorted order is what determinism actually
// requires, not the tree structure itself.
type node struct {
	id        uint64
	maxLayer  int
	neighbors [][]uint64
	createdAt ids.Timestamp
	deletedAt *ids.Timestamp
}

// SearchBudget bounds a single search call's work.
// Zero values mean unbounded.
type SearchBudget struct {
	MaxTimeMs     int64
	MaxCandidates int
}

// Match is one search result.
type Match struct {
	ID    uint64
	Score float64
}

// SearchResult is the outcome of a Search call.
type SearchResult struct {
	Matches   []Match
	Truncated bool
}

// Graph is one collection's HNSW index. It is rebuilt from the KV
// layer on open; the graph itself holds no
// durable state of its own.
type Graph struct {
	mu     sync.RWMutex
	metric Metric
	m      int
	efCons int
	efSrch int
	heap   *heap

	nodes      map[uint64]*node
	entryPoint uint64
	hasEntry   bool
}

// NewGraph builds an empty graph for metric, using m/efConstruction/
// efSearch as the HNSW construction and search-time parameters.
func NewGraph(metric Metric, m, efConstruction, efSearch int) *Graph {
	return &Graph{
		metric: metric,
		m:      m,
		efCons: efConstruction,
		efSrch: efSearch,
		heap:   newHeap(),
		nodes:  make(map[uint64]*node),
	}
}

type candidate struct {
	id uint64
	sc float64
}

// sortCandidatesDesc orders by score descending, tie-broken by
// ascending VectorId.
func sortCandidatesDesc(cs []candidate) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].sc != cs[j].sc {
			return cs[i].sc > cs[j].sc
		}
		return cs[i].id < cs[j].id
	})
}

func sortUint64sAsc(ids []uint64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// Insert adds id/embedding to the graph at a deterministically
// assigned level, connecting it into every layer it participates in.
func (g *Graph) Insert(id uint64, embedding []float32, createdAt ids.Timestamp) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.heap.put(id, embedding)
	level := randomLevel(id, g.m)
	n := &node{id: id, maxLayer: level, neighbors: make([][]uint64, level+1), createdAt: createdAt}

	if !g.hasEntry {
		g.nodes[id] = n
		g.entryPoint = id
		g.hasEntry = true
		return
	}

	entry := g.entryPoint
	entryNode := g.nodes[entry]
	cur := entry

	for l := entryNode.maxLayer; l > level; l-- {
		cur = g.greedyClosestLocked(cur, embedding, l)
	}

	top := level
	if entryNode.maxLayer < top {
		top = entryNode.maxLayer
	}
	for l := top; l >= 0; l-- {
		candidates := g.searchLayerLocked(cur, embedding, g.efCons, l, nil, nil, ids.Timestamp(0))
		neighbors := make([]uint64, 0, g.m)
		for i := 0; i < len(candidates) && i < g.m; i++ {
			neighbors = append(neighbors, candidates[i].id)
		}
		sortUint64sAsc(neighbors)
		n.neighbors[l] = neighbors
		for _, nb := range neighbors {
			g.addNeighborLocked(nb, id, l)
		}
		if len(candidates) > 0 {
			cur = candidates[0].id
		}
	}

	g.nodes[id] = n
	if level > entryNode.maxLayer {
		g.entryPoint = id
	}
}

func (g *Graph) addNeighborLocked(id, newNeighbor uint64, layer int) {
	n := g.nodes[id]
	if n == nil || layer > n.maxLayer {
		return
	}
	for _, nb := range n.neighbors[layer] {
		if nb == newNeighbor {
			return
		}
	}
	n.neighbors[layer] = append(n.neighbors[layer], newNeighbor)
	if len(n.neighbors[layer]) > g.m {
		ownEmb, _ := g.heap.get(id)
		cands := make([]candidate, 0, len(n.neighbors[layer]))
		for _, nb := range n.neighbors[layer] {
			if nbEmb, ok := g.heap.get(nb); ok {
				cands = append(cands, candidate{id: nb, sc: score(g.metric, ownEmb, nbEmb)})
			}
		}
		sortCandidatesDesc(cands)
		if len(cands) > g.m {
			cands = cands[:g.m]
		}
		kept := make([]uint64, len(cands))
		for i, c := range cands {
			kept[i] = c.id
		}
		n.neighbors[layer] = kept
	}
	sortUint64sAsc(n.neighbors[layer])
}

func (g *Graph) greedyClosestLocked(from uint64, query []float32, layer int) uint64 {
	res := g.searchLayerLocked(from, query, 1, layer, nil, nil, ids.Timestamp(0))
	if len(res) == 0 {
		return from
	}
	return res[0].id
}

// searchLayerLocked runs a best-first beam search at layer starting
// from entry, returning up to ef candidates sorted by score. filter,
// metadataOf and asOf are not consulted by the traversal itself;
// Search applies the filter and deletion visibility to the candidates
// this returns.
func (g *Graph) searchLayerLocked(entry uint64, query []float32, ef int, layer int, filter *Filter, metadataOf func(uint64) value.Value, asOf ids.Timestamp) []candidate {
	entryEmb, ok := g.heap.get(entry)
	if !ok {
		return nil
	}
	visited := map[uint64]bool{entry: true}
	entryScore := score(g.metric, query, entryEmb)

	frontier := []candidate{{entry, entryScore}}
	results := []candidate{{entry, entryScore}}

	for len(frontier) > 0 {
		bestIdx := 0
		for i := 1; i < len(frontier); i++ {
			if frontier[i].sc > frontier[bestIdx].sc {
				bestIdx = i
			}
		}
		best := frontier[bestIdx]
		frontier = append(frontier[:bestIdx], frontier[bestIdx+1:]...)

		if len(results) >= ef {
			worst := results[len(results)-1]
			if best.sc < worst.sc {
				break
			}
		}

		n := g.nodes[best.id]
		if n == nil || layer > n.maxLayer {
			continue
		}
		for _, nb := range n.neighbors[layer] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			nbEmb, ok := g.heap.get(nb)
			if !ok {
				continue
			}
			nbScore := score(g.metric, query, nbEmb)
			frontier = append(frontier, candidate{nb, nbScore})
			results = append(results, candidate{nb, nbScore})
		}
		sortCandidatesDesc(results)
		if len(results) > ef {
			results = results[:ef]
		}
	}
	sortCandidatesDesc(results)
	if len(results) > ef {
		results = results[:ef]
	}
	return results
}

// MarkDeleted soft-deletes id: the node stays in the graph to preserve
// navigability for concurrent searches.
func (g *Graph) MarkDeleted(id uint64, deletedAt ids.Timestamp) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.nodes[id]; ok {
		ts := deletedAt
		n.deletedAt = &ts
	}
}

// Remove permanently drops id from the graph and heap; the facade's
// Upsert calls it before re-inserting a replaced vector.
func (g *Graph) Remove(id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.nodes, id)
	g.heap.remove(id)
	if g.hasEntry && g.entryPoint == id {
		g.hasEntry = false
		for otherID := range g.nodes {
			g.entryPoint = otherID
			g.hasEntry = true
			break
		}
	}
}

// Search finds the k best matches for query, honouring an optional
// metadata filter, an as-of visibility timestamp, and a search budget.
func (g *Graph) Search(query []float32, k int, filter *Filter, metadataOf func(uint64) value.Value, asOf ids.Timestamp, budget SearchBudget) SearchResult {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.hasEntry {
		return SearchResult{}
	}
	start := time.Now()
	truncated := false

	ef := g.efSrch
	if ef < k {
		ef = k
	}
	if filter != nil {
		enlarged := ef * 3
		if enlarged < k*3 {
			enlarged = k * 3
		}
		ef = enlarged
	}

	cur := g.entryPoint
	curNode := g.nodes[cur]
	for l := curNode.maxLayer; l > 0; l-- {
		if budget.MaxTimeMs > 0 && time.Since(start).Milliseconds() > budget.MaxTimeMs {
			truncated = true
			break
		}
		cur = g.greedyClosestLocked(cur, query, l)
	}

	frontier := g.searchLayerLocked(cur, query, ef, 0, filter, metadataOf, asOf)

	var results []candidate
	for i, c := range frontier {
		if budget.MaxCandidates > 0 && i >= budget.MaxCandidates {
			truncated = true
			break
		}
		if budget.MaxTimeMs > 0 && time.Since(start).Milliseconds() > budget.MaxTimeMs {
			truncated = true
			break
		}
		n := g.nodes[c.id]
		if n == nil {
			continue
		}
		if n.deletedAt != nil && *n.deletedAt <= asOf {
			continue
		}
		if filter != nil && !filter.Matches(metadataOf(c.id)) {
			continue
		}
		results = append(results, c)
	}

	sortCandidatesDesc(results)
	if len(results) > k {
		results = results[:k]
	} else if len(results) < k && len(frontier) >= ef {
		// The beam may not have surfaced enough live, filter-passing
		// candidates at this width; report it rather than silently
		// returning fewer than requested.
		truncated = true
	}

	matches := make([]Match, len(results))
	for i, c := range results {
		matches[i] = Match{ID: c.id, Score: c.sc}
	}
	return SearchResult{Matches: matches, Truncated: truncated}
}
