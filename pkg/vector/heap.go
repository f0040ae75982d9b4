package vector

import "sync"

// heap stores contiguous embeddings addressable by VectorId, with
// slot reuse for physical packing.
// It is purely an in-memory cache rebuilt from the KV layer on open;
// the KV record remains the source of truth.
type heap struct {
	mu        sync.RWMutex
	slots     [][]float32
	idToSlot  map[uint64]int
	freeSlots []int
}

func newHeap() *heap {
	return &heap{idToSlot: make(map[uint64]int)}
}

// put stores embedding for id, reusing a freed slot when one is
// available.
func (h *heap) put(id uint64, embedding []float32) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cp := make([]float32, len(embedding))
	copy(cp, embedding)

	if slot, ok := h.idToSlot[id]; ok {
		h.slots[slot] = cp
		return
	}
	if n := len(h.freeSlots); n > 0 {
		slot := h.freeSlots[n-1]
		h.freeSlots = h.freeSlots[:n-1]
		h.slots[slot] = cp
		h.idToSlot[id] = slot
		return
	}
	slot := len(h.slots)
	h.slots = append(h.slots, cp)
	h.idToSlot[id] = slot
}

// get returns id's embedding, or ok=false if it was never inserted or
// has since been removed.
func (h *heap) get(id uint64) ([]float32, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	slot, ok := h.idToSlot[id]
	if !ok {
		return nil, false
	}
	return h.slots[slot], true
}

// remove frees id's physical slot for reuse. Soft-deleted vectors are
// NOT removed here — the HNSW graph still needs their embedding for
// navigability during concurrent searches — only Graph.Remove, for a
// vector being replaced, calls this.
func (h *heap) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	slot, ok := h.idToSlot[id]
	if !ok {
		return
	}
	h.slots[slot] = nil
	delete(h.idToSlot, id)
	h.freeSlots = append(h.freeSlots, slot)
}
