package kfrp

import "github.com/birdayz/kfrp/kgraph"

// heightQueue hands out nodes in ascending height. A node's height is
// greater than the height of all of its parents, so draining the queue
// visits every node after all of its parents.
type heightQueue struct {
	min     int
	buckets [][]kgraph.NodeID // [height]ids
	queued  map[kgraph.NodeID]struct{}
}

func newHeightQueue() *heightQueue {
	return &heightQueue{
		buckets: make([][]kgraph.NodeID, 64),
		queued:  make(map[kgraph.NodeID]struct{}),
	}
}

// insert reports false if id was already queued.
func (h *heightQueue) insert(id kgraph.NodeID, height int) bool {
	if _, ok := h.queued[id]; ok {
		return false
	}
	h.queued[id] = struct{}{}

	for height >= len(h.buckets) {
		h.buckets = append(h.buckets, make([][]kgraph.NodeID, len(h.buckets))...)
	}
	h.buckets[height] = append(h.buckets[height], id)
	if height < h.min {
		h.min = height
	}
	return true
}

func (h *heightQueue) len() int {
	return len(h.queued)
}

// drain calls process for each queued node, lowest height first. process
// may insert more nodes.
func (h *heightQueue) drain(process func(kgraph.NodeID)) {
	for len(h.queued) > 0 {
		for h.min < len(h.buckets) && len(h.buckets[h.min]) == 0 {
			h.min++
		}
		bucket := h.buckets[h.min]
		id := bucket[0]
		h.buckets[h.min] = bucket[1:]
		delete(h.queued, id)

		process(id)
	}
	h.min = 0
}

// reset drops everything still queued, after a panic in process.
func (h *heightQueue) reset() {
	for i := range h.buckets {
		h.buckets[i] = h.buckets[i][:0]
	}
	clear(h.queued)
	h.min = 0
}
