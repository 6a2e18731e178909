package kfrp

import "slices"

type foldEntry struct {
	frame   int64
	payload any
}

// foldHistory keeps the payloads a fold consumed, tagged with the frame
// that produced them. base is the state before the first entry.
type foldHistory struct {
	base    any
	entries []foldEntry
}

// record adds the payload of frame. A second record for the same frame
// replaces the first.
func (h *foldHistory) record(frame int64, payload any) {
	if n := len(h.entries); n > 0 && h.entries[n-1].frame == frame {
		h.entries[n-1].payload = payload
		return
	}
	h.entries = append(h.entries, foldEntry{frame: frame, payload: payload})
}

// replay folds every payload up to and including frame.
func (h *foldHistory) replay(frame int64, reducer func(acc, v any) any) any {
	acc := h.base
	for _, e := range h.entries {
		if e.frame > frame {
			break
		}
		acc = reducer(acc, e.payload)
	}
	return acc
}

// truncate drops payloads of frames after frame.
func (h *foldHistory) truncate(frame int64) {
	h.entries = slices.DeleteFunc(h.entries, func(e foldEntry) bool { return e.frame > frame })
}

// compact moves payloads up to frame into base.
func (h *foldHistory) compact(frame int64, reducer func(acc, v any) any) {
	i := 0
	for ; i < len(h.entries) && h.entries[i].frame <= frame; i++ {
		h.base = reducer(h.base, h.entries[i].payload)
	}
	h.entries = slices.Delete(h.entries, 0, i)
}
