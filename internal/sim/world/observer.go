package world

import "sort"

// Subscribe registers fn to receive a fresh snapshot after every mutation that
// changes the visible block set. Callbacks run synchronously on the mutating
// goroutine, in registration order. The returned func unsubscribes.
func (w *World) Subscribe(fn func(Snapshot)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	w.nextSub++
	id := w.nextSub
	w.subs[id] = fn
	return func() { delete(w.subs, id) }
}

func (w *World) Subscribers() int { return len(w.subs) }

func (w *World) notify() {
	w.version++
	if len(w.subs) == 0 {
		return
	}
	// Stable order; map iteration is random.
	ids := make([]uint64, 0, len(w.subs))
	for id := range w.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fn, ok := w.subs[id]
		if !ok {
			continue
		}
		fn(Snapshot{Version: w.version, Blocks: w.List()})
	}
}
