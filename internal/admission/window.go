package admission

import (
	"sort"
	"time"
)

// window is an ordered deque of request times. Old entries are dropped from
// the front; the backing slice is compacted once half of it is dead.
type window struct {
	times []time.Time
	head  int
}

func (w *window) push(t time.Time) {
	w.times = append(w.times, t)
}

func (w *window) live() []time.Time {
	return w.times[w.head:]
}

func (w *window) len() int {
	return len(w.times) - w.head
}

// pruneNotAfter drops every entry at or before cutoff.
func (w *window) pruneNotAfter(cutoff time.Time) {
	live := w.live()
	n := sort.Search(len(live), func(i int) bool { return live[i].After(cutoff) })
	w.head += n

	if w.head == len(w.times) {
		w.times = w.times[:0]
		w.head = 0
		return
	}
	if w.head > len(w.times)/2 {
		w.times = append(w.times[:0], w.times[w.head:]...)
		w.head = 0
	}
}

// countAfter counts entries strictly after cutoff with a binary search.
func (w *window) countAfter(cutoff time.Time) int {
	live := w.live()
	return len(live) - sort.Search(len(live), func(i int) bool { return live[i].After(cutoff) })
}
