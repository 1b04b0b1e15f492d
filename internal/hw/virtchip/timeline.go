package virtchip

import "container/heap"

// irqEvent is one scheduled interrupt firing on the virtual timeline.
// index tracks the event's heap position; it is -1 once popped.
type irqEvent struct {
	line     *Line
	atUS     uint64
	periodUS uint64 // 0 = one-shot
	untilUS  uint64 // periodic stops rescheduling past this; 0 = never
	index    int
}

// timeline orders pending interrupt firings by virtual time.
type timeline struct {
	h eventHeap
}

// push inserts a new firing.
func (t *timeline) push(ev *irqEvent) {
	heap.Push(&t.h, ev)
}

// next returns the soonest firing time without removing it.
func (t *timeline) next() (uint64, bool) {
	if len(t.h) == 0 {
		return 0, false
	}
	return t.h[0].atUS, true
}

// pop removes and returns the head firing.
func (t *timeline) pop() *irqEvent {
	if len(t.h) == 0 {
		return nil
	}
	return heap.Pop(&t.h).(*irqEvent)
}

func (t *timeline) empty() bool { return len(t.h) == 0 }

// --- heap internals ----------------------------------------------------------

// eventHeap is a min-heap ordered by event.atUS.
type eventHeap []*irqEvent

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	return h[i].atUS < h[j].atUS
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x any) {
	ev := x.(*irqEvent)
	ev.index = len(*h)
	*h = append(*h, ev)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	ev.index = -1 // mark as removed
	*h = old[:n-1]
	return ev
}
