package dialog

import "github.com/lflachs/cocorico-voice/pkg/speech"

// PendingItem is one product awaiting its follow-up price question.
type PendingItem struct {
	Name     string
	Quantity float64
	Unit     string

	// Price is non-nil when the utterance already carried a unit price;
	// such items skip the price question.
	Price *float64

	Action speech.Action
}

// PendingQueue holds multi-item work drained one item at a time, in
// strict arrival order. At most one item is in flight; the queue is
// empty exactly when the session returns to Idle. Sessions are
// sequential, so no locking is needed.
type PendingQueue struct {
	items []PendingItem
}

// NewPendingQueue returns an empty queue.
func NewPendingQueue() *PendingQueue {
	return &PendingQueue{}
}

// Enqueue appends items in order.
func (q *PendingQueue) Enqueue(items ...PendingItem) {
	q.items = append(q.items, items...)
}

// PeekFront returns the next item without removing it.
func (q *PendingQueue) PeekFront() (PendingItem, bool) {
	if len(q.items) == 0 {
		return PendingItem{}, false
	}
	return q.items[0], true
}

// DequeueFront removes and returns the next item.
func (q *PendingQueue) DequeueFront() (PendingItem, bool) {
	if len(q.items) == 0 {
		return PendingItem{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// IsEmpty reports whether the queue is drained.
func (q *PendingQueue) IsEmpty() bool {
	return len(q.items) == 0
}

// Len returns the number of waiting items.
func (q *PendingQueue) Len() int {
	return len(q.items)
}
