// Package queue provides a concurrency safe priority queue used to schedule transfers.
package queue

import (
	"container/heap"
	"sync"
)

type entry[T any] struct {
	value    T
	priority int64
	seq      uint64
}

// entries orders by priority, lowest first, then by insertion order
type entries[T any] []entry[T]

func (e entries[T]) Len() int { return len(e) }

func (e entries[T]) Less(i, j int) bool {
	if e[i].priority != e[j].priority {
		return e[i].priority < e[j].priority
	}
	return e[i].seq < e[j].seq
}

func (e entries[T]) Swap(i, j int) { e[i], e[j] = e[j], e[i] }

func (e *entries[T]) Push(x any) { *e = append(*e, x.(entry[T])) }

func (e *entries[T]) Pop() any {
	old := *e
	n := len(old)
	item := old[n-1]
	var zero entry[T]
	old[n-1] = zero
	*e = old[:n-1]
	return item
}

// PriorityQueue hands out values lowest priority first. Equal priorities come out in the order
// they were enqueued.
type PriorityQueue[T any] struct {
	mu    sync.Mutex
	items entries[T]
	seq   uint64
}

func NewPriorityQueue[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{}
}

func (pq *PriorityQueue[T]) Len() int {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return len(pq.items)
}

func (pq *PriorityQueue[T]) Enqueue(value T, priority int64) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	pq.seq++
	heap.Push(&pq.items, entry[T]{value: value, priority: priority, seq: pq.seq})
}

// Dequeue removes the next value. ok is false when the queue is empty.
func (pq *PriorityQueue[T]) Dequeue() (value T, ok bool) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	if len(pq.items) == 0 {
		return value, false
	}
	return heap.Pop(&pq.items).(entry[T]).value, true
}

// DequeueAll empties the queue and returns its values in order.
func (pq *PriorityQueue[T]) DequeueAll() []T {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	out := make([]T, 0, len(pq.items))
	for len(pq.items) > 0 {
		out = append(out, heap.Pop(&pq.items).(entry[T]).value)
	}
	return out
}
