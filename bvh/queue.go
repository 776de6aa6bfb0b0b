package bvh

type queueItem struct {
	priority float64
	handle   Handle
}

// priorityQueue is a binary min-heap of handles keyed by a float priority.
// Its backing slice is kept between uses.
type priorityQueue struct {
	items []queueItem
}

func (q *priorityQueue) Len() int {
	return len(q.items)
}

func (q *priorityQueue) Clear() {
	q.items = q.items[:0]
}

func (q *priorityQueue) Push(priority float64, h Handle) {
	q.items = append(q.items, queueItem{priority: priority, handle: h})

	i := len(q.items) - 1
	for i > 0 {
		parent := (i - 1) / 2
		if q.items[parent].priority <= q.items[i].priority {
			break
		}
		q.items[parent], q.items[i] = q.items[i], q.items[parent]
		i = parent
	}
}

// TryPop removes the item with the lowest priority. It returns false when the
// queue is empty.
func (q *priorityQueue) TryPop() (queueItem, bool) {
	n := len(q.items)
	if n == 0 {
		return queueItem{}, false
	}

	top := q.items[0]
	last := n - 1
	q.items[0] = q.items[last]
	q.items = q.items[:last]

	i := 0
	for {
		smallest := i
		left, right := 2*i+1, 2*i+2
		if left < last && q.items[left].priority < q.items[smallest].priority {
			smallest = left
		}
		if right < last && q.items[right].priority < q.items[smallest].priority {
			smallest = right
		}
		if smallest == i {
			break
		}
		q.items[i], q.items[smallest] = q.items[smallest], q.items[i]
		i = smallest
	}

	return top, true
}
