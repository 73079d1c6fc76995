package queue

// Item is one enqueued element. Identity is Index, the global insertion
// index handed out by the owning Structure.
type Item struct {
	Index   uint64 // global insertion order
	Lane    int    // subqueue the item was routed to
	LaneSeq uint64 // number of earlier enqueues on Lane
}

const compactThreshold = 64

// Subqueue is a single FIFO lane. Besides its items it keeps the counters the
// heuristics read as load signals.
type Subqueue struct {
	items []Item
	head  int

	enqueues uint64
	dequeues uint64
	ops      uint64

	// totals at the last ResetCounters
	enqMark uint64
	deqMark uint64
}

// PushTail appends it at the tail.
func (s *Subqueue) PushTail(it Item) {
	s.items = append(s.items, it)
	s.enqueues++
	s.ops++
}

// PopHead removes and returns the head item.
func (s *Subqueue) PopHead() (Item, error) {
	if s.Len() == 0 {
		return Item{}, ErrEmptyQueue
	}
	it := s.items[s.head]
	s.items[s.head] = Item{}
	s.head++
	s.dequeues++
	s.ops++

	// Reclaim the consumed prefix once it dominates the backing array.
	if s.head >= compactThreshold && s.head*2 >= len(s.items) {
		n := copy(s.items, s.items[s.head:])
		s.items = s.items[:n]
		s.head = 0
	}
	return it, nil
}

// Peek returns the head item without removing it.
func (s *Subqueue) Peek() (Item, bool) {
	if s.Len() == 0 {
		return Item{}, false
	}
	return s.items[s.head], true
}

// Len returns the number of items held.
func (s *Subqueue) Len() int {
	return len(s.items) - s.head
}

// Ops returns the operation counter: enqueues plus dequeues routed here,
// since construction or the last ResetCounters.
func (s *Subqueue) Ops() uint64 { return s.ops }

// Enqueues returns the total number of items ever pushed.
func (s *Subqueue) Enqueues() uint64 { return s.enqueues }

// Dequeues returns the total number of items ever popped.
func (s *Subqueue) Dequeues() uint64 { return s.dequeues }

// EnqueuesSinceReset returns the enqueues counted since the last ResetCounters.
func (s *Subqueue) EnqueuesSinceReset() uint64 { return s.enqueues - s.enqMark }

// DequeuesSinceReset returns the dequeues counted since the last ResetCounters.
func (s *Subqueue) DequeuesSinceReset() uint64 { return s.dequeues - s.deqMark }

// ResetCounters zeroes the operation counter and the progress counters.
// Lifetime totals are kept because item positions are derived from them.
func (s *Subqueue) ResetCounters() {
	s.ops = 0
	s.enqMark = s.enqueues
	s.deqMark = s.dequeues
}
