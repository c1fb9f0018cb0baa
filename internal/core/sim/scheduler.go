package sim

import (
	"container/heap"
	"fmt"
	"time"
)

// SimTime represents simulated time as a duration from the start of the run.
type SimTime time.Duration

// SimDuration is an alias for time.Duration used in simulation.
type SimDuration = time.Duration

// Seconds returns t as fractional seconds.
func (t SimTime) Seconds() float64 {
	return time.Duration(t).Seconds()
}

func (t SimTime) String() string {
	return fmt.Sprintf("%.3f", t.Seconds())
}

// EventKind selects the handler an event is dispatched to.
type EventKind uint8

const (
	CreateMainBlock EventKind = iota
	ReceiveMainBlock
	// CreateBatchBlock is never scheduled: batch blocks are created inline
	// with their main block.
	CreateBatchBlock
	ReceiveBatchBlock
	CreateAckBlock
	ReceiveAckBlock
)

func (k EventKind) String() string {
	switch k {
	case CreateMainBlock:
		return "CreateMainBlock"
	case ReceiveMainBlock:
		return "ReceiveMainBlock"
	case CreateBatchBlock:
		return "CreateBatchBlock"
	case ReceiveBatchBlock:
		return "ReceiveBatchBlock"
	case CreateAckBlock:
		return "CreateAckBlock"
	case ReceiveAckBlock:
		return "ReceiveAckBlock"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Payload is carried by an Event: either a block being delivered or the
// snapshot taken when a production timer was armed.
type Payload interface {
	isPayload()
}

// Event is a single scheduled occurrence.
type Event struct {
	When    SimTime
	Seq     uint64 // stable ordering of same-time events
	Kind    EventKind
	From    PeerID
	To      PeerID
	Payload Payload

	index int // index in the heap
}

// eventHeap implements heap.Interface for events ordered by (When, Seq).
type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].When == h[j].When {
		return h[i].Seq < h[j].Seq
	}
	return h[i].When < h[j].When
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x interface{}) {
	n := len(*h)
	e := x.(*Event)
	e.index = n
	*h = append(*h, e)
}

func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[0 : n-1]
	return e
}

// Scheduler is the global event queue and logical clock of one Simulation.
// It is driven by a single goroutine and is not safe for concurrent use.
type Scheduler struct {
	now     SimTime
	events  eventHeap
	nextSeq uint64
}

// NewScheduler creates a new discrete event scheduler starting at time 0.
func NewScheduler() *Scheduler {
	s := &Scheduler{
		events: make(eventHeap, 0),
	}
	heap.Init(&s.events)
	return s
}

// Now returns the current simulated time.
func (s *Scheduler) Now() SimTime {
	return s.now
}

// At schedules ev to fire at the given absolute time. Times in the past are
// clamped to now so the clock never runs backwards.
func (s *Scheduler) At(when SimTime, ev Event) {
	if when < s.now {
		when = s.now
	}
	e := ev
	e.When = when
	e.Seq = s.nextSeq
	s.nextSeq++
	heap.Push(&s.events, &e)
}

// In schedules ev to fire after the given duration.
func (s *Scheduler) In(d SimDuration, ev Event) {
	s.At(s.now+SimTime(d), ev)
}

// Peek returns the next event without removing it.
func (s *Scheduler) Peek() (Event, bool) {
	if s.events.Len() == 0 {
		return Event{}, false
	}
	return *s.events[0], true
}

// StepOne pops the next event, advances the clock to its time and passes it
// to dispatch. Returns false if the queue is empty.
func (s *Scheduler) StepOne(dispatch func(Event)) bool {
	if s.events.Len() == 0 {
		return false
	}
	e := heap.Pop(&s.events).(*Event)
	s.now = e.When
	dispatch(*e)
	return true
}

// RunUntil dispatches events in (When, Seq) order until the queue drains or
// the next event fires after end. Events beyond end stay queued and are never
// dispatched by this call. Returns the number of events dispatched.
func (s *Scheduler) RunUntil(end SimTime, dispatch func(Event)) int {
	count := 0
	for s.events.Len() > 0 && s.events[0].When <= end {
		s.StepOne(dispatch)
		count++
	}
	return count
}

// Empty returns true if there are no pending events.
func (s *Scheduler) Empty() bool {
	return s.events.Len() == 0
}

// PendingCount returns the number of pending events.
func (s *Scheduler) PendingCount() int {
	return s.events.Len()
}
