package scheduler

import (
	"container/heap"
	"sync"
	"time"
)

// timerWheel is the collaborator described for the Scheduler: a min-heap of
// pending fire times plus one wake goroutine, exposing RegisterOnce/Cancel/
// EnumerateActive keyed by job id. No pack dependency offers this shape
// (it is infrastructure, not a domain concern), so it is built directly on
// container/heap rather than reached for as a third-party timer library.
type timerWheel struct {
	mu    sync.Mutex
	items map[string]*wheelItem
	pq    wheelHeap
	wake  chan struct{}
	fire  func(jobID string)
}

type wheelItem struct {
	jobID string
	at    time.Time
	index int
}

type wheelHeap []*wheelItem

func (h wheelHeap) Len() int            { return len(h) }
func (h wheelHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h wheelHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *wheelHeap) Push(x interface{}) {
	item := x.(*wheelItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *wheelHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

func newTimerWheel(fire func(jobID string)) *timerWheel {
	return &timerWheel{
		items: make(map[string]*wheelItem),
		wake:  make(chan struct{}, 1),
		fire:  fire,
	}
}

// Run blocks, driving the wheel, until done is closed. Call it from exactly one
// goroutine (the Scheduler's Serve method).
func (w *timerWheel) Run(done <-chan struct{}) {
	for {
		w.mu.Lock()
		var wait time.Duration
		if len(w.pq) == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(w.pq[0].at)
			if wait < 0 {
				wait = 0
			}
		}
		w.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			w.fireDue()
		case <-w.wake:
			timer.Stop()
		case <-done:
			timer.Stop()
			return
		}
	}
}

func (w *timerWheel) fireDue() {
	now := time.Now()
	var due []string
	w.mu.Lock()
	for len(w.pq) > 0 && !w.pq[0].at.After(now) {
		item := heap.Pop(&w.pq).(*wheelItem)
		delete(w.items, item.jobID)
		due = append(due, item.jobID)
	}
	w.mu.Unlock()

	for _, jobID := range due {
		go w.fire(jobID)
	}
}

// RegisterOnce schedules a one-shot wake for jobID at the given time,
// replacing any existing registration for the same id.
func (w *timerWheel) RegisterOnce(at time.Time, jobID string) {
	w.mu.Lock()
	if existing, ok := w.items[jobID]; ok {
		heap.Remove(&w.pq, existing.index)
		delete(w.items, jobID)
	}
	item := &wheelItem{jobID: jobID, at: at}
	heap.Push(&w.pq, item)
	w.items[jobID] = item
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Cancel deregisters jobID's pending timer, if any. Returns false if jobID
// had no pending registration (already fired or never registered).
func (w *timerWheel) Cancel(jobID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	item, ok := w.items[jobID]
	if !ok {
		return false
	}
	heap.Remove(&w.pq, item.index)
	delete(w.items, jobID)
	return true
}

// EnumerateActive returns the job ids with a pending registration.
func (w *timerWheel) EnumerateActive() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.items))
	for id := range w.items {
		out = append(out, id)
	}
	return out
}
