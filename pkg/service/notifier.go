package service

import (
	"sync"
	"time"

	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/pkg/models"
)

// Partition scopes a subscription: a worker's device subscribes to its
// worker id, a front-desk dashboard subscribes to a calendar date.
type Partition struct {
	workerID string
	date     time.Time
	byDate   bool
}

// WorkerPartition scopes a subscription to one worker's tasks.
func WorkerPartition(workerID string) Partition {
	return Partition{workerID: workerID}
}

// DatePartition scopes a subscription to all tasks of one calendar date.
func DatePartition(date time.Time) Partition {
	y, m, d := date.UTC().Date()
	return Partition{date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), byDate: true}
}

// Matches reports whether the task belongs to the partition.
func (p Partition) Matches(t models.Task) bool {
	if p.byDate {
		return t.ScheduledDate.UTC().Truncate(24 * time.Hour).Equal(p.date)
	}
	return t.AssignedTo(p.workerID)
}

// Subscription receives committed task snapshots for one partition.
//
// Delivery is at-least-once and ordered per task: snapshots are queued in
// publish order and handed out on Updates(). A subscriber that was offline
// reconciles via a full re-fetch of its partition, not via replay.
type Subscription struct {
	partition Partition
	out       chan models.Task

	mu     sync.Mutex
	queue  []models.Task
	wake   chan struct{}
	closed chan struct{}
	once   sync.Once
}

// Updates returns the channel on which snapshots are delivered.
func (sub *Subscription) Updates() <-chan models.Task {
	return sub.out
}

// Close detaches the subscription and stops delivery. Idempotent.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		close(sub.closed)
	})
}

func (sub *Subscription) enqueue(t models.Task) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, t)
	sub.mu.Unlock()
	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

// dispatch drains the queue to the out channel until the subscription closes.
func (sub *Subscription) dispatch() {
	defer close(sub.out)
	for {
		select {
		case <-sub.closed:
			return
		case <-sub.wake:
		}
		for {
			sub.mu.Lock()
			if len(sub.queue) == 0 {
				sub.mu.Unlock()
				break
			}
			next := sub.queue[0]
			sub.queue = sub.queue[1:]
			sub.mu.Unlock()
			select {
			case sub.out <- next:
			case <-sub.closed:
				return
			}
		}
	}
}

// ChangeNotifier fans out committed task mutations to subscribers. Every
// published snapshot carries the task's committed version; subscribers apply
// only strictly increasing versions (see Reconciler).
type ChangeNotifier struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	logger Logger
	wg     sync.WaitGroup
	closed bool
}

func NewChangeNotifier(logger Logger) *ChangeNotifier {
	return &ChangeNotifier{
		subs:   make(map[*Subscription]struct{}),
		logger: logger,
	}
}

// Subscribe registers a subscription for the partition and starts its
// delivery goroutine.
func (n *ChangeNotifier) Subscribe(p Partition) *Subscription {
	sub := &Subscription{
		partition: p,
		out:       make(chan models.Task),
		wake:      make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		sub.Close()
		close(sub.out)
		return sub
	}
	n.subs[sub] = struct{}{}
	n.mu.Unlock()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		sub.dispatch()
		n.mu.Lock()
		delete(n.subs, sub)
		n.mu.Unlock()
	}()
	return sub
}

// Publish fans the committed snapshot out to every matching subscription.
// Publish never blocks on slow subscribers; their snapshots queue up.
func (n *ChangeNotifier) Publish(t models.Task) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for sub := range n.subs {
		if sub.partition.Matches(t) {
			sub.enqueue(t)
		}
	}
}

// Close shuts down all subscriptions and waits for delivery goroutines.
func (n *ChangeNotifier) Close() {
	n.mu.Lock()
	n.closed = true
	subs := make([]*Subscription, 0, len(n.subs))
	for sub := range n.subs {
		subs = append(subs, sub)
	}
	n.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
	n.wg.Wait()
}

// Reconciler implements the subscriber-side idempotent apply rule: a
// snapshot is applied only if its version is strictly greater than the last
// applied version for that task. Safe against duplicate and out-of-order
// delivery.
type Reconciler struct {
	mu   sync.Mutex
	last map[string]int64
}

func NewReconciler() *Reconciler {
	return &Reconciler{last: make(map[string]int64)}
}

// Apply reports whether the snapshot should be applied, and records its
// version when it should.
func (r *Reconciler) Apply(t models.Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.Version <= r.last[t.ID] {
		return false
	}
	r.last[t.ID] = t.Version
	return true
}
