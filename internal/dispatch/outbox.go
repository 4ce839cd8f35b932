package dispatch

import (
	"sync"

	"github.com/yanun0323/logs"

	"marketfeed/internal/obs"
)

// Deliverer is the external delivery capability. Implementations own the
// actual socket write; failures there are the transport's concern.
type Deliverer interface {
	Deliver(subscriberID string, msg Message) error
}

// Outbox decouples fan-out from delivery with one bounded queue per
// subscriber. A full queue drops the oldest message: the newest quote
// supersedes older ones, so a slow consumer loses history, never
// freshness, and never stalls delivery to others.
type Outbox struct {
	deliver  Deliverer
	capacity int
	metrics  *obs.Metrics

	mu     sync.Mutex
	queues map[string]chan Message
	closed bool
	wg     sync.WaitGroup
}

// NewOutbox builds an outbox delivering through d.
func NewOutbox(d Deliverer, capacity int, metrics *obs.Metrics) *Outbox {
	if capacity <= 0 {
		capacity = 256
	}
	return &Outbox{
		deliver:  d,
		capacity: capacity,
		metrics:  metrics,
		queues:   make(map[string]chan Message),
	}
}

// Attach creates the subscriber's queue and worker. Idempotent.
func (o *Outbox) Attach(subscriberID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if _, exists := o.queues[subscriberID]; exists {
		return
	}
	queue := make(chan Message, o.capacity)
	o.queues[subscriberID] = queue
	o.wg.Add(1)
	go o.runWorker(subscriberID, queue)
}

// Detach closes the subscriber's queue; its worker drains and exits.
func (o *Outbox) Detach(subscriberID string) {
	o.mu.Lock()
	queue, ok := o.queues[subscriberID]
	if ok {
		delete(o.queues, subscriberID)
	}
	o.mu.Unlock()
	if ok {
		close(queue)
	}
}

// Send hands a message to the subscriber's queue without blocking,
// evicting the oldest entry when full. The lock spans the enqueue so a
// concurrent Detach cannot close the queue mid-send; every branch is
// non-blocking.
func (o *Outbox) Send(subscriberID string, msg Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	queue, ok := o.queues[subscriberID]
	if !ok {
		return
	}
	for {
		select {
		case queue <- msg:
			return
		default:
			select {
			case <-queue:
				o.metrics.AddOutboxDrop()
			default:
			}
		}
	}
}

// Close shuts every queue and waits for in-flight deliveries.
func (o *Outbox) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	queues := o.queues
	o.queues = make(map[string]chan Message)
	o.mu.Unlock()
	for _, queue := range queues {
		close(queue)
	}
	o.wg.Wait()
}

func (o *Outbox) runWorker(subscriberID string, queue chan Message) {
	defer o.wg.Done()
	for msg := range queue {
		if err := o.deliver.Deliver(subscriberID, msg); err != nil {
			logs.Warnf("deliver to %s failed: %v", subscriberID, err)
			continue
		}
		o.metrics.AddDelivery()
	}
}
