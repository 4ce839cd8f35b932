package dispatch

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketfeed/internal/obs"
)

// blockingDeliverer holds every delivery until released, so queue
// overflow behavior can be observed deterministically.
type blockingDeliverer struct {
	gate chan struct{}

	mu        sync.Mutex
	delivered []Message
}

func newBlockingDeliverer() *blockingDeliverer {
	return &blockingDeliverer{gate: make(chan struct{})}
}

func (d *blockingDeliverer) Deliver(_ string, msg Message) error {
	<-d.gate
	d.mu.Lock()
	d.delivered = append(d.delivered, msg)
	d.mu.Unlock()
	return nil
}

func ltpMessage(symbol string, rate float64) Message {
	return Message{Symbol: symbol, Type: msgTypeLTP, LTP: f64(rate)}
}

func TestOutboxDropsOldestWhenFull(t *testing.T) {
	deliverer := newBlockingDeliverer()
	metrics := obs.NewMetrics()
	o := NewOutbox(deliverer, 4, metrics)
	defer o.Close()

	o.Attach("slow")
	// One message is pulled by the worker and parks on the gate; the
	// next four fill the queue.
	for i := 0; i < 10; i++ {
		o.Send("slow", ltpMessage("RELIANCE", float64(i)))
	}
	// Give the worker time to park so the count below is stable.
	deadline := time.Now().Add(2 * time.Second)
	for metrics.Read().OutboxDrops == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.NotZero(t, metrics.Read().OutboxDrops)

	close(deliverer.gate)
	o.Close()

	deliverer.mu.Lock()
	defer deliverer.mu.Unlock()
	require.NotEmpty(t, deliverer.delivered)
	// The newest message always survives eviction.
	last := deliverer.delivered[len(deliverer.delivered)-1]
	require.Equal(t, 9.0, *last.LTP)
	require.Less(t, len(deliverer.delivered), 10)
}

func TestOutboxSendToUnknownSubscriber(t *testing.T) {
	o := NewOutbox(newRecordingDeliverer(), 4, obs.NewMetrics())
	defer o.Close()
	// Nothing attached: the message is discarded without blocking.
	o.Send("ghost", ltpMessage("RELIANCE", 1))
}

func TestOutboxAttachIdempotentAndDetach(t *testing.T) {
	deliverer := newRecordingDeliverer()
	o := NewOutbox(deliverer, 4, obs.NewMetrics())
	defer o.Close()

	o.Attach("u1")
	o.Attach("u1")
	o.Send("u1", ltpMessage("RELIANCE", 1))
	deliverer.await(t, "u1", 1)

	o.Detach("u1")
	o.Detach("u1")
	o.Send("u1", ltpMessage("RELIANCE", 2))

	deliverer.mu.Lock()
	defer deliverer.mu.Unlock()
	require.Len(t, deliverer.messages["u1"], 1)
}

func TestOutboxConcurrentSendAndDetach(t *testing.T) {
	deliverer := newRecordingDeliverer()
	o := NewOutbox(deliverer, 2, obs.NewMetrics())
	defer o.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("u%d", i)
		o.Attach(id)
		wg.Add(2)
		go func(id string) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				o.Send(id, ltpMessage("RELIANCE", float64(j)))
			}
		}(id)
		go func(id string) {
			defer wg.Done()
			o.Detach(id)
		}(id)
	}
	wg.Wait()
}

func TestOutboxCloseStopsWorkers(t *testing.T) {
	deliverer := newRecordingDeliverer()
	o := NewOutbox(deliverer, 4, obs.NewMetrics())
	o.Attach("u1")
	o.Send("u1", ltpMessage("RELIANCE", 1))
	o.Close()
	// Close waits for workers, so the queued message was delivered.
	deliverer.mu.Lock()
	defer deliverer.mu.Unlock()
	require.Len(t, deliverer.messages["u1"], 1)

	// After close, attach and send are inert.
	o.Attach("u2")
	o.Send("u2", ltpMessage("RELIANCE", 2))
}
