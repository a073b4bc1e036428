package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/auilabs/aui/internal/observability"
)

// Event is the unit delivered over the one-way stream transport.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// EventClient is a registered stream subscriber. The serving loop drains
// Events; the registry owns the queue and closes it on Unregister.
type EventClient struct {
	ID        string
	ChannelID string
	queue     chan Event
	closeOnce sync.Once
}

// Events exposes the client's outbound queue for the serving loop.
func (c *EventClient) Events() <-chan Event {
	return c.queue
}

func (c *EventClient) close() {
	c.closeOnce.Do(func() {
		close(c.queue)
	})
}

// EventRegistry owns one-way event-stream subscriptions grouped by channel.
// Every client gets a bounded FIFO queue; a broadcaster that finds the queue
// full drops the oldest queued event to make room, so a slow consumer can
// delay its own delivery but never block a producer or grow memory without
// bound.
type EventRegistry struct {
	mu       sync.Mutex
	channels map[string][]*EventClient
	byID     map[string]*EventClient
	capacity int
	metrics  *observability.Metrics
}

const defaultQueueCapacity = 64

func NewEventRegistry(queueCapacity int, metrics *observability.Metrics) *EventRegistry {
	if queueCapacity <= 0 {
		queueCapacity = defaultQueueCapacity
	}
	return &EventRegistry{
		channels: make(map[string][]*EventClient),
		byID:     make(map[string]*EventClient),
		capacity: queueCapacity,
		metrics:  metrics,
	}
}

// Register creates a subscription for the channel. The first queued event is
// always the connected acknowledgment carrying the generated client id.
func (r *EventRegistry) Register(channelID string) *EventClient {
	c := &EventClient{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		queue:     make(chan Event, r.capacity),
	}
	c.queue <- Event{
		Name: "connected",
		Data: map[string]string{
			"client_id":  c.ID,
			"channel_id": channelID,
		},
	}

	r.mu.Lock()
	r.channels[channelID] = append(r.channels[channelID], c)
	r.byID[c.ID] = c
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SSEClients.Inc()
	}
	return c
}

// Unregister removes a client and closes its queue. Safe to call more than
// once and concurrently with an in-flight Broadcast.
func (r *EventRegistry) Unregister(clientID string) {
	r.mu.Lock()
	c, ok := r.byID[clientID]
	if ok {
		delete(r.byID, clientID)
		clients := r.channels[c.ChannelID]
		for i, cc := range clients {
			if cc.ID == clientID {
				clients = append(clients[:i], clients[i+1:]...)
				break
			}
		}
		if len(clients) == 0 {
			delete(r.channels, c.ChannelID)
		} else {
			r.channels[c.ChannelID] = clients
		}
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	c.close()
	if r.metrics != nil {
		r.metrics.SSEClients.Dec()
	}
}

// Broadcast enqueues the event on every subscriber queue of the channel and
// returns the number of clients it reached. Enqueueing happens under the
// registry lock, which serializes racing producers per queue and keeps the
// drop-oldest eviction atomic.
func (r *EventRegistry) Broadcast(channelID, eventName string, data any) int {
	evt := Event{Name: eventName, Data: data}

	r.mu.Lock()
	clients := r.channels[channelID]
	sent := 0
	for _, c := range clients {
		r.enqueueLocked(c, evt)
		sent++
	}
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.Broadcasts.WithLabelValues("sse").Inc()
	}
	return sent
}

// SendToClient enqueues an event for a single subscriber.
func (r *EventRegistry) SendToClient(clientID, eventName string, data any) bool {
	r.mu.Lock()
	c, ok := r.byID[clientID]
	if ok {
		r.enqueueLocked(c, Event{Name: eventName, Data: data})
	}
	r.mu.Unlock()
	return ok
}

// CountByChannel reports the current subscriber count of a channel.
func (r *EventRegistry) CountByChannel(channelID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels[channelID])
}

// Shutdown drops every subscription and closes the queues.
func (r *EventRegistry) Shutdown() {
	r.mu.Lock()
	all := make([]*EventClient, 0, len(r.byID))
	for _, c := range r.byID {
		all = append(all, c)
	}
	r.channels = make(map[string][]*EventClient)
	r.byID = make(map[string]*EventClient)
	r.mu.Unlock()

	for _, c := range all {
		c.close()
	}
	if r.metrics != nil {
		r.metrics.SSEClients.Set(0)
	}
}

// enqueueLocked pushes evt, evicting the oldest queued event when the queue
// is full. Only called with r.mu held, so the evict-then-push pair cannot
// interleave with another producer.
func (r *EventRegistry) enqueueLocked(c *EventClient, evt Event) {
	select {
	case c.queue <- evt:
		return
	default:
	}
	select {
	case <-c.queue:
		if r.metrics != nil {
			r.metrics.DroppedEvents.Inc()
		}
	default:
	}
	select {
	case c.queue <- evt:
	default:
		// Unreachable while r.mu is held; never block the broadcaster.
		if r.metrics != nil {
			r.metrics.DroppedEvents.Inc()
		}
	}
}
