package realtime

// Message is the envelope pushed over the bidirectional transport. The
// stream transport carries the same payload as an Event instead.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Dispatcher fans one logical event out to both transports of a channel.
// The two broadcasts are independent: a degraded transport affects neither
// the other transport nor the producer, whose state change has already
// committed by the time Notify runs. Calls are synchronous so events from
// one producer reach each registry in the order they were notified.
type Dispatcher struct {
	conns  *ConnRegistry
	events *EventRegistry
}

func NewDispatcher(conns *ConnRegistry, events *EventRegistry) *Dispatcher {
	return &Dispatcher{conns: conns, events: events}
}

// Notify pushes the event to every websocket and stream subscriber of the
// channel. Per-subscriber failures are absorbed by the registries.
func (d *Dispatcher) Notify(channelID, eventName string, payload any) {
	if d.conns != nil {
		d.conns.Broadcast(channelID, Message{Type: eventName, Data: payload})
	}
	if d.events != nil {
		d.events.Broadcast(channelID, eventName, payload)
	}
}
