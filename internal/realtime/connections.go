package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/auilabs/aui/internal/observability"
)

// Conn is the slice of a bidirectional transport the registry needs.
// *websocket.Conn satisfies it; tests use in-memory fakes.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

type connection struct {
	id        string
	channelID string
	conn      Conn
}

// ConnRegistry owns live bidirectional connections grouped by channel.
// Channels are created on first Join and deleted when the last connection
// leaves. A failed send never surfaces to the broadcaster; it marks the
// connection for pruning after the fan-out pass.
type ConnRegistry struct {
	mu       sync.Mutex
	channels map[string][]*connection
	byID     map[string]*connection
	metrics  *observability.Metrics
}

func NewConnRegistry(metrics *observability.Metrics) *ConnRegistry {
	return &ConnRegistry{
		channels: make(map[string][]*connection),
		byID:     make(map[string]*connection),
		metrics:  metrics,
	}
}

// Join registers an already-accepted connection under a channel and returns
// its connection id. It never fails; the handshake is the caller's problem.
func (r *ConnRegistry) Join(channelID string, conn Conn) string {
	c := &connection{
		id:        uuid.NewString(),
		channelID: channelID,
		conn:      conn,
	}

	r.mu.Lock()
	r.channels[channelID] = append(r.channels[channelID], c)
	r.byID[c.id] = c
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.WSConnections.Inc()
	}
	return c.id
}

// Leave removes a connection. Unknown ids are a no-op: "already gone" is an
// expected race with broadcast-side pruning, not an error.
func (r *ConnRegistry) Leave(connectionID string) {
	r.mu.Lock()
	removed := r.removeLocked(connectionID)
	r.mu.Unlock()

	if removed && r.metrics != nil {
		r.metrics.WSConnections.Dec()
	}
}

// Broadcast sends message to every connection of the channel and returns the
// number of successful sends. The subscriber set is snapshotted before the
// pass; connections that fail mid-pass are pruned afterwards, never while
// iterating, so a concurrent Leave cannot tear the collection.
func (r *ConnRegistry) Broadcast(channelID string, message any) int {
	r.mu.Lock()
	conns := append([]*connection(nil), r.channels[channelID]...)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.Broadcasts.WithLabelValues("ws").Inc()
	}
	if len(conns) == 0 {
		return 0
	}

	sent := 0
	var dead []string
	for _, c := range conns {
		if err := c.conn.WriteJSON(message); err != nil {
			dead = append(dead, c.id)
			continue
		}
		sent++
	}

	for _, id := range dead {
		r.mu.Lock()
		removed := r.removeLocked(id)
		r.mu.Unlock()
		if removed {
			if r.metrics != nil {
				r.metrics.SendErrors.WithLabelValues("ws").Inc()
				r.metrics.WSConnections.Dec()
			}
		}
	}
	return sent
}

// SendToConnection delivers to a single connection, best effort. A failed
// send prunes the connection just like a failed broadcast would.
func (r *ConnRegistry) SendToConnection(connectionID string, message any) bool {
	r.mu.Lock()
	c, ok := r.byID[connectionID]
	r.mu.Unlock()
	if !ok {
		return false
	}

	if err := c.conn.WriteJSON(message); err != nil {
		r.mu.Lock()
		removed := r.removeLocked(connectionID)
		r.mu.Unlock()
		if removed && r.metrics != nil {
			r.metrics.SendErrors.WithLabelValues("ws").Inc()
			r.metrics.WSConnections.Dec()
		}
		return false
	}
	return true
}

// CountByChannel reports the current subscriber count of a channel.
func (r *ConnRegistry) CountByChannel(channelID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels[channelID])
}

// Shutdown drops every connection and closes the underlying transports.
func (r *ConnRegistry) Shutdown() {
	r.mu.Lock()
	all := make([]*connection, 0, len(r.byID))
	for _, c := range r.byID {
		all = append(all, c)
	}
	r.channels = make(map[string][]*connection)
	r.byID = make(map[string]*connection)
	r.mu.Unlock()

	for _, c := range all {
		_ = c.conn.Close()
	}
	if r.metrics != nil {
		r.metrics.WSConnections.Set(0)
	}
}

func (r *ConnRegistry) removeLocked(connectionID string) bool {
	c, ok := r.byID[connectionID]
	if !ok {
		return false
	}
	delete(r.byID, connectionID)

	conns := r.channels[c.channelID]
	for i, cc := range conns {
		if cc.id == connectionID {
			conns = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(conns) == 0 {
		delete(r.channels, c.channelID)
	} else {
		r.channels[c.channelID] = conns
	}
	return true
}
