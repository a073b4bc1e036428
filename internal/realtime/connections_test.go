package realtime

import (
	"errors"
	"sync"
	"testing"
)

type fakeConn struct {
	mu       sync.Mutex
	messages []any
	fail     bool
	closed   bool
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.messages = append(f.messages, v)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func TestConnRegistryJoinLeave(t *testing.T) {
	r := NewConnRegistry(nil)

	id1 := r.Join("ch1", &fakeConn{})
	id2 := r.Join("ch1", &fakeConn{})
	if id1 == id2 {
		t.Fatalf("connection ids collide: %q", id1)
	}
	if got := r.CountByChannel("ch1"); got != 2 {
		t.Fatalf("CountByChannel = %d, want 2", got)
	}

	r.Leave(id1)
	if got := r.CountByChannel("ch1"); got != 1 {
		t.Fatalf("CountByChannel after leave = %d, want 1", got)
	}

	// Idempotent: leaving again or leaving an unknown id changes nothing.
	r.Leave(id1)
	r.Leave("not-a-connection")
	if got := r.CountByChannel("ch1"); got != 1 {
		t.Fatalf("CountByChannel after duplicate leave = %d, want 1", got)
	}

	r.Leave(id2)
	if got := r.CountByChannel("ch1"); got != 0 {
		t.Fatalf("CountByChannel after last leave = %d, want 0", got)
	}
}

func TestConnRegistryBroadcastEmptyChannel(t *testing.T) {
	r := NewConnRegistry(nil)
	if got := r.Broadcast("nobody-home", Message{Type: "x"}); got != 0 {
		t.Fatalf("Broadcast to empty channel = %d, want 0", got)
	}
}

func TestConnRegistryBroadcastPrunesDeadConnections(t *testing.T) {
	r := NewConnRegistry(nil)
	healthy1 := &fakeConn{}
	dead := &fakeConn{fail: true}
	healthy2 := &fakeConn{}
	r.Join("ch1", healthy1)
	r.Join("ch1", dead)
	r.Join("ch1", healthy2)

	if got := r.Broadcast("ch1", Message{Type: "progress_update"}); got != 2 {
		t.Fatalf("Broadcast sent = %d, want 2", got)
	}
	// The dead connection is pruned after the pass; healthy ones survive.
	if got := r.CountByChannel("ch1"); got != 2 {
		t.Fatalf("CountByChannel after prune = %d, want 2", got)
	}
	if got := r.Broadcast("ch1", Message{Type: "progress_update"}); got != 2 {
		t.Fatalf("second Broadcast sent = %d, want 2", got)
	}
	if healthy1.count() != 2 || healthy2.count() != 2 {
		t.Fatalf("healthy deliveries = %d/%d, want 2/2", healthy1.count(), healthy2.count())
	}
}

func TestConnRegistrySendToConnection(t *testing.T) {
	r := NewConnRegistry(nil)
	conn := &fakeConn{}
	id := r.Join("ch1", conn)

	if !r.SendToConnection(id, Message{Type: "echo"}) {
		t.Fatalf("SendToConnection to live connection = false, want true")
	}
	if conn.count() != 1 {
		t.Fatalf("messages = %d, want 1", conn.count())
	}
	if r.SendToConnection("unknown", Message{Type: "echo"}) {
		t.Fatalf("SendToConnection to unknown id = true, want false")
	}

	broken := &fakeConn{fail: true}
	brokenID := r.Join("ch1", broken)
	if r.SendToConnection(brokenID, Message{Type: "echo"}) {
		t.Fatalf("SendToConnection to broken connection = true, want false")
	}
	// The failed send pruned it.
	if r.SendToConnection(brokenID, Message{Type: "echo"}) {
		t.Fatalf("SendToConnection after prune = true, want false")
	}
	if got := r.CountByChannel("ch1"); got != 1 {
		t.Fatalf("CountByChannel = %d, want 1", got)
	}
}

func TestConnRegistryChannelsAreIsolated(t *testing.T) {
	r := NewConnRegistry(nil)
	a := &fakeConn{}
	b := &fakeConn{}
	r.Join("ch-a", a)
	r.Join("ch-b", b)

	if got := r.Broadcast("ch-a", Message{Type: "x"}); got != 1 {
		t.Fatalf("Broadcast ch-a sent = %d, want 1", got)
	}
	if b.count() != 0 {
		t.Fatalf("ch-b connection received %d messages, want 0", b.count())
	}
}

func TestConnRegistryConcurrentBroadcastAndLeave(t *testing.T) {
	r := NewConnRegistry(nil)

	const subscribers = 16
	ids := make([]string, 0, subscribers)
	for i := 0; i < subscribers; i++ {
		ids = append(ids, r.Join("ch1", &fakeConn{}))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			r.Broadcast("ch1", Message{Type: "tick"})
		}
	}()
	go func() {
		defer wg.Done()
		for _, id := range ids {
			r.Leave(id)
		}
	}()
	wg.Wait()

	if got := r.CountByChannel("ch1"); got != 0 {
		t.Fatalf("CountByChannel after concurrent leave = %d, want 0", got)
	}
}

func TestConnRegistryShutdownClosesEverything(t *testing.T) {
	r := NewConnRegistry(nil)
	a := &fakeConn{}
	b := &fakeConn{}
	r.Join("ch1", a)
	r.Join("ch2", b)

	r.Shutdown()

	if !a.closed || !b.closed {
		t.Fatalf("closed = %v/%v, want true/true", a.closed, b.closed)
	}
	if got := r.Broadcast("ch1", Message{Type: "x"}); got != 0 {
		t.Fatalf("Broadcast after Shutdown = %d, want 0", got)
	}
}
