package ws

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zabbix-problems/zabbix-problems/internal/monitor"
	"github.com/zabbix-problems/zabbix-problems/internal/problem"
	"github.com/zabbix-problems/zabbix-problems/internal/sensor"
)

func waitForClients(t *testing.T, b *Broadcaster, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("ClientCount = %d, want %d", b.ClientCount(), want)
}

func TestSnapshotOnConnect(t *testing.T) {
	backend := newFakeBackend()
	srv, b := startServer(t, backend, Options{})
	conn := dialServer(t, srv, "")
	waitForClients(t, b, 1)

	typ, data := readMessage(t, conn)
	if typ != MsgSnapshot {
		t.Fatalf("first message type = %q, want snapshot", typ)
	}
	var msg struct {
		Payload SnapshotPayload `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if len(msg.Payload.Sensors) != 1 || msg.Payload.Sensors[0].Value != problem.Disaster {
		t.Errorf("snapshot sensors = %+v", msg.Payload.Sensors)
	}
	if msg.Payload.Status.Health != monitor.StatusHealthy {
		t.Errorf("snapshot status = %+v", msg.Payload.Status)
	}
}

func TestDeltaOnlyCarriesChanges(t *testing.T) {
	backend := newFakeBackend()
	srv, b := startServer(t, backend, Options{})
	conn := dialServer(t, srv, "")
	waitForClients(t, b, 1)
	readMessage(t, conn) // snapshot

	network := testState("s-1", "network", problem.Disaster)
	storage := testState("s-2", "storage", problem.High)
	b.SensorsUpdated([]sensor.State{network, storage}, backend.Status())

	typ, data := readMessage(t, conn)
	if typ != MsgDelta {
		t.Fatalf("type = %q, want delta", typ)
	}
	var delta struct {
		Payload DeltaPayload `json:"payload"`
	}
	json.Unmarshal(data, &delta)
	if len(delta.Payload.Updates) != 2 {
		t.Fatalf("first delta has %d updates, want 2", len(delta.Payload.Updates))
	}
	if typ, _ := readMessage(t, conn); typ != MsgStatus {
		t.Fatalf("type = %q, want status", typ)
	}

	// Same readings with a fresh timestamp: no delta, only status.
	network.UpdatedAt = time.Now()
	storage.Value = problem.Average
	b.SensorsUpdated([]sensor.State{network, storage}, backend.Status())

	typ, data = readMessage(t, conn)
	if typ != MsgDelta {
		t.Fatalf("type = %q, want delta", typ)
	}
	delta.Payload = DeltaPayload{}
	json.Unmarshal(data, &delta)
	if len(delta.Payload.Updates) != 1 || delta.Payload.Updates[0].ID != "s-2" {
		t.Errorf("second delta = %+v, want only s-2", delta.Payload)
	}
	readMessage(t, conn) // status

	b.SensorsUpdated([]sensor.State{network}, backend.Status())
	typ, data = readMessage(t, conn)
	if typ != MsgDelta {
		t.Fatalf("type = %q, want delta", typ)
	}
	delta.Payload = DeltaPayload{}
	json.Unmarshal(data, &delta)
	if len(delta.Payload.Updates) != 0 || len(delta.Payload.Removed) != 1 || delta.Payload.Removed[0] != "s-2" {
		t.Errorf("removal delta = %+v", delta.Payload)
	}
}

func TestThrottleBatchesCycles(t *testing.T) {
	backend := newFakeBackend()
	b := NewBroadcaster(backend, 50*time.Millisecond, time.Hour, 0, nil)
	defer b.Stop()

	b.SensorsUpdated([]sensor.State{testState("s-1", "network", problem.Warning)}, backend.Status())
	b.SensorsUpdated([]sensor.State{testState("s-1", "network", problem.High)}, backend.Status())

	b.flushMu.Lock()
	pending := b.pendingUpdates["s-1"]
	n := len(b.pendingUpdates)
	b.flushMu.Unlock()

	if n != 1 || pending.Value != problem.High {
		t.Errorf("pending = %d updates, s-1 = %d; want one update with the latest value", n, pending.Value)
	}
}

func TestSnapshotLoop(t *testing.T) {
	backend := newFakeBackend()
	b := NewBroadcaster(backend, time.Hour, 20*time.Millisecond, 0, nil)
	defer b.Stop()
	srv := httptest.NewServer(NewServer(backend, b, Options{}).Handler())
	defer srv.Close()

	conn := dialServer(t, srv, "")
	for i := 0; i < 2; i++ {
		if typ, _ := readMessage(t, conn); typ != MsgSnapshot {
			t.Fatalf("message %d type = %q, want snapshot", i, typ)
		}
	}
}

func TestNewBroadcasterNonPositiveIntervals(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		b := NewBroadcaster(newFakeBackend(), -time.Millisecond, interval, 0, nil)
		if b.throttle != 0 {
			t.Errorf("throttle = %s, want 0", b.throttle)
		}
		b.Stop()
	}
}

func TestAddClient_MaxConnections(t *testing.T) {
	const maxConns = 2
	b := NewBroadcaster(newFakeBackend(), 100*time.Millisecond, time.Hour, maxConns, nil)
	defer b.Stop()

	var clients []*client
	for i := 0; i < maxConns; i++ {
		_, conn := dialTestWS(t)
		c, err := b.AddClient(conn)
		if err != nil {
			t.Fatalf("AddClient[%d]: unexpected error: %v", i, err)
		}
		clients = append(clients, c)
	}

	_, conn := dialTestWS(t)
	if _, err := b.AddClient(conn); !errors.Is(err, ErrTooManyClients) {
		t.Fatalf("expected ErrTooManyClients, got %v", err)
	}
	if got := b.ClientCount(); got != maxConns {
		t.Fatalf("expected %d clients after rejection, got %d", maxConns, got)
	}

	b.RemoveClient(clients[0])
	b.RemoveClient(clients[0]) // second removal is a no-op

	_, conn2 := dialTestWS(t)
	if _, err := b.AddClient(conn2); err != nil {
		t.Fatalf("AddClient after removal: unexpected error: %v", err)
	}
}

func TestWritePump_RemovesClientOnWriteError(t *testing.T) {
	_, serverConn := dialTestWS(t)

	b := NewBroadcaster(newFakeBackend(), time.Hour, time.Hour, 0, nil)
	defer b.Stop()

	// Build a client directly so we control when writePump starts.
	c := &client{conn: serverConn, b: b, send: make(chan []byte, 64)}
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	serverConn.Close()
	c.send <- []byte(`{"type":"test"}`)
	go c.writePump()

	waitForClients(t, b, 0)
}

func TestStopDisconnectsClients(t *testing.T) {
	b := NewBroadcaster(newFakeBackend(), time.Hour, time.Hour, 0, nil)
	for i := 0; i < 3; i++ {
		_, conn := dialTestWS(t)
		if _, err := b.AddClient(conn); err != nil {
			t.Fatal(err)
		}
	}
	b.SensorsUpdated([]sensor.State{testState("s-9", "x", problem.High)}, monitor.Status{})

	b.Stop()
	b.Stop()

	if got := b.ClientCount(); got != 0 {
		t.Errorf("ClientCount after Stop = %d", got)
	}
	b.flushMu.Lock()
	timer := b.flushTimer
	b.flushMu.Unlock()
	if timer != nil {
		t.Error("pending flush survived Stop")
	}
}
