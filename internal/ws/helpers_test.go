package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zabbix-problems/zabbix-problems/internal/monitor"
	"github.com/zabbix-problems/zabbix-problems/internal/problem"
	"github.com/zabbix-problems/zabbix-problems/internal/sensor"
)

// fakeBackend is a static coordinator stand-in.
type fakeBackend struct {
	mu        sync.Mutex
	states    []sensor.State
	status    monitor.Status
	refreshes int
}

func (f *fakeBackend) Sensors() []sensor.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sensor.State(nil), f.states...)
}

func (f *fakeBackend) Sensor(h sensor.Handle) (sensor.State, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, st := range f.states {
		if st.ID == h {
			return st, true
		}
	}
	return sensor.State{}, false
}

func (f *fakeBackend) Status() monitor.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeBackend) RequestRefresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
}

func (f *fakeBackend) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func testState(id, name string, value problem.Severity) sensor.State {
	return sensor.State{
		ID:        sensor.Handle(id),
		Name:      name,
		Value:     value,
		Severity:  value.String(),
		Available: true,
		Detail:    map[string][]string{"component:" + name: {"hostA (" + value.String() + ")"}},
	}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		states: []sensor.State{testState("s-1", "network", problem.Disaster)},
		status: monitor.Status{Source: "fake", Health: monitor.StatusHealthy, HasData: true, LastUpdateSuccess: true},
	}
}

// dialTestWS creates a test HTTP server that upgrades to WebSocket and
// returns the server-side connection. The client side stays open until the
// test ends.
func dialTestWS(t *testing.T) (*httptest.Server, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- c
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { clientConn.Close() })

	select {
	case serverConn := <-connCh:
		return srv, serverConn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server-side WebSocket connection")
		return nil, nil
	}
}

// startServer serves the full route set over httptest.
func startServer(t *testing.T, backend *fakeBackend, opts Options) (*httptest.Server, *Broadcaster) {
	t.Helper()
	b := NewBroadcaster(backend, 10*time.Millisecond, time.Hour, 0, nil)
	t.Cleanup(b.Stop)
	srv := httptest.NewServer(NewServer(backend, b, opts).Handler())
	t.Cleanup(srv.Close)
	return srv, b
}

func dialServer(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) (MessageType, []byte) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return head.Type, data
}
