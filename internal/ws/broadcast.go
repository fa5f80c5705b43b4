package ws

import (
	"encoding/json"
	"errors"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zabbix-problems/zabbix-problems/internal/monitor"
	"github.com/zabbix-problems/zabbix-problems/internal/sensor"
)

// ErrTooManyClients is returned by AddClient when the connection limit is
// reached.
var ErrTooManyClients = errors.New("ws: too many clients")

// StateProvider supplies the full picture sent in snapshots.
type StateProvider interface {
	Sensors() []sensor.State
	Status() monitor.Status
}

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			// drain until RemoveClient closes send
			for range c.send {
			}
			return
		}
	}
}

// Broadcaster fans sensor changes out to WebSocket clients. Changes are
// batched for the throttle window and sent as one delta; a full snapshot
// goes out every snapshot interval and on connect.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	maxConns int

	provider StateProvider
	throttle time.Duration
	log      *zap.Logger

	flushMu        sync.Mutex
	last           map[sensor.Handle]sensor.State
	pendingUpdates map[sensor.Handle]sensor.State
	pendingRemoved map[sensor.Handle]bool
	pendingStatus  *monitor.Status
	flushTimer     *time.Timer

	snapshotTicker *time.Ticker
	stop           chan struct{}
	stopOnce       sync.Once
}

var _ monitor.Listener = (*Broadcaster)(nil)

// DefaultSnapshotInterval replaces a non-positive snapshot interval.
const DefaultSnapshotInterval = 10 * time.Second

// NewBroadcaster starts the snapshot loop. maxConns <= 0 means unlimited and
// a negative throttle is treated as zero.
func NewBroadcaster(provider StateProvider, throttle, snapshotInterval time.Duration, maxConns int, log *zap.Logger) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	if snapshotInterval <= 0 {
		snapshotInterval = DefaultSnapshotInterval
	}
	if throttle < 0 {
		throttle = 0
	}
	b := &Broadcaster{
		clients:        make(map[*client]bool),
		maxConns:       maxConns,
		provider:       provider,
		throttle:       throttle,
		log:            log,
		last:           make(map[sensor.Handle]sensor.State),
		pendingUpdates: make(map[sensor.Handle]sensor.State),
		pendingRemoved: make(map[sensor.Handle]bool),
		snapshotTicker: time.NewTicker(snapshotInterval),
		stop:           make(chan struct{}),
	}
	go b.snapshotLoop()
	return b
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	c := &client{conn: conn, b: b, send: make(chan []byte, 64)}

	b.mu.Lock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		return nil, ErrTooManyClients
	}
	b.clients[c] = true
	b.mu.Unlock()

	go c.writePump()

	if data, err := json.Marshal(b.snapshot()); err == nil {
		b.mu.RLock()
		if b.clients[c] {
			select {
			case c.send <- data:
			default:
			}
		}
		b.mu.RUnlock()
	}
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// SensorsUpdated implements monitor.Listener. It only records what changed
// since the previous cycle; sending happens on the flush timer.
func (b *Broadcaster) SensorsUpdated(states []sensor.State, status monitor.Status) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	seen := make(map[sensor.Handle]bool, len(states))
	for _, st := range states {
		seen[st.ID] = true
		if prev, ok := b.last[st.ID]; ok && sameReading(prev, st) {
			continue
		}
		b.last[st.ID] = st
		b.pendingUpdates[st.ID] = st
		delete(b.pendingRemoved, st.ID)
	}
	for id := range b.last {
		if !seen[id] {
			delete(b.last, id)
			delete(b.pendingUpdates, id)
			b.pendingRemoved[id] = true
		}
	}
	b.pendingStatus = &status

	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

// sameReading ignores UpdatedAt, which changes every cycle.
func sameReading(a, b sensor.State) bool {
	return a.Value == b.Value &&
		a.Available == b.Available &&
		a.Name == b.Name &&
		reflect.DeepEqual(a.Detail, b.Detail)
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	updates := make([]sensor.State, 0, len(b.pendingUpdates))
	for _, st := range b.pendingUpdates {
		updates = append(updates, st)
	}
	removed := make([]sensor.Handle, 0, len(b.pendingRemoved))
	for id := range b.pendingRemoved {
		removed = append(removed, id)
	}
	status := b.pendingStatus
	b.pendingUpdates = make(map[sensor.Handle]sensor.State)
	b.pendingRemoved = make(map[sensor.Handle]bool)
	b.pendingStatus = nil
	b.flushTimer = nil
	b.flushMu.Unlock()

	if len(updates) > 0 || len(removed) > 0 {
		sort.Slice(updates, func(i, j int) bool { return updates[i].Name < updates[j].Name })
		sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
		b.broadcast(WSMessage{
			Type:    MsgDelta,
			Payload: DeltaPayload{Updates: updates, Removed: removed},
		})
	}
	if status != nil {
		b.broadcast(WSMessage{Type: MsgStatus, Payload: StatusPayload{Status: *status}})
	}
}

func (b *Broadcaster) snapshot() WSMessage {
	return WSMessage{
		Type: MsgSnapshot,
		Payload: SnapshotPayload{
			Sensors: b.provider.Sensors(),
			Status:  b.provider.Status(),
		},
	}
}

func (b *Broadcaster) snapshotLoop() {
	for {
		select {
		case <-b.stop:
			return
		case <-b.snapshotTicker.C:
			if b.ClientCount() > 0 {
				b.broadcast(b.snapshot())
			}
		}
	}
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.log.Error("broadcast marshal failed", zap.String("type", string(msg.Type)), zap.Error(err))
		return
	}

	// Sends happen under the read lock so RemoveClient cannot close a
	// channel mid-send.
	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		b.log.Warn("ws client too slow, disconnecting", zap.String("remote", c.conn.RemoteAddr().String()))
		b.RemoveClient(c)
	}
}

// Stop halts the snapshot loop and any pending flush, then disconnects
// every client.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		close(b.stop)
		b.snapshotTicker.Stop()

		b.flushMu.Lock()
		if b.flushTimer != nil {
			b.flushTimer.Stop()
			b.flushTimer = nil
		}
		b.flushMu.Unlock()

		b.mu.Lock()
		for c := range b.clients {
			delete(b.clients, c)
			close(c.send)
		}
		b.mu.Unlock()
	})
}
