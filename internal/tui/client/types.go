// Package client talks to a running zabbix-problems server over its
// WebSocket and REST endpoints.
package client

import (
	"encoding/json"

	"github.com/zabbix-problems/zabbix-problems/internal/monitor"
	"github.com/zabbix-problems/zabbix-problems/internal/sensor"
	"github.com/zabbix-problems/zabbix-problems/internal/ws"
)

// WSMessage is the envelope as received; the payload is decoded per type.
type WSMessage struct {
	Type    ws.MessageType  `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type (
	SensorState = sensor.State
	Status      = monitor.Status
)

// Bubble Tea messages produced by WSClient.
type (
	WSConnectedMsg    struct{}
	WSDisconnectedMsg struct{ Err error }
	WSSnapshotMsg     struct{ Payload ws.SnapshotPayload }
	WSDeltaMsg        struct{ Payload ws.DeltaPayload }
	WSStatusMsg       struct{ Payload ws.StatusPayload }
)
