package ws

import (
	"github.com/zabbix-problems/zabbix-problems/internal/monitor"
	"github.com/zabbix-problems/zabbix-problems/internal/sensor"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgDelta    MessageType = "delta"
	MsgStatus   MessageType = "status"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

type SnapshotPayload struct {
	Sensors []sensor.State `json:"sensors"`
	Status  monitor.Status `json:"status"`
}

type DeltaPayload struct {
	Updates []sensor.State  `json:"updates"`
	Removed []sensor.Handle `json:"removed,omitempty"`
}

type StatusPayload struct {
	Status monitor.Status `json:"status"`
}
