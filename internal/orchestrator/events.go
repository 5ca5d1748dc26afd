package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"github.com/anstrom/netsweep/internal/db"
)

// Event types.
const (
	EventScanStarted   = "scan.started"
	EventScanCompleted = "scan.completed"
	EventScanFailed    = "scan.failed"
	EventDeviceUpdated = "device.updated"
)

// Event describes sweep progress.
type Event struct {
	Type      string     `json:"type"`
	ScanID    uuid.UUID  `json:"scan_id"`
	Range     string     `json:"range,omitempty"`
	Hosts     int        `json:"hosts,omitempty"`
	Alive     int        `json:"alive,omitempty"`
	Device    *db.Device `json:"device,omitempty"`
	Error     string     `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Notifier receives sweep events. Publish must not block.
type Notifier interface {
	Publish(event Event)
}

type nopNotifier struct{}

func (nopNotifier) Publish(Event) {}
