// internal/writer/types.go
package writer

import (
	"time"

	"github.com/tamzrod/isp-controlloop/internal/status"
)

// StatusPlan is the fully-built delivery plan for the status block.
type StatusPlan struct {
	Endpoint   string // tcp://host:port or rtu:///dev/ttyX
	UnitID     uint8
	BaseSlot   uint16
	DeviceName string
	Timeout    time.Duration
	BaudRate   int // rtu only
}

// endpointClient is the register-write surface the status writer needs.
type endpointClient interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

// StatusWriter is the delivery-only contract for controller status.
// It receives a snapshot and writes it verbatim.
// No logic, no interpretation.
type StatusWriter interface {
	WriteStatus(s status.Snapshot) error
}
