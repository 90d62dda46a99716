// internal/writer/builder.go
package writer

import (
	"time"

	"github.com/tamzrod/isp-controlloop/internal/config"
	wmodbus "github.com/tamzrod/isp-controlloop/internal/writer/modbus"
)

// BuildStatusPlan converts the status config into a StatusPlan.
// Returns nil when status is disabled.
// Assumes config has already been validated and normalized.
func BuildStatusPlan(c *config.StatusConfig) *StatusPlan {
	if c == nil {
		return nil
	}
	return &StatusPlan{
		Endpoint:   c.Endpoint,
		UnitID:     c.UnitID,
		BaseSlot:   c.BaseSlot,
		DeviceName: c.DeviceName,
		Timeout:    time.Duration(c.TimeoutMs) * time.Millisecond,
		BaudRate:   c.BaudRate,
	}
}

// BuildStatusWriter connects to the plan's endpoint and returns a
// writer plus its closer.
func BuildStatusWriter(plan *StatusPlan) (StatusWriter, func() error, error) {
	c, err := wmodbus.NewEndpointClient(wmodbus.Config{
		Endpoint: plan.Endpoint,
		Timeout:  plan.Timeout,
		BaudRate: plan.BaudRate,
	})
	if err != nil {
		return nil, nil, err
	}

	sw, _ := NewDeviceStatusWriter(plan, c)
	return sw, c.Close, nil
}
