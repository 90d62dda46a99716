// internal/controller/lifecycle.go
package controller

// Lifecycle is the controller state published in the status block.
type Lifecycle uint16

const (
	Invalid Lifecycle = iota
	Inited
	Prepared
	Started
	Paused
)

func (l Lifecycle) String() string {
	switch l {
	case Invalid:
		return "invalid"
	case Inited:
		return "inited"
	case Prepared:
		return "prepared"
	case Started:
		return "started"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}
