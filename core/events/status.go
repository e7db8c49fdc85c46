package events

const (
	// KindSystemStatus identifies operational status notices.
	KindSystemStatus Kind = "system.status"
)

// SystemStatus carries an operational notice for viewers.
type SystemStatus struct {
	Base
	Message string
}

// NewSystemStatus creates a system status event.
func NewSystemStatus(origin, message string) SystemStatus {
	return SystemStatus{Base: NewBase(KindSystemStatus, origin), Message: message}
}

func (e SystemStatus) String() string { return e.Message }
