package enums

import "fmt"

// OrderEventType names a lifecycle transition recorded in the audit log.
type OrderEventType string

const (
	OrderEventPlaced    OrderEventType = "placed"
	OrderEventAccepted  OrderEventType = "accepted"
	OrderEventRejected  OrderEventType = "rejected"
	OrderEventPreparing OrderEventType = "preparing"
	OrderEventReady     OrderEventType = "ready"
	OrderEventCompleted OrderEventType = "completed"
	OrderEventCancelled OrderEventType = "cancelled"
	OrderEventExpired   OrderEventType = "expired"
)

var validOrderEventTypes = []OrderEventType{
	OrderEventPlaced,
	OrderEventAccepted,
	OrderEventRejected,
	OrderEventPreparing,
	OrderEventReady,
	OrderEventCompleted,
	OrderEventCancelled,
	OrderEventExpired,
}

// String implements fmt.Stringer.
func (o OrderEventType) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderEventType.
func (o OrderEventType) IsValid() bool {
	for _, candidate := range validOrderEventTypes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderEventType converts raw input into an OrderEventType.
func ParseOrderEventType(value string) (OrderEventType, error) {
	for _, candidate := range validOrderEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order event type %q", value)
}
