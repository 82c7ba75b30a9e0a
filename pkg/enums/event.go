package enums

import "fmt"

// EventAggregateType names the entity a storefront event is about.
type EventAggregateType string

const (
	AggregateCart  EventAggregateType = "cart"
	AggregateOrder EventAggregateType = "order"
)

// EventType is the event_type attribute carried by every published storefront event.
type EventType string

const (
	EventCartMigrated      EventType = "cart_migrated"
	EventCheckoutCompleted EventType = "checkout_completed"
)

var validEventTypes = []EventType{
	EventCartMigrated,
	EventCheckoutCompleted,
}

// IsValid reports whether the value is a known event type.
func (e EventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// Aggregate returns the aggregate an event type belongs to.
func (e EventType) Aggregate() EventAggregateType {
	if e == EventCartMigrated {
		return AggregateCart
	}
	return AggregateOrder
}

// ParseEventType converts raw input into EventType.
func ParseEventType(value string) (EventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
