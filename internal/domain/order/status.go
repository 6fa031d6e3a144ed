package order

import "fmt"

// Status is an order lifecycle state.
type Status string

const (
	StatusNew                Status = "NEW"
	StatusConfirmed          Status = "CONFIRMED"
	StatusPreparing          Status = "PREPARING"
	StatusShippingInProgress Status = "SHIPPING_IN_PROGRESS"
	StatusDelivered          Status = "DELIVERED"
	StatusCompleted          Status = "COMPLETED"
	StatusCancelled          Status = "CANCELLED"
	StatusDeliveryFailed     Status = "DELIVERY_FAILED"
	StatusReturnRequested    Status = "RETURN_REQUESTED"
	StatusRefunded           Status = "REFUNDED"
)

// transitions is the complete edge table of the lifecycle. Statuses absent
// from the map are terminal.
var transitions = map[Status][]Status{
	StatusNew:                {StatusConfirmed, StatusCancelled},
	StatusConfirmed:          {StatusPreparing, StatusCancelled},
	StatusPreparing:          {StatusShippingInProgress, StatusCancelled},
	StatusShippingInProgress: {StatusDelivered, StatusDeliveryFailed},
	StatusDelivered:          {StatusCompleted},
	StatusDeliveryFailed:     {StatusReturnRequested},
	StatusReturnRequested:    {StatusRefunded},
}

// CanTransitionTo reports whether the edge s -> next is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// InvalidTransitionError reports an edge that is not in the lifecycle table.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition %s -> %s", e.From, e.To)
}

// Metadata keys recognized by timeline descriptions.
const (
	MetaTrackingNumber = "trackingNumber"
	MetaCarrier        = "carrier"
	MetaCancelReason   = "cancelReason"
)

// describe renders the human-readable timeline description for entering a
// status, enriched with tracking and cancellation details when present.
func describe(status Status, metadata map[string]string) string {
	switch status {
	case StatusNew:
		return "Order created"
	case StatusConfirmed:
		return "Order confirmed"
	case StatusPreparing:
		return "Order is being prepared"
	case StatusShippingInProgress:
		desc := "Order handed to carrier"
		if c := metadata[MetaCarrier]; c != "" {
			desc = fmt.Sprintf("Order handed to %s", c)
		}
		if tn := metadata[MetaTrackingNumber]; tn != "" {
			desc += fmt.Sprintf(" (tracking %s)", tn)
		}
		return desc
	case StatusDelivered:
		return "Order delivered"
	case StatusCompleted:
		return "Order completed"
	case StatusCancelled:
		if r := metadata[MetaCancelReason]; r != "" {
			return fmt.Sprintf("Order cancelled: %s", r)
		}
		return "Order cancelled"
	case StatusDeliveryFailed:
		return "Delivery failed"
	case StatusReturnRequested:
		return "Return requested"
	case StatusRefunded:
		return "Order refunded"
	default:
		return string(status)
	}
}
