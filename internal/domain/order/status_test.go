package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	allowed := []struct {
		from Status
		to   Status
	}{
		{StatusNew, StatusConfirmed},
		{StatusNew, StatusCancelled},
		{StatusConfirmed, StatusPreparing},
		{StatusConfirmed, StatusCancelled},
		{StatusPreparing, StatusShippingInProgress},
		{StatusPreparing, StatusCancelled},
		{StatusShippingInProgress, StatusDelivered},
		{StatusShippingInProgress, StatusDeliveryFailed},
		{StatusDelivered, StatusCompleted},
		{StatusDeliveryFailed, StatusReturnRequested},
		{StatusReturnRequested, StatusRefunded},
	}

	allowedSet := make(map[[2]Status]bool, len(allowed))
	for _, e := range allowed {
		allowedSet[[2]Status{e.from, e.to}] = true
	}

	all := []Status{
		StatusNew, StatusConfirmed, StatusPreparing, StatusShippingInProgress,
		StatusDelivered, StatusCompleted, StatusCancelled, StatusDeliveryFailed,
		StatusReturnRequested, StatusRefunded,
	}

	// Every pair not in the allowed set must be rejected.
	for _, from := range all {
		for _, to := range all {
			got := from.CanTransitionTo(to)
			want := allowedSet[[2]Status{from, to}]
			assert.Equal(t, want, got, "%s -> %s", from, to)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusRefunded.IsTerminal())

	assert.False(t, StatusNew.IsTerminal())
	assert.False(t, StatusShippingInProgress.IsTerminal())
	assert.False(t, StatusReturnRequested.IsTerminal())
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name     string
		status   Status
		metadata map[string]string
		want     string
	}{
		{name: "created", status: StatusNew, want: "Order created"},
		{name: "confirmed", status: StatusConfirmed, want: "Order confirmed"},
		{
			name:   "shipping with carrier and tracking",
			status: StatusShippingInProgress,
			metadata: map[string]string{
				MetaCarrier:        "DHL",
				MetaTrackingNumber: "DHL-123",
			},
			want: "Order handed to DHL (tracking DHL-123)",
		},
		{
			name:   "shipping without metadata",
			status: StatusShippingInProgress,
			want:   "Order handed to carrier",
		},
		{
			name:     "cancelled with reason",
			status:   StatusCancelled,
			metadata: map[string]string{MetaCancelReason: "changed my mind"},
			want:     "Order cancelled: changed my mind",
		},
		{name: "cancelled without reason", status: StatusCancelled, want: "Order cancelled"},
		{name: "refunded", status: StatusRefunded, want: "Order refunded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describe(tt.status, tt.metadata))
		})
	}
}

func TestInvalidTransitionError(t *testing.T) {
	err := &InvalidTransitionError{From: StatusCompleted, To: StatusCancelled}
	assert.Equal(t, "invalid order transition COMPLETED -> CANCELLED", err.Error())
}
