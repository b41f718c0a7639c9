package sale

import (
	"math/big"
	"strconv"

	"tokensale/core/events"
	"tokensale/core/identity"
)

const (
	EventTypeBooked           = "sale.booked"
	EventTypeAccepted         = "sale.accepted"
	EventTypeRejected         = "sale.rejected"
	EventTypeSettled          = "sale.settled"
	EventTypeRefunded         = "sale.refunded"
	EventTypeOwnershipChanged = "sale.ownership_changed"
	EventTypeMetadataUpdated  = "sale.metadata_updated"
)

// NewBookedEvent returns the canonical payload for a recorded booking.
func NewBookedEvent(investor identity.Handle, quantity, total uint64) events.Event {
	return events.Event{Type: EventTypeBooked, Attributes: map[string]string{
		"investor": investor.String(),
		"quantity": strconv.FormatUint(quantity, 10),
		"total":    strconv.FormatUint(total, 10),
	}}
}

// NewAcceptedEvent returns the payload emitted when the sale resolves to
// Accepted.
func NewAcceptedEvent(totalBooked uint64) events.Event {
	return events.Event{Type: EventTypeAccepted, Attributes: map[string]string{
		"totalBooked": strconv.FormatUint(totalBooked, 10),
	}}
}

// NewRejectedEvent returns the payload emitted when the sale resolves to
// Rejected.
func NewRejectedEvent(totalBooked uint64) events.Event {
	return events.Event{Type: EventTypeRejected, Attributes: map[string]string{
		"totalBooked": strconv.FormatUint(totalBooked, 10),
	}}
}

// NewSettledEvent returns the payload for one investor's completed
// disbursement during settlement.
func NewSettledEvent(investor identity.Handle, quantity uint64, amount *big.Int) events.Event {
	return events.Event{Type: EventTypeSettled, Attributes: map[string]string{
		"investor": investor.String(),
		"quantity": strconv.FormatUint(quantity, 10),
		"amount":   amount.String(),
	}}
}

// NewRefundedEvent returns the payload for one investor's completed refund.
func NewRefundedEvent(investor identity.Handle, to identity.AccountID, amount *big.Int) events.Event {
	return events.Event{Type: EventTypeRefunded, Attributes: map[string]string{
		"investor": investor.String(),
		"to":       to.Hex(),
		"amount":   amount.String(),
	}}
}

// NewOwnershipChangedEvent returns the payload for a collection ownership
// handover.
func NewOwnershipChangedEvent(previous, next identity.Handle) events.Event {
	return events.Event{Type: EventTypeOwnershipChanged, Attributes: map[string]string{
		"previousOwner": previous.String(),
		"newOwner":      next.String(),
	}}
}

// NewMetadataUpdatedEvent returns the payload for an accepted metadata
// amendment.
func NewMetadataUpdatedEvent(txn uint64) events.Event {
	return events.Event{Type: EventTypeMetadataUpdated, Attributes: map[string]string{
		"txn": strconv.FormatUint(txn, 10),
	}}
}
