package sale

import (
	"bytes"
	"errors"
	"sort"

	"tokensale/core/identity"
)

var (
	// ErrInvalidArgument is returned for malformed input, e.g. a zero
	// booking quantity.
	ErrInvalidArgument = errors.New("sale: invalid argument")
	// ErrUnauthorized is returned when the caller lacks the required role.
	ErrUnauthorized = errors.New("sale: unauthorized")
	// ErrSaleClosed is returned when a Live-only operation is invoked after
	// the sale has resolved.
	ErrSaleClosed = errors.New("sale: sale not live")
	// ErrInsufficientEscrowFunds is returned when the investor's escrow
	// balance does not cover the requested booking.
	ErrInsufficientEscrowFunds = errors.New("sale: insufficient escrow funds")
	// ErrSupplyCapExceeded is returned when a booking would push the total
	// past the supply cap.
	ErrSupplyCapExceeded = errors.New("sale: supply cap exceeded")
	// ErrRefundSourceNotFound is returned when no inbound transfer to the
	// escrow address can be located in the ledger history.
	ErrRefundSourceNotFound = errors.New("sale: refund source not found")
	// ErrExternalCallFailed wraps funds-ledger or asset-store failures.
	ErrExternalCallFailed = errors.New("sale: external call failed")
	// ErrMetadataNotSet is returned when an operation requires sale metadata
	// before initialisation.
	ErrMetadataNotSet = errors.New("sale: metadata not set")
)

// Status represents the lifecycle state of the offering.
type Status uint8

const (
	StatusLive Status = iota
	StatusAccepted
	StatusRejected
)

// String returns the canonical lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusLive:
		return "live"
	case StatusAccepted:
		return "accepted"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusLive, StatusAccepted, StatusRejected:
		return true
	default:
		return false
	}
}

// BookingEntry records one investor's reserved quantity together with the
// settlement and refund markers that keep re-driven disbursements idempotent.
type BookingEntry struct {
	Quantity uint64
	Settled  bool
	Refunded bool
}

// Clone returns a copy of the entry.
func (b *BookingEntry) Clone() *BookingEntry {
	if b == nil {
		return nil
	}
	clone := *b
	return &clone
}

// Booking pairs an investor with their ledger entry for iteration.
type Booking struct {
	Investor identity.Handle
	Entry    *BookingEntry
}

// EscrowLedger is the in-memory table of reserved quantities and the sale
// status. It holds the core accounting invariants (total equals the sum of
// entries, bookings only ever increment) and performs no I/O; business rule
// validation lives with the engine.
type EscrowLedger struct {
	status      Status
	booked      map[string]*BookingEntry
	totalBooked uint64
}

// NewEscrowLedger returns an empty ledger with a Live sale.
func NewEscrowLedger() *EscrowLedger {
	return &EscrowLedger{
		status: StatusLive,
		booked: make(map[string]*BookingEntry),
	}
}

// Status returns the current sale status.
func (l *EscrowLedger) Status() Status { return l.status }

// Book adds the quantity to the investor's existing reservation, inserting a
// fresh entry when absent, and increments the running total.
func (l *EscrowLedger) Book(investor identity.Handle, quantity uint64) {
	key := investor.Key()
	entry, ok := l.booked[key]
	if !ok {
		entry = &BookingEntry{}
		l.booked[key] = entry
	}
	entry.Quantity += quantity
	l.totalBooked += quantity
}

// BookedOf returns the investor's reserved quantity, zero when absent.
func (l *EscrowLedger) BookedOf(investor identity.Handle) uint64 {
	if entry, ok := l.booked[investor.Key()]; ok {
		return entry.Quantity
	}
	return 0
}

// TotalBooked returns the running total of reserved quantities.
func (l *EscrowLedger) TotalBooked() uint64 { return l.totalBooked }

// Participants returns the booked investor identities ordered by raw bytes.
func (l *EscrowLedger) Participants() []identity.Handle {
	out := make([]identity.Handle, 0, len(l.booked))
	for key := range l.booked {
		out = append(out, identity.HandleFromKey(key))
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Bytes(), out[j].Bytes()) < 0
	})
	return out
}

// Bookings returns cloned entries ordered by investor bytes. Iteration order
// is deterministic so settlement and refund runs disburse in a stable order.
func (l *EscrowLedger) Bookings() []Booking {
	participants := l.Participants()
	out := make([]Booking, 0, len(participants))
	for _, investor := range participants {
		out = append(out, Booking{Investor: investor, Entry: l.booked[investor.Key()].Clone()})
	}
	return out
}

// Accept transitions the sale Live→Accepted. The transition is one-way.
func (l *EscrowLedger) Accept() error {
	if l.status != StatusLive {
		return ErrSaleClosed
	}
	l.status = StatusAccepted
	return nil
}

// Reject transitions the sale Live→Rejected. The transition is one-way.
func (l *EscrowLedger) Reject() error {
	if l.status != StatusLive {
		return ErrSaleClosed
	}
	l.status = StatusRejected
	return nil
}

// MarkSettled records that the investor's disbursement completed.
func (l *EscrowLedger) MarkSettled(investor identity.Handle) {
	if entry, ok := l.booked[investor.Key()]; ok {
		entry.Settled = true
	}
}

// MarkRefunded records that the investor's refund completed.
func (l *EscrowLedger) MarkRefunded(investor identity.Handle) {
	if entry, ok := l.booked[investor.Key()]; ok {
		entry.Refunded = true
	}
}

// RestoreEscrowLedger rebuilds the ledger from persisted bookings. The total
// is recomputed from the entries so the sum invariant holds by construction.
func RestoreEscrowLedger(status Status, bookings []Booking) *EscrowLedger {
	l := NewEscrowLedger()
	l.status = status
	for _, b := range bookings {
		entry := b.Entry.Clone()
		l.booked[b.Investor.Key()] = entry
		l.totalBooked += entry.Quantity
	}
	return l
}
