package sale

import (
	"errors"
	"testing"

	"tokensale/core/identity"
)

func TestStatusTransitionsAreOneWay(t *testing.T) {
	l := NewEscrowLedger()
	if l.Status() != StatusLive {
		t.Fatalf("expected Live, got %v", l.Status())
	}
	if err := l.Accept(); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if err := l.Accept(); !errors.Is(err, ErrSaleClosed) {
		t.Fatalf("expected ErrSaleClosed, got %v", err)
	}
	if err := l.Reject(); !errors.Is(err, ErrSaleClosed) {
		t.Fatalf("expected ErrSaleClosed, got %v", err)
	}
	if l.Status() != StatusAccepted {
		t.Fatal("terminal status must not change")
	}
}

func TestBookMaintainsTotal(t *testing.T) {
	l := NewEscrowLedger()
	alice := identity.MustHandle([]byte("alice"))
	bob := identity.MustHandle([]byte("bob"))

	l.Book(alice, 2)
	l.Book(bob, 1)
	l.Book(alice, 3)

	if got := l.BookedOf(alice); got != 5 {
		t.Fatalf("expected 5 for alice, got %d", got)
	}
	if got := l.BookedOf(bob); got != 1 {
		t.Fatalf("expected 1 for bob, got %d", got)
	}
	if got := l.BookedOf(identity.MustHandle([]byte("carol"))); got != 0 {
		t.Fatalf("expected 0 for absent investor, got %d", got)
	}
	if l.TotalBooked() != 6 {
		t.Fatalf("expected total 6, got %d", l.TotalBooked())
	}
}

func TestParticipantsDeterministicOrder(t *testing.T) {
	l := NewEscrowLedger()
	l.Book(identity.MustHandle([]byte{0x03}), 1)
	l.Book(identity.MustHandle([]byte{0x01}), 1)
	l.Book(identity.MustHandle([]byte{0x02}), 1)

	participants := l.Participants()
	if len(participants) != 3 {
		t.Fatalf("expected 3 participants, got %d", len(participants))
	}
	for i := 0; i < len(participants)-1; i++ {
		if participants[i].Bytes()[0] >= participants[i+1].Bytes()[0] {
			t.Fatal("participants must be ordered by raw bytes")
		}
	}
}

func TestBookingsCloneEntries(t *testing.T) {
	l := NewEscrowLedger()
	alice := identity.MustHandle([]byte("alice"))
	l.Book(alice, 2)

	bookings := l.Bookings()
	bookings[0].Entry.Settled = true
	if l.Bookings()[0].Entry.Settled {
		t.Fatal("mutating a snapshot must not touch the ledger")
	}

	l.MarkSettled(alice)
	if !l.Bookings()[0].Entry.Settled {
		t.Fatal("marker not recorded")
	}
}

func TestRestoreEscrowLedgerRecomputesTotal(t *testing.T) {
	l := NewEscrowLedger()
	l.Book(identity.MustHandle([]byte("alice")), 4)
	l.Book(identity.MustHandle([]byte("bob")), 3)
	if err := l.Accept(); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	restored := RestoreEscrowLedger(l.Status(), l.Bookings())
	if restored.Status() != StatusAccepted {
		t.Fatalf("expected Accepted, got %v", restored.Status())
	}
	if restored.TotalBooked() != 7 {
		t.Fatalf("expected total 7, got %d", restored.TotalBooked())
	}
}

func TestMetadataValidate(t *testing.T) {
	meta := testMetadata()
	if err := meta.Validate(); err != nil {
		t.Fatalf("valid metadata rejected: %v", err)
	}

	var nilMeta *Metadata
	if err := nilMeta.Validate(); !errors.Is(err, ErrMetadataNotSet) {
		t.Fatalf("expected ErrMetadataNotSet, got %v", err)
	}

	broken := testMetadata()
	broken.SupplyCap = 0
	if err := broken.Validate(); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
