package registry

import (
	"errors"
	"reflect"
	"testing"

	"tokensale/core/identity"
)

func testHandle(fill byte) identity.Handle {
	return identity.MustHandle([]byte{fill, fill, fill})
}

func TestMintAssignsMonotonicIDs(t *testing.T) {
	l := NewLedger()
	owner := testHandle(0x01)
	sub := identity.DeriveSubID(owner)

	first := l.Mint(owner, &sub)
	second := l.Mint(owner, &sub)
	if first != 1 || second != 2 {
		t.Fatalf("expected ids 1,2 got %d,%d", first, second)
	}
	if l.TotalSupply() != 2 {
		t.Fatalf("expected supply 2, got %d", l.TotalSupply())
	}
	if l.HeldCount(owner, &sub) != 2 {
		t.Fatalf("expected held count 2, got %d", l.HeldCount(owner, &sub))
	}
}

func TestTransferMovesIndexEntries(t *testing.T) {
	l := NewLedger()
	alice := testHandle(0xA1)
	bob := testHandle(0xB2)
	id := l.Mint(alice, nil)

	txn, err := l.Transfer(alice, nil, id, Holder{Owner: bob})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if txn == 0 {
		t.Fatal("expected non-zero transaction counter")
	}
	if l.HeldCount(alice, nil) != 0 {
		t.Fatal("token not removed from previous owner's index")
	}
	if l.HeldCount(bob, nil) != 1 {
		t.Fatal("token not added to new owner's index")
	}
	owners := l.OwnerOf([]uint32{id})
	if owners[0] == nil || !owners[0].Owner.Equal(bob) {
		t.Fatal("record owner not updated")
	}
}

func TestTransferCounterIncreases(t *testing.T) {
	l := NewLedger()
	alice := testHandle(0xA1)
	bob := testHandle(0xB2)
	first := l.Mint(alice, nil)
	second := l.Mint(alice, nil)

	txn1, err := l.Transfer(alice, nil, first, Holder{Owner: bob})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	txn2, err := l.Transfer(alice, nil, second, Holder{Owner: bob})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if txn2 <= txn1 {
		t.Fatalf("counter must increase: %d then %d", txn1, txn2)
	}
}

func TestTransferNonExistingToken(t *testing.T) {
	l := NewLedger()
	_, err := l.Transfer(testHandle(0x01), nil, 42, Holder{Owner: testHandle(0x02)})
	if !errors.Is(err, ErrNonExistingTokenID) {
		t.Fatalf("expected ErrNonExistingTokenID, got %v", err)
	}
}

func TestTransferByNonOwnerUnauthorized(t *testing.T) {
	l := NewLedger()
	alice := testHandle(0xA1)
	mallory := testHandle(0xEE)
	id := l.Mint(alice, nil)

	_, err := l.Transfer(mallory, nil, id, Holder{Owner: mallory})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestTransferWrongSubIdentifierUnauthorized(t *testing.T) {
	l := NewLedger()
	alice := testHandle(0xA1)
	heldSub := identity.DeriveSubID(alice)
	id := l.Mint(alice, &heldSub)

	_, err := l.Transfer(alice, nil, id, Holder{Owner: testHandle(0xB2)})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for sub mismatch, got %v", err)
	}
}

func TestNilSubMatchesZeroSub(t *testing.T) {
	l := NewLedger()
	alice := testHandle(0xA1)
	zero := identity.ZeroSubID
	id := l.Mint(alice, &zero)

	// Held under the all-zero sub, claimed with an absent sub.
	if _, err := l.Transfer(alice, nil, id, Holder{Owner: testHandle(0xB2)}); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
}

func TestSelfTransferChangingSubInvalidRecipient(t *testing.T) {
	l := NewLedger()
	alice := testHandle(0xA1)
	id := l.Mint(alice, nil)
	otherSub := identity.DeriveSubID(testHandle(0x07))

	_, err := l.Transfer(alice, nil, id, Holder{Owner: alice, Sub: &otherSub})
	if !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
}

func TestTokensPagination(t *testing.T) {
	l := NewLedger()
	owner := testHandle(0x01)
	// Mint ids 1..8, then move 4, 6 and 7 away so the owner holds {1,2,3,5,8}.
	for i := 0; i < 8; i++ {
		l.Mint(owner, nil)
	}
	other := testHandle(0x02)
	for _, id := range []uint32{4, 6, 7} {
		if _, err := l.Transfer(owner, nil, id, Holder{Owner: other}); err != nil {
			t.Fatalf("setup transfer failed: %v", err)
		}
	}

	got := l.TokensOf(owner, nil, 2, 2)
	if !reflect.DeepEqual(got, []uint32{3, 5}) {
		t.Fatalf("expected [3 5], got %v", got)
	}
}

func TestTokensDefaultTake(t *testing.T) {
	l := NewLedger()
	owner := testHandle(0x01)
	for i := 0; i < 8; i++ {
		l.Mint(owner, nil)
	}
	got := l.Tokens(0, 0)
	if !reflect.DeepEqual(got, []uint32{1, 2, 3, 4, 5, 6, 7, 8}[:DefaultTake]) {
		t.Fatalf("expected first %d ids, got %v", DefaultTake, got)
	}
}

func TestTokensCursorPastEnd(t *testing.T) {
	l := NewLedger()
	owner := testHandle(0x01)
	for i := 0; i < 3; i++ {
		l.Mint(owner, nil)
	}
	if got := l.Tokens(3, 5); len(got) != 0 {
		t.Fatalf("expected empty page, got %v", got)
	}
}

func TestRestoreRebuildsIndex(t *testing.T) {
	l := NewLedger()
	alice := testHandle(0xA1)
	bob := testHandle(0xB2)
	l.Mint(alice, nil)
	l.Mint(bob, nil)
	l.Mint(alice, nil)

	restored := Restore(l.Records(), 3, l.Counter())
	if restored.TotalSupply() != 3 {
		t.Fatalf("expected 3 records, got %d", restored.TotalSupply())
	}
	if restored.HeldCount(alice, nil) != 2 || restored.HeldCount(bob, nil) != 1 {
		t.Fatal("owner index not rebuilt")
	}
	if next := restored.Mint(bob, nil); next != 4 {
		t.Fatalf("expected next id 4, got %d", next)
	}
}
