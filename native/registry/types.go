package registry

import (
	"errors"

	"tokensale/core/identity"
)

var (
	// ErrNonExistingTokenID is returned when an operation references a token
	// id that was never minted.
	ErrNonExistingTokenID = errors.New("registry: non-existing token id")
	// ErrUnauthorized is returned when the caller does not hold the token
	// under the claimed owner and sub-identifier.
	ErrUnauthorized = errors.New("registry: unauthorized")
	// ErrInvalidRecipient is returned when a self-transfer would move the
	// token to a different sub-identifier than currently held.
	ErrInvalidRecipient = errors.New("registry: invalid recipient")
)

// Record is one indivisible unit of the offering: a ledger entry binding a
// token id to its current holder. Records are created by settlement minting,
// mutated by transfers and never deleted.
type Record struct {
	ID    uint32
	Owner identity.Handle
	Sub   *identity.SubID
}

// Clone returns a deep copy so callers can safely mutate the copy without
// affecting the stored instance.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Sub != nil {
		sub := *r.Sub
		clone.Sub = &sub
	}
	return &clone
}

// Holder identifies the account a record currently belongs to.
type Holder struct {
	Owner identity.Handle
	Sub   *identity.SubID
}

// DefaultTake is the page size used when an enumeration request does not
// specify one.
const DefaultTake = 5

// subEqual compares two optional sub-identifiers, treating an absent value as
// the canonical all-zero sub-identifier.
func subEqual(a, b *identity.SubID) bool {
	left := identity.ZeroSubID
	if a != nil {
		left = *a
	}
	right := identity.ZeroSubID
	if b != nil {
		right = *b
	}
	return left == right
}
