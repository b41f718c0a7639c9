package identity

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
)

// HandlePrefix is the human-readable part used when rendering identity
// handles as bech32 strings.
const HandlePrefix = "tsl"

// SubIDLen is the fixed width of a sub-identifier.
const SubIDLen = 32

// MaxHandleLen bounds the raw byte length of an identity handle.
const MaxHandleLen = 32

// Handle is an opaque external-actor identifier. Handles are compared
// byte-exact and used as map keys via their Key form.
type Handle struct {
	raw []byte
}

// SubID is a 32-byte sub-account discriminator under one identity.
type SubID [SubIDLen]byte

// AccountID is the hashed account address derived from a handle and an
// optional sub-identifier.
type AccountID [32]byte

// NewHandle validates raw identifier bytes and wraps them in a Handle.
func NewHandle(raw []byte) (Handle, error) {
	if len(raw) == 0 {
		return Handle{}, fmt.Errorf("identity: empty handle")
	}
	if len(raw) > MaxHandleLen {
		return Handle{}, fmt.Errorf("identity: handle exceeds %d bytes", MaxHandleLen)
	}
	return Handle{raw: append([]byte(nil), raw...)}, nil
}

// MustHandle wraps raw bytes and panics on invalid input. Intended for tests
// and static construction.
func MustHandle(raw []byte) Handle {
	h, err := NewHandle(raw)
	if err != nil {
		panic(err)
	}
	return h
}

// Decode parses the bech32 text form of a handle.
func Decode(s string) (Handle, error) {
	prefix, data, err := bech32.Decode(s)
	if err != nil {
		return Handle{}, fmt.Errorf("identity: invalid bech32 string: %w", err)
	}
	if prefix != HandlePrefix {
		return Handle{}, fmt.Errorf("identity: unexpected prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return Handle{}, fmt.Errorf("identity: error converting bits: %w", err)
	}
	return NewHandle(conv)
}

// String renders the handle in bech32 with the canonical prefix.
func (h Handle) String() string {
	conv, err := bech32.ConvertBits(h.raw, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(HandlePrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns a copy of the raw identifier bytes.
func (h Handle) Bytes() []byte {
	return append([]byte(nil), h.raw...)
}

// IsZero reports whether the handle carries no identifier, i.e. an
// anonymous/unauthenticated caller.
func (h Handle) IsZero() bool { return len(h.raw) == 0 }

// Equal reports byte-exact equality of two handles.
func (h Handle) Equal(other Handle) bool { return bytes.Equal(h.raw, other.raw) }

// Key returns a string form suitable for use as a map key. It is not a
// printable encoding.
func (h Handle) Key() string { return string(h.raw) }

// HandleFromKey reconstructs a handle from its Key form.
func HandleFromKey(key string) Handle {
	return Handle{raw: []byte(key)}
}

// DeriveSubID right-aligns the handle's raw bytes into a 32-byte
// sub-identifier, zero-padding the high-order bytes. The mapping is total and
// deterministic.
func DeriveSubID(h Handle) SubID {
	var sub SubID
	copy(sub[SubIDLen-len(h.raw):], h.raw)
	return sub
}

// ZeroSubID is the canonical sub-identifier used when none is supplied.
var ZeroSubID SubID

// DeriveAccountID hashes the handle's raw bytes concatenated with the
// sub-identifier (the all-zero sub when nil) into an account address. The
// derivation is stable: identical inputs always yield the identical address,
// which the refund path relies on to match inbound transfers.
func DeriveAccountID(h Handle, sub *SubID) AccountID {
	effective := ZeroSubID
	if sub != nil {
		effective = *sub
	}
	input := make([]byte, 0, len(h.raw)+SubIDLen)
	input = append(input, h.raw...)
	input = append(input, effective[:]...)
	return AccountID(sha256.Sum256(input))
}

// Hex renders the account address as lowercase hex.
func (a AccountID) Hex() string { return hex.EncodeToString(a[:]) }

// AccountIDFromHex parses a 64-character hex account address.
func AccountIDFromHex(s string) (AccountID, error) {
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return AccountID{}, fmt.Errorf("identity: invalid account id: %w", err)
	}
	if len(decoded) != 32 {
		return AccountID{}, fmt.Errorf("identity: account id must be 32 bytes, got %d", len(decoded))
	}
	var id AccountID
	copy(id[:], decoded)
	return id, nil
}

// SubIDFromBytes validates and copies a 32-byte sub-identifier.
func SubIDFromBytes(b []byte) (SubID, error) {
	if len(b) != SubIDLen {
		return SubID{}, fmt.Errorf("identity: sub-identifier must be %d bytes, got %d", SubIDLen, len(b))
	}
	var sub SubID
	copy(sub[:], b)
	return sub, nil
}
