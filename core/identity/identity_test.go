package identity

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcutil/bech32"
)

func TestDeriveSubIDRightAligns(t *testing.T) {
	h := MustHandle([]byte{0xAA, 0xBB, 0xCC})
	sub := DeriveSubID(h)
	for i := 0; i < SubIDLen-3; i++ {
		if sub[i] != 0 {
			t.Fatalf("expected zero padding at index %d, got %x", i, sub[i])
		}
	}
	if sub[29] != 0xAA || sub[30] != 0xBB || sub[31] != 0xCC {
		t.Fatalf("unexpected tail bytes: %x", sub[29:])
	}
}

func TestDeriveAccountIDDeterministic(t *testing.T) {
	h := MustHandle([]byte("investor-1"))
	sub := DeriveSubID(MustHandle([]byte("investor-2")))

	first := DeriveAccountID(h, &sub)
	second := DeriveAccountID(h, &sub)
	if first != second {
		t.Fatalf("derivation not stable: %x vs %x", first, second)
	}
}

func TestDeriveAccountIDNilSubMatchesZeroSub(t *testing.T) {
	h := MustHandle([]byte("treasury"))
	zero := ZeroSubID
	if DeriveAccountID(h, nil) != DeriveAccountID(h, &zero) {
		t.Fatal("nil sub-identifier must hash as the all-zero sub-identifier")
	}
}

func TestDeriveAccountIDDistinguishesSubs(t *testing.T) {
	h := MustHandle([]byte("engine"))
	subA := DeriveSubID(MustHandle([]byte{0x01}))
	subB := DeriveSubID(MustHandle([]byte{0x02}))
	if DeriveAccountID(h, &subA) == DeriveAccountID(h, &subB) {
		t.Fatal("different sub-identifiers must derive different addresses")
	}
}

func TestHandleBech32RoundTrip(t *testing.T) {
	h := MustHandle([]byte{0x01, 0x02, 0x03, 0x04, 0x05})
	decoded, err := Decode(h.String())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !decoded.Equal(h) {
		t.Fatalf("round trip mismatch: %x vs %x", decoded.Bytes(), h.Bytes())
	}
}

func TestDecodeRejectsForeignPrefix(t *testing.T) {
	conv, err := bech32.ConvertBits([]byte{0x01, 0x02, 0x03}, 8, 5, true)
	if err != nil {
		t.Fatalf("convert bits: %v", err)
	}
	foreign, err := bech32.Encode("bank", conv)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Decode(foreign); err == nil {
		t.Fatal("expected prefix rejection")
	}
}

func TestNewHandleBounds(t *testing.T) {
	if _, err := NewHandle(nil); err == nil {
		t.Fatal("expected error for empty handle")
	}
	if _, err := NewHandle(bytes.Repeat([]byte{0x01}, MaxHandleLen+1)); err == nil {
		t.Fatal("expected error for oversized handle")
	}
}

func TestAccountIDHexRoundTrip(t *testing.T) {
	id := DeriveAccountID(MustHandle([]byte("owner")), nil)
	parsed, err := AccountIDFromHex(id.Hex())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed != id {
		t.Fatal("hex round trip mismatch")
	}
}
