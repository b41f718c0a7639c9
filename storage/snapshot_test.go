package storage

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"tokensale/core/identity"
	"tokensale/native/sale"
)

func snapshotFixture(t *testing.T) *sale.State {
	t.Helper()
	meta := &sale.Metadata{
		Name:            "Harbor Lofts Offering",
		Symbol:          "HARB",
		Description:     "Fractional ownership of a tokenized property",
		Documents:       []sale.Document{{Title: "Prospectus", URL: "https://example.com/prospectus.pdf"}},
		Attributes:      []sale.Attribute{{Key: "location", Value: "Lisbon"}},
		Images:          []string{"https://example.com/front.png"},
		PurchasePrice:   big.NewInt(5_000_000_000),
		UnitPrice:       big.NewInt(50_000_000),
		SupplyCap:       100,
		Treasury:        identity.MustHandle([]byte("treasury")),
		FundsLedger:     identity.MustHandle([]byte("funds-ledger")),
		LedgerIndex:     identity.MustHandle([]byte("ledger-index")),
		CollectionOwner: identity.MustHandle([]byte("owner")),
		AssetStore:      identity.MustHandle([]byte("asset-store")),
	}
	st := sale.NewState(meta)

	alice := identity.MustHandle([]byte("alice"))
	bob := identity.MustHandle([]byte("bob"))
	st.Escrow.Book(alice, 3)
	st.Escrow.Book(bob, 2)
	require.NoError(t, st.Escrow.Accept())
	st.Escrow.MarkSettled(alice)

	aliceSub := identity.DeriveSubID(alice)
	for i := 0; i < 3; i++ {
		st.Registry.Mint(alice, &aliceSub)
	}
	return st
}

func requireStateEqual(t *testing.T, want, got *sale.State) {
	t.Helper()
	require.Equal(t, want.Meta, got.Meta)
	require.Equal(t, want.Escrow.Status(), got.Escrow.Status())
	require.Equal(t, want.Escrow.TotalBooked(), got.Escrow.TotalBooked())
	require.Equal(t, want.Escrow.Bookings(), got.Escrow.Bookings())
	require.Equal(t, want.Registry.Records(), got.Registry.Records())
	require.Equal(t, want.Registry.Counter(), got.Registry.Counter())
	require.Equal(t, want.Registry.NextID(), got.Registry.NextID())
}

func TestSnapshotRoundTripMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	st := snapshotFixture(t)
	require.NoError(t, SaveState(db, st))

	restored, ok, err := LoadState(db)
	require.NoError(t, err)
	require.True(t, ok)
	requireStateEqual(t, st, restored)
}

func TestSnapshotRoundTripLevelDB(t *testing.T) {
	dir := t.TempDir()

	db1, err := NewLevelDB(dir)
	require.NoError(t, err)

	st := snapshotFixture(t)
	require.NoError(t, SaveState(db1, st))
	db1.Close()

	db2, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	restored, ok, err := LoadState(db2)
	require.NoError(t, err)
	require.True(t, ok)
	requireStateEqual(t, st, restored)
}

func TestLoadStateAbsent(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	_, ok, err := LoadState(db)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSnapshotWithoutMetadata(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	st := sale.NewState(nil)
	require.NoError(t, SaveState(db, st))

	restored, ok, err := LoadState(db)
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, restored.Meta)
	require.Equal(t, sale.StatusLive, restored.Escrow.Status())
}

func TestSnapshotRestoreResumesTokenIDs(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	st := snapshotFixture(t)
	require.NoError(t, SaveState(db, st))

	restored, ok, err := LoadState(db)
	require.NoError(t, err)
	require.True(t, ok)

	next := restored.Registry.Mint(identity.MustHandle([]byte("carol")), nil)
	require.Equal(t, uint32(4), next)
}
