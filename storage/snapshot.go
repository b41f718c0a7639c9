package storage

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"tokensale/core/identity"
	"tokensale/native/registry"
	"tokensale/native/sale"
)

// stateKey is where the engine snapshot lives in the key-value store.
var stateKey = []byte("sale/state")

// The stored* types are the RLP wire forms of the engine state. They carry
// exactly what must survive a restart: metadata, escrow bookings, ownership
// records and the transaction counter. Derived structures (the owner index,
// the escrow total) are rebuilt on restore.

type storedDocument struct {
	Title string
	URL   string
}

type storedAttribute struct {
	Key   string
	Value string
}

type storedMetadata struct {
	Name            string
	Symbol          string
	Description     string
	LogoURL         string
	BrochureURL     string
	Images          []string
	Documents       []storedDocument
	Attributes      []storedAttribute
	PurchasePrice   *big.Int
	UnitPrice       *big.Int
	SupplyCap       uint64
	Treasury        []byte
	FundsLedger     []byte
	LedgerIndex     []byte
	CollectionOwner []byte
	AssetStore      []byte
}

type storedBooking struct {
	Investor []byte
	Quantity uint64
	Settled  bool
	Refunded bool
}

type storedRecord struct {
	ID    uint32
	Owner []byte
	Sub   []byte
}

type storedState struct {
	HasMeta   bool
	Meta      storedMetadata
	Status    uint8
	Bookings  []storedBooking
	Records   []storedRecord
	NextID    uint32
	TxCounter uint64
}

func handleBytes(h identity.Handle) []byte {
	if h.IsZero() {
		return []byte{}
	}
	return h.Bytes()
}

func handleFromBytes(b []byte) (identity.Handle, error) {
	if len(b) == 0 {
		return identity.Handle{}, nil
	}
	return identity.NewHandle(b)
}

func encodeMetadata(meta *sale.Metadata) storedMetadata {
	out := storedMetadata{
		Name:            meta.Name,
		Symbol:          meta.Symbol,
		Description:     meta.Description,
		LogoURL:         meta.LogoURL,
		BrochureURL:     meta.BrochureURL,
		Images:          meta.Images,
		PurchasePrice:   meta.PurchasePrice,
		UnitPrice:       meta.UnitPrice,
		SupplyCap:       meta.SupplyCap,
		Treasury:        handleBytes(meta.Treasury),
		FundsLedger:     handleBytes(meta.FundsLedger),
		LedgerIndex:     handleBytes(meta.LedgerIndex),
		CollectionOwner: handleBytes(meta.CollectionOwner),
		AssetStore:      handleBytes(meta.AssetStore),
	}
	if out.PurchasePrice == nil {
		out.PurchasePrice = big.NewInt(0)
	}
	if out.UnitPrice == nil {
		out.UnitPrice = big.NewInt(0)
	}
	for _, doc := range meta.Documents {
		out.Documents = append(out.Documents, storedDocument{Title: doc.Title, URL: doc.URL})
	}
	for _, attr := range meta.Attributes {
		out.Attributes = append(out.Attributes, storedAttribute{Key: attr.Key, Value: attr.Value})
	}
	return out
}

func decodeMetadata(stored storedMetadata) (*sale.Metadata, error) {
	treasury, err := handleFromBytes(stored.Treasury)
	if err != nil {
		return nil, fmt.Errorf("storage: treasury: %w", err)
	}
	fundsLedger, err := handleFromBytes(stored.FundsLedger)
	if err != nil {
		return nil, fmt.Errorf("storage: funds ledger: %w", err)
	}
	ledgerIndex, err := handleFromBytes(stored.LedgerIndex)
	if err != nil {
		return nil, fmt.Errorf("storage: ledger index: %w", err)
	}
	owner, err := handleFromBytes(stored.CollectionOwner)
	if err != nil {
		return nil, fmt.Errorf("storage: collection owner: %w", err)
	}
	assetStore, err := handleFromBytes(stored.AssetStore)
	if err != nil {
		return nil, fmt.Errorf("storage: asset store: %w", err)
	}
	meta := &sale.Metadata{
		Name:            stored.Name,
		Symbol:          stored.Symbol,
		Description:     stored.Description,
		LogoURL:         stored.LogoURL,
		BrochureURL:     stored.BrochureURL,
		Images:          stored.Images,
		PurchasePrice:   stored.PurchasePrice,
		UnitPrice:       stored.UnitPrice,
		SupplyCap:       stored.SupplyCap,
		Treasury:        treasury,
		FundsLedger:     fundsLedger,
		LedgerIndex:     ledgerIndex,
		CollectionOwner: owner,
		AssetStore:      assetStore,
	}
	for _, doc := range stored.Documents {
		meta.Documents = append(meta.Documents, sale.Document{Title: doc.Title, URL: doc.URL})
	}
	for _, attr := range stored.Attributes {
		meta.Attributes = append(meta.Attributes, sale.Attribute{Key: attr.Key, Value: attr.Value})
	}
	return meta, nil
}

// SaveState persists the engine state snapshot. The encoding is
// deterministic: bookings and records are written in their ledger-sorted
// order.
func SaveState(db Database, st *sale.State) error {
	if st == nil {
		return fmt.Errorf("storage: nil state")
	}
	stored := storedState{
		Status:    uint8(st.Escrow.Status()),
		NextID:    st.Registry.NextID(),
		TxCounter: st.Registry.Counter(),
	}
	if st.Meta != nil {
		stored.HasMeta = true
		stored.Meta = encodeMetadata(st.Meta)
	}
	for _, booking := range st.Escrow.Bookings() {
		stored.Bookings = append(stored.Bookings, storedBooking{
			Investor: booking.Investor.Bytes(),
			Quantity: booking.Entry.Quantity,
			Settled:  booking.Entry.Settled,
			Refunded: booking.Entry.Refunded,
		})
	}
	for _, rec := range st.Registry.Records() {
		sub := []byte{}
		if rec.Sub != nil {
			sub = rec.Sub[:]
		}
		stored.Records = append(stored.Records, storedRecord{
			ID:    rec.ID,
			Owner: rec.Owner.Bytes(),
			Sub:   sub,
		})
	}
	encoded, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return fmt.Errorf("storage: encode state: %w", err)
	}
	return db.Put(stateKey, encoded)
}

// LoadState restores a previously saved snapshot. The second return value is
// false when no snapshot exists.
func LoadState(db Database) (*sale.State, bool, error) {
	exists, err := db.Has(stateKey)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, nil
	}
	raw, err := db.Get(stateKey)
	if err != nil {
		return nil, false, err
	}
	var stored storedState
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, false, fmt.Errorf("storage: decode state: %w", err)
	}

	st := &sale.State{}
	if stored.HasMeta {
		meta, err := decodeMetadata(stored.Meta)
		if err != nil {
			return nil, false, err
		}
		st.Meta = meta
	}

	bookings := make([]sale.Booking, 0, len(stored.Bookings))
	for _, b := range stored.Bookings {
		investor, err := identity.NewHandle(b.Investor)
		if err != nil {
			return nil, false, fmt.Errorf("storage: booking investor: %w", err)
		}
		bookings = append(bookings, sale.Booking{
			Investor: investor,
			Entry: &sale.BookingEntry{
				Quantity: b.Quantity,
				Settled:  b.Settled,
				Refunded: b.Refunded,
			},
		})
	}
	st.Escrow = sale.RestoreEscrowLedger(sale.Status(stored.Status), bookings)

	records := make([]*registry.Record, 0, len(stored.Records))
	for _, r := range stored.Records {
		owner, err := identity.NewHandle(r.Owner)
		if err != nil {
			return nil, false, fmt.Errorf("storage: record owner: %w", err)
		}
		rec := &registry.Record{ID: r.ID, Owner: owner}
		if len(r.Sub) > 0 {
			sub, err := identity.SubIDFromBytes(r.Sub)
			if err != nil {
				return nil, false, fmt.Errorf("storage: record sub: %w", err)
			}
			rec.Sub = &sub
		}
		records = append(records, rec)
	}
	st.Registry = registry.Restore(records, stored.NextID, stored.TxCounter)
	return st, true, nil
}
