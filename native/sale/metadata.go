package sale

import (
	"math/big"
	"strings"

	"tokensale/core/identity"
)

// Document links a titled document (prospectus, valuation report) hosted on
// the companion asset store.
type Document struct {
	Title string
	URL   string
}

// Attribute is one free-form descriptive property of the underlying asset.
type Attribute struct {
	Key   string
	Value string
}

// Metadata carries the descriptive and economic parameters of the offering.
// It is set once at initialisation; later amendments go through the
// owner-gated update path.
type Metadata struct {
	Name        string
	Symbol      string
	Description string
	LogoURL     string
	BrochureURL string
	Images      []string
	Documents   []Document
	Attributes  []Attribute

	// PurchasePrice is the total acquisition price of the underlying asset,
	// UnitPrice the price of a single offered unit. Both are denominated in
	// base units of the funds ledger; arithmetic on them is exact integer
	// arithmetic throughout.
	PurchasePrice *big.Int
	UnitPrice     *big.Int
	SupplyCap     uint64

	Treasury        identity.Handle
	FundsLedger     identity.Handle
	LedgerIndex     identity.Handle
	CollectionOwner identity.Handle
	AssetStore      identity.Handle
}

// Clone returns a deep copy of the metadata record.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	clone := *m
	clone.Images = append([]string(nil), m.Images...)
	clone.Documents = append([]Document(nil), m.Documents...)
	clone.Attributes = append([]Attribute(nil), m.Attributes...)
	if m.PurchasePrice != nil {
		clone.PurchasePrice = new(big.Int).Set(m.PurchasePrice)
	}
	if m.UnitPrice != nil {
		clone.UnitPrice = new(big.Int).Set(m.UnitPrice)
	}
	return &clone
}

// Validate checks the economic parameters an engine cannot operate without.
func (m *Metadata) Validate() error {
	if m == nil {
		return ErrMetadataNotSet
	}
	if strings.TrimSpace(m.Name) == "" || strings.TrimSpace(m.Symbol) == "" {
		return ErrInvalidArgument
	}
	if m.UnitPrice == nil || m.UnitPrice.Sign() <= 0 {
		return ErrInvalidArgument
	}
	if m.SupplyCap == 0 {
		return ErrInvalidArgument
	}
	if m.Treasury.IsZero() || m.CollectionOwner.IsZero() {
		return ErrInvalidArgument
	}
	return nil
}

// MetadataUpdate is a partial amendment of the metadata record. Nil fields
// are left untouched. The collection owner is deliberately absent; ownership
// moves only through ChangeOwnership.
type MetadataUpdate struct {
	Name        *string
	Symbol      *string
	Description *string
	LogoURL     *string
	BrochureURL *string
	Images      []string
	Documents   []Document
	Attributes  []Attribute

	PurchasePrice *big.Int
	UnitPrice     *big.Int
	SupplyCap     *uint64

	Treasury    *identity.Handle
	FundsLedger *identity.Handle
	LedgerIndex *identity.Handle
	AssetStore  *identity.Handle
}

// apply merges the update into the metadata record.
func (m *Metadata) apply(u *MetadataUpdate) {
	if u == nil {
		return
	}
	if u.Name != nil {
		m.Name = *u.Name
	}
	if u.Symbol != nil {
		m.Symbol = *u.Symbol
	}
	if u.Description != nil {
		m.Description = *u.Description
	}
	if u.LogoURL != nil {
		m.LogoURL = *u.LogoURL
	}
	if u.BrochureURL != nil {
		m.BrochureURL = *u.BrochureURL
	}
	if u.Images != nil {
		m.Images = append([]string(nil), u.Images...)
	}
	if u.Documents != nil {
		m.Documents = append([]Document(nil), u.Documents...)
	}
	if u.Attributes != nil {
		m.Attributes = append([]Attribute(nil), u.Attributes...)
	}
	if u.PurchasePrice != nil {
		m.PurchasePrice = new(big.Int).Set(u.PurchasePrice)
	}
	if u.UnitPrice != nil {
		m.UnitPrice = new(big.Int).Set(u.UnitPrice)
	}
	if u.SupplyCap != nil {
		m.SupplyCap = *u.SupplyCap
	}
	if u.Treasury != nil {
		m.Treasury = *u.Treasury
	}
	if u.FundsLedger != nil {
		m.FundsLedger = *u.FundsLedger
	}
	if u.LedgerIndex != nil {
		m.LedgerIndex = *u.LedgerIndex
	}
	if u.AssetStore != nil {
		m.AssetStore = *u.AssetStore
	}
}
