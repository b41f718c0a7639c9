package sale

import (
	"tokensale/native/registry"
)

// State is the engine-owned accounting state: sale metadata, the escrow
// ledger and the ownership registry. It is exclusively owned by one engine
// instance; there is no external mutator. The engine serialises all access.
type State struct {
	Meta     *Metadata
	Escrow   *EscrowLedger
	Registry *registry.Ledger
}

// NewState initialises a fresh sale with the given metadata. A nil metadata
// record leaves the engine in the uninitialised state; operations that need
// it fail with ErrMetadataNotSet until it is set.
func NewState(meta *Metadata) *State {
	return &State{
		Meta:     meta.Clone(),
		Escrow:   NewEscrowLedger(),
		Registry: registry.NewLedger(),
	}
}
