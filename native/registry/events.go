package registry

import (
	"encoding/hex"
	"strconv"

	"tokensale/core/events"
	"tokensale/core/identity"
)

const (
	// EventTypeMinted is emitted once per ownership record created during
	// settlement.
	EventTypeMinted = "registry.minted"
	// EventTypeTransferred is emitted when a token changes holder.
	EventTypeTransferred = "registry.transferred"
)

// NewMintedEvent returns the canonical payload for a freshly minted record.
func NewMintedEvent(rec *Record) events.Event {
	attrs := map[string]string{
		"tokenId": strconv.FormatUint(uint64(rec.ID), 10),
		"owner":   rec.Owner.String(),
		"account": identity.DeriveAccountID(rec.Owner, rec.Sub).Hex(),
	}
	return events.Event{Type: EventTypeMinted, Attributes: attrs}
}

// NewTransferredEvent returns the canonical payload for a completed transfer.
// The caller-supplied memo rides along hex-encoded when present.
func NewTransferredEvent(tokenID uint32, from identity.Handle, to Holder, txn uint64, memo []byte) events.Event {
	attrs := map[string]string{
		"tokenId": strconv.FormatUint(uint64(tokenID), 10),
		"from":    from.String(),
		"to":      to.Owner.String(),
		"account": identity.DeriveAccountID(to.Owner, to.Sub).Hex(),
		"txn":     strconv.FormatUint(txn, 10),
	}
	if len(memo) > 0 {
		attrs["memo"] = hex.EncodeToString(memo)
	}
	return events.Event{Type: EventTypeTransferred, Attributes: attrs}
}
