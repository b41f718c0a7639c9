package sale

import (
	"context"
	"math/big"

	"tokensale/core/identity"
)

// TransferFee is the flat fee charged by the funds ledger per transfer, in
// base units. Booking requires this margin on top of the unit cost and
// refunds deduct it from the escrow balance.
const TransferFee = 10_000

// TransferRecord is one completed transfer as reported by the ledger's
// transaction-history index.
type TransferRecord struct {
	From   identity.AccountID
	To     identity.AccountID
	Amount *big.Int
}

// TransactionWithID pairs a history entry with its ledger-assigned id.
// Entries that are not transfers (mints, burns) carry a nil Transfer.
type TransactionWithID struct {
	ID       uint64
	Transfer *TransferRecord
}

// TransactionPage is the result of a history query: the account's current
// balance plus the most recent transactions touching it.
type TransactionPage struct {
	Balance      *big.Int
	Transactions []TransactionWithID
}

// FundsLedger is the external ledger holding escrowed funds. Every call is a
// suspension point: engine state read before a call may be stale once it
// returns.
type FundsLedger interface {
	// BalanceOf reports the balance of the given account address.
	BalanceOf(ctx context.Context, account identity.AccountID) (*big.Int, error)
	// Transfer moves amount from the engine's sub-account to the destination
	// address, charging the flat fee on top.
	Transfer(ctx context.Context, fromSub identity.SubID, to identity.AccountID, amount, fee *big.Int) error
	// AccountTransactions queries the transaction-history index for the
	// account, returning at most maxResults entries from the cursor.
	AccountTransactions(ctx context.Context, account identity.AccountID, start *uint64, maxResults uint64) (*TransactionPage, error)
}

// AssetStore is the external document/asset store holding the offering's
// collateral material. The engine only delegates edit-permission control.
type AssetStore interface {
	GrantEditPermission(ctx context.Context, store, grantee identity.Handle) error
	RevokeEditPermission(ctx context.Context, store, grantee identity.Handle) error
}
