package ledger

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"tokensale/core/identity"
	"tokensale/native/sale"
)

// FundsClient talks to the external funds ledger over JSON-RPC. It implements
// sale.FundsLedger; amounts travel as decimal strings and addresses as hex.
type FundsClient struct {
	rpc *rpcClient
}

// NewFundsClient builds a client for the ledger JSON-RPC endpoint. A zero
// timeout falls back to the package default.
func NewFundsClient(baseURL, authToken string, timeout time.Duration) *FundsClient {
	return &FundsClient{rpc: newRPCClient(baseURL, authToken, timeout)}
}

type balanceOfResult struct {
	Balance string `json:"balance"`
}

type transferParams struct {
	FromSubaccount string `json:"fromSubaccount"`
	To             string `json:"to"`
	Amount         string `json:"amount"`
	Fee            string `json:"fee"`
}

type transferResult struct {
	BlockIndex uint64 `json:"blockIndex"`
}

type accountTransactionsParams struct {
	Account    string  `json:"account"`
	Start      *uint64 `json:"start,omitempty"`
	MaxResults uint64  `json:"maxResults"`
}

type transactionPayload struct {
	ID     uint64 `json:"id"`
	Kind   string `json:"kind"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Amount string `json:"amount,omitempty"`
}

type accountTransactionsResult struct {
	Balance      string               `json:"balance"`
	Transactions []transactionPayload `json:"transactions"`
}

// BalanceOf reports the ledger balance of the given account address.
func (c *FundsClient) BalanceOf(ctx context.Context, account identity.AccountID) (*big.Int, error) {
	var result balanceOfResult
	params := map[string]string{"account": account.Hex()}
	if err := c.rpc.call(ctx, "ledger_balanceOf", []interface{}{params}, &result); err != nil {
		return nil, err
	}
	return parseAmount(result.Balance)
}

// Transfer moves amount from the caller's sub-account to the destination
// address. The ledger charges fee on top of amount.
func (c *FundsClient) Transfer(ctx context.Context, fromSub identity.SubID, to identity.AccountID, amount, fee *big.Int) error {
	params := transferParams{
		FromSubaccount: hex.EncodeToString(fromSub[:]),
		To:             to.Hex(),
		Amount:         amount.String(),
		Fee:            fee.String(),
	}
	var result transferResult
	return c.rpc.call(ctx, "ledger_transfer", []interface{}{params}, &result)
}

// AccountTransactions queries the ledger's transaction-history index.
func (c *FundsClient) AccountTransactions(ctx context.Context, account identity.AccountID, start *uint64, maxResults uint64) (*sale.TransactionPage, error) {
	params := accountTransactionsParams{
		Account:    account.Hex(),
		Start:      start,
		MaxResults: maxResults,
	}
	var result accountTransactionsResult
	if err := c.rpc.call(ctx, "ledger_getAccountTransactions", []interface{}{params}, &result); err != nil {
		return nil, err
	}
	balance, err := parseAmount(result.Balance)
	if err != nil {
		return nil, err
	}
	page := &sale.TransactionPage{Balance: balance}
	for _, tx := range result.Transactions {
		entry := sale.TransactionWithID{ID: tx.ID}
		if tx.Kind == "transfer" {
			transfer, err := parseTransfer(tx)
			if err != nil {
				return nil, err
			}
			entry.Transfer = transfer
		}
		page.Transactions = append(page.Transactions, entry)
	}
	return page, nil
}

func parseTransfer(tx transactionPayload) (*sale.TransferRecord, error) {
	from, err := identity.AccountIDFromHex(tx.From)
	if err != nil {
		return nil, fmt.Errorf("transaction %d: %w", tx.ID, err)
	}
	to, err := identity.AccountIDFromHex(tx.To)
	if err != nil {
		return nil, fmt.Errorf("transaction %d: %w", tx.ID, err)
	}
	amount, err := parseAmount(tx.Amount)
	if err != nil {
		return nil, fmt.Errorf("transaction %d: %w", tx.ID, err)
	}
	return &sale.TransferRecord{From: from, To: to, Amount: amount}, nil
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid ledger amount %q", s)
	}
	return v, nil
}
