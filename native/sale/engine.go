package sale

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"tokensale/core/events"
	"tokensale/core/identity"
	"tokensale/native/registry"
)

var (
	errNilState    = errors.New("sale engine: state not configured")
	errNilFunds    = errors.New("sale engine: funds ledger not configured")
	errNilAssets   = errors.New("sale engine: asset store not configured")
	errNilIdentity = errors.New("sale engine: engine identity not configured")
)

// refundLookupLimit bounds the history page consulted when resolving the
// original sender of an escrow deposit.
const refundLookupLimit = 5

// Engine wires the sale business logic with the escrow ledger, the ownership
// registry and the external collaborators. All entry points serialise state
// access through one mutex; the mutex is never held across an external call,
// so every call site re-validates what it read before suspending.
type Engine struct {
	mu      sync.Mutex
	state   *State
	funds   FundsLedger
	assets  AssetStore
	emitter events.Emitter
	log     *slog.Logger
	self    identity.Handle
}

// NewEngine creates a sale engine with a no-op emitter and the default
// logger. Callers configure collaborators via the setters.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		log:     slog.Default(),
	}
}

// SetState configures the engine-owned accounting state.
func (e *Engine) SetState(state *State) { e.state = state }

// SetFundsLedger configures the external funds ledger client.
func (e *Engine) SetFundsLedger(funds FundsLedger) { e.funds = funds }

// SetAssetStore configures the external asset store client.
func (e *Engine) SetAssetStore(assets AssetStore) { e.assets = assets }

// SetIdentity configures the engine's own identity handle, the base of every
// derived escrow address.
func (e *Engine) SetIdentity(self identity.Handle) { e.self = self }

// SetEmitter configures the event emitter. Passing nil resets it to no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger configures the structured logger used by the engine.
func (e *Engine) SetLogger(log *slog.Logger) {
	if log == nil {
		e.log = slog.Default()
		return
	}
	e.log = log
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.self.IsZero() {
		return errNilIdentity
	}
	return nil
}

func wrapExternal(err error) error {
	return fmt.Errorf("%w: %v", ErrExternalCallFailed, err)
}

// EscrowAccount is the derived escrow address of one investor together with
// the components it derives from.
type EscrowAccount struct {
	Owner   identity.Handle
	Sub     identity.SubID
	Account identity.AccountID
}

// EscrowAddress derives the escrow account holding the caller's reserved
// funds: the engine identity under the caller's sub-identifier.
func (e *Engine) EscrowAddress(caller identity.Handle) (*EscrowAccount, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if caller.IsZero() {
		return nil, ErrUnauthorized
	}
	sub := identity.DeriveSubID(caller)
	return &EscrowAccount{
		Owner:   e.self,
		Sub:     sub,
		Account: identity.DeriveAccountID(e.self, &sub),
	}, nil
}

// requiredBalance computes the escrow balance a booking needs: the unit cost
// of every reserved unit plus the flat transfer-fee margin. Exact integer
// arithmetic; quantities never touch floats.
func requiredBalance(existing, requested uint64, unitPrice *big.Int) *big.Int {
	units := new(big.Int).SetUint64(existing + requested)
	total := new(big.Int).Mul(units, unitPrice)
	return total.Add(total, big.NewInt(TransferFee))
}

// Book validates and records a reservation for the caller. The supply-cap
// check runs twice: once against the pre-call snapshot and again under the
// lock immediately before the commit, because the balance query suspends and
// interleaved bookings may have moved the total in between.
func (e *Engine) Book(ctx context.Context, caller identity.Handle, quantity uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.funds == nil {
		return errNilFunds
	}
	if caller.IsZero() {
		return ErrUnauthorized
	}
	if quantity == 0 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrInvalidArgument)
	}

	e.mu.Lock()
	meta := e.state.Meta
	if meta == nil {
		e.mu.Unlock()
		return ErrMetadataNotSet
	}
	if e.state.Escrow.Status() != StatusLive {
		e.mu.Unlock()
		return ErrSaleClosed
	}
	existing := e.state.Escrow.BookedOf(caller)
	unitPrice := new(big.Int).Set(meta.UnitPrice)
	e.mu.Unlock()

	sub := identity.DeriveSubID(caller)
	escrowAccount := identity.DeriveAccountID(e.self, &sub)
	balance, err := e.funds.BalanceOf(ctx, escrowAccount)
	if err != nil {
		return wrapExternal(err)
	}
	if balance == nil || balance.Cmp(requiredBalance(existing, quantity, unitPrice)) < 0 {
		return ErrInsufficientEscrowFunds
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Escrow.Status() != StatusLive {
		return ErrSaleClosed
	}
	// Re-read the cap: an interleaved metadata amendment may have lowered it
	// while the balance query was in flight.
	limit := e.state.Meta.SupplyCap
	total := e.state.Escrow.TotalBooked()
	if total >= limit || quantity > limit-total {
		return ErrSupplyCapExceeded
	}
	e.state.Escrow.Book(caller, quantity)
	total = e.state.Escrow.TotalBooked()
	e.log.Info("booking recorded",
		"investor", caller.String(),
		"quantity", quantity,
		"totalBooked", total)
	e.emit(NewBookedEvent(caller, quantity, total))
	return nil
}

// Accept resolves a Live sale to Accepted and disburses every booking:
// escrowed funds move to the treasury and one ownership record per unit is
// minted to the investor's sub-account. A failure on one investor is
// surfaced but neither rolls back the status transition nor blocks the
// remaining investors.
func (e *Engine) Accept(ctx context.Context, caller identity.Handle) error {
	bookings, unitPrice, treasury, err := e.beginSettlement(caller, true)
	if err != nil {
		return err
	}
	e.emit(NewAcceptedEvent(e.TotalBooked()))
	return e.settle(ctx, bookings, unitPrice, treasury)
}

// ResumeSettlement re-drives the disbursement loop for an already Accepted
// sale. Investors whose settled marker is set are skipped, so a retry never
// transfers or mints twice.
func (e *Engine) ResumeSettlement(ctx context.Context, caller identity.Handle) error {
	bookings, unitPrice, treasury, err := e.beginSettlement(caller, false)
	if err != nil {
		return err
	}
	return e.settle(ctx, bookings, unitPrice, treasury)
}

// beginSettlement performs the owner and status validation under the lock and
// snapshots everything the disbursement loop needs. When transition is true
// the sale moves Live→Accepted; otherwise it must already be Accepted.
func (e *Engine) beginSettlement(caller identity.Handle, transition bool) ([]Booking, *big.Int, identity.AccountID, error) {
	if err := e.ready(); err != nil {
		return nil, nil, identity.AccountID{}, err
	}
	if e.funds == nil {
		return nil, nil, identity.AccountID{}, errNilFunds
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	meta := e.state.Meta
	if meta == nil {
		return nil, nil, identity.AccountID{}, ErrMetadataNotSet
	}
	if !caller.Equal(meta.CollectionOwner) {
		return nil, nil, identity.AccountID{}, ErrUnauthorized
	}
	if transition {
		if err := e.state.Escrow.Accept(); err != nil {
			return nil, nil, identity.AccountID{}, err
		}
		e.log.Info("sale accepted", "totalBooked", e.state.Escrow.TotalBooked())
	} else if e.state.Escrow.Status() != StatusAccepted {
		return nil, nil, identity.AccountID{}, ErrSaleClosed
	}
	treasury := identity.DeriveAccountID(meta.Treasury, nil)
	return e.state.Escrow.Bookings(), new(big.Int).Set(meta.UnitPrice), treasury, nil
}

func (e *Engine) settle(ctx context.Context, bookings []Booking, unitPrice *big.Int, treasury identity.AccountID) error {
	var failures []error
	for _, booking := range bookings {
		if booking.Entry.Settled {
			continue
		}
		investor := booking.Investor
		quantity := booking.Entry.Quantity
		sub := identity.DeriveSubID(investor)
		amount := new(big.Int).Mul(new(big.Int).SetUint64(quantity), unitPrice)

		if err := e.funds.Transfer(ctx, sub, treasury, amount, big.NewInt(TransferFee)); err != nil {
			e.log.Warn("settlement transfer failed",
				"investor", investor.String(), "err", err)
			failures = append(failures, fmt.Errorf("settle %s: %w", investor.String(), wrapExternal(err)))
			continue
		}

		e.mu.Lock()
		minted := make([]*registry.Record, 0, quantity)
		for i := uint64(0); i < quantity; i++ {
			id := e.state.Registry.Mint(investor, &sub)
			minted = append(minted, &registry.Record{ID: id, Owner: investor, Sub: &sub})
		}
		e.state.Escrow.MarkSettled(investor)
		e.mu.Unlock()

		for _, rec := range minted {
			e.emit(registry.NewMintedEvent(rec))
		}
		e.emit(NewSettledEvent(investor, quantity, amount))
		e.log.Info("investor settled",
			"investor", investor.String(),
			"quantity", quantity,
			"amount", amount.String())
	}
	return errors.Join(failures...)
}

// Reject resolves a Live sale to Rejected and refunds every booked investor
// from escrow. Per-investor failures are surfaced without blocking the rest.
func (e *Engine) Reject(ctx context.Context, caller identity.Handle) error {
	bookings, err := e.beginRefunds(caller, true)
	if err != nil {
		return err
	}
	e.emit(NewRejectedEvent(e.TotalBooked()))
	return e.refundAll(ctx, bookings)
}

// ResumeRefunds re-drives the refund loop for an already Rejected sale,
// skipping investors whose refunded marker is set.
func (e *Engine) ResumeRefunds(ctx context.Context, caller identity.Handle) error {
	bookings, err := e.beginRefunds(caller, false)
	if err != nil {
		return err
	}
	return e.refundAll(ctx, bookings)
}

func (e *Engine) beginRefunds(caller identity.Handle, transition bool) ([]Booking, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.funds == nil {
		return nil, errNilFunds
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	meta := e.state.Meta
	if meta == nil {
		return nil, ErrMetadataNotSet
	}
	if !caller.Equal(meta.CollectionOwner) {
		return nil, ErrUnauthorized
	}
	if transition {
		if err := e.state.Escrow.Reject(); err != nil {
			return nil, err
		}
		e.log.Info("sale rejected", "totalBooked", e.state.Escrow.TotalBooked())
	} else if e.state.Escrow.Status() != StatusRejected {
		return nil, ErrSaleClosed
	}
	return e.state.Escrow.Bookings(), nil
}

func (e *Engine) refundAll(ctx context.Context, bookings []Booking) error {
	var failures []error
	for _, booking := range bookings {
		if booking.Entry.Refunded {
			continue
		}
		investor := booking.Investor
		outcome, err := e.refundFromEscrow(ctx, investor)
		if err != nil {
			e.log.Warn("refund failed", "investor", investor.String(), "err", err)
			failures = append(failures, fmt.Errorf("refund %s: %w", investor.String(), err))
			continue
		}
		e.mu.Lock()
		e.state.Escrow.MarkRefunded(investor)
		e.mu.Unlock()
		e.emit(NewRefundedEvent(investor, outcome.To, outcome.Amount))
		e.log.Info("investor refunded",
			"investor", investor.String(),
			"to", outcome.To.Hex(),
			"amount", outcome.Amount.String())
	}
	return errors.Join(failures...)
}

// RefundOutcome reports where a refund went and how much was returned. A
// zero amount is a successful outcome: the escrow balance did not exceed the
// transfer fee.
type RefundOutcome struct {
	To     identity.AccountID
	Amount *big.Int
}

// RefundInvestor runs the single-investor refund path standalone, e.g. to
// return excess funds left in escrow after settlement. It does not touch the
// sale status or the refund markers.
func (e *Engine) RefundInvestor(ctx context.Context, investor identity.Handle) (*RefundOutcome, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.funds == nil {
		return nil, errNilFunds
	}
	if investor.IsZero() {
		return nil, fmt.Errorf("%w: investor required", ErrInvalidArgument)
	}
	e.mu.Lock()
	metaSet := e.state.Meta != nil
	e.mu.Unlock()
	if !metaSet {
		return nil, ErrMetadataNotSet
	}
	outcome, err := e.refundFromEscrow(ctx, investor)
	if err != nil {
		return nil, err
	}
	e.emit(NewRefundedEvent(investor, outcome.To, outcome.Amount))
	return outcome, nil
}

// refundFromEscrow resolves the original depositor of the investor's escrow
// account from the ledger's transaction history and returns the escrow
// balance minus the flat transfer fee, floored at zero.
func (e *Engine) refundFromEscrow(ctx context.Context, investor identity.Handle) (*RefundOutcome, error) {
	sub := identity.DeriveSubID(investor)
	escrowAccount := identity.DeriveAccountID(e.self, &sub)

	page, err := e.funds.AccountTransactions(ctx, escrowAccount, nil, refundLookupLimit)
	if err != nil {
		return nil, wrapExternal(err)
	}

	var source *identity.AccountID
	for _, txn := range page.Transactions {
		if txn.Transfer == nil {
			continue
		}
		if txn.Transfer.To == escrowAccount {
			from := txn.Transfer.From
			source = &from
			break
		}
	}
	if source == nil {
		return nil, ErrRefundSourceNotFound
	}

	balance := page.Balance
	if balance == nil {
		balance = big.NewInt(0)
	}
	amount := new(big.Int).Sub(balance, big.NewInt(TransferFee))
	if amount.Sign() <= 0 {
		return &RefundOutcome{To: *source, Amount: big.NewInt(0)}, nil
	}
	if err := e.funds.Transfer(ctx, sub, *source, amount, big.NewInt(TransferFee)); err != nil {
		return nil, wrapExternal(err)
	}
	return &RefundOutcome{To: *source, Amount: amount}, nil
}

// ChangeOwnership hands control of the surrounding asset metadata to a new
// collection owner: edit rights on the asset store are granted to the new
// owner and revoked from the current one, then the metadata record is
// updated. Returns the current global transaction index.
func (e *Engine) ChangeOwnership(ctx context.Context, caller, newOwner identity.Handle) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if e.assets == nil {
		return 0, errNilAssets
	}
	if newOwner.IsZero() {
		return 0, fmt.Errorf("%w: new owner required", ErrInvalidArgument)
	}
	e.mu.Lock()
	meta := e.state.Meta
	if meta == nil {
		e.mu.Unlock()
		return 0, ErrMetadataNotSet
	}
	if !caller.Equal(meta.CollectionOwner) {
		e.mu.Unlock()
		return 0, ErrUnauthorized
	}
	current := meta.CollectionOwner
	store := meta.AssetStore
	e.mu.Unlock()

	if err := e.assets.GrantEditPermission(ctx, store, newOwner); err != nil {
		return 0, wrapExternal(err)
	}
	if err := e.assets.RevokeEditPermission(ctx, store, current); err != nil {
		return 0, wrapExternal(err)
	}

	e.mu.Lock()
	e.state.Meta.CollectionOwner = newOwner
	txn := e.state.Registry.Counter()
	e.mu.Unlock()

	e.emit(NewOwnershipChangedEvent(current, newOwner))
	e.log.Info("collection ownership changed",
		"previousOwner", current.String(), "newOwner", newOwner.String())
	return txn, nil
}

// UpdateMetadata applies an owner-gated partial amendment of the metadata
// record and returns the advanced transaction counter.
func (e *Engine) UpdateMetadata(caller identity.Handle, update *MetadataUpdate) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	meta := e.state.Meta
	if meta == nil {
		return 0, ErrMetadataNotSet
	}
	if !caller.Equal(meta.CollectionOwner) {
		return 0, ErrUnauthorized
	}
	amended := meta.Clone()
	amended.apply(update)
	if err := amended.Validate(); err != nil {
		return 0, err
	}
	if amended.SupplyCap < e.state.Escrow.TotalBooked() {
		return 0, fmt.Errorf("%w: supply cap below booked total", ErrInvalidArgument)
	}
	e.state.Meta = amended
	txn := e.state.Registry.BumpCounter()
	e.emit(NewMetadataUpdatedEvent(txn))
	return txn, nil
}

// TransferItem is one requested token transfer.
type TransferItem struct {
	TokenID uint32
	FromSub *identity.SubID
	To      registry.Holder
	Memo    []byte
}

// TransferResult reports the outcome of one item in a transfer batch: the
// transaction counter on success, the typed failure otherwise.
type TransferResult struct {
	Txn uint64
	Err error
}

// TransferTokens applies a batch of token transfers on behalf of the caller.
// Items are independent; one failure does not abort the rest.
func (e *Engine) TransferTokens(caller identity.Handle, items []TransferItem) []TransferResult {
	results := make([]TransferResult, len(items))
	if err := e.ready(); err != nil {
		for i := range results {
			results[i].Err = err
		}
		return results
	}
	if caller.IsZero() {
		for i := range results {
			results[i].Err = registry.ErrUnauthorized
		}
		return results
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, item := range items {
		txn, err := e.state.Registry.Transfer(caller, item.FromSub, item.TokenID, item.To)
		if err != nil {
			results[i].Err = err
			continue
		}
		results[i].Txn = txn
		e.emit(registry.NewTransferredEvent(item.TokenID, caller, item.To, txn, item.Memo))
	}
	return results
}

// Status returns the current sale status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Escrow.Status()
}

// BookedOf returns the quantity reserved by the given investor.
func (e *Engine) BookedOf(investor identity.Handle) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Escrow.BookedOf(investor)
}

// TotalBooked returns the running total of reserved quantities.
func (e *Engine) TotalBooked() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Escrow.TotalBooked()
}

// Participants returns the booked investor identities.
func (e *Engine) Participants() []identity.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Escrow.Participants()
}

// Metadata returns a copy of the metadata record together with the number of
// ownership records minted so far.
func (e *Engine) Metadata() (*Metadata, uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil || e.state.Meta == nil {
		return nil, 0, ErrMetadataNotSet
	}
	return e.state.Meta.Clone(), e.state.Registry.TotalSupply(), nil
}

// Tokens enumerates all token ids, paginated.
func (e *Engine) Tokens(prev, take uint32) []uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Registry.Tokens(prev, take)
}

// TokensOf enumerates the token ids held by an account, paginated.
func (e *Engine) TokensOf(owner identity.Handle, sub *identity.SubID, prev, take uint32) []uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Registry.TokensOf(owner, sub, prev, take)
}

// OwnerOf resolves the current holders of the given token ids.
func (e *Engine) OwnerOf(ids []uint32) []*registry.Holder {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Registry.OwnerOf(ids)
}

// Counter returns the global transaction counter.
func (e *Engine) Counter() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Registry.Counter()
}

// Snapshot deep-copies the engine state under the lock. Persistence goes
// through this accessor; writing the live state directly would race the
// ledger maps mutated by concurrent operations.
func (e *Engine) Snapshot() (*State, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return &State{
		Meta:     e.state.Meta.Clone(),
		Escrow:   RestoreEscrowLedger(e.state.Escrow.Status(), e.state.Escrow.Bookings()),
		Registry: registry.Restore(e.state.Registry.Records(), e.state.Registry.NextID(), e.state.Registry.Counter()),
	}, nil
}
