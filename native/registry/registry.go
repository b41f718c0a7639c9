package registry

import (
	"sort"

	"tokensale/core/identity"
)

// Ledger maps token ids to ownership records and maintains the reverse index
// from account address to held token ids. The two structures are mutated
// together; the index is never persisted independently. The ledger performs
// no I/O, all external validation lives with its callers.
type Ledger struct {
	tokens     map[uint32]*Record
	ownerIndex map[identity.AccountID]map[uint32]struct{}
	nextID     uint32
	txCounter  uint64
}

// NewLedger returns an empty ownership ledger. Token ids are assigned
// monotonically starting at 1.
func NewLedger() *Ledger {
	return &Ledger{
		tokens:     make(map[uint32]*Record),
		ownerIndex: make(map[identity.AccountID]map[uint32]struct{}),
	}
}

func (l *Ledger) indexAdd(owner identity.Handle, sub *identity.SubID, id uint32) {
	account := identity.DeriveAccountID(owner, sub)
	set, ok := l.ownerIndex[account]
	if !ok {
		set = make(map[uint32]struct{})
		l.ownerIndex[account] = set
	}
	set[id] = struct{}{}
}

func (l *Ledger) indexRemove(owner identity.Handle, sub *identity.SubID, id uint32) {
	account := identity.DeriveAccountID(owner, sub)
	if set, ok := l.ownerIndex[account]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(l.ownerIndex, account)
		}
	}
}

// Mint assigns the next unused token id to the given holder, inserts the
// record and updates the owner index. It returns the new token id.
func (l *Ledger) Mint(owner identity.Handle, sub *identity.SubID) uint32 {
	l.nextID++
	id := l.nextID
	rec := &Record{ID: id, Owner: owner}
	if sub != nil {
		s := *sub
		rec.Sub = &s
	}
	l.tokens[id] = rec
	l.indexAdd(rec.Owner, rec.Sub, id)
	l.txCounter++
	return id
}

// Transfer moves the token to a new holder. The caller must be the current
// owner under the exact sub-identifier the token is held with (an absent
// sub-identifier compares equal to the all-zero value). A self-transfer that
// would change the sub-identifier is rejected. On success both the record and
// the owner index are updated and the incremented transaction counter is
// returned.
func (l *Ledger) Transfer(caller identity.Handle, callerSub *identity.SubID, tokenID uint32, to Holder) (uint64, error) {
	rec, ok := l.tokens[tokenID]
	if !ok {
		return 0, ErrNonExistingTokenID
	}
	if !rec.Owner.Equal(caller) || !subEqual(rec.Sub, callerSub) {
		return 0, ErrUnauthorized
	}
	if caller.Equal(to.Owner) && !subEqual(rec.Sub, to.Sub) {
		return 0, ErrInvalidRecipient
	}
	l.indexRemove(rec.Owner, rec.Sub, tokenID)
	rec.Owner = to.Owner
	rec.Sub = nil
	if to.Sub != nil {
		sub := *to.Sub
		rec.Sub = &sub
	}
	l.indexAdd(rec.Owner, rec.Sub, tokenID)
	l.txCounter++
	return l.txCounter, nil
}

// OwnerOf resolves the current holder for each requested token id. Ids that
// were never minted yield a nil entry.
func (l *Ledger) OwnerOf(ids []uint32) []*Holder {
	out := make([]*Holder, len(ids))
	for i, id := range ids {
		rec, ok := l.tokens[id]
		if !ok {
			continue
		}
		holder := &Holder{Owner: rec.Owner}
		if rec.Sub != nil {
			sub := *rec.Sub
			holder.Sub = &sub
		}
		out[i] = holder
	}
	return out
}

// paginate returns up to take ids strictly greater than prev from the sorted
// input. prev 0 selects from the start; take 0 applies the default page size.
func paginate(sorted []uint32, prev uint32, take uint32) []uint32 {
	if take == 0 {
		take = DefaultTake
	}
	start := sort.Search(len(sorted), func(i int) bool { return sorted[i] > prev })
	end := start + int(take)
	if end > len(sorted) {
		end = len(sorted)
	}
	return append([]uint32(nil), sorted[start:end]...)
}

// Tokens enumerates all token ids in ascending order, one page at a time.
func (l *Ledger) Tokens(prev, take uint32) []uint32 {
	ids := make([]uint32, 0, len(l.tokens))
	for id := range l.tokens {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return paginate(ids, prev, take)
}

// TokensOf enumerates the token ids held by the given account, ascending,
// one page at a time.
func (l *Ledger) TokensOf(owner identity.Handle, sub *identity.SubID, prev, take uint32) []uint32 {
	account := identity.DeriveAccountID(owner, sub)
	set, ok := l.ownerIndex[account]
	if !ok {
		return []uint32{}
	}
	ids := make([]uint32, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return paginate(ids, prev, take)
}

// HeldCount reports how many tokens the given account currently holds.
func (l *Ledger) HeldCount(owner identity.Handle, sub *identity.SubID) uint64 {
	account := identity.DeriveAccountID(owner, sub)
	return uint64(len(l.ownerIndex[account]))
}

// TotalSupply reports the number of records ever minted.
func (l *Ledger) TotalSupply() uint64 { return uint64(len(l.tokens)) }

// Counter returns the current value of the monotonically increasing
// transaction counter.
func (l *Ledger) Counter() uint64 { return l.txCounter }

// NextID returns the highest token id assigned so far. Used by the snapshot
// boundary; ids resume strictly above it after a restore.
func (l *Ledger) NextID() uint32 { return l.nextID }

// BumpCounter advances the transaction counter for mutations recorded outside
// the ledger itself (e.g. collection ownership changes) and returns the new
// value.
func (l *Ledger) BumpCounter() uint64 {
	l.txCounter++
	return l.txCounter
}

// Records returns deep copies of all ownership records sorted by token id.
// Used by the snapshot boundary.
func (l *Ledger) Records() []*Record {
	out := make([]*Record, 0, len(l.tokens))
	for _, rec := range l.tokens {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Restore rebuilds the ledger from persisted records and counters. The owner
// index is derived; only records and counters cross the snapshot boundary.
func Restore(records []*Record, nextID uint32, txCounter uint64) *Ledger {
	l := NewLedger()
	for _, rec := range records {
		clone := rec.Clone()
		l.tokens[clone.ID] = clone
		l.indexAdd(clone.Owner, clone.Sub, clone.ID)
	}
	l.nextID = nextID
	l.txCounter = txCounter
	return l
}
