// Package account implements the per-account state engine: it owns the
// commitment tree and the account's decrypted notes, and exposes the
// sync, balance, address, planning, transfer-construction, and history
// operations everything above it is built on.
package account

import (
	"context"
	"crypto/rand"
	"sort"
	"sync"

	"github.com/synnergy-network/zkbob-cloud/internal/apperr"
	"github.com/synnergy-network/zkbob-cloud/internal/domain"
	"github.com/synnergy-network/zkbob-cloud/internal/kv"
	"github.com/synnergy-network/zkbob-cloud/internal/relayercache"
	"github.com/synnergy-network/zkbob-cloud/internal/txparser"
	"github.com/synnergy-network/zkbob-cloud/internal/walletcrypto"
)

// Account is one custodial account's in-memory state. Per-account
// mutability is protected by mu: Sync and state updates take the
// writer side, read-only operations take the reader side.
type Account struct {
	mu sync.RWMutex

	id          string
	description string
	sk          []byte
	eta         walletcrypto.Eta

	tree    *walletcrypto.Tree
	notes   map[uint64]walletcrypto.Note
	balance uint64
	memos   []domain.Memo

	store *kv.Store
}

// New creates a brand-new account with a random-looking (caller
// supplied) secret key, backed by a dedicated per-account store.
func New(id, description string, sk []byte, store *kv.Store) (*Account, error) {
	a := &Account{
		id: id, description: description, sk: append([]byte(nil), sk...),
		eta: walletcrypto.DeriveEta(sk), tree: walletcrypto.NewTree(),
		notes: map[uint64]walletcrypto.Note{}, store: store,
	}
	if err := a.saveMeta(); err != nil {
		return nil, err
	}
	return a, nil
}

// Load reconstructs an account's in-memory state from its store,
// rebuilding the tree position, notes, balance, and memo history.
func Load(store *kv.Store) (*Account, error) {
	m, ok, err := loadMeta(store)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.CodeAccountNotFound, "account meta missing")
	}
	notes, err := loadNotes(store)
	if err != nil {
		return nil, err
	}
	memos, err := loadMemos(store)
	if err != nil {
		return nil, err
	}
	tree := walletcrypto.NewTree()
	if m.NextIndex > 0 {
		tree.Append(make([][32]byte, m.NextIndex))
	}
	return &Account{
		id: m.ID, description: m.Description, sk: m.SK,
		eta: walletcrypto.DeriveEta(m.SK), tree: tree,
		notes: notes, balance: m.Balance, memos: memos, store: store,
	}, nil
}

// ID returns the account's stable identifier.
func (a *Account) ID() string { return a.id }

// Store returns the account's dedicated bbolt store, so the
// coordinator's registry can close it when the account handle is
// evicted.
func (a *Account) Store() *kv.Store { return a.store }

// NextIndex is the tree's current append position.
func (a *Account) NextIndex() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tree.NextIndex()
}

// Info returns the account summary for GET /account.
func (a *Account) Info(fee uint64) domain.AccountShortInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return domain.AccountShortInfo{
		ID: a.id, Description: a.description, Balance: a.balance,
		MaxTransferAmount: a.maxTransferAmountLocked(fee),
		Address:           string(a.defaultAddressLocked()),
	}
}

func (a *Account) defaultAddressLocked() walletcrypto.Address {
	return walletcrypto.GenerateAddress(a.eta, [10]byte{})
}

// GenerateAddress derives a fresh shielded address for this account.
// The diversifier is drawn at random so repeated calls return distinct
// addresses.
func (a *Account) GenerateAddress() walletcrypto.Address {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var div [10]byte
	_, _ = rand.Read(div[:])
	return walletcrypto.GenerateAddress(a.eta, div)
}

// ExportKey hex-encodes the raw secret key.
func (a *Account) ExportKey() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return walletcrypto.ExportKey(a.sk)
}

// Description returns the account's human label.
func (a *Account) Description() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.description
}

// SK returns a copy of the raw secret key.
func (a *Account) SK() []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]byte(nil), a.sk...)
}

func (a *Account) usableNotesLocked() []walletcrypto.Note {
	return sortedNotes(a.notes)
}

// sortedNotes orders a note set by ascending tree index, the order the
// planner consumes chunks in.
func sortedNotes(notes map[uint64]walletcrypto.Note) []walletcrypto.Note {
	_, out := sortedIndexedNotes(notes)
	return out
}

// sortedIndexedNotes is sortedNotes plus the tree index each note came
// from, in the same order — needed wherever a caller must later retire
// exactly the notes it selected.
func sortedIndexedNotes(notes map[uint64]walletcrypto.Note) ([]uint64, []walletcrypto.Note) {
	idxs := make([]uint64, 0, len(notes))
	for idx := range notes {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })
	out := make([]walletcrypto.Note, len(idxs))
	for i, idx := range idxs {
		out[i] = notes[idx]
	}
	return idxs, out
}

// Sync fetches records from the tree's current position up to the
// relayer's mined delta-index (or toIndex, capped at it), applies the
// resulting state update, and persists decrypted memos. Optimistic
// records are excluded — durable state only ever reflects mined
// history.
func (a *Account) Sync(ctx context.Context, cache *relayercache.Cache, toIndex *uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.syncLocked(ctx, cache, toIndex)
}

func (a *Account) syncLocked(ctx context.Context, cache *relayercache.Cache, toIndex *uint64) error {
	info, err := cache.Info(ctx)
	if err != nil {
		return err
	}
	target := info.DeltaIndex
	if toIndex != nil && *toIndex < target {
		target = *toIndex
	}
	start := a.tree.NextIndex()
	if target <= start {
		return nil
	}
	limit := (target - start) / relayercache.OutPlusOne
	if limit == 0 {
		return nil
	}
	records, err := cache.Transactions(ctx, start, limit, false)
	if err != nil {
		return err
	}
	return a.applyLocked(records)
}

// treeOp is one record's contribution to the tree, kept alongside its
// on-chain index so applyLocked can restore record order across the
// separate leaf and commitment update slices.
type treeOp struct {
	index  uint64
	hashes [][32]byte
}

func (a *Account) applyLocked(records []domain.PoolTxRecord) error {
	if len(records) == 0 {
		return nil
	}
	result, err := txparser.ParseBatch(records, a.eta)
	if err != nil {
		return err
	}
	// NewLeaves and NewCommitments are separate slices but must land in
	// the tree in on-chain record order, not leaves-then-commitments: a
	// batch can freely interleave matched records (which contribute
	// leaves) and unmatched ones (which contribute a bare commitment
	// spanning the record's full leaf slot), and tree.Append is purely
	// order-dependent.
	ops := make([]treeOp, 0, len(result.Update.NewLeaves)+len(result.Update.NewCommitments))
	// A matched record may carry fewer leaf hashes than its slot holds;
	// its leaves are grouped by record and padded to the full span so the
	// tree still advances by OutPlusOne per record.
	byRecord := map[uint64][][32]byte{}
	for _, l := range result.Update.NewLeaves {
		base := l.Index - l.Index%relayercache.OutPlusOne
		byRecord[base] = append(byRecord[base], l.Hash)
	}
	for base, hashes := range byRecord {
		padded := make([][32]byte, relayercache.OutPlusOne)
		copy(padded, hashes)
		ops = append(ops, treeOp{index: base, hashes: padded})
	}
	for _, c := range result.Update.NewCommitments {
		// A bare commitment collapses an entire unmatched record into
		// one value, but the record still occupies its full leaf span,
		// so the tree must advance by that much to keep the next index
		// aligned to record boundaries.
		ops = append(ops, treeOp{index: c.Index, hashes: make([][32]byte, relayercache.OutPlusOne)})
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].index < ops[j].index })
	for _, op := range ops {
		a.tree.Append(op.hashes)
	}
	for _, acctUpdate := range result.Update.NewAccounts {
		a.balance = decodeBalance(acctUpdate.State)
		for _, idx := range acctUpdate.SpentIndices {
			delete(a.notes, idx)
			if err := a.deleteNote(idx); err != nil {
				return err
			}
		}
	}
	for _, n := range result.Update.NewNotes {
		a.notes[n.Index] = n.Note
		if err := a.saveNote(n.Index, n.Note); err != nil {
			return err
		}
	}
	for _, m := range result.Memos {
		a.memos = append(a.memos, m)
		if err := a.saveMemo(m); err != nil {
			return err
		}
	}
	return a.saveMeta()
}

// decodeBalance reads the big-endian balance from the tail of an
// encoded account state, inverting encodeBalance.
func decodeBalance(state []byte) uint64 {
	start := 0
	if len(state) > 8 {
		start = len(state) - 8
	}
	var v uint64
	for _, b := range state[start:] {
		v = v<<8 | uint64(b)
	}
	return v
}

func encodeBalance(v uint64, width int) []byte {
	out := make([]byte, width)
	for i := 0; i < 8 && i < width; i++ {
		out[width-1-i] = byte(v >> (8 * i))
	}
	return out
}
