// Package txparser decrypts per-account memos from raw pool records
// and derives the state-update deltas that drive internal/account's
// tree and note storage.
package txparser

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/synnergy-network/zkbob-cloud/internal/apperr"
	"github.com/synnergy-network/zkbob-cloud/internal/domain"
	"github.com/synnergy-network/zkbob-cloud/internal/walletcrypto"
)

// commitmentHash derives a 32-byte commitment from a record's raw
// commitment bytes, used when no account or note in the record matched
// and the whole record collapses to a single tree entry.
func commitmentHash(rec domain.PoolTxRecord) [32]byte {
	return sha256.Sum256(rec.Commitment)
}

// OutPlusOne is the fixed number of tree leaves one pool record spans:
// the account leaf plus the protocol's output notes.
const OutPlusOne = 128

// DelegatedDepositFlag marks the top bit of the 4-byte little-endian
// memo prefix; when set, the rest of the prefix counts delegated
// deposits instead of leaf hashes.
const DelegatedDepositFlag = uint32(1) << 31

// LeafUpdate appends a single leaf hash at a tree position.
type LeafUpdate struct {
	Index uint64
	Hash  [32]byte
}

// CommitmentUpdate records a bare commitment with no matched account or
// notes.
type CommitmentUpdate struct {
	Index      uint64
	Commitment [32]byte
}

// AccountUpdate records a newly decrypted account state at an index.
// SpentIndices lists note indices the sender's own transaction
// consumed as witness inputs, recovered from its own outgoing memo, so
// a spent note drops out of the usable set on the owner's own sync.
type AccountUpdate struct {
	Index        uint64
	State        []byte
	SpentIndices []uint64
}

// NoteUpdate records a newly decrypted note at an index.
type NoteUpdate struct {
	Index uint64
	Note  walletcrypto.Note
}

// StateUpdate is the aggregate delta produced by a batch.
type StateUpdate struct {
	NewLeaves      []LeafUpdate
	NewCommitments []CommitmentUpdate
	NewAccounts    []AccountUpdate
	NewNotes       []NoteUpdate
}

// Result is ParseBatch's return value.
type Result struct {
	Memos  []domain.Memo
	Update StateUpdate
}

// AccountStateLen is the fixed serialised width of an account state,
// a protocol constant in the real wallet-crypto library; the reference
// implementation fixes it at 32 bytes (a balance field element).
const AccountStateLen = 32

// ParseBatch decrypts every record with eta and merges the per-record
// results. Records are independent, so decryption fans out across a
// small bounded goroutine pool. Any single record's parse failure
// rejects the whole batch with one state-sync error, so the caller can
// retry from the same offset.
func ParseBatch(records []domain.PoolTxRecord, eta walletcrypto.Eta) (Result, error) {
	type outcome struct {
		memo   *domain.Memo
		comm   *CommitmentUpdate
		acct   *AccountUpdate
		notes  []NoteUpdate
		leaves []LeafUpdate
		err    error
	}
	outcomes := make([]outcome, len(records))

	const maxWorkers = 8
	sem := make(chan struct{}, maxWorkers)
	var wg sync.WaitGroup
	for i, rec := range records {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, rec domain.PoolTxRecord) {
			defer wg.Done()
			defer func() { <-sem }()
			memo, leaves, comm, acct, notes, err := parseOne(rec, eta)
			outcomes[i] = outcome{memo: memo, comm: comm, acct: acct, notes: notes, leaves: leaves, err: err}
		}(i, rec)
	}
	wg.Wait()

	var res Result
	for _, o := range outcomes {
		if o.err != nil {
			return Result{}, apperr.Wrap(apperr.CodeStateSyncError, o.err, "txparser: batch rejected")
		}
		if o.memo != nil {
			res.Memos = append(res.Memos, *o.memo)
		}
		res.Update.NewLeaves = append(res.Update.NewLeaves, o.leaves...)
		if o.comm != nil {
			res.Update.NewCommitments = append(res.Update.NewCommitments, *o.comm)
		}
		if o.acct != nil {
			res.Update.NewAccounts = append(res.Update.NewAccounts, *o.acct)
		}
		res.Update.NewNotes = append(res.Update.NewNotes, o.notes...)
	}
	return res, nil
}

func parseOne(rec domain.PoolTxRecord, eta walletcrypto.Eta) (
	memo *domain.Memo, leaves []LeafUpdate, comm *CommitmentUpdate, acct *AccountUpdate, notes []NoteUpdate, err error,
) {
	if len(rec.MemoBytes) < 4 {
		return nil, nil, nil, nil, nil, apperr.New(apperr.CodeStateSyncError, "memo shorter than prefix")
	}
	prefix := binary.LittleEndian.Uint32(rec.MemoBytes[0:4])
	body := rec.MemoBytes[4:]

	if prefix&DelegatedDepositFlag != 0 {
		count := prefix ^ DelegatedDepositFlag
		return parseDelegatedDeposit(rec, eta, int(count), body)
	}

	numHashes := prefix
	if numHashes > OutPlusOne {
		return nil, nil, nil, nil, nil, apperr.New(apperr.CodeStateSyncError, "prefix exceeds OUT+1")
	}
	return parseRegular(rec, eta, int(numHashes), body)
}

func parseDelegatedDeposit(rec domain.PoolTxRecord, eta walletcrypto.Eta, count int, body []byte) (
	*domain.Memo, []LeafUpdate, *CommitmentUpdate, *AccountUpdate, []NoteUpdate, error,
) {
	need := count * walletcrypto.NoteSize
	if len(body) < need {
		return nil, nil, nil, nil, nil, apperr.New(apperr.CodeStateSyncError, "delegated-deposit body too short")
	}

	var matchedNotes []walletcrypto.Note
	var matchedIdx []int
	depositHashes := make([][32]byte, count)
	for i := 0; i < count; i++ {
		raw := body[i*walletcrypto.NoteSize : (i+1)*walletcrypto.NoteSize]
		note, ok := walletcrypto.DecodeNote(raw)
		if !ok {
			return nil, nil, nil, nil, nil, apperr.New(apperr.CodeStateSyncError, "malformed deposit entry")
		}
		depositHashes[i] = walletcrypto.HashNote(note)
		if note.MatchesPD(eta) {
			matchedNotes = append(matchedNotes, note)
			matchedIdx = append(matchedIdx, i)
		}
	}

	if len(matchedNotes) == 0 {
		c := CommitmentUpdate{Index: rec.Index, Commitment: commitmentHash(rec)}
		return nil, nil, &c, nil, nil, nil
	}

	var leaves []LeafUpdate
	leaves = append(leaves, LeafUpdate{Index: rec.Index, Hash: walletcrypto.ZeroAccountHash})
	for i, h := range depositHashes {
		leaves = append(leaves, LeafUpdate{Index: rec.Index + 1 + uint64(i), Hash: h})
	}

	var notes []NoteUpdate
	var inNotes []domain.IndexedNote
	for i, note := range matchedNotes {
		idx := rec.Index + 1 + uint64(matchedIdx[i])
		notes = append(notes, NoteUpdate{Index: idx, Note: note})
		inNotes = append(inNotes, domain.IndexedNote{Index: idx, Raw: note.Encode()})
	}

	m := &domain.Memo{Index: rec.Index, InNotes: inNotes, TxHash: rec.TxHash}
	return m, leaves, nil, nil, notes, nil
}

func parseRegular(rec domain.PoolTxRecord, eta walletcrypto.Eta, numHashes int, body []byte) (
	*domain.Memo, []LeafUpdate, *CommitmentUpdate, *AccountUpdate, []NoteUpdate, error,
) {
	leafBytes := numHashes * 32
	if len(body) < leafBytes {
		return nil, nil, nil, nil, nil, apperr.New(apperr.CodeStateSyncError, "regular record leaf section too short")
	}
	var leafHashes [][32]byte
	for i := 0; i < numHashes; i++ {
		var h [32]byte
		copy(h[:], body[i*32:(i+1)*32])
		leafHashes = append(leafHashes, h)
	}
	cipher := body[leafBytes:]

	leaves := make([]LeafUpdate, len(leafHashes))
	for i, h := range leafHashes {
		leaves[i] = LeafUpdate{Index: rec.Index + uint64(i), Hash: h}
	}

	if accountState, spentIndices, outNotes, ok := walletcrypto.DecryptOut(cipher, eta, AccountStateLen); ok {
		var outIdx []domain.IndexedNote
		var inIdx []domain.IndexedNote
		var noteUpdates []NoteUpdate
		// The account's own default diversifier is the zero value by
		// convention (account.go always generates it that way for the
		// address used to receive change); matching against it is how
		// an out-note is recognised as change returning to the sender.
		ownPD := walletcrypto.DerivePD(eta, [10]byte{})
		for i, n := range outNotes {
			idx := rec.Index + uint64(i)
			outIdx = append(outIdx, domain.IndexedNote{Index: idx, Raw: n.Encode()})
			noteUpdates = append(noteUpdates, NoteUpdate{Index: idx, Note: n})
			if n.PD == ownPD {
				inIdx = append(inIdx, domain.IndexedNote{Index: idx, Raw: n.Encode()})
			}
		}
		acct := &AccountUpdate{Index: rec.Index, State: accountState, SpentIndices: spentIndices}
		m := &domain.Memo{
			Index: rec.Index, AccountState: accountState, HasAccount: true,
			InNotes: inIdx, OutNotes: outIdx, TxHash: rec.TxHash,
		}
		return m, leaves, nil, acct, noteUpdates, nil
	}

	var matched []domain.IndexedNote
	var noteUpdates []NoteUpdate
	for i := 0; i+walletcrypto.NoteSize <= len(cipher); i += walletcrypto.NoteSize {
		note, ok := walletcrypto.DecryptIn(cipher[i : i+walletcrypto.NoteSize])
		if !ok || !note.MatchesPD(eta) {
			continue
		}
		idx := rec.Index + uint64(i/walletcrypto.NoteSize)
		matched = append(matched, domain.IndexedNote{Index: idx, Raw: note.Encode()})
		noteUpdates = append(noteUpdates, NoteUpdate{Index: idx, Note: note})
	}

	if len(matched) == 0 {
		// Nothing matched: the state update carries only a commitment,
		// never the leaves. Keeping the leaves would advance the tree
		// by their count instead of by the record's full OutPlusOne
		// slot, misaligning every record after this one.
		c := &CommitmentUpdate{Index: rec.Index, Commitment: commitmentHash(rec)}
		return nil, nil, c, nil, nil, nil
	}
	m := &domain.Memo{Index: rec.Index, InNotes: matched, TxHash: rec.TxHash}
	return m, leaves, nil, nil, noteUpdates, nil
}
