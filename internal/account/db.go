package account

import (
	"encoding/json"
	"strconv"

	"github.com/synnergy-network/zkbob-cloud/internal/domain"
	"github.com/synnergy-network/zkbob-cloud/internal/kv"
	"github.com/synnergy-network/zkbob-cloud/internal/walletcrypto"
)

// Columns for a single account's bbolt database, one file per account
// under accounts_data/<uuid>/.
const (
	ColumnMeta  kv.Column = "account"
	ColumnNotes kv.Column = "tree_notes"
	ColumnMemos kv.Column = "history"
)

var Columns = []kv.Column{ColumnMeta, ColumnNotes, ColumnMemos}

const metaKey = "meta"

// meta is the persisted scalar state of an account.
type meta struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	SK          []byte `json:"sk"`
	Balance     uint64 `json:"balance"`
	NextIndex   uint64 `json:"nextIndex"`
}

func (a *Account) saveMeta() error {
	return kv.Put(a.store, ColumnMeta, metaKey, meta{
		ID: a.id, Description: a.description, SK: a.sk,
		Balance: a.balance, NextIndex: a.tree.NextIndex(),
	})
}

func loadMeta(store *kv.Store) (meta, bool, error) {
	return kv.Get[meta](store, ColumnMeta, metaKey)
}

func (a *Account) saveNote(idx uint64, note walletcrypto.Note) error {
	return kv.Put(a.store, ColumnNotes, kv.EncodeBigEndianIndex(idx), note)
}

func (a *Account) deleteNote(idx uint64) error {
	return a.store.Delete(ColumnNotes, kv.EncodeBigEndianIndex(idx))
}

func loadNotes(store *kv.Store) (map[uint64]walletcrypto.Note, error) {
	notes := map[uint64]walletcrypto.Note{}
	err := store.Iter(ColumnNotes, func(key string, value []byte) bool {
		idx, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return true
		}
		var n walletcrypto.Note
		if err := json.Unmarshal(value, &n); err != nil {
			return true
		}
		notes[idx] = n
		return true
	})
	return notes, err
}

func (a *Account) saveMemo(m domain.Memo) error {
	return kv.Put(a.store, ColumnMemos, kv.EncodeBigEndianIndex(m.Index), m)
}

func loadMemos(store *kv.Store) ([]domain.Memo, error) {
	var memos []domain.Memo
	err := store.Iter(ColumnMemos, func(_ string, value []byte) bool {
		var m domain.Memo
		if err := json.Unmarshal(value, &m); err == nil {
			memos = append(memos, m)
		}
		return true
	})
	return memos, err
}
