// Package kv wraps a bbolt database into a typed, multi-column store:
// JSON-encoded values behind generic get/put, raw and string variants,
// iteration, and atomic multi-key writes. A Store is shared by reference
// and stays open until its Close is called.
package kv

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/synnergy-network/zkbob-cloud/internal/apperr"
)

// Column names one of the fixed set of buckets a Store is opened with.
// The set is declared at Open time and never grows afterward.
type Column string

// Store is a single bbolt-backed database with a fixed set of columns.
type Store struct {
	db      *bolt.DB
	columns []Column
}

// Options names the on-disk path and the store's structural
// parameters.
type Options struct {
	Path    string
	Columns []Column
}

// Open creates or opens the database file at opts.Path and ensures every
// column bucket exists.
func Open(opts Options) (*Store, error) {
	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, err, "kv: mkdir "+dir)
		}
	}
	db, err := bolt.Open(opts.Path, 0o600, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "kv: open "+opts.Path)
	}
	s := &Store{db: db, columns: opts.Columns}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, c := range opts.Columns {
			if _, err := tx.CreateBucketIfNotExists([]byte(c)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, apperr.Wrap(apperr.CodeInternal, err, "kv: init columns")
	}
	return s, nil
}

// Close releases the underlying file handle.
func (s *Store) Close() error { return s.db.Close() }

// PutRaw writes a raw value under key in column.
func (s *Store) PutRaw(column Column, key string, value []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(column)).Put([]byte(key), value)
	})
	if err != nil {
		return apperr.Wrap(apperr.CodeDataBaseWrite, err, "kv: put "+string(column))
	}
	return nil
}

// PutString writes a string value under key in column.
func (s *Store) PutString(column Column, key, value string) error {
	return s.PutRaw(column, key, []byte(value))
}

// Put JSON-encodes value and writes it under key in column.
func Put[T any](s *Store, column Column, key string, value T) error {
	b, err := json.Marshal(value)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "kv: marshal")
	}
	return s.PutRaw(column, key, b)
}

// GetRaw reads the raw value for key in column. ok is false on miss.
func (s *Store) GetRaw(column Column, key string) (value []byte, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(column)).Get([]byte(key))
		if v != nil {
			ok = true
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, apperr.Wrap(apperr.CodeDataBaseRead, err, "kv: get "+string(column))
	}
	return value, ok, nil
}

// GetString reads a string value for key in column.
func (s *Store) GetString(column Column, key string) (string, bool, error) {
	v, ok, err := s.GetRaw(column, key)
	return string(v), ok, err
}

// Get JSON-decodes the value for key in column into a T.
func Get[T any](s *Store, column Column, key string) (val T, ok bool, err error) {
	raw, ok, err := s.GetRaw(column, key)
	if err != nil || !ok {
		return val, ok, err
	}
	if uerr := json.Unmarshal(raw, &val); uerr != nil {
		return val, true, apperr.Wrap(apperr.CodeInternal, uerr, "kv: unmarshal")
	}
	return val, true, nil
}

// Exists reports whether key is present in column.
func (s *Store) Exists(column Column, key string) (bool, error) {
	_, ok, err := s.GetRaw(column, key)
	return ok, err
}

// Delete removes key from column. Deleting an absent key is a no-op.
func (s *Store) Delete(column Column, key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(column)).Delete([]byte(key))
	})
	if err != nil {
		return apperr.Wrap(apperr.CodeDataBaseWrite, err, "kv: delete "+string(column))
	}
	return nil
}

// DeleteAll empties every key from column.
func (s *Store) DeleteAll(column Column) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(column))
		return b.ForEach(func(k, _ []byte) error {
			return b.Delete(k)
		})
	})
	if err != nil {
		return apperr.Wrap(apperr.CodeDataBaseWrite, err, "kv: delete_all "+string(column))
	}
	return nil
}

// Iter calls fn for every key/value pair in column, in bbolt's
// byte-lexicographic key order, stopping early if fn returns false.
func (s *Store) Iter(column Column, fn func(key string, value []byte) bool) error {
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(column)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if !fn(string(k), v) {
				break
			}
		}
		return nil
	})
	if err != nil {
		return apperr.Wrap(apperr.CodeDataBaseRead, err, "kv: iter "+string(column))
	}
	return nil
}

// PutAll writes every item to column under keyFn(item), in a single
// atomic bbolt transaction.
func PutAll[T any](s *Store, column Column, items []T, keyFn func(T) string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(column))
		for _, item := range items {
			enc, err := json.Marshal(item)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(keyFn(item)), enc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperr.Wrap(apperr.CodeDataBaseWrite, err, "kv: put_all "+string(column))
	}
	return nil
}

// Txn is the handle passed to Atomic's callback. It is scoped to the
// transaction and must not be retained past it.
type Txn struct {
	tx *bolt.Tx
}

// Put JSON-encodes value and writes it under key in column, inside the
// enclosing transaction.
func (t Txn) Put(column Column, key string, value any) error {
	enc, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return t.tx.Bucket([]byte(column)).Put([]byte(key), enc)
}

// Exists reports whether key is present in column, inside the enclosing
// transaction — so a check-then-write sequence cannot race another
// writer.
func (t Txn) Exists(column Column, key string) bool {
	return t.tx.Bucket([]byte(column)).Get([]byte(key)) != nil
}

// Atomic runs fn inside a single bbolt read-write transaction spanning
// every column, so a caller that needs to write across more than one
// column still gets all-or-nothing persistence. An error from fn rolls
// the whole transaction back; a classified error is returned unchanged.
func (s *Store) Atomic(fn func(txn Txn) error) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return fn(Txn{tx: tx})
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return err
		}
		return apperr.Wrap(apperr.CodeDataBaseWrite, err, "kv: atomic")
	}
	return nil
}

// EncodeBigEndianIndex formats index as a fixed-width big-endian decimal
// key, so bbolt's lexicographic key ordering matches numeric ordering —
// used by the relayer cache and the per-account note and memo columns to
// keep Iter's traversal sorted.
func EncodeBigEndianIndex(index uint64) string {
	return fmt.Sprintf("%020d", index)
}
