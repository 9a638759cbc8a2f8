// Package relayercache is the paginated, persistently-cached view of
// the relayer's pool records: mined records are cached forever, and
// only the uncovered suffix of a request goes to the relayer.
package relayercache

import (
	"context"
	"encoding/hex"
	"encoding/json"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/synnergy-network/zkbob-cloud/internal/apperr"
	"github.com/synnergy-network/zkbob-cloud/internal/domain"
	"github.com/synnergy-network/zkbob-cloud/internal/kv"
	"github.com/synnergy-network/zkbob-cloud/internal/relayerclient"
)

// OutPlusOne is the number of tree leaves one pool record spans; pool
// indices advance in steps of it.
const OutPlusOne = 128

// Column is the bbolt bucket holding mined pool records, keyed by
// big-endian index.
const Column kv.Column = "relayer_cache"

// memCacheSize bounds the in-process front for readCached. Mined
// records are immutable once written, so a plain LRU needs no
// invalidation path; it only spares report generation and history
// scans — which walk overlapping index ranges across many accounts —
// a bbolt round trip for ranges already hot.
const memCacheSize = 4096

// Cache wraps a relayerclient.Client with the persistent mined-record
// cache, an in-memory LRU front for it, and optimistic passthrough.
type Cache struct {
	client relayerclient.Client
	store  *kv.Store
	log    *logrus.Entry
	mem    *lru.Cache[uint64, domain.PoolTxRecord]
}

// New builds a Cache over client, persisting mined records into store.
func New(client relayerclient.Client, store *kv.Store, log *logrus.Entry) *Cache {
	mem, err := lru.New[uint64, domain.PoolTxRecord](memCacheSize)
	if err != nil {
		panic(err)
	}
	return &Cache{client: client, store: store, log: log, mem: mem}
}

func (c *Cache) Info(ctx context.Context) (relayerclient.Info, error) { return c.client.Info(ctx) }
func (c *Cache) Fee(ctx context.Context) (uint64, error)              { return c.client.Fee(ctx) }
func (c *Cache) Job(ctx context.Context, id string) (relayerclient.JobStatus, error) {
	return c.client.Job(ctx, id)
}
func (c *Cache) Send(ctx context.Context, proof json.RawMessage) (string, error) {
	return c.client.Send(ctx, proof)
}

// decodeRecord parses the relayer's opaque wire string: first byte '1'
// iff mined, next 64 hex chars tx-hash, next 64 hex chars big-endian
// commitment, remainder hex memo.
func decodeRecord(index uint64, data string) (domain.PoolTxRecord, error) {
	if len(data) < 1+64+64 {
		return domain.PoolTxRecord{}, apperr.New(apperr.CodeStateSyncError, "relayer record too short")
	}
	mined := data[0] == '1'
	txHashHex := data[1 : 1+64]
	commitHex := data[1+64 : 1+64+64]
	memoHex := data[1+64+64:]

	txHash, err := hex.DecodeString(txHashHex)
	if err != nil {
		return domain.PoolTxRecord{}, apperr.Wrap(apperr.CodeStateSyncError, err, "relayer record tx-hash")
	}
	commitment, err := hex.DecodeString(commitHex)
	if err != nil {
		return domain.PoolTxRecord{}, apperr.Wrap(apperr.CodeStateSyncError, err, "relayer record commitment")
	}
	memo, err := hex.DecodeString(memoHex)
	if err != nil {
		return domain.PoolTxRecord{}, apperr.Wrap(apperr.CodeStateSyncError, err, "relayer record memo")
	}
	return domain.PoolTxRecord{
		Index:      index,
		MemoBytes:  memo,
		Commitment: commitment,
		TxHash:     hex.EncodeToString(txHash),
		Optimistic: !mined,
	}, nil
}

// readCached reads contiguous mined records starting at offset,
// stepping by OutPlusOne, until the first miss.
func (c *Cache) readCached(offset, limit uint64) ([]domain.PoolTxRecord, uint64, error) {
	var out []domain.PoolTxRecord
	idx := offset
	for uint64(len(out)) < limit {
		if rec, ok := c.mem.Get(idx); ok {
			out = append(out, rec)
			idx += OutPlusOne
			continue
		}
		raw, ok, err := c.store.GetRaw(Column, kv.EncodeBigEndianIndex(idx))
		if err != nil {
			return nil, idx, apperr.Wrap(apperr.CodeDataBaseRead, err, "relayercache: read")
		}
		if !ok {
			break
		}
		var rec domain.PoolTxRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, idx, apperr.Wrap(apperr.CodeInternal, err, "relayercache: decode cached")
		}
		c.mem.Add(idx, rec)
		out = append(out, rec)
		idx += OutPlusOne
	}
	return out, idx, nil
}

// Transactions returns [offset, offset+limit*OutPlusOne) pool records,
// reading from the persistent cache where possible and filling the
// uncovered suffix from the relayer. Only mined records are persisted;
// optimistic ones pass straight through.
func (c *Cache) Transactions(ctx context.Context, offset, limit uint64, withOptimistic bool) ([]domain.PoolTxRecord, error) {
	cached, nextIdx, err := c.readCached(offset, limit)
	if err != nil {
		return nil, err
	}
	have := uint64(len(cached))
	result := cached
	if have < limit {
		remaining := limit - have
		raw, err := c.client.Transactions(ctx, nextIdx, remaining, true)
		if err != nil {
			return nil, err
		}
		var toPersist []domain.PoolTxRecord
		for _, r := range raw {
			rec, err := decodeRecord(r.Index, r.Data)
			if err != nil {
				return nil, err
			}
			result = append(result, rec)
			if !rec.Optimistic {
				toPersist = append(toPersist, rec)
				c.mem.Add(rec.Index, rec)
			}
		}
		if len(toPersist) > 0 {
			if err := kv.PutAll(c.store, Column, toPersist, func(r domain.PoolTxRecord) string {
				return kv.EncodeBigEndianIndex(r.Index)
			}); err != nil {
				// Write-behind is lossless: log and still return correct data.
				c.log.WithError(err).Warn("relayercache: failed to persist mined records")
			}
		}
	}
	if !withOptimistic {
		filtered := result[:0]
		for _, r := range result {
			if !r.Optimistic {
				filtered = append(filtered, r)
			}
		}
		result = filtered
	}
	return result, nil
}
