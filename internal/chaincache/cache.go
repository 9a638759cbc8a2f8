// Package chaincache resolves a tx-hash to its classified chain
// metadata — kind, timestamp, fee, token amount — fetching from the
// node once and caching the result forever.
package chaincache

import (
	"context"
	"encoding/json"

	"github.com/synnergy-network/zkbob-cloud/internal/apperr"
	"github.com/synnergy-network/zkbob-cloud/internal/chainclient"
	"github.com/synnergy-network/zkbob-cloud/internal/domain"
	"github.com/synnergy-network/zkbob-cloud/internal/kv"
)

// Column is the bbolt bucket holding chain metadata, keyed by tx-hash.
const Column kv.Column = "web3_cache"

// CalldataDecoder classifies raw transaction calldata into a kind plus
// the fields needed to finish building ChainMetadata. A reference
// decoder able to read this system's own encoding lives in
// internal/txparser.
type CalldataDecoder interface {
	Decode(calldata []byte) (kind domain.ChainTxKind, fee *uint64, tokenAmount *int64, err error)
}

// Cache wraps a chainclient.Client with a persistent classification
// cache.
type Cache struct {
	client  chainclient.Client
	decoder CalldataDecoder
	ddFee   func(ctx context.Context) (uint64, error)
	store   *kv.Store
}

// New builds a Cache over client, decoding calldata with decoder and
// persisting results into store.
func New(client chainclient.Client, decoder CalldataDecoder, store *kv.Store) *Cache {
	c := &Cache{client: client, decoder: decoder, store: store}
	c.ddFee = client.DirectDepositFee
	return c
}

// Get returns the cached classification for txHash, fetching and
// persisting it on first access. Written entries are never re-fetched
// or invalidated: below the relayer's confirmation horizon the chain
// value cannot change.
func (c *Cache) Get(ctx context.Context, txHash string) (domain.ChainMetadata, error) {
	if raw, ok, err := c.store.GetRaw(Column, txHash); err != nil {
		return domain.ChainMetadata{}, apperr.Wrap(apperr.CodeDataBaseRead, err, "chaincache: read")
	} else if ok {
		var meta domain.ChainMetadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			return domain.ChainMetadata{}, apperr.Wrap(apperr.CodeInternal, err, "chaincache: decode")
		}
		return meta, nil
	}

	tx, err := c.client.Tx(ctx, txHash)
	if err != nil {
		return domain.ChainMetadata{}, apperr.Wrap(apperr.CodeWeb3Error, err, "chaincache: missing transaction")
	}
	ts, err := c.client.BlockTimestamp(ctx, tx.BlockHash)
	if err != nil {
		return domain.ChainMetadata{}, apperr.Wrap(apperr.CodeWeb3Error, err, "chaincache: missing block")
	}
	kind, fee, tokenAmount, err := c.decoder.Decode(tx.Calldata)
	if err != nil {
		return domain.ChainMetadata{}, apperr.Wrap(apperr.CodeWeb3Error, err, "chaincache: unknown calldata")
	}
	if kind == domain.ChainKindDirectDeposit {
		ddFee, err := c.ddFee(ctx)
		if err != nil {
			return domain.ChainMetadata{}, apperr.Wrap(apperr.CodeWeb3Error, err, "chaincache: direct-deposit fee")
		}
		fee = &ddFee
	}

	meta := domain.ChainMetadata{Kind: kind, Timestamp: ts, Fee: fee, TokenAmount: tokenAmount}
	if err := kv.Put(c.store, Column, txHash, meta); err != nil {
		// Immutable once written and safe to retry, but not fatal to the
		// caller — the value is still correct.
		return meta, nil
	}
	return meta, nil
}
