package account

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/synnergy-network/zkbob-cloud/internal/apperr"
	"github.com/synnergy-network/zkbob-cloud/internal/domain"
	"github.com/synnergy-network/zkbob-cloud/internal/kv"
	"github.com/synnergy-network/zkbob-cloud/internal/relayercache"
	"github.com/synnergy-network/zkbob-cloud/internal/relayerclient"
	"github.com/synnergy-network/zkbob-cloud/internal/walletcrypto"
)

// optimisticRelayer reports one pending (not yet mined) record beyond
// the mined frontier.
type optimisticRelayer struct {
	data string
}

func (r optimisticRelayer) Info(context.Context) (relayerclient.Info, error) {
	return relayerclient.Info{DeltaIndex: 0, OptimisticDeltaIndex: relayercache.OutPlusOne}, nil
}
func (optimisticRelayer) Fee(context.Context) (uint64, error) { return 0, nil }
func (optimisticRelayer) Job(context.Context, string) (relayerclient.JobStatus, error) {
	return relayerclient.JobStatus{}, nil
}
func (optimisticRelayer) Send(context.Context, json.RawMessage) (string, error) { return "", nil }
func (r optimisticRelayer) Transactions(_ context.Context, offset, limit uint64, _ bool) ([]relayerclient.RawRecord, error) {
	if offset != 0 || limit == 0 {
		return nil, nil
	}
	return []relayerclient.RawRecord{{Index: 0, Data: r.data}}, nil
}

func optimisticNoteRecord(t *testing.T, note walletcrypto.Note) string {
	t.Helper()
	prefix := make([]byte, 4)
	binary.LittleEndian.PutUint32(prefix, 1)
	memo := append(prefix, make([]byte, 32)...)
	memo = append(memo, note.Encode()...)
	return "0" + hexZeros(64) + hexZeros(64) + hex.EncodeToString(memo)
}

func hexZeros(n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = '0'
	}
	return string(out)
}

// A transfer built while a funding note is still only relayer-accepted
// must see that note through the optimistic overlay; the same transfer
// against durable state alone has nothing to spend.
func TestCreateTransferSpendsOptimisticNote(t *testing.T) {
	a := newTestAccount(t)

	var div [10]byte
	copy(div[:], []byte("pending-dv"))
	note := walletcrypto.Note{Diversifier: div, PD: walletcrypto.DerivePD(a.eta, div), B: 100}

	store, err := kv.Open(kv.Options{Path: filepath.Join(t.TempDir(), "cache.db"), Columns: []kv.Column{relayercache.Column}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	cache := relayercache.New(optimisticRelayer{data: optimisticNoteRecord(t, note)}, store, logrus.NewEntry(logrus.New()))

	recipientEta := walletcrypto.DeriveEta([]byte("sk-recipient"))
	to := string(walletcrypto.GenerateAddress(recipientEta, [10]byte{}))

	_, proof, memo, err := a.CreateTransfer(context.Background(), 50, &to, 10, &walletcrypto.Params{}, cache)
	require.NoError(t, err)
	require.NotEmpty(t, proof)

	_, spentIdx, _, ok := walletcrypto.DecryptOut(memo, a.eta, 32)
	require.True(t, ok)
	require.Equal(t, []uint64{0}, spentIdx, "the pending note at index 0 must be the spend")

	// Durable state was never advanced by the pending record.
	require.Equal(t, uint64(0), a.NextIndex())
	require.Empty(t, a.notes)

	// The pending record must not have been persisted to the cache.
	ok, err = store.Exists(relayercache.Column, kv.EncodeBigEndianIndex(0))
	require.NoError(t, err)
	require.False(t, ok)
}

// A full multi-part transfer driven the way the submit worker drives
// it: plan once, then build each part through CreateTransfer, applying
// every part's mined record before the next part is built. The
// consolidation part pays no output — its notes fold back into the
// balance minus the fee — so the final part must see the aggregated
// funds and succeed.
func TestMultiPartTransferEndToEnd(t *testing.T) {
	a := newTestAccount(t)
	a.balance = 40
	a.notes = makeNotes(100, 100, 100, 100, 100, 100)

	store, err := kv.Open(kv.Options{Path: filepath.Join(t.TempDir(), "cache.db"), Columns: []kv.Column{relayercache.Column}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	cache := relayercache.New(noOptimisticRelayer{}, store, logrus.NewEntry(logrus.New()))

	recipientEta := walletcrypto.DeriveEta([]byte("sk-recipient"))
	to := string(walletcrypto.GenerateAddress(recipientEta, [10]byte{}))

	const fee = 10
	plan, err := a.GetTxParts(500, fee, to)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	require.Nil(t, plan[0].To)
	require.Equal(t, uint64(290), plan[0].Amount)

	ctx := context.Background()
	params := &walletcrypto.Params{}
	for _, part := range plan {
		_, _, memo, err := a.CreateTransfer(ctx, part.Amount, part.To, fee, params, cache)
		require.NoError(t, err)

		rec := domain.PoolTxRecord{Index: 0, MemoBytes: append(make([]byte, 4), memo...), TxHash: "0xpart"}
		require.NoError(t, a.applyLocked([]domain.PoolTxRecord{rec}))
	}

	// Consolidation: 40 + 300 − 10 = 330; payout: 330 + 300 − 500 − 10.
	require.Equal(t, uint64(120), a.balance)
	require.Empty(t, a.notes)
}

func TestCreateTransferInsufficientWithoutOverlay(t *testing.T) {
	a := newTestAccount(t)

	store, err := kv.Open(kv.Options{Path: filepath.Join(t.TempDir(), "cache.db"), Columns: []kv.Column{relayercache.Column}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	cache := relayercache.New(noOptimisticRelayer{}, store, logrus.NewEntry(logrus.New()))

	recipientEta := walletcrypto.DeriveEta([]byte("sk-recipient"))
	to := string(walletcrypto.GenerateAddress(recipientEta, [10]byte{}))

	_, _, _, err = a.CreateTransfer(context.Background(), 50, &to, 10, &walletcrypto.Params{}, cache)
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.CodeInsufficientBalance))
}
