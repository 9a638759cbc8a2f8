package account

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synnergy-network/zkbob-cloud/internal/domain"
	"github.com/synnergy-network/zkbob-cloud/internal/kv"
	"github.com/synnergy-network/zkbob-cloud/internal/relayercache"
	"github.com/synnergy-network/zkbob-cloud/internal/relayerclient"
	"github.com/synnergy-network/zkbob-cloud/internal/walletcrypto"
)

func makeNotes(amounts ...uint64) map[uint64]walletcrypto.Note {
	notes := map[uint64]walletcrypto.Note{}
	for i, amt := range amounts {
		notes[uint64(i)] = walletcrypto.Note{B: amt}
	}
	return notes
}

func newTestAccount(t *testing.T) *Account {
	t.Helper()
	store, err := kv.Open(kv.Options{Path: filepath.Join(t.TempDir(), "acct.db"), Columns: Columns})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	a, err := New("acct-1", "test account", []byte("0123456789abcdef0123456789abcdef"), store)
	require.NoError(t, err)
	return a
}

func TestInfoOnFreshAccount(t *testing.T) {
	a := newTestAccount(t)
	info := a.Info(10)
	assert.Equal(t, uint64(0), info.Balance)
	assert.Equal(t, uint64(0), info.MaxTransferAmount)
	assert.NotEmpty(t, info.Address)
}

func TestGetTxPartsSinglePartWhenBalanceCovers(t *testing.T) {
	a := newTestAccount(t)
	a.balance = 1_000_000

	parts, err := a.GetTxParts(500, 100, "addr")
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, uint64(500), parts[0].Amount)
	require.NotNil(t, parts[0].To)
	assert.Equal(t, "addr", *parts[0].To)
}

func TestGetTxPartsMultiPartAggregatesNotes(t *testing.T) {
	a := newTestAccount(t)
	a.balance = 40
	a.notes = makeNotes(100, 100, 100, 100, 100, 100)

	// The first 3-note chunk (300 - fee) cannot yet cover 500 + 10, so
	// it becomes a consolidation part; the second chunk pushes the
	// reachable balance past the target and closes the plan.
	parts, err := a.GetTxParts(500, 10, "addr")
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Nil(t, parts[0].To)
	assert.Equal(t, uint64(290), parts[0].Amount)
	require.NotNil(t, parts[1].To)
	assert.Equal(t, uint64(500), parts[1].Amount)
}

func TestGetTxPartsSumCoversAmountAndOnlyLastHasRecipient(t *testing.T) {
	a := newTestAccount(t)
	a.balance = 0
	a.notes = makeNotes(50, 50, 50, 50, 50, 50, 50, 50, 50)

	const amount, fee = 300, 5
	parts, err := a.GetTxParts(amount, fee, "addr")
	require.NoError(t, err)
	require.NotEmpty(t, parts)

	var sum uint64
	for i, p := range parts {
		sum += p.Amount
		if i < len(parts)-1 {
			assert.Nil(t, p.To, "only the final part may carry a recipient")
		}
	}
	require.NotNil(t, parts[len(parts)-1].To)
	assert.GreaterOrEqual(t, sum, uint64(amount))
}

func TestMaxTransferAmountMirrorsPlanner(t *testing.T) {
	a := newTestAccount(t)
	a.balance = 40
	a.notes = makeNotes(100, 100, 100, 100, 100, 100)

	max := a.MaxTransferAmount(10)
	assert.Equal(t, uint64(620), max)

	// Whatever the reported maximum is, planning exactly that amount
	// must succeed, and one more must not.
	_, err := a.GetTxParts(max, 10, "addr")
	require.NoError(t, err)
	_, err = a.GetTxParts(max+1, 10, "addr")
	require.Error(t, err)
}

func TestGetTxPartsFailsWhenInsufficient(t *testing.T) {
	a := newTestAccount(t)
	a.balance = 0
	_, err := a.GetTxParts(1000, 10, "addr")
	require.Error(t, err)
}

func TestExportKeyIsHexOfSK(t *testing.T) {
	a := newTestAccount(t)
	assert.Len(t, a.ExportKey(), 2*len("0123456789abcdef0123456789abcdef"))
}

// oneRecordRelayer reports a single regular record that cannot match
// the syncing account's eta, at a fixed DeltaIndex.
type oneRecordRelayer struct {
	deltaIndex uint64
	data       string
}

func (r oneRecordRelayer) Info(context.Context) (relayerclient.Info, error) {
	return relayerclient.Info{DeltaIndex: r.deltaIndex, OptimisticDeltaIndex: r.deltaIndex}, nil
}
func (r oneRecordRelayer) Fee(context.Context) (uint64, error) { return 0, nil }
func (r oneRecordRelayer) Job(context.Context, string) (relayerclient.JobStatus, error) {
	return relayerclient.JobStatus{}, nil
}
func (r oneRecordRelayer) Send(context.Context, json.RawMessage) (string, error) { return "", nil }
func (r oneRecordRelayer) Transactions(_ context.Context, offset, limit uint64, _ bool) ([]relayerclient.RawRecord, error) {
	if offset != 0 || limit == 0 {
		return nil, nil
	}
	return []relayerclient.RawRecord{{Index: 0, Data: r.data}}, nil
}

func padHex(s string, n int) string {
	for len(s) < n {
		s = "0" + s
	}
	return s
}

// The tree's next index must stay a multiple of the per-record leaf
// span even across a batch containing a single unmatched regular
// record: the parser must collapse it to a bare commitment (no
// leaves), and the tree must still advance by the record's full span.
func TestSyncKeepsNextIndexMultipleOfOutPlusOne(t *testing.T) {
	a := newTestAccount(t)

	numHashes := uint32(relayercache.OutPlusOne)
	prefix := make([]byte, 4)
	binary.LittleEndian.PutUint32(prefix, numHashes)
	memo := append(prefix, make([]byte, relayercache.OutPlusOne*32)...)
	data := "1" + padHex("", 64) + padHex("", 64) + hex.EncodeToString(memo)

	store, err := kv.Open(kv.Options{Path: filepath.Join(t.TempDir(), "cache.db"), Columns: []kv.Column{relayercache.Column}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	cache := relayercache.New(oneRecordRelayer{deltaIndex: relayercache.OutPlusOne, data: data}, store, logrus.NewEntry(logrus.New()))

	require.NoError(t, a.Sync(context.Background(), cache, nil))
	assert.Equal(t, uint64(relayercache.OutPlusOne), a.NextIndex())
	assert.Zero(t, a.NextIndex()%relayercache.OutPlusOne)
}

// noOptimisticRelayer reports no pending activity, so CreateTransfer
// always takes the direct a.notes/a.balance path.
type noOptimisticRelayer struct{}

func (noOptimisticRelayer) Info(context.Context) (relayerclient.Info, error) {
	return relayerclient.Info{}, nil
}
func (noOptimisticRelayer) Fee(context.Context) (uint64, error) { return 0, nil }
func (noOptimisticRelayer) Job(context.Context, string) (relayerclient.JobStatus, error) {
	return relayerclient.JobStatus{}, nil
}
func (noOptimisticRelayer) Send(context.Context, json.RawMessage) (string, error) { return "", nil }
func (noOptimisticRelayer) Transactions(context.Context, uint64, uint64, bool) ([]relayerclient.RawRecord, error) {
	return nil, nil
}

// Across a sequence of parts belonging to the same multi-part transfer
// — three consolidation parts plus a final payout, each consuming the
// full 3-note-per-proof allowance — every part must select a disjoint
// set of input notes, because each part's spend is retired from the
// usable set (by applying its own mined record) before the next part
// is built.
func TestConsolidationTransferNeverReusesANoteIndex(t *testing.T) {
	a := newTestAccount(t)
	a.notes = makeNotes(100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100)

	store, err := kv.Open(kv.Options{Path: filepath.Join(t.TempDir(), "cache2.db"), Columns: []kv.Column{relayercache.Column}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	cache := relayercache.New(noOptimisticRelayer{}, store, logrus.NewEntry(logrus.New()))

	const fee = 10
	params := &walletcrypto.Params{}
	ctx := context.Background()

	recipientEta := walletcrypto.DeriveEta([]byte("sk-recipient"))
	recipient := string(walletcrypto.GenerateAddress(recipientEta, [10]byte{}))

	// Three consolidation legs (no recipient) followed by one payout,
	// each sized to exactly what its own 3-note chunk can cover.
	plan := []struct {
		amount uint64
		to     *string
	}{
		{290, nil}, {290, nil}, {290, nil}, {290, &recipient},
	}

	seen := map[uint64]bool{}
	for _, p := range plan {
		_, _, memo, err := a.CreateTransfer(ctx, p.amount, p.to, fee, params, cache)
		require.NoError(t, err)

		_, spentIdx, _, ok := walletcrypto.DecryptOut(memo, a.eta, 32)
		require.True(t, ok)
		require.Len(t, spentIdx, 3)
		for _, idx := range spentIdx {
			require.Falsef(t, seen[idx], "note index %d spent by more than one part", idx)
			seen[idx] = true
		}

		rec := domain.PoolTxRecord{Index: 0, MemoBytes: append(make([]byte, 4), memo...), TxHash: "0xpart"}
		require.NoError(t, a.applyLocked([]domain.PoolTxRecord{rec}))
	}
	assert.Len(t, seen, 12)
	assert.Empty(t, a.notes)
}
