package worker

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/synnergy-network/zkbob-cloud/internal/chaincache"
	"github.com/synnergy-network/zkbob-cloud/internal/chainclient"
	"github.com/synnergy-network/zkbob-cloud/internal/coordinator"
	"github.com/synnergy-network/zkbob-cloud/internal/kv"
	"github.com/synnergy-network/zkbob-cloud/internal/queue"
	"github.com/synnergy-network/zkbob-cloud/internal/relayercache"
	"github.com/synnergy-network/zkbob-cloud/internal/relayerclient"
	"github.com/synnergy-network/zkbob-cloud/internal/txparser"
	"github.com/synnergy-network/zkbob-cloud/internal/walletcrypto"
)

// fakeRelayer is a relayerclient.Client test double whose Job response
// is set per test, mirroring coordinator_test.go's stubRelayer idiom.
type fakeRelayer struct {
	job relayerclient.JobStatus
}

func (fakeRelayer) Info(context.Context) (relayerclient.Info, error) { return relayerclient.Info{}, nil }
func (fakeRelayer) Fee(context.Context) (uint64, error)              { return 100, nil }
func (r fakeRelayer) Job(context.Context, string) (relayerclient.JobStatus, error) {
	return r.job, nil
}
func (fakeRelayer) Send(context.Context, json.RawMessage) (string, error) { return "job-1", nil }
func (fakeRelayer) Transactions(context.Context, uint64, uint64, bool) ([]relayerclient.RawRecord, error) {
	return nil, nil
}

type stubChain struct{}

func (stubChain) Tx(context.Context, string) (chainclient.Tx, error)      { return chainclient.Tx{}, nil }
func (stubChain) BlockTimestamp(context.Context, string) (uint64, error) { return 0, nil }
func (stubChain) PoolID(context.Context) (string, error)                 { return "pool", nil }
func (stubChain) DirectDepositFee(context.Context) (uint64, error)       { return 0, nil }

// newTestCoordinator builds a coordinator backed by real queues, so the
// submit/confirm worker loops under test exercise the same enqueue and
// persistence paths the production loop does.
func newTestCoordinator(t *testing.T, relayer relayerclient.Client) *coordinator.Coordinator {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	dir := t.TempDir()
	store, err := kv.Open(kv.Options{Path: filepath.Join(dir, "cloud.db"), Columns: coordinator.Columns})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	relayerStore, err := kv.Open(kv.Options{Path: filepath.Join(dir, "relayer.db"), Columns: []kv.Column{relayercache.Column}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = relayerStore.Close() })
	cache := relayercache.New(relayer, relayerStore, logrus.NewEntry(logrus.New()))

	chainStore, err := kv.Open(kv.Options{Path: filepath.Join(dir, "chain.db"), Columns: []kv.Column{chaincache.Column}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = chainStore.Close() })
	chain := chaincache.New(stubChain{}, txparser.CalldataDecoder{}, chainStore)

	ctx := context.Background()
	submitQueue, err := queue.New(ctx, url, "test-submit-"+t.Name(), 0, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = submitQueue.Close() })
	statusQueue, err := queue.New(ctx, url, "test-status-"+t.Name(), 0, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = statusQueue.Close() })
	reportQueue, err := queue.New(ctx, url, "test-report-"+t.Name(), 0, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reportQueue.Close() })

	return coordinator.New(store, filepath.Join(dir, "accounts_data"), cache, chain, submitQueue, statusQueue, reportQueue, &walletcrypto.Params{}, logrus.NewEntry(logrus.New()))
}
