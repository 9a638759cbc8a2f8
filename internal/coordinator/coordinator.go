// Package coordinator owns the account registry with reference-counted
// handle lifetimes, the admin operations, transfer intake, and the
// cloud-level persistence shared by the workers and the HTTP surface.
package coordinator

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/synnergy-network/zkbob-cloud/internal/account"
	"github.com/synnergy-network/zkbob-cloud/internal/apperr"
	"github.com/synnergy-network/zkbob-cloud/internal/chaincache"
	"github.com/synnergy-network/zkbob-cloud/internal/kv"
	"github.com/synnergy-network/zkbob-cloud/internal/queue"
	"github.com/synnergy-network/zkbob-cloud/internal/relayercache"
	"github.com/synnergy-network/zkbob-cloud/internal/walletcrypto"
)

// Coordinator owns the account registry, the cloud-level store, the
// relayer/chain caches, and the submit queue transfers are enqueued
// onto.
type Coordinator struct {
	store       *kv.Store
	registry    *registry
	relayer     *relayercache.Cache
	chain       *chaincache.Cache
	submitQueue *queue.Queue
	statusQueue *queue.Queue
	reportQueue *queue.Queue
	params      *walletcrypto.Params
	log         *logrus.Entry

	feeMu   sync.RWMutex
	lastFee uint64
	haveFee atomic.Bool
}

// New builds a Coordinator. accountsDir is the root under which each
// account gets its own bbolt database.
func New(store *kv.Store, accountsDir string, relayer *relayercache.Cache, chain *chaincache.Cache, submitQueue, statusQueue, reportQueue *queue.Queue, params *walletcrypto.Params, log *logrus.Entry) *Coordinator {
	return &Coordinator{
		store: store, registry: newRegistry(accountsDir),
		relayer: relayer, chain: chain,
		submitQueue: submitQueue, statusQueue: statusQueue, reportQueue: reportQueue,
		params: params, log: log,
	}
}

// getAccount resolves id against the registry database before loading
// a handle, so a lookup for an unknown id fails cleanly instead of
// creating an empty account store under accounts_data/.
func (c *Coordinator) getAccount(id string) (*account.Account, Release, error) {
	if _, ok, err := c.loadAccountMeta(id); err != nil {
		return nil, nil, err
	} else if !ok {
		return nil, nil, apperr.New(apperr.CodeAccountNotFound, id)
	}
	return c.registry.get(id)
}

// RelayerFee returns the relayer's current fee, falling back to the
// last known-good value when the relayer is unreachable.
func (c *Coordinator) RelayerFee(ctx context.Context) (uint64, error) {
	fee, err := c.relayer.Fee(ctx)
	if err != nil {
		if c.haveFee.Load() {
			c.feeMu.RLock()
			defer c.feeMu.RUnlock()
			return c.lastFee, nil
		}
		return 0, err
	}
	c.feeMu.Lock()
	c.lastFee = fee
	c.feeMu.Unlock()
	c.haveFee.Store(true)
	return fee, nil
}
