// Command zkbobcloud runs the custodial cloud wallet: it wires the
// key-value stores, work queues, relayer/chain caches, the account
// coordinator, the three background workers, and the HTTP surface,
// then serves until interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/synnergy-network/zkbob-cloud/internal/chaincache"
	"github.com/synnergy-network/zkbob-cloud/internal/chainclient"
	"github.com/synnergy-network/zkbob-cloud/internal/config"
	"github.com/synnergy-network/zkbob-cloud/internal/coordinator"
	"github.com/synnergy-network/zkbob-cloud/internal/httpapi"
	"github.com/synnergy-network/zkbob-cloud/internal/kv"
	"github.com/synnergy-network/zkbob-cloud/internal/queue"
	"github.com/synnergy-network/zkbob-cloud/internal/relayercache"
	"github.com/synnergy-network/zkbob-cloud/internal/relayerclient"
	"github.com/synnergy-network/zkbob-cloud/internal/txparser"
	"github.com/synnergy-network/zkbob-cloud/internal/walletcrypto"
	"github.com/synnergy-network/zkbob-cloud/internal/worker"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	entry := logrus.NewEntry(log)

	if err := run(entry); err != nil {
		entry.WithError(err).Fatal("zkbobcloud: fatal")
	}
}

func run(log *logrus.Entry) error {
	cfg, err := config.Load(os.Getenv("ZKBOB_CLOUD_ENV_FILE"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := kv.Open(kv.Options{Path: filepath.Join(cfg.DBPath, "cloud", "cloud.db"), Columns: coordinator.Columns})
	if err != nil {
		return err
	}
	defer store.Close()

	relayerHTTP := relayerclient.New(cfg.RelayerURL)
	relayerStore, err := kv.Open(kv.Options{Path: filepath.Join(cfg.DBPath, "relayer_cache", "relayer.db"), Columns: []kv.Column{relayercache.Column}})
	if err != nil {
		return err
	}
	defer relayerStore.Close()
	relayer := relayercache.New(relayerHTTP, relayerStore, log)

	chainHTTP := chainclient.New(cfg.Web3.RPCURL)
	if poolID, err := chainHTTP.PoolID(ctx); err != nil {
		log.WithError(err).Warn("zkbobcloud: pool id unavailable at startup")
	} else {
		log.WithField("pool_id", poolID).Info("zkbobcloud: connected to pool")
	}
	chainStore, err := kv.Open(kv.Options{Path: filepath.Join(cfg.DBPath, "web3_cache", "web3.db"), Columns: []kv.Column{chaincache.Column}})
	if err != nil {
		return err
	}
	defer chainStore.Close()
	chain := chaincache.New(chainHTTP, txparser.CalldataDecoder{}, chainStore)

	params, err := walletcrypto.LoadParams(cfg.TransferParamsPath)
	if err != nil {
		return err
	}

	submitQueue, err := queue.New(ctx, cfg.RedisURL, "submit", time.Duration(cfg.SendWorker.QueueDelaySec)*time.Second, time.Duration(cfg.SendWorker.QueueHiddenSec)*time.Second)
	if err != nil {
		return err
	}
	defer submitQueue.Close()

	statusQueue, err := queue.New(ctx, cfg.RedisURL, "status", time.Duration(cfg.StatusWorker.QueueDelaySec)*time.Second, time.Duration(cfg.StatusWorker.QueueHiddenSec)*time.Second)
	if err != nil {
		return err
	}
	defer statusQueue.Close()

	reportQueue, err := queue.New(ctx, cfg.RedisURL, "report", 0, 30*time.Second)
	if err != nil {
		return err
	}
	defer reportQueue.Close()

	accountsDir := filepath.Join(cfg.DBPath, "accounts_data")
	coord := coordinator.New(store, accountsDir, relayer, chain, submitQueue, statusQueue, reportQueue, params, log)

	if err := coord.RecoverPendingParts(ctx); err != nil {
		return err
	}

	submitWorker := worker.NewSubmitWorker(coord, log.WithField("worker", "submit"), uint32(cfg.SendWorker.MaxAttempts))
	confirmWorker := worker.NewConfirmWorker(coord, log.WithField("worker", "confirm"), uint32(cfg.StatusWorker.MaxAttempts))
	reportWorker := worker.NewReportWorker(coord, log.WithField("worker", "report"), uint32(cfg.SendWorker.MaxAttempts))

	submitWorker.Start(ctx)
	confirmWorker.Start(ctx)
	reportWorker.Start(ctx)

	server := httpapi.New(coord, cfg, log)
	log.WithField("addr", cfg.Host).Info("zkbobcloud: listening")
	if err := server.ListenAndServe(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	submitWorker.Stop()
	confirmWorker.Stop()
	reportWorker.Stop()
	return nil
}
