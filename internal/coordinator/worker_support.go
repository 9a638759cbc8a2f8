package coordinator

import (
	"context"

	"github.com/synnergy-network/zkbob-cloud/internal/chaincache"
	"github.com/synnergy-network/zkbob-cloud/internal/domain"
	"github.com/synnergy-network/zkbob-cloud/internal/queue"
	"github.com/synnergy-network/zkbob-cloud/internal/relayercache"
	"github.com/synnergy-network/zkbob-cloud/internal/walletcrypto"
)

// This file exposes the narrow surface internal/worker needs: queue
// handles, the relayer/chain collaborators, and the task/part storage
// primitives from db.go, without handing workers the whole Coordinator
// internals.

// SubmitQueue is the queue submit parts are received from (C8).
func (c *Coordinator) SubmitQueue() *queue.Queue { return c.submitQueue }

// StatusQueue is the queue relaying parts are polled from (C9).
func (c *Coordinator) StatusQueue() *queue.Queue { return c.statusQueue }

// ReportQueueHandle is the queue report task ids are received from (C10).
func (c *Coordinator) ReportQueueHandle() *queue.Queue { return c.reportQueue }

// Relayer exposes the relayer cache for workers that need Job/Send
// beyond the read paths Account/History/CalculateFee already cover.
func (c *Coordinator) Relayer() *relayercache.Cache { return c.relayer }

// Chain exposes the chain metadata cache for workers classifying
// confirmed transactions.
func (c *Coordinator) Chain() *chaincache.Cache { return c.chain }

// Part loads a single transfer part by id.
func (c *Coordinator) Part(id string) (domain.TransferPart, bool, error) {
	return c.loadPart(id)
}

// SavePart persists an updated transfer part.
func (c *Coordinator) SavePart(p domain.TransferPart) error {
	return c.savePart(p)
}

// IndexTransactionID records the requestID a confirmed tx hash belongs
// to, so Coordinator.History can attach that requestID to the record.
func (c *Coordinator) IndexTransactionID(txHash, requestID string) error {
	return c.indexTransactionID(txHash, requestID)
}

// LookupTransactionID resolves a confirmed tx hash back to the
// requestID that produced it, used by GET /history to fold aggregate
// parts into the record of the request that owns them.
func (c *Coordinator) LookupTransactionID(txHash string) (string, bool, error) {
	return c.lookupTransactionID(txHash)
}

// CreateTransferProof loads accountID, builds a proof-ready transaction
// against current + optimistic state, and releases the account handle
// before returning, so the account is resident only for the duration
// of proof construction.
func (c *Coordinator) CreateTransferProof(ctx context.Context, accountID string, amount uint64, to *string, fee uint64) (walletcrypto.ProofInputs, walletcrypto.Proof, []byte, error) {
	acct, release, err := c.getAccount(accountID)
	if err != nil {
		return walletcrypto.ProofInputs{}, nil, nil, err
	}
	defer release()
	return acct.CreateTransfer(ctx, amount, to, fee, c.params, c.relayer)
}
