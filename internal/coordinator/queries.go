package coordinator

import (
	"context"

	"github.com/google/uuid"

	"github.com/synnergy-network/zkbob-cloud/internal/account"
	"github.com/synnergy-network/zkbob-cloud/internal/apperr"
	"github.com/synnergy-network/zkbob-cloud/internal/domain"
	"github.com/synnergy-network/zkbob-cloud/internal/queue"
)

// Account loads, syncs, and summarises an account for GET /account.
func (c *Coordinator) Account(ctx context.Context, id string) (domain.AccountShortInfo, error) {
	acct, release, err := c.getAccount(id)
	if err != nil {
		return domain.AccountShortInfo{}, err
	}
	defer release()

	if err := acct.Sync(ctx, c.relayer, nil); err != nil {
		return domain.AccountShortInfo{}, err
	}
	fee, err := c.RelayerFee(ctx)
	if err != nil {
		return domain.AccountShortInfo{}, err
	}
	return acct.Info(fee), nil
}

// GenerateAddress derives a fresh address for an account.
func (c *Coordinator) GenerateAddress(id string) (string, error) {
	acct, release, err := c.getAccount(id)
	if err != nil {
		return "", err
	}
	defer release()
	return string(acct.GenerateAddress()), nil
}

// ExportKey returns an account's hex secret key.
func (c *Coordinator) ExportKey(id string) (string, error) {
	acct, release, err := c.getAccount(id)
	if err != nil {
		return "", err
	}
	defer release()
	return acct.ExportKey(), nil
}

// History syncs and classifies an account's full transaction history.
// Each record's tx-hash is resolved back to the transfer request that
// produced it, when this instance produced it — the lookup is best
// effort, since deposits and inbound transfers have no local request.
func (c *Coordinator) History(ctx context.Context, id string) ([]domain.HistoryTx, error) {
	acct, release, err := c.getAccount(id)
	if err != nil {
		return nil, err
	}
	defer release()
	if err := acct.Sync(ctx, c.relayer, nil); err != nil {
		return nil, err
	}
	txs, err := acct.History(ctx, c.chain)
	if err != nil {
		return nil, err
	}
	for i := range txs {
		requestID, ok, err := c.lookupTransactionID(txs[i].TxHash)
		if err != nil || !ok {
			continue
		}
		rid := requestID
		txs[i].TransactionID = &rid
	}
	return txs, nil
}

// CalculateFee reports how many shielded transactions a transfer of
// amount would need and their total fee, for GET /calculateFee.
func (c *Coordinator) CalculateFee(ctx context.Context, accountID string, amount uint64) (transactionCount int, totalFee uint64, err error) {
	acct, release, err := c.getAccount(accountID)
	if err != nil {
		return 0, 0, err
	}
	defer release()
	if err := acct.Sync(ctx, c.relayer, nil); err != nil {
		return 0, 0, err
	}
	fee, err := c.RelayerFee(ctx)
	if err != nil {
		return 0, 0, err
	}
	parts, err := acct.GetTxParts(amount, fee, "")
	if err != nil {
		return 0, 0, err
	}
	return len(parts), fee * uint64(len(parts)), nil
}

// GenerateReport creates a new report task and enqueues it for the
// report worker.
func (c *Coordinator) GenerateReport(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if err := c.saveReportTask(domain.ReportTask{ID: id, Status: domain.ReportNew}); err != nil {
		return "", err
	}
	payload, err := queue.EncodePayload(id)
	if err != nil {
		return "", err
	}
	if err := c.reportQueue.Enqueue(ctx, payload); err != nil {
		return "", apperr.Wrap(apperr.CodeInternal, err, "coordinator: enqueue report")
	}
	return id, nil
}

// Report returns a report task's current state for GET /report.
func (c *Coordinator) Report(id string) (domain.ReportTask, error) {
	t, ok, err := c.loadReportTask(id)
	if err != nil {
		return domain.ReportTask{}, err
	}
	if !ok {
		return domain.ReportTask{}, apperr.New(apperr.CodeReportNotFound, id)
	}
	return t, nil
}

// CleanReports wipes the reports column.
func (c *Coordinator) CleanReports() error { return c.cleanReports() }

// SaveReportTask persists a report task's updated state, used by the
// report worker to record progress and the final result.
func (c *Coordinator) SaveReportTask(t domain.ReportTask) error { return c.saveReportTask(t) }

// AccountIDs lists every known account id, used by the report worker
// to snapshot the whole fleet.
func (c *Coordinator) AccountIDs() ([]string, error) {
	metas, err := c.listAccountMetas()
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(metas))
	for i, m := range metas {
		ids[i] = m.ID
	}
	return ids, nil
}

// RecoverPendingParts re-enqueues every persisted part whose status is
// not terminal. A part surviving a crash between saveTaskAndParts and
// the matching Enqueue call would otherwise sit in storage forever
// with no worker ever picking it up. Called once at process startup,
// before the workers start polling; a duplicate enqueue for a part the
// queue already holds is harmless, since processing is idempotent on
// status.
func (c *Coordinator) RecoverPendingParts(ctx context.Context) error {
	parts, err := c.allParts()
	if err != nil {
		return err
	}
	for _, p := range parts {
		var q *queue.Queue
		switch p.Status.Stage {
		case domain.StageNew:
			q = c.submitQueue
		case domain.StageRelaying, domain.StageMining:
			q = c.statusQueue
		default:
			continue
		}
		payload, err := queue.EncodePayload(p.ID)
		if err != nil {
			return err
		}
		if err := q.Enqueue(ctx, payload); err != nil {
			return apperr.Wrap(apperr.CodeInternal, err, "coordinator: recover "+p.ID)
		}
	}
	return nil
}

// WithAccount loads id and runs fn against it, releasing the handle
// afterward regardless of fn's outcome. Used by the report worker to
// avoid holding the registry lock across a fleet-wide scan.
func (c *Coordinator) WithAccount(id string, fn func(acct *account.Account) error) error {
	a, release, err := c.getAccount(id)
	if err != nil {
		return err
	}
	defer release()
	return fn(a)
}
