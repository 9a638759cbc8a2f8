package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/synnergy-network/zkbob-cloud/internal/account"
	"github.com/synnergy-network/zkbob-cloud/internal/coordinator"
	"github.com/synnergy-network/zkbob-cloud/internal/domain"
	"github.com/synnergy-network/zkbob-cloud/internal/queue"
)

// ReportWorker drains the report queue, building a fleet-wide balance
// snapshot for each report task. Every account is synced to the same
// frozen pool index, taken from a single relayer info call, so the
// report is a consistent point-in-time view.
type ReportWorker struct {
	coord       *coordinator.Coordinator
	log         *logrus.Entry
	maxAttempts uint32
	stop        chan struct{}
	done        chan struct{}
}

// NewReportWorker builds a ReportWorker.
func NewReportWorker(coord *coordinator.Coordinator, log *logrus.Entry, maxAttempts uint32) *ReportWorker {
	return &ReportWorker{coord: coord, log: log, maxAttempts: maxAttempts, stop: make(chan struct{}), done: make(chan struct{})}
}

// Start launches the worker's background loop.
func (w *ReportWorker) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Stop requests the loop exit and waits for it to do so.
func (w *ReportWorker) Stop() {
	close(w.stop)
	<-w.done
}

func (w *ReportWorker) loop(ctx context.Context) {
	defer close(w.done)
	q := w.coord.ReportQueueHandle()
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		msg, err := queue.ReceiveBlocking(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.WithError(err).Error("report worker: receive")
			continue
		}
		id, err := queue.DecodePayload[string](msg.Payload)
		if err != nil {
			w.log.WithError(err).Error("report worker: decode payload")
			continue
		}

		result := w.process(ctx, id)
		if result.update != nil {
			if err := w.coord.SaveReportTask(*result.update); err != nil {
				w.log.WithError(err).Error("report worker: save task")
				continue
			}
		}
		if result.delete {
			if err := q.Delete(ctx, msg.Handle); err != nil {
				w.log.WithError(err).Error("report worker: delete message")
			}
		}
	}
}

type reportResult struct {
	delete bool
	update *domain.ReportTask
}

func (w *ReportWorker) process(ctx context.Context, id string) reportResult {
	task, err := w.coord.Report(id)
	if err != nil {
		w.log.WithField("report", id).WithError(err).Warn("report worker: task missing")
		return reportResult{delete: true}
	}

	ids, err := w.coord.AccountIDs()
	if err != nil {
		w.log.WithField("report", id).WithError(err).Warn("report worker: list accounts")
		return w.errorWithRetryAttempts(task)
	}

	info, err := w.coord.Relayer().Info(ctx)
	if err != nil {
		w.log.WithField("report", id).WithError(err).Warn("report worker: relayer info")
		return w.errorWithRetryAttempts(task)
	}
	toIndex := info.DeltaIndex

	fee, err := w.coord.RelayerFee(ctx)
	if err != nil {
		w.log.WithField("report", id).WithError(err).Warn("report worker: relayer fee")
		return w.errorWithRetryAttempts(task)
	}

	entries := make([]domain.AccountReportEntry, 0, len(ids))
	for i, accountID := range ids {
		var entry domain.AccountReportEntry
		syncErr := w.coord.WithAccount(accountID, func(acct *account.Account) error {
			if err := acct.Sync(ctx, w.coord.Relayer(), &toIndex); err != nil {
				return err
			}
			info := acct.Info(fee)
			entry = domain.AccountReportEntry{
				ID: info.ID, Description: info.Description, Balance: info.Balance,
				MaxTransferAmount: info.MaxTransferAmount, Address: info.Address,
				SK: acct.ExportKey(),
			}
			return nil
		})
		if syncErr != nil {
			w.log.WithField("report", id).WithError(syncErr).Warn("report worker: sync account " + accountID)
			return w.errorWithRetryAttempts(task)
		}
		entries = append(entries, entry)
		if i%10 == 0 {
			w.log.WithField("report", id).Infof("%d%% processed", i*100/max(len(ids), 1))
		}
	}

	report := domain.Report{Timestamp: time.Now().Unix(), PoolIndex: toIndex, Accounts: entries}
	done := task
	done.Status = domain.ReportCompleted
	done.Report = &report
	return reportResult{delete: true, update: &done}
}

func (w *ReportWorker) errorWithRetryAttempts(task domain.ReportTask) reportResult {
	if task.Attempt >= w.maxAttempts {
		failed := task
		failed.Status = domain.ReportFailed
		return reportResult{delete: true, update: &failed}
	}
	retried := task
	retried.Attempt++
	return reportResult{delete: false, update: &retried}
}
