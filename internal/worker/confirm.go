package worker

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/synnergy-network/zkbob-cloud/internal/apperr"
	"github.com/synnergy-network/zkbob-cloud/internal/coordinator"
	"github.com/synnergy-network/zkbob-cloud/internal/domain"
	"github.com/synnergy-network/zkbob-cloud/internal/queue"
	"github.com/synnergy-network/zkbob-cloud/internal/relayerclient"
)

// ConfirmWorker drains the status queue, polling the relayer for each
// relaying part's job state until it lands or fails. Like the submit
// worker, it processes messages concurrently behind an in-flight id
// set so the same part is never polled twice at once.
type ConfirmWorker struct {
	coord       *coordinator.Coordinator
	log         *logrus.Entry
	maxAttempts uint32
	stop        chan struct{}
	done        chan struct{}

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup
}

// NewConfirmWorker builds a ConfirmWorker. maxAttempts bounds how many
// times a transient relayer error (network failure, timeout) gets
// retried before the part is marked Failed.
func NewConfirmWorker(coord *coordinator.Coordinator, log *logrus.Entry, maxAttempts uint32) *ConfirmWorker {
	return &ConfirmWorker{
		coord: coord, log: log, maxAttempts: maxAttempts,
		stop: make(chan struct{}), done: make(chan struct{}),
		inFlight: map[string]struct{}{},
	}
}

// Start launches the worker's background loop.
func (w *ConfirmWorker) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Stop requests the loop exit and waits for it and every in-flight
// part to finish.
func (w *ConfirmWorker) Stop() {
	close(w.stop)
	<-w.done
	w.wg.Wait()
}

func (w *ConfirmWorker) begin(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inFlight[id]; busy {
		return false
	}
	w.inFlight[id] = struct{}{}
	return true
}

func (w *ConfirmWorker) end(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inFlight, id)
}

func (w *ConfirmWorker) loop(ctx context.Context) {
	defer close(w.done)
	q := w.coord.StatusQueue()
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
			w.log.WithError(err).Error("confirm worker: receive")
			continue
		}
		partID, err := queue.DecodePayload[string](msg.Payload)
		if err != nil {
			w.log.WithError(err).Error("confirm worker: decode payload")
			continue
		}
		if !w.begin(partID) {
			continue
		}

		w.wg.Add(1)
		go func(msg queue.Message, partID string) {
			defer w.wg.Done()
			defer w.end(partID)

			result := w.processPart(ctx, partID)
			if result.update != nil {
				if err := w.coord.SavePart(*result.update); err != nil {
					w.log.WithError(err).Error("confirm worker: save part")
					return
				}
				if result.update.Status.Stage == domain.StageDone && result.update.TxHash != nil {
					// Best effort: a failed index write is logged, never
					// surfaced — the part itself is already Done.
					if err := w.coord.IndexTransactionID(*result.update.TxHash, result.update.RequestID); err != nil {
						w.log.WithError(err).Error("confirm worker: index transaction id")
					}
				}
			}
			if result.delete {
				if err := q.Delete(ctx, msg.Handle); err != nil {
					w.log.WithError(err).Error("confirm worker: delete message")
				}
			}
		}(msg, partID)
	}
}

type confirmResult struct {
	delete bool
	update *domain.TransferPart
}

func (w *ConfirmWorker) processPart(ctx context.Context, partID string) confirmResult {
	part, ok, err := w.coord.Part(partID)
	if err != nil || !ok {
		return confirmResult{delete: true}
	}
	if (part.Status.Stage != domain.StageRelaying && part.Status.Stage != domain.StageMining) || part.JobID == nil {
		return confirmResult{delete: true}
	}

	status, err := w.coord.Relayer().Job(ctx, *part.JobID)
	if err != nil {
		return w.errorWithRetryAttempts(part, err)
	}

	switch status.State {
	case relayerclient.JobCompleted:
		if status.TxHash == "" {
			// Completed but the relayer has not reported the hash yet;
			// poll again rather than finalise without it.
			return w.errorWithRetryAttempts(part, apperr.New(apperr.CodeRelayerSendError, "job completed without tx hash"))
		}
		done := part
		done.Status = domain.Done()
		txHash := status.TxHash
		done.TxHash = &txHash
		return confirmResult{delete: true, update: &done}
	case relayerclient.JobFailed, relayerclient.JobReverted:
		reason := apperr.CodeTaskRejectedByRelayer.String()
		if status.Reason != "" {
			reason += ": " + status.Reason
		}
		failed := part
		failed.Status = domain.Failed(reason)
		if status.TxHash != "" {
			txHash := status.TxHash
			failed.TxHash = &txHash
		}
		return confirmResult{delete: true, update: &failed}
	case relayerclient.JobSent:
		if part.Status.Stage == domain.StageMining && part.TxHash != nil && *part.TxHash == status.TxHash {
			return confirmResult{delete: false}
		}
		mining := part
		mining.Status = domain.Mining()
		txHash := status.TxHash
		mining.TxHash = &txHash
		return confirmResult{delete: false, update: &mining}
	case relayerclient.JobWaiting:
		// Still queued at the relayer: nothing changed, leave the
		// message invisible until the visibility window elapses.
		return confirmResult{delete: false}
	default:
		failed := part
		failed.Status = domain.Failed(apperr.CodeRelayerSendError.String() + ": unknown job state " + string(status.State))
		return confirmResult{delete: true, update: &failed}
	}
}

func (w *ConfirmWorker) errorWithRetryAttempts(part domain.TransferPart, err error) confirmResult {
	if part.Attempt >= w.maxAttempts {
		failed := part
		failed.Status = domain.Failed(apperr.CodeOf(err).String())
		return confirmResult{delete: true, update: &failed}
	}
	retried := part
	retried.Attempt++
	return confirmResult{delete: false, update: &retried}
}
