// Package worker implements the three background processors that drive
// transfers to completion: the submit worker proves and relays new
// parts, the confirm worker polls relayed parts until they mine or
// fail, and the report worker builds fleet-wide balance snapshots.
// Each is a small struct with a background loop started once and
// stopped through a close-only channel.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/synnergy-network/zkbob-cloud/internal/apperr"
	"github.com/synnergy-network/zkbob-cloud/internal/coordinator"
	"github.com/synnergy-network/zkbob-cloud/internal/domain"
	"github.com/synnergy-network/zkbob-cloud/internal/queue"
)

// SubmitWorker drains the submit queue, building and relaying one
// shielded transaction per part. Messages are processed concurrently,
// but the in-flight set guarantees the same part id is never processed
// twice at once; the queue's per-message visibility provides the same
// guarantee across process restarts.
type SubmitWorker struct {
	coord       *coordinator.Coordinator
	log         *logrus.Entry
	maxAttempts uint32
	stop        chan struct{}
	done        chan struct{}

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup
}

// NewSubmitWorker builds a SubmitWorker over coord. maxAttempts bounds
// how many times a transient failure (relayer, account store, prover)
// gets retried before the part is marked Failed.
func NewSubmitWorker(coord *coordinator.Coordinator, log *logrus.Entry, maxAttempts uint32) *SubmitWorker {
	return &SubmitWorker{
		coord: coord, log: log, maxAttempts: maxAttempts,
		stop: make(chan struct{}), done: make(chan struct{}),
		inFlight: map[string]struct{}{},
	}
}

// Start launches the worker's background loop.
func (w *SubmitWorker) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Stop requests the loop exit and waits for it and every in-flight
// part to finish.
func (w *SubmitWorker) Stop() {
	close(w.stop)
	<-w.done
	w.wg.Wait()
}

// begin claims id for processing. It reports false when another
// goroutine already holds it, in which case the message is left alone
// and redelivered after its visibility window.
func (w *SubmitWorker) begin(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inFlight[id]; busy {
		return false
	}
	w.inFlight[id] = struct{}{}
	return true
}

func (w *SubmitWorker) end(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inFlight, id)
}

func (w *SubmitWorker) loop(ctx context.Context) {
	defer close(w.done)
	q := w.coord.SubmitQueue()
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
			w.log.WithError(err).Error("submit worker: receive")
			continue
		}
		partID, err := queue.DecodePayload[string](msg.Payload)
		if err != nil {
			w.log.WithError(err).Error("submit worker: decode payload")
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
					w.log.WithError(err).Error("submit worker: save part")
					return
				}
			}
			if result.delete {
				if err := q.Delete(ctx, msg.Handle); err != nil {
					w.log.WithError(err).Error("submit worker: delete message")
				}
			}
		}(msg, partID)
	}
}

// submitResult is the outcome of one processing pass: delete controls
// whether the queue message is acknowledged, update (if non-nil) is
// persisted regardless. A message left undeleted reappears after its
// visibility window, which is how retries are scheduled.
type submitResult struct {
	delete bool
	update *domain.TransferPart
}

func (w *SubmitWorker) processPart(ctx context.Context, partID string) submitResult {
	part, ok, err := w.coord.Part(partID)
	if err != nil || !ok {
		return submitResult{delete: true}
	}

	switch part.Status.Stage {
	case domain.StageNew:
		// fall through to processing
	case domain.StageRelaying, domain.StageMining:
		// Already submitted by a previous delivery of this message; the
		// confirm worker owns it from here.
		if err := enqueueStatusCheck(ctx, w.coord, part.ID); err != nil {
			w.log.WithError(err).Error("submit worker: enqueue status check")
			return submitResult{delete: false}
		}
		return submitResult{delete: true}
	default:
		return submitResult{delete: true}
	}

	if part.DependsOn != nil {
		dep, ok, err := w.coord.Part(*part.DependsOn)
		if err != nil {
			return w.errorWithRetryAttempts(part, err)
		}
		if !ok {
			failed := part
			failed.Status = domain.Failed(apperr.CodePreviousTxFailed.String())
			return submitResult{delete: true, update: &failed}
		}
		switch dep.Status.Stage {
		case domain.StageFailed:
			failed := part
			failed.Status = domain.Failed(apperr.CodePreviousTxFailed.String())
			return submitResult{delete: true, update: &failed}
		case domain.StageMining, domain.StageDone:
			// predecessor accepted on-chain or mined; proceed
		default:
			// predecessor still new or merely relaying: leave the message
			// for a later delivery
			return submitResult{delete: false}
		}
	}

	w.log.WithFields(logrus.Fields{
		"request_id": part.RequestID,
		"part_id":    part.ID,
		"account_id": part.AccountID,
	}).Info("proving transfer part")

	inputs, proof, memo, err := w.coord.CreateTransferProof(ctx, part.AccountID, part.Amount, part.To, part.Fee)
	if err != nil {
		return w.errorWithRetryAttempts(part, err)
	}

	jobID, err := w.coord.Relayer().Send(ctx, buildTransactionRequest(inputs, proof, memo))
	if err != nil {
		return w.errorWithRetryAttempts(part, err)
	}

	relaying := part
	relaying.Status = domain.Relaying()
	relaying.JobID = &jobID
	relaying.Attempt = 0
	relaying.Timestamp = time.Now().Unix()

	if err := enqueueStatusCheck(ctx, w.coord, relaying.ID); err != nil {
		w.log.WithError(err).Error("submit worker: enqueue status check")
	}
	return submitResult{delete: true, update: &relaying}
}

// errorWithRetryAttempts counts one more failed attempt against part.
// Below the bound the part row records the attempt and the message is
// left for redelivery; at the bound the part is terminally Failed.
func (w *SubmitWorker) errorWithRetryAttempts(part domain.TransferPart, err error) submitResult {
	if part.Attempt >= w.maxAttempts {
		failed := part
		failed.Status = domain.Failed(apperr.CodeOf(err).String())
		return submitResult{delete: true, update: &failed}
	}
	retried := part
	retried.Attempt++
	return submitResult{delete: false, update: &retried}
}

func enqueueStatusCheck(ctx context.Context, coord *coordinator.Coordinator, partID string) error {
	payload, err := queue.EncodePayload(partID)
	if err != nil {
		return err
	}
	return coord.StatusQueue().Enqueue(ctx, payload)
}
