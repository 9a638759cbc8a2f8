package worker

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synnergy-network/zkbob-cloud/internal/domain"
	"github.com/synnergy-network/zkbob-cloud/internal/relayerclient"
)

// A relaying part whose job reports "sent" must land on Mining with a
// tx-hash, not jump straight to Done, and must stay in the queue for
// further polling.
func TestConfirmWorkerSentTransitionsToMining(t *testing.T) {
	c := newTestCoordinator(t, fakeRelayer{job: relayerclient.JobStatus{State: relayerclient.JobSent, TxHash: "0xsent"}})
	w := NewConfirmWorker(c, logrus.NewEntry(logrus.New()), 3)

	jobID := "job-1"
	part := domain.TransferPart{ID: "req-1.0", RequestID: "req-1", AccountID: "a1", Amount: 10, Status: domain.Relaying(), JobID: &jobID}
	require.NoError(t, c.SavePart(part))

	result := w.processPart(context.Background(), part.ID)
	require.False(t, result.delete, "a part still mining must stay in the queue for further polling")
	require.NotNil(t, result.update)
	assert.Equal(t, domain.StageMining, result.update.Status.Stage)
	require.NotNil(t, result.update.TxHash)
	assert.Equal(t, "0xsent", *result.update.TxHash)
}

// Once a part is already Mining with the reported tx-hash, a repeated
// "sent" poll must not trigger another save.
func TestConfirmWorkerSkipsResaveOnRepeatedSent(t *testing.T) {
	c := newTestCoordinator(t, fakeRelayer{job: relayerclient.JobStatus{State: relayerclient.JobSent, TxHash: "0xsent"}})
	w := NewConfirmWorker(c, logrus.NewEntry(logrus.New()), 3)

	jobID := "job-1"
	txHash := "0xsent"
	part := domain.TransferPart{ID: "req-2.0", RequestID: "req-2", AccountID: "a1", Amount: 10, Status: domain.Mining(), JobID: &jobID, TxHash: &txHash}
	require.NoError(t, c.SavePart(part))

	result := w.processPart(context.Background(), part.ID)
	assert.False(t, result.delete)
	assert.Nil(t, result.update)
}

// "completed" finalises the part only when the relayer also reports
// the mined tx-hash; without it the poll is retried.
func TestConfirmWorkerCompletedNeedsTxHash(t *testing.T) {
	c := newTestCoordinator(t, fakeRelayer{job: relayerclient.JobStatus{State: relayerclient.JobCompleted}})
	w := NewConfirmWorker(c, logrus.NewEntry(logrus.New()), 3)

	jobID := "job-1"
	part := domain.TransferPart{ID: "req-3.0", RequestID: "req-3", AccountID: "a1", Amount: 10, Status: domain.Relaying(), JobID: &jobID}
	require.NoError(t, c.SavePart(part))

	result := w.processPart(context.Background(), part.ID)
	assert.False(t, result.delete)
	require.NotNil(t, result.update)
	assert.NotEqual(t, domain.StageDone, result.update.Status.Stage)
	assert.Equal(t, uint32(1), result.update.Attempt)
}

func TestConfirmWorkerCompletedWithTxHashIsDone(t *testing.T) {
	c := newTestCoordinator(t, fakeRelayer{job: relayerclient.JobStatus{State: relayerclient.JobCompleted, TxHash: "0xdone"}})
	w := NewConfirmWorker(c, logrus.NewEntry(logrus.New()), 3)

	jobID := "job-1"
	part := domain.TransferPart{ID: "req-4.0", RequestID: "req-4", AccountID: "a1", Amount: 10, Status: domain.Mining(), JobID: &jobID}
	require.NoError(t, c.SavePart(part))

	result := w.processPart(context.Background(), part.ID)
	assert.True(t, result.delete)
	require.NotNil(t, result.update)
	assert.Equal(t, domain.StageDone, result.update.Status.Stage)
	require.NotNil(t, result.update.TxHash)
	assert.Equal(t, "0xdone", *result.update.TxHash)
}

// A reverted job terminally fails the part, carrying the relayer's
// reason and, when present, the tx-hash of the reverted transaction.
func TestConfirmWorkerRevertedFailsWithReason(t *testing.T) {
	c := newTestCoordinator(t, fakeRelayer{job: relayerclient.JobStatus{State: relayerclient.JobReverted, TxHash: "0xrev", Reason: "out of gas"}})
	w := NewConfirmWorker(c, logrus.NewEntry(logrus.New()), 3)

	jobID := "job-1"
	part := domain.TransferPart{ID: "req-5.0", RequestID: "req-5", AccountID: "a1", Amount: 10, Status: domain.Mining(), JobID: &jobID}
	require.NoError(t, c.SavePart(part))

	result := w.processPart(context.Background(), part.ID)
	assert.True(t, result.delete)
	require.NotNil(t, result.update)
	assert.Equal(t, domain.StageFailed, result.update.Status.Stage)
	assert.Contains(t, result.update.Status.Reason, "TaskRejectedByRelayer")
	assert.Contains(t, result.update.Status.Reason, "out of gas")
	require.NotNil(t, result.update.TxHash)
	assert.Equal(t, "0xrev", *result.update.TxHash)
}

// Redelivery of a message for a terminal part is acknowledged without
// any state change.
func TestConfirmWorkerIdempotentOnTerminalPart(t *testing.T) {
	c := newTestCoordinator(t, fakeRelayer{job: relayerclient.JobStatus{State: relayerclient.JobCompleted, TxHash: "0xdone"}})
	w := NewConfirmWorker(c, logrus.NewEntry(logrus.New()), 3)

	jobID := "job-1"
	txHash := "0xdone"
	part := domain.TransferPart{ID: "req-6.0", RequestID: "req-6", AccountID: "a1", Amount: 10, Status: domain.Done(), JobID: &jobID, TxHash: &txHash}
	require.NoError(t, c.SavePart(part))

	result := w.processPart(context.Background(), part.ID)
	assert.True(t, result.delete)
	assert.Nil(t, result.update)
}
