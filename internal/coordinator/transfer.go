package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/synnergy-network/zkbob-cloud/internal/account"
	"github.com/synnergy-network/zkbob-cloud/internal/apperr"
	"github.com/synnergy-network/zkbob-cloud/internal/domain"
	"github.com/synnergy-network/zkbob-cloud/internal/queue"
)

// Transfer validates and admits a transfer request, syncing the
// account, planning its parts, persisting the task and parts
// atomically, and enqueuing each part id in order.
func (c *Coordinator) Transfer(ctx context.Context, req domain.TransferRequest) (string, error) {
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	if !domain.ValidateRequestID(requestID) {
		return "", apperr.New(apperr.CodeInvalidTransactionID, requestID)
	}
	if exists, err := c.taskExists(requestID); err != nil {
		return "", err
	} else if exists {
		return "", apperr.New(apperr.CodeDuplicateTransactionID, requestID)
	}

	acct, release, err := c.getAccount(req.AccountID)
	if err != nil {
		return "", err
	}
	defer release()

	if err := acct.Sync(ctx, c.relayer, nil); err != nil {
		return "", err
	}

	fee, err := c.RelayerFee(ctx)
	if err != nil {
		return "", err
	}
	plan, err := acct.GetTxParts(req.Amount, fee, req.To)
	if err != nil {
		return "", err
	}

	task, parts := buildTaskAndParts(requestID, req.AccountID, fee, plan)
	if err := c.saveTaskAndParts(task, parts); err != nil {
		return "", err
	}
	for _, p := range parts {
		payload, err := queue.EncodePayload(p.ID)
		if err != nil {
			return "", err
		}
		if err := c.submitQueue.Enqueue(ctx, payload); err != nil {
			return "", apperr.Wrap(apperr.CodeInternal, err, "coordinator: enqueue "+p.ID)
		}
	}
	return requestID, nil
}

func buildTaskAndParts(requestID, accountID string, fee uint64, plan []account.PlannedPart) (domain.TransferTask, []domain.TransferPart) {
	parts := make([]domain.TransferPart, len(plan))
	partIDs := make([]string, len(plan))
	now := time.Now().Unix()
	var prevID *string
	for i, p := range plan {
		id := domain.PartID(requestID, i)
		partIDs[i] = id
		parts[i] = domain.TransferPart{
			ID: id, RequestID: requestID, AccountID: accountID,
			Amount: p.Amount, Fee: fee, To: p.To,
			Status: domain.New(), DependsOn: prevID, Timestamp: now,
		}
		idCopy := id
		prevID = &idCopy
	}
	return domain.TransferTask{RequestID: requestID, PartIDs: partIDs}, parts
}

// TransactionStatus resolves a transfer's overall status for
// GET /transactionStatus: the last persisted part's status stands for
// the whole request, and every mined part's tx-hash is collected for
// the linked list.
func (c *Coordinator) TransactionStatus(requestID string) (domain.TransferPart, []string, error) {
	task, ok, err := c.loadTask(requestID)
	if err != nil {
		return domain.TransferPart{}, nil, err
	}
	if !ok {
		return domain.TransferPart{}, nil, apperr.New(apperr.CodeInvalidTransactionID, requestID)
	}
	var linked []string
	var last domain.TransferPart
	for _, id := range task.PartIDs {
		part, ok, err := c.loadPart(id)
		if err != nil {
			return domain.TransferPart{}, nil, err
		}
		if !ok {
			continue
		}
		last = part
		if part.TxHash != nil {
			linked = append(linked, *part.TxHash)
		}
	}
	return last, linked, nil
}

// TransactionTrace returns every part of a transfer in order, for
// GET /transactionTrace.
func (c *Coordinator) TransactionTrace(requestID string) ([]domain.TransferPart, error) {
	task, ok, err := c.loadTask(requestID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidTransactionID, requestID)
	}
	parts := make([]domain.TransferPart, 0, len(task.PartIDs))
	for _, id := range task.PartIDs {
		part, ok, err := c.loadPart(id)
		if err != nil {
			return nil, err
		}
		if ok {
			parts = append(parts, part)
		}
	}
	return parts, nil
}
