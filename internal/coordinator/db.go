package coordinator

import (
	"encoding/json"

	"github.com/synnergy-network/zkbob-cloud/internal/apperr"
	"github.com/synnergy-network/zkbob-cloud/internal/domain"
	"github.com/synnergy-network/zkbob-cloud/internal/kv"
)

// Columns of the cloud-level database at <root>/cloud/.
const (
	ColumnAccounts      kv.Column = "accounts"
	ColumnTasks         kv.Column = "tasks"
	ColumnParts         kv.Column = "parts"
	ColumnTransactionID kv.Column = "transaction_id"
	ColumnReports       kv.Column = "reports"
)

var Columns = []kv.Column{ColumnAccounts, ColumnTasks, ColumnParts, ColumnTransactionID, ColumnReports}

func (c *Coordinator) saveAccountMeta(m domain.AccountMeta) error {
	return kv.Put(c.store, ColumnAccounts, m.ID, m)
}

func (c *Coordinator) loadAccountMeta(id string) (domain.AccountMeta, bool, error) {
	return kv.Get[domain.AccountMeta](c.store, ColumnAccounts, id)
}

func (c *Coordinator) deleteAccountMeta(id string) error {
	return c.store.Delete(ColumnAccounts, id)
}

func (c *Coordinator) listAccountMetas() ([]domain.AccountMeta, error) {
	var out []domain.AccountMeta
	err := c.store.Iter(ColumnAccounts, func(_ string, value []byte) bool {
		var m domain.AccountMeta
		if err := json.Unmarshal(value, &m); err == nil {
			out = append(out, m)
		}
		return true
	})
	return out, err
}

func (c *Coordinator) taskExists(requestID string) (bool, error) {
	return c.store.Exists(ColumnTasks, requestID)
}

// saveTaskAndParts persists a task and all of its parts in one
// transaction. The existence check runs inside the same transaction,
// so two concurrent transfers with the same request id cannot both
// create the task — the loser sees the winner's row and fails.
func (c *Coordinator) saveTaskAndParts(task domain.TransferTask, parts []domain.TransferPart) error {
	return c.store.Atomic(func(txn kv.Txn) error {
		if txn.Exists(ColumnTasks, task.RequestID) {
			return apperr.New(apperr.CodeDuplicateTransactionID, task.RequestID)
		}
		if err := txn.Put(ColumnTasks, task.RequestID, task); err != nil {
			return err
		}
		for _, p := range parts {
			if err := txn.Put(ColumnParts, p.ID, p); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Coordinator) loadTask(requestID string) (domain.TransferTask, bool, error) {
	return kv.Get[domain.TransferTask](c.store, ColumnTasks, requestID)
}

func (c *Coordinator) loadPart(partID string) (domain.TransferPart, bool, error) {
	return kv.Get[domain.TransferPart](c.store, ColumnParts, partID)
}

func (c *Coordinator) savePart(p domain.TransferPart) error {
	return kv.Put(c.store, ColumnParts, p.ID, p)
}

func (c *Coordinator) indexTransactionID(txHash, requestID string) error {
	return c.store.PutString(ColumnTransactionID, txHash, requestID)
}

func (c *Coordinator) lookupTransactionID(txHash string) (string, bool, error) {
	return c.store.GetString(ColumnTransactionID, txHash)
}

func (c *Coordinator) saveReportTask(t domain.ReportTask) error {
	return kv.Put(c.store, ColumnReports, t.ID, t)
}

func (c *Coordinator) loadReportTask(id string) (domain.ReportTask, bool, error) {
	return kv.Get[domain.ReportTask](c.store, ColumnReports, id)
}

func (c *Coordinator) cleanReports() error {
	return c.store.DeleteAll(ColumnReports)
}

func (c *Coordinator) allParts() ([]domain.TransferPart, error) {
	var out []domain.TransferPart
	err := c.store.Iter(ColumnParts, func(_ string, value []byte) bool {
		var p domain.TransferPart
		if err := json.Unmarshal(value, &p); err == nil {
			out = append(out, p)
		}
		return true
	})
	return out, err
}
