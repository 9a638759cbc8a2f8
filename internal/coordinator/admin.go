package coordinator

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/synnergy-network/zkbob-cloud/internal/account"
	"github.com/synnergy-network/zkbob-cloud/internal/apperr"
	"github.com/synnergy-network/zkbob-cloud/internal/domain"
	"github.com/synnergy-network/zkbob-cloud/internal/kv"
)

// NewAccount creates a signup account. If id is empty a fresh uuid is
// generated; if sk is nil a random one is generated.
func (c *Coordinator) NewAccount(id, description string, sk []byte) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if exists, err := c.store.Exists(ColumnAccounts, id); err != nil {
		return "", err
	} else if exists {
		return "", apperr.New(apperr.CodeDuplicateAccountID, id)
	}
	if sk == nil {
		sk = make([]byte, 32)
		if _, err := rand.Read(sk); err != nil {
			return "", apperr.Wrap(apperr.CodeInternal, err, "coordinator: generate sk")
		}
	}

	store, err := kv.Open(kv.Options{Path: c.registry.accountPath(id), Columns: account.Columns})
	if err != nil {
		return "", apperr.Wrap(apperr.CodeInternal, err, "coordinator: open new account store")
	}
	if _, err := account.New(id, description, sk, store); err != nil {
		_ = store.Close()
		return "", err
	}
	_ = store.Close()

	if err := c.saveAccountMeta(domain.AccountMeta{ID: id, Description: description, SK: sk}); err != nil {
		return "", err
	}
	return id, nil
}

// ImportAccounts bulk-imports accounts by secret key.
func (c *Coordinator) ImportAccounts(accounts []domain.ImportAccountRequest) error {
	for _, req := range accounts {
		sk, err := hex.DecodeString(req.SK)
		if err != nil {
			return apperr.Wrap(apperr.CodeBadRequest, err, "coordinator: import "+req.ID)
		}
		if _, err := c.NewAccount(req.ID, req.Description, sk); err != nil {
			return err
		}
	}
	return nil
}

// DeleteAccount removes an account's on-disk data and registry row.
// Rejects if the account is currently held by a live request. The
// directory goes first: a crash in between leaves a registry row
// pointing at nothing, which a retried delete then clears.
func (c *Coordinator) DeleteAccount(id string) error {
	if c.registry.isHeld(id) {
		return apperr.New(apperr.CodeAccountIsBusy, id)
	}
	if exists, err := c.store.Exists(ColumnAccounts, id); err != nil {
		return err
	} else if !exists {
		return apperr.New(apperr.CodeAccountNotFound, id)
	}
	dir := filepath.Dir(c.registry.accountPath(id))
	if err := os.RemoveAll(dir); err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "coordinator: remove account directory")
	}
	return c.deleteAccountMeta(id)
}

// ListAccounts returns every account's admin-facing metadata.
func (c *Coordinator) ListAccounts() ([]domain.AccountMeta, error) {
	return c.listAccountMetas()
}
