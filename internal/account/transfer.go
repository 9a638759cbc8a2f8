package account

import (
	"context"

	"github.com/synnergy-network/zkbob-cloud/internal/apperr"
	"github.com/synnergy-network/zkbob-cloud/internal/domain"
	"github.com/synnergy-network/zkbob-cloud/internal/relayercache"
	"github.com/synnergy-network/zkbob-cloud/internal/txparser"
	"github.com/synnergy-network/zkbob-cloud/internal/walletcrypto"
)

// CreateTransfer builds a proof-ready transaction against the
// optimistic (pending) relayer state, so consecutive transfers can be
// built without waiting for on-chain confirmation. Mined records are
// applied to durable state as Sync would; pending records are parsed
// into a transient note/balance overlay consumed only by the prover.
func (a *Account) CreateTransfer(ctx context.Context, amount uint64, to *string, fee uint64, params *walletcrypto.Params, cache *relayercache.Cache) (inputs walletcrypto.ProofInputs, proof walletcrypto.Proof, memo []byte, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	info, err := cache.Info(ctx)
	if err != nil {
		return inputs, nil, nil, err
	}
	start := a.tree.NextIndex()
	if info.OptimisticDeltaIndex <= start {
		return a.proveLocked(amount, to, fee, params, a.notes, a.balance)
	}
	limit := (info.OptimisticDeltaIndex - start) / relayercache.OutPlusOne
	records, err := cache.Transactions(ctx, start, limit, true)
	if err != nil {
		return inputs, nil, nil, err
	}

	var mined, pending []domain.PoolTxRecord
	for _, r := range records {
		if r.Optimistic {
			pending = append(pending, r)
		} else {
			mined = append(mined, r)
		}
	}
	if len(mined) > 0 {
		if err := a.applyLocked(mined); err != nil {
			return inputs, nil, nil, err
		}
	}

	overlayNotes := map[uint64]walletcrypto.Note{}
	for idx, n := range a.notes {
		overlayNotes[idx] = n
	}
	overlayBalance := a.balance
	if len(pending) > 0 {
		result, err := txparser.ParseBatch(pending, a.eta)
		if err != nil {
			return inputs, nil, nil, err
		}
		for _, n := range result.Update.NewNotes {
			overlayNotes[n.Index] = n.Note
		}
		for _, acctUpdate := range result.Update.NewAccounts {
			overlayBalance = decodeBalance(acctUpdate.State)
			for _, idx := range acctUpdate.SpentIndices {
				delete(overlayNotes, idx)
			}
		}
	}

	return a.proveLocked(amount, to, fee, params, overlayNotes, overlayBalance)
}

// proveLocked selects the witness, proves, and assembles the memo the
// relayer forwards on-chain. A panic escaping walletcrypto.ProveTx is
// recovered here and surfaced as an internal error — the one place a
// library panic is tolerated and converted instead of crashing.
func (a *Account) proveLocked(amount uint64, to *string, fee uint64, params *walletcrypto.Params, notes map[uint64]walletcrypto.Note, balance uint64) (inputs walletcrypto.ProofInputs, proof walletcrypto.Proof, memo []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.New(apperr.CodeInternal, "panic building transfer proof")
		}
	}()

	plan, planErr := planTransfer(balance, sortedNotes(notes), amount, fee, derefOr(to, ""))
	if planErr != nil {
		return inputs, nil, nil, planErr
	}
	part := plan[len(plan)-1]

	var outputs []walletcrypto.TransferOutput
	if part.To != nil && *part.To != "" {
		addr, perr := parseOrFallback(*part.To)
		if perr != nil {
			return inputs, nil, nil, apperr.Wrap(apperr.CodeBadRequest, perr, "invalid recipient address")
		}
		outputs = []walletcrypto.TransferOutput{{To: addr, Amount: part.Amount}}
	}

	secretIdx, secretNotes := sortedIndexedNotes(notes)
	if len(secretNotes) > 3 {
		secretIdx = secretIdx[:3]
		secretNotes = secretNotes[:3]
	}
	var spent uint64
	for _, n := range secretNotes {
		spent += n.B
	}
	// Only value actually paid out leaves the account. A consolidation
	// part has no outputs: its spent notes fold back into the balance
	// minus the fee, which is what lets the next part of a multi-part
	// transfer see the aggregated funds.
	var outSum uint64
	for _, o := range outputs {
		outSum += o.Amount
	}
	remaining := balance + spent - outSum - fee

	inputs, proofBytes, perr := walletcrypto.ProveTx(params, walletcrypto.PublicInputs{
		Outputs: outputs, Fee: fee,
	}, walletcrypto.SecretInputs{
		Eta: a.eta, AccountState: encodeBalance(balance, 32), Notes: secretNotes,
	})
	if perr != nil {
		return inputs, nil, nil, perr
	}
	memo = walletcrypto.EncryptOut(a.eta, encodeBalance(remaining, 32), secretIdx, nil)
	return inputs, proofBytes, memo, nil
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

func parseOrFallback(addr string) (walletcrypto.Address, error) {
	if _, _, err := walletcrypto.ParseAddress(walletcrypto.Address(addr)); err != nil {
		return "", err
	}
	return walletcrypto.Address(addr), nil
}
