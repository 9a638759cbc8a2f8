package account

import (
	"context"

	"github.com/synnergy-network/zkbob-cloud/internal/chaincache"
	"github.com/synnergy-network/zkbob-cloud/internal/domain"
	"github.com/synnergy-network/zkbob-cloud/internal/walletcrypto"
)

// History enumerates the account's memos in order and classifies each
// into one or more history entries, using the chain metadata cache to
// resolve what kind of on-chain transaction produced each memo.
func (a *Account) History(ctx context.Context, chain *chaincache.Cache) ([]domain.HistoryTx, error) {
	a.mu.RLock()
	memos := append([]domain.Memo(nil), a.memos...)
	a.mu.RUnlock()

	var out []domain.HistoryTx
	var previousBalance uint64
	haveSeenAccount := false

	for _, m := range memos {
		meta, err := chain.Get(ctx, m.TxHash)
		if err != nil {
			return nil, err
		}

		switch meta.Kind {
		case domain.ChainKindDeposit, domain.ChainKindDepositPermittable:
			amount := int64ptrOrZero(meta.TokenAmount)
			out = append(out, domain.HistoryTx{
				TxType: domain.HistoryDeposit, TxHash: m.TxHash,
				Timestamp: meta.Timestamp, Amount: uint64(amount), Fee: uint64ptrOrZero(meta.Fee),
			})
		case domain.ChainKindWithdrawal:
			// token_amount is negative for withdrawals and already
			// includes the fee; the reported amount is what actually
			// left the pool net of it.
			fee := uint64ptrOrZero(meta.Fee)
			amount := uint64(-int64ptrOrZero(meta.TokenAmount)) - fee
			out = append(out, domain.HistoryTx{
				TxType: domain.HistoryWithdrawal, TxHash: m.TxHash,
				Timestamp: meta.Timestamp, Amount: amount, Fee: fee,
			})
		case domain.ChainKindDirectDeposit:
			for _, n := range m.InNotes {
				out = append(out, domain.HistoryTx{
					TxType: domain.HistoryDirectDeposit, TxHash: m.TxHash,
					Timestamp: meta.Timestamp, Amount: noteAmount(n),
				})
			}
		case domain.ChainKindTransfer:
			out = append(out, classifyTransfer(m, meta, &previousBalance, &haveSeenAccount)...)
		}

		if m.HasAccount {
			previousBalance = decodeBalance(m.AccountState)
			haveSeenAccount = true
		}
	}
	return out, nil
}

func classifyTransfer(m domain.Memo, meta domain.ChainMetadata, previousBalance *uint64, haveSeenAccount *bool) []domain.HistoryTx {
	var out []domain.HistoryTx
	fee := uint64ptrOrZero(meta.Fee)

	if len(m.InNotes) == 0 && len(m.OutNotes) == 0 {
		base := uint64(0)
		if *haveSeenAccount {
			base = *previousBalance
		}
		amount := decodeBalance(m.AccountState)
		if amount >= base {
			amount -= base
		} else {
			amount = 0
		}
		return []domain.HistoryTx{{
			TxType: domain.HistoryAggregateNotes, TxHash: m.TxHash,
			Timestamp: meta.Timestamp, Amount: amount, Fee: fee,
		}}
	}

	outIdx := map[uint64]bool{}
	for _, n := range m.OutNotes {
		outIdx[n.Index] = true
	}
	inIdx := map[uint64]bool{}
	for _, n := range m.InNotes {
		inIdx[n.Index] = true
	}

	for _, n := range m.InNotes {
		// A note appearing on both sides is change returning to the
		// sender, reported once, never as a plain in or out.
		txType := domain.HistoryTransferIn
		if outIdx[n.Index] {
			txType = domain.HistoryReturnedChange
		}
		out = append(out, domain.HistoryTx{
			TxType: txType, TxHash: m.TxHash, Timestamp: meta.Timestamp,
			Amount: noteAmount(n), Fee: fee, To: noteAddress(n),
		})
	}
	for _, n := range m.OutNotes {
		if inIdx[n.Index] {
			continue
		}
		out = append(out, domain.HistoryTx{
			TxType: domain.HistoryTransferOut, TxHash: m.TxHash, Timestamp: meta.Timestamp,
			Amount: noteAmount(n), Fee: fee, To: noteAddress(n),
		})
	}
	return out
}

func noteAmount(n domain.IndexedNote) uint64 {
	note, ok := walletcrypto.DecodeNote(n.Raw)
	if !ok {
		return 0
	}
	return note.B
}

// noteAddress reconstructs the shielded address a note was sent to from
// its diversifier and diversified public key.
func noteAddress(n domain.IndexedNote) *string {
	note, ok := walletcrypto.DecodeNote(n.Raw)
	if !ok {
		return nil
	}
	addr := string(walletcrypto.FormatAddress(note.Diversifier, note.PD))
	return &addr
}

func int64ptrOrZero(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func uint64ptrOrZero(p *uint64) uint64 {
	if p == nil {
		return 0
	}
	return *p
}
