package account

import (
	"github.com/synnergy-network/zkbob-cloud/internal/apperr"
	"github.com/synnergy-network/zkbob-cloud/internal/walletcrypto"
)

// notesPerChunk is the most input notes one proof can consume.
const notesPerChunk = 3

// PlannedPart is one shielded transaction in a transfer plan: either a
// final part carrying a recipient, or an intermediate consolidation
// part with no recipient that folds notes into the account balance.
type PlannedPart struct {
	To     *string
	Amount uint64
}

// GetTxParts plans the sequence of shielded transactions needed to
// cover amount plus one fee per part, aggregating up to 3 notes per
// shielded transaction.
func (a *Account) GetTxParts(amount, fee uint64, to string) ([]PlannedPart, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return planTransfer(a.balance, a.usableNotesLocked(), amount, fee, to)
}

func planTransfer(balance uint64, notes []walletcrypto.Note, amount, fee uint64, to string) ([]PlannedPart, error) {
	if balance >= amount+fee {
		return []PlannedPart{{To: &to, Amount: amount}}, nil
	}

	bal := balance
	var parts []PlannedPart
	for i := 0; i < len(notes); i += notesPerChunk {
		end := i + notesPerChunk
		if end > len(notes) {
			end = len(notes)
		}
		var noteBal uint64
		for _, n := range notes[i:end] {
			noteBal += n.B
		}
		if noteBal+bal >= amount+fee {
			parts = append(parts, PlannedPart{To: &to, Amount: amount})
			return parts, nil
		}
		if noteBal < fee {
			// This chunk cannot even pay its own consolidation fee;
			// planning stops here and later chunks are not tried.
			break
		}
		parts = append(parts, PlannedPart{To: nil, Amount: noteBal - fee})
		bal += noteBal - fee
	}
	return nil, apperr.New(apperr.CodeInsufficientBalance, "insufficient balance to cover amount and fees")
}

// MaxTransferAmount mirrors the planner: the largest amount coverable
// after consolidating as many note chunks as help.
func (a *Account) MaxTransferAmount(fee uint64) uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.maxTransferAmountLocked(fee)
}

func (a *Account) maxTransferAmountLocked(fee uint64) uint64 {
	var max uint64
	if a.balance > fee {
		max = a.balance - fee
	}
	bal := a.balance
	notes := a.usableNotesLocked()
	for i := 0; i < len(notes); i += notesPerChunk {
		end := i + notesPerChunk
		if end > len(notes) {
			end = len(notes)
		}
		var noteBal uint64
		for _, n := range notes[i:end] {
			noteBal += n.B
		}
		if bal+noteBal < fee {
			break
		}
		bal += noteBal - fee
		if bal > max {
			max = bal
		}
		if noteBal < fee {
			// The planner stops at a chunk that cannot pay its own fee.
			break
		}
	}
	return max
}
