package worker

import (
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/synnergy-network/zkbob-cloud/internal/walletcrypto"
)

// transactionRequest is the wire shape the relayer's sendTransactions
// endpoint expects, one entry per shielded transaction in the batch.
type transactionRequest struct {
	UUID   string `json:"uuid"`
	Proof  proof  `json:"proof"`
	Memo   string `json:"memo"`
	TxType string `json:"txType"`
}

type proof struct {
	Inputs inputsJSON `json:"inputs"`
	Proof  string     `json:"proof"`
}

type inputsJSON struct {
	Nullifier string `json:"nullifier"`
	OutCommit string `json:"outCommit"`
	Delta     int64  `json:"delta"`
}

// transferTxType is the relayer's fixed tag for a regular shielded
// transfer.
const transferTxType = "0000"

func buildTransactionRequest(inputs walletcrypto.ProofInputs, pf walletcrypto.Proof, memo []byte) json.RawMessage {
	req := []transactionRequest{{
		UUID: uuid.NewString(),
		Proof: proof{
			Inputs: inputsJSON{
				Nullifier: hex.EncodeToString(inputs.Nullifier[:]),
				OutCommit: hex.EncodeToString(inputs.OutCommit[:]),
				Delta:     inputs.Delta,
			},
			Proof: hex.EncodeToString(pf),
		},
		Memo:   hex.EncodeToString(memo),
		TxType: transferTxType,
	}}
	b, err := json.Marshal(req)
	if err != nil {
		// inputs are all fixed-size byte arrays and primitives; this
		// can only fail if json itself is broken.
		return json.RawMessage("[]")
	}
	return b
}
