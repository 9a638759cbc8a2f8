package walletcrypto

import (
	"fmt"
	"os"
)

// Params are the process-wide, read-only proving parameters, loaded
// once at startup and shared by every component. The real params are a
// large structured reference table loaded from the transfer-params
// file; this reference version only needs to exist and be shared.
type Params struct {
	Path string
}

// LoadParams reads proving parameters from path. The reference
// implementation does no real parsing — the file is treated as opaque
// — but still requires it to exist, matching startup-time fail-fast
// behaviour for a missing TransferParamsPath.
func LoadParams(path string) (*Params, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("walletcrypto: transfer params: %w", err)
	}
	return &Params{Path: path}, nil
}

// PublicInputs are the public transfer parameters the prover commits
// to: the output list and fee.
type PublicInputs struct {
	Outputs []TransferOutput
	Fee     uint64
}

// TransferOutput is one (address, amount) pair in a shielded transfer.
type TransferOutput struct {
	To     Address
	Amount uint64
}

// SecretInputs are the prover's witness: the account's current state
// plus up to 3 input notes, the protocol's fixed per-transaction
// note limit.
type SecretInputs struct {
	Eta          Eta
	AccountState []byte
	Notes        []Note
}

// ProofInputs is the constructed circuit input the relayer forwards
// on-chain.
type ProofInputs struct {
	Nullifier  [32]byte
	OutCommit  [32]byte
	Delta      int64
}

// Proof is the opaque SNARK proof bytes.
type Proof []byte

// ProveTx builds the circuit inputs and proof for one shielded
// transaction. Pure: same inputs, same proof. The real implementation
// calls into the protocol's proving library and is CPU-heavy enough
// that callers dispatch it off the request path; like that library, it
// panics when handed a witness the protocol could never produce, so
// the caller must catch and convert.
func ProveTx(params *Params, public PublicInputs, secret SecretInputs) (ProofInputs, Proof, error) {
	if len(secret.Notes) > 3 {
		panic(fmt.Sprintf("walletcrypto: ProveTx called with %d notes, protocol allows at most 3", len(secret.Notes)))
	}
	var in, out int64
	for _, n := range secret.Notes {
		in += int64(n.B)
	}
	for _, o := range public.Outputs {
		out += int64(o.Amount)
	}
	delta := in - out - int64(public.Fee)

	h := labelledHash(append(secret.AccountState, byte(len(secret.Notes))), "nullifier")
	oc := labelledHash([]byte(fmt.Sprintf("%d:%d", out, public.Fee)), "out-commit")

	return ProofInputs{Nullifier: h, OutCommit: oc, Delta: delta}, Proof(h[:]), nil
}
