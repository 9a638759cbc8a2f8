package domain

// AccountMeta is the persisted, non-cryptographic-state part of an
// account. The Merkle tree, notes, and the
// secret/viewing keys derived from SK live behind internal/walletcrypto
// and internal/kv; this struct is what the coordinator registry and the
// admin API exchange.
type AccountMeta struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	SK          []byte `json:"sk"`
}

// AccountShortInfo is the summary returned by GET /account.
type AccountShortInfo struct {
	ID                string `json:"id"`
	Description       string `json:"description"`
	Balance           uint64 `json:"balance"`
	MaxTransferAmount uint64 `json:"maxTransferAmount"`
	Address           string `json:"address"`
}

// ImportAccountRequest is the admin payload for importing an existing
// account by secret key.
type ImportAccountRequest struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	SK          string `json:"sk"`
}
