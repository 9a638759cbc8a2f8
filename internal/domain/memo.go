package domain

// IndexedNote pairs a pool-position index with an opaque encoded note.
// The note's internal fields (diversifier, p_d, balance) are owned by
// internal/walletcrypto; domain only moves the encoded form around.
type IndexedNote struct {
	Index uint64 `json:"index"`
	Raw   []byte `json:"note"`
}

// Memo is a decrypted per-account memo.
type Memo struct {
	Index        uint64        `json:"index"`
	AccountState []byte        `json:"accountState,omitempty"`
	HasAccount   bool          `json:"hasAccount"`
	InNotes      []IndexedNote `json:"inNotes"`
	OutNotes     []IndexedNote `json:"outNotes"`
	TxHash       string        `json:"txHash"`
}

// PoolTxRecord is a cached pool transaction record.
type PoolTxRecord struct {
	Index      uint64 `json:"index"`
	MemoBytes  []byte `json:"memoBytes"`
	Commitment []byte `json:"commitment"`
	TxHash     string `json:"txHash"`
	Optimistic bool   `json:"optimistic"`
}

// ChainTxKind classifies an on-chain transaction.
type ChainTxKind int

const (
	ChainKindDeposit ChainTxKind = iota
	ChainKindTransfer
	ChainKindWithdrawal
	ChainKindDepositPermittable
	ChainKindDirectDeposit
)

func (k ChainTxKind) String() string {
	switch k {
	case ChainKindDeposit:
		return "Deposit"
	case ChainKindTransfer:
		return "Transfer"
	case ChainKindWithdrawal:
		return "Withdrawal"
	case ChainKindDepositPermittable:
		return "DepositPermittable"
	case ChainKindDirectDeposit:
		return "DirectDeposit"
	default:
		return "Unknown"
	}
}

func (k ChainTxKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *ChainTxKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "Deposit":
		*k = ChainKindDeposit
	case "Transfer":
		*k = ChainKindTransfer
	case "Withdrawal":
		*k = ChainKindWithdrawal
	case "DepositPermittable":
		*k = ChainKindDepositPermittable
	case "DirectDeposit":
		*k = ChainKindDirectDeposit
	default:
		*k = ChainKindTransfer
	}
	return nil
}

// ChainMetadata is the immutable per-tx-hash classification.
type ChainMetadata struct {
	Kind        ChainTxKind `json:"kind"`
	Timestamp   uint64      `json:"timestamp"`
	Fee         *uint64     `json:"fee,omitempty"`
	TokenAmount *int64      `json:"tokenAmount,omitempty"`
}

// ReportStatus enumerates a ReportTask's lifecycle.
type ReportStatus int

const (
	ReportNew ReportStatus = iota
	ReportCompleted
	ReportFailed
)

func (s ReportStatus) String() string {
	switch s {
	case ReportNew:
		return "New"
	case ReportCompleted:
		return "Completed"
	case ReportFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

func (s ReportStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *ReportStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "New":
		*s = ReportNew
	case "Completed":
		*s = ReportCompleted
	case "Failed":
		*s = ReportFailed
	default:
		*s = ReportNew
	}
	return nil
}

// AccountReportEntry is one account's row inside a fleet report.
type AccountReportEntry struct {
	ID                string `json:"id"`
	Description       string `json:"description"`
	Balance           uint64 `json:"balance"`
	MaxTransferAmount uint64 `json:"maxTransferAmount"`
	Address           string `json:"address"`
	SK                string `json:"sk"`
}

// Report is the output of the report worker.
type Report struct {
	Timestamp int64                `json:"timestamp"`
	PoolIndex uint64               `json:"poolIndex"`
	Accounts  []AccountReportEntry `json:"accounts"`
}

// ReportTask is the persisted task driving the report worker.
type ReportTask struct {
	ID      string       `json:"id"`
	Status  ReportStatus `json:"status"`
	Attempt uint32       `json:"attempt"`
	Report  *Report      `json:"report,omitempty"`
}

// HistoryTxType enumerates history record kinds.
type HistoryTxType int

const (
	HistoryDeposit HistoryTxType = iota
	HistoryWithdrawal
	HistoryTransferIn
	HistoryTransferOut
	HistoryReturnedChange
	HistoryAggregateNotes
	HistoryDirectDeposit
)

func (t HistoryTxType) String() string {
	switch t {
	case HistoryDeposit:
		return "Deposit"
	case HistoryWithdrawal:
		return "Withdrawal"
	case HistoryTransferIn:
		return "TransferIn"
	case HistoryTransferOut:
		return "TransferOut"
	case HistoryReturnedChange:
		return "ReturnedChange"
	case HistoryAggregateNotes:
		return "AggregateNotes"
	case HistoryDirectDeposit:
		return "DirectDeposit"
	default:
		return "Unknown"
	}
}

func (t HistoryTxType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *HistoryTxType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "Deposit":
		*t = HistoryDeposit
	case "Withdrawal":
		*t = HistoryWithdrawal
	case "TransferIn":
		*t = HistoryTransferIn
	case "TransferOut":
		*t = HistoryTransferOut
	case "ReturnedChange":
		*t = HistoryReturnedChange
	case "AggregateNotes":
		*t = HistoryAggregateNotes
	case "DirectDeposit":
		*t = HistoryDirectDeposit
	default:
		*t = HistoryTransferIn
	}
	return nil
}

// HistoryTx is one classified history entry for an account.
type HistoryTx struct {
	TxType        HistoryTxType `json:"txType"`
	TxHash        string        `json:"txHash"`
	Timestamp     uint64        `json:"timestamp"`
	Amount        uint64        `json:"amount"`
	Fee           uint64        `json:"fee"`
	To            *string       `json:"to,omitempty"`
	TransactionID *string       `json:"transactionId,omitempty"`
}
