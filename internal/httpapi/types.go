package httpapi

import "github.com/synnergy-network/zkbob-cloud/internal/domain"

// signupResponse is the wire response for POST /signup.
type signupResponse struct {
	AccountID string `json:"accountId"`
}

// addressResponse is the wire response for GET /generateAddress.
type addressResponse struct {
	Address string `json:"address"`
}

// exportKeyResponse is the wire response for GET /export.
type exportKeyResponse struct {
	SK string `json:"sk"`
}

// transferResponse is the wire response for POST /transfer.
type transferResponse struct {
	TransactionID string `json:"transactionId"`
}

// calculateFeeResponse is the wire response for GET /calculateFee.
type calculateFeeResponse struct {
	TransactionCount int    `json:"transactionCount"`
	TotalFee         uint64 `json:"totalFee"`
}

// transactionStatusResponse is the wire response for
// GET /transactionStatus.
type transactionStatusResponse struct {
	Status         string   `json:"status"`
	Timestamp      int64    `json:"timestamp"`
	TxHash         *string  `json:"txHash,omitempty"`
	LinkedTxHashes []string `json:"linkedTxHashes,omitempty"`
	FailureReason  *string  `json:"failureReason,omitempty"`
}

// historyRecord is the user-visible history entry for GET /history,
// with aggregate parts folded into the record of the request that owns
// them.
type historyRecord struct {
	TxType         domain.HistoryTxType `json:"txType"`
	TxHash         string               `json:"txHash"`
	LinkedTxHashes []string             `json:"linkedTxHashes,omitempty"`
	Timestamp      uint64               `json:"timestamp"`
	Amount         uint64               `json:"amount"`
	Fee            *uint64              `json:"fee,omitempty"`
	To             *string              `json:"to,omitempty"`
	TransactionID  *string              `json:"transactionId,omitempty"`
}

// reportResponse is the wire response for GET /report.
type reportResponse struct {
	ID     string              `json:"id"`
	Status *string             `json:"status,omitempty"`
	Report *domain.Report      `json:"report,omitempty"`
}

// generateReportResponse is the wire response for POST /generateReport.
type generateReportResponse struct {
	ID string `json:"id"`
}

// versionResponse is the wire response for GET /version.
type versionResponse struct {
	Ref        string `json:"ref"`
	CommitHash string `json:"commitHash"`
}
