// Package domain holds the persisted data types shared across the
// coordinator, workers, and HTTP surface.
package domain

import (
	"strconv"
	"strings"
)

// TransferStatus is the lifecycle state of a TransferPart. Done and
// Failed are terminal; everything else can still advance.
type TransferStatus struct {
	Stage  Stage
	Reason string // populated only when Stage == StageFailed
}

// Stage enumerates the non-parametric part of TransferStatus.
type Stage int

const (
	StageNew Stage = iota
	StageRelaying
	StageMining
	StageDone
	StageFailed
)

// MarshalText renders the stage as its name, so persisted JSON stays
// self-describing.
func (s Stage) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a stage name back into a Stage.
func (s *Stage) UnmarshalText(b []byte) error {
	switch string(b) {
	case "New":
		*s = StageNew
	case "Relaying":
		*s = StageRelaying
	case "Mining":
		*s = StageMining
	case "Done":
		*s = StageDone
	case "Failed":
		*s = StageFailed
	default:
		*s = StageNew
	}
	return nil
}

func (s Stage) String() string {
	switch s {
	case StageNew:
		return "New"
	case StageRelaying:
		return "Relaying"
	case StageMining:
		return "Mining"
	case StageDone:
		return "Done"
	case StageFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// New, Relaying, Mining, Done construct non-failed statuses.
func New() TransferStatus      { return TransferStatus{Stage: StageNew} }
func Relaying() TransferStatus { return TransferStatus{Stage: StageRelaying} }
func Mining() TransferStatus   { return TransferStatus{Stage: StageMining} }
func Done() TransferStatus     { return TransferStatus{Stage: StageDone} }

// Failed constructs a terminal Failed(reason) status.
func Failed(reason string) TransferStatus {
	return TransferStatus{Stage: StageFailed, Reason: reason}
}

// IsFinal reports whether the status is one of the two terminal states.
func (s TransferStatus) IsFinal() bool {
	return s.Stage == StageDone || s.Stage == StageFailed
}

// TransferRequest is the caller-supplied transfer order.
type TransferRequest struct {
	RequestID string `json:"requestId,omitempty"`
	AccountID string `json:"accountId"`
	Amount    uint64 `json:"amount"`
	To        string `json:"to"`
}

// ValidateRequestID rejects empty ids and ids containing the part
// separator, which would collide with derived part ids.
func ValidateRequestID(id string) bool {
	return id != "" && !strings.Contains(id, ".")
}

// TransferTask is the persisted owner of a transfer's parts.
type TransferTask struct {
	RequestID string   `json:"requestId"`
	PartIDs   []string `json:"partIds"`
}

// TransferPart is one shielded transaction within a transfer.
type TransferPart struct {
	ID        string         `json:"id"`
	RequestID string         `json:"requestId"`
	AccountID string         `json:"accountId"`
	Amount    uint64         `json:"amount"`
	Fee       uint64         `json:"fee"`
	To        *string        `json:"to,omitempty"`
	Status    TransferStatus `json:"status"`
	JobID     *string        `json:"jobId,omitempty"`
	TxHash    *string        `json:"txHash,omitempty"`
	DependsOn *string        `json:"dependsOn,omitempty"`
	Attempt   uint32         `json:"attempt"`
	Timestamp int64          `json:"timestamp"`
}

// PartID builds the "<request_id>.<i>" identifier of one part.
func PartID(requestID string, i int) string {
	return requestID + "." + strconv.Itoa(i)
}
