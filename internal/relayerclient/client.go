// Package relayerclient is the HTTP client for the external relayer:
// info, fee, job lookup, paginated transactions, and batch send. It is
// intentionally thin — internal/relayercache layers the caching on
// top.
package relayerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/synnergy-network/zkbob-cloud/internal/apperr"
)

// Info is the relayer's reported pool state.
type Info struct {
	DeltaIndex           uint64 `json:"deltaIndex"`
	OptimisticDeltaIndex uint64 `json:"optimisticDeltaIndex"`
	PoolIndex            uint64 `json:"poolIndex"`
}

// JobState is the relayer's reported job lifecycle string.
type JobState string

const (
	JobWaiting   JobState = "waiting"
	JobSent      JobState = "sent"
	JobCompleted JobState = "completed"
	JobReverted  JobState = "reverted"
	JobFailed    JobState = "failed"
)

// JobStatus is the relayer's response to job(id).
type JobStatus struct {
	State  JobState `json:"state"`
	TxHash string   `json:"txHash,omitempty"`
	Reason string   `json:"reason,omitempty"`
}

// RawRecord is one opaque pool record as returned by transactions(),
// still in wire format: first byte mined flag, 64 hex tx-hash, 64 hex
// commitment, remaining hex memo.
type RawRecord struct {
	Index uint64
	Data  string
}

// Client is what the caches and workers program against; tests swap in
// doubles.
type Client interface {
	Info(ctx context.Context) (Info, error)
	Fee(ctx context.Context) (uint64, error)
	Job(ctx context.Context, id string) (JobStatus, error)
	Send(ctx context.Context, proof json.RawMessage) (jobID string, err error)
	Transactions(ctx context.Context, offset, limit uint64, withOptimistic bool) ([]RawRecord, error)
}

// HTTPClient is the concrete implementation: one attempt per call,
// errors surfaced so the caller's own retry loop decides what to do.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// New builds an HTTPClient for the relayer at baseURL.
func New(baseURL string) *HTTPClient {
	return &HTTPClient{baseURL: baseURL, http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return apperr.Wrap(apperr.CodeRelayerSendError, err, "relayer: build request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.CodeRelayerSendError, err, "relayer: "+path)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return apperr.New(apperr.CodeRelayerSendError, fmt.Sprintf("relayer %s: status %d: %s", path, resp.StatusCode, body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperr.Wrap(apperr.CodeRelayerSendError, err, "relayer: decode "+path)
	}
	return nil
}

func (c *HTTPClient) Info(ctx context.Context) (Info, error) {
	var info Info
	err := c.get(ctx, "/info", &info)
	return info, err
}

func (c *HTTPClient) Fee(ctx context.Context) (uint64, error) {
	var resp struct {
		Fee uint64 `json:"fee"`
	}
	err := c.get(ctx, "/fee", &resp)
	return resp.Fee, err
}

func (c *HTTPClient) Job(ctx context.Context, id string) (JobStatus, error) {
	var status JobStatus
	err := c.get(ctx, "/job/"+id, &status)
	return status, err
}

func (c *HTTPClient) Send(ctx context.Context, proof json.RawMessage) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sendTransactions", bytes.NewReader(proof))
	if err != nil {
		return "", apperr.Wrap(apperr.CodeRelayerSendError, err, "relayer: build send request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeRelayerSendError, err, "relayer: send")
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", apperr.New(apperr.CodeTaskRejectedByRelayer, fmt.Sprintf("relayer send: status %d: %s", resp.StatusCode, body))
	}
	var out struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", apperr.Wrap(apperr.CodeRelayerSendError, err, "relayer: decode send response")
	}
	return out.JobID, nil
}

func (c *HTTPClient) Transactions(ctx context.Context, offset, limit uint64, withOptimistic bool) ([]RawRecord, error) {
	path := fmt.Sprintf("/transactions/v2?offset=%d&limit=%d&optimistic=%s",
		offset, limit, strconv.FormatBool(withOptimistic))
	var raw []string
	if err := c.get(ctx, path, &raw); err != nil {
		return nil, err
	}
	records := make([]RawRecord, len(raw))
	const outPlusOne = 128
	for i, data := range raw {
		records[i] = RawRecord{Index: offset + uint64(i)*outPlusOne, Data: data}
	}
	return records, nil
}
