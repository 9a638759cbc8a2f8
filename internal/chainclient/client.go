// Package chainclient is the JSON-RPC client for the on-chain node:
// transaction and block-timestamp lookup, pool id, and the
// direct-deposit fee.
package chainclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/synnergy-network/zkbob-cloud/internal/apperr"
)

// Tx is the minimal on-chain transaction view needed to classify it.
type Tx struct {
	Hash      string `json:"hash"`
	BlockHash string `json:"blockHash"`
	Calldata  []byte `json:"calldata"`
}

// Client is what the chain cache programs against; tests swap in
// doubles.
type Client interface {
	Tx(ctx context.Context, hash string) (Tx, error)
	BlockTimestamp(ctx context.Context, blockHash string) (uint64, error)
	PoolID(ctx context.Context) (string, error)
	DirectDepositFee(ctx context.Context) (uint64, error)
}

// HTTPClient is the concrete web3-RPC-backed implementation.
type HTTPClient struct {
	rpcURL string
	http   *http.Client
}

// New builds an HTTPClient against an RPC endpoint.
func New(rpcURL string) *HTTPClient {
	return &HTTPClient{rpcURL: rpcURL, http: &http.Client{Timeout: 15 * time.Second}}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *HTTPClient) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return apperr.Wrap(apperr.CodeWeb3Error, err, "chainclient: encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return apperr.Wrap(apperr.CodeWeb3Error, err, "chainclient: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.CodeWeb3Error, err, "chainclient: "+method)
	}
	defer resp.Body.Close()
	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return apperr.Wrap(apperr.CodeWeb3Error, err, "chainclient: decode response")
	}
	if rpcResp.Error != nil {
		return apperr.New(apperr.CodeWeb3Error, fmt.Sprintf("%s: %s", method, rpcResp.Error.Message))
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return apperr.Wrap(apperr.CodeWeb3Error, err, "chainclient: decode result")
		}
	}
	return nil
}

func (c *HTTPClient) Tx(ctx context.Context, hash string) (Tx, error) {
	var tx Tx
	err := c.call(ctx, "eth_getTransactionByHash", []any{hash}, &tx)
	return tx, err
}

func (c *HTTPClient) BlockTimestamp(ctx context.Context, blockHash string) (uint64, error) {
	var out struct {
		Timestamp uint64 `json:"timestamp"`
	}
	err := c.call(ctx, "eth_getBlockByHash", []any{blockHash, false}, &out)
	return out.Timestamp, err
}

func (c *HTTPClient) PoolID(ctx context.Context) (string, error) {
	var id string
	err := c.call(ctx, "zkbob_poolId", nil, &id)
	return id, err
}

func (c *HTTPClient) DirectDepositFee(ctx context.Context) (uint64, error) {
	var fee uint64
	err := c.call(ctx, "zkbob_directDepositFee", nil, &fee)
	return fee, err
}
