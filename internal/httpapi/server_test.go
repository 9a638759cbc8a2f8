package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synnergy-network/zkbob-cloud/internal/chaincache"
	"github.com/synnergy-network/zkbob-cloud/internal/chainclient"
	"github.com/synnergy-network/zkbob-cloud/internal/config"
	"github.com/synnergy-network/zkbob-cloud/internal/coordinator"
	"github.com/synnergy-network/zkbob-cloud/internal/kv"
	"github.com/synnergy-network/zkbob-cloud/internal/relayercache"
	"github.com/synnergy-network/zkbob-cloud/internal/relayerclient"
	"github.com/synnergy-network/zkbob-cloud/internal/txparser"
	"github.com/synnergy-network/zkbob-cloud/internal/walletcrypto"
)

const testAdminToken = "test-admin-token"

type idleRelayer struct{}

func (idleRelayer) Info(context.Context) (relayerclient.Info, error) {
	return relayerclient.Info{}, nil
}
func (idleRelayer) Fee(context.Context) (uint64, error) { return 100, nil }
func (idleRelayer) Job(context.Context, string) (relayerclient.JobStatus, error) {
	return relayerclient.JobStatus{}, nil
}
func (idleRelayer) Send(context.Context, json.RawMessage) (string, error) { return "job", nil }
func (idleRelayer) Transactions(context.Context, uint64, uint64, bool) ([]relayerclient.RawRecord, error) {
	return nil, nil
}

type idleChain struct{}

func (idleChain) Tx(context.Context, string) (chainclient.Tx, error)      { return chainclient.Tx{}, nil }
func (idleChain) BlockTimestamp(context.Context, string) (uint64, error)  { return 0, nil }
func (idleChain) PoolID(context.Context) (string, error)                  { return "pool", nil }
func (idleChain) DirectDepositFee(context.Context) (uint64, error)        { return 0, nil }

// newTestServer wires a full HTTP surface over an idle relayer/chain.
// Queue-backed endpoints (/transfer, /generateReport) are not exercised
// here, since they need Redis.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	log := logrus.NewEntry(logrus.New())

	store, err := kv.Open(kv.Options{Path: filepath.Join(dir, "cloud.db"), Columns: coordinator.Columns})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	relayerStore, err := kv.Open(kv.Options{Path: filepath.Join(dir, "relayer.db"), Columns: []kv.Column{relayercache.Column}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = relayerStore.Close() })
	relayer := relayercache.New(idleRelayer{}, relayerStore, log)

	chainStore, err := kv.Open(kv.Options{Path: filepath.Join(dir, "chain.db"), Columns: []kv.Column{chaincache.Column}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = chainStore.Close() })
	chain := chaincache.New(idleChain{}, txparser.CalldataDecoder{}, chainStore)

	coord := coordinator.New(store, filepath.Join(dir, "accounts_data"), relayer, chain, nil, nil, nil, &walletcrypto.Params{}, log)
	cfg := &config.Config{AdminToken: testAdminToken, Version: config.VersionConfig{Ref: "main", CommitHash: "abc123"}}
	return New(coord, cfg, log)
}

func doRequest(s *Server, method, path string, body any, admin bool) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if admin {
		req.Header.Set("Authorization", "Bearer "+testAdminToken)
	}
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	return rec
}

// Fresh signup: the new account reports zero balance, zero max transfer
// amount, and a nonempty address.
func TestSignupThenAccount(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/signup", map[string]string{"description": "a"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var signup struct {
		AccountID string `json:"accountId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signup))
	require.NotEmpty(t, signup.AccountID)

	rec = doRequest(s, http.MethodGet, "/account?id="+signup.AccountID, nil, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var info struct {
		Balance           uint64 `json:"balance"`
		MaxTransferAmount uint64 `json:"maxTransferAmount"`
		Address           string `json:"address"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Zero(t, info.Balance)
	assert.Zero(t, info.MaxTransferAmount)
	assert.NotEmpty(t, info.Address)
}

func TestAdminEndpointsRejectMissingOrWrongToken(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/signup", map[string]string{"description": "a"}, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	wrong := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(wrong, req)
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
}

func TestPublicEndpointsNeedNoToken(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/version", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var v struct {
		Ref        string `json:"ref"`
		CommitHash string `json:"commitHash"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "main", v.Ref)
	assert.Equal(t, "abc123", v.CommitHash)

	rec = doRequest(s, http.MethodGet, "/", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownAccountIsBadRequest(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/account?id=no-such-account", nil, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "AccountNotFound", body.Error)
}

func TestGenerateAddressAndExport(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/signup", map[string]string{
		"description": "exportable",
		"sk":          "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff",
	}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var signup struct {
		AccountID string `json:"accountId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signup))

	rec = doRequest(s, http.MethodGet, "/generateAddress?id="+signup.AccountID, nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var addr struct {
		Address string `json:"address"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &addr))
	assert.NotEmpty(t, addr.Address)

	rec = doRequest(s, http.MethodGet, "/export?id="+signup.AccountID, nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var exported struct {
		SK string `json:"sk"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exported))
	assert.Equal(t, "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff", exported.SK)
}

func TestDuplicateSignupIDRejected(t *testing.T) {
	s := newTestServer(t)

	body := map[string]string{"id": "fixed-id", "description": "first"}
	rec := doRequest(s, http.MethodPost, "/signup", body, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodPost, "/signup", body, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "DuplicateAccountId", resp.Error)
}

func TestTransactionStatusUnknownIDIsBadRequest(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/transactionStatus?transactionId=missing", nil, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportListDeleteAccounts(t *testing.T) {
	s := newTestServer(t)

	imports := []map[string]string{
		{"id": "imp-1", "description": "one", "sk": "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"},
		{"id": "imp-2", "description": "two", "sk": "ffeeddccbbaa99887766554433221100ffeeddccbbaa99887766554433221100"},
	}
	rec := doRequest(s, http.MethodPost, "/import", imports, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(s, http.MethodGet, "/accounts", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []struct {
		ID          string `json:"id"`
		Description string `json:"description"`
		SK          string `json:"sk"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 2)

	rec = doRequest(s, http.MethodPost, "/deleteAccount", map[string]string{"id": "imp-1"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(s, http.MethodGet, "/accounts", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	listed = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "imp-2", listed[0].ID)

	// The deleted account's read paths are gone too.
	rec = doRequest(s, http.MethodGet, "/account?id=imp-1", nil, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteUnknownAccountIsBadRequest(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/deleteAccount", map[string]string{"id": "ghost"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMalformedBodyIsBadRequest(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/signup", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
