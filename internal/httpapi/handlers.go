package httpapi

import (
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/synnergy-network/zkbob-cloud/internal/domain"
)

type signupRequest struct {
	ID          string `json:"id,omitempty"`
	Description string `json:"description"`
	SK          string `json:"sk,omitempty"`
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed body")
		return
	}
	var sk []byte
	if req.SK != "" {
		decoded, err := hex.DecodeString(req.SK)
		if err != nil {
			writeBadRequest(w, "invalid sk")
			return
		}
		sk = decoded
	}
	id, err := s.coord.NewAccount(req.ID, req.Description, sk)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, signupResponse{AccountID: id})
}

func (s *Server) importAccounts(w http.ResponseWriter, r *http.Request) {
	var req []domain.ImportAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed body")
		return
	}
	if err := s.coord.ImportAccounts(req); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type deleteAccountRequest struct {
	ID string `json:"id"`
}

func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	var req deleteAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed body")
		return
	}
	if err := s.coord.DeleteAccount(req.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type accountMetaView struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	SK          string `json:"sk"`
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	metas, err := s.coord.ListAccounts()
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]accountMetaView, len(metas))
	for i, m := range metas {
		out[i] = accountMetaView{ID: m.ID, Description: m.Description, SK: hex.EncodeToString(m.SK)}
	}
	writeJSON(w, out)
}

func (s *Server) account(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeBadRequest(w, "id is required")
		return
	}
	info, err := s.coord.Account(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, info)
}

func (s *Server) generateAddress(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeBadRequest(w, "id is required")
		return
	}
	addr, err := s.coord.GenerateAddress(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, addressResponse{Address: addr})
}

func (s *Server) exportKey(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeBadRequest(w, "id is required")
		return
	}
	sk, err := s.coord.ExportKey(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, exportKeyResponse{SK: sk})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeBadRequest(w, "id is required")
		return
	}
	txs, err := s.coord.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, prepareHistoryRecords(txs))
}

// prepareHistoryRecords folds AggregateNotes entries into the
// user-visible record of the request that owns them: the non-aggregate
// record collects the aggregates' tx-hashes as linked hashes and sums
// their fees into its own.
func prepareHistoryRecords(txs []domain.HistoryTx) []historyRecord {
	out := make([]historyRecord, 0, len(txs))
	for _, tx := range txs {
		if tx.TxType == domain.HistoryAggregateNotes {
			continue
		}
		rec := historyRecord{
			TxType: tx.TxType, TxHash: tx.TxHash, Timestamp: tx.Timestamp,
			Amount: tx.Amount, To: tx.To, TransactionID: tx.TransactionID,
		}
		if tx.TxType != domain.HistoryTransferIn && tx.TxType != domain.HistoryDirectDeposit {
			fee := tx.Fee
			if tx.TransactionID != nil {
				for _, linked := range txs {
					if linked.TxType == domain.HistoryAggregateNotes && linked.TransactionID != nil && *linked.TransactionID == *tx.TransactionID {
						fee += linked.Fee
						rec.LinkedTxHashes = append(rec.LinkedTxHashes, linked.TxHash)
					}
				}
			}
			rec.Fee = &fee
		}
		out = append(out, rec)
	}
	return out
}

func (s *Server) transfer(w http.ResponseWriter, r *http.Request) {
	var req domain.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed body")
		return
	}
	requestID, err := s.coord.Transfer(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, transferResponse{TransactionID: requestID})
}

func (s *Server) transactionStatus(w http.ResponseWriter, r *http.Request) {
	requestID := r.URL.Query().Get("transactionId")
	if requestID == "" {
		writeBadRequest(w, "transactionId is required")
		return
	}
	part, linked, err := s.coord.TransactionStatus(requestID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := transactionStatusResponse{Status: part.Status.Stage.String(), Timestamp: part.Timestamp, LinkedTxHashes: linked}
	if part.TxHash != nil {
		resp.TxHash = part.TxHash
	}
	if part.Status.Stage == domain.StageFailed {
		reason := part.Status.Reason
		resp.FailureReason = &reason
	}
	writeJSON(w, resp)
}

func (s *Server) transactionTrace(w http.ResponseWriter, r *http.Request) {
	requestID := r.URL.Query().Get("transactionId")
	if requestID == "" {
		writeBadRequest(w, "transactionId is required")
		return
	}
	parts, err := s.coord.TransactionTrace(requestID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, parts)
}

func (s *Server) calculateFee(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("accountId")
	amountStr := r.URL.Query().Get("amount")
	if accountID == "" || amountStr == "" {
		writeBadRequest(w, "accountId and amount are required")
		return
	}
	amount, ok := parseUint(amountStr)
	if !ok {
		writeBadRequest(w, "amount must be a non-negative integer")
		return
	}
	count, fee, err := s.coord.CalculateFee(r.Context(), accountID, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, calculateFeeResponse{TransactionCount: count, TotalFee: fee})
}

func (s *Server) generateReport(w http.ResponseWriter, r *http.Request) {
	id, err := s.coord.GenerateReport(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, generateReportResponse{ID: id})
}

func (s *Server) report(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeBadRequest(w, "id is required")
		return
	}
	task, err := s.coord.Report(id)
	if err != nil {
		writeError(w, err)
		return
	}
	status := task.Status.String()
	writeJSON(w, reportResponse{ID: task.ID, Status: &status, Report: task.Report})
}

func (s *Server) cleanReports(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.CleanReports(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, versionResponse{Ref: s.cfg.Version.Ref, CommitHash: s.cfg.Version.CommitHash})
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func parseUint(s string) (uint64, bool) {
	var v uint64
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + uint64(c-'0')
	}
	return v, true
}
