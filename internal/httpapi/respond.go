package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/synnergy-network/zkbob-cloud/internal/apperr"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a Coordinator-surfaced error onto its status code
// and writes its detail as a JSON body.
func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	writeErrorBody(w, apperr.HTTPStatus(code), map[string]string{"error": code.String(), "detail": err.Error()})
}

func writeAccessDenied(w http.ResponseWriter) {
	writeErrorBody(w, apperr.HTTPStatus(apperr.CodeAccessDenied), map[string]string{"error": apperr.CodeAccessDenied.String()})
}

func writeBadRequest(w http.ResponseWriter, detail string) {
	writeErrorBody(w, apperr.HTTPStatus(apperr.CodeBadRequest), map[string]string{"error": apperr.CodeBadRequest.String(), "detail": detail})
}

func writeErrorBody(w http.ResponseWriter, status int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
