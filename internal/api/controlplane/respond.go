package controlplane

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
	"github.com/tjfontaine/phoenix-bypass/internal/server"
)

const (
	statusSuccess = string(domain.StatusSuccess)
	statusDanger  = string(domain.StatusDanger)
)

// maxBodyBytes bounds JSON and YAML request bodies.
const maxBodyBytes = 1 << 20

// MessageResponse is the body of every error and of mutations that return
// nothing else.
type MessageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

// statusCode maps an error class to an HTTP status. Unknown records are 404;
// other caller mistakes are 400 and module or stager failures are 422.
func statusCode(err error) int {
	if errors.Is(err, domain.ErrNotFound) {
		return http.StatusNotFound
	}
	switch domain.Classify(err) {
	case domain.ClassCaller:
		return http.StatusBadRequest
	case domain.ClassExecution:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err to the client and to the request log. Internal
// errors are not echoed back.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusCode(err)
	server.AddError(r.Context(), err)

	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "Internal server error."
	}
	writeJSON(w, code, MessageResponse{Status: statusDanger, Message: msg})
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, MessageResponse{Status: statusSuccess, Message: msg})
}

// writeFile streams an artifact as a download.
func writeFile(w http.ResponseWriter, a *domain.Artifact) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": a.Name}))
	w.Header().Set("Content-Length", fmt.Sprint(len(a.Content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.Content)
}

// decodeJSON reads a JSON object body into v. An empty body leaves v
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &domain.OptionError{Field: "body", Reason: "invalid JSON: " + err.Error()}
	}
	return nil
}

func queryBool(r *http.Request, key string) bool {
	return strings.EqualFold(r.URL.Query().Get(key), "true")
}
