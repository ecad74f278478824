package controlplane

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/phoenix-bypass/internal/chainfile"
	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
	"github.com/tjfontaine/phoenix-bypass/internal/server"
)

func (s *Server) handleListChains(w http.ResponseWriter, r *http.Request) {
	chains, err := s.svc.ListChains(r.Context(), queryBool(r, "all"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	full := queryBool(r, "full")
	resp := ChainListResponse{Status: statusSuccess, Chains: make([]ChainView, 0, len(chains))}
	for _, c := range chains {
		resp.Chains = append(resp.Chains, s.chainView(c, full))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetChain(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.GetChain(r.Context(), chainID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ChainResponse{Status: statusSuccess, Chain: s.chainView(c, queryBool(r, "full"))})
}

func (s *Server) handleAddChain(w http.ResponseWriter, r *http.Request) {
	var req domain.ChainRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.svc.CreateChain(r.Context(), req, server.GetActor(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	server.AddLogField(r.Context(), "chain_id", c.ID)
	writeJSON(w, http.StatusCreated, ChainResponse{
		Status:  statusSuccess,
		Message: "Chain added successfully.",
		Chain:   s.chainView(c, false),
	})
}

func (s *Server) handleRemoveChain(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteChain(r.Context(), chainID(r), server.GetActor(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Chain removed successfully.")
}

func (s *Server) handleEditChain(w http.ResponseWriter, r *http.Request) {
	patch := map[string]any{}
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.svc.EditChain(r.Context(), chainID(r), patch, server.GetActor(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ChainResponse{
		Status:  statusSuccess,
		Message: "Chain updated successfully.",
		Chain:   s.chainView(c, false),
	})
}

// handleAddBypassToChain takes "category" and "name" from the body; every
// other key is a module option. An "options" object is merged in as well.
func (s *Server) handleAddBypassToChain(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	category, _ := body["category"].(string)
	name, _ := body["name"].(string)
	delete(body, "category")
	delete(body, "name")
	if nested, ok := body["options"].(map[string]any); ok {
		delete(body, "options")
		for k, v := range nested {
			body[k] = v
		}
	}

	c, err := s.svc.AddBypass(r.Context(), chainID(r), category, name, body, server.GetActor(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ChainResponse{
		Status:  statusSuccess,
		Message: "Bypass added successfully.",
		Chain:   s.chainView(c, false),
	})
}

func (s *Server) handleRemoveBypassFromChain(w http.ResponseWriter, r *http.Request) {
	pos, err := pathPosition(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.svc.RemoveBypass(r.Context(), chainID(r), pos, server.GetActor(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ChainResponse{
		Status:  statusSuccess,
		Message: "Bypass removed successfully.",
		Chain:   s.chainView(c, false),
	})
}

// MoveRequest is the body of a move request. Position is the 1-based
// destination, given as a number or a string of digits.
type MoveRequest struct {
	Position json.RawMessage `json:"position"`
}

func (s *Server) handleMoveBypassInChain(w http.ResponseWriter, r *http.Request) {
	from, err := pathPosition(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req MoveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	to, err := parsePosition(req.Position)
	if err != nil {
		writeError(w, r, err)
		return
	}

	c, err := s.svc.MoveBypass(r.Context(), chainID(r), from, to, server.GetActor(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ChainResponse{
		Status:  statusSuccess,
		Message: "Bypass moved successfully.",
		Chain:   s.chainView(c, false),
	})
}

func (s *Server) handleClearChain(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.ClearBypasses(r.Context(), chainID(r), server.GetActor(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ChainResponse{
		Status:  statusSuccess,
		Message: "Bypasses cleared successfully.",
		Chain:   s.chainView(c, false),
	})
}

// handleRunChain streams compiled output as a file and returns textual
// output as JSON.
func (s *Server) handleRunChain(w http.ResponseWriter, r *http.Request) {
	id, stagerID := chainID(r), r.URL.Query().Get("stager")
	server.AddLogField(r.Context(), "stager", stagerID)

	out, err := s.svc.RunChain(r.Context(), id, stagerID, server.GetActor(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if out.Compiled {
		writeFile(w, out)
		return
	}
	writeJSON(w, http.StatusOK, StagerOutputResponse{
		Status:  statusSuccess,
		Message: "Stager generated successfully.",
		Stager:  out.Output(),
	})
}

func (s *Server) handleExportChain(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.GetChain(r.Context(), chainID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeChainFile(w, r, c.Name+".yaml", c)
}

// handleExportChains exports the chains visible in the current operation,
// or every chain with all=true.
func (s *Server) handleExportChains(w http.ResponseWriter, r *http.Request) {
	chains, err := s.svc.ListChains(r.Context(), queryBool(r, "all"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeChainFile(w, r, "chains.yaml", chains...)
}

func (s *Server) writeChainFile(w http.ResponseWriter, r *http.Request, filename string, chains ...*domain.Chain) {
	data, err := chainfile.Marshal(chains...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeFile(w, &domain.Artifact{Name: filename, Content: data})
}

func (s *Server) handleImportChains(w http.ResponseWriter, r *http.Request) {
	f, err := chainfile.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, &domain.OptionError{Field: "body", Reason: err.Error()})
		return
	}
	res, err := chainfile.Import(r.Context(), s.svc, f, server.GetActor(r.Context()), s.logger)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ImportResponse{
		Status:  statusSuccess,
		Message: fmt.Sprintf("%d chains imported, %d skipped.", len(res.Created), len(res.Skipped)),
		Created: orEmpty(res.Created),
		Skipped: orEmpty(res.Skipped),
	})
}

func chainID(r *http.Request) string {
	id := chi.URLParam(r, "chain_id")
	server.AddLogField(r.Context(), "chain_id", id)
	return id
}

func pathPosition(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "position")
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &domain.OptionError{Field: "position", Reason: fmt.Sprintf("%q is not a number", raw)}
	}
	return n, nil
}

// parsePosition accepts a JSON integer or a string of decimal digits.
func parsePosition(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, &domain.OptionError{Field: "position", Reason: "new position not specified"}
	}
	notNumber := &domain.OptionError{Field: "position", Reason: "new position must be a number"}

	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, notNumber
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return 0, notNumber
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, notNumber
	}
	return n, nil
}

// orEmpty makes nil slices encode as [] rather than null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
