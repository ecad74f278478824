package controlplane

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/phoenix-bypass/internal/pipeline"
	"github.com/tjfontaine/phoenix-bypass/internal/server"
)

func (s *Server) handleListStagers(w http.ResponseWriter, r *http.Request) {
	stagers, err := s.svc.ListStagers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StagerListResponse{Status: statusSuccess, Stagers: orEmpty(stagers)})
}

func (s *Server) handleGetStager(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.GetStager(r.Context(), chi.URLParam(r, "stager_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StagerResponse{Status: statusSuccess, Stager: st})
}

func (s *Server) handleAddStager(w http.ResponseWriter, r *http.Request) {
	var req pipeline.StagerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.svc.CreateStager(r.Context(), req, server.GetActor(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, StagerResponse{
		Status:  statusSuccess,
		Message: "Stager added successfully.",
		Stager:  st,
	})
}

func (s *Server) handleRemoveStager(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteStager(r.Context(), chi.URLParam(r, "stager_id"), server.GetActor(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Stager removed successfully.")
}

func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	ops, err := s.svc.ListOperations(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OperationListResponse{Status: statusSuccess, Operations: orEmpty(ops)})
}

// OperationRequest is the body of an operation creation request.
type OperationRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleAddOperation(w http.ResponseWriter, r *http.Request) {
	var req OperationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	op, err := s.svc.CreateOperation(r.Context(), req.Name, server.GetActor(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, OperationResponse{
		Status:    statusSuccess,
		Message:   "Operation added successfully.",
		Operation: op,
	})
}

func (s *Server) handleActivateOperation(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.ActivateOperation(r.Context(), chi.URLParam(r, "operation_id"), server.GetActor(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Operation activated.")
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if q := r.URL.Query().Get("limit"); q != "" {
		if v, err := strconv.Atoi(q); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}
	logs, err := s.svc.ListLogs(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LogListResponse{Status: statusSuccess, Logs: orEmpty(logs)})
}
