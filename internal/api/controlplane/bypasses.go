package controlplane

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
	"github.com/tjfontaine/phoenix-bypass/internal/server"
)

func (s *Server) handleListBypasses(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	writeJSON(w, http.StatusOK, BypassListResponse{
		Status:   statusSuccess,
		Bypasses: s.svc.ListBypasses(category, queryBool(r, "full")),
	})
}

func (s *Server) handleGetBypass(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.DescribeBypass(chi.URLParam(r, "category"), chi.URLParam(r, "name"))
	if err != nil {
		writeModuleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BypassResponse{Status: statusSuccess, Bypass: d})
}

// handleRunBypass applies one module to a freshly generated stager and
// always answers with a file. Query parameters other than "stager" are
// passed to the module as options.
func (s *Server) handleRunBypass(w http.ResponseWriter, r *http.Request) {
	category, name := chi.URLParam(r, "category"), chi.URLParam(r, "name")

	query := r.URL.Query()
	stagerID := query.Get("stager")
	options := make(map[string]any, len(query))
	for k, v := range query {
		if k == "stager" || len(v) == 0 {
			continue
		}
		options[k] = v[0]
	}

	server.AddLogField(r.Context(), "bypass", category+"/"+name)
	server.AddLogField(r.Context(), "stager", stagerID)

	out, err := s.svc.RunBypass(r.Context(), category, name, stagerID, options, server.GetActor(r.Context()))
	if err != nil {
		writeModuleError(w, r, err)
		return
	}
	writeFile(w, out)
}

// writeModuleError is writeError for endpoints that address a module by
// path, where an unknown module is a missing resource.
func writeModuleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrModuleNotFound) {
		server.AddError(r.Context(), err)
		writeJSON(w, http.StatusNotFound, MessageResponse{Status: statusDanger, Message: "Bypass not found."})
		return
	}
	writeError(w, r, err)
}
