package controlapi

import (
	"net/http"

	"github.com/aqa-systems/brain/internal/workspace"
)

func (s *Server) handleWorkspaceStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	status := workspace.GetStatus(s.Workspace)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "status": status})
}

func (s *Server) handleWorkspaceInit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	status, err := workspace.Init(s.Workspace)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "status": status})
}
