package controlapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/aqa-systems/brain/pkg/apierrors"
)

func (s *Server) handlePlansList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.Versions == nil {
		writeError(w, r, apierrors.InvalidConfig("versionstore", "not configured"))
		return
	}
	names, err := s.Versions.ListPlans(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "plans": names})
}

// handlePlanItem serves every /plans/{name}... route: the bare plan, its
// version list, a version diff, and version restore.
func (s *Server) handlePlanItem(w http.ResponseWriter, r *http.Request) {
	if s.Versions == nil {
		writeError(w, r, apierrors.InvalidConfig("versionstore", "not configured"))
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/plans/")
	segments := strings.Split(strings.Trim(rest, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	name := segments[0]

	switch {
	case len(segments) == 1:
		s.getPlan(w, r, name)
	case len(segments) == 2 && segments[1] == "versions":
		s.listPlanVersions(w, r, name)
	case len(segments) == 2 && segments[1] == "diff":
		s.diffPlanVersions(w, r, name)
	case len(segments) == 4 && segments[1] == "versions" && segments[3] == "restore":
		s.restorePlanVersion(w, r, name, segments[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) getPlan(w http.ResponseWriter, r *http.Request, name string) {
	version := queryInt(r, "version", 0)
	pv, err := s.Versions.GetVersion(r.Context(), name, version)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "version": pv})
}

func (s *Server) listPlanVersions(w http.ResponseWriter, r *http.Request, name string) {
	versions, err := s.Versions.ListVersions(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "versions": versions})
}

func (s *Server) diffPlanVersions(w http.ResponseWriter, r *http.Request, name string) {
	a := queryInt(r, "a", 0)
	b := queryInt(r, "b", 0)
	diff, err := s.Versions.Diff(r.Context(), name, a, b)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "diff": diff})
}

func (s *Server) restorePlanVersion(w http.ResponseWriter, r *http.Request, name, versionSegment string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	version, err := strconv.Atoi(versionSegment)
	if err != nil {
		writeError(w, r, apierrors.InvalidConfig("version", "must be an integer"))
		return
	}

	var body struct {
		Description string `json:"description"`
	}
	_ = decodeOptionalJSON(r, &body)

	pv, err := s.Versions.Rollback(r.Context(), name, version, body.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "version": pv})
}
