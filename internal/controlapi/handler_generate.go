package controlapi

import (
	"encoding/json"
	"net/http"

	"github.com/aqa-systems/brain/internal/generator"
	"github.com/aqa-systems/brain/pkg/apierrors"
)

type generateRequest struct {
	Requirement           string `json:"requirement"`
	BaseURL               string `json:"base_url"`
	SkipCache             bool   `json:"skip_cache"`
	MaxCorrectionAttempts int    `json:"max_correction_attempts"`
}

type generateResponse struct {
	Success          bool        `json:"success"`
	Plan             interface{} `json:"plan"`
	Cached           bool        `json:"cached"`
	Provider         string      `json:"provider"`
	Model            string      `json:"model"`
	TokensUsed       int         `json:"tokens_used,omitempty"`
	GenerationTimeMs float64     `json:"generation_time_ms"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.Generator == nil {
		writeError(w, r, apierrors.InvalidConfig("generator", "not configured"))
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierrors.ShapeInvalid("$", "invalid JSON body: "+err.Error()))
		return
	}
	if req.Requirement == "" {
		writeError(w, r, apierrors.InvalidConfig("requirement", "must not be empty"))
		return
	}

	opts := generator.DefaultOptions()
	opts.SkipCache = req.SkipCache
	if req.MaxCorrectionAttempts > 0 {
		opts.MaxCorrectionAttempts = req.MaxCorrectionAttempts
	}

	plan, meta, err := s.Generator.Generate(r.Context(), req.Requirement, req.BaseURL, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{
		Success:          true,
		Plan:             plan,
		Cached:           meta.Cached,
		Provider:         meta.Provider,
		Model:            meta.Model,
		TokensUsed:       meta.Tokens,
		GenerationTimeMs: meta.ElapsedMs,
	})
}
