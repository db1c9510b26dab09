package controlapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/aqa-systems/brain/internal/validator"
	"github.com/aqa-systems/brain/pkg/apierrors"
)

type validateRequest struct {
	Plan json.RawMessage `json:"plan"`
	Mode string          `json:"mode"`
}

type validateResponse struct {
	Success bool            `json:"success"`
	OK      bool            `json:"ok"`
	Errors  interface{}     `json:"errors"`
	Warnings interface{}    `json:"warnings"`
	Stats   validator.Stats `json:"stats"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, apierrors.ShapeInvalid("$", "failed to read body: "+err.Error()))
		return
	}

	var req validateRequest
	// Accept either {"plan": {...}, "mode": "strict"} or a bare plan body.
	if json.Unmarshal(body, &req) != nil || len(req.Plan) == 0 {
		req.Plan = body
	}

	mode := validator.Mode(req.Mode)
	switch mode {
	case "", validator.ModeDefault:
		mode = validator.ModeDefault
	case validator.ModeStrict, validator.ModeLenient:
	default:
		writeError(w, r, apierrors.InvalidConfig("mode", "must be one of strict, default, lenient"))
		return
	}

	v := validator.New(mode, nil)
	result := v.ValidateJSON(string(req.Plan))

	writeJSON(w, http.StatusOK, validateResponse{
		Success:  true,
		OK:       result.OK,
		Errors:   result.Errors,
		Warnings: result.Warnings,
		Stats:    result.Stats,
	})
}
