package controlapi

import (
	"encoding/json"
	"net/http"

	"github.com/aqa-systems/brain/pkg/apierrors"
)

// errorBody is the error shape nested inside an errorEnvelope.
type errorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// errorEnvelope is the stable failure shape every endpoint returns.
type errorEnvelope struct {
	Success   bool       `json:"success"`
	Error     errorBody  `json:"error"`
	RequestID string     `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError shapes err as {success:false, error:{code,message,details?},
// request_id?}, deriving the HTTP status and code from a *StructuredError
// when available and falling back to E5003/500 otherwise.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	se, ok := apierrors.As(err)
	status := http.StatusInternalServerError
	code := string(apierrors.CodeInternal)
	message := err.Error()
	var details map[string]interface{}

	if ok {
		status = se.HTTPStatus
		if status == 0 {
			status = apierrors.HTTPStatus(se)
		}
		code = string(se.Code)
		message = se.Message
		if se.Context != nil {
			details = se.Context
		}
		if se.Pointer != "" {
			if details == nil {
				details = map[string]interface{}{}
			}
			details["pointer"] = se.Pointer
		}
	}

	writeJSON(w, status, errorEnvelope{
		Success:   false,
		Error:     errorBody{Code: code, Message: message, Details: details},
		RequestID: requestID(r),
	})
}
