package control

import (
	"encoding/json"
	"net/http"

	tcerrors "github.com/randalmurphal/tc/internal/errors"
)

// APIError is the standard error response format.
type APIError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSONResponse writes a successful JSON response.
func JSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// JSONResponseStatus writes a JSON response with a specific status code.
func JSONResponseStatus(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// JSONError writes a simple error response.
func JSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIError{Error: message})
}

// HandleError inspects the error type and writes the matching response.
// TCErrors map to their HTTP status; anything else is a 500.
func HandleError(w http.ResponseWriter, err error) {
	if tcErr := tcerrors.AsTCError(err); tcErr != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(tcErr.HTTPStatus())
		_ = json.NewEncoder(w).Encode(APIError{
			Error: tcErr.What,
			Code:  string(tcErr.Code),
		})
		return
	}
	JSONError(w, err.Error(), http.StatusInternalServerError)
}
