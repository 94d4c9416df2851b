package helpers

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Validator is implemented by request payloads that can validate themselves.
// Validate returns a list of human-readable problems, empty when the payload
// is acceptable.
type Validator interface {
	Validate() []string
}

// DecodeAndValidate decodes the request body into dst, rejecting unknown
// fields, then runs dst.Validate. On any failure it writes a bad_request
// response and returns false; the caller should return immediately.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, dst Validator) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		WriteJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if problems := dst.Validate(); len(problems) > 0 {
		WriteJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, strings.Join(problems, "; "))
		return false
	}
	return true
}
