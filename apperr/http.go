package apperr

import (
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
)

// Body is the JSON error envelope written by every transport. Details is
// only filled for unclassified failures in development.
type Body struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// NewBody builds the envelope for err. verbose exposes the underlying text
// of an unclassified failure.
func NewBody(err error, verbose bool) Body {
	b := Body{Error: Message(err)}
	if verbose && KindOf(err) == Internal {
		b.Details = err.Error()
	}
	return b
}

// FromResponse rebuilds the error carried by a non-2xx response.
func FromResponse(r *http.Response) *Error {
	var b Body
	data, _ := ioutil.ReadAll(io.LimitReader(r.Body, 1<<16))
	_ = json.Unmarshal(data, &b)
	return FromStatus(r.StatusCode, b.Error)
}
