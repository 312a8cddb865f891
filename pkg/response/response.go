package response

import (
	"encoding/json"
	"io"

	appErrors "github.com/noah-isme/exam-scheduler/pkg/errors"
)

// Envelope represents the common output contract.
type Envelope struct {
	Data  interface{}            `json:"data,omitempty"`
	Error *appErrors.Error       `json:"error,omitempty"`
	Meta  map[string]interface{} `json:"meta,omitempty"`
}

// JSON writes a success envelope with optional metadata.
func JSON(w io.Writer, data interface{}, meta ...map[string]interface{}) error {
	envelope := Envelope{Data: data}
	if len(meta) > 0 && meta[0] != nil {
		envelope.Meta = meta[0]
	}
	return encode(w, envelope)
}

// Error writes an error envelope converting the error to the common structure.
// It returns the typed error so callers can derive an exit status.
func Error(w io.Writer, err error) *appErrors.Error {
	appErr := appErrors.FromError(err)
	_ = encode(w, Envelope{Error: appErr})
	return appErr
}

func encode(w io.Writer, envelope Envelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(envelope)
}
