package resolve

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Outcome is the result of resolving one row: Success, Failure or Error.
type Outcome interface {
	status() string
}

// Success carries the resolved download URL.
type Success struct {
	URL string
}

// Failure carries the reason resolution of the row failed.
type Failure struct {
	Message string
}

// Error reports that resolution could not be attempted at all, such as when
// no session could be permitted.
type Error struct {
	Message string
}

func (Success) status() string { return "Success" }
func (Failure) status() string { return "Failure" }
func (Error) status() string   { return "Error" }

// Value wraps an Outcome for encoding as a status-tagged object:
// {"status":"Success","url":...} or {"status":"Failure","error":...}.
type Value struct {
	Outcome Outcome
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch o := v.Outcome.(type) {
	case Success:
		return marshal(struct {
			Status string `json:"status"`
			URL    string `json:"url"`
		}{o.status(), o.URL})
	case Failure:
		return marshal(struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}{o.status(), o.Message})
	case Error:
		return marshal(struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}{o.status(), o.Message})
	default:
		return nil, fmt.Errorf("unknown outcome type %T", v.Outcome)
	}
}

// Status returns the tag of the wrapped outcome.
func (v Value) Status() string {
	if v.Outcome == nil {
		return ""
	}
	return v.Outcome.status()
}

// marshal encodes v without escaping &, < and >, which signed URLs contain.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
