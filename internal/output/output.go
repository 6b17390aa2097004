// Package output encodes resolution records and matrices for consumers:
// a plain status object, or a key-value store envelope whose value and
// metadata are themselves JSON documents carried as strings.
package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/clean-dependency-project/winiso/internal/resolve"
)

// DefaultKeyPrefix prefixes the SKU in envelope keys.
const DefaultKeyPrefix = "windows-"

// Output formats for a single resolution.
const (
	FormatKV    = "kv"
	FormatPlain = "plain"
)

// ErrUnknownFormat is returned for a format other than kv or plain.
var ErrUnknownFormat = errors.New("unknown output format")

// Stringified encodes V as JSON, then encodes that text as a JSON string.
type Stringified[T any] struct {
	V T
}

func (s Stringified[T]) MarshalJSON() ([]byte, error) {
	inner, err := marshal(s.V)
	if err != nil {
		return nil, err
	}
	return marshal(string(inner))
}

// Text returns the inner JSON document.
func (s Stringified[T]) Text() (string, error) {
	inner, err := marshal(s.V)
	if err != nil {
		return "", err
	}
	return string(inner), nil
}

// Envelope is the record a key-value store ingests. Expiration is in Unix
// seconds.
type Envelope struct {
	Key        string                        `json:"key"`
	Value      Stringified[resolve.Value]    `json:"value"`
	Metadata   Stringified[resolve.Metadata] `json:"metadata"`
	Expiration int64                         `json:"expiration"`
}

// NewEnvelope wraps a result under keyPrefix+SKU.
func NewEnvelope(keyPrefix string, r resolve.Result) Envelope {
	return Envelope{
		Key:        keyPrefix + r.SKU,
		Value:      Stringified[resolve.Value]{V: r.Value},
		Metadata:   Stringified[resolve.Metadata]{V: r.Metadata},
		Expiration: r.Expiration.Unix(),
	}
}

// Plain encodes the outcome with an RFC 3339 expiration added:
// {"status":"Success","url":"...","expiration":"..."}.
func Plain(r resolve.Result) ([]byte, error) {
	value, err := marshal(r.Value)
	if err != nil {
		return nil, err
	}
	exp, err := marshal(r.Expiration.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(value[:len(value)-1])
	buf.WriteString(`,"expiration":`)
	buf.Write(exp)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Encode renders a result in the named format.
func Encode(format, keyPrefix string, r resolve.Result) ([]byte, error) {
	switch format {
	case FormatKV, "":
		return marshal(NewEnvelope(keyPrefix, r))
	case FormatPlain:
		return Plain(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

// WriteJSON writes v as one line of JSON.
func WriteJSON(w io.Writer, v any) error {
	data, err := marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
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
