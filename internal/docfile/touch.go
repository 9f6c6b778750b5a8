// Package docfile rewrites the freshness timestamp embedded in DocType
// JSON files.
package docfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ModifiedField is the one field this package rewrites.
const ModifiedField = "modified"

// TimestampLayout renders timestamps the way the bench expects them,
// with microsecond precision.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// ParseError indicates the file could not be read or parsed as a JSON
// object.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// WriteError indicates the rewritten file could not be written back.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// field is one top-level entry of the document. Values are kept as raw
// JSON so everything except the modified field round-trips untouched.
type field struct {
	key string
	raw json.RawMessage
}

// Touch sets the modified field of the JSON file at path to the current
// local time and returns the timestamp written. All other fields keep
// their order and content; output uses one-space indentation, literal
// non-ASCII text, and exactly one trailing newline.
func Touch(path string) (string, error) {
	return TouchAt(path, time.Now())
}

// TouchAt is Touch with an explicit timestamp, for tests.
func TouchAt(path string, now time.Time) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &ParseError{Path: path, Err: err}
	}

	fields, err := parseObject(data)
	if err != nil {
		return "", &ParseError{Path: path, Err: err}
	}

	stamp := now.Format(TimestampLayout)
	raw := json.RawMessage(`"` + stamp + `"`)

	replaced := false
	for i := range fields {
		if fields[i].key == ModifiedField {
			fields[i].raw = raw
			replaced = true
			break
		}
	}
	if !replaced {
		fields = append(fields, field{key: ModifiedField, raw: raw})
	}

	out, err := renderObject(fields)
	if err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}

	return stamp, nil
}

// parseObject decodes the top-level object into an ordered field list.
// Only the outer layer is split apart; each value stays as the raw bytes
// from the source document.
func parseObject(data []byte) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("top-level value is %v, not an object", tok)
	}

	var fields []field
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("object key is %v, not a string", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		fields = append(fields, field{key: key, raw: raw})
	}

	// Consume the closing brace so truncated documents are rejected.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	return fields, nil
}

// renderObject serializes the field list with one-space indentation and a
// single trailing newline.
func renderObject(fields []field) ([]byte, error) {
	if len(fields) == 0 {
		return []byte("{}\n"), nil
	}

	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, f := range fields {
		buf.WriteByte(' ')

		key, err := encodeString(f.key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteString(": ")

		if err := json.Indent(&buf, f.raw, " ", " "); err != nil {
			return nil, err
		}

		if i < len(fields)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// encodeString JSON-encodes s without HTML escaping, keeping non-ASCII
// text literal.
func encodeString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
