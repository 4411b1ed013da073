package runner

import (
	"bytes"
	"encoding/json"
)

// ParseJSON decodes stdout expected to hold exactly one JSON document.
func ParseJSON(out []byte, v any) error {
	if err := json.Unmarshal(bytes.TrimSpace(out), v); err != nil {
		return &ParseError{Err: err, Output: string(out)}
	}
	return nil
}

// LastJSONLine scans stdout bottom-up for the last line that parses as
// JSON and decodes it. Some workers print progress chatter before their
// final result object.
func LastJSONLine(out []byte, v any) error {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 {
			continue
		}
		if err := json.Unmarshal(line, v); err == nil {
			return nil
		}
	}
	return &ParseError{Err: errNoJSON, Output: string(out)}
}

var errNoJSON = jsonError("no JSON object found in worker output")

type jsonError string

func (e jsonError) Error() string { return string(e) }

// Lines splits stdout into trimmed, non-empty lines for line-delimited
// JSON consumers.
func Lines(out []byte) [][]byte {
	raw := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	result := make([][]byte, 0, len(raw))
	for _, line := range raw {
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			result = append(result, line)
		}
	}
	return result
}
