package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// parseArg decodes s as JSON when it parses, and keeps it as a string
// otherwise.
func parseArg(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

func parseArgs(args []string) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = parseArg(a)
	}
	return out
}

// buildPayload applies path=value assignments to an empty JSON object and
// decodes the result. Values that are valid JSON are set raw.
func buildPayload(assignments []string) (map[string]any, error) {
	if len(assignments) == 0 {
		return nil, nil
	}

	doc := []byte("{}")
	for _, a := range assignments {
		path, value, ok := strings.Cut(a, "=")
		if !ok || path == "" {
			return nil, fmt.Errorf("invalid assignment %q, want path=value", a)
		}

		var err error
		if json.Valid([]byte(value)) {
			doc, err = sjson.SetRawBytes(doc, path, []byte(value))
		} else {
			doc, err = sjson.SetBytes(doc, path, value)
		}
		if err != nil {
			return nil, fmt.Errorf("set %s: %w", path, err)
		}
	}

	var payload map[string]any
	if err := json.Unmarshal(doc, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// writeResult prints v as indented JSON, or only the part selected by a
// gjson query.
func writeResult(w io.Writer, v any, query string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	if query != "" {
		res := gjson.GetBytes(data, query)
		if !res.Exists() {
			return fmt.Errorf("query %q matched nothing", query)
		}
		if res.Type == gjson.String {
			_, err = fmt.Fprintln(w, res.Str)
		} else {
			_, err = fmt.Fprintln(w, res.Raw)
		}
		return err
	}

	_, err = fmt.Fprintln(w, string(data))
	return err
}
