package main

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// render writes v as JSON or YAML, or calls table for the default format.
func render(w io.Writer, format string, v any, table func(io.Writer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		// Round-trip through JSON so YAML keys follow the json tags.
		raw, err := json.Marshal(v)
		if err != nil {
			return eris.Wrap(err, "render: marshal")
		}
		var generic any
		if err := yaml.Unmarshal(raw, &generic); err != nil {
			return eris.Wrap(err, "render: convert")
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close() //nolint:errcheck
		return enc.Encode(generic)
	case "table", "":
		table(w)
		return nil
	default:
		return eris.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}
