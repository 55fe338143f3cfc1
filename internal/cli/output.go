package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// emit writes v as indented JSON when format is json, otherwise text.
func emit(w io.Writer, format string, v any, text string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
