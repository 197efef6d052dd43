package report

import (
	"encoding/json"
	"io"

	"github.com/helloscan/helloscan/internal/types"
)

// WriteJSON writes findings as an indented JSON array. No findings is "[]".
func WriteJSON(w io.Writer, findings []types.Finding) error {
	if findings == nil {
		findings = []types.Finding{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(findings)
}
