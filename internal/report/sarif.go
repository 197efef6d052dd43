// internal/report/sarif.go
package report

import (
	"encoding/json"
	"io"

	"github.com/helloscan/helloscan/internal/types"
)

type sarif struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules,omitempty"`
}

type sarifRule struct {
	ID               string       `json:"id"`
	ShortDescription sarifMessage `json:"shortDescription"`
}

type sarifResult struct {
	RuleID              string            `json:"ruleId"`
	Level               string            `json:"level"`
	Message             sarifMessage      `json:"message"`
	Locations           []sarifLoc        `json:"locations"`
	PartialFingerprints map[string]string `json:"partialFingerprints,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLoc struct {
	PhysicalLocation sarifPhys `json:"physicalLocation"`
}

type sarifPhys struct {
	ArtifactLocation sarifArt     `json:"artifactLocation"`
	Region           *sarifRegion `json:"region,omitempty"`
}

type sarifArt struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn,omitempty"`
}

func sevToLevel(s types.Severity) string {
	switch s {
	case types.SevCritical, types.SevHigh:
		return "error"
	case types.SevMed:
		return "warning"
	default:
		return "note"
	}
}

// WriteSARIF writes findings as SARIF 2.1.0 to the provided writer. File-level
// findings carry no region.
func WriteSARIF(w io.Writer, findings []types.Finding, version string) error {
	run := sarifRun{
		Tool:    sarifTool{Driver: sarifDriver{Name: "helloscan", Version: version}},
		Results: []sarifResult{},
	}
	seen := map[string]bool{}
	for _, f := range findings {
		if !seen[f.RuleID] {
			seen[f.RuleID] = true
			run.Tool.Driver.Rules = append(run.Tool.Driver.Rules, sarifRule{ID: f.RuleID, ShortDescription: sarifMessage{Text: f.RuleID}})
		}
		phys := sarifPhys{ArtifactLocation: sarifArt{URI: f.Path}}
		if !f.FileLevel() {
			phys.Region = &sarifRegion{StartLine: f.Line, StartColumn: f.Column}
		}
		msg := f.Message
		if msg == "" {
			msg = f.RuleID + " matched"
		}
		run.Results = append(run.Results, sarifResult{
			RuleID:              f.RuleID,
			Level:               sevToLevel(f.Severity),
			Message:             sarifMessage{Text: msg},
			Locations:           []sarifLoc{{PhysicalLocation: phys}},
			PartialFingerprints: map[string]string{"helloscan/v1": f.Fingerprint()},
		})
	}
	doc := sarif{
		Schema:  "https://json.schemastore.org/sarif-2.1.0.json",
		Version: "2.1.0",
		Runs:    []sarifRun{run},
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
