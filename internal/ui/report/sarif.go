package report

import (
	"encoding/json"

	"pyscope/internal/core/ports"
)

// SARIF v2.1.0 – see https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json

const (
	sarifSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
	sarifVersion = "2.1.0"

	toolName    = "pyscope"
	toolVersion = "1.0.0"
)

type sarifReport struct {
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
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	ShortDescription sarifMessage           `json:"shortDescription"`
	DefaultConfig    sarifRuleDefaultConfig `json:"defaultConfiguration"`
}

type sarifRuleDefaultConfig struct {
	Level string `json:"level"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI       string `json:"uri"`
	URIBaseID string `json:"uriBaseId"`
}

type sarifRegion struct {
	StartLine   int `json:"startLine,omitempty"`
	StartColumn int `json:"startColumn,omitempty"`
}

var ruleDescriptions = map[string]struct {
	name  string
	text  string
	level string
}{
	ports.RuleIncompatibleOverride: {"IncompatibleOverride", "Overriding method is not substitutable for the inherited one.", "error"},
	ports.RuleUnresolvedBase:       {"UnresolvedBase", "Base class could not be resolved or linearized.", "warning"},
	ports.RuleUnresolvedImport:     {"UnresolvedImport", "Imported module or member could not be resolved on the search path.", "warning"},
	ports.RuleSyntaxError:          {"SyntaxError", "Source could not be fully parsed.", "error"},
	ports.RuleInternalError:        {"InternalError", "The analyzer failed on this file.", "error"},
}

// RenderSARIF builds a SARIF document from one run's diagnostics. File URIs
// are made relative to projectRoot; absolute paths are never emitted so the
// report is safe to share.
func RenderSARIF(projectRoot string, diags []ports.Diagnostic) ([]byte, error) {
	results := make([]sarifResult, 0, len(diags))
	usedRules := make(map[string]bool)
	for _, d := range diags {
		usedRules[d.Rule] = true
		region := &sarifRegion{StartLine: d.Line, StartColumn: d.Column}
		results = append(results, sarifResult{
			RuleID:  d.Rule,
			Level:   sarifLevel(d.Severity),
			Message: sarifMessage{Text: d.Message},
			Locations: []sarifLocation{{
				PhysicalLocation: sarifPhysicalLocation{
					ArtifactLocation: sarifArtifactLocation{
						URI:       RelativePath(projectRoot, d.Path),
						URIBaseID: "PROJECTROOT",
					},
					Region: region,
				},
			}},
		})
	}

	rules := make([]sarifRule, 0, len(usedRules))
	for _, id := range []string{
		ports.RuleIncompatibleOverride,
		ports.RuleUnresolvedBase,
		ports.RuleUnresolvedImport,
		ports.RuleSyntaxError,
		ports.RuleInternalError,
	} {
		if !usedRules[id] {
			continue
		}
		desc := ruleDescriptions[id]
		rules = append(rules, sarifRule{
			ID:               id,
			Name:             desc.name,
			ShortDescription: sarifMessage{Text: desc.text},
			DefaultConfig:    sarifRuleDefaultConfig{Level: desc.level},
		})
	}

	doc := sarifReport{
		Schema:  sarifSchema,
		Version: sarifVersion,
		Runs: []sarifRun{{
			Tool:    sarifTool{Driver: sarifDriver{Name: toolName, Version: toolVersion, Rules: rules}},
			Results: results,
		}},
	}
	return json.MarshalIndent(doc, "", "  ")
}

func sarifLevel(severity ports.Severity) string {
	switch severity {
	case ports.SeverityError:
		return "error"
	case ports.SeverityWarning:
		return "warning"
	default:
		return "note"
	}
}
