package report

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/ben-ranford/reqmap/internal/diag"
	"github.com/ben-ranford/reqmap/internal/pattern"
)

const (
	sarifSchemaURI  = "https://json.schemastore.org/sarif-2.1.0.json"
	sarifVersion    = "2.1.0"
	sarifRulePrefix = "reqmap/"
)

type sarifLog struct {
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
	Name           string      `json:"name"`
	InformationURI string      `json:"informationUri,omitempty"`
	Version        string      `json:"version,omitempty"`
	Rules          []sarifRule `json:"rules,omitempty"`
}

type sarifRule struct {
	ID               string         `json:"id"`
	Name             string         `json:"name,omitempty"`
	ShortDescription sarifMessage   `json:"shortDescription"`
	Help             *sarifMessage  `json:"help,omitempty"`
	Properties       map[string]any `json:"properties,omitempty"`
}

type sarifResult struct {
	RuleID     string          `json:"ruleId"`
	Level      string          `json:"level,omitempty"`
	Message    sarifMessage    `json:"message"`
	Locations  []sarifLocation `json:"locations,omitempty"`
	Properties map[string]any  `json:"properties,omitempty"`
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
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine   int `json:"startLine,omitempty"`
	StartColumn int `json:"startColumn,omitempty"`
	CharOffset  int `json:"charOffset,omitempty"`
	CharLength  int `json:"charLength,omitempty"`
}

type ruleText struct {
	short string
	help  string
}

var knownRules = map[string]ruleText{
	pattern.CodeUnsupportedResolution: {
		short: "Request resolves to a result shape that has no module id",
		help:  "The request compiles to code that throws when executed. Point it at a single module or a list of candidates.",
	},
	pattern.CodeNotPlaceable: {
		short: "Resolved asset cannot be placed in the configured chunk type",
		help:  "Use a chunk type that accepts the asset, or change the request.",
	},
	pattern.CodeEmptyAlternatives: {
		short: "Request resolves to no candidates",
		help:  "Add the missing module or remove the request.",
	},
}

type sarifRuleBuilder struct {
	rules map[string]sarifRule
}

func newSARIFRuleBuilder() *sarifRuleBuilder {
	return &sarifRuleBuilder{rules: make(map[string]sarifRule)}
}

func (b *sarifRuleBuilder) add(code string) string {
	id := sarifRulePrefix + normalizeRuleToken(code)
	if _, ok := b.rules[id]; ok {
		return id
	}
	text, ok := knownRules[code]
	if !ok {
		text = ruleText{short: "Request resolution diagnostic"}
	}
	rule := sarifRule{
		ID:               id,
		Name:             code,
		ShortDescription: sarifMessage{Text: text.short},
		Properties:       map[string]any{"code": code},
	}
	if text.help != "" {
		rule.Help = &sarifMessage{Text: text.help}
	}
	b.rules[id] = rule
	return id
}

func (b *sarifRuleBuilder) list() []sarifRule {
	ids := make([]string, 0, len(b.rules))
	for id := range b.rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	items := make([]sarifRule, 0, len(ids))
	for _, id := range ids {
		items = append(items, b.rules[id])
	}
	return items
}

func formatSARIF(rep Report) (string, error) {
	rules := newSARIFRuleBuilder()
	results := make([]sarifResult, 0, len(rep.Diagnostics))
	for _, item := range rep.Diagnostics {
		results = append(results, diagnosticResult(item, rules))
	}
	sortSARIFResults(results)

	log := sarifLog{
		Schema:  sarifSchemaURI,
		Version: sarifVersion,
		Runs: []sarifRun{
			{
				Tool: sarifTool{
					Driver: sarifDriver{
						Name:           "reqmap",
						InformationURI: "https://github.com/ben-ranford/reqmap",
						Version:        reportVersion(rep),
						Rules:          rules.list(),
					},
				},
				Results: results,
			},
		},
	}

	payload, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return "", err
	}
	return string(payload) + "\n", nil
}

func reportVersion(rep Report) string {
	version := strings.TrimSpace(rep.SchemaVersion)
	if version == "" {
		version = SchemaVersion
	}
	return version
}

func diagnosticResult(item diag.Diagnostic, rules *sarifRuleBuilder) sarifResult {
	message := item.Message
	if item.Hint != "" {
		message = fmt.Sprintf("%s (%s)", message, item.Hint)
	}
	result := sarifResult{
		RuleID:     rules.add(item.Code),
		Level:      severityToSARIFLevel(item.Severity),
		Message:    sarifMessage{Text: message},
		Properties: map[string]any{"severity": item.Severity.String()},
	}
	if loc, ok := toSARIFLocation(item.Span); ok {
		result.Locations = []sarifLocation{loc}
	}
	return result
}

func sortSARIFResults(results []sarifResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].RuleID != results[j].RuleID {
			return results[i].RuleID < results[j].RuleID
		}
		if left, right := resultLocationKey(results[i]), resultLocationKey(results[j]); left != right {
			return left < right
		}
		return results[i].Message.Text < results[j].Message.Text
	})
}

func toSARIFLocation(span diag.Span) (sarifLocation, bool) {
	file := strings.TrimSpace(span.File)
	if file == "" {
		return sarifLocation{}, false
	}
	file = path.Clean(strings.ReplaceAll(file, "\\", "/"))
	loc := sarifLocation{
		PhysicalLocation: sarifPhysicalLocation{
			ArtifactLocation: sarifArtifactLocation{URI: file},
		},
	}
	if span.Line > 0 || span.Column > 0 || span.End > span.Start {
		region := &sarifRegion{StartLine: span.Line, StartColumn: span.Column}
		if span.End > span.Start {
			region.CharOffset = span.Start
			region.CharLength = span.End - span.Start
		}
		loc.PhysicalLocation.Region = region
	}
	return loc, true
}

func resultLocationKey(result sarifResult) string {
	if len(result.Locations) == 0 {
		return ""
	}
	loc := result.Locations[0]
	line, col := 0, 0
	if loc.PhysicalLocation.Region != nil {
		line = loc.PhysicalLocation.Region.StartLine
		col = loc.PhysicalLocation.Region.StartColumn
	}
	return fmt.Sprintf("%s:%08d:%08d", loc.PhysicalLocation.ArtifactLocation.URI, line, col)
}

func normalizeRuleToken(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "unknown"
	}
	var builder strings.Builder
	builder.Grow(len(value))
	lastDash := false
	for _, ch := range value {
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') {
			builder.WriteRune(ch)
			lastDash = false
			continue
		}
		if !lastDash {
			builder.WriteByte('-')
			lastDash = true
		}
	}
	normalized := strings.Trim(builder.String(), "-")
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

func severityToSARIFLevel(severity diag.Severity) string {
	switch severity {
	case diag.SeverityError:
		return "error"
	case diag.SeverityWarning:
		return "warning"
	default:
		return "note"
	}
}
