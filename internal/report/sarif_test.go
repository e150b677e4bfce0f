package report

import (
	"encoding/json"
	"testing"

	"github.com/ben-ranford/reqmap/internal/diag"
	"github.com/ben-ranford/reqmap/internal/pattern"
)

func sampleSARIFReport() Report {
	return Report{
		SchemaVersion: SchemaVersion,
		RepoPath:      "/repo",
		Diagnostics: []diag.Diagnostic{
			{
				Severity: diag.SeverityWarning,
				Code:     pattern.CodeUnsupportedResolution,
				Message:  "resolution shape keyed is not supported yet",
				Span:     diag.Span{File: "src/index.js", Line: 3, Column: 19, Start: 52, End: 70},
			},
			{
				Severity: diag.SeverityWarning,
				Code:     pattern.CodeNotPlaceable,
				Message:  "asset styles/site.css is not placeable",
				Hint:     "use a chunk type that accepts .css",
				Span:     diag.Span{File: `src\styles.js`, Line: 1, Column: 8},
			},
			{
				Severity: diag.SeverityInfo,
				Code:     pattern.CodeEmptyAlternatives,
				Message:  "request ./missing has no candidates",
				Span:     diag.Span{File: "src/index.js", Line: 1, Column: 1},
			},
			{
				Severity: diag.SeverityError,
				Code:     "Manifest Entry!",
				Message:  "broken entry",
			},
		},
	}
}

func decodeSARIF(t *testing.T, rep Report) sarifLog {
	t.Helper()
	formatted, err := NewFormatter().Format(rep, FormatSARIF)
	if err != nil {
		t.Fatalf("format sarif: %v", err)
	}
	var log sarifLog
	if err := json.Unmarshal([]byte(formatted), &log); err != nil {
		t.Fatalf("decode sarif: %v", err)
	}
	return log
}

func TestFormatSARIFResultsAndRules(t *testing.T) {
	log := decodeSARIF(t, sampleSARIFReport())
	if log.Version != sarifVersion || len(log.Runs) != 1 {
		t.Fatalf("unexpected log header: %#v", log)
	}
	run := log.Runs[0]
	if run.Tool.Driver.Name != "reqmap" || run.Tool.Driver.Version != SchemaVersion {
		t.Fatalf("unexpected driver: %#v", run.Tool.Driver)
	}
	if len(run.Tool.Driver.Rules) != 4 {
		t.Fatalf("expected 4 rules, got %d", len(run.Tool.Driver.Rules))
	}
	for i := 1; i < len(run.Tool.Driver.Rules); i++ {
		if run.Tool.Driver.Rules[i-1].ID >= run.Tool.Driver.Rules[i].ID {
			t.Fatalf("expected rules sorted by id: %#v", run.Tool.Driver.Rules)
		}
	}
	if len(run.Results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(run.Results))
	}

	byRule := make(map[string]sarifResult, len(run.Results))
	for _, result := range run.Results {
		byRule[result.RuleID] = result
	}

	unsupported, ok := byRule["reqmap/unsupported-resolution-shape"]
	if !ok {
		t.Fatalf("missing unsupported-resolution result: %#v", run.Results)
	}
	if unsupported.Level != "warning" {
		t.Fatalf("expected warning level, got %q", unsupported.Level)
	}
	region := unsupported.Locations[0].PhysicalLocation.Region
	if region == nil || region.StartLine != 3 || region.StartColumn != 19 || region.CharOffset != 52 || region.CharLength != 18 {
		t.Fatalf("unexpected region: %#v", region)
	}

	placeable := byRule["reqmap/not-placeable"]
	if placeable.Message.Text != "asset styles/site.css is not placeable (use a chunk type that accepts .css)" {
		t.Fatalf("expected hint in message, got %q", placeable.Message.Text)
	}
	if uri := placeable.Locations[0].PhysicalLocation.ArtifactLocation.URI; uri != "src/styles.js" {
		t.Fatalf("expected slash separated uri, got %q", uri)
	}

	if byRule["reqmap/empty-alternatives"].Level != "note" {
		t.Fatalf("expected info to map to note")
	}
	custom, ok := byRule["reqmap/manifest-entry"]
	if !ok || custom.Level != "error" || len(custom.Locations) != 0 {
		t.Fatalf("unexpected custom result: %#v", custom)
	}
}

func TestFormatSARIFWithoutDiagnostics(t *testing.T) {
	log := decodeSARIF(t, Report{})
	if len(log.Runs[0].Results) != 0 || len(log.Runs[0].Tool.Driver.Rules) != 0 {
		t.Fatalf("expected empty run, got %#v", log.Runs[0])
	}
	if log.Runs[0].Tool.Driver.Version != SchemaVersion {
		t.Fatalf("expected default version")
	}
}

func TestNormalizeRuleToken(t *testing.T) {
	cases := map[string]string{
		"":                "unknown",
		"---":             "unknown",
		"Not Placeable":   "not-placeable",
		"a__b":            "a-b",
		" empty-alts ":    "empty-alts",
		"UPPER/lower.mix": "upper-lower-mix",
	}
	for input, want := range cases {
		if got := normalizeRuleToken(input); got != want {
			t.Fatalf("normalizeRuleToken(%q) = %q, want %q", input, got, want)
		}
	}
}
