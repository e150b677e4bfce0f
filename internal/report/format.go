package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
)

type Formatter struct{}

func NewFormatter() Formatter {
	return Formatter{}
}

func (f Formatter) Format(report Report, format Format) (string, error) {
	switch format {
	case FormatTable:
		return formatTable(report), nil
	case FormatJSON:
		payload, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return "", err
		}
		return string(payload) + "\n", nil
	case FormatSARIF:
		return formatSARIF(report)
	default:
		return "", ErrUnknownFormat
	}
}

func formatTable(report Report) string {
	if len(report.Requests) == 0 {
		return formatEmpty(report)
	}

	var buffer bytes.Buffer
	appendSummary(&buffer, report.Summary)
	appendCache(&buffer, report.Cache)

	writer := tabwriter.NewWriter(&buffer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(writer, "Location\tRequest\tKind\tStrategy\tMapping\tExpression")
	for _, req := range report.Requests {
		_, _ = fmt.Fprintln(writer, formatTableRow(req))
	}
	_ = writer.Flush()

	appendDiagnostics(&buffer, report)
	appendWarnings(&buffer, report)
	return buffer.String()
}

func formatTableRow(req RequestReport) string {
	request := req.Specifier
	if req.Pattern != "" {
		request = req.Pattern
	}
	mapping := req.Mapping
	if req.ModuleID != nil {
		mapping = fmt.Sprintf("%s(%s)", req.Mapping, req.ModuleID)
	}
	if req.Cached {
		mapping += " [cached]"
	}
	return strings.Join([]string{
		formatLocation(req.Location),
		request,
		req.Kind,
		req.Strategy,
		mapping,
		valueOrDash(req.Expression),
	}, "\t")
}

func appendSummary(buffer *bytes.Buffer, summary *Summary) {
	if summary == nil {
		return
	}
	_, _ = fmt.Fprintf(
		buffer,
		"Summary: %d requests in %d files, single/invalid/map: %d/%d/%d, sync/async: %d/%d, warnings: %d, errors: %d\n\n",
		summary.RequestCount,
		summary.FileCount,
		summary.SingleCount,
		summary.InvalidCount,
		summary.MapCount,
		summary.SyncCount,
		summary.AsyncCount,
		summary.WarningCount,
		summary.ErrorCount,
	)
}

func appendCache(buffer *bytes.Buffer, cache *CacheMetadata) {
	if cache == nil || !cache.Enabled {
		return
	}
	_, _ = fmt.Fprintf(buffer, "Cache: %d hits, %d misses, %d writes", cache.Hits, cache.Misses, cache.Writes)
	if cache.ReadOnly {
		buffer.WriteString(" (read-only)")
	}
	buffer.WriteString("\n\n")
}

func formatEmpty(report Report) string {
	var buffer bytes.Buffer
	buffer.WriteString("No requests to report.\n")
	appendDiagnostics(&buffer, report)
	appendWarnings(&buffer, report)
	return buffer.String()
}

func appendDiagnostics(buffer *bytes.Buffer, report Report) {
	if len(report.Diagnostics) == 0 {
		return
	}
	buffer.WriteString("\nDiagnostics:\n")
	for _, item := range report.Diagnostics {
		buffer.WriteString("- ")
		buffer.WriteString(item.String())
		buffer.WriteString("\n")
	}
}

func appendWarnings(buffer *bytes.Buffer, report Report) {
	if len(report.Warnings) == 0 {
		return
	}
	buffer.WriteString("\nWarnings:\n")
	for _, warning := range report.Warnings {
		buffer.WriteString("- ")
		buffer.WriteString(warning)
		buffer.WriteString("\n")
	}
}

func formatLocation(location Location) string {
	if location.File == "" {
		return "-"
	}
	return fmt.Sprintf("%s:%d:%d", location.File, location.Line, location.Column)
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
