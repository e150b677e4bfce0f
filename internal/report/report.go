// Package report describes the outcome of a build's request resolution and
// renders it as a table, JSON or SARIF.
package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ben-ranford/reqmap/internal/chunk"
	"github.com/ben-ranford/reqmap/internal/diag"
	"github.com/ben-ranford/reqmap/internal/pattern"
)

type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatSARIF Format = "sarif"
)

const SchemaVersion = "0.1.0"

var ErrUnknownFormat = errors.New("unknown format")

func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatSARIF):
		return FormatSARIF, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, value)
	}
}

type Report struct {
	SchemaVersion string            `json:"schemaVersion"`
	GeneratedAt   time.Time         `json:"generatedAt"`
	RepoPath      string            `json:"repoPath"`
	Revision      string            `json:"revision,omitempty"`
	ManifestPath  string            `json:"manifestPath,omitempty"`
	ChunkType     string            `json:"chunkType,omitempty"`
	IDScheme      string            `json:"idScheme,omitempty"`
	Requests      []RequestReport   `json:"requests"`
	Summary       *Summary          `json:"summary,omitempty"`
	Cache         *CacheMetadata    `json:"cache,omitempty"`
	Memo          *MemoMetadata     `json:"memo,omitempty"`
	Diagnostics   []diag.Diagnostic `json:"diagnostics,omitempty"`
	Warnings      []string          `json:"warnings,omitempty"`
}

// RequestReport is one request and the code it compiles to.
type RequestReport struct {
	Location   Location        `json:"location"`
	Specifier  string          `json:"specifier"`
	Pattern    string          `json:"pattern,omitempty"`
	Kind       string          `json:"kind"`
	Strategy   string          `json:"strategy"`
	Resolution string          `json:"resolution"`
	Mapping    string          `json:"mapping"`
	ModuleID   *chunk.ModuleID `json:"moduleId,omitempty"`
	Expression string          `json:"expression,omitempty"`
	Cached     bool            `json:"cached,omitempty"`
}

type Location struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

func LocationFromSpan(span diag.Span) Location {
	return Location{File: span.File, Line: span.Line, Column: span.Column}
}

type Summary struct {
	FileCount    int `json:"fileCount"`
	RequestCount int `json:"requestCount"`
	SingleCount  int `json:"singleCount"`
	InvalidCount int `json:"invalidCount"`
	MapCount     int `json:"mapCount"`
	AsyncCount   int `json:"asyncCount"`
	SyncCount    int `json:"syncCount"`
	WarningCount int `json:"warningCount"`
	ErrorCount   int `json:"errorCount"`
}

type CacheMetadata struct {
	Enabled       bool                `json:"enabled"`
	Path          string              `json:"path,omitempty"`
	ReadOnly      bool                `json:"readOnly,omitempty"`
	Hits          int                 `json:"hits"`
	Misses        int                 `json:"misses"`
	Writes        int                 `json:"writes"`
	Invalidations []CacheInvalidation `json:"invalidations,omitempty"`
}

type CacheInvalidation struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// MemoMetadata counts in-process lookups shared between requests with the
// same resolution.
type MemoMetadata struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Shared int64 `json:"shared"`
	Size   int   `json:"size"`
}

// Summarize counts requests by mapping kind and strategy, and diagnostics by
// severity.
func Summarize(requests []RequestReport, diagnostics []diag.Diagnostic, fileCount int) Summary {
	summary := Summary{FileCount: fileCount, RequestCount: len(requests)}
	for _, req := range requests {
		switch req.Mapping {
		case pattern.KindSingle:
			summary.SingleCount++
		case pattern.KindInvalid:
			summary.InvalidCount++
		case pattern.KindMap:
			summary.MapCount++
		}
		switch req.Strategy {
		case pattern.AsynchronousModule.String():
			summary.AsyncCount++
		case pattern.SynchronousModule.String():
			summary.SyncCount++
		}
	}
	for _, item := range diagnostics {
		switch item.Severity {
		case diag.SeverityWarning:
			summary.WarningCount++
		case diag.SeverityError:
			summary.ErrorCount++
		}
	}
	return summary
}
