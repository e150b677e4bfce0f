// Package scan discovers module-loading requests in JavaScript and TypeScript
// sources using tree-sitter.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	tsxlang "github.com/smacker/go-tree-sitter/typescript/tsx"
	tslang "github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/ben-ranford/reqmap/internal/diag"
	"github.com/ben-ranford/reqmap/internal/pattern"
	"github.com/ben-ranford/reqmap/internal/resolve"
	"github.com/ben-ranford/reqmap/internal/safeio"
)

type RequestKind string

const (
	KindESMStatic  RequestKind = "esm-static"
	KindESMDynamic RequestKind = "esm-dynamic"
	KindCommonJS   RequestKind = "commonjs"
)

// Placeholder stands in for each interpolated segment of a template request.
const Placeholder = "*"

// FoundRequest is one request as it appears in source. Span covers the
// specifier literal.
type FoundRequest struct {
	Request  resolve.Request
	Kind     RequestKind
	Strategy pattern.LoadingStrategy
	Span     diag.Span
}

type FileScan struct {
	Path     string
	Requests []FoundRequest
}

type ScanResult struct {
	Files    []FileScan
	Warnings []string
}

// Requests flattens the requests of every file in scan order.
func (r ScanResult) Requests() []FoundRequest {
	var out []FoundRequest
	for _, file := range r.Files {
		out = append(out, file.Requests...)
	}
	return out
}

// Options restricts a scan to paths under Include and outside Exclude. Both
// hold slash-separated prefixes relative to the repo root.
type Options struct {
	Include []string
	Exclude []string
}

type scanRepoState struct {
	parser          *sourceParser
	repoPath        string
	options         Options
	result          *ScanResult
	parseErrorCount int
	parseErrorFiles []string
}

var supportedExtensions = map[string]bool{
	".js":  true,
	".cjs": true,
	".mjs": true,
	".jsx": true,
	".ts":  true,
	".mts": true,
	".cts": true,
	".tsx": true,
}

var skipDirectories = map[string]bool{
	".git":         true,
	"node_modules": true,
	"dist":         true,
	"build":        true,
	"out":          true,
	"coverage":     true,
	"vendor":       true,
	".next":        true,
	".turbo":       true,
}

const maxParseErrorFiles = 5

func ScanRepo(ctx context.Context, repoPath string, options Options) (ScanResult, error) {
	result := ScanResult{}
	if repoPath == "" {
		return result, errors.New("repo path is empty")
	}

	state := scanRepoState{
		parser:   newSourceParser(),
		repoPath: repoPath,
		options:  options,
		result:   &result,
	}

	err := filepath.WalkDir(repoPath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return scanRepoEntry(ctx, &state, path, entry)
	})
	if err != nil {
		return result, err
	}

	if len(result.Files) == 0 {
		result.Warnings = append(result.Warnings, "no JS/TS files found for analysis")
	}
	if state.parseErrorCount > 0 {
		warning := fmt.Sprintf("parse errors in %d file(s)", state.parseErrorCount)
		if len(state.parseErrorFiles) > 0 {
			warning = fmt.Sprintf("%s: %s", warning, strings.Join(state.parseErrorFiles, ", "))
		}
		result.Warnings = append(result.Warnings, warning)
	}
	return result, nil
}

func scanRepoEntry(ctx context.Context, state *scanRepoState, path string, entry fs.DirEntry) error {
	relPath := relativePath(state.repoPath, path)
	if entry.IsDir() {
		if path != state.repoPath && (skipDirectories[entry.Name()] || excluded(relPath, state.options.Exclude)) {
			return fs.SkipDir
		}
		return nil
	}
	if !isSupportedFile(path) || !state.options.matches(relPath) {
		return nil
	}

	content, err := safeio.ReadFileUnder(state.repoPath, path)
	if err != nil {
		return err
	}
	file, hasErrors, err := state.parser.scanSource(ctx, relPath, content)
	if err != nil {
		return err
	}
	if hasErrors {
		state.parseErrorCount++
		if len(state.parseErrorFiles) < maxParseErrorFiles {
			state.parseErrorFiles = append(state.parseErrorFiles, relPath)
		}
	}
	state.result.Files = append(state.result.Files, file)
	return nil
}

// ScanSource scans a single in-memory source file. The extension of relPath
// selects the grammar. The boolean result reports whether the file had syntax
// errors; requests found outside the broken regions are still returned.
func ScanSource(ctx context.Context, relPath string, content []byte) (FileScan, bool, error) {
	return newSourceParser().scanSource(ctx, relPath, content)
}

func (o Options) matches(relPath string) bool {
	if excluded(relPath, o.Exclude) {
		return false
	}
	if len(o.Include) == 0 {
		return true
	}
	for _, prefix := range o.Include {
		if hasPathPrefix(relPath, prefix) {
			return true
		}
	}
	return false
}

func excluded(relPath string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if hasPathPrefix(relPath, prefix) {
			return true
		}
	}
	return false
}

func hasPathPrefix(relPath, prefix string) bool {
	prefix = strings.Trim(filepath.ToSlash(strings.TrimSpace(prefix)), "/")
	if prefix == "" || prefix == "." {
		return true
	}
	return relPath == prefix || strings.HasPrefix(relPath, prefix+"/")
}

func relativePath(repoPath, path string) string {
	rel, err := filepath.Rel(repoPath, path)
	if err != nil {
		rel = path
	}
	return filepath.ToSlash(rel)
}

func isSupportedFile(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

type sourceParser struct {
	js  *sitter.Language
	ts  *sitter.Language
	tsx *sitter.Language
}

func newSourceParser() *sourceParser {
	return &sourceParser{
		js:  javascript.GetLanguage(),
		ts:  tslang.GetLanguage(),
		tsx: tsxlang.GetLanguage(),
	}
}

func (p *sourceParser) parse(ctx context.Context, path string, content []byte) (*sitter.Tree, error) {
	lang, err := p.languageForPath(path)
	if err != nil {
		return nil, err
	}
	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	return parser.ParseCtx(ctx, nil, content)
}

func (p *sourceParser) languageForPath(path string) (*sitter.Language, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".js", ".cjs", ".mjs", ".jsx":
		return p.js, nil
	case ".ts", ".mts", ".cts":
		return p.ts, nil
	case ".tsx":
		return p.tsx, nil
	default:
		return nil, fmt.Errorf("unsupported extension: %s", ext)
	}
}

func (p *sourceParser) scanSource(ctx context.Context, relPath string, content []byte) (FileScan, bool, error) {
	tree, err := p.parse(ctx, relPath, content)
	if err != nil {
		return FileScan{}, false, err
	}
	if tree == nil {
		return FileScan{}, false, fmt.Errorf("tree-sitter returned nil tree for %s", relPath)
	}
	root := tree.RootNode()
	return FileScan{Path: relPath, Requests: collectRequests(root, content, relPath)}, root.HasError(), nil
}
