package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/davecgh/go-spew/spew"

	"github.com/ben-ranford/reqmap/internal/analysis"
	"github.com/ben-ranford/reqmap/internal/ast"
	"github.com/ben-ranford/reqmap/internal/pattern"
	"github.com/ben-ranford/reqmap/internal/report"
	"github.com/ben-ranford/reqmap/internal/resolve"
	"github.com/ben-ranford/reqmap/internal/workspace"
)

var (
	ErrUnknownMode = errors.New("unknown mode")
	// ErrBuildFailed marks errors that would stop a build, such as a request
	// whose mapping cannot be turned into code.
	ErrBuildFailed = errors.New("build failed")
)

var dumpConfig = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

type App struct {
	Analyzer  analysis.Analyser
	Formatter report.Formatter
	// Debug receives --dump output. Nil discards it.
	Debug io.Writer
}

func New(debug io.Writer) *App {
	return &App{
		Analyzer:  analysis.NewService(),
		Formatter: report.NewFormatter(),
		Debug:     debug,
	}
}

func (a *App) Execute(ctx context.Context, req Request) (string, error) {
	switch req.Mode {
	case ModeResolve:
		return a.executeResolve(ctx, req)
	case ModeExpr:
		return a.executeExpr(req)
	default:
		return "", ErrUnknownMode
	}
}

func (a *App) executeResolve(ctx context.Context, req Request) (string, error) {
	repoPath, err := workspace.NormalizeRepoPath(req.RepoPath)
	if err != nil {
		return "", err
	}
	cfg := req.Resolve.Config

	manifestPath, err := locateManifest(repoPath, cfg.Manifest)
	if err != nil {
		return "", err
	}
	resolver, err := resolve.LoadManifest(manifestPath)
	if err != nil {
		return "", err
	}

	reportData, err := a.Analyzer.Analyse(ctx, analysis.Request{
		RepoPath:     repoPath,
		Resolver:     resolver,
		ChunkType:    cfg.ChunkType,
		IDScheme:     cfg.IDScheme,
		Concurrency:  cfg.Concurrency,
		Include:      cfg.Include,
		Exclude:      cfg.Exclude,
		ConfigDigest: req.Resolve.ConfigDigest,
		Cache: &analysis.CacheOptions{
			Enabled:  cfg.Cache.Enabled,
			Path:     cfg.Cache.Path,
			ReadOnly: cfg.Cache.ReadOnly,
		},
	})
	if err != nil {
		var patternErr *pattern.Error
		if errors.As(err, &patternErr) {
			return "", fmt.Errorf("%w: %w", ErrBuildFailed, err)
		}
		return "", err
	}

	reportData.Warnings = append(reportData.Warnings, revisionWarnings(ctx, &reportData, repoPath, manifestPath)...)
	a.dump(req.Dump, reportData.Requests)

	return a.Formatter.Format(reportData, req.Resolve.Format)
}

func (a *App) executeExpr(req Request) (string, error) {
	mapping := req.Expr.Mapping
	if mapping == nil {
		return "", fmt.Errorf("%w: no mapping given", ErrBuildFailed)
	}

	var (
		expr ast.Expr
		err  error
	)
	if key := strings.TrimSpace(req.Expr.Key); key != "" {
		expr, err = pattern.Apply(mapping, ast.Source(key, ast.Loc{}))
	} else {
		expr, err = pattern.Create(mapping)
	}
	a.dump(req.Dump, mapping)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}
	a.dump(req.Dump, expr)
	return ast.Print(expr) + "\n", nil
}

func (a *App) dump(enabled bool, value any) {
	if !enabled || a.Debug == nil {
		return
	}
	dumpConfig.Fdump(a.Debug, value)
}

// locateManifest returns the configured manifest, resolved against the repo,
// or the first reqmap.manifest.* found there.
func locateManifest(repoPath, configured string) (string, error) {
	if configured = strings.TrimSpace(configured); configured != "" {
		if !filepath.IsAbs(configured) {
			configured = filepath.Join(repoPath, configured)
		}
		return configured, nil
	}
	manifestPath, found, err := resolve.DiscoverManifest(repoPath)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%w in %s", resolve.ErrManifestNotFound, repoPath)
	}
	return manifestPath, nil
}

// revisionWarnings stamps the report with the current commit. Repositories
// outside git are fine; other git failures only produce a warning.
func revisionWarnings(ctx context.Context, reportData *report.Report, repoPath, manifestPath string) []string {
	revision, err := workspace.Revision(ctx, repoPath)
	if err != nil {
		if errors.Is(err, workspace.ErrNotARepository) {
			return nil
		}
		return []string{"git revision unavailable: " + err.Error()}
	}
	reportData.Revision = revision

	rel, err := filepath.Rel(repoPath, manifestPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil
	}
	dirty, err := workspace.Dirty(ctx, repoPath, filepath.ToSlash(rel))
	if err != nil {
		return []string{"git status unavailable: " + err.Error()}
	}
	if dirty {
		return []string{"manifest has uncommitted changes: " + filepath.ToSlash(rel)}
	}
	return nil
}
