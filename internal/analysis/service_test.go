package analysis

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ben-ranford/reqmap/internal/chunk"
	"github.com/ben-ranford/reqmap/internal/diag"
	"github.com/ben-ranford/reqmap/internal/pattern"
	"github.com/ben-ranford/reqmap/internal/report"
	"github.com/ben-ranford/reqmap/internal/resolve"
	"github.com/ben-ranford/reqmap/internal/testutil"
)

const (
	indexFileName    = "src/index.js"
	manifestFileName = "reqmap.manifest.yaml"
	indexSource      = "import util from \"./util\";\n" +
		"const lazy = import(\"./lazy\");\n" +
		"const styles = require(\"./styles.css\");\n" +
		"const img = require(`./img/${name}.png`);\n" +
		"const missing = require(\"./missing\");\n" +
		"const again = require(\"./util\");\n"
	manifestSource = "requests:\n" +
		"  \"./util\": { single: src/util.js }\n" +
		"  \"./lazy\": { alternatives: [src/lazy.ts, src/lazy.js] }\n" +
		"  \"./styles.css\": { single: src/styles.css }\n" +
		"  \"./img/*.png\": { keyed: { cat: src/img/cat.png } }\n"
)

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func writeFixtureRepo(t *testing.T) string {
	t.Helper()
	return testutil.WriteRepo(t, map[string]string{
		indexFileName:    indexSource,
		manifestFileName: manifestSource,
	})
}

func loadResolver(t *testing.T, repo string) *resolve.ManifestResolver {
	t.Helper()
	resolver, err := resolve.LoadManifest(filepath.Join(repo, manifestFileName))
	if err != nil {
		t.Fatalf("load manifest: %v", err)
	}
	return resolver
}

func newTestService() *Service {
	service := NewService()
	service.Now = func() time.Time { return fixedNow }
	return service
}

func pathRequest(repo string, resolver resolve.Resolver) Request {
	return Request{
		RepoPath:    repo,
		Resolver:    resolver,
		ChunkType:   chunk.TypeEcmascript,
		IDScheme:    chunk.IDSchemePath,
		Concurrency: 4,
		Cache:       &CacheOptions{Enabled: false},
	}
}

func TestServiceAnalyseMapsEveryRequest(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := writeFixtureRepo(t)
	rep, err := newTestService().Analyse(context.Background(), pathRequest(repo, loadResolver(t, repo)))
	if err != nil {
		t.Fatalf("analyse: %v", err)
	}

	if rep.SchemaVersion != report.SchemaVersion || !rep.GeneratedAt.Equal(fixedNow) {
		t.Fatalf("unexpected report header: %q %v", rep.SchemaVersion, rep.GeneratedAt)
	}
	if rep.ChunkType != chunk.TypeEcmascript || rep.IDScheme != string(chunk.IDSchemePath) {
		t.Fatalf("unexpected chunk settings: %q %q", rep.ChunkType, rep.IDScheme)
	}
	if !strings.HasSuffix(rep.ManifestPath, manifestFileName) {
		t.Fatalf("expected manifest path in report, got %q", rep.ManifestPath)
	}
	if len(rep.Requests) != 6 {
		t.Fatalf("expected 6 requests, got %d: %#v", len(rep.Requests), rep.Requests)
	}

	want := []struct {
		specifier  string
		mapping    string
		strategy   string
		expression string
	}{
		{"./util", pattern.KindSingle, "sync-module", `"src/util.js"`},
		{"./lazy", pattern.KindSingle, "async-module", `"chunk loader src/lazy.ts"`},
		{"./styles.css", pattern.KindInvalid, "sync-module", `(() => { throw new Error("Invalid"); })()`},
		{"", pattern.KindInvalid, "sync-module", `(() => { throw new Error("Invalid"); })()`},
		{"./missing", pattern.KindInvalid, "sync-module", `(() => { throw new Error("Invalid"); })()`},
		{"./util", pattern.KindSingle, "sync-module", `"src/util.js"`},
	}
	for i, expected := range want {
		got := rep.Requests[i]
		if expected.specifier != "" && got.Specifier != expected.specifier {
			t.Fatalf("request %d: expected specifier %q, got %q", i, expected.specifier, got.Specifier)
		}
		if got.Mapping != expected.mapping || got.Strategy != expected.strategy || got.Expression != expected.expression {
			t.Fatalf("request %d: unexpected mapping %+v", i, got)
		}
		if got.Location.File != indexFileName || got.Location.Line != i+1 {
			t.Fatalf("request %d: unexpected location %+v", i, got.Location)
		}
	}
	if rep.Requests[3].Pattern != "./img/*.png" {
		t.Fatalf("expected template pattern, got %q", rep.Requests[3].Pattern)
	}
	if id := rep.Requests[0].ModuleID; id == nil || !id.Equal(chunk.StringID("src/util.js")) {
		t.Fatalf("expected module id for single mapping, got %v", id)
	}
	if rep.Requests[2].ModuleID != nil {
		t.Fatalf("expected no module id for invalid mapping")
	}

	summary := rep.Summary
	if summary == nil || summary.RequestCount != 6 || summary.SingleCount != 3 || summary.InvalidCount != 3 || summary.AsyncCount != 1 || summary.SyncCount != 5 || summary.WarningCount != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	codes := make(map[string]int)
	for _, item := range rep.Diagnostics {
		codes[item.Code]++
		if item.Span.File != indexFileName || item.Span.Line == 0 {
			t.Fatalf("expected diagnostic span, got %+v", item)
		}
	}
	if codes[pattern.CodeNotPlaceable] != 1 || codes[pattern.CodeUnsupportedResolution] != 2 {
		t.Fatalf("unexpected diagnostic codes: %v", codes)
	}

	if rep.Memo == nil || rep.Memo.Misses != 5 || rep.Memo.Size != 5 {
		t.Fatalf("unexpected memo stats: %+v", rep.Memo)
	}
	if rep.Cache == nil || rep.Cache.Enabled {
		t.Fatalf("expected disabled cache metadata, got %+v", rep.Cache)
	}
}

func TestServiceAnalyseNumberSchemeAssignsDistinctIDs(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := writeFixtureRepo(t)
	req := pathRequest(repo, loadResolver(t, repo))
	req.IDScheme = chunk.IDSchemeNumber
	rep, err := newTestService().Analyse(context.Background(), req)
	if err != nil {
		t.Fatalf("analyse: %v", err)
	}

	util, lazy, again := rep.Requests[0].ModuleID, rep.Requests[1].ModuleID, rep.Requests[5].ModuleID
	if util == nil || lazy == nil || again == nil {
		t.Fatalf("expected module ids, got %+v", rep.Requests)
	}
	if !util.IsNumber() || !lazy.IsNumber() {
		t.Fatalf("expected numeric ids, got %v %v", util, lazy)
	}
	if util.Equal(*lazy) {
		t.Fatalf("expected helper id to differ from module id")
	}
	if !util.Equal(*again) {
		t.Fatalf("expected repeated request to share its id, got %v and %v", util, again)
	}
	if rep.Requests[0].Expression != util.String() {
		t.Fatalf("expected numeric literal, got %q", rep.Requests[0].Expression)
	}
}

func TestServiceAnalyseNumberSchemeFollowsScanOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := writeFixtureRepo(t)
	req := pathRequest(repo, loadResolver(t, repo))
	req.IDScheme = chunk.IDSchemeNumber
	req.Concurrency = 8

	for run := 0; run < 10; run++ {
		rep, err := newTestService().Analyse(context.Background(), req)
		if err != nil {
			t.Fatalf("run %d: analyse: %v", run, err)
		}
		util, lazy := rep.Requests[0].ModuleID, rep.Requests[1].ModuleID
		if util == nil || !util.Equal(chunk.NumberID(0)) || lazy == nil || !lazy.Equal(chunk.NumberID(1)) {
			t.Fatalf("run %d: expected ids 0 and 1 in scan order, got %v and %v", run, util, lazy)
		}
		if len(rep.Diagnostics) != 3 {
			t.Fatalf("run %d: expected diagnostics to be reported once per request, got %d", run, len(rep.Diagnostics))
		}
	}
}

func TestServiceAnalyseWithoutRequests(t *testing.T) {
	repo := testutil.WriteRepo(t, map[string]string{manifestFileName: manifestSource})
	rep, err := newTestService().Analyse(context.Background(), pathRequest(repo, loadResolver(t, repo)))
	if err != nil {
		t.Fatalf("analyse: %v", err)
	}
	if len(rep.Requests) != 0 || rep.Summary.RequestCount != 0 {
		t.Fatalf("expected no requests, got %+v", rep.Requests)
	}
	if len(rep.Warnings) == 0 || !strings.Contains(rep.Warnings[0], "no JS/TS files") {
		t.Fatalf("expected scan warning, got %v", rep.Warnings)
	}
}

func TestServiceAnalyseErrors(t *testing.T) {
	repo := writeFixtureRepo(t)
	resolver := loadResolver(t, repo)
	service := newTestService()

	if _, err := service.Analyse(context.Background(), Request{RepoPath: repo}); !errors.Is(err, ErrNoResolver) {
		t.Fatalf("expected ErrNoResolver, got %v", err)
	}

	req := pathRequest(repo, resolver)
	req.ChunkType = "wasm"
	if _, err := service.Analyse(context.Background(), req); !errors.Is(err, chunk.ErrUnknownChunkType) {
		t.Fatalf("expected ErrUnknownChunkType, got %v", err)
	}

	req = pathRequest(repo, resolver)
	req.IDScheme = "hash"
	if _, err := service.Analyse(context.Background(), req); !errors.Is(err, chunk.ErrUnknownIDScheme) {
		t.Fatalf("expected ErrUnknownIDScheme, got %v", err)
	}

	if _, err := service.Analyse(testutil.CanceledContext(), pathRequest(repo, resolver)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, resolve.Request) (resolve.Result, error) {
	return nil, errors.New("resolver offline")
}

func TestServiceAnalyseResolverFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := writeFixtureRepo(t)
	_, err := newTestService().Analyse(context.Background(), pathRequest(repo, failingResolver{}))
	if err == nil || !strings.Contains(err.Error(), "resolver offline") || !strings.Contains(err.Error(), "resolve \"") {
		t.Fatalf("expected wrapped resolver error, got %v", err)
	}
}

type staticResolver map[string]resolve.Result

func (r staticResolver) Resolve(_ context.Context, req resolve.Request) (resolve.Result, error) {
	return r[req.Key()], nil
}

func TestServiceAnalyseTreatsNilResultAsUnresolvable(t *testing.T) {
	repo := writeFixtureRepo(t)
	resolver := staticResolver{"./util": &resolve.Single{Asset: resolve.FileAsset{FilePath: "src/util.js"}}}
	rep, err := newTestService().Analyse(context.Background(), pathRequest(repo, resolver))
	if err != nil {
		t.Fatalf("analyse: %v", err)
	}
	if rep.Requests[4].Resolution != "unresolvable" || rep.Requests[4].Mapping != pattern.KindInvalid {
		t.Fatalf("unexpected mapping for unknown request: %+v", rep.Requests[4])
	}
	if rep.ManifestPath != "" {
		t.Fatalf("expected no manifest path, got %q", rep.ManifestPath)
	}
}

func TestServiceAnalyseLogsDiagnostics(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	previous := diag.Logger()
	diag.SetLogger(zap.New(core))
	t.Cleanup(func() { diag.SetLogger(previous) })

	repo := writeFixtureRepo(t)
	if _, err := newTestService().Analyse(context.Background(), pathRequest(repo, loadResolver(t, repo))); err != nil {
		t.Fatalf("analyse: %v", err)
	}
	if got := logs.FilterField(zap.String("code", pattern.CodeNotPlaceable)).Len(); got != 1 {
		t.Fatalf("expected one not-placeable log entry, got %d", got)
	}
	if got := logs.FilterField(zap.String("code", pattern.CodeUnsupportedResolution)).Len(); got != 2 {
		t.Fatalf("expected two unsupported-resolution log entries, got %d", got)
	}
	for _, entry := range logs.All() {
		if entry.ContextMap()["file"] != indexFileName {
			t.Fatalf("expected request file on log entry, got %v", entry.ContextMap())
		}
	}
}
