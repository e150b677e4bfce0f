package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ben-ranford/reqmap/internal/chunk"
	"github.com/ben-ranford/reqmap/internal/pattern"
	"github.com/ben-ranford/reqmap/internal/report"
	"github.com/ben-ranford/reqmap/internal/testutil"
)

func cachedRequest(t *testing.T, repo, cacheDir string, scheme chunk.IDScheme) Request {
	t.Helper()
	req := pathRequest(repo, loadResolver(t, repo))
	req.IDScheme = scheme
	req.ConfigDigest = "config-v1"
	req.Cache = &CacheOptions{Enabled: true, Path: cacheDir}
	return req
}

func analyse(t *testing.T, req Request) report.Report {
	t.Helper()
	rep, err := newTestService().Analyse(context.Background(), req)
	if err != nil {
		t.Fatalf("analyse: %v", err)
	}
	return rep
}

func invalidationReasons(meta *report.CacheMetadata) map[string]int {
	reasons := make(map[string]int)
	for _, item := range meta.Invalidations {
		reasons[item.Reason]++
	}
	return reasons
}

func TestMappingCacheHitOnSecondRun(t *testing.T) {
	repo := writeFixtureRepo(t)
	cacheDir := t.TempDir()

	first := analyse(t, cachedRequest(t, repo, cacheDir, chunk.IDSchemePath))
	if first.Cache == nil || first.Cache.Hits != 0 || first.Cache.Misses != 5 || first.Cache.Writes != 5 {
		t.Fatalf("unexpected first cache metadata: %#v", first.Cache)
	}

	second := analyse(t, cachedRequest(t, repo, cacheDir, chunk.IDSchemePath))
	if second.Cache.Hits != 5 || second.Cache.Misses != 0 || second.Cache.Writes != 0 {
		t.Fatalf("unexpected second cache metadata: %#v", second.Cache)
	}
	if second.Memo.Misses != 0 {
		t.Fatalf("expected cached run to skip resolution, memo: %+v", second.Memo)
	}
	for i := range first.Requests {
		if !second.Requests[i].Cached {
			t.Fatalf("request %d: expected cached flag", i)
		}
		if first.Requests[i].Expression != second.Requests[i].Expression || first.Requests[i].Mapping != second.Requests[i].Mapping {
			t.Fatalf("request %d: cached result differs: %+v vs %+v", i, first.Requests[i], second.Requests[i])
		}
	}
	if len(second.Diagnostics) != len(first.Diagnostics) {
		t.Fatalf("expected cached diagnostics to be replayed, got %d want %d", len(second.Diagnostics), len(first.Diagnostics))
	}
	for i := range first.Diagnostics {
		if first.Diagnostics[i].Span != second.Diagnostics[i].Span || first.Diagnostics[i].Code != second.Diagnostics[i].Code {
			t.Fatalf("diagnostic %d differs: %+v vs %+v", i, first.Diagnostics[i], second.Diagnostics[i])
		}
	}
}

func TestMappingCacheInvalidatesOnManifestChange(t *testing.T) {
	repo := writeFixtureRepo(t)
	cacheDir := t.TempDir()
	analyse(t, cachedRequest(t, repo, cacheDir, chunk.IDSchemePath))

	testutil.MustWriteFile(t, filepath.Join(repo, manifestFileName), manifestSource+"  \"./missing\": { single: src/missing.js }\n")
	rep := analyse(t, cachedRequest(t, repo, cacheDir, chunk.IDSchemePath))

	if rep.Cache.Hits != 0 || rep.Cache.Misses != 5 || rep.Cache.Writes != 5 {
		t.Fatalf("unexpected cache metadata after manifest change: %#v", rep.Cache)
	}
	if got := invalidationReasons(rep.Cache)[reasonInputChanged]; got != 4 {
		t.Fatalf("expected 4 input-changed invalidations, got %#v", rep.Cache.Invalidations)
	}
	if rep.Requests[4].Mapping != pattern.KindSingle {
		t.Fatalf("expected newly listed request to resolve, got %+v", rep.Requests[4])
	}
}

func TestMappingCacheInvalidatesOnConfigChange(t *testing.T) {
	repo := writeFixtureRepo(t)
	cacheDir := t.TempDir()
	analyse(t, cachedRequest(t, repo, cacheDir, chunk.IDSchemePath))

	req := cachedRequest(t, repo, cacheDir, chunk.IDSchemePath)
	req.ConfigDigest = "config-v2"
	rep := analyse(t, req)
	if rep.Cache.Hits != 0 || invalidationReasons(rep.Cache)[reasonInputChanged] != 5 {
		t.Fatalf("expected config change to invalidate every entry, got %#v", rep.Cache)
	}
}

func TestMappingCacheReadOnlyDoesNotWrite(t *testing.T) {
	repo := writeFixtureRepo(t)
	cacheDir := t.TempDir()

	req := cachedRequest(t, repo, cacheDir, chunk.IDSchemePath)
	req.Cache.ReadOnly = true
	for run := 0; run < 2; run++ {
		rep := analyse(t, req)
		if rep.Cache.Writes != 0 || rep.Cache.Hits != 0 || rep.Cache.Misses != 5 || !rep.Cache.ReadOnly {
			t.Fatalf("run %d: unexpected read-only metadata: %#v", run, rep.Cache)
		}
	}
	entries, err := os.ReadDir(filepath.Join(cacheDir, "keys"))
	if err != nil {
		t.Fatalf("read keys dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no keys written, found %d", len(entries))
	}
}

func TestMappingCacheNumberSchemeReusesWholeRun(t *testing.T) {
	repo := writeFixtureRepo(t)
	cacheDir := t.TempDir()

	first := analyse(t, cachedRequest(t, repo, cacheDir, chunk.IDSchemeNumber))
	second := analyse(t, cachedRequest(t, repo, cacheDir, chunk.IDSchemeNumber))
	if second.Cache.Hits != 5 {
		t.Fatalf("expected full hit, got %#v", second.Cache)
	}
	for i := range first.Requests {
		a, b := first.Requests[i].ModuleID, second.Requests[i].ModuleID
		if (a == nil) != (b == nil) || (a != nil && !a.Equal(*b)) {
			t.Fatalf("request %d: id changed between runs: %v vs %v", i, a, b)
		}
	}
}

func TestMappingCacheNumberSchemeDiscardsPartialHits(t *testing.T) {
	repo := writeFixtureRepo(t)
	cacheDir := t.TempDir()
	analyse(t, cachedRequest(t, repo, cacheDir, chunk.IDSchemeNumber))

	keys, err := os.ReadDir(filepath.Join(cacheDir, "keys"))
	if err != nil || len(keys) != 5 {
		t.Fatalf("expected 5 cache keys, got %d (%v)", len(keys), err)
	}
	if err := os.Remove(filepath.Join(cacheDir, "keys", keys[0].Name())); err != nil {
		t.Fatalf("remove key: %v", err)
	}

	rep := analyse(t, cachedRequest(t, repo, cacheDir, chunk.IDSchemeNumber))
	if rep.Cache.Hits != 0 || rep.Cache.Misses != 5 || rep.Cache.Writes != 5 {
		t.Fatalf("unexpected metadata after partial hit: %#v", rep.Cache)
	}
	if got := invalidationReasons(rep.Cache)[reasonIncompleteRun]; got != 4 {
		t.Fatalf("expected 4 incomplete-run invalidations, got %#v", rep.Cache.Invalidations)
	}
	for _, item := range rep.Requests {
		if item.Cached {
			t.Fatalf("expected no cached requests, got %+v", item)
		}
	}
}

func TestMappingCacheKeepsPartialHitsUnderPathScheme(t *testing.T) {
	repo := writeFixtureRepo(t)
	cacheDir := t.TempDir()
	analyse(t, cachedRequest(t, repo, cacheDir, chunk.IDSchemePath))

	keys, err := os.ReadDir(filepath.Join(cacheDir, "keys"))
	if err != nil || len(keys) != 5 {
		t.Fatalf("expected 5 cache keys, got %d (%v)", len(keys), err)
	}
	if err := os.Remove(filepath.Join(cacheDir, "keys", keys[0].Name())); err != nil {
		t.Fatalf("remove key: %v", err)
	}

	rep := analyse(t, cachedRequest(t, repo, cacheDir, chunk.IDSchemePath))
	if rep.Cache.Hits != 4 || rep.Cache.Misses != 1 || rep.Cache.Writes != 1 {
		t.Fatalf("unexpected metadata after partial hit: %#v", rep.Cache)
	}
}

func TestMappingCacheCorruptEntries(t *testing.T) {
	repo := writeFixtureRepo(t)
	cacheDir := t.TempDir()
	analyse(t, cachedRequest(t, repo, cacheDir, chunk.IDSchemePath))

	keys, err := os.ReadDir(filepath.Join(cacheDir, "keys"))
	if err != nil || len(keys) < 2 {
		t.Fatalf("expected cache keys, got %d (%v)", len(keys), err)
	}
	testutil.MustWriteFile(t, filepath.Join(cacheDir, "keys", keys[0].Name()), "{")
	objects, err := os.ReadDir(filepath.Join(cacheDir, "objects"))
	if err != nil {
		t.Fatalf("read objects: %v", err)
	}
	for _, object := range objects {
		if err := os.Remove(filepath.Join(cacheDir, "objects", object.Name())); err != nil {
			t.Fatalf("remove object: %v", err)
		}
	}

	rep := analyse(t, cachedRequest(t, repo, cacheDir, chunk.IDSchemePath))
	reasons := invalidationReasons(rep.Cache)
	if reasons[reasonPointerCorrupt] != 1 || reasons[reasonObjectMissing] != 4 {
		t.Fatalf("unexpected invalidations: %#v", rep.Cache.Invalidations)
	}
	if rep.Cache.Writes != 5 {
		t.Fatalf("expected entries to be rewritten, got %#v", rep.Cache)
	}
}

func TestMappingCacheMapEntryFailsSynthesis(t *testing.T) {
	repo := writeFixtureRepo(t)
	cacheDir := t.TempDir()
	analyse(t, cachedRequest(t, repo, cacheDir, chunk.IDSchemePath))

	objects, err := os.ReadDir(filepath.Join(cacheDir, "objects"))
	if err != nil {
		t.Fatalf("read objects: %v", err)
	}
	for _, object := range objects {
		testutil.MustWriteFile(t, filepath.Join(cacheDir, "objects", object.Name()), `{"mapping":{"kind":"map","entries":{"cat":1}}}`)
	}

	_, err = newTestService().Analyse(context.Background(), cachedRequest(t, repo, cacheDir, chunk.IDSchemePath))
	if !errors.Is(err, pattern.ErrUnsupportedComplexExpression) {
		t.Fatalf("expected unsupported complex expression error, got %v", err)
	}
}

func TestMappingCacheDisabledForResolverWithoutDigest(t *testing.T) {
	repo := writeFixtureRepo(t)
	req := pathRequest(repo, staticResolver{})
	req.Cache = &CacheOptions{Enabled: true, Path: t.TempDir()}

	rep := analyse(t, req)
	if rep.Cache.Writes != 0 || rep.Cache.Misses != 0 {
		t.Fatalf("expected cache to stay idle, got %#v", rep.Cache)
	}
	if len(rep.Warnings) != 1 || rep.Warnings[0] != "mapping cache disabled: resolver has no content digest" {
		t.Fatalf("expected cache warning, got %v", rep.Warnings)
	}
}

func TestResolveCacheOptions(t *testing.T) {
	repo := t.TempDir()
	defaults := resolveCacheOptions(nil, repo)
	if !defaults.Enabled || defaults.Path != filepath.Join(repo, ".reqmap-cache") || defaults.ReadOnly {
		t.Fatalf("unexpected defaults: %#v", defaults)
	}
	relative := resolveCacheOptions(&CacheOptions{Enabled: true, Path: " tmp/cache "}, repo)
	if relative.Path != filepath.Join(repo, "tmp", "cache") {
		t.Fatalf("expected repo-relative cache path, got %q", relative.Path)
	}
	absolute := filepath.Join(t.TempDir(), "abs")
	if got := resolveCacheOptions(&CacheOptions{Enabled: true, Path: absolute}, repo).Path; got != absolute {
		t.Fatalf("expected absolute cache path, got %q", got)
	}
}

func TestMappingCacheUnavailableDirectory(t *testing.T) {
	blocker := testutil.WriteTempFile(t, "blocker", "x")
	cache := newMappingCache(&CacheOptions{Enabled: true, Path: blocker}, t.TempDir())
	if cache.usable() {
		t.Fatalf("expected cache to be unusable")
	}
	warnings := cache.takeWarnings()
	if len(warnings) != 1 {
		t.Fatalf("expected one warning, got %v", warnings)
	}
	if cache.takeWarnings() != nil {
		t.Fatalf("expected warnings to be drained")
	}
}
