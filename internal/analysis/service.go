package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ben-ranford/reqmap/internal/ast"
	"github.com/ben-ranford/reqmap/internal/chunk"
	"github.com/ben-ranford/reqmap/internal/config"
	"github.com/ben-ranford/reqmap/internal/diag"
	"github.com/ben-ranford/reqmap/internal/pattern"
	"github.com/ben-ranford/reqmap/internal/report"
	"github.com/ben-ranford/reqmap/internal/resolve"
	"github.com/ben-ranford/reqmap/internal/scan"
)

var ErrNoResolver = errors.New("resolver is not configured")

type Analyser interface {
	Analyse(ctx context.Context, req Request) (report.Report, error)
}

// Service runs the request pipeline: scan, resolve, map and synthesize.
type Service struct {
	Registry *chunk.Registry
	Now      func() time.Time
}

func NewService() *Service {
	return &Service{
		Registry: chunk.DefaultRegistry(),
		Now:      time.Now,
	}
}

type entryKey struct {
	identity string
	strategy pattern.LoadingStrategy
}

type mappedRequest struct {
	mapping pattern.Mapping
	cached  bool
}

func (s *Service) Analyse(ctx context.Context, req Request) (report.Report, error) {
	if req.Resolver == nil {
		return report.Report{}, ErrNoResolver
	}
	registry := s.Registry
	if registry == nil {
		registry = chunk.DefaultRegistry()
	}
	chunkType, err := registry.Select(req.ChunkType)
	if err != nil {
		return report.Report{}, err
	}
	scheme, err := chunk.ParseIDScheme(string(req.IDScheme))
	if err != nil {
		return report.Report{}, err
	}
	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = config.DefaultConcurrency
	}

	scanned, err := scan.ScanRepo(ctx, req.RepoPath, scan.Options{Include: req.Include, Exclude: req.Exclude})
	if err != nil {
		return report.Report{}, err
	}
	found := scanned.Requests()

	results, err := resolveAll(ctx, req.Resolver, found, concurrency)
	if err != nil {
		return report.Report{}, err
	}
	keys := make([]entryKey, len(found))
	for i := range found {
		keys[i] = entryKey{identity: resolve.Identity(results[i]), strategy: found[i].Strategy}
	}

	cache := newMappingCache(req.Cache, req.RepoPath)
	entries := describeEntries(req, chunkType, scheme, keys, results, cache)
	hits := lookupEntries(cache, entries, scheme)

	collector := diag.NewCollector()
	memo := pattern.NewMemo(chunk.NewChunkingContext(chunkType, scheme))
	if scheme == chunk.IDSchemeNumber && len(hits) == 0 {
		if err := assignInScanOrder(ctx, memo, found, results); err != nil {
			return report.Report{}, err
		}
	}
	mapped, fresh, err := mapAll(ctx, memo, found, results, keys, hits, collector, concurrency)
	if err != nil {
		return report.Report{}, err
	}

	requests, err := synthesizeAll(found, results, mapped)
	if err != nil {
		return report.Report{}, err
	}
	storeEntries(cache, entries, fresh)

	diagnostics := collector.Diagnostics()
	summary := report.Summarize(requests, diagnostics, len(scanned.Files))
	stats := memo.Stats()
	warnings := append(append([]string(nil), scanned.Warnings...), cache.takeWarnings()...)
	return report.Report{
		SchemaVersion: report.SchemaVersion,
		GeneratedAt:   s.now(),
		RepoPath:      req.RepoPath,
		ManifestPath:  resolverPath(req.Resolver),
		ChunkType:     chunkType.ID,
		IDScheme:      string(scheme),
		Requests:      requests,
		Summary:       &summary,
		Cache:         cache.metadataSnapshot(),
		Memo: &report.MemoMetadata{
			Hits:   stats.Hits,
			Misses: stats.Misses,
			Shared: stats.Shared,
			Size:   stats.Size,
		},
		Diagnostics: diagnostics,
		Warnings:    warnings,
	}, nil
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func resolveAll(ctx context.Context, resolver resolve.Resolver, found []scan.FoundRequest, concurrency int) ([]resolve.Result, error) {
	results := make([]resolve.Result, len(found))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)
	for i := range found {
		group.Go(func() error {
			result, err := resolver.Resolve(groupCtx, found[i].Request)
			if err != nil {
				return fmt.Errorf("resolve %q at %s: %w", found[i].Request.Specifier, found[i].Span, err)
			}
			if result == nil {
				result = &resolve.Unresolvable{}
			}
			results[i] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// describeEntries builds one cache descriptor per distinct request key.
// Numeric ids depend on every request in the run, so under the number scheme
// the input digest also covers the full key set.
func describeEntries(req Request, chunkType chunk.Type, scheme chunk.IDScheme, keys []entryKey, results []resolve.Result, cache *mappingCache) map[entryKey]cacheEntryDescriptor {
	if !cache.usable() {
		return nil
	}
	manifestDigest, ok := resolverDigest(req.Resolver)
	if !ok {
		cache.disable("resolver has no content digest")
		return nil
	}
	input := map[string]any{
		"manifest": manifestDigest,
		"config":   req.ConfigDigest,
	}
	if scheme == chunk.IDSchemeNumber {
		input["run"] = runDigest(keys)
	}
	inputDigest, err := hashJSON(input)
	if err != nil {
		cache.disable(err.Error())
		return nil
	}

	entries := make(map[entryKey]cacheEntryDescriptor, len(keys))
	for i, key := range keys {
		if _, ok := entries[key]; ok {
			continue
		}
		keyDigest, err := hashJSON(map[string]any{
			"schema":    mappingCacheSchemaVersion,
			"chunkType": chunkType.ID,
			"idScheme":  string(scheme),
			"identity":  key.identity,
			"strategy":  key.strategy.String(),
		})
		if err != nil {
			cache.disable(err.Error())
			return nil
		}
		entries[key] = cacheEntryDescriptor{
			KeyLabel:    key.strategy.String() + ":" + resolve.Describe(results[i]),
			KeyDigest:   keyDigest,
			InputDigest: inputDigest,
		}
	}
	return entries
}

func runDigest(keys []entryKey) string {
	unique := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		unique[key.strategy.String()+"\x00"+key.identity] = struct{}{}
	}
	records := make([]string, 0, len(unique))
	for record := range unique {
		records = append(records, record)
	}
	sort.Strings(records)
	digest, _ := hashJSON(records)
	return digest
}

func sortedEntryKeys(entries map[entryKey]cacheEntryDescriptor) []entryKey {
	keys := make([]entryKey, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].identity != keys[j].identity {
			return keys[i].identity < keys[j].identity
		}
		return keys[i].strategy < keys[j].strategy
	})
	return keys
}

// lookupEntries reads every entry up front. Under the number scheme cached
// ids are only consistent with each other, so a partial hit set is discarded.
func lookupEntries(cache *mappingCache, entries map[entryKey]cacheEntryDescriptor, scheme chunk.IDScheme) map[entryKey]cachedMapping {
	if !cache.usable() || len(entries) == 0 {
		return nil
	}
	hits := make(map[entryKey]cachedMapping, len(entries))
	missed := false
	for _, key := range sortedEntryKeys(entries) {
		value, ok, err := cache.lookup(entries[key])
		if err != nil {
			cache.disable(err.Error())
			return nil
		}
		if !ok {
			missed = true
			continue
		}
		hits[key] = value
	}
	if scheme == chunk.IDSchemeNumber && missed && len(hits) > 0 {
		labels := make([]string, 0, len(hits))
		for _, key := range sortedEntryKeys(entries) {
			if _, ok := hits[key]; ok {
				labels = append(labels, entries[key].KeyLabel)
			}
		}
		cache.demote(labels, reasonIncompleteRun)
		return nil
	}
	return hits
}

// assignInScanOrder maps each request once, in scan order, so numeric ids do
// not depend on goroutine scheduling. The parallel pass then reads the memo.
func assignInScanOrder(ctx context.Context, memo *pattern.Memo, found []scan.FoundRequest, results []resolve.Result) error {
	for i := range found {
		if _, err := memo.Resolve(ctx, results[i], found[i].Strategy, nil); err != nil {
			return fmt.Errorf("map %q at %s: %w", found[i].Request.Specifier, found[i].Span, err)
		}
	}
	return nil
}

func mapAll(
	ctx context.Context,
	memo *pattern.Memo,
	found []scan.FoundRequest,
	results []resolve.Result,
	keys []entryKey,
	hits map[entryKey]cachedMapping,
	collector *diag.Collector,
	concurrency int,
) ([]mappedRequest, map[entryKey]cachedMapping, error) {
	out := diag.Tee(collector, diag.LogSink(diag.Logger()))
	mapped := make([]mappedRequest, len(found))
	fresh := make(map[entryKey]cachedMapping)
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)
	for i := range found {
		group.Go(func() error {
			sink := diag.WithSpan(out, found[i].Span)
			if hit, ok := hits[keys[i]]; ok {
				for _, item := range hit.diagnostics {
					sink.Report(item)
				}
				mapped[i] = mappedRequest{mapping: hit.mapping, cached: true}
				return nil
			}

			local := diag.NewCollector()
			mapping, err := memo.Resolve(groupCtx, results[i], found[i].Strategy, diag.Tee(local, sink))
			if err != nil {
				return fmt.Errorf("map %q at %s: %w", found[i].Request.Specifier, found[i].Span, err)
			}
			mapped[i] = mappedRequest{mapping: mapping}

			mu.Lock()
			if _, ok := fresh[keys[i]]; !ok {
				fresh[keys[i]] = cachedMapping{mapping: mapping, diagnostics: local.Diagnostics()}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, nil, err
	}
	return mapped, fresh, nil
}

func synthesizeAll(found []scan.FoundRequest, results []resolve.Result, mapped []mappedRequest) ([]report.RequestReport, error) {
	requests := make([]report.RequestReport, 0, len(found))
	for i, item := range found {
		expr, err := pattern.Create(mapped[i].mapping)
		if err != nil {
			return nil, fmt.Errorf("synthesize %q at %s: %w", item.Request.Specifier, item.Span, err)
		}
		entry := report.RequestReport{
			Location:   report.LocationFromSpan(item.Span),
			Specifier:  item.Request.Specifier,
			Kind:       string(item.Kind),
			Strategy:   item.Strategy.String(),
			Resolution: resolve.Describe(results[i]),
			Mapping:    pattern.Kind(mapped[i].mapping),
			Expression: ast.Print(expr),
			Cached:     mapped[i].cached,
		}
		if item.Request.Dynamic {
			entry.Pattern = item.Request.Pattern
		}
		if single, ok := mapped[i].mapping.(pattern.Single); ok {
			id := single.ID
			entry.ModuleID = &id
		}
		requests = append(requests, entry)
	}
	return requests, nil
}

func storeEntries(cache *mappingCache, entries map[entryKey]cacheEntryDescriptor, fresh map[entryKey]cachedMapping) {
	if !cache.usable() {
		return
	}
	for _, key := range sortedEntryKeys(entries) {
		value, ok := fresh[key]
		if !ok {
			continue
		}
		if err := cache.store(entries[key], value); err != nil {
			cache.disable("store entry: " + err.Error())
			return
		}
	}
}
