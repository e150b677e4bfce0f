package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/ben-ranford/reqmap/internal/config"
	"github.com/ben-ranford/reqmap/internal/diag"
	"github.com/ben-ranford/reqmap/internal/pattern"
	"github.com/ben-ranford/reqmap/internal/report"
	"github.com/ben-ranford/reqmap/internal/safeio"
)

const mappingCacheSchemaVersion = "v1"

const (
	reasonPointerCorrupt  = "pointer-corrupt"
	reasonInputChanged    = "input-changed"
	reasonObjectMissing   = "object-missing"
	reasonObjectReadError = "object-read-error"
	reasonObjectCorrupt   = "object-corrupt"
	reasonIncompleteRun   = "incomplete-run"
)

type cacheEntryDescriptor struct {
	KeyLabel    string
	KeyDigest   string
	InputDigest string
}

type cachePointer struct {
	InputDigest  string `json:"inputDigest"`
	ObjectDigest string `json:"objectDigest"`
}

type cachedPayload struct {
	Mapping     json.RawMessage   `json:"mapping"`
	Diagnostics []diag.Diagnostic `json:"diagnostics,omitempty"`
}

// cachedMapping is a decoded cache object. Diagnostics carry no span; the
// caller attaches the span of each request that uses the entry.
type cachedMapping struct {
	mapping     pattern.Mapping
	diagnostics []diag.Diagnostic
}

type resolvedCacheOptions struct {
	Enabled  bool
	Path     string
	ReadOnly bool
}

// mappingCache is not safe for concurrent use. The service looks entries up
// before the mapping phase and stores them after it.
type mappingCache struct {
	options   resolvedCacheOptions
	metadata  report.CacheMetadata
	warnings  []string
	cacheable bool
}

func newMappingCache(opts *CacheOptions, repoPath string) *mappingCache {
	options := resolveCacheOptions(opts, repoPath)
	cache := &mappingCache{
		options: options,
		metadata: report.CacheMetadata{
			Enabled:  options.Enabled,
			Path:     options.Path,
			ReadOnly: options.ReadOnly,
		},
	}
	if !options.Enabled {
		return cache
	}
	for _, dir := range []string{"keys", "objects"} {
		if err := os.MkdirAll(filepath.Join(options.Path, dir), 0o750); err != nil {
			cache.warn("mapping cache unavailable: " + err.Error())
			return cache
		}
	}
	cache.cacheable = true
	return cache
}

func resolveCacheOptions(opts *CacheOptions, repoPath string) resolvedCacheOptions {
	options := resolvedCacheOptions{
		Enabled: config.DefaultCacheEnabled,
		Path:    filepath.Join(repoPath, config.DefaultCacheDirectory),
	}
	if opts == nil {
		return options
	}
	options.Enabled = opts.Enabled
	if path := strings.TrimSpace(opts.Path); path != "" {
		if !filepath.IsAbs(path) {
			path = filepath.Join(repoPath, path)
		}
		options.Path = path
	}
	options.ReadOnly = opts.ReadOnly
	return options
}

func (c *mappingCache) usable() bool {
	return c != nil && c.options.Enabled && c.cacheable
}

// disable stops the cache from serving or storing entries for the rest of the
// run, keeping the metadata recorded so far.
func (c *mappingCache) disable(reason string) {
	if !c.usable() {
		return
	}
	c.cacheable = false
	c.warn("mapping cache disabled: " + reason)
}

func (c *mappingCache) warn(message string) {
	if strings.TrimSpace(message) == "" {
		return
	}
	c.warnings = append(c.warnings, message)
}

func (c *mappingCache) takeWarnings() []string {
	if len(c.warnings) == 0 {
		return nil
	}
	out := append([]string(nil), c.warnings...)
	c.warnings = c.warnings[:0]
	return out
}

func (c *mappingCache) metadataSnapshot() *report.CacheMetadata {
	if c == nil {
		return nil
	}
	snapshot := c.metadata
	if len(c.metadata.Invalidations) > 0 {
		snapshot.Invalidations = append([]report.CacheInvalidation(nil), c.metadata.Invalidations...)
	}
	return &snapshot
}

func (c *mappingCache) invalidate(label, reason string) {
	c.metadata.Misses++
	c.metadata.Invalidations = append(c.metadata.Invalidations, report.CacheInvalidation{Key: label, Reason: reason})
}

func (c *mappingCache) lookup(entry cacheEntryDescriptor) (cachedMapping, bool, error) {
	if !c.usable() {
		return cachedMapping{}, false, nil
	}
	pointerPath := filepath.Join(c.options.Path, "keys", entry.KeyDigest+".json")
	pointerData, err := safeio.ReadFileUnder(c.options.Path, pointerPath)
	if err != nil {
		if os.IsNotExist(err) {
			c.metadata.Misses++
			return cachedMapping{}, false, nil
		}
		return cachedMapping{}, false, err
	}
	var pointer cachePointer
	if err = json.Unmarshal(pointerData, &pointer); err != nil {
		c.invalidate(entry.KeyLabel, reasonPointerCorrupt)
		return cachedMapping{}, false, nil
	}
	if pointer.InputDigest != entry.InputDigest {
		c.invalidate(entry.KeyLabel, reasonInputChanged)
		return cachedMapping{}, false, nil
	}

	objectPath := filepath.Join(c.options.Path, "objects", pointer.ObjectDigest+".json")
	objectData, err := safeio.ReadFileUnder(c.options.Path, objectPath)
	if err != nil {
		reason := reasonObjectReadError
		if os.IsNotExist(err) {
			reason = reasonObjectMissing
		}
		c.invalidate(entry.KeyLabel, reason)
		return cachedMapping{}, false, nil
	}

	var payload cachedPayload
	if err = json.Unmarshal(objectData, &payload); err != nil {
		c.invalidate(entry.KeyLabel, reasonObjectCorrupt)
		return cachedMapping{}, false, nil
	}
	mapping, err := pattern.UnmarshalMapping(payload.Mapping)
	if err != nil {
		c.invalidate(entry.KeyLabel, reasonObjectCorrupt)
		return cachedMapping{}, false, nil
	}
	c.metadata.Hits++
	return cachedMapping{mapping: mapping, diagnostics: payload.Diagnostics}, true, nil
}

// demote turns earlier hits into misses when they cannot be used together
// with freshly computed entries.
func (c *mappingCache) demote(labels []string, reason string) {
	for _, label := range labels {
		c.metadata.Hits--
		c.invalidate(label, reason)
	}
}

func (c *mappingCache) store(entry cacheEntryDescriptor, value cachedMapping) error {
	if !c.usable() || c.options.ReadOnly {
		return nil
	}
	encoded, err := pattern.MarshalMapping(value.mapping)
	if err != nil {
		return err
	}
	serializedPayload, err := json.Marshal(cachedPayload{Mapping: encoded, Diagnostics: value.diagnostics})
	if err != nil {
		return err
	}
	objectDigest := sha256Hex(serializedPayload)
	objectPath := filepath.Join(c.options.Path, "objects", objectDigest+".json")
	if _, err := os.Stat(objectPath); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if err := safeio.WriteFileAtomic(objectPath, serializedPayload); err != nil {
			return err
		}
	}

	serializedPointer, err := json.Marshal(cachePointer{InputDigest: entry.InputDigest, ObjectDigest: objectDigest})
	if err != nil {
		return err
	}
	pointerPath := filepath.Join(c.options.Path, "keys", entry.KeyDigest+".json")
	if err := safeio.WriteFileAtomic(pointerPath, serializedPointer); err != nil {
		return err
	}
	c.metadata.Writes++
	return nil
}

func hashJSON(value any) (string, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return sha256Hex(payload), nil
}

func sha256Hex(data []byte) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])
}
