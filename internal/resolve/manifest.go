package resolve

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ben-ranford/reqmap/internal/safeio"
	"github.com/pelletier/go-toml/v2"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

var (
	ErrManifestNotFound = errors.New("resolution manifest not found")
	ErrInvalidManifest  = errors.New("invalid resolution manifest")
)

var manifestNames = []string{
	"reqmap.manifest.yaml",
	"reqmap.manifest.yml",
	"reqmap.manifest.json",
	"reqmap.manifest.toml",
}

var compiledManifestSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(manifestSchema))
})

// ManifestResolver answers requests from a static table of resolution results.
// Requests missing from the table resolve to Unresolvable.
type ManifestResolver struct {
	path    string
	digest  string
	entries map[string]Result
}

type rawManifest struct {
	Version  int                 `json:"version"`
	Requests map[string]rawEntry `json:"requests"`
}

type rawEntry struct {
	Single       *string           `json:"single"`
	Alternatives *[]string         `json:"alternatives"`
	Keyed        map[string]string `json:"keyed"`
	Special      *string           `json:"special"`
	Unresolvable *bool             `json:"unresolvable"`
	References   []string          `json:"references"`
}

func DiscoverManifest(repoPath string) (string, bool, error) {
	for _, name := range manifestNames {
		candidate := filepath.Join(repoPath, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !os.IsNotExist(err) {
			return "", false, fmt.Errorf("stat manifest %s: %w", candidate, err)
		}
	}
	return "", false, nil
}

func LoadManifest(manifestPath string) (*ManifestResolver, error) {
	data, err := safeio.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, manifestPath)
		}
		return nil, fmt.Errorf("read manifest %s: %w", manifestPath, err)
	}
	return ParseManifest(manifestPath, data)
}

// ParseManifest decodes data according to the extension of manifestPath and
// validates it against the manifest schema before building results.
func ParseManifest(manifestPath string, data []byte) (*ManifestResolver, error) {
	doc, err := decodeDocument(manifestPath, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidManifest, manifestPath, err)
	}
	if err := validateDocument(doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidManifest, manifestPath, err)
	}

	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidManifest, manifestPath, err)
	}
	decoder := json.NewDecoder(bytes.NewReader(normalized))
	decoder.DisallowUnknownFields()
	var raw rawManifest
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidManifest, manifestPath, err)
	}

	entries := make(map[string]Result, len(raw.Requests))
	for specifier, entry := range raw.Requests {
		result, err := entry.toResult()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: request %q: %w", ErrInvalidManifest, manifestPath, specifier, err)
		}
		entries[specifier] = result
	}

	digest := sha256.Sum256(data)
	return &ManifestResolver{
		path:    manifestPath,
		digest:  hex.EncodeToString(digest[:]),
		entries: entries,
	}, nil
}

func (m *ManifestResolver) Resolve(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if result, ok := m.entries[req.Key()]; ok {
		return result, nil
	}
	return &Unresolvable{}, nil
}

func (m *ManifestResolver) Path() string {
	return m.path
}

// Digest identifies the manifest content the resolver was built from.
func (m *ManifestResolver) Digest() string {
	return m.digest
}

func (m *ManifestResolver) Len() int {
	return len(m.entries)
}

func decodeDocument(manifestPath string, data []byte) (map[string]any, error) {
	var doc map[string]any
	switch strings.ToLower(filepath.Ext(manifestPath)) {
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid TOML: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported manifest extension %q", filepath.Ext(manifestPath))
	}
	if doc == nil {
		return nil, errors.New("manifest is empty")
	}
	return doc, nil
}

func validateDocument(doc map[string]any) error {
	schema, err := compiledManifestSchema()
	if err != nil {
		return fmt.Errorf("compile manifest schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}
	messages := make([]string, 0, len(result.Errors()))
	for _, item := range result.Errors() {
		messages = append(messages, item.String())
	}
	return errors.New(strings.Join(messages, "; "))
}

func (e rawEntry) toResult() (Result, error) {
	refs := normalizePaths(e.References)
	switch {
	case e.Single != nil:
		return &Single{Asset: FileAsset{FilePath: normalizePath(*e.Single)}, References: refs}, nil
	case e.Alternatives != nil:
		assets := make([]Asset, 0, len(*e.Alternatives))
		for _, candidate := range *e.Alternatives {
			assets = append(assets, FileAsset{FilePath: normalizePath(candidate)})
		}
		return &Alternatives{Assets: assets, References: refs}, nil
	case e.Keyed != nil:
		entries := make(map[string]Result, len(e.Keyed))
		for key, target := range e.Keyed {
			entries[key] = &Single{Asset: FileAsset{FilePath: normalizePath(target)}}
		}
		return &Keyed{Entries: entries}, nil
	case e.Special != nil:
		return &Special{Kind: SpecialKind(*e.Special)}, nil
	case e.Unresolvable != nil:
		return &Unresolvable{References: refs}, nil
	default:
		return nil, errors.New("entry has no result shape")
	}
}

func normalizePath(value string) string {
	return path.Clean(filepath.ToSlash(strings.TrimSpace(value)))
}

func normalizePaths(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		out = append(out, normalizePath(value))
	}
	return out
}
