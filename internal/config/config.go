// Package config loads repository settings from .reqmap.yml, .reqmap.yaml,
// .reqmap.toml or reqmap.json.
package config

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/ben-ranford/reqmap/internal/safeio"
)

const (
	readConfigFileErrFmt = "read config file %s: %w"
	parseConfigErrFmt    = "parse config file %s: %w"
)

var configFileNames = []string{".reqmap.yml", ".reqmap.yaml", ".reqmap.toml", "reqmap.json"}

type LoadResult struct {
	Overrides  Overrides
	Resolved   Values
	ConfigPath string
	// Digest is the sha256 of the config file, or empty without one.
	Digest string
}

// Load discovers and parses the repository config. The explicit path, when
// set, must exist; it may live outside the repository.
func Load(repoPath, explicitPath string) (LoadResult, error) {
	repoAbs, err := filepath.Abs(repoPath)
	if err != nil {
		return LoadResult{}, fmt.Errorf("resolve repo path: %w", err)
	}
	explicitPath = strings.TrimSpace(explicitPath)

	configPath, found, err := resolveConfigPath(repoAbs, explicitPath)
	if err != nil {
		return LoadResult{}, err
	}
	if !found {
		return LoadResult{Resolved: Defaults()}, nil
	}

	data, err := readConfigFile(repoAbs, configPath, explicitPath != "")
	if err != nil {
		return LoadResult{}, fmt.Errorf(readConfigFileErrFmt, configPath, err)
	}
	cfg, err := parseConfig(configPath, data)
	if err != nil {
		return LoadResult{}, fmt.Errorf(parseConfigErrFmt, configPath, err)
	}
	overrides := cfg.toOverrides()
	if err := overrides.Validate(); err != nil {
		return LoadResult{}, fmt.Errorf(parseConfigErrFmt, configPath, err)
	}
	resolved := overrides.Apply(Defaults())
	if err := resolved.Validate(); err != nil {
		return LoadResult{}, fmt.Errorf(parseConfigErrFmt, configPath, err)
	}

	sum := sha256.Sum256(data)
	return LoadResult{
		Overrides:  overrides,
		Resolved:   resolved,
		ConfigPath: configPath,
		Digest:     hex.EncodeToString(sum[:]),
	}, nil
}

func resolveConfigPath(repoPath, explicitPath string) (string, bool, error) {
	if explicitPath != "" {
		candidate := explicitPath
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(repoPath, candidate)
		}
		candidate = filepath.Clean(candidate)
		if _, err := os.Stat(candidate); err != nil {
			if os.IsNotExist(err) {
				return "", false, fmt.Errorf("config file not found: %s", candidate)
			}
			return "", false, fmt.Errorf(readConfigFileErrFmt, candidate, err)
		}
		return candidate, true, nil
	}

	for _, name := range configFileNames {
		candidate := filepath.Join(repoPath, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !os.IsNotExist(err) {
			return "", false, fmt.Errorf(readConfigFileErrFmt, candidate, err)
		}
	}
	return "", false, nil
}

func readConfigFile(repoPath, path string, explicitProvided bool) ([]byte, error) {
	if !explicitProvided || isPathUnderRoot(repoPath, path) {
		return safeio.ReadFileUnder(repoPath, path)
	}
	return safeio.ReadFile(path)
}

func isPathUnderRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}

type rawConfig struct {
	ChunkType   *string  `yaml:"chunk_type" json:"chunk_type" toml:"chunk_type"`
	IDScheme    *string  `yaml:"id_scheme" json:"id_scheme" toml:"id_scheme"`
	Manifest    *string  `yaml:"manifest" json:"manifest" toml:"manifest"`
	Concurrency *int     `yaml:"concurrency" json:"concurrency" toml:"concurrency"`
	Cache       rawCache `yaml:"cache" json:"cache" toml:"cache"`
	Include     []string `yaml:"include" json:"include" toml:"include"`
	Exclude     []string `yaml:"exclude" json:"exclude" toml:"exclude"`
}

type rawCache struct {
	Enabled  *bool   `yaml:"enabled" json:"enabled" toml:"enabled"`
	Path     *string `yaml:"path" json:"path" toml:"path"`
	ReadOnly *bool   `yaml:"read_only" json:"read_only" toml:"read_only"`
}

func parseConfig(path string, data []byte) (rawConfig, error) {
	var cfg rawConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return rawConfig{}, fmt.Errorf("invalid JSON config: %w", err)
		}
		if decoder.More() {
			return rawConfig{}, errors.New("invalid JSON config: multiple JSON values")
		}
	case ".toml":
		decoder := toml.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return rawConfig{}, fmt.Errorf("invalid TOML config: %w", err)
		}
	default:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		// An empty document leaves every setting at its default.
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return rawConfig{}, fmt.Errorf("invalid YAML config: %w", err)
		}
	}
	return cfg, nil
}

func (c *rawConfig) toOverrides() Overrides {
	return Overrides{
		ChunkType:     c.ChunkType,
		IDScheme:      c.IDScheme,
		Manifest:      c.Manifest,
		Concurrency:   c.Concurrency,
		CacheEnabled:  c.Cache.Enabled,
		CachePath:     c.Cache.Path,
		CacheReadOnly: c.Cache.ReadOnly,
		Include:       normalizePathPatterns(c.Include),
		Exclude:       normalizePathPatterns(c.Exclude),
	}
}

func normalizePathPatterns(patterns []string) []string {
	if len(patterns) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(patterns))
	normalized := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		trimmed := strings.TrimSpace(pattern)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	if len(normalized) == 0 {
		return nil
	}
	return normalized
}
