package config

import (
	"fmt"
	"strings"

	"github.com/ben-ranford/reqmap/internal/chunk"
)

const (
	DefaultChunkType      = chunk.TypeEcmascript
	DefaultIDScheme       = chunk.IDSchemeNumber
	DefaultConcurrency    = 8
	MaxConcurrency        = 256
	DefaultCacheEnabled   = true
	DefaultCacheDirectory = ".reqmap-cache"
)

type CacheValues struct {
	Enabled  bool
	Path     string
	ReadOnly bool
}

type Values struct {
	ChunkType   string
	IDScheme    chunk.IDScheme
	Manifest    string
	Concurrency int
	Cache       CacheValues
	Include     []string
	Exclude     []string
}

// Overrides holds the settings a config file or the command line set
// explicitly. Nil fields keep the lower layer's value.
type Overrides struct {
	ChunkType     *string
	IDScheme      *string
	Manifest      *string
	Concurrency   *int
	CacheEnabled  *bool
	CachePath     *string
	CacheReadOnly *bool
	Include       []string
	Exclude       []string
}

func Defaults() Values {
	return Values{
		ChunkType:   DefaultChunkType,
		IDScheme:    DefaultIDScheme,
		Concurrency: DefaultConcurrency,
		Cache: CacheValues{
			Enabled: DefaultCacheEnabled,
		},
	}
}

func (v *Values) Validate() error {
	if err := validateChunkType(v.ChunkType); err != nil {
		return err
	}
	if _, err := chunk.ParseIDScheme(string(v.IDScheme)); err != nil {
		return fmt.Errorf("invalid id_scheme: %w", err)
	}
	if err := validateConcurrency(v.Concurrency); err != nil {
		return err
	}
	if v.Cache.ReadOnly && !v.Cache.Enabled {
		return fmt.Errorf("invalid cache settings: read_only requires the cache to be enabled")
	}
	return nil
}

func (o *Overrides) Apply(base Values) Values {
	resolved := base
	if o.ChunkType != nil {
		resolved.ChunkType = strings.TrimSpace(*o.ChunkType)
	}
	if o.IDScheme != nil {
		resolved.IDScheme = chunk.IDScheme(strings.ToLower(strings.TrimSpace(*o.IDScheme)))
	}
	if o.Manifest != nil {
		resolved.Manifest = strings.TrimSpace(*o.Manifest)
	}
	if o.Concurrency != nil {
		resolved.Concurrency = *o.Concurrency
	}
	if o.CacheEnabled != nil {
		resolved.Cache.Enabled = *o.CacheEnabled
	}
	if o.CachePath != nil {
		resolved.Cache.Path = strings.TrimSpace(*o.CachePath)
	}
	if o.CacheReadOnly != nil {
		resolved.Cache.ReadOnly = *o.CacheReadOnly
	}
	if len(o.Include) > 0 {
		resolved.Include = append([]string{}, o.Include...)
	}
	if len(o.Exclude) > 0 {
		resolved.Exclude = append([]string{}, o.Exclude...)
	}
	return resolved
}

func (o *Overrides) Validate() error {
	if o.ChunkType != nil {
		if err := validateChunkType(*o.ChunkType); err != nil {
			return err
		}
	}
	if o.IDScheme != nil {
		if _, err := chunk.ParseIDScheme(*o.IDScheme); err != nil {
			return fmt.Errorf("invalid id_scheme: %w", err)
		}
	}
	if o.Concurrency != nil {
		if err := validateConcurrency(*o.Concurrency); err != nil {
			return err
		}
	}
	return nil
}

// Merge layers higher over o, the way command-line flags sit over a config
// file.
func (o Overrides) Merge(higher Overrides) Overrides {
	merged := o
	if higher.ChunkType != nil {
		merged.ChunkType = higher.ChunkType
	}
	if higher.IDScheme != nil {
		merged.IDScheme = higher.IDScheme
	}
	if higher.Manifest != nil {
		merged.Manifest = higher.Manifest
	}
	if higher.Concurrency != nil {
		merged.Concurrency = higher.Concurrency
	}
	if higher.CacheEnabled != nil {
		merged.CacheEnabled = higher.CacheEnabled
	}
	if higher.CachePath != nil {
		merged.CachePath = higher.CachePath
	}
	if higher.CacheReadOnly != nil {
		merged.CacheReadOnly = higher.CacheReadOnly
	}
	if len(higher.Include) > 0 {
		merged.Include = higher.Include
	}
	if len(higher.Exclude) > 0 {
		merged.Exclude = higher.Exclude
	}
	return merged
}

func validateChunkType(value string) error {
	if _, err := chunk.DefaultRegistry().Select(value); err != nil {
		return fmt.Errorf("invalid chunk_type: %w", err)
	}
	return nil
}

func validateConcurrency(value int) error {
	if value < 1 || value > MaxConcurrency {
		return fmt.Errorf("invalid concurrency: %d (must be between 1 and %d)", value, MaxConcurrency)
	}
	return nil
}
