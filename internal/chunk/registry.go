package chunk

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
)

const (
	TypeEcmascript = "ecmascript"
	TypeCSS        = "css"
)

var ErrUnknownChunkType = errors.New("unknown chunk type")

// Type describes which assets a kind of chunk can carry as modules.
type Type struct {
	ID         string
	Aliases    []string
	Extensions []string
}

func (t Type) Accepts(assetPath string) bool {
	ext := strings.ToLower(path.Ext(assetPath))
	if ext == "" {
		return false
	}
	for _, candidate := range t.Extensions {
		if candidate == ext {
			return true
		}
	}
	return false
}

type Registry struct {
	types map[string]Type
}

func NewRegistry() *Registry {
	return &Registry{types: make(map[string]Type)}
}

func DefaultRegistry() *Registry {
	registry := NewRegistry()
	_ = registry.Register(Type{
		ID:         TypeEcmascript,
		Aliases:    []string{"js", "javascript"},
		Extensions: []string{".js", ".mjs", ".cjs", ".jsx", ".ts", ".mts", ".cts", ".tsx", ".json"},
	})
	_ = registry.Register(Type{
		ID:         TypeCSS,
		Extensions: []string{".css"},
	})
	return registry
}

func (r *Registry) Register(chunkType Type) error {
	ids := append([]string{chunkType.ID}, chunkType.Aliases...)
	for _, id := range ids {
		key := normalizeID(id)
		if key == "" {
			return errors.New("chunk type id cannot be empty")
		}
		if _, exists := r.types[key]; exists {
			return fmt.Errorf("chunk type id already registered: %s", id)
		}
	}

	for _, id := range ids {
		r.types[normalizeID(id)] = chunkType
	}
	return nil
}

func (r *Registry) Select(id string) (Type, error) {
	if r == nil {
		return Type{}, errors.New("chunk type registry is nil")
	}
	chunkType, ok := r.types[normalizeID(id)]
	if !ok {
		return Type{}, fmt.Errorf("%w: %s", ErrUnknownChunkType, id)
	}
	return chunkType, nil
}

func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]struct{})
	ids := make([]string, 0, len(r.types))
	for _, chunkType := range r.types {
		if _, ok := seen[chunkType.ID]; ok {
			continue
		}
		seen[chunkType.ID] = struct{}{}
		ids = append(ids, chunkType.ID)
	}
	sort.Strings(ids)
	return ids
}

func normalizeID(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
