// Package pattern maps module-loading requests to the runtime module ids they
// load, and turns those mappings into replacement expressions.
//
// A request pattern such as "./module" or `./images/${name}.png` resolves to a
// Mapping. Constant requests map to a single id; templated requests may select
// among several ids at runtime and are represented by Map, which no resolver
// produces yet and no synthesizer can emit code for.
package pattern

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/ben-ranford/reqmap/internal/chunk"
)

// Mapping is closed to this package: Invalid, Single and Map are the only
// implementations, and every consumer switches over all three.
type Mapping interface {
	isMapping()
	String() string
}

func (Invalid) isMapping() {}
func (Single) isMapping()  {}
func (Map) isMapping()     {}

// Invalid is a request that could not be resolved to a usable module.
type Invalid struct{}

// Single is a request that always loads the same module.
//
//	require("./module")
type Single struct {
	ID chunk.ModuleID
}

// Map is a request whose target depends on a runtime value.
//
//	require(`./images/${name}.png`)
type Map struct {
	Entries map[string]chunk.ModuleID
}

// NewMap copies entries so the mapping cannot change after construction.
func NewMap(entries map[string]chunk.ModuleID) Map {
	return Map{Entries: maps.Clone(entries)}
}

func (Invalid) String() string {
	return "invalid"
}

func (s Single) String() string {
	return "single(" + s.ID.String() + ")"
}

func (m Map) String() string {
	keys := slices.Sorted(maps.Keys(m.Entries))
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+": "+m.Entries[key].String())
	}
	return "map{" + strings.Join(parts, ", ") + "}"
}

const (
	KindInvalid = "invalid"
	KindSingle  = "single"
	KindMap     = "map"
)

// Kind names the variant of m. It returns "" for a nil mapping.
func Kind(m Mapping) string {
	switch m.(type) {
	case Invalid:
		return KindInvalid
	case Single:
		return KindSingle
	case Map:
		return KindMap
	default:
		return ""
	}
}

func Equal(a, b Mapping) bool {
	switch x := a.(type) {
	case Invalid:
		_, ok := b.(Invalid)
		return ok
	case Single:
		y, ok := b.(Single)
		return ok && x.ID.Equal(y.ID)
	case Map:
		y, ok := b.(Map)
		return ok && maps.EqualFunc(x.Entries, y.Entries, chunk.ModuleID.Equal)
	default:
		return a == nil && b == nil
	}
}

type wireMapping struct {
	Kind    string                    `json:"kind"`
	ID      *chunk.ModuleID           `json:"id,omitempty"`
	Entries map[string]chunk.ModuleID `json:"entries,omitempty"`
}

var ErrMalformedMapping = errors.New("malformed pattern mapping")

func MarshalMapping(m Mapping) ([]byte, error) {
	wire := wireMapping{Kind: Kind(m)}
	switch v := m.(type) {
	case Invalid:
	case Single:
		id := v.ID
		wire.ID = &id
	case Map:
		wire.Entries = v.Entries
	default:
		return nil, fmt.Errorf("%w: %T", ErrMalformedMapping, m)
	}
	return json.Marshal(wire)
}

func UnmarshalMapping(data []byte) (Mapping, error) {
	var wire wireMapping
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMapping, err)
	}
	switch wire.Kind {
	case KindInvalid:
		return Invalid{}, nil
	case KindSingle:
		if wire.ID == nil {
			return nil, fmt.Errorf("%w: single mapping without id", ErrMalformedMapping)
		}
		return Single{ID: *wire.ID}, nil
	case KindMap:
		return NewMap(wire.Entries), nil
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrMalformedMapping, wire.Kind)
	}
}
