package chunk

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ben-ranford/reqmap/internal/resolve"
)

// HelperChunkLoader names the helper group whose ids point at code that fetches
// and evaluates an asset's chunk before returning its module.
const HelperChunkLoader = "chunk loader"

type IDScheme string

const (
	IDSchemeNumber IDScheme = "number"
	IDSchemePath   IDScheme = "path"
)

var ErrUnknownIDScheme = errors.New("unknown id scheme")

func ParseIDScheme(value string) (IDScheme, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(IDSchemeNumber):
		return IDSchemeNumber, nil
	case string(IDSchemePath):
		return IDSchemePath, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownIDScheme, value)
	}
}

// Placeable is an asset that can be represented as a module in a chunk.
type Placeable interface {
	resolve.Asset
	ChunkType() string
}

// Context is the sole authority over module id assignment.
type Context interface {
	Placeable(ctx context.Context, asset resolve.Asset) (Placeable, bool, error)
	ID(ctx context.Context, placeable Placeable) (ModuleID, error)
	HelperID(ctx context.Context, helper string, asset resolve.Asset) (ModuleID, error)
}

type placeableAsset struct {
	resolve.Asset
	chunkType string
}

func (p placeableAsset) ChunkType() string {
	return p.chunkType
}

type idKey struct {
	helper string
	path   string
}

// Assignment records one id handed out by a ChunkingContext.
type Assignment struct {
	Helper string   `json:"helper,omitempty"`
	Path   string   `json:"path,omitempty"`
	ID     ModuleID `json:"id"`
}

// ChunkingContext assigns ids for a single chunk type. The same key always gets
// the same id, whatever the number of concurrent callers.
type ChunkingContext struct {
	chunkType Type
	scheme    IDScheme

	mu   sync.Mutex
	ids  map[idKey]ModuleID
	next uint64
}

func NewChunkingContext(chunkType Type, scheme IDScheme) *ChunkingContext {
	if scheme == "" {
		scheme = IDSchemeNumber
	}
	return &ChunkingContext{
		chunkType: chunkType,
		scheme:    scheme,
		ids:       make(map[idKey]ModuleID),
	}
}

func (c *ChunkingContext) ChunkType() Type {
	return c.chunkType
}

func (c *ChunkingContext) Scheme() IDScheme {
	return c.scheme
}

func (c *ChunkingContext) Placeable(ctx context.Context, asset resolve.Asset) (Placeable, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if asset == nil || !c.chunkType.Accepts(asset.Path()) {
		return nil, false, nil
	}
	return placeableAsset{Asset: asset, chunkType: c.chunkType.ID}, true, nil
}

func (c *ChunkingContext) ID(ctx context.Context, placeable Placeable) (ModuleID, error) {
	if err := ctx.Err(); err != nil {
		return ModuleID{}, err
	}
	if placeable == nil {
		return ModuleID{}, errors.New("placeable module is nil")
	}
	if placeable.ChunkType() != c.chunkType.ID {
		return ModuleID{}, fmt.Errorf("module %s belongs to chunk type %s, not %s", placeable.Path(), placeable.ChunkType(), c.chunkType.ID)
	}
	return c.assign(idKey{path: placeable.Path()}), nil
}

func (c *ChunkingContext) HelperID(ctx context.Context, helper string, asset resolve.Asset) (ModuleID, error) {
	if err := ctx.Err(); err != nil {
		return ModuleID{}, err
	}
	if strings.TrimSpace(helper) == "" {
		return ModuleID{}, errors.New("helper name is empty")
	}
	key := idKey{helper: helper}
	if asset != nil {
		key.path = asset.Path()
	}
	return c.assign(key), nil
}

func (c *ChunkingContext) assign(key idKey) ModuleID {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.ids[key]; ok {
		return id
	}
	var id ModuleID
	switch c.scheme {
	case IDSchemePath:
		id = StringID(pathID(key))
	default:
		id = NumberID(c.next)
		c.next++
	}
	c.ids[key] = id
	return id
}

func pathID(key idKey) string {
	switch {
	case key.helper == "":
		return key.path
	case key.path == "":
		return key.helper
	default:
		return key.helper + " " + key.path
	}
}

// Assignments lists every id handed out so far, ordered by id.
func (c *ChunkingContext) Assignments() []Assignment {
	c.mu.Lock()
	out := make([]Assignment, 0, len(c.ids))
	for key, id := range c.ids {
		out = append(out, Assignment{Helper: key.helper, Path: key.path, ID: id})
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return Compare(out[i].ID, out[j].ID) < 0
	})
	return out
}
