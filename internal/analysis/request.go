package analysis

import (
	"github.com/ben-ranford/reqmap/internal/chunk"
	"github.com/ben-ranford/reqmap/internal/resolve"
)

type CacheOptions struct {
	Enabled  bool
	Path     string
	ReadOnly bool
}

// Request describes one resolution run over a repository. Resolver is
// required. When it also reports a content digest (as the manifest resolver
// does) its results can be cached across runs.
type Request struct {
	RepoPath     string
	Resolver     resolve.Resolver
	ChunkType    string
	IDScheme     chunk.IDScheme
	Concurrency  int
	Include      []string
	Exclude      []string
	ConfigDigest string
	Cache        *CacheOptions
}

type digester interface {
	Digest() string
}

type pathed interface {
	Path() string
}

func resolverDigest(resolver resolve.Resolver) (string, bool) {
	d, ok := resolver.(digester)
	if !ok {
		return "", false
	}
	digest := d.Digest()
	return digest, digest != ""
}

func resolverPath(resolver resolve.Resolver) string {
	if p, ok := resolver.(pathed); ok {
		return p.Path()
	}
	return ""
}
