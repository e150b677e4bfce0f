package resolve

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
)

type Asset interface {
	Path() string
}

type FileAsset struct {
	FilePath string
}

func (a FileAsset) Path() string {
	return a.FilePath
}

func (a FileAsset) String() string {
	return a.FilePath
}

// Result is the outcome of resolving one request. The set of shapes is closed.
type Result interface{ isResult() }

func (*Single) isResult()       {}
func (*Alternatives) isResult() {}
func (*Keyed) isResult()        {}
func (*Unresolvable) isResult() {}
func (*Special) isResult()      {}

type Single struct {
	Asset      Asset
	References []string
}

// Alternatives lists candidates in resolution order.
type Alternatives struct {
	Assets     []Asset
	References []string
}

// Keyed holds one result per runtime value of a templated request.
type Keyed struct {
	Entries map[string]Result
}

type Unresolvable struct {
	References []string
}

type SpecialKind string

const (
	SpecialEmpty    SpecialKind = "empty"
	SpecialIgnore   SpecialKind = "ignore"
	SpecialExternal SpecialKind = "external"
)

type Special struct {
	Kind SpecialKind
}

// Identity returns a content digest of result suitable as a cache key. Equal
// results always produce equal identities.
func Identity(result Result) string {
	hasher := sha256.New()
	writeCanonical(hasher, result)
	return hex.EncodeToString(hasher.Sum(nil))
}

func writeCanonical(w io.Writer, result Result) {
	switch r := result.(type) {
	case *Single:
		_, _ = io.WriteString(w, "single\x00")
		writeAsset(w, r.Asset)
		writeReferences(w, r.References)
	case *Alternatives:
		_, _ = fmt.Fprintf(w, "alternatives\x00%d\x00", len(r.Assets))
		for _, asset := range r.Assets {
			writeAsset(w, asset)
		}
		writeReferences(w, r.References)
	case *Keyed:
		_, _ = fmt.Fprintf(w, "keyed\x00%d\x00", len(r.Entries))
		for _, key := range sortedKeys(r.Entries) {
			_, _ = io.WriteString(w, key+"\x00{")
			writeCanonical(w, r.Entries[key])
			_, _ = io.WriteString(w, "}")
		}
	case *Unresolvable:
		_, _ = io.WriteString(w, "unresolvable\x00")
		writeReferences(w, r.References)
	case *Special:
		_, _ = io.WriteString(w, "special\x00"+string(r.Kind))
	default:
		_, _ = fmt.Fprintf(w, "unknown\x00%T", result)
	}
}

// writeAsset tags a missing asset apart from one with an empty path.
func writeAsset(w io.Writer, asset Asset) {
	if asset == nil {
		_, _ = io.WriteString(w, "nil\x00")
		return
	}
	_, _ = io.WriteString(w, "asset\x00"+asset.Path()+"\x00")
}

func writeReferences(w io.Writer, refs []string) {
	sorted := append([]string(nil), refs...)
	sort.Strings(sorted)
	_, _ = fmt.Fprintf(w, "refs\x00%d\x00%s", len(sorted), strings.Join(sorted, "\x00"))
}

// Describe renders result for diagnostics.
func Describe(result Result) string {
	switch r := result.(type) {
	case *Single:
		return "single(" + assetPath(r.Asset) + ")"
	case *Alternatives:
		paths := make([]string, 0, len(r.Assets))
		for _, asset := range r.Assets {
			paths = append(paths, assetPath(asset))
		}
		return "alternatives[" + strings.Join(paths, ", ") + "]"
	case *Keyed:
		parts := make([]string, 0, len(r.Entries))
		for _, key := range sortedKeys(r.Entries) {
			parts = append(parts, key+": "+Describe(r.Entries[key]))
		}
		return "keyed{" + strings.Join(parts, ", ") + "}"
	case *Unresolvable:
		return "unresolvable"
	case *Special:
		return "special(" + string(r.Kind) + ")"
	case nil:
		return "<nil>"
	default:
		return fmt.Sprintf("%T", result)
	}
}

func assetPath(asset Asset) string {
	if asset == nil {
		return ""
	}
	return asset.Path()
}

func sortedKeys(entries map[string]Result) []string {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
