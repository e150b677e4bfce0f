package pattern

import (
	"context"
	"fmt"

	"github.com/ben-ranford/reqmap/internal/chunk"
	"github.com/ben-ranford/reqmap/internal/diag"
	"github.com/ben-ranford/reqmap/internal/resolve"
)

const (
	CodeUnsupportedResolution = "unsupported-resolution-shape"
	CodeEmptyAlternatives     = "empty-alternatives"
	CodeNotPlaceable          = "not-placeable"
)

// ResolveRequest maps a resolution result to the module id the runtime will
// load under strategy. Every problem with the request itself yields Invalid
// plus a diagnostic on sink; the error return is reserved for an invalid
// strategy, cancellation and failures of cc.
func ResolveRequest(ctx context.Context, cc chunk.Context, result resolve.Result, strategy LoadingStrategy, sink diag.Sink) (Mapping, error) {
	if !strategy.Valid() {
		return nil, &Error{Phase: PhaseResolve, Kind: KindInvalidLoadingStrategy, Detail: strategy.String()}
	}
	if sink == nil {
		sink = diag.Nop
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var asset resolve.Asset
	switch r := result.(type) {
	case *resolve.Alternatives:
		if len(r.Assets) == 0 {
			sink.Report(diag.Diagnostic{
				Severity: diag.SeverityInfo,
				Code:     CodeEmptyAlternatives,
				Message:  "the reference resolves to no candidates",
			})
			return Invalid{}, nil
		}
		// Candidates are in resolution order; the first is the one the
		// runtime resolver would pick.
		asset = r.Assets[0]
	case *resolve.Single:
		asset = r.Asset
	default:
		// TODO: map Keyed results to a Map once codegen can consume it.
		sink.Report(diag.Diagnostic{
			Severity: diag.SeverityWarning,
			Code:     CodeUnsupportedResolution,
			Message:  "the reference resolves to a non-trivial result, which is not supported yet: " + resolve.Describe(result),
			Hint:     "the request compiles to code that throws when executed",
		})
		return Invalid{}, nil
	}

	if asset == nil {
		sink.Report(notPlaceable("<missing asset>"))
		return Invalid{}, nil
	}

	placeable, ok, err := cc.Placeable(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("check placeable %s: %w", asset.Path(), err)
	}
	if !ok {
		sink.Report(notPlaceable(asset.Path()))
		return Invalid{}, nil
	}

	var id chunk.ModuleID
	switch strategy {
	case AsynchronousModule:
		id, err = cc.HelperID(ctx, chunk.HelperChunkLoader, asset)
	case SynchronousModule:
		id, err = cc.ID(ctx, placeable)
	}
	if err != nil {
		return nil, fmt.Errorf("assign module id for %s: %w", asset.Path(), err)
	}
	return Single{ID: id}, nil
}

func notPlaceable(assetPath string) diag.Diagnostic {
	return diag.Diagnostic{
		Severity: diag.SeverityWarning,
		Code:     CodeNotPlaceable,
		Message:  fmt.Sprintf("asset %s is not placeable in this chunk type, so it doesn't have a module id", assetPath),
		Hint:     "configure a chunk type that accepts this asset or change the request",
	}
}
