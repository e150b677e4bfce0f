package pattern

import (
	"fmt"

	"github.com/ben-ranford/reqmap/internal/ast"
	"github.com/ben-ranford/reqmap/internal/chunk"
)

// InvalidRequestMessage is the message thrown by code generated for Invalid.
const InvalidRequestMessage = "Invalid"

// Create returns the expression that replaces the request in generated code.
// Map has no code generation yet and yields ErrUnsupportedComplexExpression.
func Create(m Mapping) (ast.Expr, error) {
	switch v := m.(type) {
	case Invalid:
		return ast.ThrowingIIFE(InvalidRequestMessage), nil
	case Single:
		return moduleIDToLit(v.ID), nil
	case Map:
		return ast.Expr{}, &Error{
			Phase:  PhaseSynthesize,
			Kind:   KindUnsupportedComplexExpression,
			Detail: fmt.Sprintf("complex expression can't be transformed: %s", v),
		}
	default:
		return ast.Expr{}, ErrNilMapping
	}
}

// Apply returns the expression that replaces the request given the runtime
// value of its interpolated segment. Invalid and Single do not depend on that
// value.
//
// TODO: select among Map entries with a lookup on the key expression once Map
// codegen exists.
func Apply(m Mapping, _ ast.Expr) (ast.Expr, error) {
	return Create(m)
}

// moduleIDToLit embeds id exactly. Numbers beyond MaxNumberID have no exact
// JS number literal and are written as their decimal string.
func moduleIDToLit(id chunk.ModuleID) ast.Expr {
	if n, ok := id.Number(); ok && n <= chunk.MaxNumberID {
		return ast.Number(float64(n))
	}
	return ast.String(id.String())
}
