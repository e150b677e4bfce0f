package ast

import "slices"

// Equal reports whether a and b have the same structure. Locations are ignored.
func Equal(a, b Expr) bool {
	switch x := a.Data.(type) {
	case nil:
		return b.Data == nil
	case *EString:
		y, ok := b.Data.(*EString)
		return ok && x.Value == y.Value
	case *ENumber:
		y, ok := b.Data.(*ENumber)
		return ok && x.Value == y.Value
	case *EIdentifier:
		y, ok := b.Data.(*EIdentifier)
		return ok && x.Name == y.Name
	case *ESource:
		y, ok := b.Data.(*ESource)
		return ok && x.Text == y.Text
	case *ECall:
		y, ok := b.Data.(*ECall)
		return ok && Equal(x.Target, y.Target) && equalExprs(x.Args, y.Args)
	case *ENew:
		y, ok := b.Data.(*ENew)
		return ok && Equal(x.Target, y.Target) && equalExprs(x.Args, y.Args)
	case *EArrow:
		y, ok := b.Data.(*EArrow)
		return ok && slices.Equal(x.Args, y.Args) && slices.EqualFunc(x.Body, y.Body, equalStmt)
	default:
		return false
	}
}

func equalExprs(a, b []Expr) bool {
	return slices.EqualFunc(a, b, Equal)
}

func equalStmt(a, b Stmt) bool {
	switch x := a.Data.(type) {
	case *SThrow:
		y, ok := b.Data.(*SThrow)
		return ok && Equal(x.Value, y.Value)
	case *SReturn:
		y, ok := b.Data.(*SReturn)
		return ok && Equal(x.ValueOrNil, y.ValueOrNil)
	default:
		return false
	}
}
