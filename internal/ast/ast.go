package ast

// Loc is a byte offset into the originating source file.
type Loc struct {
	Start int32
}

type Expr struct {
	Data E
	Loc  Loc
}

// E is never called through. It only exists so the set of expression kinds is
// closed to this package.
type E interface{ isExpr() }

func (*EString) isExpr()     {}
func (*ENumber) isExpr()     {}
func (*EIdentifier) isExpr() {}
func (*ESource) isExpr()     {}
func (*ECall) isExpr()       {}
func (*ENew) isExpr()        {}
func (*EArrow) isExpr()      {}

type EString struct{ Value string }

type ENumber struct{ Value float64 }

type EIdentifier struct{ Name string }

// ESource carries an expression verbatim from the input file. It is used for
// template substitutions that are handed through to generated code untouched.
type ESource struct{ Text string }

type ECall struct {
	Target Expr
	Args   []Expr
}

type ENew struct {
	Target Expr
	Args   []Expr
}

type EArrow struct {
	Args []string
	Body []Stmt
}

type Stmt struct {
	Data S
	Loc  Loc
}

type S interface{ isStmt() }

func (*SThrow) isStmt()  {}
func (*SReturn) isStmt() {}

type SThrow struct{ Value Expr }

type SReturn struct{ ValueOrNil Expr }

func String(value string) Expr {
	return Expr{Data: &EString{Value: value}}
}

func Number(value float64) Expr {
	return Expr{Data: &ENumber{Value: value}}
}

func Ident(name string) Expr {
	return Expr{Data: &EIdentifier{Name: name}}
}

func Source(text string, loc Loc) Expr {
	return Expr{Data: &ESource{Text: text}, Loc: loc}
}

// ThrowingIIFE builds `(() => { throw new Error(message); })()`, an expression
// that raises before it can produce a value.
func ThrowingIIFE(message string) Expr {
	thrown := Expr{Data: &ENew{Target: Ident("Error"), Args: []Expr{String(message)}}}
	arrow := Expr{Data: &EArrow{Body: []Stmt{{Data: &SThrow{Value: thrown}}}}}
	return Expr{Data: &ECall{Target: arrow}}
}
