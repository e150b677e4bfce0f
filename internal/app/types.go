package app

import (
	"github.com/ben-ranford/reqmap/internal/config"
	"github.com/ben-ranford/reqmap/internal/pattern"
	"github.com/ben-ranford/reqmap/internal/report"
)

type Mode string

const (
	ModeResolve Mode = "resolve"
	ModeExpr    Mode = "expr"
)

type Request struct {
	Mode     Mode
	RepoPath string
	Dump     bool
	Resolve  ResolveRequest
	Expr     ExprRequest
}

type ResolveRequest struct {
	Format       report.Format
	Config       config.Values
	ConfigPath   string
	ConfigDigest string
}

// ExprRequest synthesizes the expression for a mapping given on the command
// line. Key, when set, is JS source for the runtime value passed to Apply.
type ExprRequest struct {
	Mapping pattern.Mapping
	Key     string
}

func DefaultRequest() Request {
	return Request{
		Mode:     ModeResolve,
		RepoPath: ".",
		Resolve: ResolveRequest{
			Format: report.FormatTable,
			Config: config.Defaults(),
		},
	}
}
