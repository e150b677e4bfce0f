package resolve

import "context"

// Request is a module-loading request as written in source. Templated
// requests carry their static skeleton in Pattern, with "*" standing in for
// each interpolated segment.
type Request struct {
	Specifier string
	Pattern   string
	Dynamic   bool
}

func (r Request) Key() string {
	if r.Dynamic && r.Pattern != "" {
		return r.Pattern
	}
	return r.Specifier
}

type Resolver interface {
	Resolve(ctx context.Context, req Request) (Result, error)
}
