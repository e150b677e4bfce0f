package scan

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/ben-ranford/reqmap/internal/diag"
	"github.com/ben-ranford/reqmap/internal/pattern"
	"github.com/ben-ranford/reqmap/internal/resolve"
)

func collectRequests(root *sitter.Node, content []byte, relPath string) []FoundRequest {
	requests := make([]FoundRequest, 0)
	walkNode(root, func(node *sitter.Node) {
		var (
			found FoundRequest
			ok    bool
		)
		switch node.Type() {
		case "import_statement":
			found, ok = parseImportStatement(node, content)
		case "export_statement":
			found, ok = parseSourceField(node, content, KindESMStatic)
		case "call_expression":
			found, ok = parseLoaderCall(node, content)
		}
		if ok {
			found.Span.File = relPath
			requests = append(requests, found)
		}
	})
	return requests
}

func walkNode(node *sitter.Node, visit func(*sitter.Node)) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		visit(child)
		walkNode(child, visit)
	}
}

func parseImportStatement(node *sitter.Node, content []byte) (FoundRequest, bool) {
	if found, ok := parseSourceField(node, content, KindESMStatic); ok {
		return found, true
	}
	// import x = require("y")
	clause := firstNamedChildOfType(node, "import_require_clause")
	if clause == nil {
		return FoundRequest{}, false
	}
	source := clause.ChildByFieldName("source")
	if source == nil {
		source = firstNamedChildOfType(clause, "string")
	}
	return requestFromArgument(source, content, KindCommonJS)
}

func parseSourceField(node *sitter.Node, content []byte, kind RequestKind) (FoundRequest, bool) {
	return requestFromArgument(node.ChildByFieldName("source"), content, kind)
}

func parseLoaderCall(node *sitter.Node, content []byte) (FoundRequest, bool) {
	function := node.ChildByFieldName("function")
	if function == nil {
		return FoundRequest{}, false
	}
	var kind RequestKind
	switch {
	case function.Type() == "import":
		kind = KindESMDynamic
	case function.Type() == "identifier" && nodeText(function, content) == "require":
		kind = KindCommonJS
	default:
		return FoundRequest{}, false
	}

	arguments := node.ChildByFieldName("arguments")
	if arguments == nil || arguments.NamedChildCount() == 0 {
		return FoundRequest{}, false
	}
	return requestFromArgument(arguments.NamedChild(0), content, kind)
}

func requestFromArgument(node *sitter.Node, content []byte, kind RequestKind) (FoundRequest, bool) {
	if node == nil {
		return FoundRequest{}, false
	}
	var request resolve.Request
	switch node.Type() {
	case "string":
		specifier, ok := extractStringLiteral(node, content)
		if !ok {
			return FoundRequest{}, false
		}
		request = resolve.Request{Specifier: specifier}
	case "template_string":
		var ok bool
		request, ok = templateRequest(node, content)
		if !ok {
			return FoundRequest{}, false
		}
	default:
		return FoundRequest{}, false
	}

	return FoundRequest{
		Request:  request,
		Kind:     kind,
		Strategy: strategyFor(kind),
		Span:     spanOf(node),
	}, true
}

func strategyFor(kind RequestKind) pattern.LoadingStrategy {
	if kind == KindESMDynamic {
		return pattern.AsynchronousModule
	}
	return pattern.SynchronousModule
}

// templateRequest splits a template literal into its static parts using the
// byte ranges of its substitutions.
func templateRequest(node *sitter.Node, content []byte) (resolve.Request, bool) {
	start, end := node.StartByte()+1, node.EndByte()-1
	if end <= start {
		return resolve.Request{}, false
	}

	var (
		skeleton strings.Builder
		cursor   = start
		dynamic  bool
	)
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() != "template_substitution" {
			continue
		}
		skeleton.Write(content[cursor:child.StartByte()])
		skeleton.WriteString(Placeholder)
		cursor = child.EndByte()
		dynamic = true
	}
	skeleton.Write(content[cursor:end])

	text := string(content[start:end])
	if !dynamic {
		return resolve.Request{Specifier: text}, text != ""
	}
	return resolve.Request{Specifier: text, Pattern: skeleton.String(), Dynamic: true}, true
}

func spanOf(node *sitter.Node) diag.Span {
	point := node.StartPoint()
	return diag.Span{
		Line:   int(point.Row) + 1,
		Column: int(point.Column) + 1,
		Start:  int(node.StartByte()),
		End:    int(node.EndByte()),
	}
}

func extractStringLiteral(node *sitter.Node, content []byte) (string, bool) {
	text := nodeText(node, content)
	if len(text) < 2 {
		return "", false
	}
	quote := text[0]
	if (quote != '"' && quote != '\'') || text[len(text)-1] != quote {
		return "", false
	}
	text = text[1 : len(text)-1]
	return text, text != ""
}

func nodeText(node *sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}
	return string(content[node.StartByte():node.EndByte()])
}

func firstNamedChildOfType(node *sitter.Node, types ...string) *sitter.Node {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		for _, typ := range types {
			if child.Type() == typ {
				return child
			}
		}
	}
	return nil
}
