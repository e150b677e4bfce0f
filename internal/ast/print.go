package ast

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Print renders expr as compact JavaScript.
func Print(expr Expr) string {
	var b strings.Builder
	printExpr(&b, expr)
	return b.String()
}

func printExpr(b *strings.Builder, expr Expr) {
	switch e := expr.Data.(type) {
	case nil:
		b.WriteString("undefined")
	case *EString:
		b.WriteString(QuoteString(e.Value))
	case *ENumber:
		b.WriteString(formatNumber(e.Value))
	case *EIdentifier:
		b.WriteString(e.Name)
	case *ESource:
		b.WriteString(e.Text)
	case *ECall:
		printCallTarget(b, e.Target)
		printArgs(b, e.Args)
	case *ENew:
		b.WriteString("new ")
		printCallTarget(b, e.Target)
		printArgs(b, e.Args)
	case *EArrow:
		b.WriteByte('(')
		b.WriteString(strings.Join(e.Args, ", "))
		b.WriteString(") => {")
		for _, stmt := range e.Body {
			b.WriteByte(' ')
			printStmt(b, stmt)
		}
		b.WriteString(" }")
	default:
		panic(fmt.Sprintf("ast: unexpected expression %T", expr.Data))
	}
}

func printStmt(b *strings.Builder, stmt Stmt) {
	switch s := stmt.Data.(type) {
	case *SThrow:
		b.WriteString("throw ")
		printExpr(b, s.Value)
		b.WriteByte(';')
	case *SReturn:
		b.WriteString("return")
		if s.ValueOrNil.Data != nil {
			b.WriteByte(' ')
			printExpr(b, s.ValueOrNil)
		}
		b.WriteByte(';')
	default:
		panic(fmt.Sprintf("ast: unexpected statement %T", stmt.Data))
	}
}

// Arrow functions and `new` targets need parentheses to be callable.
func printCallTarget(b *strings.Builder, target Expr) {
	switch target.Data.(type) {
	case *EArrow, *ENew:
		b.WriteByte('(')
		printExpr(b, target)
		b.WriteByte(')')
	default:
		printExpr(b, target)
	}
}

func printArgs(b *strings.Builder, args []Expr) {
	b.WriteByte('(')
	for i, arg := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		printExpr(b, arg)
	}
	b.WriteByte(')')
}

func formatNumber(value float64) string {
	if math.Abs(value) <= 1<<53 && value == math.Trunc(value) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'g', -1, 64)
}

// QuoteString returns value as a double-quoted JavaScript string literal.
func QuoteString(value string) string {
	var b strings.Builder
	b.Grow(len(value) + 2)
	b.WriteByte('"')
	for _, r := range value {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\u2028', '\u2029':
			fmt.Fprintf(&b, `\u%04x`, r)
		case utf8.RuneError:
			b.WriteString(`\ufffd`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\x%02x`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
