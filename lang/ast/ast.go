// Package ast defines the Lisp-shaped abstract syntax tree consumed by the
// compiler. The grammar is deliberately tiny:
//
//	Ast := Number f64 | String str | Atom str
//	     | List  [Ast]         — ( … )
//	     | Array [Ast]         — [ … ]
//	     | Table [(Ast,Ast)]   — { (k v) … }
//
// Source positions are not tracked: the compiler reports a single abstract
// error kind and does not need them (see lang/compiler).
package ast

import (
	"fmt"
	"strconv"
	"strings"
)

// Node is implemented by every AST node. The Walk function uses each node's
// Walk method to recurse.
type Node interface {
	// Walk calls v.Visit for each direct child of the node.
	Walk(v Visitor)
	// String renders the node back to source-like text, for diagnostics and
	// golden-file tests.
	String() string
}

// Number is a numeric literal.
type Number struct {
	Value float64
}

func (n *Number) Walk(Visitor) {}
func (n *Number) String() string {
	return strconv.FormatFloat(n.Value, 'g', -1, 64)
}

// String is a string literal.
type String struct {
	Value string
}

func (s *String) Walk(Visitor) {}
func (s *String) String() string {
	return strconv.Quote(s.Value)
}

// Atom is a bare identifier: a special-form keyword, an operator, or a name
// looked up as a local or in the environment.
type Atom struct {
	Name string
}

func (a *Atom) Walk(Visitor) {}
func (a *Atom) String() string {
	return a.Name
}

// List is a parenthesized form: either a special form, an operator
// application, or a function call, depending on its head Atom.
type List struct {
	Elems []Node
}

func (l *List) Walk(v Visitor) {
	for _, e := range l.Elems {
		Walk(v, e)
	}
}

func (l *List) String() string {
	return "(" + joinNodes(l.Elems) + ")"
}

// Head returns the list's first element if it is an Atom, and ok=true. An
// empty list or one whose head is not an Atom returns ok=false.
func (l *List) Head() (name string, ok bool) {
	if len(l.Elems) == 0 {
		return "", false
	}
	a, ok := l.Elems[0].(*Atom)
	if !ok {
		return "", false
	}
	return a.Name, true
}

// Array is a bracketed literal list of elements.
type Array struct {
	Elems []Node
}

func (a *Array) Walk(v Visitor) {
	for _, e := range a.Elems {
		Walk(v, e)
	}
}

func (a *Array) String() string {
	return "[" + joinNodes(a.Elems) + "]"
}

// Entry is a single key/value pair of a Table literal.
type Entry struct {
	Key, Value Node
}

// Table is a braced literal list of key/value entries.
type Table struct {
	Entries []Entry
}

func (t *Table) Walk(v Visitor) {
	for _, e := range t.Entries {
		Walk(v, e.Key)
		Walk(v, e.Value)
	}
}

func (t *Table) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, e := range t.Entries {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "(%s %s)", e.Key, e.Value)
	}
	sb.WriteByte('}')
	return sb.String()
}

func joinNodes(ns []Node) string {
	var sb strings.Builder
	for i, n := range ns {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(n.String())
	}
	return sb.String()
}
