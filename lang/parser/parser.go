// Package parser reads s-expression source text into a lang/ast tree. The
// surface syntax and this package's internals are intentionally minimal: the
// compiler only cares about the AST shape it consumes (see lang/ast), not how
// it was produced.
package parser

import (
	"fmt"

	"github.com/mna/slang/lang/ast"
	"github.com/mna/slang/lang/scanner"
	"github.com/mna/slang/lang/token"
)

// Parser turns a token stream into a sequence of top-level ast.Node values
// (a "chunk" is just that sequence, compiled one form at a time).
type Parser struct {
	toks []scanner.TokenAndValue
	pos  int
}

// ParseChunk parses all top-level forms in src.
func ParseChunk(src []byte) ([]ast.Node, error) {
	toks, err := scanner.ScanAll(src)
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks}
	var forms []ast.Node
	for p.cur().Token != token.EOF {
		n, err := p.parseNode()
		if err != nil {
			return nil, err
		}
		forms = append(forms, n)
	}
	return forms, nil
}

func (p *Parser) cur() scanner.TokenAndValue {
	if p.pos >= len(p.toks) {
		return scanner.TokenAndValue{Token: token.EOF}
	}
	return p.toks[p.pos]
}

func (p *Parser) next() scanner.TokenAndValue {
	tv := p.cur()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return tv
}

func (p *Parser) parseNode() (ast.Node, error) {
	tv := p.cur()
	switch tv.Token {
	case token.INT, token.FLOAT:
		p.next()
		var f float64
		if _, err := fmt.Sscanf(tv.Value, "%g", &f); err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", tv.Value, err)
		}
		return &ast.Number{Value: f}, nil
	case token.STRING:
		p.next()
		return &ast.String{Value: tv.Value}, nil
	case token.IDENT:
		p.next()
		return &ast.Atom{Name: tv.Value}, nil
	case token.LPAREN:
		return p.parseList()
	case token.LBRACK:
		return p.parseArray()
	case token.LBRACE:
		return p.parseTable()
	case token.EOF:
		return nil, fmt.Errorf("unexpected end of input")
	default:
		return nil, fmt.Errorf("unexpected token %s", tv.Token)
	}
}

func (p *Parser) parseList() (ast.Node, error) {
	p.next() // (
	var elems []ast.Node
	for {
		if p.cur().Token == token.EOF {
			return nil, fmt.Errorf("unterminated list")
		}
		if p.cur().Token == token.RPAREN {
			p.next()
			return &ast.List{Elems: elems}, nil
		}
		n, err := p.parseNode()
		if err != nil {
			return nil, err
		}
		elems = append(elems, n)
	}
}

func (p *Parser) parseArray() (ast.Node, error) {
	p.next() // [
	var elems []ast.Node
	for {
		if p.cur().Token == token.EOF {
			return nil, fmt.Errorf("unterminated array")
		}
		if p.cur().Token == token.RBRACK {
			p.next()
			return &ast.Array{Elems: elems}, nil
		}
		n, err := p.parseNode()
		if err != nil {
			return nil, err
		}
		elems = append(elems, n)
	}
}

func (p *Parser) parseTable() (ast.Node, error) {
	p.next() // {
	var entries []ast.Entry
	for {
		if p.cur().Token == token.EOF {
			return nil, fmt.Errorf("unterminated table")
		}
		if p.cur().Token == token.RBRACE {
			p.next()
			return &ast.Table{Entries: entries}, nil
		}
		if p.cur().Token != token.LPAREN {
			return nil, fmt.Errorf("table entry must be a (key value) pair, got %s", p.cur().Token)
		}
		p.next() // (
		key, err := p.parseNode()
		if err != nil {
			return nil, err
		}
		val, err := p.parseNode()
		if err != nil {
			return nil, err
		}
		if p.cur().Token != token.RPAREN {
			return nil, fmt.Errorf("table entry must have exactly 2 elements")
		}
		p.next() // )
		entries = append(entries, ast.Entry{Key: key, Value: val})
	}
}
