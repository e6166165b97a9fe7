package core

// search.go parses free-text search queries that carry boolean operators the
// backend cannot evaluate. Operators are the uppercase words AND, OR, NOT
// plus parentheses; anything else is a substring term matched
// case-insensitively. Lowercase "and"/"or" remain ordinary search terms.
//
// Matching runs over a synthesized searchable string: all non-null field
// values of a row concatenated, with object values JSON-stringified.

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// SearchExpr is a parsed boolean search expression.
type SearchExpr struct {
	root searchNode
}

type searchNode interface {
	matches(haystack string) bool
}

type termNode struct{ term string }

func (n termNode) matches(haystack string) bool {
	return strings.Contains(haystack, strings.ToLower(n.term))
}

type notNode struct{ child searchNode }

func (n notNode) matches(haystack string) bool { return !n.child.matches(haystack) }

type andNode struct{ children []searchNode }

func (n andNode) matches(haystack string) bool {
	for _, c := range n.children {
		if !c.matches(haystack) {
			return false
		}
	}
	return true
}

type orNode struct{ children []searchNode }

func (n orNode) matches(haystack string) bool {
	for _, c := range n.children {
		if c.matches(haystack) {
			return true
		}
	}
	return false
}

// HasBooleanOperators reports whether a query needs client-side evaluation.
func HasBooleanOperators(query string) bool {
	for _, tok := range tokenizeSearch(query) {
		switch tok {
		case "AND", "OR", "NOT", "(", ")":
			return true
		}
	}
	return false
}

// ParseSearchExpr parses a query into an evaluable expression.
func ParseSearchExpr(query string) (*SearchExpr, error) {
	p := &searchParser{tokens: tokenizeSearch(query)}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, fmt.Errorf("unexpected token %q in search query", p.tokens[p.pos])
	}
	if root == nil {
		return nil, fmt.Errorf("empty search query")
	}
	return &SearchExpr{root: root}, nil
}

// Matches evaluates the expression against a row's synthesized string.
func (e *SearchExpr) Matches(haystack string) bool {
	return e.root.matches(strings.ToLower(haystack))
}

// MatchesRow evaluates the expression against a row.
func (e *SearchExpr) MatchesRow(row RowRecord) bool {
	return e.Matches(SynthesizeSearchable(row))
}

// SynthesizeSearchable concatenates all non-null field values of a row into
// one searchable string. Objects and arrays are JSON-stringified.
func SynthesizeSearchable(row RowRecord) string {
	var b strings.Builder
	for _, field := range sortedFields(row) {
		value := row[field]
		if value == nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		switch v := value.(type) {
		case string:
			b.WriteString(v)
		case map[string]any, []any:
			if data, err := json.Marshal(v); err == nil {
				b.Write(data)
			}
		default:
			b.WriteString(formatDisplay(v))
		}
	}
	return b.String()
}

func sortedFields(row RowRecord) []string {
	fields := make([]string, 0, len(row))
	for field := range row {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// tokenizeSearch splits a query into terms, operators, and parentheses.
// Double-quoted phrases stay single terms.
func tokenizeSearch(query string) []string {
	var tokens []string
	var current strings.Builder
	inQuotes := false

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, r := range query {
		switch {
		case r == '"':
			if inQuotes {
				flush()
			}
			inQuotes = !inQuotes
		case inQuotes:
			current.WriteRune(r)
		case r == '(' || r == ')':
			flush()
			tokens = append(tokens, string(r))
		case r == ' ' || r == '\t' || r == '\n':
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return tokens
}

type searchParser struct {
	tokens []string
	pos    int
}

func (p *searchParser) peek() (string, bool) {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos], true
	}
	return "", false
}

// parseOr handles the lowest-precedence operator.
func (p *searchParser) parseOr() (searchNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []searchNode{left}
	for {
		tok, ok := p.peek()
		if !ok || tok != "OR" {
			break
		}
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return left, nil
	}
	return orNode{children: children}, nil
}

// parseAnd handles explicit AND plus implicit conjunction of adjacent terms.
func (p *searchParser) parseAnd() (searchNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	children := []searchNode{left}
	for {
		tok, ok := p.peek()
		if !ok || tok == "OR" || tok == ")" {
			break
		}
		if tok == "AND" {
			p.pos++
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return left, nil
	}
	return andNode{children: children}, nil
}

func (p *searchParser) parseUnary() (searchNode, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of search query")
	}

	switch tok {
	case "NOT":
		p.pos++
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{child: child}, nil

	case "(":
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		tok, ok := p.peek()
		if !ok || tok != ")" {
			return nil, fmt.Errorf("missing closing parenthesis in search query")
		}
		p.pos++
		return inner, nil

	case ")", "AND", "OR":
		return nil, fmt.Errorf("unexpected %q in search query", tok)

	default:
		p.pos++
		return termNode{term: tok}, nil
	}
}
