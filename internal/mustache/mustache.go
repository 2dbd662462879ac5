// Package mustache implements the minimal `{{path.to.value}}` template
// language used to parameterise request templates (§4.C) and dynamic
// literals. Parsing never fails on an unresolvable path — that is a render
// concern — only on an unterminated `{{` or an empty `{{}}` expression.
package mustache

import (
	"fmt"
	"strings"
)

// Segment is one piece of a parsed template: either literal text or a path
// expression to be resolved at render time.
type Segment struct {
	Literal string
	Path    []string // nil for a literal segment
}

func (s Segment) isExpression() bool { return s.Path != nil }

// Template is a parsed mustache string.
type Template struct {
	raw      string
	segments []Segment
}

// Raw returns the original template source.
func (t *Template) Raw() string { return t.raw }

// IsConst reports whether the template contains no expression segments, i.e.
// rendering it can never depend on the PathResolver.
func (t *Template) IsConst() bool {
	for _, seg := range t.segments {
		if seg.isExpression() {
			return false
		}
	}
	return true
}

// Segments exposes the parsed pieces, e.g. for template-parts validation
// (§4.F) which needs to inspect every referenced path.
func (t *Template) Segments() []Segment { return t.segments }

// Parse parses s into a Template. It fails on an unterminated `{{` and on an
// empty `{{}}` expression.
func Parse(s string) (*Template, error) {
	var segments []Segment
	var lit strings.Builder
	i := 0
	for i < len(s) {
		if i+1 < len(s) && s[i] == '{' && s[i+1] == '{' {
			if lit.Len() > 0 {
				segments = append(segments, Segment{Literal: lit.String()})
				lit.Reset()
			}
			end := strings.Index(s[i+2:], "}}")
			if end < 0 {
				return nil, fmt.Errorf("mustache: unterminated expression in %q", s)
			}
			expr := strings.TrimSpace(s[i+2 : i+2+end])
			if expr == "" {
				return nil, fmt.Errorf("mustache: empty expression in %q", s)
			}
			segments = append(segments, Segment{Path: strings.Split(expr, ".")})
			i = i + 2 + end + 2
			continue
		}
		lit.WriteByte(s[i])
		i++
	}
	if lit.Len() > 0 {
		segments = append(segments, Segment{Literal: lit.String()})
	}
	return &Template{raw: s, segments: segments}, nil
}

// MustParse parses s and panics on error. Intended for template literals
// constructed internally (e.g. fixed GraphQL request bodies), not for
// operator-supplied config — those must go through Parse and surface the
// error via the Validation monad.
func MustParse(s string) *Template {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

// PathResolver resolves a dotted path (e.g. []string{"value", "user", "id"})
// against whatever backs `value.*`, `args.*`, `headers.*`, `vars.*`, `env.*`.
// A nil, false return means "render to empty string", never a panic.
type PathResolver interface {
	ResolvePath(path []string) (any, bool)
}

// PathResolverFunc adapts a function to PathResolver.
type PathResolverFunc func(path []string) (any, bool)

func (f PathResolverFunc) ResolvePath(path []string) (any, bool) { return f(path) }

// Render renders t against resolver, converting resolved values to string
// with Stringify. Missing paths render to the empty string.
func (t *Template) Render(resolver PathResolver) string {
	var b strings.Builder
	for _, seg := range t.segments {
		if !seg.isExpression() {
			b.WriteString(seg.Literal)
			continue
		}
		if v, ok := resolver.ResolvePath(seg.Path); ok {
			b.WriteString(Stringify(v))
		}
	}
	return b.String()
}

// RenderGraphQL renders t the way Render does, except expression segments
// are encoded as inline GraphQL value syntax rather than a plain string —
// used to splice argument values into upstream GraphQL query bodies built
// from templates (§4.C GraphQL-specific).
func (t *Template) RenderGraphQL(resolver PathResolver) string {
	var b strings.Builder
	for _, seg := range t.segments {
		if !seg.isExpression() {
			b.WriteString(seg.Literal)
			continue
		}
		if v, ok := resolver.ResolvePath(seg.Path); ok {
			b.WriteString(EncodeGraphQLValue(v))
		}
	}
	return b.String()
}

// Stringify converts a resolved value to its plain-string rendering.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}

// EncodeGraphQLValue serialises a resolved value as an inline GraphQL value:
// objects use unquoted keys, strings are double-quoted and escaped, lists use
// GraphQL list syntax.
func EncodeGraphQLValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return quoteGraphQLString(x)
	case bool:
		if x {
			return "true"
		}
		return "false"
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = EncodeGraphQLValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		parts := make([]string, 0, len(x))
		for k, val := range x {
			parts = append(parts, k+": "+EncodeGraphQLValue(val))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("%v", x)
	}
}

func quoteGraphQLString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
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
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
