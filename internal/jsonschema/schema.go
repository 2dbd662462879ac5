// Package jsonschema implements the compact, structural JSON schema used to
// validate upstream request/response shapes and to type-check mustache
// template paths against field types at compile time (§4.F). It is
// deliberately not a JSON Schema (draft-07 etc.) implementation: it encodes
// exactly the shapes the Blueprint compiler needs to check — scalars,
// objects, arrays, optionality, and "don't care" — not the full JSON Schema
// vocabulary (patterns, $ref, combinators, formats). See DESIGN.md for why a
// general-purpose validator from the pack was not adopted here.
package jsonschema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tailcallhq/tailcall-go/internal/valid"
)

// Kind discriminates the shape of a Schema node.
type Kind int

const (
	KindAny Kind = iota
	KindEmpty
	KindStr
	KindNum
	KindBool
	KindObj
	KindArr
	KindOpt
)

// Schema is a node in the compact structural schema tree.
type Schema struct {
	Kind Kind
	// Obj: field name -> field schema. Only set when Kind == KindObj.
	Obj map[string]*Schema
	// Arr/Opt: element/inner schema. Only set when Kind == KindArr or KindOpt.
	Of *Schema
}

func Str() *Schema  { return &Schema{Kind: KindStr} }
func Num() *Schema  { return &Schema{Kind: KindNum} }
func Bool() *Schema { return &Schema{Kind: KindBool} }
func Any() *Schema  { return &Schema{Kind: KindAny} }
func Empty() *Schema { return &Schema{Kind: KindEmpty} }
func Obj(fields map[string]*Schema) *Schema { return &Schema{Kind: KindObj, Obj: fields} }
func Arr(of *Schema) *Schema                { return &Schema{Kind: KindArr, Of: of} }
func Opt(of *Schema) *Schema                { return &Schema{Kind: KindOpt, Of: of} }

// Validate structurally checks value against the schema, accumulating every
// mismatched path rather than stopping at the first one.
func Validate(s *Schema, value any) valid.Validation[struct{}] {
	return validateAt(s, value, "$")
}

func validateAt(s *Schema, value any, path string) valid.Validation[struct{}] {
	if s == nil || s.Kind == KindAny {
		return valid.Succeed(struct{}{})
	}
	if s.Kind == KindOpt {
		if value == nil {
			return valid.Succeed(struct{}{})
		}
		return validateAt(s.Of, value, path)
	}
	if value == nil {
		return valid.FailWith[struct{}](valid.Cause{Message: fmt.Sprintf("%s: expected %s, got null", path, s.describe())})
	}

	switch s.Kind {
	case KindEmpty:
		return valid.Succeed(struct{}{})
	case KindStr:
		if _, ok := value.(string); !ok {
			return typeMismatch(path, "string", value)
		}
	case KindNum:
		switch value.(type) {
		case int, int32, int64, float32, float64, uint, uint32, uint64:
		default:
			return typeMismatch(path, "number", value)
		}
	case KindBool:
		if _, ok := value.(bool); !ok {
			return typeMismatch(path, "boolean", value)
		}
	case KindArr:
		items, ok := value.([]any)
		if !ok {
			return typeMismatch(path, "array", value)
		}
		results := make([]valid.Validation[struct{}], len(items))
		for i, item := range items {
			results[i] = validateAt(s.Of, item, fmt.Sprintf("%s[%d]", path, i))
		}
		return combineAll(results)
	case KindObj:
		obj, ok := value.(map[string]any)
		if !ok {
			return typeMismatch(path, "object", value)
		}
		names := make([]string, 0, len(s.Obj))
		for name := range s.Obj {
			names = append(names, name)
		}
		sort.Strings(names)
		results := make([]valid.Validation[struct{}], 0, len(names))
		for _, name := range names {
			fieldSchema := s.Obj[name]
			fieldValue, present := obj[name]
			fieldPath := path + "." + name
			if !present {
				if fieldSchema.Kind != KindOpt {
					results = append(results, valid.FailWith[struct{}](valid.Cause{
						Message: fmt.Sprintf("%s: missing required field", fieldPath),
					}))
				}
				continue
			}
			results = append(results, validateAt(fieldSchema, fieldValue, fieldPath))
		}
		return combineAll(results)
	}
	return valid.Succeed(struct{}{})
}

func typeMismatch(path, want string, got any) valid.Validation[struct{}] {
	return valid.FailWith[struct{}](valid.Cause{
		Message: fmt.Sprintf("%s: expected %s, got %T", path, want, got),
	})
}

func combineAll(results []valid.Validation[struct{}]) valid.Validation[struct{}] {
	out := valid.Succeed(struct{}{})
	for _, r := range results {
		out = valid.Map(valid.Zip(out, r), func(valid.Pair[struct{}, struct{}]) struct{} { return struct{}{} })
	}
	return out
}

// Compare cross-checks an upstream-computed schema against a declared field
// schema by name, used at compile time to reject a GraphQL upstream field
// whose type disagrees with the local field's declared return type.
func Compare(actual, declared *Schema, name string) valid.Validation[struct{}] {
	if !compatible(actual, declared) {
		return valid.FailWith[struct{}](valid.Cause{
			Message: fmt.Sprintf("%s: upstream type %s is not compatible with declared type %s", name, actual.describe(), declared.describe()),
		})
	}
	return valid.Succeed(struct{}{})
}

func compatible(a, b *Schema) bool {
	if a == nil || b == nil || a.Kind == KindAny || b.Kind == KindAny {
		return true
	}
	if a.Kind == KindOpt {
		a = a.Of
	}
	if b.Kind == KindOpt {
		b = b.Of
	}
	if a == nil || b == nil {
		return true
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindArr:
		return compatible(a.Of, b.Of)
	case KindObj:
		for name, bf := range b.Obj {
			af, ok := a.Obj[name]
			if !ok {
				if bf.Kind != KindOpt {
					return false
				}
				continue
			}
			if !compatible(af, bf) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Path follows a dotted path descriptor (as produced by mustache template
// parsing) through an object schema, returning the schema reached, or nil if
// the path cannot be resolved structurally (e.g. it indexes into a scalar).
// Optional and array wrappers are stepped through without consuming a
// segment, so `users.name` over an array of users reaches the element's name.
func Path(s *Schema, segs []string) *Schema {
	cur := s
	for _, seg := range segs {
		if cur == nil {
			return nil
		}
		for cur.Kind == KindOpt || cur.Kind == KindArr {
			cur = cur.Of
			if cur == nil {
				return nil
			}
		}
		switch cur.Kind {
		case KindObj:
			next, ok := cur.Obj[seg]
			if !ok {
				return nil
			}
			cur = next
		case KindAny:
			return Any()
		default:
			return nil
		}
	}
	return cur
}

// IsScalar reports whether s names a leaf scalar shape (string, number,
// boolean) as opposed to object/array/any — used by template-parts
// validation to reject e.g. `{{value.user}}` where user is an object.
func (s *Schema) IsScalar() bool {
	if s == nil {
		return false
	}
	if s.Kind == KindOpt {
		return s.Of.IsScalar()
	}
	return s.Kind == KindStr || s.Kind == KindNum || s.Kind == KindBool
}

func (s *Schema) describe() string {
	if s == nil {
		return "any"
	}
	switch s.Kind {
	case KindStr:
		return "string"
	case KindNum:
		return "number"
	case KindBool:
		return "boolean"
	case KindEmpty:
		return "empty"
	case KindAny:
		return "any"
	case KindOpt:
		return "optional " + s.Of.describe()
	case KindArr:
		return "[" + s.Of.describe() + "]"
	case KindObj:
		names := make([]string, 0, len(s.Obj))
		for n := range s.Obj {
			names = append(names, n)
		}
		sort.Strings(names)
		return "{" + strings.Join(names, ",") + "}"
	default:
		return "unknown"
	}
}
