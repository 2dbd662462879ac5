// Package schemabuild projects a compiled blueprint.Blueprint into an
// internal/schema.Schema, the neutral type-system model internal/executor
// and internal/introspection already consume. Kept as its own package
// (rather than a method on either side) because internal/blueprint already
// imports internal/schema for TypeRef/InputValue — a Schema-building
// function living in internal/schema would need to import internal/blueprint
// back, an import cycle. Grounded on BuildFromIR from the since-removed
// internal/schema/builder.go, generalized from "discovery IR" input to
// "Blueprint" input.
package schemabuild

import (
	"github.com/tailcallhq/tailcall-go/internal/blueprint"
	"github.com/tailcallhq/tailcall-go/internal/schema"
)

// FromBlueprint builds an executable GraphQL schema from a compiled
// Blueprint. Blueprint already expresses fields and arguments in
// internal/schema's own TypeRef/InputValue shapes (blueprint.FieldDefinition
// .Args/.OfType), so building a Type here is mostly a direct field copy
// rather than a translation.
func FromBlueprint(b *blueprint.Blueprint) *schema.Schema {
	s := &schema.Schema{
		QueryType:    b.Schema.Query,
		MutationType: b.Schema.Mutation,
		Types:        map[string]*schema.Type{},
		Directives:   map[string]*schema.Directive{},
	}
	schema.RegisterBuiltins(s)

	for _, def := range b.Definitions {
		s.Types[def.Name] = buildType(def)
	}
	return s
}

func buildType(def *blueprint.Definition) *schema.Type {
	t := &schema.Type{
		Name:          def.Name,
		Kind:          definitionKindToTypeKind(def.Kind),
		Description:   def.Description,
		Interfaces:    append([]string(nil), def.Implements...),
		PossibleTypes: append([]string(nil), def.Members...),
	}

	for _, name := range def.Values {
		t.EnumValues = append(t.EnumValues, &schema.EnumValue{Name: name})
	}

	if def.Kind == blueprint.KindInputObject {
		for _, f := range def.Fields {
			if f.Name == "" {
				continue
			}
			t.InputFields = append(t.InputFields, &schema.InputValue{
				Name:         f.Name,
				Description:  f.Description,
				Type:         f.OfType,
				DefaultValue: f.DefaultValue,
			})
		}
		return t
	}

	for _, f := range def.Fields {
		if f.Name == "" { // omitted by @modify(omit: true)
			continue
		}
		t.Fields = append(t.Fields, &schema.Field{
			Name:        f.Name,
			Description: f.Description,
			Type:        f.OfType,
			Arguments:   f.Args,
			Async:       f.Resolver != nil,
		})
	}
	return t
}

func definitionKindToTypeKind(k blueprint.DefinitionKind) schema.TypeKind {
	switch k {
	case blueprint.KindObject:
		return schema.TypeKindObject
	case blueprint.KindInterface:
		return schema.TypeKindInterface
	case blueprint.KindInputObject:
		return schema.TypeKindInputObject
	case blueprint.KindUnion:
		return schema.TypeKindUnion
	case blueprint.KindEnum:
		return schema.TypeKindEnum
	default:
		return schema.TypeKindScalar
	}
}
