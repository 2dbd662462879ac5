package jsonschema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailcallhq/tailcall-go/internal/jsonschema"
)

func userSchema() *jsonschema.Schema {
	return jsonschema.Obj(map[string]*jsonschema.Schema{
		"id":   jsonschema.Num(),
		"name": jsonschema.Str(),
		"nick": jsonschema.Opt(jsonschema.Str()),
	})
}

func TestValidateAcceptsMatchingObject(t *testing.T) {
	v := jsonschema.Validate(userSchema(), map[string]any{"id": 1, "name": "Ada"})
	assert.True(t, v.IsSucceed())
}

func TestValidateAccumulatesEveryMismatch(t *testing.T) {
	v := jsonschema.Validate(userSchema(), map[string]any{"id": "not-a-number"})
	require.False(t, v.IsSucceed())
	assert.Len(t, v.Causes(), 2) // bad id type + missing name
}

func TestValidateOptionalFieldMayBeAbsent(t *testing.T) {
	v := jsonschema.Validate(userSchema(), map[string]any{"id": 1, "name": "Ada"})
	assert.True(t, v.IsSucceed())
}

func TestValidateArrayElementPaths(t *testing.T) {
	schema := jsonschema.Arr(jsonschema.Str())
	v := jsonschema.Validate(schema, []any{"a", 1, "c"})
	require.False(t, v.IsSucceed())
	require.Len(t, v.Causes(), 1)
	assert.Contains(t, v.Causes()[0].Message, "$[1]")
}

func TestCompareRejectsIncompatibleObjectField(t *testing.T) {
	actual := jsonschema.Obj(map[string]*jsonschema.Schema{"id": jsonschema.Str()})
	declared := jsonschema.Obj(map[string]*jsonschema.Schema{"id": jsonschema.Num()})
	v := jsonschema.Compare(actual, declared, "User.id")
	assert.False(t, v.IsSucceed())
}

func TestCompareAcceptsAnyOnEitherSide(t *testing.T) {
	v := jsonschema.Compare(jsonschema.Any(), jsonschema.Str(), "field")
	assert.True(t, v.IsSucceed())
}

func TestPathFollowsObjectAndArraySegments(t *testing.T) {
	schema := jsonschema.Obj(map[string]*jsonschema.Schema{
		"users": jsonschema.Arr(userSchema()),
	})
	reached := jsonschema.Path(schema, []string{"users", "name"})
	require.NotNil(t, reached)
	assert.Equal(t, jsonschema.KindStr, reached.Kind)
}

func TestPathReturnsNilOnUnresolvableSegment(t *testing.T) {
	reached := jsonschema.Path(userSchema(), []string{"missing"})
	assert.Nil(t, reached)
}

func TestIsScalarTrueForOptionalScalar(t *testing.T) {
	assert.True(t, jsonschema.Opt(jsonschema.Num()).IsScalar())
	assert.False(t, jsonschema.Obj(nil).IsScalar())
}
