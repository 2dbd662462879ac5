package valid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailcallhq/tailcall-go/internal/valid"
)

func TestSucceedAndMap(t *testing.T) {
	v := valid.Succeed(2)
	doubled := valid.Map(v, func(n int) int { return n * 2 })
	require.True(t, doubled.IsSucceed())
	assert.Equal(t, 4, doubled.Value())
}

func TestFailShortCircuitsAndThen(t *testing.T) {
	called := false
	v := valid.Fail[int]("bad")
	out := valid.AndThen(v, func(int) valid.Validation[int] {
		called = true
		return valid.Succeed(1)
	})
	assert.False(t, called)
	assert.False(t, out.IsSucceed())
	assert.Equal(t, []valid.Cause{{Message: "bad"}}, out.Causes())
}

func TestZipConcatenatesCausesInOrder(t *testing.T) {
	a := valid.Fail[int]("a failed")
	b := valid.Fail[string]("b failed")
	z := valid.Zip(a, b)
	require.False(t, z.IsSucceed())
	msgs := []string{z.Causes()[0].Message, z.Causes()[1].Message}
	assert.Equal(t, []string{"a failed", "b failed"}, msgs)
}

func TestZipSucceedsWithPair(t *testing.T) {
	z := valid.Zip(valid.Succeed(1), valid.Succeed("x"))
	require.True(t, z.IsSucceed())
	assert.Equal(t, 1, z.Value().First)
	assert.Equal(t, "x", z.Value().Second)
}

func TestFromIterCollectsAllFailures(t *testing.T) {
	items := []int{1, -1, 2, -2}
	out := valid.FromIter(items, func(n int) valid.Validation[int] {
		if n < 0 {
			return valid.Fail[int]("negative")
		}
		return valid.Succeed(n)
	})
	require.False(t, out.IsSucceed())
	assert.Len(t, out.Causes(), 2)
}

func TestTracePrependsSegmentToEveryCause(t *testing.T) {
	v := valid.Zip(valid.Fail[int]("x"), valid.Fail[int]("y"))
	traced := valid.Trace(v, "schema")
	traced = valid.Trace(traced, "Query")
	for _, c := range traced.Causes() {
		assert.Equal(t, []string{"schema", "Query"}, c.Trace)
	}
}

func TestToResultOrdering(t *testing.T) {
	v := valid.Zip(valid.Fail[int]("first"), valid.Fail[int]("second"))
	_, err := v.ToResult()
	require.Error(t, err)
	verr, ok := err.(valid.Error)
	require.True(t, ok)
	require.Len(t, verr, 2)
	assert.Equal(t, "first", verr[0].Message)
	assert.Equal(t, "second", verr[1].Message)
}
