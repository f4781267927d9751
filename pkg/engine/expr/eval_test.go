package expr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saclot/flowengine/pkg/engine/errs"
	"github.com/saclot/flowengine/pkg/engine/expr"
)

func TestEvaluate_FastPaths(t *testing.T) {
	t.Parallel()

	ok, err := expr.Evaluate("true")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = expr.Evaluate("FALSE")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate_Comparisons(t *testing.T) {
	t.Parallel()

	cases := []struct {
		expr string
		want bool
	}{
		{"1==1", true},
		{"2>1", true},
		{"2<1", false},
		{"1 < 2 < 3", true},
		{"1 < 2 < 1", false},
		{"'a' == 'a'", true},
		{"'y' in ['x', 'y', 'z']", true},
		{"'w' not in ['x', 'y', 'z']", true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.expr, func(t *testing.T) {
			t.Parallel()
			got, err := expr.Evaluate(tc.expr)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluate_BooleanShortCircuit(t *testing.T) {
	t.Parallel()

	got, err := expr.Evaluate("false and (1/0 == 0)")
	require.NoError(t, err)
	assert.False(t, got)

	got, err = expr.Evaluate("true or (1/0 == 0)")
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluate_DivisionByZero(t *testing.T) {
	t.Parallel()

	_, err := expr.Evaluate("1 / 0 == 0")
	require.Error(t, err)
	var expErr *errs.ExpressionError
	assert.ErrorAs(t, err, &expErr)
}

func TestEvaluate_UnsafeConstructsRejected(t *testing.T) {
	t.Parallel()

	cases := []string{
		"os.system('rm -rf /')",
		"__import__('os')",
		"x",
		"len([1,2])",
		"[1,2][0]",
		"obj.attr",
	}
	for _, c := range cases {
		c := c
		t.Run(c, func(t *testing.T) {
			t.Parallel()
			_, err := expr.Evaluate(c)
			require.Error(t, err)
			var unsafeErr *errs.UnsafeExpression
			assert.ErrorAsf(t, err, &unsafeErr, "expected UnsafeExpression for %q, got %v", c, err)
		})
	}
}

func TestEvaluate_Arithmetic(t *testing.T) {
	t.Parallel()

	got, err := expr.Evaluate("(1 + 2) * 3 == 9")
	require.NoError(t, err)
	assert.True(t, got)

	got, err = expr.Evaluate("-1 < 0")
	require.NoError(t, err)
	assert.True(t, got)
}
