package assert

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssert(t *testing.T) {
	errBoom := errors.New("boom")

	mustBeTrue := True(true, "must be true", errBoom)
	require.True(t, mustBeTrue.Eval())
	require.NoError(t, mustBeTrue.Check())
	require.Equal(t, "must be true", mustBeTrue.String())

	mustBeFalse := False(false, "must be false", errBoom)
	require.True(t, mustBeFalse.Eval())
	require.NoError(t, mustBeFalse.Check())

	require.NoError(t, All(mustBeTrue, mustBeFalse).Check())

	failing := True(false, "foo", errBoom)
	err := All(mustBeTrue, failing, mustBeFalse).Check()
	require.ErrorIs(t, err, errBoom)
	require.EqualError(t, err, "boom: foo")

	require.ErrorIs(t, Not(mustBeTrue, nil).Check(), ErrAssertionFailed)
}

func TestChecked(t *testing.T) {
	errBoom := errors.New("boom")
	ran := false
	run := func() error { ran = true; return nil }

	require.ErrorIs(t, Checked(run, True(false, "nope", errBoom)), errBoom)
	require.False(t, ran)

	n := 0
	lazy := That("n is zero", errBoom, func() bool { return n == 0 })
	require.NoError(t, Checked(run, lazy))
	require.True(t, ran)

	n = 1
	require.ErrorIs(t, lazy.Check(), errBoom)
}
