package machine_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/slang/lang/machine"
)

func TestValueTruthy(t *testing.T) {
	require.False(t, machine.Nil.Truthy())
	require.False(t, machine.Bool(false).Truthy())
	require.True(t, machine.Bool(true).Truthy())
	require.True(t, machine.Number(0).Truthy())
	require.True(t, machine.Number(math.NaN()).Truthy())
}

func TestValueEqual(t *testing.T) {
	require.True(t, machine.Equal(machine.Nil, machine.Nil))
	require.True(t, machine.Equal(machine.Number(1), machine.Number(1)))
	require.False(t, machine.Equal(machine.Number(1), machine.Bool(true)))
	require.False(t, machine.Equal(machine.Number(math.NaN()), machine.Number(math.NaN())))

	h := machine.NewHeap()
	s1 := h.NewString("abc")
	s2 := h.NewString("abc")
	require.True(t, machine.Equal(s1, s2), "interning makes equal-content strings equal by handle")

	l1 := h.NewList()
	l2 := h.NewList()
	require.False(t, machine.Equal(l1, l2), "distinct lists compare by identity")
	require.True(t, machine.Equal(l1, l1))
}

func TestValueTag(t *testing.T) {
	require.Equal(t, machine.TagNil, machine.Nil.Tag())
	require.Equal(t, machine.TagBool, machine.Bool(true).Tag())
	require.Equal(t, machine.TagNumber, machine.Number(1).Tag())
	require.Equal(t, machine.TagFunc, machine.Func(3).Tag())
	require.Equal(t, 3, machine.Func(3).FuncIndex())
}
