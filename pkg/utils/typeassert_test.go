package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSafeAssert(t *testing.T) {
	v, ok := SafeAssert[string](any("hello"))
	require.True(t, ok)
	require.Equal(t, "hello", v)

	_, ok = SafeAssert[int](any("hello"))
	require.False(t, ok)
}

func TestMustAssertPanicsOnMismatch(t *testing.T) {
	require.Equal(t, 42, MustAssert[int](any(42), "test"))
	require.Panics(t, func() { MustAssert[int](any("nope"), "test") })
}

func TestAssertMapStringAny(t *testing.T) {
	m, err := AssertMapStringAny(any(map[string]any{"a": 1}))
	require.NoError(t, err)
	require.Equal(t, 1, m["a"])

	_, err = AssertMapStringAny(any("not a map"))
	require.Error(t, err)
}

func TestGetMapField(t *testing.T) {
	m := map[string]any{"name": "app", "count": 3}

	name, err := GetMapField[string](m, "name")
	require.NoError(t, err)
	require.Equal(t, "app", name)

	_, err = GetMapField[string](m, "missing")
	require.Error(t, err)

	_, err = GetMapField[string](m, "count")
	require.Error(t, err)
}

func TestGetMapFieldOr(t *testing.T) {
	m := map[string]any{"name": "app"}
	require.Equal(t, "app", GetMapFieldOr(m, "name", "fallback"))
	require.Equal(t, "fallback", GetMapFieldOr(m, "missing", "fallback"))
}

type fakeStateGetter struct {
	values map[string]any
}

func (f *fakeStateGetter) GetStateValue(key string) (any, bool) {
	v, ok := f.values[key]
	return v, ok
}

func TestGetStateValue(t *testing.T) {
	sg := &fakeStateGetter{values: map[string]any{"phase": "auth"}}

	v, ok := GetStateValue[string](sg, "phase")
	require.True(t, ok)
	require.Equal(t, "auth", v)

	_, ok = GetStateValue[string](sg, "missing")
	require.False(t, ok)
}

func TestGetStateValueOr(t *testing.T) {
	sg := &fakeStateGetter{values: map[string]any{"phase": "auth"}}
	require.Equal(t, "auth", GetStateValueOr(sg, "phase", "default"))
	require.Equal(t, "default", GetStateValueOr(sg, "missing", "default"))
}

func TestMustGetStateValue(t *testing.T) {
	sg := &fakeStateGetter{values: map[string]any{"phase": "auth"}}
	require.Equal(t, "auth", MustGetStateValue[string](sg, "phase", "test"))
	require.Panics(t, func() { MustGetStateValue[string](sg, "missing", "test") })
}
