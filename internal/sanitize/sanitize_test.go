package sanitize

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanPrimitives(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
		keep bool
	}{
		{"string", "hello", "hello", true},
		{"int", 42, 42, true},
		{"float", 1.5, 1.5, true},
		{"bool", true, true, true},
		{"nil", nil, nil, true},
		{"func dropped", func() {}, nil, false},
		{"chan dropped", make(chan int), nil, false},
		{"struct dropped", struct{ A int }{1}, nil, false},
		{"complex dropped", complex(1, 2), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, keep := Clean(tt.in)
			assert.Equal(t, tt.keep, keep)
			if tt.keep {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestCleanDirectCycle(t *testing.T) {
	m := map[string]any{"name": "Ana"}
	m["self"] = m

	got, keep := Clean(m)
	require.True(t, keep)
	assert.Equal(t, map[string]any{"name": "Ana"}, got)
}

func TestCleanIndirectCycle(t *testing.T) {
	a := map[string]any{"label": "a"}
	b := map[string]any{"label": "b", "parent": a}
	a["child"] = b

	got, keep := Clean(a)
	require.True(t, keep)

	cleaned, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a", cleaned["label"])

	child, ok := cleaned["child"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "b", child["label"])
	assert.NotContains(t, child, "parent")
}

func TestCleanSliceCycle(t *testing.T) {
	s := make([]any, 2)
	s[0] = "first"
	s[1] = s

	got, keep := Clean(s)
	require.True(t, keep)
	assert.Equal(t, []any{"first"}, got)
}

func TestCleanSharedNonCyclicValueKeptTwice(t *testing.T) {
	// A diamond is not a cycle: the same map referenced from two keys
	// must survive in both places.
	shared := map[string]any{"v": 1}
	m := map[string]any{"left": shared, "right": shared}

	got, keep := Clean(m)
	require.True(t, keep)
	cleaned := got.(map[string]any)
	assert.Equal(t, map[string]any{"v": 1}, cleaned["left"])
	assert.Equal(t, map[string]any{"v": 1}, cleaned["right"])
}

func TestCleanDropsNonPlainInstances(t *testing.T) {
	type sdkHandle struct{ conn *int }

	m := map[string]any{
		"name":   "Pedro",
		"handle": &sdkHandle{},
	}

	got, keep := Clean(m)
	require.True(t, keep)
	assert.Equal(t, map[string]any{"name": "Pedro"}, got)
}

func TestCleanEmptyMapSurvives(t *testing.T) {
	got, keep := Clean(map[string]any{})
	require.True(t, keep)
	assert.Equal(t, map[string]any{}, got)
}

func TestCleanNonStringKeyedMapDropped(t *testing.T) {
	m := map[string]any{
		"ok":  "yes",
		"bad": map[int]string{1: "x"},
	}
	got, _ := Clean(m)
	assert.Equal(t, map[string]any{"ok": "yes"}, got)
}

func TestCleanSequenceDropsHoles(t *testing.T) {
	s := []any{1, func() {}, "two", make(chan int), nil}
	got, keep := Clean(s)
	require.True(t, keep)
	assert.Equal(t, []any{1, "two", nil}, got)
}

func TestCleanIdempotent(t *testing.T) {
	in := map[string]any{
		"name":  "Maria",
		"tags":  []any{"new", "visited"},
		"notes": nil,
		"meta":  map[string]any{},
	}

	once, keep := Clean(in)
	require.True(t, keep)
	twice, keep := Clean(once)
	require.True(t, keep)
	assert.Equal(t, once, twice)
}

func TestCleanDoesNotMutateInput(t *testing.T) {
	m := map[string]any{"keep": 1, "drop": func() {}}
	_, _ = Clean(m)
	assert.Len(t, m, 2)
}

func TestCleanReentrant(t *testing.T) {
	// Back-to-back calls must not leak cycle state between them.
	m := map[string]any{"v": 1}
	first, _ := Clean(m)
	second, _ := Clean(m)
	assert.Equal(t, first, second)
}

func TestEncodeNeverFails(t *testing.T) {
	tests := []struct {
		name string
		in   any
	}{
		{"plain map", map[string]any{"a": 1}},
		{"nan", map[string]any{"v": math.NaN()}},
		{"infinity", math.Inf(1)},
		{"dropped top level", func() {}},
		{"cyclic", func() any {
			m := map[string]any{}
			m["m"] = m
			return m
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Encode(tt.in)
			require.NotEmpty(t, out)
			var parsed any
			assert.NoError(t, json.Unmarshal(out, &parsed), "output must always parse: %s", out)
		})
	}
}

func TestEncodeFallsBackToEmptyObject(t *testing.T) {
	assert.Equal(t, "{}", string(Encode(func() {})))
	assert.Equal(t, "{}", string(Encode(map[string]any{"v": math.NaN()})))
}

func TestRecord(t *testing.T) {
	rec := Record(map[string]any{"a": 1, "h": make(chan int)})
	assert.Equal(t, map[string]any{"a": 1}, rec)

	assert.Equal(t, map[string]any{}, Record(func() {}))
	assert.Equal(t, map[string]any{}, Record("not a map"))
}
