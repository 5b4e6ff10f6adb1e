package fetch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pitabwire/resourceloader/loader"
)

func TestCondense(t *testing.T) {
	failed := attempt{err: errors.New("missing")}
	ok := func(text string) attempt { return attempt{text: text} }

	testCases := []struct {
		name     string
		attempts []attempt
		want     int
	}{
		{name: "empty", want: -1},
		{name: "all failed", attempts: []attempt{failed, failed, failed}, want: -1},
		{name: "last wins", attempts: []attempt{failed, failed, ok("A")}, want: 2},
		{name: "most specific success wins", attempts: []attempt{ok("base"), ok("en"), ok("fr"), failed}, want: 2},
		{name: "only the first", attempts: []attempt{ok("base"), failed, failed}, want: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, condense(tc.attempts))
		})
	}
}

func TestBuildPipelineOnce(t *testing.T) {
	f, err := New(t.Context(), map[string]Spec{
		"a": {Fields: loader.Fields{Text: "hello"}},
	})
	require.NoError(t, err)

	d, ok := f.Descriptor("a")
	require.True(t, ok)
	first := d.Outcome()

	err = f.buildPipeline(d)
	require.ErrorIs(t, err, ErrAlreadySubscribed)
	require.Same(t, first, d.Outcome())
}

func TestCloneOptionsIsDeep(t *testing.T) {
	in := map[string]any{"headers": map[string]any{"Accept": "text/plain"}, "n": 1}
	out := cloneOptions(in)
	out["headers"].(map[string]any)["Accept"] = "changed"
	out["n"] = 2

	require.Equal(t, "text/plain", in["headers"].(map[string]any)["Accept"])
	require.Equal(t, 1, in["n"])
}
