package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeIsOrderIndependent(t *testing.T) {
	t.Parallel()

	a := map[string]any{
		"city":       "berlin",
		"event_type": "meetup",
		"price_tier": "free",
		"page":       2,
		"platforms":  []string{"meetup", "eventbrite"},
	}
	// Same pairs inserted in a different order.
	b := map[string]any{
		"platforms":  []string{"meetup", "eventbrite"},
		"page":       2,
		"price_tier": "free",
		"event_type": "meetup",
		"city":       "berlin",
	}

	fa, err := Compute(a)
	require.NoError(t, err)
	fb, err := Compute(b)
	require.NoError(t, err)
	require.Equal(t, fa, fb)
}

func TestComputeChangesWithAnyValue(t *testing.T) {
	t.Parallel()

	base := map[string]any{"city": "berlin", "page": 1}
	fp, err := Compute(base)
	require.NoError(t, err)

	variants := []map[string]any{
		{"city": "berlin", "page": 2},
		{"city": "munich", "page": 1},
		{"city": "berlin"},
		{"city": "berlin", "page": 1, "limit": 20},
	}
	for _, v := range variants {
		got, err := Compute(v)
		require.NoError(t, err)
		require.NotEqual(t, fp, got)
	}
}

func TestComputeDistinguishesKeyFromValue(t *testing.T) {
	t.Parallel()

	// "a" -> "b:c" and "a:b" -> "c" must not collide via concatenation.
	fa, err := Compute(map[string]any{"a": "b:c"})
	require.NoError(t, err)
	fb, err := Compute(map[string]any{"a:b": "c"})
	require.NoError(t, err)
	require.NotEqual(t, fa, fb)
}

func TestComputeEmptyParams(t *testing.T) {
	t.Parallel()

	fp, err := Compute(nil)
	require.NoError(t, err)
	require.Len(t, fp, 32)
}
