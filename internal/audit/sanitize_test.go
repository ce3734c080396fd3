package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	t.Run("redacts sensitive keys at any depth", func(t *testing.T) {
		details := Details{
			"email":    "a@b.example",
			"password": "hunter2",
			"nested": map[string]any{
				"apiToken":     "abc",
				"clientSecret": "def",
				"plain":        "kept",
			},
			"list": []any{
				map[string]any{"signingKey": "xyz"},
				"scalar",
			},
		}

		out := Sanitize(details)

		assert.Equal(t, "a@b.example", out["email"])
		assert.Equal(t, Redacted, out["password"])

		nested := out["nested"].(map[string]any)
		assert.Equal(t, Redacted, nested["apiToken"])
		assert.Equal(t, Redacted, nested["clientSecret"])
		assert.Equal(t, "kept", nested["plain"])

		list := out["list"].([]any)
		assert.Equal(t, Redacted, list[0].(map[string]any)["signingKey"])
		assert.Equal(t, "scalar", list[1])
	})

	t.Run("matching is case-insensitive", func(t *testing.T) {
		out := Sanitize(Details{"PASSWORD": "x", "RefreshToken": "y"})
		assert.Equal(t, Redacted, out["PASSWORD"])
		assert.Equal(t, Redacted, out["RefreshToken"])
	})

	t.Run("never mutates the input", func(t *testing.T) {
		nested := map[string]any{"secret": "original"}
		details := Details{"nested": nested}

		_ = Sanitize(details)

		require.Equal(t, "original", nested["secret"])
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, Sanitize(nil))
	})
}
