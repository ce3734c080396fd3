package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLineID(t *testing.T) {
	t.Run("accepts canonical uuid", func(t *testing.T) {
		id, err := ParseLineID("550e8400-e29b-41d4-a716-446655440000")
		require.NoError(t, err)
		assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", id.String())
	})

	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseLineID("")
		assert.Error(t, err)
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		_, err := ParseLineID("not-a-uuid")
		assert.Error(t, err)
	})
}

func TestNewIDsAreDistinct(t *testing.T) {
	assert.NotEqual(t, NewLineID(), NewLineID())
	assert.NotEqual(t, NewProcessID(), NewProcessID())
	assert.NotEqual(t, NewUserID(), NewUserID())
	assert.NotEqual(t, NewEntryID(), NewEntryID())
}

func TestIsNil(t *testing.T) {
	assert.True(t, LineID{}.IsNil())
	assert.True(t, UserID(uuid.Nil).IsNil())
	assert.False(t, NewLineID().IsNil())
}

func TestIDJSONRoundTrip(t *testing.T) {
	type payload struct {
		Line LineID `json:"line"`
		User UserID `json:"user"`
	}

	in := payload{Line: NewLineID(), User: NewUserID()}
	raw, err := json.Marshal(in)
	require.NoError(t, err)

	// Typed IDs must render as UUID strings, not byte arrays.
	assert.Contains(t, string(raw), in.Line.String())

	var out payload
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, out)
}

func TestUnmarshalRejectsBadText(t *testing.T) {
	var id ProcessID
	assert.Error(t, id.UnmarshalText([]byte("garbage")))
}

func FuzzParseUserID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseUserID(input)
		if err != nil {
			return
		}
		// A successful parse must survive a round trip.
		again, err := ParseUserID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, again)
	})
}
