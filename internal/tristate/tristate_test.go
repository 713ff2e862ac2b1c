package tristate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresent(t *testing.T) {
	ts := Present("hello")
	assert.True(t, ts.IsPresent())
	assert.False(t, ts.IsAbsent())
	assert.False(t, ts.IsUnknown())

	v, ok := ts.Value()
	assert.True(t, ok)
	assert.Equal(t, "hello", v)
}

func TestAbsent(t *testing.T) {
	ts := Absent[int]()
	assert.True(t, ts.IsAbsent())
	assert.False(t, ts.IsPresent())

	_, ok := ts.Value()
	assert.False(t, ok)
	assert.Equal(t, 42, ts.ValueOr(42))
}

func TestUnknownCarriesReason(t *testing.T) {
	ts := Unknown[bool]("dns lookup failed")
	assert.True(t, ts.IsUnknown())
	assert.Equal(t, "dns lookup failed", ts.Reason())
}

func TestZeroValueIsUnknown(t *testing.T) {
	var ts TriState[string]
	assert.True(t, ts.IsUnknown())
	assert.Equal(t, StateUnknown, ts.State())
}

func TestAbsentIsNotUnknown(t *testing.T) {
	// The whole point of the type: checked-and-missing differs from
	// never-checked.
	absent := Absent[string]()
	unknown := Unknown[string]("collector failed")
	assert.NotEqual(t, absent.State(), unknown.State())
}

func TestJSONRoundTrip(t *testing.T) {
	cases := []TriState[string]{
		Present("max-age=63072000"),
		Absent[string](),
		Unknown[string]("root fetch failed"),
	}
	for _, in := range cases {
		data, err := json.Marshal(in)
		require.NoError(t, err)

		var out TriState[string]
		require.NoError(t, json.Unmarshal(data, &out))
		assert.Equal(t, in.State(), out.State())
		assert.Equal(t, in.Reason(), out.Reason())
		assert.Equal(t, in.ValueOr(""), out.ValueOr(""))
	}
}
