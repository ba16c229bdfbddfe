package json

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string         `json:"name"`
	Count int            `json:"count"`
	Extra map[string]any `json:"extra,omitempty"`
}

func TestRoundTrip(t *testing.T) {
	in := sample{Name: "a", Count: 3, Extra: map[string]any{"k": "v"}}
	data, err := Marshal(in)
	require.NoError(t, err)
	assert.True(t, Valid(data))
	assert.JSONEq(t, `{"name":"a","count":3,"extra":{"k":"v"}}`, string(data))

	var out sample
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestStreaming(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(sample{Name: "b"}))

	var raw RawMessage
	require.NoError(t, NewDecoder(&buf).Decode(&raw))
	assert.JSONEq(t, `{"name":"b","count":0}`, string(raw))

	indented, err := MarshalIndent(map[string]int{"x": 1}, "", "  ")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"x\": 1\n}", string(indented))
}
