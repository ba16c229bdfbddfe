package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-garden-serde/pkg/serde"
)

type node struct {
	Name string `json:"name"`
	Next *node  `json:"-"`
}

func TestGraphSerializer(t *testing.T) {
	n := &node{Name: "loop"}
	n.Next = n

	s, ok := ByName("graph", serde.New())
	require.True(t, ok)
	data, err := s.Marshal(n)
	require.NoError(t, err)

	var out *node
	require.NoError(t, s.Unmarshal(data, &out))
	assert.Equal(t, "loop", out.Name)
	assert.Same(t, out, out.Next)
}

func TestJSONSerializer(t *testing.T) {
	s, ok := ByName("json", nil)
	require.True(t, ok)
	data, err := s.Marshal(&node{Name: "a"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"a"}`, string(data))

	var out node
	require.NoError(t, s.Unmarshal(data, &out))
	assert.Equal(t, "a", out.Name)

	_, ok = ByName("xml", nil)
	assert.False(t, ok)
}
