package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	for _, s := range []string{"1", "2", "3", "4", "5"} {
		k, err := ParseKind(s)
		require.NoError(t, err)
		assert.Equal(t, Kind(s), k)
	}
}

func TestParseKindDefault(t *testing.T) {
	k, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindQwen, k)
}

func TestParseKindInvalid(t *testing.T) {
	for _, s := range []string{"0", "6", "qwen", " 1"} {
		_, err := ParseKind(s)
		assert.Error(t, err, s)
	}
}

func TestKindStreams(t *testing.T) {
	assert.True(t, KindQwen.Streams())
	assert.True(t, KindDoubao.Streams())
	assert.True(t, KindClaude.Streams())
	assert.False(t, KindRAG.Streams())
	assert.False(t, KindQwenTool.Streams())
}
