package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeywordsJSON(t *testing.T) {
	kw, err := ParseKeywords("```json\n{\"keywords\": [\" 高血压 \", \"饮食\", \"\"]}\n```")
	require.NoError(t, err)
	assert.Equal(t, []string{"高血压", "饮食"}, kw)
}

func TestParseKeywordsTextFallback(t *testing.T) {
	kw, err := ParseKeywords(`["睡眠", "熬夜"，作息、褪黑素`)
	require.NoError(t, err)
	assert.Equal(t, []string{"睡眠", "熬夜", "作息", "褪黑素"}, kw)

	kw, err = ParseKeywords("运动\n心率\n\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"运动", "心率"}, kw)
}

func TestParseKeywordsEmpty(t *testing.T) {
	_, err := ParseKeywords(`{"keywords": []}`)
	assert.ErrorIs(t, err, ErrNoKeywords)

	_, err = ParseKeywords(` [ "" , ] `)
	assert.ErrorIs(t, err, ErrNoKeywords)
}
