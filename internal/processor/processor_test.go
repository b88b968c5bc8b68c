package processor

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/memory-server/internal/logging"
)

func TestPassthrough(t *testing.T) {
	p := New(Config{APIKey: "k"}, logging.Discard())

	out, err := p.Process(context.Background(), "  keep me exactly  ")
	require.NoError(t, err)
	assert.Equal(t, "  keep me exactly  ", out)

	results, ok, err := p.Search(context.Background(), "q", "u", 5)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, results)

	assert.Equal(t, DefaultProvider, p.Config().Provider)
	assert.Equal(t, DefaultModel, p.Config().Model)
}

func TestNewWarnsWithoutKey(t *testing.T) {
	var buf bytes.Buffer
	New(Config{}, logging.New(&buf, false))
	assert.Contains(t, buf.String(), "LLM_API_KEY not provided")

	buf.Reset()
	New(Config{Provider: "ollama"}, logging.New(&buf, false))
	assert.NotContains(t, buf.String(), "LLM_API_KEY")
}
