package tesseract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	c := DefaultConfig()
	c.Languages = nil
	require.Error(t, c.Validate())

	c = DefaultConfig()
	c.PageSegMode = 14
	require.Error(t, c.Validate())

	c = DefaultConfig()
	c.Workers = 0
	require.Error(t, c.Validate())
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "NGUYỄN VĂN A", cleanText("  NGUYỄN\n VĂN\tA \n\f"))
	assert.Equal(t, "", cleanText("\n\n"))
	// Decomposed input is composed.
	assert.Equal(t, "\u1ec4", cleanText("E\u0302\u0303"))
}
