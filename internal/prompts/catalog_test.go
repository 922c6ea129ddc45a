package prompts

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Lllllllleong/documentverification/internal/errs"
	"github.com/Lllllllleong/documentverification/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogCoversEveryDocType(t *testing.T) {
	c, err := LoadDefault()
	require.NoError(t, err)

	for _, dt := range models.AllDocTypes {
		text, err := c.Get(string(dt))
		require.NoError(t, err, dt)
		assert.NotEmpty(t, strings.TrimSpace(text), dt)
	}
	assert.Len(t, c.Tags(), len(models.AllDocTypes))
}

func TestGetUnknownTag(t *testing.T) {
	c, err := LoadDefault()
	require.NoError(t, err)

	_, err = c.Get("passport")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestLoadFailures(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.True(t, errors.Is(err, errs.ErrConfig))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("pan: [unterminated"), 0o600))
	_, err = Load(bad)
	assert.True(t, errors.Is(err, errs.ErrConfig))

	blank := filepath.Join(dir, "blank.yaml")
	require.NoError(t, os.WriteFile(blank, []byte("pan: \"  \"\n"), 0o600))
	_, err = Load(blank)
	assert.True(t, errors.Is(err, errs.ErrConfig))
}

func TestLoadOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pan: extract the pan\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	text, err := c.Get("pan")
	require.NoError(t, err)
	assert.Equal(t, "extract the pan", text)
	assert.Equal(t, []string{"pan"}, c.Tags())
}
