package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Lllllllleong/documentverification/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFileArgs(t *testing.T) {
	dir := t.TempDir()
	pan := filepath.Join(dir, "pan.jpg")
	require.NoError(t, os.WriteFile(pan, []byte("jpeg"), 0o644))

	files, err := readFileArgs([]string{"pan=" + pan})
	require.NoError(t, err)
	require.Contains(t, files, models.DocPAN)
	assert.Equal(t, "pan.jpg", files[models.DocPAN].Filename)
	assert.Equal(t, []byte("jpeg"), files[models.DocPAN].Data)

	tests := []struct {
		name string
		args []string
	}{
		{"missing separator", []string{pan}},
		{"unknown type", []string{"passport=" + pan}},
		{"duplicate", []string{"pan=" + pan, "pan=" + pan}},
		{"missing file", []string{"pan=" + filepath.Join(dir, "nope.jpg")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readFileArgs(tt.args)
			assert.Error(t, err)
		})
	}
}
