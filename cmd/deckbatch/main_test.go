package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadDecks(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"b.pdf":     "%PDF-1.7 b",
		"A.PDF":     "%PDF-1.7 a",
		"notes.txt": "skip me",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.pdf"), 0o755))

	uploads, err := readDecks(dir)
	require.NoError(t, err)
	require.Len(t, uploads, 2)
	assert.Equal(t, "A.PDF", uploads[0].FileName)
	assert.Equal(t, "b.pdf", uploads[1].FileName)
	assert.Equal(t, []byte("%PDF-1.7 b"), uploads[1].Data)
}

func TestReadDecksMissingDir(t *testing.T) {
	_, err := readDecks(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
