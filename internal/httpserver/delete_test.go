package httpserver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phspeters/webserv-sub000/internal/config"
)

func TestHandleDeleteRemovesFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "doomed.txt", "bye")
	loc := &config.Location{Path: "/", Root: root}

	result := handleDelete(loc, "/doomed.txt")
	assert.Equal(t, 204, result.Status)

	_, err := os.Stat(filepath.Join(root, "doomed.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestHandleDeleteMissingFileIs404(t *testing.T) {
	root := t.TempDir()
	loc := &config.Location{Path: "/", Root: root}
	result := handleDelete(loc, "/nope.txt")
	assert.Equal(t, 404, result.Status)
}

func TestHandleDeleteRejectsDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	loc := &config.Location{Path: "/", Root: root}
	result := handleDelete(loc, "/sub")
	assert.Equal(t, 403, result.Status)
}

func TestHandleDeleteRejectsDotDot(t *testing.T) {
	loc := &config.Location{Path: "/", Root: t.TempDir()}
	result := handleDelete(loc, "/../etc/passwd")
	assert.Equal(t, 403, result.Status)
}
