package httpserver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phspeters/webserv-sub000/internal/config"
)

func multipartBody(boundary, filename, content string) string {
	return "--" + boundary + "\r\n" +
		`Content-Disposition: form-data; name="file"; filename="` + filename + `"` + "\r\n" +
		"Content-Type: text/plain\r\n\r\n" +
		content + "\r\n" +
		"--" + boundary + "--\r\n"
}

func TestHandleUploadWritesFile(t *testing.T) {
	root := t.TempDir()
	loc := &config.Location{Root: root}

	body := multipartBody("X-BOUNDARY", "note.txt", "hello upload")
	req := newRequest()
	req.Headers["content-length"] = "1"
	req.Headers["content-type"] = "multipart/form-data; boundary=X-BOUNDARY"
	req.Body = []byte(body)

	result := handleUpload(loc, req)
	require.Equal(t, 201, result.Status)

	data, err := os.ReadFile(filepath.Join(root, "uploads", "note.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello upload", string(data))
}

func TestHandleUploadRejectsNonMultipart(t *testing.T) {
	root := t.TempDir()
	loc := &config.Location{Root: root}
	req := newRequest()
	req.Headers["content-length"] = "4"
	req.Headers["content-type"] = "text/plain"
	req.Body = []byte("oops")

	result := handleUpload(loc, req)
	assert.Equal(t, 415, result.Status)
}

func TestHandleUploadRequiresContentLength(t *testing.T) {
	root := t.TempDir()
	loc := &config.Location{Root: root}
	req := newRequest()
	req.Headers["content-type"] = "multipart/form-data; boundary=X"

	result := handleUpload(loc, req)
	assert.Equal(t, 400, result.Status)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a_b.txt", sanitizeFilename("a b.txt"))
	assert.Equal(t, "passwd", sanitizeFilename("../../etc/passwd"))
	assert.Equal(t, "upload_file", sanitizeFilename(".."))
	assert.Equal(t, "upload_file", sanitizeFilename(""))
}

func TestExtractBoundary(t *testing.T) {
	b, ok := extractBoundary(`multipart/form-data; boundary="abc123"`)
	assert.True(t, ok)
	assert.Equal(t, "abc123", b)

	_, ok = extractBoundary("multipart/form-data")
	assert.False(t, ok)
}
